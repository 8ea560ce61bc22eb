package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"docsift/internal/cache"
	"docsift/internal/database"
	"docsift/internal/repository"

	"github.com/google/uuid"
)

const DefaultChunkSize = 500

type ExportOptions struct {
	Search string
	// Columns to export in order. When empty, the dataset headers are used,
	// followed by the visible analysis columns of the dataset's column config.
	Columns []string
}

// Exporter streams subjects joined with their active analysis values to CSV,
// ChunkSize subjects at a time.
type Exporter struct {
	repo      *repository.Repository
	cache     *cache.Store
	ChunkSize int
}

func NewExporter(repo *repository.Repository, cache *cache.Store, chunkSize int) *Exporter {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Exporter{repo: repo, cache: cache, ChunkSize: chunkSize}
}

// cellValue is the original value when there is one, else the active
// analysis value, else "".
func cellValue(row database.OrderedFields, view *cache.SubjectView, column string) string {
	if v, ok := row.Get(column); ok && v != "" {
		return v
	}
	if view != nil {
		if v, ok := view.ValueString(column); ok {
			return v
		}
	}
	return ""
}

func (e *Exporter) datasetColumns(ctx context.Context, dataset *database.Dataset) ([]string, error) {
	headers, err := dataset.HeaderNames()
	if err != nil {
		return nil, err
	}

	config, err := e.repo.GetColumnConfig(ctx, dataset.Id.String())
	if err != nil {
		return nil, err
	}

	columns := append([]string{}, headers...)
	seen := make(map[string]bool, len(headers))
	for _, h := range headers {
		seen[h] = true
	}
	for _, c := range config {
		if c.Visible && !seen[c.FieldId] {
			seen[c.FieldId] = true
			columns = append(columns, c.FieldId)
		}
	}
	return columns, nil
}

// ExportDataset writes the header and every row matching opts.Search to w and
// returns the number of rows written. Cache rows are fetched once per chunk,
// for that chunk's rows only.
func (e *Exporter) ExportDataset(ctx context.Context, w io.Writer, datasetId uuid.UUID, opts ExportOptions) (int, error) {
	dataset, err := e.repo.GetDataset(ctx, datasetId)
	if err != nil {
		return 0, err
	}

	columns := opts.Columns
	if len(columns) == 0 {
		if columns, err = e.datasetColumns(ctx, dataset); err != nil {
			return 0, err
		}
	}

	if err := WriteQuotedRecord(w, columns); err != nil {
		return 0, fmt.Errorf("error writing export header: %w", err)
	}

	written := 0
	after := -1
	record := make([]string, len(columns))
	for {
		rows, err := e.repo.RowsAfter(ctx, datasetId, opts.Search, after, e.ChunkSize)
		if err != nil {
			return written, err
		}
		if len(rows) == 0 {
			break
		}

		ids := make([]uuid.UUID, len(rows))
		for i, row := range rows {
			ids[i] = row.Id
		}
		views, err := e.cache.GetSubjectsView(ctx, ids)
		if err != nil {
			return written, err
		}

		for _, row := range rows {
			for i, column := range columns {
				record[i] = cellValue(row.Data, views[row.Id], column)
			}
			if err := WriteQuotedRecord(w, record); err != nil {
				return written, fmt.Errorf("error writing export row %d: %w", row.RowIndex, err)
			}
			written++
		}

		after = rows[len(rows)-1].RowIndex
		if len(rows) < e.ChunkSize {
			break
		}
	}

	return written, nil
}

var unsafeFileChars = regexp.MustCompile(`[^\pL\pN._ -]+`)

func exportFileName(name string, at time.Time, attempt int) string {
	name = strings.TrimSpace(unsafeFileChars.ReplaceAllString(name, "_"))
	if name == "" {
		name = "export"
	}
	stamp := at.Format("20060102-150405")
	if attempt > 1 {
		return fmt.Sprintf("%s-%s-%d.csv", name, stamp, attempt)
	}
	return fmt.Sprintf("%s-%s.csv", name, stamp)
}

const maxExportNameAttempts = 100

// createExportFile creates a new export file in dir without replacing an
// earlier export that got the same timestamp.
func createExportFile(dir, name string, at time.Time) (*os.File, string, error) {
	for attempt := 1; attempt <= maxExportNameAttempts; attempt++ {
		path := filepath.Join(dir, exportFileName(name, at, attempt))
		file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return file, path, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, "", fmt.Errorf("error creating export file %s: %w", path, err)
		}
	}
	return nil, "", fmt.Errorf("error creating export file for %q in %s: too many exports with the same name", name, dir)
}

// ExportDatasetFile exports into a new file in dir and returns its path. On
// error the partial file is left in place.
func (e *Exporter) ExportDatasetFile(ctx context.Context, dir string, datasetId uuid.UUID, opts ExportOptions) (string, error) {
	dataset, err := e.repo.GetDataset(ctx, datasetId)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return "", fmt.Errorf("error creating export directory %s: %w", dir, err)
	}

	file, path, err := createExportFile(dir, dataset.Name, time.Now())
	if err != nil {
		return "", err
	}
	defer file.Close()

	out := bufio.NewWriter(file)
	rows, err := e.ExportDataset(ctx, out, datasetId, opts)
	if err != nil {
		_ = out.Flush()
		return path, fmt.Errorf("error exporting dataset %s to %s: %w", datasetId, path, err)
	}
	if err := out.Flush(); err != nil {
		return path, fmt.Errorf("error writing export file %s: %w", path, err)
	}
	if err := file.Sync(); err != nil {
		return path, fmt.Errorf("error writing export file %s: %w", path, err)
	}

	slog.Info("exported dataset", "dataset_id", datasetId, "rows", rows, "path", path)
	return path, nil
}

// Document export columns that come from the document record itself.
const (
	ColumnName   = "name"
	ColumnStatus = "status"
)

func documentCell(doc database.Document, view *cache.SubjectView, column string) string {
	switch column {
	case ColumnName:
		return doc.Name
	case ColumnStatus:
		return doc.Status
	}

	if key, ok := strings.CutPrefix(column, database.MetadataField+"."); ok && view != nil && view.Metadata != nil {
		var meta map[string]json.RawMessage
		if err := json.Unmarshal(view.Metadata, &meta); err == nil {
			if v, ok := meta[key]; ok {
				return cache.RenderValue(v)
			}
		}
		return ""
	}

	if view != nil {
		if v, ok := view.ValueString(column); ok {
			return v
		}
	}
	return ""
}

// ExportDocuments writes the merged document view to w. Columns name and
// status come from the document; "metadata.<key>" reads one metadata entry;
// anything else is an analysis field. When columns is empty the name, status
// and the visible root-view columns are used.
func (e *Exporter) ExportDocuments(ctx context.Context, w io.Writer, filter repository.FolderFilter, columns []string) (int, error) {
	if len(columns) == 0 {
		config, err := e.repo.GetColumnConfig(ctx, database.RootScope)
		if err != nil {
			return 0, err
		}
		columns = []string{ColumnName, ColumnStatus}
		for _, c := range config {
			if c.Visible && c.FieldId != ColumnName && c.FieldId != ColumnStatus {
				columns = append(columns, c.FieldId)
			}
		}
	}

	docs, err := e.repo.ListDocuments(ctx, filter)
	if err != nil {
		return 0, err
	}

	if err := WriteQuotedRecord(w, columns); err != nil {
		return 0, fmt.Errorf("error writing export header: %w", err)
	}

	written := 0
	record := make([]string, len(columns))
	for start := 0; start < len(docs); start += e.ChunkSize {
		chunk := docs[start:min(start+e.ChunkSize, len(docs))]

		ids := make([]uuid.UUID, len(chunk))
		for i, doc := range chunk {
			ids[i] = doc.Id
		}
		views, err := e.cache.GetSubjectsView(ctx, ids)
		if err != nil {
			return written, err
		}

		for _, doc := range chunk {
			for i, column := range columns {
				record[i] = documentCell(doc, views[doc.Id], column)
			}
			if err := WriteQuotedRecord(w, record); err != nil {
				return written, fmt.Errorf("error writing export row for %s: %w", doc.Id, err)
			}
			written++
		}
	}

	return written, nil
}
