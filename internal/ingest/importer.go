package ingest

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"docsift/internal/database"
	"docsift/internal/repository"
	"docsift/internal/storage"
	"docsift/internal/utils"

	"github.com/google/uuid"
)

// ImportResult is the outcome of importing one file. Exactly one of Dataset,
// Document or Err is set.
type ImportResult struct {
	Path     string
	Dataset  *database.Dataset
	Document *database.Document
	Err      error
}

type Importer struct {
	repo *repository.Repository

	// OnFileDone, when set, is called from the worker goroutines after each
	// file finishes.
	OnFileDone func(ImportResult)
}

func NewImporter(repo *repository.Repository) *Importer {
	return &Importer{repo: repo}
}

// ImportDataset parses a tabular file, copies the source into the datasets
// bucket under the new dataset's id, and stores the dataset with its rows.
func (i *Importer) ImportDataset(ctx context.Context, path string) (*database.Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading %s: %w", path, err)
	}

	base := filepath.Base(path)
	table, err := ParseTable(base, data)
	if err != nil {
		return nil, fmt.Errorf("error parsing %s: %w", base, err)
	}

	id := uuid.New()
	ext := filepath.Ext(base)
	key := id.String() + strings.ToLower(ext)

	if err := i.repo.Storage().PutObject(ctx, storage.DatasetsBucket, key, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("error storing %s: %w", base, err)
	}

	dataset, err := i.repo.CreateDataset(ctx, repository.NewDataset{
		Id:         id,
		Name:       strings.TrimSuffix(base, ext),
		StorageKey: key,
		Headers:    table.Headers,
		Rows:       table.Rows,
	})
	if err != nil {
		if derr := i.repo.Storage().DeleteObject(ctx, storage.DatasetsBucket, key); derr != nil {
			slog.Warn("unable to remove stored dataset source", "key", key, "error", derr)
		}
		return nil, err
	}

	return dataset, nil
}

func (i *Importer) run(paths []string, concurrency int, importFile func(string) (ImportResult, error)) []ImportResult {
	tasks := utils.RunAll(paths, concurrency, func(path string) (ImportResult, error) {
		res, err := importFile(path)
		if err != nil {
			res = ImportResult{Path: path, Err: err}
			slog.Error("import failed", "path", path, "error", err)
		}
		if i.OnFileDone != nil {
			i.OnFileDone(res)
		}
		return res, nil
	})

	results := make([]ImportResult, len(tasks))
	for idx, task := range tasks {
		results[idx] = task.Result
	}
	return results
}

// ImportFiles imports each path as a dataset. Files are independent: one
// failing is recorded in its result and the others continue.
func (i *Importer) ImportFiles(ctx context.Context, paths []string, concurrency int) []ImportResult {
	return i.run(paths, concurrency, func(path string) (ImportResult, error) {
		dataset, err := i.ImportDataset(ctx, path)
		if err != nil {
			return ImportResult{}, err
		}
		return ImportResult{Path: path, Dataset: dataset}, nil
	})
}

// ImportDocuments registers each path as a document in folderId, with the
// same per-file isolation as ImportFiles.
func (i *Importer) ImportDocuments(ctx context.Context, paths []string, folderId uuid.NullUUID, concurrency int) []ImportResult {
	return i.run(paths, concurrency, func(path string) (ImportResult, error) {
		doc, err := i.repo.CreateDocument(ctx, path, folderId)
		if err != nil {
			return ImportResult{}, err
		}
		return ImportResult{Path: path, Document: doc}, nil
	})
}

// Failed counts the results that carry an error.
func Failed(results []ImportResult) int {
	n := 0
	for _, r := range results {
		if r.Err != nil {
			n++
		}
	}
	return n
}
