package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"path/filepath"
	"strings"

	"docsift/internal/cache"
	"docsift/internal/database"
	"docsift/internal/extraction"
	"docsift/internal/repository"
	"docsift/internal/storage"
	"docsift/internal/utils"

	"github.com/google/uuid"
)

var (
	ErrMissingCredential = extraction.ErrMissingCredential
	ErrNoFields          = errors.New("no fields requested")
)

type Request struct {
	Fields          []extraction.FieldRequest
	Model           string
	IncludeMetadata bool
}

type RowOutcome struct {
	RowId uuid.UUID
	View  *cache.SubjectView
	Err   error
}

// Service runs one AI call per subject and records the outcome: document
// status transitions around the call and a cache write on success. The call
// itself is never inside a database transaction.
type Service struct {
	repo         *repository.Repository
	cache        *cache.Store
	extractor    extraction.Extractor
	defaultModel string
}

// NewService accepts a nil extractor; every analysis then fails up front with
// ErrMissingCredential.
func NewService(repo *repository.Repository, cache *cache.Store, extractor extraction.Extractor, defaultModel string) *Service {
	return &Service{repo: repo, cache: cache, extractor: extractor, defaultModel: defaultModel}
}

func (s *Service) DefaultModel() string {
	return s.defaultModel
}

func (s *Service) prepare(req Request, allowMetadata bool) (Request, error) {
	if s.extractor == nil {
		return req, fmt.Errorf("%w: configure an API key in settings", ErrMissingCredential)
	}

	fields := make([]extraction.FieldRequest, 0, len(req.Fields)+1)
	hasMetadata := false
	for _, f := range req.Fields {
		f.Id = strings.TrimSpace(f.Id)
		if f.Id == "" {
			return req, fmt.Errorf("%w: field id must not be empty", repository.ErrInvalidInput)
		}
		if f.Id == database.MetadataField {
			if !allowMetadata {
				continue
			}
			hasMetadata = true
		}
		fields = append(fields, f)
	}
	if allowMetadata && req.IncludeMetadata && !hasMetadata {
		fields = append(fields, extraction.FieldRequest{Id: database.MetadataField})
	}
	if len(fields) == 0 {
		return req, ErrNoFields
	}
	req.Fields = fields

	if req.Model == "" {
		req.Model = s.defaultModel
	}
	return req, nil
}

func (s *Service) store(ctx context.Context, subjectId uuid.UUID, out *extraction.Output, model string) (*cache.SubjectView, error) {
	if _, err := s.cache.BulkUpsertResult(ctx, subjectId, out.Result(), model); err != nil {
		return nil, fmt.Errorf("error saving analysis for %s: %w", subjectId, err)
	}
	return s.cache.GetSubjectView(ctx, subjectId)
}

func mimeType(key string) string {
	ext := strings.ToLower(filepath.Ext(key))
	if ext == ".pdf" {
		return "application/pdf"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}

// AnalyzeDocument moves the document to analyzing, calls the extractor, and on
// success writes the result and marks it completed. On failure the status is
// error and nothing is cached.
func (s *Service) AnalyzeDocument(ctx context.Context, docId uuid.UUID, req Request) (*cache.SubjectView, error) {
	req, err := s.prepare(req, true)
	if err != nil {
		return nil, err
	}

	doc, err := s.repo.GetDocument(ctx, docId)
	if err != nil {
		return nil, err
	}

	if err := s.repo.SetDocumentStatus(ctx, docId, database.DocumentAnalyzing); err != nil {
		return nil, err
	}

	fail := func(err error) (*cache.SubjectView, error) {
		// The status must be reverted even when the request was cancelled.
		if serr := s.repo.SetDocumentStatus(context.WithoutCancel(ctx), docId, database.DocumentError); serr != nil {
			slog.Error("error setting document status", "document_id", docId, "error", serr)
		}
		return nil, err
	}

	data, err := s.repo.Storage().GetObject(ctx, storage.DocumentsBucket, doc.StoragePath)
	if err != nil {
		slog.Error("error reading document file", "document_id", docId, "error", err)
		return fail(fmt.Errorf("error reading document %s: %w", docId, err))
	}

	slog.Info("analyzing document", "document_id", docId, "model", req.Model, "fields", len(req.Fields))
	out, err := s.extractor.Extract(ctx, extraction.Input{
		Name:     doc.Name,
		MimeType: mimeType(doc.StoragePath),
		Data:     data,
	}, req.Fields, req.Model)
	if err != nil {
		slog.Error("document analysis failed", "document_id", docId, "model", req.Model, "error", err)
		return fail(fmt.Errorf("analysis of document %s failed: %w", docId, err))
	}

	view, err := s.store(ctx, docId, out, req.Model)
	if err != nil {
		return fail(err)
	}

	if err := s.repo.SetDocumentStatus(ctx, docId, database.DocumentCompleted); err != nil {
		return nil, err
	}

	slog.Info("document analysis complete", "document_id", docId, "model", req.Model,
		"prompt_tokens", out.Usage.PromptTokens, "response_tokens", out.Usage.ResponseTokens)
	return view, nil
}

// RowText renders a row as "column: value" lines in header order.
func RowText(row database.DatasetRow) string {
	var sb strings.Builder
	for _, key := range row.Data.Keys() {
		value, _ := row.Data.Get(key)
		fmt.Fprintf(&sb, "%s: %s\n", key, value)
	}
	return sb.String()
}

func (s *Service) analyzeRow(ctx context.Context, rowId uuid.UUID, req Request) (*cache.SubjectView, error) {
	row, err := s.repo.GetRow(ctx, rowId)
	if err != nil {
		return nil, err
	}

	out, err := s.extractor.Extract(ctx, extraction.Input{
		Name:     fmt.Sprintf("row %d", row.RowIndex+1),
		MimeType: "text/plain",
		Text:     RowText(*row),
	}, req.Fields, req.Model)
	if err != nil {
		return nil, fmt.Errorf("analysis of row %s failed: %w", rowId, err)
	}

	return s.store(ctx, rowId, out, req.Model)
}

// AnalyzeRow analyzes a single dataset row. Rows have no status column and
// carry no metadata field.
func (s *Service) AnalyzeRow(ctx context.Context, rowId uuid.UUID, req Request) (*cache.SubjectView, error) {
	req, err := s.prepare(req, false)
	if err != nil {
		return nil, err
	}
	return s.analyzeRow(ctx, rowId, req)
}

// AnalyzeRows analyzes rows with up to concurrency calls in flight. A failed
// row does not stop the others; outcomes are returned in input order.
func (s *Service) AnalyzeRows(ctx context.Context, rowIds []uuid.UUID, req Request, concurrency int) ([]RowOutcome, error) {
	req, err := s.prepare(req, false)
	if err != nil {
		return nil, err
	}

	tasks := utils.RunAll(rowIds, concurrency, func(rowId uuid.UUID) (*cache.SubjectView, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return s.analyzeRow(ctx, rowId, req)
	})

	outcomes := make([]RowOutcome, len(tasks))
	failed := 0
	for i, task := range tasks {
		outcomes[i] = RowOutcome{RowId: task.Input, View: task.Result, Err: task.Error}
		if task.Error != nil {
			failed++
			slog.Warn("row analysis failed", "row_id", task.Input, "error", task.Error)
		}
	}

	slog.Info("row analysis complete", "rows", len(rowIds), "failed", failed, "model", req.Model)
	return outcomes, nil
}

// AnalyzeDataset analyzes every row of a dataset, or only rowIds when given.
// Every id in rowIds must be a row of the dataset.
func (s *Service) AnalyzeDataset(ctx context.Context, datasetId uuid.UUID, rowIds []uuid.UUID, req Request, concurrency int) ([]RowOutcome, error) {
	if _, err := s.repo.GetDataset(ctx, datasetId); err != nil {
		return nil, err
	}
	if len(rowIds) > 0 {
		if err := s.repo.CheckRowsInDataset(ctx, datasetId, rowIds); err != nil {
			return nil, err
		}
	} else {
		ids, err := s.repo.RowIds(ctx, datasetId)
		if err != nil {
			return nil, err
		}
		rowIds = ids
	}
	return s.AnalyzeRows(ctx, rowIds, req, concurrency)
}

// SelectModel makes an already cached model the displayed value of a field.
// When the model has no cached value the error names the models that do.
func (s *Service) SelectModel(ctx context.Context, subject database.SubjectRef, fieldId, modelId string) (*cache.SubjectView, error) {
	fieldId = strings.TrimSpace(fieldId)
	if fieldId == "" {
		return nil, fmt.Errorf("%w: field id must not be empty", repository.ErrInvalidInput)
	}
	if fieldId == database.MetadataField && subject.Kind != database.SubjectDocument {
		return nil, fmt.Errorf("%w: only documents carry %s", repository.ErrInvalidInput, database.MetadataField)
	}

	err := s.cache.ActivateModel(ctx, subject.Id, fieldId, modelId)
	if errors.Is(err, cache.ErrNotCached) {
		models, merr := s.cache.CachedModels(ctx, subject.Id, fieldId)
		if merr != nil {
			return nil, merr
		}
		return nil, fmt.Errorf("%w: field %q of %s %s has cached models %v", cache.ErrNotCached, fieldId, subject.Kind, subject.Id, models)
	}
	if err != nil {
		return nil, err
	}

	slog.Info("selected model", "subject_id", subject.Id, "kind", subject.Kind, "field", fieldId, "model", modelId)
	return s.cache.GetSubjectView(ctx, subject.Id)
}
