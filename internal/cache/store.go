package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"docsift/internal/database"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrInvalidEntry = errors.New("invalid cache entry")
	ErrNotCached    = errors.New("no cached value for this model")
)

// Keeps IN (...) lists well under SQLite's bound-variable limit.
const batchSize = 500

// One statement, so concurrent writers to the same key cannot lose token
// counts. write_seq orders writes for last-write-wins.
const upsertStmt = `
INSERT INTO analysis_cache (subject_id, field_id, model_id, content, captured_at, prompt_tokens, response_tokens, write_seq)
VALUES (?, ?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(write_seq), 0) + 1 FROM analysis_cache))
ON CONFLICT (subject_id, field_id, model_id) DO UPDATE SET
	content = excluded.content,
	captured_at = excluded.captured_at,
	prompt_tokens = analysis_cache.prompt_tokens + excluded.prompt_tokens,
	response_tokens = analysis_cache.response_tokens + excluded.response_tokens,
	write_seq = excluded.write_seq`

const activateStmt = `
UPDATE analysis_cache
SET write_seq = (SELECT COALESCE(MAX(write_seq), 0) + 1 FROM analysis_cache)
WHERE subject_id = ? AND field_id = ? AND model_id = ?`

const writeOrder = "write_seq ASC, captured_at ASC, model_id ASC"

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// WithTx returns a store that runs against an open transaction.
func (s *Store) WithTx(tx *gorm.DB) *Store {
	return &Store{db: tx}
}

func validateEntry(fieldId, modelId string, content json.RawMessage) error {
	if fieldId == "" || modelId == "" {
		return fmt.Errorf("%w: field and model are required", ErrInvalidEntry)
	}
	if fieldId == keyModels || fieldId == keyResponses || fieldId == keyUsage {
		return fmt.Errorf("%w: %q is a reserved field name", ErrInvalidEntry, fieldId)
	}
	if fieldId == database.MetadataField && modelId != database.MetadataModel {
		return fmt.Errorf("%w: metadata must be written by model %q, got %q", ErrInvalidEntry, database.MetadataModel, modelId)
	}
	if len(content) > 0 && !json.Valid(content) {
		return fmt.Errorf("%w: content for field %q is not valid JSON", ErrInvalidEntry, fieldId)
	}
	return nil
}

func upsert(ctx context.Context, db *gorm.DB, subjectId uuid.UUID, fieldId, modelId string, content json.RawMessage, promptTokens, responseTokens int64) error {
	if err := validateEntry(fieldId, modelId, content); err != nil {
		return err
	}
	if len(content) == 0 {
		content = json.RawMessage("null")
	}

	if err := db.WithContext(ctx).Exec(upsertStmt,
		subjectId, fieldId, modelId, string(content), database.Now(), promptTokens, responseTokens,
	).Error; err != nil {
		return fmt.Errorf("error writing cache entry %s/%s/%s: %w", subjectId, fieldId, modelId, err)
	}
	return nil
}

// UpsertField writes one cache entry. Writing an existing (subject, field,
// model) replaces its content and adds the token counts to the stored ones.
func (s *Store) UpsertField(ctx context.Context, subjectId uuid.UUID, fieldId, modelId string, content json.RawMessage, promptTokens, responseTokens int64) error {
	return upsert(ctx, s.db, subjectId, fieldId, modelId, content, promptTokens, responseTokens)
}

// BulkUpsertResult writes one row per (field, model) pair in the result, in
// one transaction. The call's token usage is charged to a single row written
// by defaultModel, so the subject total counts it exactly once at that
// model's rate. It returns the rows written.
func (s *Store) BulkUpsertResult(ctx context.Context, subjectId uuid.UUID, result *Result, defaultModel string) (int, error) {
	if result == nil {
		return 0, nil
	}

	writes := result.writes(defaultModel)
	if len(writes) == 0 {
		if result.Usage != nil && (result.Usage.PromptTokens > 0 || result.Usage.ResponseTokens > 0) {
			slog.Warn("analysis result had usage but no fields, usage not recorded", "subject_id", subjectId,
				"prompt_tokens", result.Usage.PromptTokens, "response_tokens", result.Usage.ResponseTokens)
		}
		return 0, nil
	}

	charged := chargeIndex(writes, defaultModel)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i, w := range writes {
			var promptTokens, responseTokens int64
			if i == charged && result.Usage != nil {
				promptTokens, responseTokens = result.Usage.PromptTokens, result.Usage.ResponseTokens
			}
			if err := upsert(ctx, tx, subjectId, w.fieldId, w.modelId, w.content, promptTokens, responseTokens); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return len(writes), nil
}

// ActivateModel makes an already cached model the active one for a field by
// marking it as the most recent write. Content and token counts are untouched.
func (s *Store) ActivateModel(ctx context.Context, subjectId uuid.UUID, fieldId, modelId string) error {
	result := s.db.WithContext(ctx).Exec(activateStmt, subjectId, fieldId, modelId)
	if result.Error != nil {
		return fmt.Errorf("error activating model %s for %s/%s: %w", modelId, subjectId, fieldId, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s/%s/%s", ErrNotCached, subjectId, fieldId, modelId)
	}
	return nil
}

// Entries returns the raw cache rows of a subject in write order.
func (s *Store) Entries(ctx context.Context, subjectId uuid.UUID) ([]database.AnalysisCacheEntry, error) {
	var entries []database.AnalysisCacheEntry
	if err := s.db.WithContext(ctx).
		Where("subject_id = ?", subjectId).
		Order(writeOrder).
		Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("error listing cache entries for %s: %w", subjectId, err)
	}
	return entries, nil
}

// GetSubjectView reconstructs the merged analysis of one subject. A subject
// with no cache rows yields an empty view.
func (s *Store) GetSubjectView(ctx context.Context, subjectId uuid.UUID) (*SubjectView, error) {
	entries, err := s.Entries(ctx, subjectId)
	if err != nil {
		return nil, err
	}

	view := newSubjectView(subjectId)
	for _, e := range entries {
		view.apply(e)
	}
	return view, nil
}

// GetSubjectsView is the batched GetSubjectView. Cache rows are fetched with
// one IN query per batch and grouped in memory; every requested id has a view
// in the result.
func (s *Store) GetSubjectsView(ctx context.Context, subjectIds []uuid.UUID) (map[uuid.UUID]*SubjectView, error) {
	views := make(map[uuid.UUID]*SubjectView, len(subjectIds))
	for _, id := range subjectIds {
		views[id] = newSubjectView(id)
	}

	for start := 0; start < len(subjectIds); start += batchSize {
		batch := subjectIds[start:min(start+batchSize, len(subjectIds))]

		var entries []database.AnalysisCacheEntry
		if err := s.db.WithContext(ctx).
			Where("subject_id IN ?", batch).
			Order(writeOrder).
			Find(&entries).Error; err != nil {
			return nil, fmt.Errorf("error listing cache entries: %w", err)
		}

		for _, e := range entries {
			if view, ok := views[e.SubjectId]; ok {
				view.apply(e)
			}
		}
	}

	return views, nil
}

func (s *Store) DeleteForSubject(ctx context.Context, subjectId uuid.UUID) error {
	if err := s.db.WithContext(ctx).Where("subject_id = ?", subjectId).Delete(&database.AnalysisCacheEntry{}).Error; err != nil {
		return fmt.Errorf("error deleting cache entries for %s: %w", subjectId, err)
	}
	return nil
}

func (s *Store) DeleteForSubjects(ctx context.Context, subjectIds []uuid.UUID) error {
	for start := 0; start < len(subjectIds); start += batchSize {
		batch := subjectIds[start:min(start+batchSize, len(subjectIds))]
		if err := s.db.WithContext(ctx).Where("subject_id IN ?", batch).Delete(&database.AnalysisCacheEntry{}).Error; err != nil {
			return fmt.Errorf("error deleting cache entries: %w", err)
		}
	}
	return nil
}

// DeleteForDatasetRows removes the cache rows of every row in a dataset
// without loading the row ids.
func (s *Store) DeleteForDatasetRows(ctx context.Context, datasetId uuid.UUID) error {
	if err := s.db.WithContext(ctx).
		Where("subject_id IN (?)", s.db.Model(&database.DatasetRow{}).Select("id").Where("dataset_id = ?", datasetId)).
		Delete(&database.AnalysisCacheEntry{}).Error; err != nil {
		return fmt.Errorf("error deleting cache entries for dataset %s: %w", datasetId, err)
	}
	return nil
}

// CachedModels lists the models with a cached value for a field, most
// recently written last.
func (s *Store) CachedModels(ctx context.Context, subjectId uuid.UUID, fieldId string) ([]string, error) {
	var models []string
	if err := s.db.WithContext(ctx).
		Model(&database.AnalysisCacheEntry{}).
		Where("subject_id = ? AND field_id = ?", subjectId, strings.TrimSpace(fieldId)).
		Order(writeOrder).
		Pluck("model_id", &models).Error; err != nil {
		return nil, fmt.Errorf("error listing cached models: %w", err)
	}
	return models, nil
}
