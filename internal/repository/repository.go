package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"docsift/internal/cache"
	"docsift/internal/database"
	"docsift/internal/storage"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
)

// Keeps IN (...) lists and insert batches well under SQLite's bound-variable
// limit.
const batchSize = 500

// Repository owns the subject tables (documents, folders, datasets, rows),
// their managed files, and the cache cascades that go with them.
type Repository struct {
	db      *gorm.DB
	storage storage.Provider
	cache   *cache.Store
}

func New(db *gorm.DB, storage storage.Provider, cache *cache.Store) *Repository {
	return &Repository{db: db, storage: storage, cache: cache}
}

func (r *Repository) DB() *gorm.DB {
	return r.db
}

func (r *Repository) Storage() storage.Provider {
	return r.storage
}

func notFound(err error, kind string, id any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %v: %w", kind, id, ErrNotFound)
	}
	return fmt.Errorf("error loading %s %v: %w", kind, id, err)
}

// ResolveSubject finds the table that owns a cache subject id.
func (r *Repository) ResolveSubject(ctx context.Context, id uuid.UUID) (database.SubjectRef, error) {
	for _, candidate := range []struct {
		model any
		ref   database.SubjectRef
	}{
		{&database.Document{}, database.DocumentRef(id)},
		{&database.DatasetRow{}, database.DatasetRowRef(id)},
	} {
		var count int64
		if err := r.db.WithContext(ctx).Model(candidate.model).Where("id = ?", id).Count(&count).Error; err != nil {
			return database.SubjectRef{}, fmt.Errorf("error resolving subject %s: %w", id, err)
		}
		if count > 0 {
			return candidate.ref, nil
		}
	}
	return database.SubjectRef{}, fmt.Errorf("subject %s: %w", id, ErrNotFound)
}

// removeFile deletes a managed file. Failures are logged and never returned
// since the database record is already gone.
func (r *Repository) removeFile(ctx context.Context, bucket, key string) {
	if key == "" {
		return
	}
	if err := r.storage.DeleteObject(ctx, bucket, key); err != nil {
		slog.Warn("unable to remove managed file", "bucket", bucket, "key", key, "error", err)
	}
}

// ClearAllData removes every subject, its cache rows and the per-scope column
// configs, then empties the managed storage buckets. Settings, custom fields
// and the root column config are kept.
func (r *Repository) ClearAllData(ctx context.Context) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, model := range []any{
			&database.AnalysisCacheEntry{},
			&database.DatasetRow{},
			&database.Dataset{},
			&database.Document{},
			&database.Folder{},
		} {
			if err := tx.Where("1 = 1").Delete(model).Error; err != nil {
				return fmt.Errorf("error clearing %T: %w", model, err)
			}
		}
		if err := tx.Where("scope_id <> ?", database.RootScope).Delete(&database.ColumnConfig{}).Error; err != nil {
			return fmt.Errorf("error clearing column configs: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, bucket := range []string{storage.DocumentsBucket, storage.DatasetsBucket} {
		if err := r.storage.ClearBucket(ctx, bucket); err != nil {
			return err
		}
	}

	slog.Info("cleared all data")
	return nil
}
