package repository

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"docsift/internal/database"
	"docsift/internal/storage"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type folderFilterMode int

const (
	filterAll folderFilterMode = iota
	filterRoot
	filterFolder
)

// FolderFilter selects documents by their containing folder.
type FolderFilter struct {
	mode     folderFilterMode
	folderId uuid.UUID
}

func AllDocuments() FolderFilter { return FolderFilter{mode: filterAll} }

// RootDocuments selects documents that are not in any folder.
func RootDocuments() FolderFilter { return FolderFilter{mode: filterRoot} }

func InFolder(id uuid.UUID) FolderFilter { return FolderFilter{mode: filterFolder, folderId: id} }

func (f FolderFilter) apply(q *gorm.DB) *gorm.DB {
	switch f.mode {
	case filterRoot:
		return q.Where("folder_id IS NULL")
	case filterFolder:
		return q.Where("folder_id = ?", f.folderId)
	default:
		return q
	}
}

func validStatus(status string) bool {
	switch status {
	case database.DocumentUploading, database.DocumentAnalyzing, database.DocumentCompleted, database.DocumentError:
		return true
	}
	return false
}

func cleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: name must not be empty", ErrInvalidInput)
	}
	return name, nil
}

func (r *Repository) requireFolder(tx *gorm.DB, folderId uuid.NullUUID) error {
	if !folderId.Valid {
		return nil
	}
	var count int64
	if err := tx.Model(&database.Folder{}).Where("id = ?", folderId.UUID).Count(&count).Error; err != nil {
		return fmt.Errorf("error checking folder %s: %w", folderId.UUID, err)
	}
	if count == 0 {
		return fmt.Errorf("folder %s: %w", folderId.UUID, ErrNotFound)
	}
	return nil
}

// CreateDocument copies sourcePath into managed storage and registers it. No
// row is written if the copy fails, and the copy is removed if the insert fails.
func (r *Repository) CreateDocument(ctx context.Context, sourcePath string, folderId uuid.NullUUID) (*database.Document, error) {
	if err := r.requireFolder(r.db.WithContext(ctx), folderId); err != nil {
		return nil, err
	}

	id := uuid.New()
	key := id.String() + strings.ToLower(filepath.Ext(sourcePath))

	if err := r.storage.PutFile(ctx, storage.DocumentsBucket, key, sourcePath); err != nil {
		slog.Error("error copying document into storage", "source", sourcePath, "error", err)
		return nil, fmt.Errorf("error storing document %s: %w", sourcePath, err)
	}

	doc := database.Document{
		Id:           id,
		Name:         filepath.Base(sourcePath),
		StoragePath:  key,
		OriginalPath: sourcePath,
		FolderId:     folderId,
		CreationTime: database.Now(),
		Status:       database.DocumentUploading,
	}

	if err := r.db.WithContext(ctx).Create(&doc).Error; err != nil {
		slog.Error("error registering document", "source", sourcePath, "error", err)
		r.removeFile(ctx, storage.DocumentsBucket, key)
		return nil, fmt.Errorf("error registering document %s: %w", sourcePath, err)
	}

	slog.Info("created document", "document_id", doc.Id, "name", doc.Name)
	return &doc, nil
}

func (r *Repository) GetDocument(ctx context.Context, id uuid.UUID) (*database.Document, error) {
	var doc database.Document
	if err := r.db.WithContext(ctx).First(&doc, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "document", id)
	}
	return &doc, nil
}

func (r *Repository) ListDocuments(ctx context.Context, filter FolderFilter) ([]database.Document, error) {
	var docs []database.Document
	if err := filter.apply(r.db.WithContext(ctx)).Order("creation_time ASC, id ASC").Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("error listing documents: %w", err)
	}
	return docs, nil
}

func (r *Repository) RenameDocument(ctx context.Context, id uuid.UUID, name string) error {
	name, err := cleanName(name)
	if err != nil {
		return err
	}
	return r.updateDocument(ctx, id, "name", name)
}

// MoveDocument sets the containing folder. A null folderId moves the document
// to the root.
func (r *Repository) MoveDocument(ctx context.Context, id uuid.UUID, folderId uuid.NullUUID) error {
	if err := r.requireFolder(r.db.WithContext(ctx), folderId); err != nil {
		return err
	}
	return r.updateDocument(ctx, id, "folder_id", folderId)
}

func (r *Repository) SetDocumentStatus(ctx context.Context, id uuid.UUID, status string) error {
	if !validStatus(status) {
		return fmt.Errorf("%w: unknown document status %q", ErrInvalidInput, status)
	}
	if err := database.SetDocumentStatus(ctx, r.db, id, status); err != nil {
		return notFound(err, "document", id)
	}
	return nil
}

func (r *Repository) updateDocument(ctx context.Context, id uuid.UUID, column string, value any) error {
	result := r.db.WithContext(ctx).Model(&database.Document{}).Where("id = ?", id).Update(column, value)
	if result.Error != nil {
		return fmt.Errorf("error updating document %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteDocument removes the document and its cache rows in one transaction,
// then removes the managed file. A missing file is only logged.
func (r *Repository) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	var doc database.Document
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&doc, "id = ?", id).Error; err != nil {
			return notFound(err, "document", id)
		}
		if err := r.cache.WithTx(tx).DeleteForSubject(ctx, id); err != nil {
			return err
		}
		if err := tx.Delete(&database.Document{}, "id = ?", id).Error; err != nil {
			return fmt.Errorf("error deleting document %s: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.removeFile(ctx, storage.DocumentsBucket, doc.StoragePath)

	slog.Info("deleted document", "document_id", id)
	return nil
}
