package repository

import (
	"context"
	"fmt"
	"log/slog"

	"docsift/internal/database"
	"docsift/internal/storage"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type FolderDeleteMode string

const (
	// KeepFiles moves member documents to the root and leaves their analysis.
	KeepFiles FolderDeleteMode = "keep"
	// DeleteAll deletes member documents with their analysis and files.
	DeleteAll FolderDeleteMode = "all"
)

func ParseFolderDeleteMode(s string) (FolderDeleteMode, error) {
	switch FolderDeleteMode(s) {
	case KeepFiles, DeleteAll:
		return FolderDeleteMode(s), nil
	case "":
		return KeepFiles, nil
	}
	return "", fmt.Errorf("%w: unknown folder delete mode %q", ErrInvalidInput, s)
}

func (r *Repository) CreateFolder(ctx context.Context, name string) (*database.Folder, error) {
	name, err := cleanName(name)
	if err != nil {
		return nil, err
	}

	folder := database.Folder{Id: uuid.New(), Name: name, CreationTime: database.Now()}
	if err := r.db.WithContext(ctx).Create(&folder).Error; err != nil {
		return nil, fmt.Errorf("error creating folder: %w", err)
	}
	return &folder, nil
}

func (r *Repository) GetFolder(ctx context.Context, id uuid.UUID) (*database.Folder, error) {
	var folder database.Folder
	if err := r.db.WithContext(ctx).First(&folder, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "folder", id)
	}
	return &folder, nil
}

func (r *Repository) ListFolders(ctx context.Context) ([]database.Folder, error) {
	var folders []database.Folder
	if err := r.db.WithContext(ctx).Order("creation_time ASC, id ASC").Find(&folders).Error; err != nil {
		return nil, fmt.Errorf("error listing folders: %w", err)
	}
	return folders, nil
}

func (r *Repository) RenameFolder(ctx context.Context, id uuid.UUID, name string) error {
	name, err := cleanName(name)
	if err != nil {
		return err
	}
	result := r.db.WithContext(ctx).Model(&database.Folder{}).Where("id = ?", id).Update("name", name)
	if result.Error != nil {
		return fmt.Errorf("error renaming folder %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("folder %s: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteFolder removes a folder. With KeepFiles its documents move to the
// root untouched; with DeleteAll each document is deleted as by
// DeleteDocument.
func (r *Repository) DeleteFolder(ctx context.Context, id uuid.UUID, mode FolderDeleteMode) error {
	if mode != KeepFiles && mode != DeleteAll {
		return fmt.Errorf("%w: unknown folder delete mode %q", ErrInvalidInput, mode)
	}

	var members []database.Document
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var folder database.Folder
		if err := tx.First(&folder, "id = ?", id).Error; err != nil {
			return notFound(err, "folder", id)
		}

		switch mode {
		case KeepFiles:
			if err := tx.Model(&database.Document{}).Where("folder_id = ?", id).Update("folder_id", nil).Error; err != nil {
				return fmt.Errorf("error moving documents out of folder %s: %w", id, err)
			}
		case DeleteAll:
			if err := tx.Where("folder_id = ?", id).Find(&members).Error; err != nil {
				return fmt.Errorf("error listing documents of folder %s: %w", id, err)
			}
			ids := make([]uuid.UUID, 0, len(members))
			for _, doc := range members {
				ids = append(ids, doc.Id)
			}
			if err := r.cache.WithTx(tx).DeleteForSubjects(ctx, ids); err != nil {
				return err
			}
			if err := tx.Where("folder_id = ?", id).Delete(&database.Document{}).Error; err != nil {
				return fmt.Errorf("error deleting documents of folder %s: %w", id, err)
			}
		}

		if err := tx.Delete(&database.Folder{}, "id = ?", id).Error; err != nil {
			return fmt.Errorf("error deleting folder %s: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, doc := range members {
		r.removeFile(ctx, storage.DocumentsBucket, doc.StoragePath)
	}

	slog.Info("deleted folder", "folder_id", id, "mode", mode, "deleted_documents", len(members))
	return nil
}
