package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"docsift/internal/database"
	"docsift/internal/storage"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// NewDataset describes a parsed tabular source ready to be stored.
type NewDataset struct {
	// Id is generated when nil.
	Id         uuid.UUID
	Name       string
	StorageKey string
	Headers    []string
	Rows       [][]string
}

// CreateDataset inserts the dataset and all of its rows in one transaction.
// Each row keeps the header order, and cells missing relative to the headers
// are stored as "".
func (r *Repository) CreateDataset(ctx context.Context, in NewDataset) (*database.Dataset, error) {
	name, err := cleanName(in.Name)
	if err != nil {
		return nil, err
	}
	if len(in.Headers) == 0 {
		return nil, fmt.Errorf("%w: dataset has no columns", ErrInvalidInput)
	}

	headers, err := json.Marshal(in.Headers)
	if err != nil {
		return nil, fmt.Errorf("error encoding dataset headers: %w", err)
	}

	id := in.Id
	if id == uuid.Nil {
		id = uuid.New()
	}

	dataset := database.Dataset{
		Id:           id,
		Name:         name,
		StoragePath:  in.StorageKey,
		CreationTime: database.Now(),
		RowCount:     len(in.Rows),
		Headers:      datatypes.JSON(headers),
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&dataset).Error; err != nil {
			return fmt.Errorf("error creating dataset: %w", err)
		}

		for start := 0; start < len(in.Rows); start += batchSize {
			end := min(start+batchSize, len(in.Rows))
			batch := make([]database.DatasetRow, 0, end-start)
			for i := start; i < end; i++ {
				batch = append(batch, database.DatasetRow{
					Id:        uuid.New(),
					DatasetId: dataset.Id,
					RowIndex:  i,
					Data:      database.NewOrderedFields(in.Headers, in.Rows[i]),
				})
			}
			if err := tx.Create(&batch).Error; err != nil {
				return fmt.Errorf("error inserting dataset rows %d-%d: %w", start, end, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("created dataset", "dataset_id", dataset.Id, "name", dataset.Name, "rows", dataset.RowCount)
	return &dataset, nil
}

func (r *Repository) GetDataset(ctx context.Context, id uuid.UUID) (*database.Dataset, error) {
	var dataset database.Dataset
	if err := r.db.WithContext(ctx).First(&dataset, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "dataset", id)
	}
	return &dataset, nil
}

func (r *Repository) ListDatasets(ctx context.Context) ([]database.Dataset, error) {
	var datasets []database.Dataset
	if err := r.db.WithContext(ctx).Order("creation_time ASC, id ASC").Find(&datasets).Error; err != nil {
		return nil, fmt.Errorf("error listing datasets: %w", err)
	}
	return datasets, nil
}

func (r *Repository) RenameDataset(ctx context.Context, id uuid.UUID, name string) error {
	name, err := cleanName(name)
	if err != nil {
		return err
	}
	result := r.db.WithContext(ctx).Model(&database.Dataset{}).Where("id = ?", id).Update("name", name)
	if result.Error != nil {
		return fmt.Errorf("error renaming dataset %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("dataset %s: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteDataset removes the cache rows of the dataset's rows, the rows, the
// dataset and its column config, then the stored source file.
func (r *Repository) DeleteDataset(ctx context.Context, id uuid.UUID) error {
	var dataset database.Dataset
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&dataset, "id = ?", id).Error; err != nil {
			return notFound(err, "dataset", id)
		}
		if err := r.cache.WithTx(tx).DeleteForDatasetRows(ctx, id); err != nil {
			return err
		}
		if err := tx.Where("dataset_id = ?", id).Delete(&database.DatasetRow{}).Error; err != nil {
			return fmt.Errorf("error deleting rows of dataset %s: %w", id, err)
		}
		if err := tx.Delete(&database.ColumnConfig{}, "scope_id = ?", id.String()).Error; err != nil {
			return fmt.Errorf("error deleting column config of dataset %s: %w", id, err)
		}
		if err := tx.Delete(&database.Dataset{}, "id = ?", id).Error; err != nil {
			return fmt.Errorf("error deleting dataset %s: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.removeFile(ctx, storage.DatasetsBucket, dataset.StoragePath)

	slog.Info("deleted dataset", "dataset_id", id)
	return nil
}
