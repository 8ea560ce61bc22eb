package repository

import (
	"context"
	"fmt"

	"docsift/internal/database"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type RowQuery struct {
	Limit  int
	Offset int
	// Search is a raw substring matched against the serialized row.
	Search string
}

type RowPage struct {
	Rows  []database.DatasetRow
	Total int64
}

func searchRows(q *gorm.DB, search string) *gorm.DB {
	if search == "" {
		return q
	}
	return q.Where(`data LIKE ? ESCAPE '\'`, "%"+database.EscapeLike(search)+"%")
}

func (r *Repository) GetRow(ctx context.Context, id uuid.UUID) (*database.DatasetRow, error) {
	var row database.DatasetRow
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "dataset row", id)
	}
	return &row, nil
}

// UpdateRow replaces the row's fields wholesale. Callers merge edits into the
// full row before calling.
func (r *Repository) UpdateRow(ctx context.Context, id uuid.UUID, data database.OrderedFields) error {
	result := r.db.WithContext(ctx).Model(&database.DatasetRow{}).Where("id = ?", id).Update("data", data)
	if result.Error != nil {
		return fmt.Errorf("error updating dataset row %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("dataset row %s: %w", id, ErrNotFound)
	}
	return nil
}

// ListRows returns one page of a dataset's rows in row order, and the number
// of rows matching the search. A Limit of 0 returns every matching row.
func (r *Repository) ListRows(ctx context.Context, datasetId uuid.UUID, query RowQuery) (*RowPage, error) {
	if query.Limit < 0 || query.Offset < 0 {
		return nil, fmt.Errorf("%w: limit and offset must not be negative", ErrInvalidInput)
	}

	base := func() *gorm.DB {
		return searchRows(r.db.WithContext(ctx).Model(&database.DatasetRow{}).Where("dataset_id = ?", datasetId), query.Search)
	}

	var total int64
	if err := base().Count(&total).Error; err != nil {
		return nil, fmt.Errorf("error counting rows of dataset %s: %w", datasetId, err)
	}

	q := base().Order("row_index ASC")
	if query.Limit > 0 {
		q = q.Limit(query.Limit)
	}
	if query.Offset > 0 {
		q = q.Offset(query.Offset)
	}

	var rows []database.DatasetRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("error listing rows of dataset %s: %w", datasetId, err)
	}

	return &RowPage{Rows: rows, Total: total}, nil
}

// RowsAfter returns up to limit rows with row_index greater than afterIndex,
// in row order. Pass -1 to start from the first row.
func (r *Repository) RowsAfter(ctx context.Context, datasetId uuid.UUID, search string, afterIndex, limit int) ([]database.DatasetRow, error) {
	var rows []database.DatasetRow
	err := searchRows(r.db.WithContext(ctx).Where("dataset_id = ? AND row_index > ?", datasetId, afterIndex), search).
		Order("row_index ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("error listing rows of dataset %s: %w", datasetId, err)
	}
	return rows, nil
}

func (r *Repository) RowIds(ctx context.Context, datasetId uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := r.db.WithContext(ctx).Model(&database.DatasetRow{}).
		Where("dataset_id = ?", datasetId).
		Order("row_index ASC").
		Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("error listing row ids of dataset %s: %w", datasetId, err)
	}
	return ids, nil
}

// CheckRowsInDataset fails with ErrNotFound when any id is not a row of
// datasetId. Ids are checked in batches to bound the IN list.
func (r *Repository) CheckRowsInDataset(ctx context.Context, datasetId uuid.UUID, ids []uuid.UUID) error {
	unique := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		unique[id] = struct{}{}
	}
	distinct := make([]uuid.UUID, 0, len(unique))
	for id := range unique {
		distinct = append(distinct, id)
	}

	for start := 0; start < len(distinct); start += batchSize {
		batch := distinct[start:min(start+batchSize, len(distinct))]

		var found []uuid.UUID
		if err := r.db.WithContext(ctx).Model(&database.DatasetRow{}).
			Where("dataset_id = ? AND id IN ?", datasetId, batch).
			Pluck("id", &found).Error; err != nil {
			return fmt.Errorf("error checking rows of dataset %s: %w", datasetId, err)
		}
		if len(found) == len(batch) {
			continue
		}

		present := make(map[uuid.UUID]struct{}, len(found))
		for _, id := range found {
			present[id] = struct{}{}
		}
		for _, id := range batch {
			if _, ok := present[id]; !ok {
				return fmt.Errorf("dataset row %s in dataset %s: %w", id, datasetId, ErrNotFound)
			}
		}
	}
	return nil
}
