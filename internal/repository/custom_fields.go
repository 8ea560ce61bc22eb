package repository

import (
	"context"
	"fmt"
	"strings"

	"docsift/internal/database"

	"github.com/google/uuid"
)

func (r *Repository) ListCustomFields(ctx context.Context) ([]database.CustomField, error) {
	var fields []database.CustomField
	if err := r.db.WithContext(ctx).Order("creation_time ASC, id ASC").Find(&fields).Error; err != nil {
		return nil, fmt.Errorf("error listing custom fields: %w", err)
	}
	return fields, nil
}

func (r *Repository) CreateCustomField(ctx context.Context, label, prompt string) (*database.CustomField, error) {
	label, err := cleanName(label)
	if err != nil {
		return nil, err
	}

	field := database.CustomField{Id: uuid.New(), Label: label, Prompt: strings.TrimSpace(prompt), CreationTime: database.Now()}
	if err := r.db.WithContext(ctx).Create(&field).Error; err != nil {
		return nil, fmt.Errorf("error creating custom field: %w", err)
	}
	return &field, nil
}

func (r *Repository) UpdateCustomField(ctx context.Context, id uuid.UUID, label, prompt string) error {
	label, err := cleanName(label)
	if err != nil {
		return err
	}

	result := r.db.WithContext(ctx).Model(&database.CustomField{}).Where("id = ?", id).
		Updates(map[string]any{"label": label, "prompt": strings.TrimSpace(prompt)})
	if result.Error != nil {
		return fmt.Errorf("error updating custom field %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("custom field %s: %w", id, ErrNotFound)
	}
	return nil
}

func (r *Repository) DeleteCustomField(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&database.CustomField{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("error deleting custom field %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("custom field %s: %w", id, ErrNotFound)
	}
	return nil
}
