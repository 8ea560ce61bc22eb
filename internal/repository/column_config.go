package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"docsift/internal/database"

	"gorm.io/datatypes"
	"gorm.io/gorm/clause"
)

// Column is one entry of a scope's column layout.
type Column struct {
	FieldId string `json:"fieldId"`
	Label   string `json:"label"`
	Visible bool   `json:"visible"`
	Width   int    `json:"width,omitempty"`
	Prompt  string `json:"prompt,omitempty"`
}

// GetColumnConfig returns the columns saved for scope, or an empty list when
// the scope has none.
func (r *Repository) GetColumnConfig(ctx context.Context, scope string) ([]Column, error) {
	var configs []database.ColumnConfig
	if err := r.db.WithContext(ctx).Where("scope_id = ?", scope).Limit(1).Find(&configs).Error; err != nil {
		return nil, fmt.Errorf("error loading column config %s: %w", scope, err)
	}
	if len(configs) == 0 || len(configs[0].Columns) == 0 {
		return []Column{}, nil
	}

	var columns []Column
	if err := json.Unmarshal(configs[0].Columns, &columns); err != nil {
		return nil, fmt.Errorf("invalid column config %s: %w", scope, err)
	}
	if columns == nil {
		columns = []Column{}
	}
	return columns, nil
}

func (r *Repository) SaveColumnConfig(ctx context.Context, scope string, columns []Column) error {
	scope = strings.TrimSpace(scope)
	if scope == "" {
		return fmt.Errorf("%w: scope must not be empty", ErrInvalidInput)
	}
	if columns == nil {
		columns = []Column{}
	}

	data, err := json.Marshal(columns)
	if err != nil {
		return fmt.Errorf("error encoding column config: %w", err)
	}

	config := database.ColumnConfig{ScopeId: scope, Columns: datatypes.JSON(data), UpdatedAt: database.Now()}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "scope_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"columns", "updated_at"}),
	}).Create(&config).Error; err != nil {
		return fmt.Errorf("error saving column config %s: %w", scope, err)
	}
	return nil
}
