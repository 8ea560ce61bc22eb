package migration_0

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Folder struct {
	Id           uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name         string    `gorm:"not null;default:''"`
	CreationTime time.Time
}

type Document struct {
	Id           uuid.UUID     `gorm:"type:uuid;primaryKey"`
	Name         string        `gorm:"not null;default:''"`
	StoragePath  string        `gorm:"not null;default:''"`
	OriginalPath string        `gorm:"not null;default:''"`
	FolderId     uuid.NullUUID `gorm:"type:uuid;index"`
	CreationTime time.Time
	Status       string `gorm:"size:20;not null;default:'uploading'"`
}

type Dataset struct {
	Id           uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name         string    `gorm:"not null;default:''"`
	StoragePath  string    `gorm:"not null;default:''"`
	CreationTime time.Time
	RowCount     int `gorm:"not null;default:0"`
	Headers      datatypes.JSON
}

type DatasetRow struct {
	Id        uuid.UUID `gorm:"type:uuid;primaryKey"`
	DatasetId uuid.UUID `gorm:"type:uuid;not null;index:idx_dataset_rows_order,priority:1"`
	RowIndex  int       `gorm:"not null;index:idx_dataset_rows_order,priority:2"`
	Data      string    `gorm:"type:text;not null;default:'{}'"`
}

type AnalysisCacheEntry struct {
	SubjectId      uuid.UUID      `gorm:"type:uuid;primaryKey"`
	FieldId        string         `gorm:"primaryKey"`
	ModelId        string         `gorm:"primaryKey"`
	Content        datatypes.JSON `gorm:"not null;default:'null'"`
	CapturedAt     time.Time
	PromptTokens   int64 `gorm:"not null;default:0"`
	ResponseTokens int64 `gorm:"not null;default:0"`
	WriteSeq       int64 `gorm:"not null;default:0"`
}

func (AnalysisCacheEntry) TableName() string {
	return "analysis_cache"
}

type ColumnConfig struct {
	ScopeId   string         `gorm:"primaryKey"`
	Columns   datatypes.JSON `gorm:"not null;default:'[]'"`
	UpdatedAt time.Time
}

type CustomField struct {
	Id           uuid.UUID `gorm:"type:uuid;primaryKey"`
	Label        string    `gorm:"not null;default:''"`
	Prompt       string    `gorm:"not null;default:''"`
	CreationTime time.Time
}

type Setting struct {
	Key   string         `gorm:"primaryKey"`
	Value datatypes.JSON `gorm:"not null;default:'null'"`
}

// Migration creates every table that is missing. Tables that already exist,
// including a legacy analysis_cache, are left as they are; later migrations
// inspect and repair them.
func Migration(db *gorm.DB) error {
	tables := []any{
		&Folder{}, &Document{}, &Dataset{}, &DatasetRow{}, &AnalysisCacheEntry{}, &ColumnConfig{}, &CustomField{}, &Setting{},
	}

	for _, table := range tables {
		if db.Migrator().HasTable(table) {
			continue
		}
		if err := db.Migrator().CreateTable(table); err != nil {
			return fmt.Errorf("error creating table for %T: %w", table, err)
		}
		slog.Info("created table", "model", fmt.Sprintf("%T", table))
	}

	return nil
}
