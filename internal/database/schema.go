package database

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	DocumentUploading string = "uploading"
	DocumentAnalyzing string = "analyzing"
	DocumentCompleted string = "completed"
	DocumentError     string = "error"
)

const (
	// MetadataField holds bibliographic metadata for documents and is always
	// written under MetadataModel.
	MetadataField = "metadata"
	MetadataModel = "system"

	// RootScope keys the column configuration of the top-level document view.
	RootScope = "root"
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
	RowCount     int            `gorm:"not null;default:0"`
	Headers      datatypes.JSON // ordered []string captured at import
}

// HeaderNames decodes the ordered header list captured at import.
func (d Dataset) HeaderNames() ([]string, error) {
	if len(d.Headers) == 0 {
		return nil, nil
	}
	var headers []string
	if err := json.Unmarshal(d.Headers, &headers); err != nil {
		return nil, fmt.Errorf("invalid headers for dataset %s: %w", d.Id, err)
	}
	return headers, nil
}

type DatasetRow struct {
	Id        uuid.UUID     `gorm:"type:uuid;primaryKey"`
	DatasetId uuid.UUID     `gorm:"type:uuid;not null;index:idx_dataset_rows_order,priority:1"`
	RowIndex  int           `gorm:"not null;index:idx_dataset_rows_order,priority:2"`
	Data      OrderedFields `gorm:"type:text;not null;default:'{}'"`
}

// AnalysisCacheEntry is one cached value per (subject, field, model). The
// subject is either a Document or a DatasetRow, so there is intentionally no
// foreign key on SubjectId and deletes must cascade in application code.
type AnalysisCacheEntry struct {
	SubjectId      uuid.UUID      `gorm:"type:uuid;primaryKey"`
	FieldId        string         `gorm:"primaryKey"`
	ModelId        string         `gorm:"primaryKey"`
	Content        datatypes.JSON `gorm:"not null;default:'null'"`
	CapturedAt     time.Time
	PromptTokens   int64 `gorm:"not null;default:0"`
	ResponseTokens int64 `gorm:"not null;default:0"`
	WriteSeq       int64 `gorm:"not null;default:0;index:idx_analysis_cache_write_seq"`
}

func (AnalysisCacheEntry) TableName() string {
	return "analysis_cache"
}

type ColumnConfig struct {
	ScopeId   string         `gorm:"primaryKey"`
	Columns   datatypes.JSON `gorm:"not null;default:'[]'"` // [{"FieldId":"…","Label":"…",…},…]
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

type SubjectKind string

const (
	SubjectDocument   SubjectKind = "document"
	SubjectDatasetRow SubjectKind = "dataset_row"
)

// SubjectRef identifies anything analysis can be cached against. Only Id is
// stored in the cache; Kind tells callers which table owns the subject.
type SubjectRef struct {
	Kind SubjectKind
	Id   uuid.UUID
}

func DocumentRef(id uuid.UUID) SubjectRef {
	return SubjectRef{Kind: SubjectDocument, Id: id}
}

func DatasetRowRef(id uuid.UUID) SubjectRef {
	return SubjectRef{Kind: SubjectDatasetRow, Id: id}
}
