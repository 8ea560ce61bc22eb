package migration_1

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"docsift/internal/database/versions/introspect"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	cacheTable  = "analysis_cache"
	legacyTable = "analysis_cache_legacy"

	// LegacyModel tags rows copied from a table that had no model column.
	LegacyModel = "legacy"
)

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
	return cacheTable
}

// Fallbacks for columns the legacy table may not have.
var columnDefaults = []struct {
	name     string
	fallback string
}{
	{"subject_id", ""},
	{"field_id", ""},
	{"model_id", "'" + LegacyModel + "'"},
	{"content", "'null'"},
	{"captured_at", "CURRENT_TIMESTAMP"},
	{"prompt_tokens", "0"},
	{"response_tokens", "0"},
	{"write_seq", "0"},
}

// NeedsRebuild reports whether the cache table is keyed by fewer than
// (subject, field, model) or still declares a foreign key to documents, which
// would reject cache rows for dataset-row subjects.
func NeedsRebuild(db *gorm.DB) (bool, string, error) {
	pk, err := introspect.PrimaryKeyColumns(db, cacheTable)
	if err != nil {
		return false, "", err
	}
	if len(pk) < 3 {
		return true, fmt.Sprintf("primary key has %d columns", len(pk)), nil
	}

	refs, err := introspect.References(db, cacheTable, "documents")
	if err != nil {
		return false, "", err
	}
	if refs {
		return true, "foreign key to documents", nil
	}

	return false, "", nil
}

func Migration(db *gorm.DB) error {
	exists, err := introspect.HasTable(db, cacheTable)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}

	rebuild, reason, err := NeedsRebuild(db)
	if err != nil {
		return fmt.Errorf("error inspecting %s: %w", cacheTable, err)
	}
	if !rebuild {
		return nil
	}

	slog.Info("rebuilding analysis cache table", "reason", reason)

	if err := db.Exec(fmt.Sprintf("ALTER TABLE %s RENAME TO %s", cacheTable, legacyTable)).Error; err != nil {
		return fmt.Errorf("error renaming %s: %w", cacheTable, err)
	}

	if err := db.Migrator().CreateTable(&AnalysisCacheEntry{}); err != nil {
		return fmt.Errorf("error creating new %s: %w", cacheTable, err)
	}

	legacyCols, err := introspect.Columns(db, legacyTable)
	if err != nil {
		return err
	}
	present := make(map[string]bool, len(legacyCols))
	for _, c := range legacyCols {
		present[strings.ToLower(c.Name)] = true
	}

	targets := make([]string, 0, len(columnDefaults))
	sources := make([]string, 0, len(columnDefaults))
	for _, c := range columnDefaults {
		switch {
		case present[c.name] && c.fallback != "":
			sources = append(sources, fmt.Sprintf("COALESCE(%s, %s)", c.name, c.fallback))
		case present[c.name]:
			sources = append(sources, c.name)
		case c.fallback != "":
			sources = append(sources, c.fallback)
		default:
			return fmt.Errorf("legacy %s has no %s column, cannot migrate", cacheTable, c.name)
		}
		targets = append(targets, c.name)
	}

	copySQL := fmt.Sprintf(
		"INSERT OR IGNORE INTO %s (%s) SELECT %s FROM %s",
		cacheTable, strings.Join(targets, ", "), strings.Join(sources, ", "), legacyTable,
	)
	result := db.Exec(copySQL)
	if result.Error != nil {
		return fmt.Errorf("error copying legacy cache rows: %w", result.Error)
	}

	if err := db.Exec(fmt.Sprintf("DROP TABLE %s", legacyTable)).Error; err != nil {
		return fmt.Errorf("error dropping %s: %w", legacyTable, err)
	}

	slog.Info("rebuilt analysis cache table", "copied_rows", result.RowsAffected)
	return nil
}
