package migration_2

import (
	"fmt"

	"docsift/internal/database/versions/introspect"

	"gorm.io/gorm"
)

type AnalysisCacheEntry struct {
	PromptTokens   int64 `gorm:"not null;default:0"`
	ResponseTokens int64 `gorm:"not null;default:0"`
	WriteSeq       int64 `gorm:"not null;default:0"`
}

func (AnalysisCacheEntry) TableName() string {
	return "analysis_cache"
}

// Migration adds the token accounting and write ordering columns to cache
// tables that predate them. Existing rows get 0.
func Migration(db *gorm.DB) error {
	for _, column := range []string{"prompt_tokens", "response_tokens", "write_seq"} {
		exists, err := introspect.HasColumn(db, "analysis_cache", column)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if err := db.Migrator().AddColumn(&AnalysisCacheEntry{}, column); err != nil {
			return fmt.Errorf("error adding %s column: %w", column, err)
		}
	}
	return nil
}

func Rollback(db *gorm.DB) error {
	for _, column := range []string{"write_seq", "response_tokens", "prompt_tokens"} {
		if err := db.Migrator().DropColumn(&AnalysisCacheEntry{}, column); err != nil {
			return fmt.Errorf("error dropping %s column: %w", column, err)
		}
	}
	return nil
}
