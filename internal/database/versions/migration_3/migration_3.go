package migration_3

import (
	"fmt"

	"gorm.io/gorm"
)

const WriteSeqIndex = "idx_analysis_cache_write_seq"

// Migration indexes write_seq. Every upsert and activation reads
// MAX(write_seq), which is a full scan without it.
func Migration(db *gorm.DB) error {
	if err := db.Exec(fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON analysis_cache (write_seq)", WriteSeqIndex)).Error; err != nil {
		return fmt.Errorf("error creating %s: %w", WriteSeqIndex, err)
	}
	return nil
}

func Rollback(db *gorm.DB) error {
	if err := db.Exec(fmt.Sprintf("DROP INDEX IF EXISTS %s", WriteSeqIndex)).Error; err != nil {
		return fmt.Errorf("error dropping %s: %w", WriteSeqIndex, err)
	}
	return nil
}
