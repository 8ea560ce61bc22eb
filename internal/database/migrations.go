package database

import (
	"docsift/internal/database/versions/introspect"
	"docsift/internal/database/versions/migration_0"
	"docsift/internal/database/versions/migration_1"
	"docsift/internal/database/versions/migration_2"
	"docsift/internal/database/versions/migration_3"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func GetMigrator(db *gorm.DB) *gormigrate.Gormigrate {
	options := *gormigrate.DefaultOptions
	// All pending migrations commit or roll back together, so a failure leaves
	// the previous schema intact for the next launch.
	options.UseTransaction = true

	// There is deliberately no InitSchema: databases written by older releases
	// have no migrations table, and InitSchema would skip their repairs.
	return gormigrate.New(db, &options, []*gormigrate.Migration{
		{
			ID:      "0",
			Migrate: migration_0.Migration,
		},
		{
			ID:      "1",
			Migrate: migration_1.Migration,
		},
		{
			ID:       "2",
			Migrate:  migration_2.Migration,
			Rollback: migration_2.Rollback,
		},
		{
			ID:       "3",
			Migrate:  migration_3.Migration,
			Rollback: migration_3.Rollback,
		},
	})
}

// EnsureSchema brings the database to the current schema. It is safe to call
// on an empty database and on one that is already current.
func EnsureSchema(db *gorm.DB) error {
	return GetMigrator(db).Migrate()
}

// WriteSeqIndex names the index that keeps MAX(write_seq) from scanning the
// cache table.
const WriteSeqIndex = migration_3.WriteSeqIndex

func CachePrimaryKeyColumns(db *gorm.DB) ([]string, error) {
	return introspect.PrimaryKeyColumns(db, AnalysisCacheEntry{}.TableName())
}

func CacheReferencesTable(db *gorm.DB, table string) (bool, error) {
	return introspect.References(db, AnalysisCacheEntry{}.TableName(), table)
}

func HasColumn(db *gorm.DB, table, column string) (bool, error) {
	return introspect.HasColumn(db, table, column)
}
