package database

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenSQLite opens (creating if needed) the local database file. The pool is
// limited to one connection: the app is a single writer and SQLite only
// supports one writer at a time anyway.
func OpenSQLite(path string) (*gorm.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return nil, fmt.Errorf("error creating database directory: %w", err)
	}

	dsn := path + "?_busy_timeout=5000&_foreign_keys=on&_journal_mode=WAL"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("error opening database %s: %w", path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("error getting database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	return db, nil
}

func Close(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		slog.Error("error getting database handle", "error", err)
		return
	}
	if err := sqlDB.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}

func SetDocumentStatus(ctx context.Context, txn *gorm.DB, documentId uuid.UUID, status string) error {
	result := txn.WithContext(ctx).Model(&Document{}).Where("id = ?", documentId).Update("status", status)
	if result.Error != nil {
		slog.Error("error updating document status", "document_id", documentId, "status", status, "error", result.Error)
		return fmt.Errorf("error updating document status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// EscapeLike escapes LIKE wildcards so the pattern matches s literally. Use
// with ESCAPE '\'.
func EscapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func Now() time.Time {
	return time.Now().UTC()
}
