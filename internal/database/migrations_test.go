package database_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"docsift/internal/cache"
	"docsift/internal/database"
	"docsift/internal/database/versions/migration_1"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func openDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "db", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close(db) })
	return db
}

func requireCurrentCacheSchema(t *testing.T, db *gorm.DB) {
	t.Helper()

	pk, err := database.CachePrimaryKeyColumns(db)
	require.NoError(t, err)
	assert.Equal(t, []string{"subject_id", "field_id", "model_id"}, pk)

	refs, err := database.CacheReferencesTable(db, "documents")
	require.NoError(t, err)
	assert.False(t, refs)

	for _, column := range []string{"prompt_tokens", "response_tokens", "write_seq"} {
		exists, err := database.HasColumn(db, "analysis_cache", column)
		require.NoError(t, err)
		assert.True(t, exists, column)
	}
}

func TestEnsureSchemaFresh(t *testing.T) {
	db := openDB(t)

	require.NoError(t, database.EnsureSchema(db))
	requireCurrentCacheSchema(t, db)

	for _, model := range []any{
		&database.Folder{}, &database.Document{}, &database.Dataset{}, &database.DatasetRow{},
		&database.AnalysisCacheEntry{}, &database.ColumnConfig{}, &database.CustomField{}, &database.Setting{},
	} {
		assert.True(t, db.Migrator().HasTable(model))
	}
}

func TestEnsureSchemaIsIdempotent(t *testing.T) {
	db := openDB(t)

	require.NoError(t, database.EnsureSchema(db))

	ctx := context.Background()
	store := cache.NewStore(db)
	subject := uuid.New()
	require.NoError(t, store.UpsertField(ctx, subject, "summary", "m", json.RawMessage(`"kept"`), 4, 2))

	require.NoError(t, database.EnsureSchema(db))
	require.NoError(t, database.EnsureSchema(db))
	requireCurrentCacheSchema(t, db)

	entries, err := store.Entries(ctx, subject)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(4), entries[0].PromptTokens)
}

func TestEnsureSchemaRebuildsLegacyCache(t *testing.T) {
	db := openDB(t)

	require.NoError(t, db.Migrator().CreateTable(&database.Document{}))
	require.NoError(t, db.Exec(`CREATE TABLE analysis_cache (
		subject_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		field_id TEXT NOT NULL,
		content TEXT,
		captured_at DATETIME,
		PRIMARY KEY (subject_id, field_id)
	)`).Error)

	docId := uuid.New()
	require.NoError(t, db.Create(&database.Document{Id: docId, Name: "paper.pdf", Status: database.DocumentCompleted, CreationTime: database.Now()}).Error)
	require.NoError(t, db.Exec(`INSERT INTO analysis_cache (subject_id, field_id, content, captured_at) VALUES (?, 'summary', '"old summary"', CURRENT_TIMESTAMP)`, docId).Error)
	require.NoError(t, db.Exec(`INSERT INTO analysis_cache (subject_id, field_id, content) VALUES (?, 'methods', NULL)`, docId).Error)

	rebuild, _, err := migration_1.NeedsRebuild(db)
	require.NoError(t, err)
	require.True(t, rebuild)

	require.NoError(t, database.EnsureSchema(db))
	requireCurrentCacheSchema(t, db)

	ctx := context.Background()
	store := cache.NewStore(db)

	view, err := store.GetSubjectView(ctx, docId)
	require.NoError(t, err)
	assert.Equal(t, "old summary", mustValue(t, view, "summary"))
	assert.Equal(t, migration_1.LegacyModel, view.Models["summary"])
	assert.Equal(t, "", mustValue(t, view, "methods"))

	// Cache rows for subjects that are not documents are accepted now.
	require.NoError(t, store.UpsertField(ctx, uuid.New(), "summary", "m", json.RawMessage(`"row value"`), 1, 1))

	assert.Zero(t, tableCount(t, db, "analysis_cache_legacy"))
}

func tableCount(t *testing.T, db *gorm.DB, name string) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Raw(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&count).Error)
	return count
}

func TestEnsureSchemaFailureLeavesDatabaseUntouched(t *testing.T) {
	db := openDB(t)

	require.NoError(t, db.Exec(`CREATE TABLE analysis_cache (
		subject_id TEXT NOT NULL PRIMARY KEY,
		content TEXT
	)`).Error)
	subject := uuid.New()
	require.NoError(t, db.Exec(`INSERT INTO analysis_cache (subject_id, content) VALUES (?, '"kept"')`, subject).Error)

	require.Error(t, database.EnsureSchema(db))

	pk, err := database.CachePrimaryKeyColumns(db)
	require.NoError(t, err)
	assert.Equal(t, []string{"subject_id"}, pk)

	var content string
	require.NoError(t, db.Raw(`SELECT content FROM analysis_cache WHERE subject_id = ?`, subject).Scan(&content).Error)
	assert.Equal(t, `"kept"`, content)

	for _, table := range []string{"analysis_cache_legacy", "documents", "migrations"} {
		assert.Zero(t, tableCount(t, db, table), table)
	}
}

func TestEnsureSchemaIndexesWriteSeq(t *testing.T) {
	db := openDB(t)
	require.NoError(t, database.EnsureSchema(db))

	var count int64
	require.NoError(t, db.Raw(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND tbl_name = 'analysis_cache' AND name = ?`, database.WriteSeqIndex).Scan(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestEnsureSchemaAddsTokenColumns(t *testing.T) {
	db := openDB(t)

	require.NoError(t, db.Exec(`CREATE TABLE analysis_cache (
		subject_id TEXT NOT NULL,
		field_id TEXT NOT NULL,
		model_id TEXT NOT NULL,
		content TEXT,
		captured_at DATETIME,
		PRIMARY KEY (subject_id, field_id, model_id)
	)`).Error)

	subject := uuid.New()
	require.NoError(t, db.Exec(`INSERT INTO analysis_cache (subject_id, field_id, model_id, content, captured_at) VALUES (?, 'summary', 'gemini-2.5-flash', '"v"', CURRENT_TIMESTAMP)`, subject).Error)

	require.NoError(t, database.EnsureSchema(db))
	requireCurrentCacheSchema(t, db)

	ctx := context.Background()
	store := cache.NewStore(db)
	require.NoError(t, store.UpsertField(ctx, subject, "summary", "gemini-2.5-flash", json.RawMessage(`"v2"`), 10, 3))

	entries, err := store.Entries(ctx, subject)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(10), entries[0].PromptTokens)
	assert.Equal(t, int64(3), entries[0].ResponseTokens)
	assert.JSONEq(t, `"v2"`, string(entries[0].Content))
}

func TestSetDocumentStatus(t *testing.T) {
	db := openDB(t)
	require.NoError(t, database.EnsureSchema(db))

	ctx := context.Background()
	doc := database.Document{Id: uuid.New(), Name: "a.pdf", CreationTime: database.Now()}
	require.NoError(t, db.Create(&doc).Error)

	require.NoError(t, database.SetDocumentStatus(ctx, db, doc.Id, database.DocumentAnalyzing))

	var stored database.Document
	require.NoError(t, db.First(&stored, "id = ?", doc.Id).Error)
	assert.Equal(t, database.DocumentAnalyzing, stored.Status)

	assert.ErrorIs(t, database.SetDocumentStatus(ctx, db, uuid.New(), database.DocumentError), gorm.ErrRecordNotFound)
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `100\% a\_b c\\d`, database.EscapeLike(`100% a_b c\d`))
}

func mustValue(t *testing.T, view *cache.SubjectView, field string) string {
	t.Helper()
	value, ok := view.ValueString(field)
	require.True(t, ok, field)
	return value
}
