package repository_test

import (
	"context"
	"encoding/json"
	"testing"

	"docsift/internal/database"
	"docsift/internal/repository"
	"docsift/internal/storage"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestColumnConfig(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	columns, err := e.repo.GetColumnConfig(ctx, database.RootScope)
	require.NoError(t, err)
	assert.Empty(t, columns)

	first := []repository.Column{
		{FieldId: "summary", Label: "Summary", Visible: true, Width: 240, Prompt: "Summarize"},
		{FieldId: "methods", Label: "Methods"},
	}
	require.NoError(t, e.repo.SaveColumnConfig(ctx, database.RootScope, first))

	columns, err = e.repo.GetColumnConfig(ctx, database.RootScope)
	require.NoError(t, err)
	assert.Equal(t, first, columns)

	second := []repository.Column{{FieldId: "methods", Label: "Methods", Visible: true}}
	require.NoError(t, e.repo.SaveColumnConfig(ctx, database.RootScope, second))

	columns, err = e.repo.GetColumnConfig(ctx, database.RootScope)
	require.NoError(t, err)
	assert.Equal(t, second, columns)

	assert.ErrorIs(t, e.repo.SaveColumnConfig(ctx, " ", second), repository.ErrInvalidInput)
}

func TestCustomFields(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	field, err := e.repo.CreateCustomField(ctx, "Sample size", " How many participants? ")
	require.NoError(t, err)
	assert.Equal(t, "How many participants?", field.Prompt)

	require.NoError(t, e.repo.UpdateCustomField(ctx, field.Id, "N", "Participants"))

	fields, err := e.repo.ListCustomFields(ctx)
	require.NoError(t, err)
	require.Len(t, fields, 1)
	assert.Equal(t, "N", fields[0].Label)
	assert.Equal(t, "Participants", fields[0].Prompt)

	require.NoError(t, e.repo.DeleteCustomField(ctx, field.Id))
	assert.ErrorIs(t, e.repo.DeleteCustomField(ctx, field.Id), repository.ErrNotFound)
	assert.ErrorIs(t, e.repo.UpdateCustomField(ctx, uuid.New(), "x", ""), repository.ErrNotFound)
}

func TestSettingsStore(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	settings := repository.NewSettingsStore(e.db)
	require.NoError(t, settings.Load(ctx))

	_, ok := settings.Get("theme")
	assert.False(t, ok)

	require.NoError(t, settings.Set(ctx, "theme", json.RawMessage(`"dark"`)))
	require.NoError(t, settings.Set(ctx, "defaultModel", json.RawMessage(`{"id":"gemini-2.5-pro"}`)))
	require.NoError(t, settings.Set(ctx, "theme", json.RawMessage(`"light"`)))
	assert.ErrorIs(t, settings.Set(ctx, "bad", json.RawMessage(`{`)), repository.ErrInvalidInput)

	reloaded := repository.NewSettingsStore(e.db)
	require.NoError(t, reloaded.Load(ctx))

	theme, ok := reloaded.Get("theme")
	require.True(t, ok)
	assert.JSONEq(t, `"light"`, string(theme))
	assert.Len(t, reloaded.All(), 2)

	require.NoError(t, reloaded.Delete(ctx, "theme"))
	require.NoError(t, settings.Load(ctx))
	_, ok = settings.Get("theme")
	assert.False(t, ok)
}

func TestClearAllData(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	folder, err := e.repo.CreateFolder(ctx, "F")
	require.NoError(t, err)
	doc, err := e.repo.CreateDocument(ctx, writeSource(t, "a.pdf", "x"), uuid.NullUUID{UUID: folder.Id, Valid: true})
	require.NoError(t, err)
	dataset, err := e.repo.CreateDataset(ctx, repository.NewDataset{Name: "d", Headers: []string{"a"}, Rows: [][]string{{"1"}}})
	require.NoError(t, err)
	require.NoError(t, e.cache.UpsertField(ctx, doc.Id, "summary", "m", json.RawMessage(`"v"`), 1, 1))
	_, err = e.repo.CreateCustomField(ctx, "Label", "Prompt")
	require.NoError(t, err)
	require.NoError(t, e.repo.SaveColumnConfig(ctx, database.RootScope, []repository.Column{{FieldId: "summary"}}))
	require.NoError(t, e.repo.SaveColumnConfig(ctx, dataset.Id.String(), []repository.Column{{FieldId: "a"}}))

	settings := repository.NewSettingsStore(e.db)
	require.NoError(t, settings.Set(ctx, "theme", json.RawMessage(`"dark"`)))

	require.NoError(t, e.repo.ClearAllData(ctx))

	docs, err := e.repo.ListDocuments(ctx, repository.AllDocuments())
	require.NoError(t, err)
	assert.Empty(t, docs)
	folders, err := e.repo.ListFolders(ctx)
	require.NoError(t, err)
	assert.Empty(t, folders)
	datasets, err := e.repo.ListDatasets(ctx)
	require.NoError(t, err)
	assert.Empty(t, datasets)
	assert.Zero(t, cacheCount(t, e.db, doc.Id))

	objects, err := e.storage.ListObjects(ctx, storage.DocumentsBucket)
	require.NoError(t, err)
	assert.Empty(t, objects)

	fields, err := e.repo.ListCustomFields(ctx)
	require.NoError(t, err)
	assert.Len(t, fields, 1)

	root, err := e.repo.GetColumnConfig(ctx, database.RootScope)
	require.NoError(t, err)
	assert.Len(t, root, 1)
	scoped, err := e.repo.GetColumnConfig(ctx, dataset.Id.String())
	require.NoError(t, err)
	assert.Empty(t, scoped)

	require.NoError(t, settings.Load(ctx))
	_, ok := settings.Get("theme")
	assert.True(t, ok)
}
