package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"docsift/internal/analysis"
	backend "docsift/internal/api"
	"docsift/internal/cache"
	"docsift/internal/database"
	"docsift/internal/extraction"
	"docsift/internal/repository"
	"docsift/internal/storage"
	"docsift/pkg/api"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExtractor struct{}

func (fakeExtractor) Extract(ctx context.Context, in extraction.Input, fields []extraction.FieldRequest, model string) (*extraction.Output, error) {
	out := &extraction.Output{
		Values: map[string]json.RawMessage{},
		Usage:  cache.TokenUsage{PromptTokens: 100, ResponseTokens: 20},
	}
	for _, f := range fields {
		if f.Id == database.MetadataField {
			out.Metadata = json.RawMessage(`{"title": "Trial"}`)
			continue
		}
		value, _ := json.Marshal(model + "/" + f.Id)
		out.Values[f.Id] = value
	}
	return out, nil
}

type testServer struct {
	router    chi.Router
	exportDir string
}

func newServer(t *testing.T, extractor extraction.Extractor) testServer {
	t.Helper()
	root := t.TempDir()

	db, err := database.OpenSQLite(filepath.Join(root, "db", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close(db) })
	require.NoError(t, database.EnsureSchema(db))

	provider, err := storage.NewLocalProvider(filepath.Join(root, "storage"))
	require.NoError(t, err)

	store := cache.NewStore(db)
	repo := repository.New(db, provider, store)
	settings := repository.NewSettingsStore(db)
	require.NoError(t, settings.Load(context.Background()))

	analyzer := analysis.NewService(repo, store, extractor, "gemini-2.5-flash")
	exportDir := filepath.Join(root, "exports")

	service := backend.NewBackendService(repo, store, settings, analyzer, exportDir, 2, 2)
	router := chi.NewRouter()
	service.AddRoutes(router)

	return testServer{router: router, exportDir: exportDir}
}

func (s testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestHealth(t *testing.T) {
	s := newServer(t, fakeExtractor{})
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/health", nil).Code)
}

func TestFolders(t *testing.T) {
	s := newServer(t, fakeExtractor{})

	folder := decode[api.Folder](t, s.do(t, http.MethodPost, "/folders", api.NameRequest{Name: "Trials"}))
	assert.Equal(t, "Trials", folder.Name)

	renamed := decode[api.Folder](t, s.do(t, http.MethodPatch, "/folders/"+folder.Id.String(), api.NameRequest{Name: "RCTs"}))
	assert.Equal(t, "RCTs", renamed.Name)

	folders := decode[[]api.Folder](t, s.do(t, http.MethodGet, "/folders", nil))
	require.Len(t, folders, 1)
	assert.Equal(t, folder.Id, folders[0].Id)

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/folders", api.NameRequest{Name: " "}).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodDelete, "/folders/"+folder.Id.String()+"?mode=purge", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodPatch, "/folders/"+uuid.NewString(), api.NameRequest{Name: "x"}).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodDelete, "/folders/not-a-uuid", nil).Code)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodDelete, "/folders/"+folder.Id.String()+"?mode=keep", nil).Code)
	assert.Empty(t, decode[[]api.Folder](t, s.do(t, http.MethodGet, "/folders", nil)))
}

func TestDocumentLifecycle(t *testing.T) {
	s := newServer(t, fakeExtractor{})

	folder := decode[api.Folder](t, s.do(t, http.MethodPost, "/folders", api.NameRequest{Name: "Trials"}))

	results := decode[[]api.ImportResult](t, s.do(t, http.MethodPost, "/documents", api.UploadDocumentsRequest{
		SourcePaths: []string{writeFile(t, "a.pdf", "%PDF a"), filepath.Join(t.TempDir(), "missing.pdf")},
		FolderId:    &folder.Id,
	}))
	require.Len(t, results, 2)
	require.NotNil(t, results[0].Document)
	assert.Empty(t, results[0].Error)
	assert.Nil(t, results[1].Document)
	assert.NotEmpty(t, results[1].Error)

	docId := results[0].Document.Id
	assert.Equal(t, folder.Id, *results[0].Document.FolderId)

	inFolder := decode[[]api.Document](t, s.do(t, http.MethodGet, "/documents?folder="+folder.Id.String(), nil))
	require.Len(t, inFolder, 1)
	assert.Empty(t, decode[[]api.Document](t, s.do(t, http.MethodGet, "/documents?folder=root", nil)))
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/documents?folder=bogus", nil).Code)

	doc := decode[api.Document](t, s.do(t, http.MethodPost, "/documents/"+docId.String()+"/analyze", api.AnalyzeRequest{
		Fields:          []api.FieldRequest{{Id: "summary", Prompt: "Summarize"}},
		IncludeMetadata: true,
	}))
	assert.Equal(t, database.DocumentCompleted, doc.Status)

	var analysis map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(doc.Analysis, &analysis))
	assert.JSONEq(t, `"gemini-2.5-flash/summary"`, string(analysis["summary"]))
	assert.JSONEq(t, `{"title": "Trial"}`, string(analysis["metadata"]))
	assert.JSONEq(t, `{"summary": "gemini-2.5-flash"}`, string(analysis["_models"]))

	_ = decode[api.Document](t, s.do(t, http.MethodPost, "/documents/"+docId.String()+"/analyze", api.AnalyzeRequest{
		Fields: []api.FieldRequest{{Id: "summary"}},
		Model:  "gemini-2.5-pro",
	}))

	selected := decode[api.Document](t, s.do(t, http.MethodPut,
		"/subjects/"+docId.String()+"/fields/summary/model", api.SelectModelRequest{ModelId: "gemini-2.5-flash"}))
	assert.Equal(t, docId, selected.Id)
	var view map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(selected.Analysis, &view))
	assert.JSONEq(t, `"gemini-2.5-flash/summary"`, string(view["summary"]))
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodPut,
		"/subjects/"+docId.String()+"/fields/summary/model", api.SelectModelRequest{ModelId: "gpt-4o"}).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodPut,
		"/subjects/"+uuid.NewString()+"/fields/summary/model", api.SelectModelRequest{ModelId: "gemini-2.5-flash"}).Code)

	name := "Renamed.pdf"
	updated := decode[api.Document](t, s.do(t, http.MethodPatch, "/documents/"+docId.String(), api.UpdateDocumentRequest{Name: &name, ClearFolder: true}))
	assert.Equal(t, "Renamed.pdf", updated.Name)
	assert.Nil(t, updated.FolderId)

	usage := decode[api.UsageResponse](t, s.do(t, http.MethodGet, "/usage", nil))
	assert.Equal(t, int64(200), usage.Total.PromptTokens)
	assert.Equal(t, int64(40), usage.Total.ResponseTokens)

	rec := s.do(t, http.MethodGet, "/documents/export?column=name&column=summary&column=metadata.title", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "\"name\",\"summary\",\"metadata.title\"\n\"Renamed.pdf\",\"gemini-2.5-flash/summary\",\"Trial\"\n", rec.Body.String())

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodDelete, "/documents/"+docId.String(), nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/documents/"+docId.String(), nil).Code)

	usage = decode[api.UsageResponse](t, s.do(t, http.MethodGet, "/usage", nil))
	assert.Zero(t, usage.Total.PromptTokens)
}

func TestAnalyzeWithoutCredential(t *testing.T) {
	s := newServer(t, nil)

	results := decode[[]api.ImportResult](t, s.do(t, http.MethodPost, "/documents", api.UploadDocumentsRequest{
		SourcePaths: []string{writeFile(t, "a.pdf", "%PDF a")},
	}))
	require.NotNil(t, results[0].Document)

	rec := s.do(t, http.MethodPost, "/documents/"+results[0].Document.Id.String()+"/analyze", api.AnalyzeRequest{
		Fields: []api.FieldRequest{{Id: "summary"}},
	})
	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)
}

func TestDatasets(t *testing.T) {
	s := newServer(t, fakeExtractor{})

	var csv strings.Builder
	csv.WriteString("title,score\n")
	for i := 0; i < 7; i++ {
		csv.WriteString("paper")
		csv.WriteString(string(rune('a' + i)))
		csv.WriteString(",\n")
	}
	csv.WriteString("a&b <x>,9\n")

	results := decode[[]api.ImportResult](t, s.do(t, http.MethodPost, "/datasets", api.ImportDatasetsRequest{
		SourcePaths: []string{writeFile(t, "papers.csv", csv.String()), writeFile(t, "notes.txt", "x")},
	}))
	require.Len(t, results, 2)
	require.NotNil(t, results[0].Dataset)
	assert.NotEmpty(t, results[1].Error)

	dataset := *results[0].Dataset
	assert.Equal(t, "papers", dataset.Name)
	assert.Equal(t, 8, dataset.RowCount)
	assert.Equal(t, []string{"title", "score"}, dataset.Headers)
	base := "/datasets/" + dataset.Id.String()

	page := decode[api.RowPage](t, s.do(t, http.MethodGet, base+"/rows?page=2&pageSize=3", nil))
	assert.Equal(t, int64(8), page.Total)
	require.Len(t, page.Rows, 3)
	assert.Equal(t, 3, page.Rows[0].RowIndex)

	page = decode[api.RowPage](t, s.do(t, http.MethodGet, base+"/rows?search=a%26b", nil))
	require.Len(t, page.Rows, 1)
	assert.JSONEq(t, `{"title": "a&b <x>", "score": "9"}`, string(page.Rows[0].Data))

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, base+"/rows?page=-1", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/datasets/"+uuid.NewString()+"/rows", nil).Code)

	all := decode[api.RowPage](t, s.do(t, http.MethodGet, base+"/rows?pageSize=100", nil))
	first := all.Rows[0]

	updated := decode[api.DatasetRow](t, s.do(t, http.MethodPut, base+"/rows/"+first.Id.String(), api.UpdateRowRequest{
		Data: json.RawMessage(`{"title": "paper a", "score": "5"}`),
	}))
	assert.JSONEq(t, `{"title": "paper a", "score": "5"}`, string(updated.Data))
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodPut, "/datasets/"+uuid.NewString()+"/rows/"+first.Id.String(), api.UpdateRowRequest{
		Data: json.RawMessage(`{}`),
	}).Code)

	analyzed := decode[api.AnalyzeRowsResponse](t, s.do(t, http.MethodPost, base+"/rows/analyze", api.AnalyzeRowsRequest{
		RowIds: []uuid.UUID{all.Rows[1].Id, all.Rows[2].Id},
		Fields: []api.FieldRequest{{Id: "score"}},
	}))
	assert.Zero(t, analyzed.Failed)
	require.Len(t, analyzed.Results, 2)

	selectedRow := decode[api.DatasetRow](t, s.do(t, http.MethodPut,
		"/subjects/"+all.Rows[1].Id.String()+"/fields/score/model", api.SelectModelRequest{ModelId: "gemini-2.5-flash"}))
	assert.Equal(t, all.Rows[1].Id, selectedRow.Id)
	assert.NotEmpty(t, selectedRow.Analysis)

	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodPost, base+"/rows/analyze", api.AnalyzeRowsRequest{
		RowIds: []uuid.UUID{all.Rows[3].Id, uuid.New()},
		Fields: []api.FieldRequest{{Id: "score"}},
	}).Code)

	stats := decode[api.DatasetStats](t, s.do(t, http.MethodGet, base+"/stats", nil))
	assert.Equal(t, int64(8), stats.RowCount)
	assert.Equal(t, int64(2), stats.AnalyzedRows)
	assert.Equal(t, int64(200), stats.PromptTokens)

	export := decode[api.ExportResponse](t, s.do(t, http.MethodPost, base+"/export", api.ExportRequest{Columns: []string{"title", "score"}}))
	assert.Equal(t, s.exportDir, filepath.Dir(export.Path))
	data, err := os.ReadFile(export.Path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	require.Len(t, lines, 9)
	assert.Equal(t, `"title","score"`, lines[0])
	assert.Equal(t, `"paper a","5"`, lines[1])
	assert.Equal(t, `"paperb","gemini-2.5-flash/score"`, lines[2])
	assert.Equal(t, `"paperd",""`, lines[4])

	renamed := decode[api.Dataset](t, s.do(t, http.MethodPatch, base, api.NameRequest{Name: "Papers 2024"}))
	assert.Equal(t, "Papers 2024", renamed.Name)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodDelete, base, nil).Code)
	assert.Empty(t, decode[[]api.Dataset](t, s.do(t, http.MethodGet, "/datasets", nil)))
	assert.Zero(t, decode[api.UsageResponse](t, s.do(t, http.MethodGet, "/usage", nil)).Total.PromptTokens)
}

func TestCustomFieldsAndColumnConfig(t *testing.T) {
	s := newServer(t, fakeExtractor{})

	field := decode[api.CustomField](t, s.do(t, http.MethodPost, "/custom-fields", api.CustomFieldRequest{Label: "Sample size", Prompt: "Number of participants"}))
	assert.Equal(t, "Sample size", field.Label)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodPut, "/custom-fields/"+field.Id.String(), api.CustomFieldRequest{Label: "N", Prompt: "Participants"}).Code)
	fields := decode[[]api.CustomField](t, s.do(t, http.MethodGet, "/custom-fields", nil))
	require.Len(t, fields, 1)
	assert.Equal(t, "N", fields[0].Label)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodDelete, "/custom-fields/"+field.Id.String(), nil).Code)
	assert.Empty(t, decode[[]api.CustomField](t, s.do(t, http.MethodGet, "/custom-fields", nil)))

	empty := decode[api.ColumnConfig](t, s.do(t, http.MethodGet, "/column-configs/root", nil))
	assert.Empty(t, empty.Columns)

	columns := []api.Column{{FieldId: "summary", Label: "Summary", Visible: true, Width: 240}, {FieldId: "n", Label: "N"}}
	_ = decode[api.ColumnConfig](t, s.do(t, http.MethodPut, "/column-configs/root", api.ColumnConfig{Columns: columns}))
	saved := decode[api.ColumnConfig](t, s.do(t, http.MethodGet, "/column-configs/root", nil))
	assert.Equal(t, "root", saved.Scope)
	assert.Equal(t, columns, saved.Columns)

	assert.Equal(t, http.StatusUnprocessableEntity, s.do(t, http.MethodPut, "/column-configs/root", api.ColumnConfig{Columns: []api.Column{{Label: "x"}}}).Code)
}

func TestSettingsAndClear(t *testing.T) {
	s := newServer(t, fakeExtractor{})

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodPut, "/settings/theme", api.SettingRequest{Value: json.RawMessage(`"dark"`)}).Code)
	settings := decode[map[string]json.RawMessage](t, s.do(t, http.MethodGet, "/settings", nil))
	assert.JSONEq(t, `"dark"`, string(settings["theme"]))

	_ = decode[api.Folder](t, s.do(t, http.MethodPost, "/folders", api.NameRequest{Name: "Trials"}))
	_ = decode[api.CustomField](t, s.do(t, http.MethodPost, "/custom-fields", api.CustomFieldRequest{Label: "N"}))

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/clear", nil).Code)
	assert.Empty(t, decode[[]api.Folder](t, s.do(t, http.MethodGet, "/folders", nil)))
	assert.Len(t, decode[[]api.CustomField](t, s.do(t, http.MethodGet, "/custom-fields", nil)), 1)
	settings = decode[map[string]json.RawMessage](t, s.do(t, http.MethodGet, "/settings", nil))
	assert.Contains(t, settings, "theme")

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodDelete, "/settings/theme", nil).Code)
	assert.Empty(t, decode[map[string]json.RawMessage](t, s.do(t, http.MethodGet, "/settings", nil)))
}
