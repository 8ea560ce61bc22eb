package api

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"docsift/internal/analysis"
	"docsift/internal/cache"
	"docsift/internal/database"
	"docsift/internal/ingest"
	"docsift/internal/repository"
	"docsift/internal/usage"
	"docsift/pkg/api"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const (
	defaultPageSize = 50
	maxPageSize     = 1000
)

type BackendService struct {
	repo        *repository.Repository
	cache       *cache.Store
	settings    *repository.SettingsStore
	aggregator  *usage.Aggregator
	importer    *ingest.Importer
	exporter    *ingest.Exporter
	analyzer    *analysis.Service
	exportDir   string
	concurrency int
}

func NewBackendService(repo *repository.Repository, store *cache.Store, settings *repository.SettingsStore, analyzer *analysis.Service, exportDir string, exportChunkSize, concurrency int) *BackendService {
	return &BackendService{
		repo:        repo,
		cache:       store,
		settings:    settings,
		aggregator:  usage.NewAggregator(repo.DB()),
		importer:    ingest.NewImporter(repo),
		exporter:    ingest.NewExporter(repo, store, exportChunkSize),
		analyzer:    analyzer,
		exportDir:   exportDir,
		concurrency: max(1, concurrency),
	}
}

func (s *BackendService) AddRoutes(r chi.Router) {
	r.Get("/health", RestHandler(func(r *http.Request) (any, error) { return nil, nil }))

	r.Route("/documents", func(r chi.Router) {
		r.Get("/", RestHandler(s.ListDocuments))
		r.Post("/", RestHandler(s.UploadDocuments))
		r.Get("/export", s.ExportDocuments)
		r.Get("/{document_id}", RestHandler(s.GetDocument))
		r.Patch("/{document_id}", RestHandler(s.UpdateDocument))
		r.Delete("/{document_id}", RestHandler(s.DeleteDocument))
		r.Post("/{document_id}/analyze", RestHandler(s.AnalyzeDocument))
	})

	r.Put("/subjects/{subject_id}/fields/{field_id}/model", RestHandler(s.SelectModel))

	r.Route("/folders", func(r chi.Router) {
		r.Get("/", RestHandler(s.ListFolders))
		r.Post("/", RestHandler(s.CreateFolder))
		r.Patch("/{folder_id}", RestHandler(s.RenameFolder))
		r.Delete("/{folder_id}", RestHandler(s.DeleteFolder))
		r.Get("/{folder_id}/stats", RestHandler(s.GetFolderStats))
	})

	r.Route("/datasets", func(r chi.Router) {
		r.Get("/", RestHandler(s.ListDatasets))
		r.Post("/", RestHandler(s.ImportDatasets))
		r.Get("/{dataset_id}", RestHandler(s.GetDataset))
		r.Patch("/{dataset_id}", RestHandler(s.RenameDataset))
		r.Delete("/{dataset_id}", RestHandler(s.DeleteDataset))
		r.Get("/{dataset_id}/rows", RestHandler(s.ListRows))
		r.Put("/{dataset_id}/rows/{row_id}", RestHandler(s.UpdateRow))
		r.Post("/{dataset_id}/rows/analyze", RestHandler(s.AnalyzeRows))
		r.Get("/{dataset_id}/stats", RestHandler(s.GetDatasetStats))
		r.Post("/{dataset_id}/export", RestHandler(s.ExportDataset))
	})

	r.Route("/custom-fields", func(r chi.Router) {
		r.Get("/", RestHandler(s.ListCustomFields))
		r.Post("/", RestHandler(s.CreateCustomField))
		r.Put("/{field_id}", RestHandler(s.UpdateCustomField))
		r.Delete("/{field_id}", RestHandler(s.DeleteCustomField))
	})

	r.Get("/column-configs/{scope}", RestHandler(s.GetColumnConfig))
	r.Put("/column-configs/{scope}", RestHandler(s.SaveColumnConfig))

	r.Get("/usage", RestHandler(s.GetUsage))

	r.Route("/settings", func(r chi.Router) {
		r.Get("/", RestHandler(s.ListSettings))
		r.Put("/{key}", RestHandler(s.SetSetting))
		r.Delete("/{key}", RestHandler(s.DeleteSetting))
	})

	r.Post("/clear", RestHandler(s.ClearAllData))
}

func parseFolderFilter(folder string) (repository.FolderFilter, error) {
	switch folder {
	case "":
		return repository.AllDocuments(), nil
	case database.RootScope:
		return repository.RootDocuments(), nil
	}
	id, err := uuid.Parse(folder)
	if err != nil {
		return repository.FolderFilter{}, CodedErrorf(http.StatusBadRequest, "invalid folder '%s': must be empty, 'root' or a folder id", folder)
	}
	return repository.InFolder(id), nil
}

func (s *BackendService) ListDocuments(r *http.Request) (any, error) {
	params, err := ParseRequestQueryParams[api.ListDocumentsParams](r)
	if err != nil {
		return nil, err
	}
	filter, err := parseFolderFilter(params.Folder)
	if err != nil {
		return nil, err
	}

	ctx := r.Context()

	docs, err := s.repo.ListDocuments(ctx, filter)
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, len(docs))
	for i, doc := range docs {
		ids[i] = doc.Id
	}
	views, err := s.cache.GetSubjectsView(ctx, ids)
	if err != nil {
		return nil, err
	}

	return convertDocuments(docs, views), nil
}

func (s *BackendService) documentWithView(r *http.Request, id uuid.UUID) (api.Document, error) {
	doc, err := s.repo.GetDocument(r.Context(), id)
	if err != nil {
		return api.Document{}, err
	}
	view, err := s.cache.GetSubjectView(r.Context(), id)
	if err != nil {
		return api.Document{}, err
	}
	return convertDocument(*doc, view), nil
}

func (s *BackendService) GetDocument(r *http.Request) (any, error) {
	id, err := URLParamUUID(r, "document_id")
	if err != nil {
		return nil, err
	}
	return s.documentWithView(r, id)
}

func (s *BackendService) UploadDocuments(r *http.Request) (any, error) {
	req, err := ParseRequest[api.UploadDocumentsRequest](r)
	if err != nil {
		return nil, err
	}
	if len(req.SourcePaths) == 0 {
		return nil, CodedErrorf(http.StatusUnprocessableEntity, "no source paths provided")
	}

	ctx := r.Context()

	if req.FolderId != nil {
		if _, err := s.repo.GetFolder(ctx, *req.FolderId); err != nil {
			return nil, err
		}
	}

	results := s.importer.ImportDocuments(ctx, req.SourcePaths, nullUUID(req.FolderId), s.concurrency)
	slog.Info("uploaded documents", "files", len(results), "failed", ingest.Failed(results))
	return convertImportResults(results), nil
}

func (s *BackendService) UpdateDocument(r *http.Request) (any, error) {
	id, err := URLParamUUID(r, "document_id")
	if err != nil {
		return nil, err
	}

	req, err := ParseRequest[api.UpdateDocumentRequest](r)
	if err != nil {
		return nil, err
	}
	if req.ClearFolder && req.FolderId != nil {
		return nil, CodedErrorf(http.StatusBadRequest, "FolderId and ClearFolder are mutually exclusive")
	}

	ctx := r.Context()

	if req.Name != nil {
		if err := s.repo.RenameDocument(ctx, id, *req.Name); err != nil {
			return nil, err
		}
	}
	if req.ClearFolder || req.FolderId != nil {
		if err := s.repo.MoveDocument(ctx, id, nullUUID(req.FolderId)); err != nil {
			return nil, err
		}
	}

	return s.documentWithView(r, id)
}

func (s *BackendService) DeleteDocument(r *http.Request) (any, error) {
	id, err := URLParamUUID(r, "document_id")
	if err != nil {
		return nil, err
	}
	return nil, s.repo.DeleteDocument(r.Context(), id)
}

func analysisRequest(req api.AnalyzeRequest) analysis.Request {
	return analysis.Request{
		Fields:          toFieldRequests(req.Fields),
		Model:           req.Model,
		IncludeMetadata: req.IncludeMetadata,
	}
}

func (s *BackendService) AnalyzeDocument(r *http.Request) (any, error) {
	id, err := URLParamUUID(r, "document_id")
	if err != nil {
		return nil, err
	}

	req, err := ParseRequest[api.AnalyzeRequest](r)
	if err != nil {
		return nil, err
	}

	if _, err := s.analyzer.AnalyzeDocument(r.Context(), id, analysisRequest(req)); err != nil {
		return nil, err
	}

	return s.documentWithView(r, id)
}

func (s *BackendService) exportDocuments(r *http.Request) ([]byte, error) {
	params, err := ParseRequestQueryParams[api.ListDocumentsParams](r)
	if err != nil {
		return nil, err
	}
	filter, err := parseFolderFilter(params.Folder)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if _, err := s.exporter.ExportDocuments(r.Context(), &buf, filter, r.URL.Query()["column"]); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ExportDocuments responds with the merged document view as CSV. Repeated
// "column" query params pick the columns.
func (s *BackendService) ExportDocuments(w http.ResponseWriter, r *http.Request) {
	data, err := s.exportDocuments(r)
	if err != nil {
		code := statusCode(err)
		if code == http.StatusInternalServerError {
			slog.Error("error exporting documents", "error", err)
		}
		http.Error(w, err.Error(), code)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="documents.csv"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		slog.Error("error writing document export", "error", err)
	}
}

func (s *BackendService) SelectModel(r *http.Request) (any, error) {
	subjectId, err := URLParamUUID(r, "subject_id")
	if err != nil {
		return nil, err
	}
	fieldId := chi.URLParam(r, "field_id")

	req, err := ParseRequest[api.SelectModelRequest](r)
	if err != nil {
		return nil, err
	}
	if req.ModelId == "" {
		return nil, CodedErrorf(http.StatusUnprocessableEntity, "ModelId is required")
	}

	ctx := r.Context()
	subject, err := s.repo.ResolveSubject(ctx, subjectId)
	if err != nil {
		return nil, err
	}

	view, err := s.analyzer.SelectModel(ctx, subject, fieldId, req.ModelId)
	if err != nil {
		return nil, err
	}

	switch subject.Kind {
	case database.SubjectDocument:
		doc, err := s.repo.GetDocument(ctx, subject.Id)
		if err != nil {
			return nil, err
		}
		return convertDocument(*doc, view), nil
	default:
		row, err := s.repo.GetRow(ctx, subject.Id)
		if err != nil {
			return nil, err
		}
		return convertRow(*row, view), nil
	}
}

func (s *BackendService) ListFolders(r *http.Request) (any, error) {
	folders, err := s.repo.ListFolders(r.Context())
	if err != nil {
		return nil, err
	}
	return convertFolders(folders), nil
}

func (s *BackendService) CreateFolder(r *http.Request) (any, error) {
	req, err := ParseRequest[api.NameRequest](r)
	if err != nil {
		return nil, err
	}
	folder, err := s.repo.CreateFolder(r.Context(), req.Name)
	if err != nil {
		return nil, err
	}
	return convertFolder(*folder), nil
}

func (s *BackendService) RenameFolder(r *http.Request) (any, error) {
	id, err := URLParamUUID(r, "folder_id")
	if err != nil {
		return nil, err
	}
	req, err := ParseRequest[api.NameRequest](r)
	if err != nil {
		return nil, err
	}

	ctx := r.Context()
	if err := s.repo.RenameFolder(ctx, id, req.Name); err != nil {
		return nil, err
	}
	folder, err := s.repo.GetFolder(ctx, id)
	if err != nil {
		return nil, err
	}
	return convertFolder(*folder), nil
}

func (s *BackendService) DeleteFolder(r *http.Request) (any, error) {
	id, err := URLParamUUID(r, "folder_id")
	if err != nil {
		return nil, err
	}
	params, err := ParseRequestQueryParams[api.DeleteFolderParams](r)
	if err != nil {
		return nil, err
	}
	mode, err := repository.ParseFolderDeleteMode(params.Mode)
	if err != nil {
		return nil, err
	}
	return nil, s.repo.DeleteFolder(r.Context(), id, mode)
}

func (s *BackendService) GetFolderStats(r *http.Request) (any, error) {
	id, err := URLParamUUID(r, "folder_id")
	if err != nil {
		return nil, err
	}

	ctx := r.Context()
	if _, err := s.repo.GetFolder(ctx, id); err != nil {
		return nil, err
	}
	stats, err := s.aggregator.FolderUsageStats(ctx, id)
	if err != nil {
		return nil, err
	}
	return convertFolderStats(stats), nil
}

func (s *BackendService) ListDatasets(r *http.Request) (any, error) {
	datasets, err := s.repo.ListDatasets(r.Context())
	if err != nil {
		return nil, err
	}
	return convertDatasets(datasets), nil
}

func (s *BackendService) ImportDatasets(r *http.Request) (any, error) {
	req, err := ParseRequest[api.ImportDatasetsRequest](r)
	if err != nil {
		return nil, err
	}
	if len(req.SourcePaths) == 0 {
		return nil, CodedErrorf(http.StatusUnprocessableEntity, "no source paths provided")
	}

	results := s.importer.ImportFiles(r.Context(), req.SourcePaths, s.concurrency)
	slog.Info("imported datasets", "files", len(results), "failed", ingest.Failed(results))
	return convertImportResults(results), nil
}

func (s *BackendService) GetDataset(r *http.Request) (any, error) {
	id, err := URLParamUUID(r, "dataset_id")
	if err != nil {
		return nil, err
	}
	dataset, err := s.repo.GetDataset(r.Context(), id)
	if err != nil {
		return nil, err
	}
	return convertDataset(*dataset), nil
}

func (s *BackendService) RenameDataset(r *http.Request) (any, error) {
	id, err := URLParamUUID(r, "dataset_id")
	if err != nil {
		return nil, err
	}
	req, err := ParseRequest[api.NameRequest](r)
	if err != nil {
		return nil, err
	}

	ctx := r.Context()
	if err := s.repo.RenameDataset(ctx, id, req.Name); err != nil {
		return nil, err
	}
	dataset, err := s.repo.GetDataset(ctx, id)
	if err != nil {
		return nil, err
	}
	return convertDataset(*dataset), nil
}

func (s *BackendService) DeleteDataset(r *http.Request) (any, error) {
	id, err := URLParamUUID(r, "dataset_id")
	if err != nil {
		return nil, err
	}
	return nil, s.repo.DeleteDataset(r.Context(), id)
}

func (s *BackendService) ListRows(r *http.Request) (any, error) {
	id, err := URLParamUUID(r, "dataset_id")
	if err != nil {
		return nil, err
	}
	params, err := ParseRequestQueryParams[api.ListRowsParams](r)
	if err != nil {
		return nil, err
	}
	if params.Page == 0 {
		params.Page = 1
	}
	if params.PageSize == 0 {
		params.PageSize = defaultPageSize
	}
	if params.Page < 1 || params.PageSize < 1 || params.PageSize > maxPageSize {
		return nil, CodedErrorf(http.StatusBadRequest, "page must be at least 1 and pageSize between 1 and %d", maxPageSize)
	}

	ctx := r.Context()

	if _, err := s.repo.GetDataset(ctx, id); err != nil {
		return nil, err
	}

	page, err := s.repo.ListRows(ctx, id, repository.RowQuery{
		Limit:  params.PageSize,
		Offset: (params.Page - 1) * params.PageSize,
		Search: params.Search,
	})
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, len(page.Rows))
	for i, row := range page.Rows {
		ids[i] = row.Id
	}
	views, err := s.cache.GetSubjectsView(ctx, ids)
	if err != nil {
		return nil, err
	}

	return api.RowPage{
		Rows:     convertRows(page.Rows, views),
		Total:    page.Total,
		Page:     params.Page,
		PageSize: params.PageSize,
	}, nil
}

func (s *BackendService) UpdateRow(r *http.Request) (any, error) {
	datasetId, err := URLParamUUID(r, "dataset_id")
	if err != nil {
		return nil, err
	}
	rowId, err := URLParamUUID(r, "row_id")
	if err != nil {
		return nil, err
	}

	req, err := ParseRequest[api.UpdateRowRequest](r)
	if err != nil {
		return nil, err
	}
	var data database.OrderedFields
	if err := json.Unmarshal(req.Data, &data); err != nil {
		return nil, CodedErrorf(http.StatusUnprocessableEntity, "Data must be a JSON object: %w", err)
	}

	ctx := r.Context()

	row, err := s.repo.GetRow(ctx, rowId)
	if err != nil {
		return nil, err
	}
	if row.DatasetId != datasetId {
		return nil, CodedErrorf(http.StatusNotFound, "row %s not found in dataset %s", rowId, datasetId)
	}

	if err := s.repo.UpdateRow(ctx, rowId, data); err != nil {
		return nil, err
	}
	row.Data = data

	view, err := s.cache.GetSubjectView(ctx, rowId)
	if err != nil {
		return nil, err
	}
	return convertRow(*row, view), nil
}

func (s *BackendService) AnalyzeRows(r *http.Request) (any, error) {
	id, err := URLParamUUID(r, "dataset_id")
	if err != nil {
		return nil, err
	}
	req, err := ParseRequest[api.AnalyzeRowsRequest](r)
	if err != nil {
		return nil, err
	}

	outcomes, err := s.analyzer.AnalyzeDataset(r.Context(), id, req.RowIds, analysis.Request{
		Fields: toFieldRequests(req.Fields),
		Model:  req.Model,
	}, s.concurrency)
	if err != nil {
		return nil, err
	}

	res := api.AnalyzeRowsResponse{Results: make([]api.RowAnalysisResult, 0, len(outcomes))}
	for _, outcome := range outcomes {
		result := api.RowAnalysisResult{RowId: outcome.RowId, Analysis: convertView(outcome.View)}
		if outcome.Err != nil {
			result.Error = outcome.Err.Error()
			res.Failed++
		}
		res.Results = append(res.Results, result)
	}
	return res, nil
}

func (s *BackendService) GetDatasetStats(r *http.Request) (any, error) {
	id, err := URLParamUUID(r, "dataset_id")
	if err != nil {
		return nil, err
	}

	ctx := r.Context()
	if _, err := s.repo.GetDataset(ctx, id); err != nil {
		return nil, err
	}
	stats, err := s.aggregator.DatasetUsageStats(ctx, id)
	if err != nil {
		return nil, err
	}
	return convertDatasetStats(stats), nil
}

func (s *BackendService) ExportDataset(r *http.Request) (any, error) {
	id, err := URLParamUUID(r, "dataset_id")
	if err != nil {
		return nil, err
	}
	req, err := ParseRequest[api.ExportRequest](r)
	if err != nil {
		return nil, err
	}

	path, err := s.exporter.ExportDatasetFile(r.Context(), s.exportDir, id, ingest.ExportOptions{
		Search:  req.Search,
		Columns: req.Columns,
	})
	if err != nil {
		return nil, err
	}
	return api.ExportResponse{Path: path}, nil
}

func (s *BackendService) ListCustomFields(r *http.Request) (any, error) {
	fields, err := s.repo.ListCustomFields(r.Context())
	if err != nil {
		return nil, err
	}
	return convertCustomFields(fields), nil
}

func (s *BackendService) CreateCustomField(r *http.Request) (any, error) {
	req, err := ParseRequest[api.CustomFieldRequest](r)
	if err != nil {
		return nil, err
	}
	field, err := s.repo.CreateCustomField(r.Context(), req.Label, req.Prompt)
	if err != nil {
		return nil, err
	}
	return convertCustomField(*field), nil
}

func (s *BackendService) UpdateCustomField(r *http.Request) (any, error) {
	id, err := URLParamUUID(r, "field_id")
	if err != nil {
		return nil, err
	}
	req, err := ParseRequest[api.CustomFieldRequest](r)
	if err != nil {
		return nil, err
	}
	return nil, s.repo.UpdateCustomField(r.Context(), id, req.Label, req.Prompt)
}

func (s *BackendService) DeleteCustomField(r *http.Request) (any, error) {
	id, err := URLParamUUID(r, "field_id")
	if err != nil {
		return nil, err
	}
	return nil, s.repo.DeleteCustomField(r.Context(), id)
}

func (s *BackendService) GetColumnConfig(r *http.Request) (any, error) {
	scope := chi.URLParam(r, "scope")
	columns, err := s.repo.GetColumnConfig(r.Context(), scope)
	if err != nil {
		return nil, err
	}
	return api.ColumnConfig{Scope: scope, Columns: convertColumns(columns)}, nil
}

func (s *BackendService) SaveColumnConfig(r *http.Request) (any, error) {
	scope := chi.URLParam(r, "scope")
	req, err := ParseRequest[api.ColumnConfig](r)
	if err != nil {
		return nil, err
	}
	for _, c := range req.Columns {
		if strings.TrimSpace(c.FieldId) == "" {
			return nil, CodedErrorf(http.StatusUnprocessableEntity, "every column needs a FieldId")
		}
	}
	if err := s.repo.SaveColumnConfig(r.Context(), scope, toColumns(req.Columns)); err != nil {
		return nil, err
	}
	return api.ColumnConfig{Scope: scope, Columns: req.Columns}, nil
}

func (s *BackendService) GetUsage(r *http.Request) (any, error) {
	report, err := s.aggregator.GlobalUsage(r.Context())
	if err != nil {
		return nil, err
	}
	return convertUsageReport(report), nil
}

func (s *BackendService) ListSettings(r *http.Request) (any, error) {
	return s.settings.All(), nil
}

func (s *BackendService) SetSetting(r *http.Request) (any, error) {
	req, err := ParseRequest[api.SettingRequest](r)
	if err != nil {
		return nil, err
	}
	return nil, s.settings.Set(r.Context(), chi.URLParam(r, "key"), req.Value)
}

func (s *BackendService) DeleteSetting(r *http.Request) (any, error) {
	return nil, s.settings.Delete(r.Context(), chi.URLParam(r, "key"))
}

func (s *BackendService) ClearAllData(r *http.Request) (any, error) {
	if err := s.repo.ClearAllData(r.Context()); err != nil {
		return nil, err
	}
	slog.Info("cleared all data")
	return nil, nil
}
