package api

import (
	"encoding/json"
	"log/slog"

	"docsift/internal/cache"
	"docsift/internal/database"
	"docsift/internal/extraction"
	"docsift/internal/ingest"
	"docsift/internal/repository"
	"docsift/internal/usage"
	"docsift/pkg/api"

	"github.com/google/uuid"
)

func convertView(v *cache.SubjectView) json.RawMessage {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("error serializing analysis view", "subject_id", v.SubjectId, "error", err)
		return nil
	}
	return data
}

func convertFolder(f database.Folder) api.Folder {
	return api.Folder{Id: f.Id, Name: f.Name, CreationTime: f.CreationTime}
}

func convertFolders(fs []database.Folder) []api.Folder {
	folders := make([]api.Folder, 0, len(fs))
	for _, f := range fs {
		folders = append(folders, convertFolder(f))
	}
	return folders
}

func convertDocument(d database.Document, view *cache.SubjectView) api.Document {
	doc := api.Document{
		Id:           d.Id,
		Name:         d.Name,
		OriginalPath: d.OriginalPath,
		CreationTime: d.CreationTime,
		Status:       d.Status,
		Analysis:     convertView(view),
	}
	if d.FolderId.Valid {
		id := d.FolderId.UUID
		doc.FolderId = &id
	}
	return doc
}

func convertDocuments(ds []database.Document, views map[uuid.UUID]*cache.SubjectView) []api.Document {
	docs := make([]api.Document, 0, len(ds))
	for _, d := range ds {
		docs = append(docs, convertDocument(d, views[d.Id]))
	}
	return docs
}

func convertDataset(d database.Dataset) api.Dataset {
	headers, err := d.HeaderNames()
	if err != nil {
		slog.Error("error decoding dataset headers", "dataset_id", d.Id, "error", err)
	}
	if headers == nil {
		headers = []string{}
	}
	return api.Dataset{
		Id:           d.Id,
		Name:         d.Name,
		CreationTime: d.CreationTime,
		RowCount:     d.RowCount,
		Headers:      headers,
	}
}

func convertDatasets(ds []database.Dataset) []api.Dataset {
	datasets := make([]api.Dataset, 0, len(ds))
	for _, d := range ds {
		datasets = append(datasets, convertDataset(d))
	}
	return datasets
}

func convertRow(r database.DatasetRow, view *cache.SubjectView) api.DatasetRow {
	data, err := json.Marshal(r.Data)
	if err != nil {
		slog.Error("error serializing row", "row_id", r.Id, "error", err)
		data = json.RawMessage("{}")
	}
	return api.DatasetRow{Id: r.Id, RowIndex: r.RowIndex, Data: data, Analysis: convertView(view)}
}

func convertRows(rs []database.DatasetRow, views map[uuid.UUID]*cache.SubjectView) []api.DatasetRow {
	rows := make([]api.DatasetRow, 0, len(rs))
	for _, r := range rs {
		rows = append(rows, convertRow(r, views[r.Id]))
	}
	return rows
}

func convertImportResult(r ingest.ImportResult) api.ImportResult {
	res := api.ImportResult{Path: r.Path}
	if r.Err != nil {
		res.Error = r.Err.Error()
	}
	if r.Document != nil {
		doc := convertDocument(*r.Document, nil)
		res.Document = &doc
	}
	if r.Dataset != nil {
		dataset := convertDataset(*r.Dataset)
		res.Dataset = &dataset
	}
	return res
}

func convertImportResults(rs []ingest.ImportResult) []api.ImportResult {
	results := make([]api.ImportResult, 0, len(rs))
	for _, r := range rs {
		results = append(results, convertImportResult(r))
	}
	return results
}

func convertModelUsage(ms []usage.ModelUsage) []api.ModelUsage {
	out := make([]api.ModelUsage, 0, len(ms))
	for _, m := range ms {
		out = append(out, api.ModelUsage{
			ModelId:        m.ModelId,
			PromptTokens:   m.PromptTokens,
			ResponseTokens: m.ResponseTokens,
			EstimatedCost:  m.EstimatedCost,
		})
	}
	return out
}

func convertUsageReport(r *usage.UsageReport) api.UsageResponse {
	return api.UsageResponse{
		ByModel: convertModelUsage(r.ByModel),
		Total: api.Usage{
			PromptTokens:   r.Total.PromptTokens,
			ResponseTokens: r.Total.ResponseTokens,
			EstimatedCost:  r.Total.EstimatedCost,
		},
	}
}

func convertDatasetStats(s *usage.DatasetStats) api.DatasetStats {
	return api.DatasetStats{
		RowCount:       s.RowCount,
		AnalyzedRows:   s.AnalyzedRows,
		PromptTokens:   s.PromptTokens,
		ResponseTokens: s.ResponseTokens,
		EstimatedCost:  s.EstimatedCost,
		ByModel:        convertModelUsage(s.ByModel),
	}
}

func convertCustomField(f database.CustomField) api.CustomField {
	return api.CustomField{Id: f.Id, Label: f.Label, Prompt: f.Prompt, CreationTime: f.CreationTime}
}

func convertCustomFields(fs []database.CustomField) []api.CustomField {
	fields := make([]api.CustomField, 0, len(fs))
	for _, f := range fs {
		fields = append(fields, convertCustomField(f))
	}
	return fields
}

func convertColumns(cs []repository.Column) []api.Column {
	columns := make([]api.Column, 0, len(cs))
	for _, c := range cs {
		columns = append(columns, api.Column{FieldId: c.FieldId, Label: c.Label, Visible: c.Visible, Width: c.Width, Prompt: c.Prompt})
	}
	return columns
}

func toColumns(cs []api.Column) []repository.Column {
	columns := make([]repository.Column, 0, len(cs))
	for _, c := range cs {
		columns = append(columns, repository.Column{FieldId: c.FieldId, Label: c.Label, Visible: c.Visible, Width: c.Width, Prompt: c.Prompt})
	}
	return columns
}

func convertFolderStats(s *usage.FolderStats) api.FolderStats {
	return api.FolderStats{
		DocumentCount:     s.DocumentCount,
		AnalyzedDocuments: s.AnalyzedDocuments,
		PromptTokens:      s.PromptTokens,
		ResponseTokens:    s.ResponseTokens,
		EstimatedCost:     s.EstimatedCost,
		ByModel:           convertModelUsage(s.ByModel),
	}
}

func toFieldRequests(fs []api.FieldRequest) []extraction.FieldRequest {
	fields := make([]extraction.FieldRequest, 0, len(fs))
	for _, f := range fs {
		fields = append(fields, extraction.FieldRequest{Id: f.Id, Prompt: f.Prompt})
	}
	return fields
}
