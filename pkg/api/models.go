package api

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Folder struct {
	Id           uuid.UUID
	Name         string
	CreationTime time.Time
}

type Document struct {
	Id           uuid.UUID
	Name         string
	OriginalPath string
	FolderId     *uuid.UUID
	CreationTime time.Time
	Status       string

	// Analysis is the merged view: one key per field plus "metadata",
	// "_models", "_responses" and "_usage".
	Analysis json.RawMessage `json:"Analysis,omitempty"`
}

type Dataset struct {
	Id           uuid.UUID
	Name         string
	CreationTime time.Time
	RowCount     int
	Headers      []string
}

type DatasetRow struct {
	Id       uuid.UUID
	RowIndex int
	// Data is the original row as an object in header order.
	Data     json.RawMessage
	Analysis json.RawMessage `json:"Analysis,omitempty"`
}

type ListDocumentsParams struct {
	// Folder is empty for all documents, "root" for documents outside any
	// folder, or a folder id.
	Folder string `schema:"folder"`
}

type UploadDocumentsRequest struct {
	SourcePaths []string
	FolderId    *uuid.UUID
}

type ImportDatasetsRequest struct {
	SourcePaths []string
}

// ImportResult reports one file of a batch upload. Error is set when the file
// failed; the rest of the batch is unaffected.
type ImportResult struct {
	Path     string
	Document *Document `json:"Document,omitempty"`
	Dataset  *Dataset  `json:"Dataset,omitempty"`
	Error    string    `json:"Error,omitempty"`
}

type UpdateDocumentRequest struct {
	Name        *string
	FolderId    *uuid.UUID
	ClearFolder bool
}

type NameRequest struct {
	Name string
}

type DeleteFolderParams struct {
	Mode string `schema:"mode"`
}

type FieldRequest struct {
	Id     string
	Prompt string
}

type AnalyzeRequest struct {
	Fields          []FieldRequest
	Model           string
	IncludeMetadata bool
}

type AnalyzeRowsRequest struct {
	// RowIds limits the analysis to these rows. All rows are analyzed when empty.
	RowIds []uuid.UUID
	Fields []FieldRequest
	Model  string
}

type RowAnalysisResult struct {
	RowId    uuid.UUID
	Analysis json.RawMessage `json:"Analysis,omitempty"`
	Error    string          `json:"Error,omitempty"`
}

type AnalyzeRowsResponse struct {
	Results []RowAnalysisResult
	Failed  int
}

type SelectModelRequest struct {
	ModelId string
}

type ListRowsParams struct {
	Page     int    `schema:"page"`
	PageSize int    `schema:"pageSize"`
	Search   string `schema:"search"`
}

type RowPage struct {
	Rows     []DatasetRow
	Total    int64
	Page     int
	PageSize int
}

type UpdateRowRequest struct {
	Data json.RawMessage
}

type ExportRequest struct {
	Search  string
	Columns []string
}

type ExportResponse struct {
	Path string
}

type ModelUsage struct {
	ModelId        string
	PromptTokens   int64
	ResponseTokens int64
	EstimatedCost  float64
}

type Usage struct {
	PromptTokens   int64
	ResponseTokens int64
	EstimatedCost  float64
}

type UsageResponse struct {
	ByModel []ModelUsage
	Total   Usage
}

type DatasetStats struct {
	RowCount       int64
	AnalyzedRows   int64
	PromptTokens   int64
	ResponseTokens int64
	EstimatedCost  float64
	ByModel        []ModelUsage
}

type CustomField struct {
	Id           uuid.UUID
	Label        string
	Prompt       string
	CreationTime time.Time
}

type CustomFieldRequest struct {
	Label  string
	Prompt string
}

type Column struct {
	FieldId string
	Label   string
	Visible bool
	Width   int    `json:"Width,omitempty"`
	Prompt  string `json:"Prompt,omitempty"`
}

type ColumnConfig struct {
	Scope   string
	Columns []Column
}

type SettingRequest struct {
	Value json.RawMessage
}

type FolderStats struct {
	DocumentCount     int64
	AnalyzedDocuments int64
	PromptTokens      int64
	ResponseTokens    int64
	EstimatedCost     float64
	ByModel           []ModelUsage
}
