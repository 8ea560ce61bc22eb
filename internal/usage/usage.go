package usage

import (
	"context"
	"fmt"
	"sort"

	"docsift/internal/cache"
	"docsift/internal/database"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ModelUsage struct {
	ModelId        string
	PromptTokens   int64
	ResponseTokens int64
	EstimatedCost  float64
}

type UsageReport struct {
	ByModel []ModelUsage
	Total   cache.Usage
}

type DatasetStats struct {
	RowCount int64
	// AnalyzedRows counts rows with at least one cache row.
	AnalyzedRows   int64
	PromptTokens   int64
	ResponseTokens int64
	EstimatedCost  float64
	ByModel        []ModelUsage
}

type FolderStats struct {
	DocumentCount     int64
	AnalyzedDocuments int64
	PromptTokens      int64
	ResponseTokens    int64
	EstimatedCost     float64
	ByModel           []ModelUsage
}

// Totals sums a per-model breakdown.
func Totals(byModel []ModelUsage) cache.Usage {
	var total cache.Usage
	for _, m := range byModel {
		total.PromptTokens += m.PromptTokens
		total.ResponseTokens += m.ResponseTokens
		total.EstimatedCost += m.EstimatedCost
	}
	return total
}

// Aggregator computes token and cost rollups from the cache on every call.
type Aggregator struct {
	db *gorm.DB
}

func NewAggregator(db *gorm.DB) *Aggregator {
	return &Aggregator{db: db}
}

type modelSums struct {
	ModelId        string
	PromptTokens   int64
	ResponseTokens int64
}

// byModel groups q's cache rows by model. Cost is priced with the rate of the
// model that produced each row.
func byModel(q *gorm.DB) ([]ModelUsage, error) {
	var sums []modelSums
	if err := q.
		Select("analysis_cache.model_id AS model_id, COALESCE(SUM(analysis_cache.prompt_tokens), 0) AS prompt_tokens, COALESCE(SUM(analysis_cache.response_tokens), 0) AS response_tokens").
		Group("analysis_cache.model_id").
		Scan(&sums).Error; err != nil {
		return nil, err
	}

	out := make([]ModelUsage, 0, len(sums))
	for _, s := range sums {
		out = append(out, ModelUsage{
			ModelId:        s.ModelId,
			PromptTokens:   s.PromptTokens,
			ResponseTokens: s.ResponseTokens,
			EstimatedCost:  cache.EstimateCost(s.ModelId, s.PromptTokens, s.ResponseTokens),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModelId < out[j].ModelId })
	return out, nil
}

func (a *Aggregator) GlobalUsageByModel(ctx context.Context) ([]ModelUsage, error) {
	usage, err := byModel(a.db.WithContext(ctx).Model(&database.AnalysisCacheEntry{}))
	if err != nil {
		return nil, fmt.Errorf("error aggregating usage: %w", err)
	}
	return usage, nil
}

func (a *Aggregator) GlobalUsage(ctx context.Context) (*UsageReport, error) {
	models, err := a.GlobalUsageByModel(ctx)
	if err != nil {
		return nil, err
	}
	return &UsageReport{ByModel: models, Total: Totals(models)}, nil
}

// DatasetUsageStats rolls up the cache rows of a dataset's rows, joined
// through dataset_rows.
func (a *Aggregator) DatasetUsageStats(ctx context.Context, datasetId uuid.UUID) (*DatasetStats, error) {
	db := a.db.WithContext(ctx)
	stats := &DatasetStats{}

	if err := db.Model(&database.DatasetRow{}).Where("dataset_id = ?", datasetId).Count(&stats.RowCount).Error; err != nil {
		return nil, fmt.Errorf("error counting rows of dataset %s: %w", datasetId, err)
	}

	joined := func() *gorm.DB {
		return db.Table("analysis_cache").
			Joins("JOIN dataset_rows ON dataset_rows.id = analysis_cache.subject_id").
			Where("dataset_rows.dataset_id = ?", datasetId)
	}

	if err := joined().Distinct("analysis_cache.subject_id").Count(&stats.AnalyzedRows).Error; err != nil {
		return nil, fmt.Errorf("error counting analyzed rows of dataset %s: %w", datasetId, err)
	}

	models, err := byModel(joined())
	if err != nil {
		return nil, fmt.Errorf("error aggregating usage of dataset %s: %w", datasetId, err)
	}

	total := Totals(models)
	stats.PromptTokens = total.PromptTokens
	stats.ResponseTokens = total.ResponseTokens
	stats.EstimatedCost = total.EstimatedCost
	stats.ByModel = models
	return stats, nil
}

// FolderUsageStats is DatasetUsageStats for the documents of a folder.
func (a *Aggregator) FolderUsageStats(ctx context.Context, folderId uuid.UUID) (*FolderStats, error) {
	db := a.db.WithContext(ctx)
	stats := &FolderStats{}

	if err := db.Model(&database.Document{}).Where("folder_id = ?", folderId).Count(&stats.DocumentCount).Error; err != nil {
		return nil, fmt.Errorf("error counting documents of folder %s: %w", folderId, err)
	}

	joined := func() *gorm.DB {
		return db.Table("analysis_cache").
			Joins("JOIN documents ON documents.id = analysis_cache.subject_id").
			Where("documents.folder_id = ?", folderId)
	}

	if err := joined().Distinct("analysis_cache.subject_id").Count(&stats.AnalyzedDocuments).Error; err != nil {
		return nil, fmt.Errorf("error counting analyzed documents of folder %s: %w", folderId, err)
	}

	models, err := byModel(joined())
	if err != nil {
		return nil, fmt.Errorf("error aggregating usage of folder %s: %w", folderId, err)
	}

	total := Totals(models)
	stats.PromptTokens = total.PromptTokens
	stats.ResponseTokens = total.ResponseTokens
	stats.EstimatedCost = total.EstimatedCost
	stats.ByModel = models
	return stats, nil
}
