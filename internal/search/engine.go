// Package search orchestrates similarity search over the incident table:
// filter candidates, embed them with the query in one batch, rank by cosine
// similarity, and map the winners back to their records.
package search

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/moldworks/taisaku/internal/config"
	"github.com/moldworks/taisaku/internal/embedding"
	"github.com/moldworks/taisaku/internal/models"
	"github.com/moldworks/taisaku/internal/ranking"
	"github.com/moldworks/taisaku/pkg/utils"
)

// RecordSource yields the current incident table. A store.Snapshot satisfies
// it; tests use fixed slices.
type RecordSource interface {
	Records(ctx context.Context) ([]models.IncidentRecord, error)
}

// Engine runs similarity search with the given record source and embedder.
type Engine struct {
	source   RecordSource
	embedder embedding.Embedder
	config   *config.SearchConfig
	logger   *zap.Logger
}

// NewEngine creates a search engine with the given dependencies.
func NewEngine(source RecordSource, embedder embedding.Embedder, cfg *config.SearchConfig, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		source:   source,
		embedder: embedder,
		config:   cfg,
		logger:   logger,
	}
}

// Search ranks stored incidents by similarity to the query description.
//
// Candidates are the records matching the equipment filter (all records when
// the filter is blank) minus those with blank descriptions. All candidate
// descriptions and the query text are embedded in a single batch, with the
// query as the final element. No candidates means an empty result and no
// embedding work at all. Results are deterministic for a fixed table: ties
// keep the earlier record.
func (e *Engine) Search(ctx context.Context, query *models.SearchQuery) (*models.SearchResponse, error) {
	startTime := time.Now()
	if query.TopN <= 0 {
		query.TopN = e.config.DefaultTopN
	}
	if max := e.config.MaxTopN; max > 0 && query.TopN > max {
		query.TopN = max
	}
	if err := query.Validate(); err != nil {
		return nil, err
	}

	records, err := e.source.Records(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read records: %w", err)
	}

	var (
		candidates []*models.IncidentRecord
		texts      []string
	)
	for i := range records {
		r := &records[i]
		if !utils.IsBlank(query.Equipment) && r.Equipment != query.Equipment {
			continue
		}
		if utils.IsBlank(r.Description) {
			continue
		}
		candidates = append(candidates, r)
		texts = append(texts, r.Description)
	}

	response := &models.SearchResponse{
		Results:    make([]*models.SearchResult, 0, query.TopN),
		Candidates: len(candidates),
		Query:      query.Query,
	}
	if len(candidates) == 0 {
		response.QueryTime = time.Since(startTime).Milliseconds()
		e.logger.Debug("search with no candidates",
			zap.String("equipment", query.Equipment),
			zap.Int("records", len(records)))
		return response, nil
	}

	// One batch for everything, query last.
	vectors, err := e.embedder.EmbedBatch(ctx, append(texts, query.Query))
	if err != nil {
		return nil, fmt.Errorf("embedding failed: %w", err)
	}
	if len(vectors) != len(texts)+1 {
		return nil, fmt.Errorf("embedding returned %d vectors for %d texts", len(vectors), len(texts)+1)
	}
	queryVec := vectors[len(vectors)-1]

	for _, scored := range ranking.Rank(queryVec, vectors[:len(vectors)-1], query.TopN) {
		response.Results = append(response.Results, &models.SearchResult{
			Record: candidates[scored.Index],
			Score:  scored.Score,
			Rank:   len(response.Results) + 1,
		})
	}
	response.QueryTime = time.Since(startTime).Milliseconds()
	e.logger.Debug("search complete",
		zap.Int("records", len(records)),
		zap.Int("candidates", len(candidates)),
		zap.Int("results", len(response.Results)),
		zap.Int64("query_time_ms", response.QueryTime))
	return response, nil
}
