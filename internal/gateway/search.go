package gateway

import (
	"context"
	"strconv"
	"strings"

	"github.com/tinytelemetry/journalgate/internal/metrics"
	"github.com/tinytelemetry/journalgate/internal/model"
)

// SearchParams are the caller-facing search inputs.
type SearchParams struct {
	Query string
	Size  int
}

// SearchResponse is the flat search result returned to callers.
type SearchResponse struct {
	Total int64            `json:"total"`
	Logs  []map[string]any `json:"logs"`
}

// ParseSize reads a size parameter. Missing, malformed or negative values
// fall back to the default; values above max are clamped.
func ParseSize(raw string, max int) int {
	size := model.DefaultSearchSize
	if n, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil && n >= 0 {
		size = n
	}
	if max > 0 && size > max {
		size = max
	}
	return size
}

// BuildQuery translates params into a store query. Both branches return the
// newest documents first; a free-text query ranks by relevance before recency.
func BuildQuery(p SearchParams) model.SearchQuery {
	recent := model.SortField{Field: model.FieldDateTime, Desc: true}
	text := strings.TrimSpace(p.Query)
	if text == "" {
		return model.SearchQuery{
			Size: p.Size,
			Sort: []model.SortField{recent},
		}
	}
	return model.SearchQuery{
		Text:   text,
		Fields: model.SearchFields,
		Size:   p.Size,
		Sort:   []model.SortField{{Field: model.FieldScore, Desc: true}, recent},
	}
}

// Searcher runs searches against one index.
type Searcher struct {
	store   model.DocumentSearcher
	index   string
	metrics *metrics.Metrics
}

// NewSearcher creates a searcher over index. m may be nil.
func NewSearcher(store model.DocumentSearcher, index string, m *metrics.Metrics) *Searcher {
	if m == nil {
		m = metrics.New(nil)
	}
	return &Searcher{store: store, index: index, metrics: m}
}

// Search runs params and reshapes the hits into flat entries: the store id
// under "id" merged with the stored fields.
func (s *Searcher) Search(ctx context.Context, params SearchParams) (*SearchResponse, error) {
	result, err := s.store.Search(ctx, s.index, BuildQuery(params))
	if err != nil {
		s.metrics.SearchRequests.WithLabelValues(metrics.OutcomeError).Inc()
		return nil, err
	}
	s.metrics.SearchRequests.WithLabelValues(metrics.OutcomeOK).Inc()

	resp := &SearchResponse{
		Total: result.Total,
		Logs:  make([]map[string]any, 0, len(result.Hits)),
	}
	for _, hit := range result.Hits {
		entry := make(map[string]any, len(hit.Source)+1)
		entry["id"] = hit.ID
		for k, v := range hit.Source {
			entry[k] = v
		}
		resp.Logs = append(resp.Logs, entry)
	}
	return resp, nil
}
