package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/tinytelemetry/journalgate/internal/model"
)

const (
	errTypeIndexExists   = "resource_already_exists_exception"
	errTypeIndexNotFound = "index_not_found_exception"
)

// Config holds Elasticsearch connection settings.
type Config struct {
	Addresses    []string
	Username     string
	Password     string
	QueryTimeout time.Duration
}

// Store implements model.IndexStore on an Elasticsearch cluster. The client
// pools connections and is safe for concurrent use.
type Store struct {
	es           *elasticsearch.Client
	transport    *http.Transport
	QueryTimeout time.Duration
}

var _ model.IndexStore = (*Store)(nil)

// NewStore builds a client for cfg. No request is sent until first use.
func NewStore(cfg Config) (*Store, error) {
	if len(cfg.Addresses) == 0 {
		return nil, errors.New("elastic: no addresses configured")
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: transport,
		// Every store call is attempted exactly once.
		DisableRetry: true,
	})
	if err != nil {
		return nil, fmt.Errorf("elastic: create client: %w", err)
	}

	qt := cfg.QueryTimeout
	if qt <= 0 {
		qt = model.DefaultQueryTimeout
	}
	return &Store{es: es, transport: transport, QueryTimeout: qt}, nil
}

// Close releases idle connections.
func (s *Store) Close() error {
	s.transport.CloseIdleConnections()
	return nil
}

// Ping sends a HEAD / to the cluster.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.QueryTimeout)
	defer cancel()

	res, err := s.es.Ping(s.es.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elastic: ping: %w", err)
	}
	defer drain(res)
	if res.IsError() {
		return fmt.Errorf("elastic: ping: %s", res.Status())
	}
	return nil
}

// CreateIndex creates index with schema's mappings. An existing index is
// reported as model.ErrIndexExists.
func (s *Store) CreateIndex(ctx context.Context, index string, schema model.IndexSchema) error {
	ctx, cancel := context.WithTimeout(ctx, s.QueryTimeout)
	defer cancel()

	body, err := json.Marshal(mappingBody(schema))
	if err != nil {
		return err
	}

	res, err := s.es.Indices.Create(index,
		s.es.Indices.Create.WithContext(ctx),
		s.es.Indices.Create.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return fmt.Errorf("elastic: create index %s: %w", index, err)
	}
	defer drain(res)

	if !res.IsError() {
		return nil
	}
	e := decodeError(res)
	if res.StatusCode == http.StatusBadRequest && e.Type == errTypeIndexExists {
		return model.ErrIndexExists
	}
	return fmt.Errorf("elastic: create index %s: %w", index, e)
}

// IndexDocument writes doc and returns the id assigned by the cluster.
// With refresh set the call waits for the affected shards to refresh.
func (s *Store) IndexDocument(ctx context.Context, index string, doc model.Document, refresh bool) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.QueryTimeout)
	defer cancel()

	body, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}

	opts := []func(*esapi.IndexRequest){s.es.Index.WithContext(ctx)}
	if refresh {
		opts = append(opts, s.es.Index.WithRefresh("true"))
	}
	res, err := s.es.Index(index, bytes.NewReader(body), opts...)
	if err != nil {
		return "", fmt.Errorf("elastic: index document: %w", err)
	}
	defer drain(res)
	if res.IsError() {
		return "", fmt.Errorf("elastic: index document: %w", decodeError(res))
	}

	var out struct {
		ID string `json:"_id"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("elastic: decode index response: %w", err)
	}
	return out.ID, nil
}

// Search translates q into the query DSL and runs it with exact total hits.
func (s *Store) Search(ctx context.Context, index string, q model.SearchQuery) (*model.SearchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.QueryTimeout)
	defer cancel()

	body, err := json.Marshal(searchBody(q))
	if err != nil {
		return nil, err
	}

	res, err := s.es.Search(
		s.es.Search.WithContext(ctx),
		s.es.Search.WithIndex(index),
		s.es.Search.WithBody(bytes.NewReader(body)),
		s.es.Search.WithTrackTotalHits(true),
	)
	if err != nil {
		return nil, fmt.Errorf("elastic: search: %w", err)
	}
	defer drain(res)
	if res.IsError() {
		e := decodeError(res)
		if e.Type == errTypeIndexNotFound {
			return nil, fmt.Errorf("elastic: search: %w: %s", model.ErrIndexNotFound, e.Reason)
		}
		return nil, fmt.Errorf("elastic: search: %w", e)
	}

	var out searchResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("elastic: decode search response: %w", err)
	}

	result := &model.SearchResult{
		Total: out.Hits.Total.Value,
		Hits:  make([]model.SearchHit, 0, len(out.Hits.Hits)),
	}
	for _, h := range out.Hits.Hits {
		hit := model.SearchHit{ID: h.ID, Source: h.Source}
		if h.Score != nil {
			hit.Score = *h.Score
		}
		result.Hits = append(result.Hits, hit)
	}
	return result, nil
}

type searchResponse struct {
	Hits struct {
		Total struct {
			Value int64 `json:"value"`
		} `json:"total"`
		Hits []struct {
			ID     string         `json:"_id"`
			Score  *float64       `json:"_score"`
			Source map[string]any `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func mappingBody(schema model.IndexSchema) map[string]any {
	props := make(map[string]any, len(schema.Fields))
	for _, f := range schema.Fields {
		props[f.Name] = map[string]any{"type": string(f.Type)}
	}
	return map[string]any{
		"mappings": map[string]any{"properties": props},
	}
}

func searchBody(q model.SearchQuery) map[string]any {
	size := q.Size
	if size < 0 {
		size = 0
	}
	body := map[string]any{"size": size}

	if q.MatchAll() {
		body["query"] = map[string]any{"match_all": map[string]any{}}
	} else {
		body["query"] = map[string]any{
			"multi_match": map[string]any{
				"query":  q.Text,
				"fields": q.Fields,
			},
		}
	}

	if len(q.Sort) > 0 {
		sort := make([]map[string]any, 0, len(q.Sort))
		for _, sf := range q.Sort {
			order := "asc"
			if sf.Desc {
				order = "desc"
			}
			sort = append(sort, map[string]any{sf.Field: map[string]any{"order": order}})
		}
		body["sort"] = sort
	}
	return body
}

// Error is an Elasticsearch error response.
type Error struct {
	Status int
	Type   string
	Reason string
}

func (e *Error) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("status %d", e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Reason)
}

func decodeError(res *esapi.Response) *Error {
	e := &Error{Status: res.StatusCode}
	var body struct {
		Error struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err == nil {
		e.Type = body.Error.Type
		e.Reason = body.Error.Reason
	}
	return e
}

func drain(res *esapi.Response) {
	if res == nil || res.Body == nil {
		return
	}
	io.Copy(io.Discard, res.Body)
	res.Body.Close()
}
