package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/tinytelemetry/journalgate/internal/duckdb"
	"github.com/tinytelemetry/journalgate/internal/metrics"
	"github.com/tinytelemetry/journalgate/internal/model"
)

// fakeStore is an in-memory model.IndexStore with injectable failures.
type fakeStore struct {
	mu        sync.Mutex
	pingErr   error
	createErr error
	writeErr  error
	searchErr error
	creates   int
	docs      []model.Document
	lastQuery model.SearchQuery
	result    *model.SearchResult
}

func (f *fakeStore) Ping(context.Context) error { return f.pingErr }

func (f *fakeStore) CreateIndex(context.Context, string, model.IndexSchema) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	return f.createErr
}

func (f *fakeStore) IndexDocument(_ context.Context, _ string, doc model.Document, _ bool) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return "", f.writeErr
	}
	f.docs = append(f.docs, doc)
	return "id-1", nil
}

func (f *fakeStore) Search(_ context.Context, _ string, q model.SearchQuery) (*model.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastQuery = q
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if f.result == nil {
		return &model.SearchResult{}, nil
	}
	return f.result, nil
}

func (f *fakeStore) Close() error { return nil }

func newTestMetrics() *metrics.Metrics {
	return metrics.New(prometheus.NewRegistry())
}

func TestCheckConnectivity(t *testing.T) {
	if !CheckConnectivity(context.Background(), &fakeStore{}) {
		t.Error("CheckConnectivity = false for healthy store")
	}
	if CheckConnectivity(context.Background(), &fakeStore{pingErr: errors.New("refused")}) {
		t.Error("CheckConnectivity = true for failing store")
	}
}

func TestEnsureSchema_ExistsIsSuccess(t *testing.T) {
	store := &fakeStore{createErr: model.ErrIndexExists}
	if err := EnsureSchema(context.Background(), store, model.IndexName, model.AppLogsSchema); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
}

func TestEnsureSchema_OtherError(t *testing.T) {
	store := &fakeStore{createErr: errors.New("mapper_parsing_exception")}
	if err := EnsureSchema(context.Background(), store, model.IndexName, model.AppLogsSchema); err == nil {
		t.Fatal("EnsureSchema returned nil for failing create")
	}
}

func TestEnsureSchema_IdempotentOnDuckDB(t *testing.T) {
	store, err := duckdb.NewStore("")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer store.Close()

	for i := 0; i < 2; i++ {
		if err := EnsureSchema(context.Background(), store, model.IndexName, model.AppLogsSchema); err != nil {
			t.Fatalf("EnsureSchema call %d: %v", i+1, err)
		}
	}
}

func TestPrepare_SkipsSchemaWhenDown(t *testing.T) {
	store := &fakeStore{pingErr: errors.New("down")}
	if Prepare(context.Background(), store, model.IndexName, model.AppLogsSchema) {
		t.Error("Prepare = true for unreachable store")
	}
	if store.creates != 0 {
		t.Errorf("CreateIndex called %d times, want 0", store.creates)
	}
}

func TestPrepare_CreatesSchemaWhenUp(t *testing.T) {
	store := &fakeStore{createErr: errors.New("boom")}
	if !Prepare(context.Background(), store, model.IndexName, model.AppLogsSchema) {
		t.Error("Prepare = false for reachable store")
	}
	if store.creates != 1 {
		t.Errorf("CreateIndex called %d times, want 1", store.creates)
	}
}

func TestIngest_StoresNormalizedDocument(t *testing.T) {
	store := &fakeStore{}
	m := newTestMetrics()
	ing := NewIngestor(store, model.IndexName, m)
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	ing.now = func() time.Time { return fixed }

	ack := ing.Ingest(context.Background(), model.RawPayload{"MESSAGE": "disk full", "_PID": "1234"})

	if ack.Status != "success" || ack.Message != AckMessage || !ack.ReceivedAt.Equal(fixed) {
		t.Errorf("ack = %+v", ack)
	}
	if len(store.docs) != 1 {
		t.Fatalf("stored %d docs, want 1", len(store.docs))
	}
	doc := store.docs[0]
	if doc.Message != "disk full" || doc.ProcessIdentifier != "1234" || doc.HostName != model.Unknown {
		t.Errorf("doc = %+v", doc.LogRecord)
	}
	if !doc.DateTime.Equal(fixed) {
		t.Errorf("DateTime = %v, want receipt time %v", doc.DateTime, fixed)
	}
	if got := testutil.ToFloat64(m.IngestRequests.WithLabelValues(metrics.OutcomeStored)); got != 1 {
		t.Errorf("stored counter = %v, want 1", got)
	}
}

func TestIngest_DateTimeFromRealtimeTimestamp(t *testing.T) {
	store := &fakeStore{}
	ing := NewIngestor(store, model.IndexName, newTestMetrics())

	ing.Ingest(context.Background(), model.RawPayload{"__REALTIME_TIMESTAMP": "1705314645123456"})

	doc := store.docs[0]
	want := time.Date(2024, 1, 15, 10, 30, 45, 123456000, time.UTC)
	if !doc.DateTime.Equal(want) {
		t.Errorf("DateTime = %v, want %v", doc.DateTime, want)
	}
	if doc.TimeStamp != "1705314645123456" {
		t.Errorf("TimeStamp = %q, want the opaque source value", doc.TimeStamp)
	}
}

func TestIngest_DateTimeFromNumericTimestamp(t *testing.T) {
	store := &fakeStore{}
	ing := NewIngestor(store, model.IndexName, newTestMetrics())

	// JSON numbers decode as float64.
	ing.Ingest(context.Background(), model.RawPayload{"__REALTIME_TIMESTAMP": float64(1705314645123456)})

	doc := store.docs[0]
	want := time.Date(2024, 1, 15, 10, 30, 45, 123456000, time.UTC)
	if !doc.DateTime.Equal(want) {
		t.Errorf("DateTime = %v, want %v", doc.DateTime, want)
	}
	if doc.TimeStamp != "1705314645123456" {
		t.Errorf("TimeStamp = %q, want the stringified source value", doc.TimeStamp)
	}
}

func TestIngest_WriteFailureStillAcks(t *testing.T) {
	store := &fakeStore{writeErr: errors.New("connection refused")}
	m := newTestMetrics()
	ing := NewIngestor(store, model.IndexName, m)

	ack := ing.Ingest(context.Background(), model.RawPayload{"MESSAGE": "lost"})

	if ack.Status != "success" || ack.ReceivedAt.IsZero() {
		t.Errorf("ack = %+v, want success with timestamp", ack)
	}
	if got := testutil.ToFloat64(m.IngestWriteFailures); got != 1 {
		t.Errorf("write failure counter = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.IngestRequests.WithLabelValues(metrics.OutcomeDropped)); got != 1 {
		t.Errorf("dropped counter = %v, want 1", got)
	}
}

func TestIngest_CancelledCallerStillWrites(t *testing.T) {
	store := &cancelAwareStore{}
	ing := NewIngestor(store, model.IndexName, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ing.Ingest(ctx, model.RawPayload{"MESSAGE": "late"})

	if store.sawCancelled {
		t.Error("store write saw a cancelled context")
	}
}

type cancelAwareStore struct{ sawCancelled bool }

func (c *cancelAwareStore) IndexDocument(ctx context.Context, _ string, _ model.Document, _ bool) (string, error) {
	c.sawCancelled = ctx.Err() != nil
	return "x", nil
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		raw  string
		want int
	}{
		{"", 50},
		{"2", 2},
		{" 7 ", 7},
		{"0", 0},
		{"-1", 50},
		{"abc", 50},
		{"2.5", 50},
		{"20000", 10000},
	}
	for _, tt := range tests {
		if got := ParseSize(tt.raw, model.DefaultMaxSearchSize); got != tt.want {
			t.Errorf("ParseSize(%q) = %d, want %d", tt.raw, got, tt.want)
		}
	}
}

func TestBuildQuery_MatchAll(t *testing.T) {
	q := BuildQuery(SearchParams{Size: 50})
	if !q.MatchAll() {
		t.Fatal("empty query should match all")
	}
	if len(q.Sort) != 1 || q.Sort[0].Field != model.FieldDateTime || !q.Sort[0].Desc {
		t.Errorf("sort = %+v, want dateTime desc", q.Sort)
	}
	if q.Size != 50 {
		t.Errorf("size = %d, want 50", q.Size)
	}
}

func TestBuildQuery_BlankIsMatchAll(t *testing.T) {
	if q := BuildQuery(SearchParams{Query: "   ", Size: 5}); !q.MatchAll() {
		t.Error("blank query should match all")
	}
}

func TestBuildQuery_MultiField(t *testing.T) {
	q := BuildQuery(SearchParams{Query: "sshd", Size: 10})
	if q.Text != "sshd" {
		t.Errorf("text = %q", q.Text)
	}
	if len(q.Fields) != 8 {
		t.Errorf("fields = %v, want 8 fields", q.Fields)
	}
	if len(q.Sort) != 2 || q.Sort[0].Field != model.FieldScore || q.Sort[1].Field != model.FieldDateTime {
		t.Errorf("sort = %+v, want _score then dateTime", q.Sort)
	}
}

func TestSearch_ReshapesHits(t *testing.T) {
	store := &fakeStore{result: &model.SearchResult{
		Total: 5,
		Hits: []model.SearchHit{
			{ID: "a", Source: map[string]any{"message": "one"}},
			{ID: "b", Source: map[string]any{"message": "two"}},
		},
	}}
	s := NewSearcher(store, model.IndexName, newTestMetrics())

	resp, err := s.Search(context.Background(), SearchParams{Size: 2})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if resp.Total != 5 || len(resp.Logs) != 2 {
		t.Fatalf("total=%d logs=%d, want 5/2", resp.Total, len(resp.Logs))
	}
	if resp.Logs[0]["id"] != "a" || resp.Logs[0]["message"] != "one" {
		t.Errorf("logs[0] = %v", resp.Logs[0])
	}
}

func TestSearch_PropagatesError(t *testing.T) {
	m := newTestMetrics()
	s := NewSearcher(&fakeStore{searchErr: errors.New("timeout")}, model.IndexName, m)

	if _, err := s.Search(context.Background(), SearchParams{Size: 1}); err == nil {
		t.Fatal("Search returned nil error")
	}
	if got := testutil.ToFloat64(m.SearchRequests.WithLabelValues(metrics.OutcomeError)); got != 1 {
		t.Errorf("error counter = %v, want 1", got)
	}
}

func TestIngestThenSearch_DuckDB(t *testing.T) {
	store, err := duckdb.NewStore("")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer store.Close()
	if !Prepare(context.Background(), store, model.IndexName, model.AppLogsSchema) {
		t.Fatal("Prepare reported store down")
	}

	ing := NewIngestor(store, model.IndexName, nil)
	for i := 0; i < 5; i++ {
		ing.Ingest(context.Background(), model.RawPayload{"MESSAGE": "session opened", "SYSLOG_IDENTIFIER": "sshd"})
	}

	s := NewSearcher(store, model.IndexName, nil)
	resp, err := s.Search(context.Background(), SearchParams{Query: "session", Size: 2})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if resp.Total != 5 {
		t.Errorf("total = %d, want 5", resp.Total)
	}
	if len(resp.Logs) != 2 {
		t.Errorf("len(logs) = %d, want 2", len(resp.Logs))
	}
	if id, _ := resp.Logs[0]["id"].(string); id == "" {
		t.Errorf("logs[0] has no id: %v", resp.Logs[0])
	}
}
