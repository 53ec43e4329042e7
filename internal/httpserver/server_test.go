package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzip"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/tinytelemetry/journalgate/internal/duckdb"
	"github.com/tinytelemetry/journalgate/internal/metrics"
	"github.com/tinytelemetry/journalgate/internal/model"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// brokenStore fails every call, like a store that went away after startup.
type brokenStore struct{ err error }

func (b brokenStore) Ping(context.Context) error { return b.err }
func (b brokenStore) CreateIndex(context.Context, string, model.IndexSchema) error {
	return b.err
}
func (b brokenStore) IndexDocument(context.Context, string, model.Document, bool) (string, error) {
	return "", b.err
}
func (b brokenStore) Search(context.Context, string, model.SearchQuery) (*model.SearchResult, error) {
	return nil, b.err
}
func (b brokenStore) Close() error { return nil }

func newTestServer(t *testing.T, cfg Config) (*Server, *duckdb.Store, http.Handler) {
	t.Helper()
	store, err := duckdb.NewStore("")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.CreateIndex(context.Background(), model.IndexName, model.AppLogsSchema); err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}

	reg := prometheus.NewRegistry()
	srv := NewServer(cfg, store, metrics.New(reg), reg)
	return srv, store, srv.Handler()
}

func newBrokenServer(t *testing.T, cfg Config) http.Handler {
	t.Helper()
	srv := NewServer(cfg, brokenStore{err: errors.New("dial tcp 127.0.0.1:9200: connection refused")}, nil, nil)
	return srv.Handler()
}

func do(t *testing.T, h http.Handler, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var body map[string]any
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
		}
	}
	return w, body
}

func postLog(t *testing.T, h http.Handler, payload string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/logs/storage", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	return do(t, h, req)
}

func search(t *testing.T, h http.Handler, rawQuery string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	return do(t, h, httptest.NewRequest(http.MethodGet, "/api/logs/search?"+rawQuery, nil))
}

func TestIngest_Success(t *testing.T) {
	_, _, h := newTestServer(t, Config{})

	w, body := postLog(t, h, `{"MESSAGE": "disk full", "_PID": "1234"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", w.Code, w.Body.String())
	}
	if body["status"] != "success" {
		t.Errorf("status field = %v, want success", body["status"])
	}
	if body["message"] == "" || body["message"] == nil {
		t.Error("message missing")
	}
	receivedAt, _ := body["received_at"].(string)
	if _, err := time.Parse(time.RFC3339Nano, receivedAt); err != nil {
		t.Errorf("received_at %q is not ISO 8601: %v", receivedAt, err)
	}
}

func TestIngest_ThenSearchFindsRecord(t *testing.T) {
	_, _, h := newTestServer(t, Config{})

	postLog(t, h, `{"MESSAGE": "disk full", "_PID": "1234"}`)

	w, body := search(t, h, "")
	if w.Code != http.StatusOK {
		t.Fatalf("search status = %d; body: %s", w.Code, w.Body.String())
	}
	if body["total"] != float64(1) {
		t.Fatalf("total = %v, want 1", body["total"])
	}
	entry := body["logs"].([]any)[0].(map[string]any)
	if entry["message"] != "disk full" || entry["processIdentifier"] != "1234" {
		t.Errorf("entry = %v", entry)
	}
	for _, f := range model.SourceFields {
		if f.Target == model.FieldMessage || f.Target == model.FieldProcessIdentifier {
			continue
		}
		if entry[f.Target] != model.Unknown {
			t.Errorf("%s = %v, want unknown", f.Target, entry[f.Target])
		}
	}
	if id, _ := entry["id"].(string); id == "" {
		t.Errorf("entry has no id: %v", entry)
	}
}

func TestIngest_StoreDownStillAcks(t *testing.T) {
	h := newBrokenServer(t, Config{})

	okW, okBody := postLog(t, h, `{"MESSAGE": "disk full", "_PID": "1234"}`)

	if okW.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 with store down", okW.Code)
	}
	keys := make([]string, 0, len(okBody))
	for k := range okBody {
		keys = append(keys, k)
	}
	if len(okBody) != 3 || okBody["status"] != "success" || okBody["received_at"] == nil {
		t.Errorf("ack shape changed with store down: %v", keys)
	}
}

func TestIngest_EmptyObject(t *testing.T) {
	_, _, h := newTestServer(t, Config{})

	if w, _ := postLog(t, h, `{}`); w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	_, body := search(t, h, "query=unknown")
	if body["total"] != float64(1) {
		t.Errorf("total = %v, want 1", body["total"])
	}
}

func TestIngest_MalformedJSON(t *testing.T) {
	_, _, h := newTestServer(t, Config{})

	w, body := postLog(t, h, `{"MESSAGE": `)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if body["error"] != msgServerError {
		t.Errorf("error = %v, want %q", body["error"], msgServerError)
	}
	if _, ok := body["details"]; ok {
		t.Errorf("details exposed in production mode: %v", body["details"])
	}
}

func TestIngest_MalformedJSONDevelopmentDetails(t *testing.T) {
	_, _, h := newTestServer(t, Config{Development: true})

	w, body := postLog(t, h, `[1, 2`)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if d, _ := body["details"].(string); d == "" {
		t.Error("details missing in development mode")
	}
}

func TestIngest_NonObjectRejected(t *testing.T) {
	_, _, h := newTestServer(t, Config{})

	for _, payload := range []string{`null`, `"text"`, `[1,2]`, `42`} {
		if w, _ := postLog(t, h, payload); w.Code != http.StatusInternalServerError {
			t.Errorf("payload %s: status = %d, want 500", payload, w.Code)
		}
	}
}

func TestIngest_BodyTooLarge(t *testing.T) {
	_, _, h := newTestServer(t, Config{MaxBodyBytes: 64})

	payload := `{"MESSAGE": "` + strings.Repeat("x", 128) + `"}`
	if w, _ := postLog(t, h, payload); w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500 for oversized body", w.Code)
	}
}

func TestIngest_Gzip(t *testing.T) {
	_, _, h := newTestServer(t, Config{})

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	zw.Write([]byte(`{"MESSAGE": "compressed", "_COMM": "sudo"}`))
	zw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/logs/storage", &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Content-Encoding", "gzip")
	if w, _ := do(t, h, req); w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	_, body := search(t, h, "query=compressed")
	if body["total"] != float64(1) {
		t.Errorf("total = %v, want 1", body["total"])
	}
}

func TestIngest_GzipBombCapped(t *testing.T) {
	_, _, h := newTestServer(t, Config{MaxBodyBytes: 1024})

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	zw.Write([]byte(`{"MESSAGE": "` + strings.Repeat("a", 64*1024) + `"}`))
	zw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/logs/storage", &buf)
	req.Header.Set("Content-Encoding", "gzip")
	if w, _ := do(t, h, req); w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500 for oversized decoded body", w.Code)
	}
}

func TestSearch_SizeCapsHitsNotTotal(t *testing.T) {
	_, _, h := newTestServer(t, Config{})

	for i := 0; i < 5; i++ {
		postLog(t, h, `{"MESSAGE": "login attempt"}`)
	}

	w, body := search(t, h, "query=login&size=2")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if body["total"] != float64(5) {
		t.Errorf("total = %v, want 5", body["total"])
	}
	if n := len(body["logs"].([]any)); n != 2 {
		t.Errorf("len(logs) = %d, want 2", n)
	}
}

func TestSearch_DefaultSize(t *testing.T) {
	_, store, h := newTestServer(t, Config{})

	for i := 0; i < 55; i++ {
		_, err := store.IndexDocument(context.Background(), model.IndexName, model.Document{
			LogRecord: model.Normalize(model.RawPayload{"MESSAGE": "bulk"}),
			DateTime:  time.Now(),
		}, true)
		if err != nil {
			t.Fatalf("IndexDocument: %v", err)
		}
	}

	_, body := search(t, h, "")
	if body["total"] != float64(55) {
		t.Errorf("total = %v, want 55", body["total"])
	}
	if n := len(body["logs"].([]any)); n != model.DefaultSearchSize {
		t.Errorf("len(logs) = %d, want %d", n, model.DefaultSearchSize)
	}
}

func TestSearch_NewestFirst(t *testing.T) {
	_, _, h := newTestServer(t, Config{})

	postLog(t, h, `{"MESSAGE": "older", "__REALTIME_TIMESTAMP": "1705314645000000"}`)
	postLog(t, h, `{"MESSAGE": "newer", "__REALTIME_TIMESTAMP": "1705318245000000"}`)

	for _, q := range []string{"", "query=older%20newer"} {
		_, body := search(t, h, q)
		logs := body["logs"].([]any)
		if len(logs) != 2 {
			t.Fatalf("%q: len(logs) = %d, want 2", q, len(logs))
		}
		if first := logs[0].(map[string]any)["message"]; first != "newer" {
			t.Errorf("%q: first = %v, want newer", q, first)
		}
	}
}

func TestSearch_StoreError(t *testing.T) {
	h := newBrokenServer(t, Config{})

	w, body := search(t, h, "query=x")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if body["error"] != msgSearchFailed {
		t.Errorf("error = %v, want %q", body["error"], msgSearchFailed)
	}
	if _, ok := body["details"]; ok {
		t.Error("details exposed in production mode")
	}
}

func TestSearch_StoreErrorDevelopmentDetails(t *testing.T) {
	h := newBrokenServer(t, Config{Development: true})

	_, body := search(t, h, "")
	if d, _ := body["details"].(string); !strings.Contains(d, "connection refused") {
		t.Errorf("details = %v, want store error", body["details"])
	}
}

func TestNotFound(t *testing.T) {
	_, _, h := newTestServer(t, Config{})

	w, body := do(t, h, httptest.NewRequest(http.MethodGet, "/no-such-path", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	if body["error"] != msgNotFound {
		t.Errorf("error = %v, want %q", body["error"], msgNotFound)
	}
}

func TestWrongMethodIsNotFound(t *testing.T) {
	_, _, h := newTestServer(t, Config{})

	w, _ := do(t, h, httptest.NewRequest(http.MethodGet, "/api/logs/storage", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("GET /api/logs/storage status = %d, want 404", w.Code)
	}
}

func TestHealth(t *testing.T) {
	_, _, h := newTestServer(t, Config{})

	w, body := do(t, h, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if w.Code != http.StatusOK || body["store"] != "up" {
		t.Errorf("health = %d %v", w.Code, body)
	}
}

func TestHealth_StoreDown(t *testing.T) {
	h := newBrokenServer(t, Config{})

	w, body := do(t, h, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if w.Code != http.StatusServiceUnavailable || body["store"] != "down" {
		t.Errorf("health = %d %v", w.Code, body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	_, _, h := newTestServer(t, Config{})

	postLog(t, h, `{"MESSAGE": "counted"}`)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `journalgate_ingest_requests_total{outcome="stored"} 1`) {
		t.Errorf("metrics output missing ingest counter:\n%s", w.Body.String())
	}
}

func TestGinRecovery(t *testing.T) {
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/panic", func(c *gin.Context) {
		panic("test panic")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("panic recovery status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

func TestStartStop(t *testing.T) {
	srv := NewServer(Config{Addr: "127.0.0.1:0"}, brokenStore{}, nil, nil)
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := srv.Stop(); err != nil {
		t.Errorf("Stop: %v", err)
	}
}
