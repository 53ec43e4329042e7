package httpserver

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tinytelemetry/journalgate/internal/gateway"
	"github.com/tinytelemetry/journalgate/internal/metrics"
	"github.com/tinytelemetry/journalgate/internal/model"
)

const (
	msgServerError  = "Server error"
	msgSearchFailed = "Search failed"
	msgNotFound     = "Resource not found"
)

// Config holds HTTP API settings.
type Config struct {
	Addr          string
	Index         string
	Development   bool // expose error details in 500 responses
	MaxBodyBytes  int64
	MaxSearchSize int
}

// Server exposes ingestion and search over HTTP.
type Server struct {
	cfg       Config
	store     model.IndexStore
	ingestor  *gateway.Ingestor
	searcher  *gateway.Searcher
	metrics   *metrics.Metrics
	gatherer  prometheus.Gatherer
	server    *http.Server
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
}

// NewServer creates a new HTTP API server. gatherer backs /metrics and may be nil.
func NewServer(cfg Config, store model.IndexStore, m *metrics.Metrics, gatherer prometheus.Gatherer) *Server {
	if cfg.Addr == "" {
		cfg.Addr = "0.0.0.0:3001"
	}
	if cfg.Index == "" {
		cfg.Index = model.IndexName
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = model.DefaultMaxBodyBytes
	}
	if cfg.MaxSearchSize <= 0 {
		cfg.MaxSearchSize = model.DefaultMaxSearchSize
	}
	if m == nil {
		m = metrics.New(nil)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:       cfg,
		store:     store,
		ingestor:  gateway.NewIngestor(store, cfg.Index, m),
		searcher:  gateway.NewSearcher(store, cfg.Index, m),
		metrics:   m,
		gatherer:  gatherer,
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
	}
}

// Handler builds the gin router.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.POST("/api/logs/storage", s.handleIngest)
	r.GET("/api/logs/search", s.handleSearch)
	r.GET("/api/health", s.handleHealth)
	if s.gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": msgNotFound})
	})
	return r
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.server = &http.Server{
		Handler:           s.Handler(),
		BaseContext:       func(_ net.Listener) context.Context { return s.ctx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}

	s.startTime = time.Now()

	go s.server.Serve(listener)
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	s.cancel()
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// errorBody builds a 500 body; details are only exposed in development mode.
func (s *Server) errorBody(msg string, err error) gin.H {
	body := gin.H{"error": msg}
	if s.cfg.Development && err != nil {
		body["details"] = err.Error()
	}
	return body
}
