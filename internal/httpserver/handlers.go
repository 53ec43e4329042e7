package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzip"
	"github.com/tinytelemetry/journalgate/internal/gateway"
	"github.com/tinytelemetry/journalgate/internal/metrics"
	"github.com/tinytelemetry/journalgate/internal/model"
)

var errNotObject = errors.New("request body must be a JSON object")

func (s *Server) handleIngest(c *gin.Context) {
	raw, err := s.readPayload(c)
	if err != nil {
		s.metrics.IngestRequests.WithLabelValues(metrics.OutcomeMalformed).Inc()
		log.Printf("http: rejecting ingest body: %v", err)
		c.JSON(http.StatusInternalServerError, s.errorBody(msgServerError, err))
		return
	}

	c.JSON(http.StatusOK, s.ingestor.Ingest(c.Request.Context(), raw))
}

// readPayload decodes one JSON object from the request body, inflating gzip
// bodies. Both the wire and the decoded size are capped at MaxBodyBytes.
func (s *Server) readPayload(c *gin.Context) (model.RawPayload, error) {
	limit := s.cfg.MaxBodyBytes
	var body io.Reader = http.MaxBytesReader(c.Writer, c.Request.Body, limit)

	if strings.EqualFold(c.GetHeader("Content-Encoding"), "gzip") {
		zr, err := gzip.NewReader(body)
		if err != nil {
			return nil, fmt.Errorf("gzip body: %w", err)
		}
		defer zr.Close()
		body = zr
	}

	data, err := io.ReadAll(io.LimitReader(body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("request body exceeds %d bytes", limit)
	}

	var raw model.RawPayload
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	if raw == nil {
		return nil, errNotObject
	}
	return raw, nil
}

func (s *Server) handleSearch(c *gin.Context) {
	params := gateway.SearchParams{
		Query: c.Query("query"),
		Size:  gateway.ParseSize(c.Query("size"), s.cfg.MaxSearchSize),
	}

	resp, err := s.searcher.Search(c.Request.Context(), params)
	if err != nil {
		log.Printf("http: search failed: %v", err)
		c.JSON(http.StatusInternalServerError, s.errorBody(msgSearchFailed, err))
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleHealth(c *gin.Context) {
	uptime := time.Since(s.startTime).Round(time.Second).String()

	if err := s.store.Ping(c.Request.Context()); err != nil {
		s.metrics.StoreUp.Set(0)
		body := gin.H{
			"status": "degraded",
			"store":  "down",
			"uptime": uptime,
		}
		if s.cfg.Development {
			body["error"] = err.Error()
		}
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}

	s.metrics.StoreUp.Set(1)
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"store":  "up",
		"uptime": uptime,
	})
}

// requestLogger logs one line per request after it completes.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Printf("http: %s %s %d %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start).Round(time.Microsecond))
	}
}
