package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/klauspost/compress/gzip"
)

const (
	// DefaultServerURL is the gateway ingest endpoint on the local host.
	DefaultServerURL = "http://localhost:3001/api/logs/storage"

	// DefaultSendTimeout bounds one POST including reading the response.
	DefaultSendTimeout = 10 * time.Second
)

// Shipper POSTs records to the gateway. Bodies are gzip-compressed JSON.
type Shipper struct {
	url    string
	client *http.Client
}

// NewShipper creates a Shipper. A non-positive timeout uses DefaultSendTimeout.
func NewShipper(url string, timeout time.Duration) *Shipper {
	if url == "" {
		url = DefaultServerURL
	}
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	return &Shipper{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Send delivers one record once. Any non-200 response is an error.
func (s *Shipper) Send(ctx context.Context, rec Record) error {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if err := json.NewEncoder(zw).Encode(rec); err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("compress record: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, &buf)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Content-Encoding", "gzip")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", s.url, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("post %s: unexpected status %d", s.url, resp.StatusCode)
	}
	return nil
}
