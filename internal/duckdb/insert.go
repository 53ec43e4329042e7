package duckdb

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tinytelemetry/journalgate/internal/model"
)

// IndexDocument appends doc to index and returns its generated id. DuckDB
// commits are visible to later queries, so refresh needs no extra work.
func (s *Store) IndexDocument(ctx context.Context, index string, doc model.Document, refresh bool) (string, error) {
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	schema, err := s.schemaFor(ctx, index)
	if err != nil {
		return "", err
	}

	source, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}

	id := uuid.NewString()
	cols := []string{"_id", "_source"}
	args := []any{id, string(source)}

	fields := doc.Fields()
	for _, f := range schema.Fields {
		v, ok := fields[f.Name]
		if !ok {
			continue
		}
		if ts, isTime := v.(time.Time); isTime && ts.IsZero() {
			v = nil
		}
		cols = append(cols, quoteIdent(f.Name))
		args = append(args, v)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", quoteIdent(index), strings.Join(cols, ", "), placeholders)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, stmt, args...); err != nil {
		return "", fmt.Errorf("index document: %w", err)
	}
	return id, nil
}
