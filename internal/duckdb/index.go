package duckdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/tinytelemetry/journalgate/internal/model"
)

// indexNamePattern follows Elasticsearch naming rules so both backends
// accept the same index names.
var indexNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_.-]{0,254}$`)

type catalogField struct {
	Name string          `json:"name"`
	Type model.FieldType `json:"type"`
}

// CreateIndex creates the table backing index and records its mapping in
// the catalog. It returns model.ErrIndexExists when the index is present.
func (s *Store) CreateIndex(ctx context.Context, index string, schema model.IndexSchema) error {
	if !indexNamePattern.MatchString(index) {
		return fmt.Errorf("invalid index name %q", index)
	}
	if len(schema.Fields) == 0 {
		return errors.New("index schema has no fields")
	}

	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok, err := s.loadSchema(ctx, index); err != nil {
		return err
	} else if ok {
		return model.ErrIndexExists
	}

	cols := []string{
		"_id VARCHAR PRIMARY KEY",
		"_source VARCHAR NOT NULL",
	}
	mapping := make([]catalogField, 0, len(schema.Fields))
	for _, f := range schema.Fields {
		colType, err := columnType(f.Type)
		if err != nil {
			return fmt.Errorf("field %s: %w", f.Name, err)
		}
		cols = append(cols, quoteIdent(f.Name)+" "+colType)
		mapping = append(mapping, catalogField{Name: f.Name, Type: f.Type})
	}
	mappingJSON, err := json.Marshal(mapping)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	ddl := fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(index), strings.Join(cols, ", "))
	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create index table: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO index_catalog (name, mapping) VALUES (?, ?)", index, string(mappingJSON)); err != nil {
		return fmt.Errorf("record index: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true

	s.schemas[index] = schema
	return nil
}

// schemaFor returns the mapping of index, reading the catalog on a cache miss.
func (s *Store) schemaFor(ctx context.Context, index string) (model.IndexSchema, error) {
	s.mu.RLock()
	schema, ok := s.schemas[index]
	s.mu.RUnlock()
	if ok {
		return schema, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	schema, ok, err := s.loadSchema(ctx, index)
	if err != nil {
		return model.IndexSchema{}, err
	}
	if !ok {
		return model.IndexSchema{}, fmt.Errorf("%w: [%s]", model.ErrIndexNotFound, index)
	}
	return schema, nil
}

// loadSchema must be called with s.mu held for writing.
func (s *Store) loadSchema(ctx context.Context, index string) (model.IndexSchema, bool, error) {
	if schema, ok := s.schemas[index]; ok {
		return schema, true, nil
	}

	var raw string
	err := s.db.QueryRowContext(ctx, "SELECT mapping FROM index_catalog WHERE name = ?", index).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return model.IndexSchema{}, false, nil
	}
	if err != nil {
		return model.IndexSchema{}, false, fmt.Errorf("read index catalog: %w", err)
	}

	var mapping []catalogField
	if err := json.Unmarshal([]byte(raw), &mapping); err != nil {
		return model.IndexSchema{}, false, fmt.Errorf("decode mapping of %s: %w", index, err)
	}
	schema := model.IndexSchema{Fields: make([]model.FieldMapping, 0, len(mapping))}
	for _, f := range mapping {
		schema.Fields = append(schema.Fields, model.FieldMapping{Name: f.Name, Type: f.Type})
	}
	s.schemas[index] = schema
	return schema, true, nil
}

func columnType(t model.FieldType) (string, error) {
	switch t {
	case model.FieldTypeKeyword, model.FieldTypeText:
		return "VARCHAR", nil
	case model.FieldTypeDate:
		return "TIMESTAMP", nil
	}
	return "", fmt.Errorf("unsupported field type %q", t)
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
