package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/tinytelemetry/journalgate/internal/duckdb/migrate"
	"github.com/tinytelemetry/journalgate/internal/model"
)

// Store is an embedded DuckDB implementation of model.IndexStore. Each
// index is a table with one column per mapped field plus the raw document.
type Store struct {
	db           *sql.DB
	mu           sync.RWMutex
	schemas      map[string]model.IndexSchema
	QueryTimeout time.Duration
}

var _ model.IndexStore = (*Store)(nil)

// NewStore opens or creates a DuckDB database.
// If dbPath is empty, an in-memory database is used.
// An optional queryTimeout can be passed; it defaults to 30s.
func NewStore(dbPath string, queryTimeout ...time.Duration) (*Store, error) {
	dsn := ""
	if dbPath != "" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, err
		}
		dsn = dbPath
	}

	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, err
	}

	qt := model.DefaultQueryTimeout
	if len(queryTimeout) > 0 && queryTimeout[0] > 0 {
		qt = queryTimeout[0]
	}

	ctx, cancel := context.WithTimeout(context.Background(), qt)
	defer cancel()
	runner := migrate.NewRunner(db)
	if err := runner.Run(ctx); err != nil {
		db.Close()
		return nil, err
	}
	version, pending, err := runner.Status(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}
	if pending > 0 {
		db.Close()
		return nil, fmt.Errorf("duckdb: %d catalog migrations still pending after run", pending)
	}
	log.Printf("duckdb: catalog at version %d (%s)", version, storeLocation(dbPath))

	return &Store{
		db:           db,
		schemas:      make(map[string]model.IndexSchema),
		QueryTimeout: qt,
	}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()
	return s.db.PingContext(ctx)
}

func storeLocation(dbPath string) string {
	if dbPath == "" {
		return "in-memory"
	}
	return dbPath
}

// queryCtx bounds ctx by the store's configured query timeout.
func (s *Store) queryCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.QueryTimeout)
}
