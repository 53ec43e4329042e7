package model

import (
	"context"
	"errors"
)

// ErrIndexExists is returned by CreateIndex when the index is already provisioned.
var ErrIndexExists = errors.New("index already exists")

// ErrIndexNotFound is returned by writes and searches against a missing index.
var ErrIndexNotFound = errors.New("index not found")

// Pinger is a side-effect free liveness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// IndexManager provisions indexes.
type IndexManager interface {
	CreateIndex(ctx context.Context, index string, schema IndexSchema) error
}

// DocumentWriter appends documents. With refresh set the document is
// visible to searches once the call returns.
type DocumentWriter interface {
	IndexDocument(ctx context.Context, index string, doc Document, refresh bool) (string, error)
}

// DocumentSearcher runs store-neutral queries.
type DocumentSearcher interface {
	Search(ctx context.Context, index string, q SearchQuery) (*SearchResult, error)
}

// IndexStore is the full contract of a backing store. Implementations must
// be safe for concurrent use.
type IndexStore interface {
	Pinger
	IndexManager
	DocumentWriter
	DocumentSearcher
	Close() error
}
