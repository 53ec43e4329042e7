package gateway

import (
	"context"
	"errors"
	"log"

	"github.com/tinytelemetry/journalgate/internal/model"
)

// CheckConnectivity probes the store. Any failure is logged and reported as false.
func CheckConnectivity(ctx context.Context, p model.Pinger) bool {
	if err := p.Ping(ctx); err != nil {
		log.Printf("gateway: store connection is down: %v", err)
		return false
	}
	log.Printf("gateway: store connection is up")
	return true
}

// EnsureSchema creates index with schema. An index that already exists
// counts as success; other errors are logged and returned.
func EnsureSchema(ctx context.Context, m model.IndexManager, index string, schema model.IndexSchema) error {
	err := m.CreateIndex(ctx, index, schema)
	if err != nil && !errors.Is(err, model.ErrIndexExists) {
		log.Printf("gateway: create index %s failed: %v", index, err)
		return err
	}
	log.Printf("gateway: index %s ready", index)
	return nil
}

// Prepare runs the startup gate: the schema is only ensured when the store
// answers the probe. It never fails; a store that is down or missing the
// index surfaces later as failed writes and searches.
func Prepare(ctx context.Context, store model.IndexStore, index string, schema model.IndexSchema) (storeUp bool) {
	if !CheckConnectivity(ctx, store) {
		return false
	}
	_ = EnsureSchema(ctx, store, index, schema)
	return true
}
