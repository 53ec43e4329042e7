package gateway

import (
	"context"
	"log"
	"time"

	"github.com/tinytelemetry/journalgate/internal/metrics"
	"github.com/tinytelemetry/journalgate/internal/model"
	"github.com/tinytelemetry/journalgate/internal/timestamp"
)

// AckMessage is returned for every accepted record.
const AckMessage = "Logs received successfully"

// Ack is the caller-visible result of an ingestion. It does not depend on
// whether the store write succeeded.
type Ack struct {
	Status     string    `json:"status"`
	Message    string    `json:"message"`
	ReceivedAt time.Time `json:"received_at"`
}

// Ingestor normalizes payloads and writes them to the store, best effort.
type Ingestor struct {
	store   model.DocumentWriter
	index   string
	metrics *metrics.Metrics
	parser  *timestamp.Parser
	now     func() time.Time
}

// NewIngestor creates an ingestor writing to index. m may be nil.
func NewIngestor(store model.DocumentWriter, index string, m *metrics.Metrics) *Ingestor {
	if m == nil {
		m = metrics.New(nil)
	}
	return &Ingestor{
		store:   store,
		index:   index,
		metrics: m,
		parser:  timestamp.NewParser(),
		now:     time.Now,
	}
}

// Ingest stores one record with refresh-on-write and acknowledges it.
// Write failures are logged and counted, never returned: the record is
// written at most once and the caller is not told about the loss.
func (i *Ingestor) Ingest(ctx context.Context, raw model.RawPayload) Ack {
	receivedAt := i.now().UTC()
	record := model.Normalize(raw)
	doc := model.Document{
		LogRecord: record,
		DateTime:  i.parser.Resolve(raw[model.SourceRealtimeTimestamp], receivedAt),
	}

	// A caller hanging up must not abort a write it was already acked for.
	id, err := i.store.IndexDocument(context.WithoutCancel(ctx), i.index, doc, true)
	if err != nil {
		i.metrics.IngestWriteFailures.Inc()
		i.metrics.IngestRequests.WithLabelValues(metrics.OutcomeDropped).Inc()
		log.Printf("ingest: store write failed, record dropped: %v record=%+v", err, record)
	} else {
		i.metrics.IngestRequests.WithLabelValues(metrics.OutcomeStored).Inc()
		log.Printf("ingest: stored id=%s record=%+v", id, record)
	}

	return Ack{
		Status:     "success",
		Message:    AckMessage,
		ReceivedAt: receivedAt,
	}
}
