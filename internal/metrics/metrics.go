package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome label values.
const (
	OutcomeStored    = "stored"
	OutcomeDropped   = "dropped"
	OutcomeMalformed = "malformed"
	OutcomeOK        = "ok"
	OutcomeError     = "error"
)

// Metrics holds the gateway's collectors. Tests build their own instance on
// a fresh registry.
type Metrics struct {
	IngestRequests      *prometheus.CounterVec
	IngestWriteFailures prometheus.Counter
	SearchRequests      *prometheus.CounterVec
	StoreUp             prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		IngestRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "journalgate_ingest_requests_total",
				Help: "Ingestion requests by outcome",
			},
			[]string{"outcome"},
		),
		IngestWriteFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "journalgate_ingest_write_failures_total",
				Help: "Acknowledged records the store failed to persist",
			},
		),
		SearchRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "journalgate_search_requests_total",
				Help: "Search requests by outcome",
			},
			[]string{"outcome"},
		),
		StoreUp: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "journalgate_store_up",
				Help: "1 if the last store probe succeeded",
			},
		),
	}
	if reg != nil {
		reg.MustRegister(m.IngestRequests, m.IngestWriteFailures, m.SearchRequests, m.StoreUp)
	}
	return m
}
