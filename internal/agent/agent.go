// Package agent follows the systemd journal and forwards selected entries
// to the gateway's ingest endpoint.
package agent

import (
	"context"
	"log"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency caps in-flight POSTs.
const DefaultConcurrency = 8

// Sender delivers one record.
type Sender interface {
	Send(ctx context.Context, rec Record) error
}

// Config tunes an Agent.
type Config struct {
	Concurrency int
}

// Agent moves lines from a source through the processor to a sender.
type Agent struct {
	source    LineSource
	processor *Processor
	sender    Sender
	limit     int

	lines *prometheus.CounterVec
}

// Outcomes recorded per journal line.
const (
	OutcomeSent     = "sent"
	OutcomeFiltered = "filtered"
	OutcomeInvalid  = "invalid"
	OutcomeFailed   = "failed"
)

// New wires an Agent. Line counters are registered on reg when it is non-nil.
func New(cfg Config, source LineSource, processor *Processor, sender Sender, reg prometheus.Registerer) *Agent {
	limit := cfg.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	lines := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "journalgate_agent_lines_total",
		Help: "Journal lines handled by the agent, by outcome.",
	}, []string{"outcome"})
	if reg != nil {
		reg.MustRegister(lines)
	}
	return &Agent{
		source:    source,
		processor: processor,
		sender:    sender,
		limit:     limit,
		lines:     lines,
	}
}

// Run forwards entries until the source closes or ctx is cancelled, then
// waits for in-flight sends. Individual failures are logged and dropped.
func (a *Agent) Run(ctx context.Context) error {
	defer a.source.Stop()

	var g errgroup.Group
	g.SetLimit(a.limit)

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case line, ok := <-a.source.Lines():
			if !ok {
				break loop
			}
			rec, keep, err := a.processor.Process(line)
			if err != nil {
				a.lines.WithLabelValues(OutcomeInvalid).Inc()
				log.Printf("agent: skipping %s line: %v", a.source.Name(), err)
				continue
			}
			if !keep {
				a.lines.WithLabelValues(OutcomeFiltered).Inc()
				continue
			}
			g.Go(func() error {
				a.send(ctx, rec)
				return nil
			})
		}
	}

	_ = g.Wait()
	return ctx.Err()
}

func (a *Agent) send(ctx context.Context, rec Record) {
	if err := a.sender.Send(ctx, rec); err != nil {
		a.lines.WithLabelValues(OutcomeFailed).Inc()
		log.Printf("agent: send %s entry failed: %v", rec[fieldIdentifier], err)
		return
	}
	a.lines.WithLabelValues(OutcomeSent).Inc()
	log.Printf("agent: sent %s entry for %s/%s", rec[fieldIdentifier], rec[fieldUserName], rec[fieldGroupName])
}
