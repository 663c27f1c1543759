// Package collector implements trace ingestion: a sharded in-memory ring
// buffer for in-process scoring, and a queued collector that batches traces
// to an external sink (Redis list, gRPC endpoint, append-only file) off the
// caller's critical path.
package collector

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/Be-Wagile-India/pypss/internal/model"
)

// Ingest outcomes. Ingest never blocks and never panics; under saturation or
// after shutdown it sheds load and reports which way.
var (
	// ErrDropped means the trace was shed because the buffer or queue was
	// full. Non-fatal: stability measurement must never destabilize the
	// host process.
	ErrDropped = errors.New("collector: trace dropped, buffer full")
	// ErrClosed means the collector is shutting down; in-flight ingests
	// are rejected, not blocked.
	ErrClosed = errors.New("collector: closed")
)

// Collector receives traces from many concurrent call sites and hands them
// on for scoring. Ingest must be safe for concurrent use with bounded
// latency; all mutation of collector internals stays behind this interface.
type Collector interface {
	// Ingest accepts one trace. It validates, then either buffers the
	// trace or drops it (ErrDropped/ErrClosed, or a model validation
	// error for malformed traces).
	Ingest(t model.Trace) error

	// Drain removes and returns up to maxN buffered traces. maxN <= 0
	// means no limit. Ownership of the returned batch transfers fully to
	// the caller. Externally-backed collectors keep nothing locally and
	// return an empty batch; their traces are read back from the backend.
	Drain(maxN int) model.Batch

	// Close shuts the collector down, flushing buffered-but-unsent data
	// best-effort within ctx's deadline, then releasing resources.
	Close(ctx context.Context) error
}

// Stats counts ingestion outcomes. All counters only ever increase.
type Stats struct {
	Ingested uint64
	Dropped  uint64
	Invalid  uint64
}

// counters is the shared atomic implementation behind Stats.
type counters struct {
	ingested atomic.Uint64
	dropped  atomic.Uint64
	invalid  atomic.Uint64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Ingested: c.ingested.Load(),
		Dropped:  c.dropped.Load(),
		Invalid:  c.invalid.Load(),
	}
}
