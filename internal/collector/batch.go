package collector

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Be-Wagile-India/pypss/internal/model"
	"github.com/Be-Wagile-India/pypss/internal/telemetry"
)

// Sink is the backend contract behind a Queued collector: a remote store
// that accepts a batch of traces in one write. Write may block on network
// or disk I/O — it only ever runs on the worker goroutine, never on an
// Ingest caller.
type Sink interface {
	Write(ctx context.Context, batch []model.Trace) error
	Close() error
}

// QueuedConfig sizes a Queued collector.
type QueuedConfig struct {
	// QueueCapacity bounds the in-process queue. A full queue sheds new
	// traces instead of blocking the caller.
	QueueCapacity int
	// BatchSize triggers a flush as soon as this many traces are pending.
	BatchSize int
	// FlushInterval triggers a flush even when the batch is not full.
	FlushInterval time.Duration
	// WriteTimeout bounds each sink write.
	WriteTimeout time.Duration
}

// DefaultQueuedConfig returns the standard queued collector sizing.
func DefaultQueuedConfig() QueuedConfig {
	return QueuedConfig{
		QueueCapacity: 10_000,
		BatchSize:     256,
		FlushInterval: 5 * time.Second,
		WriteTimeout:  10 * time.Second,
	}
}

func (c QueuedConfig) withDefaults() QueuedConfig {
	def := DefaultQueuedConfig()
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = def.QueueCapacity
	}
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = def.FlushInterval
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	return c
}

// Queued is the threaded-batch collector: Ingest pushes onto a bounded
// queue and returns immediately; a single worker goroutine dequeues in
// batches of BatchSize or every FlushInterval, whichever comes first, and
// forwards to the sink. Sink failures are logged and the batch discarded —
// the next scheduled flush carries new data, failed batches are not retried
// (bounding memory under a dead backend).
type Queued struct {
	sink   Sink
	logger *slog.Logger
	cfg    QueuedConfig

	queue  chan model.Trace
	closed atomic.Bool
	done   chan struct{}
	cancel context.CancelFunc

	stats        counters
	flushFailed  atomic.Uint64
	sinkDiscards atomic.Uint64 // traces lost to failed flushes
}

// NewQueued creates a queued collector and starts its flush worker.
func NewQueued(sink Sink, logger *slog.Logger, cfg QueuedConfig) *Queued {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()

	q := &Queued{
		sink:   sink,
		logger: logger,
		cfg:    cfg,
		queue:  make(chan model.Trace, cfg.QueueCapacity),
		done:   make(chan struct{}),
	}

	ctx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel
	go q.worker(ctx)
	q.registerMetrics()
	return q
}

// Ingest enqueues the trace without blocking. A full queue drops the new
// trace (load shedding) rather than stalling the caller's critical path.
func (q *Queued) Ingest(t model.Trace) error {
	if q.closed.Load() {
		q.stats.dropped.Add(1)
		return ErrClosed
	}
	if err := t.Validate(); err != nil {
		q.stats.invalid.Add(1)
		return err
	}

	select {
	case q.queue <- t:
		q.stats.ingested.Add(1)
		return nil
	default:
		q.stats.dropped.Add(1)
		return ErrDropped
	}
}

// Drain returns an empty batch: a queued collector retains no traces
// locally — they live in the backend the sink writes to.
func (q *Queued) Drain(maxN int) model.Batch { return nil }

// Stats returns ingestion counters.
func (q *Queued) Stats() Stats { return q.stats.snapshot() }

// FlushFailures returns how many sink writes have failed so far.
func (q *Queued) FlushFailures() uint64 { return q.flushFailed.Load() }

func (q *Queued) worker(ctx context.Context) {
	defer close(q.done)

	ticker := time.NewTicker(q.cfg.FlushInterval)
	defer ticker.Stop()

	pending := make([]model.Trace, 0, q.cfg.BatchSize)
	for {
		select {
		case <-ctx.Done():
			// Final best-effort flush of whatever is pending plus
			// anything still queued.
			pending = q.drainQueue(pending)
			q.flush(context.Background(), pending)
			return
		case t := <-q.queue:
			pending = append(pending, t)
			if len(pending) >= q.cfg.BatchSize {
				pending = q.flush(ctx, pending)
			}
		case <-ticker.C:
			pending = q.drainQueue(pending)
			pending = q.flush(ctx, pending)
		}
	}
}

// drainQueue moves everything currently queued into pending without blocking.
func (q *Queued) drainQueue(pending []model.Trace) []model.Trace {
	for {
		select {
		case t := <-q.queue:
			pending = append(pending, t)
		default:
			return pending
		}
	}
}

// flush writes pending to the sink and returns the reset slice. On failure
// the batch is discarded and counted; the worker keeps going.
func (q *Queued) flush(ctx context.Context, pending []model.Trace) []model.Trace {
	if len(pending) == 0 {
		return pending
	}
	if ctx.Err() != nil {
		// Close raced the worker into a flush with the canceled worker ctx;
		// the final batch still gets its full write budget.
		ctx = context.Background()
	}

	ctx, span := telemetry.Tracer("pypss/collector").Start(ctx, "collector.flush")
	defer span.End()
	span.SetAttributes(attribute.Int("pypss.batch_size", len(pending)))

	writeCtx, cancel := context.WithTimeout(ctx, q.cfg.WriteTimeout)
	err := q.sink.Write(writeCtx, pending)
	cancel()

	if err != nil {
		span.RecordError(err)
		q.flushFailed.Add(1)
		q.sinkDiscards.Add(uint64(len(pending)))
		q.logger.Error("collector: flush failed, batch discarded",
			"error", err, "batch_size", len(pending))
	}
	return pending[:0]
}

// Close stops accepting traces, signals the worker to do a final flush, and
// closes the sink. Waits at most until ctx's deadline for the worker.
func (q *Queued) Close(ctx context.Context) error {
	if q.closed.Swap(true) {
		return nil // already closed
	}
	q.cancel()

	select {
	case <-q.done:
	case <-ctx.Done():
		q.logger.Warn("collector: close timed out waiting for final flush")
	}
	return q.sink.Close()
}

// registerMetrics exposes queue depth and loss counters as OTel gauges.
// No-ops when telemetry is not configured.
func (q *Queued) registerMetrics() {
	meter := telemetry.Meter("pypss/collector")

	_, _ = meter.Int64ObservableGauge("pypss.collector.queue_depth",
		metric.WithDescription("Current number of traces waiting in the collector queue"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(len(q.queue)))
			return nil
		}),
	)

	_, _ = meter.Int64ObservableGauge("pypss.collector.dropped_total",
		metric.WithDescription("Total traces shed because the queue was full"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(q.stats.dropped.Load()))
			return nil
		}),
	)

	_, _ = meter.Int64ObservableGauge("pypss.collector.sink_discarded_total",
		metric.WithDescription("Total traces discarded with failed sink writes"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(q.sinkDiscards.Load()))
			return nil
		}),
	)
}
