package collector

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/Be-Wagile-India/pypss/internal/model"
)

// memorySink records writes for assertions. failErr, when set, makes every
// Write fail.
type memorySink struct {
	mu      sync.Mutex
	batches [][]model.Trace
	failErr error
	closed  bool
}

func (s *memorySink) Write(ctx context.Context, batch []model.Trace) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return s.failErr
	}
	copied := make([]model.Trace, len(batch))
	copy(copied, batch)
	s.batches = append(s.batches, copied)
	return nil
}

func (s *memorySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *memorySink) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.batches {
		n += len(b)
	}
	return n
}

func quietLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestQueuedFlushesOnBatchSize(t *testing.T) {
	sink := &memorySink{}
	q := NewQueued(sink, quietLogger(), QueuedConfig{
		QueueCapacity: 100,
		BatchSize:     10,
		FlushInterval: time.Hour, // only the size trigger should fire
		WriteTimeout:  time.Second,
	})
	defer q.Close(context.Background())

	for i := 0; i < 10; i++ {
		if err := q.Ingest(testTrace("op")); err != nil {
			t.Fatalf("ingest %d: %v", i, err)
		}
	}

	waitFor(t, time.Second, func() bool { return sink.total() == 10 })
}

func TestQueuedFlushesOnInterval(t *testing.T) {
	sink := &memorySink{}
	q := NewQueued(sink, quietLogger(), QueuedConfig{
		QueueCapacity: 100,
		BatchSize:     1_000, // never reached
		FlushInterval: 20 * time.Millisecond,
		WriteTimeout:  time.Second,
	})
	defer q.Close(context.Background())

	for i := 0; i < 3; i++ {
		if err := q.Ingest(testTrace("op")); err != nil {
			t.Fatal(err)
		}
	}

	waitFor(t, time.Second, func() bool { return sink.total() == 3 })
}

// blockingSink stalls every Write until release is closed, pinning the
// worker inside a flush.
type blockingSink struct {
	release chan struct{}
}

func (s *blockingSink) Write(ctx context.Context, batch []model.Trace) error {
	select {
	case <-s.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *blockingSink) Close() error { return nil }

func TestQueuedShedsWhenFull(t *testing.T) {
	// Pin the worker inside a flush so the queue genuinely fills; the ingest
	// path must then shed load rather than block.
	sink := &blockingSink{release: make(chan struct{})}
	q := NewQueued(sink, quietLogger(), QueuedConfig{
		QueueCapacity: 4,
		BatchSize:     1,
		FlushInterval: time.Hour,
		WriteTimeout:  10 * time.Second,
	})
	defer func() {
		close(sink.release)
		_ = q.Close(context.Background())
	}()

	// First trace gets picked up by the worker, which then blocks in Write.
	if err := q.Ingest(testTrace("op")); err != nil {
		t.Fatal(err)
	}
	waitFor(t, time.Second, func() bool { return len(q.queue) == 0 })

	dropped := 0
	for i := 0; i < 100; i++ {
		if err := q.Ingest(testTrace("op")); errors.Is(err, ErrDropped) {
			dropped++
		}
	}

	// Queue capacity is 4, so at least 96 of the 100 must have been shed.
	if dropped < 96 {
		t.Fatalf("dropped = %d, want >= 96", dropped)
	}
	if got := q.Stats().Dropped; got != uint64(dropped) {
		t.Fatalf("Stats().Dropped = %d, want %d", got, dropped)
	}
}

func TestQueuedDiscardsFailedFlush(t *testing.T) {
	sink := &memorySink{failErr: errors.New("sink down")}
	q := NewQueued(sink, quietLogger(), QueuedConfig{
		QueueCapacity: 100,
		BatchSize:     5,
		FlushInterval: time.Hour,
		WriteTimeout:  100 * time.Millisecond,
	})
	defer q.Close(context.Background())

	for i := 0; i < 5; i++ {
		if err := q.Ingest(testTrace("op")); err != nil {
			t.Fatal(err)
		}
	}

	waitFor(t, time.Second, func() bool { return q.FlushFailures() >= 1 })

	// The failed batch is gone; recovery of the sink must not resurrect it.
	sink.mu.Lock()
	sink.failErr = nil
	sink.mu.Unlock()
	if got := sink.total(); got != 0 {
		t.Fatalf("sink received %d traces from a failed flush", got)
	}
}

func TestQueuedCloseFlushesRemainder(t *testing.T) {
	sink := &memorySink{}
	q := NewQueued(sink, quietLogger(), QueuedConfig{
		QueueCapacity: 100,
		BatchSize:     1_000,
		FlushInterval: time.Hour,
		WriteTimeout:  time.Second,
	})

	for i := 0; i < 7; i++ {
		if err := q.Ingest(testTrace("op")); err != nil {
			t.Fatal(err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := q.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	if got := sink.total(); got != 7 {
		t.Fatalf("final flush delivered %d traces, want 7", got)
	}
	if !sink.closed {
		t.Fatal("sink not closed")
	}

	if err := q.Ingest(testTrace("late")); !errors.Is(err, ErrClosed) {
		t.Fatalf("ingest after close = %v, want ErrClosed", err)
	}
}

// deadlineSink refuses writes whose context is already canceled, the way a
// real network sink would.
type deadlineSink struct {
	memorySink
}

func (s *deadlineSink) Write(ctx context.Context, batch []model.Trace) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.memorySink.Write(ctx, batch)
}

func TestQueuedFlushDetachesFromCanceledContext(t *testing.T) {
	sink := &deadlineSink{}
	q := NewQueued(sink, quietLogger(), QueuedConfig{WriteTimeout: time.Second})
	defer q.Close(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// A flush racing shutdown arrives with the worker's canceled context;
	// the batch must still get its full write budget instead of being
	// discarded as a failed write.
	q.flush(ctx, []model.Trace{testTrace("op")})

	if got := sink.total(); got != 1 {
		t.Fatalf("flush delivered %d traces, want 1", got)
	}
	if got := q.FlushFailures(); got != 0 {
		t.Fatalf("flush failures = %d, want 0", got)
	}
}

func TestQueuedDrainReturnsNothing(t *testing.T) {
	sink := &memorySink{}
	q := NewQueued(sink, quietLogger(), QueuedConfig{})
	defer q.Close(context.Background())

	if err := q.Ingest(testTrace("op")); err != nil {
		t.Fatal(err)
	}
	if got := q.Drain(0); got != nil {
		t.Fatalf("Drain = %v, want nil: queued traces live in the sink's backend", got)
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
