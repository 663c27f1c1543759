package collector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Be-Wagile-India/pypss/internal/model"
)

func testTrace(name string) model.Trace {
	now := time.Now()
	return model.Trace{
		Name:     name,
		Start:    now,
		End:      now.Add(time.Millisecond),
		Duration: time.Millisecond,
	}
}

// singleShardRing returns a ring whose capacity stays below the sharding
// threshold, so eviction order is exact.
func singleShardRing(capacity int) *Ring {
	return NewRing(RingConfig{Capacity: capacity, ShardThreshold: capacity * 10, ShardCount: 16})
}

func TestRingEvictsOldestAtCapacity(t *testing.T) {
	const capacity = 100
	r := singleShardRing(capacity)

	for i := 0; i < capacity+25; i++ {
		if err := r.Ingest(testTrace(fmt.Sprintf("t%d", i))); err != nil {
			t.Fatalf("ingest %d: %v", i, err)
		}
	}

	if got := r.Len(); got != capacity {
		t.Fatalf("Len = %d, want %d", got, capacity)
	}

	batch := r.Drain(0)
	if len(batch) != capacity {
		t.Fatalf("drained %d traces, want %d", len(batch), capacity)
	}
	// The 25 oldest were overwritten; the survivors are t25..t124 in order.
	if batch[0].Name != "t25" {
		t.Fatalf("oldest survivor = %s, want t25", batch[0].Name)
	}
	if batch[capacity-1].Name != "t124" {
		t.Fatalf("newest survivor = %s, want t124", batch[capacity-1].Name)
	}
}

func TestRingDrainEmptiesBuffer(t *testing.T) {
	r := singleShardRing(10)
	for i := 0; i < 5; i++ {
		if err := r.Ingest(testTrace("x")); err != nil {
			t.Fatal(err)
		}
	}

	if got := len(r.Drain(0)); got != 5 {
		t.Fatalf("first drain = %d, want 5", got)
	}
	if got := len(r.Drain(0)); got != 0 {
		t.Fatalf("second drain = %d, want 0", got)
	}
	if got := r.Len(); got != 0 {
		t.Fatalf("Len after drain = %d, want 0", got)
	}
}

func TestRingDrainMaxNKeepsNewest(t *testing.T) {
	r := singleShardRing(100)
	for i := 0; i < 50; i++ {
		if err := r.Ingest(testTrace(fmt.Sprintf("t%d", i))); err != nil {
			t.Fatal(err)
		}
	}

	batch := r.Drain(10)
	if len(batch) != 10 {
		t.Fatalf("drained %d, want 10", len(batch))
	}
	if batch[0].Name != "t40" || batch[9].Name != "t49" {
		t.Fatalf("got window %s..%s, want t40..t49", batch[0].Name, batch[9].Name)
	}
}

func TestRingRejectsInvalidTrace(t *testing.T) {
	r := singleShardRing(10)

	err := r.Ingest(model.Trace{}) // no name
	if !errors.Is(err, model.ErrMissingName) {
		t.Fatalf("err = %v, want ErrMissingName", err)
	}

	stats := r.Stats()
	if stats.Invalid != 1 || stats.Ingested != 0 {
		t.Fatalf("stats = %+v, want 1 invalid, 0 ingested", stats)
	}
}

func TestRingClosedRejectsIngest(t *testing.T) {
	r := singleShardRing(10)
	if err := r.Ingest(testTrace("before")); err != nil {
		t.Fatal(err)
	}
	if err := r.Close(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := r.Ingest(testTrace("after")); !errors.Is(err, ErrClosed) {
		t.Fatalf("err = %v, want ErrClosed", err)
	}

	// Buffered traces remain drainable after close.
	if got := len(r.Drain(0)); got != 1 {
		t.Fatalf("drained %d after close, want 1", got)
	}
}

func TestRingConcurrentIngest(t *testing.T) {
	const (
		workers   = 16
		perWorker = 500
		capacity  = 2_000
	)
	r := NewRing(RingConfig{Capacity: capacity, ShardThreshold: 1_000, ShardCount: 8})

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				_ = r.Ingest(testTrace("concurrent"))
			}
		}()
	}
	wg.Wait()

	stats := r.Stats()
	if stats.Ingested != workers*perWorker {
		t.Fatalf("ingested = %d, want %d", stats.Ingested, workers*perWorker)
	}
	// 8 shards of 250 each: the buffer never exceeds its capacity.
	if got := r.Len(); got > capacity {
		t.Fatalf("Len = %d exceeds capacity %d", got, capacity)
	}
	if got := len(r.Drain(0)); got > capacity {
		t.Fatalf("drained %d exceeds capacity %d", got, capacity)
	}
}
