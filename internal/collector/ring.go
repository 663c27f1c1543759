package collector

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/Be-Wagile-India/pypss/internal/model"
)

// RingConfig sizes the in-memory ring buffer.
type RingConfig struct {
	// Capacity is the total retained trace count across all shards.
	Capacity int
	// ShardThreshold: below this capacity a single shard is used — small
	// buffers don't contend enough to justify splitting.
	ShardThreshold int
	// ShardCount is the number of independent sub-buffers above the
	// threshold, each with its own lock.
	ShardCount int
}

// DefaultRingConfig mirrors the standard collector sizing.
func DefaultRingConfig() RingConfig {
	return RingConfig{Capacity: 10_000, ShardThreshold: 1_000, ShardCount: 16}
}

// Ring is a fixed-capacity, overwrite-oldest trace buffer. When full it
// evicts the oldest entry in the ingesting shard — at-most-N retention with
// no backpressure on the caller. Lock hold time per Ingest is one slot copy.
type Ring struct {
	shards []ringShard
	cursor atomic.Uint64 // spreads ingests across shards
	closed atomic.Bool
	stats  counters
}

type ringShard struct {
	mu   sync.Mutex
	buf  []model.Trace
	next int  // next write position
	full bool // buf has wrapped at least once
}

// NewRing creates a ring buffer collector.
func NewRing(cfg RingConfig) *Ring {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultRingConfig().Capacity
	}
	shardCount := 1
	if cfg.Capacity >= cfg.ShardThreshold && cfg.ShardCount > 1 {
		shardCount = cfg.ShardCount
	}
	shardCap := cfg.Capacity / shardCount
	if shardCap < 1 {
		shardCap = 1
	}

	r := &Ring{shards: make([]ringShard, shardCount)}
	for i := range r.shards {
		r.shards[i].buf = make([]model.Trace, shardCap)
	}
	return r
}

// Ingest stores the trace, overwriting the shard's oldest entry at capacity.
func (r *Ring) Ingest(t model.Trace) error {
	if r.closed.Load() {
		r.stats.dropped.Add(1)
		return ErrClosed
	}
	if err := t.Validate(); err != nil {
		r.stats.invalid.Add(1)
		return err
	}

	// Go exposes no goroutine identity, so instead of hashing the calling
	// context a round-robin cursor spreads ingests across shards; the
	// contention-avoidance effect is the same and the scoring engine does
	// not need arrival order.
	shard := &r.shards[r.cursor.Add(1)%uint64(len(r.shards))]

	shard.mu.Lock()
	shard.buf[shard.next] = t
	shard.next++
	if shard.next == len(shard.buf) {
		shard.next = 0
		shard.full = true
	}
	shard.mu.Unlock()

	r.stats.ingested.Add(1)
	return nil
}

// Drain removes and returns up to maxN traces, merging shards. Within a
// shard traces come out in arrival order; across shards order is undefined.
func (r *Ring) Drain(maxN int) model.Batch {
	var batch model.Batch
	for i := range r.shards {
		shard := &r.shards[i]
		shard.mu.Lock()
		if shard.full {
			batch = append(batch, shard.buf[shard.next:]...)
		}
		batch = append(batch, shard.buf[:shard.next]...)
		for j := range shard.buf {
			shard.buf[j] = model.Trace{}
		}
		shard.next = 0
		shard.full = false
		shard.mu.Unlock()
	}
	if maxN > 0 && len(batch) > maxN {
		// Keep the most recent maxN: the tail of each shard's run is
		// newest, so trimming from the front discards oldest-first per
		// shard, which is close enough for unordered scoring batches.
		batch = batch[len(batch)-maxN:]
	}
	return batch
}

// Len returns the number of currently buffered traces.
func (r *Ring) Len() int {
	n := 0
	for i := range r.shards {
		shard := &r.shards[i]
		shard.mu.Lock()
		if shard.full {
			n += len(shard.buf)
		} else {
			n += shard.next
		}
		shard.mu.Unlock()
	}
	return n
}

// Stats returns ingestion counters.
func (r *Ring) Stats() Stats { return r.stats.snapshot() }

// Close rejects further ingests. The buffer itself is in-process memory, so
// there is nothing to flush; buffered traces stay drainable.
func (r *Ring) Close(ctx context.Context) error {
	r.closed.Store(true)
	return nil
}
