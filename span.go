package pypss

import (
	"time"

	"github.com/google/uuid"
)

// Span measures one execution of an instrumented operation. Obtain one from
// Pipeline.StartSpan, mutate it via the Set*/Fail methods while the
// operation runs, and call End exactly once when it finishes.
//
// A Span is not safe for concurrent use; each goroutine gets its own.
type Span struct {
	p     *Pipeline
	trace Trace
	ended bool
}

// SpanOption configures a Span at creation.
type SpanOption func(*Span)

// InModule attributes the span to a module for per-module scoring.
func InModule(module string) SpanOption {
	return func(s *Span) { s.trace.Module = module }
}

// Cooperative marks the span as running in a cooperatively scheduled
// context, where wait time cannot be isolated and the full wall-clock
// duration counts as wait.
func Cooperative() SpanOption {
	return func(s *Span) { s.trace.Cooperative = true }
}

// StartSpan begins measuring one operation. The sampling decision happens
// here: an unsampled span is a cheap no-op whose End discards the
// measurement. All Span methods are safe on a nil receiver, so call sites
// never need to guard against a nil pipeline.
func (p *Pipeline) StartSpan(name string, opts ...SpanOption) *Span {
	if p == nil || !p.sampler.ShouldSample() {
		return nil
	}
	s := &Span{
		p: p,
		trace: Trace{
			ID:    uuid.New(),
			Name:  name,
			Start: time.Now(),
		},
	}
	for _, fn := range opts {
		fn(s)
	}
	return s
}

// SetBranch labels which code path the operation took. The distribution of
// branch tags across a window feeds the branching entropy sub-score.
func (s *Span) SetBranch(tag string) {
	if s == nil {
		return
	}
	s.trace.BranchTag = tag
}

// SetWait records time the operation spent blocked (locks, I/O, channel
// waits). Ignored for cooperative spans, which count their full duration
// as wait.
func (s *Span) SetWait(d time.Duration) {
	if s == nil {
		return
	}
	s.trace.WaitTime = d
}

// SetCPUTime records the CPU time consumed inside the span, when the
// caller can measure it.
func (s *Span) SetCPUTime(d time.Duration) {
	if s == nil {
		return
	}
	s.trace.CPUTime = d
}

// SetMemory records the span's memory footprint: net allocation delta and
// peak usage, in bytes.
func (s *Span) SetMemory(delta, peak int64) {
	if s == nil {
		return
	}
	s.trace.MemoryDelta = delta
	s.trace.MemoryPeak = peak
}

// Fail marks the operation as errored. A nil err marks the error with no
// message.
func (s *Span) Fail(err error) {
	if s == nil {
		return
	}
	s.trace.IsError = true
	if err != nil {
		s.trace.ErrorMessage = err.Error()
	}
}

// End finishes the measurement and hands the trace to the collector. A
// full buffer sheds the trace rather than blocking; instrumentation never
// stalls the host. End is idempotent and safe on a nil (unsampled) span.
func (s *Span) End() {
	if s == nil || s.ended {
		return
	}
	s.ended = true

	s.trace.End = time.Now()
	s.trace.Duration = s.trace.End.Sub(s.trace.Start)
	if s.trace.WaitTime == 0 && s.trace.CPUTime > 0 && s.trace.CPUTime < s.trace.Duration {
		s.trace.WaitTime = s.trace.Duration - s.trace.CPUTime
	}

	// Dropped or invalid traces are counted by the collector.
	_ = s.p.collector.Ingest(s.trace)
}
