// Package model defines the core data types shared across the pipeline:
// traces, scoring reports, history records, and alert events.
package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Validation errors returned by Trace.Validate.
var (
	ErrMissingName      = errors.New("model: trace name is required")
	ErrNegativeDuration = errors.New("model: trace duration is negative")
	ErrNegativeWait     = errors.New("model: trace wait time is negative")
	ErrInvalidWindow    = errors.New("model: trace end precedes start")
)

// Trace is one observed execution unit. It is immutable once created:
// downstream stages (collectors, scoring) read it but never mutate it.
//
// Optional fields use zero values as "not observed": CPUTime and WaitTime of
// zero mean the split was not measured, MemoryPeak of zero means no memory
// sampling, and an empty BranchTag excludes the trace from entropy scoring.
type Trace struct {
	ID     uuid.UUID `json:"trace_id"`
	Name   string    `json:"name"`
	Module string    `json:"module,omitempty"`

	Start    time.Time     `json:"start_time"`
	End      time.Time     `json:"end_time"`
	Duration time.Duration `json:"duration"`

	// CPUTime is process CPU consumed inside the span, when measurable.
	CPUTime time.Duration `json:"cpu_time,omitempty"`
	// WaitTime is Duration minus CPUTime when both are known. For traces
	// from cooperatively scheduled contexts (Cooperative true) it is
	// approximated as the full wall-clock duration, since active-execution
	// time cannot be isolated from scheduler time there.
	WaitTime    time.Duration `json:"wait_time,omitempty"`
	Cooperative bool          `json:"cooperative,omitempty"`

	MemoryDelta int64 `json:"memory_delta,omitempty"` // bytes, signed
	MemoryPeak  int64 `json:"memory_peak,omitempty"`  // bytes

	IsError      bool   `json:"is_error"`
	ErrorMessage string `json:"error_message,omitempty"`

	// BranchTag labels which code path the execution took; its distribution
	// across a batch feeds the branching entropy sub-score.
	BranchTag string `json:"branch_tag,omitempty"`
}

// Validate reports whether the trace is well-formed enough to enter scoring.
// Malformed traces are rejected at ingest and never reach the engine.
func (t Trace) Validate() error {
	if t.Name == "" {
		return ErrMissingName
	}
	if t.Duration < 0 {
		return ErrNegativeDuration
	}
	if t.WaitTime < 0 {
		return ErrNegativeWait
	}
	if !t.End.IsZero() && !t.Start.IsZero() && t.End.Before(t.Start) {
		return ErrInvalidWindow
	}
	return nil
}

// EffectiveWait returns the wait time used by the concurrency chaos score.
// Cooperative traces report their full wall-clock duration; see WaitTime.
func (t Trace) EffectiveWait() time.Duration {
	if t.Cooperative {
		return t.Duration
	}
	return t.WaitTime
}

// Batch is an ordered, finite set of traces drained from a collector at one
// instant. Ownership transfers fully to the caller of Drain — the collector
// retains no references afterwards.
type Batch []Trace
