package pypss

import (
	"github.com/Be-Wagile-India/pypss/internal/alert"
	"github.com/Be-Wagile-India/pypss/internal/collector"
	"github.com/Be-Wagile-India/pypss/internal/history"
	"github.com/Be-Wagile-India/pypss/internal/model"
	"github.com/Be-Wagile-India/pypss/internal/score"
)

// Core data types. These are aliases so the instrumentation hot path and
// any external Collector/Store/Rule implementation share one concrete type
// with the internal packages; no conversion happens at the boundary.
type (
	// Trace is one recorded execution of an instrumented operation.
	Trace = model.Trace
	// Batch is a scoring window's worth of traces.
	Batch = model.Batch
	// Report is the output of one scoring pass.
	Report = model.Report
	// ModuleReport is the per-module breakdown inside a Report.
	ModuleReport = model.ModuleReport
	// SubScores holds the five built-in sub-scores, each in [0, 1].
	SubScores = model.SubScores
	// HistoryRecord is one persisted scoring outcome.
	HistoryRecord = model.HistoryRecord
	// AlertEvent is one fired alert.
	AlertEvent = model.AlertEvent
	// Severity is an alert severity level.
	Severity = model.Severity
)

// Severity levels.
const (
	SeverityInfo     = model.SeverityInfo
	SeverityWarning  = model.SeverityWarning
	SeverityCritical = model.SeverityCritical
)

// Extension points. Implementations provided via options replace or extend
// the built-in pipeline stages.
type (
	// Collector buffers traces between instrumentation and scoring.
	Collector = collector.Collector
	// Store persists scoring history for trend and regression analysis.
	Store = history.Store
	// Rule evaluates a report and emits alert events.
	Rule = alert.Rule
	// Channel delivers fired alerts to an external system.
	Channel = alert.Channel
	// Metric is a pluggable scoring metric folded into the composite.
	Metric = score.Metric
)

// Sentinel errors surfaced by Pipeline and Collector operations.
var (
	// ErrDropped is returned by Ingest when a trace was shed under load.
	ErrDropped = collector.ErrDropped
	// ErrClosed is returned by Ingest after the collector shut down.
	ErrClosed = collector.ErrClosed
)
