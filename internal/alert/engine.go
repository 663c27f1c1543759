package alert

import (
	"context"
	"log/slog"
	"time"

	"github.com/Be-Wagile-India/pypss/internal/model"
)

// Engine evaluates rules over each report and dispatches deduplicated
// events to the configured channels.
type Engine struct {
	rules    []Rule
	channels []Channel
	state    *State
	cooldown time.Duration
	logger   *slog.Logger
}

// NewEngine creates an alerting engine. state must not be nil; channels may
// be empty (evaluate-only mode, callers consume the returned events).
func NewEngine(rules []Rule, channels []Channel, state *State, cooldown time.Duration, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		rules:    rules,
		channels: channels,
		state:    state,
		cooldown: cooldown,
		logger:   logger,
	}
}

// Run evaluates every rule against the input, suppresses events still in
// cooldown, dispatches the survivors, and returns them in rule order. A
// failing channel is logged per event and never blocks the others.
func (e *Engine) Run(ctx context.Context, in EvalInput) []model.AlertEvent {
	if in.Now.IsZero() {
		in.Now = time.Now()
	}

	var fired []model.AlertEvent
	for _, rule := range e.rules {
		for _, event := range rule.Evaluate(in) {
			if !e.state.ShouldFire(event.DedupKey(), e.cooldown, in.Now) {
				e.logger.Debug("alert: suppressed by cooldown", "key", event.DedupKey())
				continue
			}
			fired = append(fired, event)
		}
	}

	for _, event := range fired {
		e.dispatch(ctx, event)
	}
	return fired
}

func (e *Engine) dispatch(ctx context.Context, event model.AlertEvent) {
	for _, ch := range e.channels {
		if err := ch.Send(ctx, event); err != nil {
			e.logger.Error("alert: channel dispatch failed",
				"channel", ch.Name(), "rule", event.RuleID, "error", err)
		}
	}
}

// SaveState persists cooldown state for the next process run.
func (e *Engine) SaveState() error {
	return e.state.Save()
}
