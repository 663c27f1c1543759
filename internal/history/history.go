// Package history persists scoring outcomes and serves the rolling window
// the regression rule compares against. Backends are pluggable: embedded
// SQLite, Postgres, or a write-only Prometheus endpoint.
package history

import (
	"context"
	"time"

	"github.com/Be-Wagile-India/pypss/internal/model"
)

// Store persists HistoryRecords. Recent and Since return records strictly
// ordered newest-first; regression comparison depends on that ordering.
type Store interface {
	Append(ctx context.Context, rec model.HistoryRecord) error
	Recent(ctx context.Context, n int) ([]model.HistoryRecord, error)
	Since(ctx context.Context, d time.Duration) ([]model.HistoryRecord, error)
	Close() error
}

// Noop discards appends and serves an empty window. Used when no history
// backend is configured — scoring and threshold alerts still work, only the
// regression rule stays silent.
type Noop struct{}

// Append implements Store.
func (Noop) Append(ctx context.Context, rec model.HistoryRecord) error { return nil }

// Recent implements Store.
func (Noop) Recent(ctx context.Context, n int) ([]model.HistoryRecord, error) { return nil, nil }

// Since implements Store.
func (Noop) Since(ctx context.Context, d time.Duration) ([]model.HistoryRecord, error) {
	return nil, nil
}

// Close implements Store.
func (Noop) Close() error { return nil }

// CheckRegression compares current against the mean PSS of the first limit
// records (newest first). It reports the baseline mean and whether current
// fell more than drop below it. No records means no baseline and no
// regression.
func CheckRegression(current float64, records []model.HistoryRecord, limit int, drop float64) (baseline float64, regressed bool) {
	if len(records) == 0 {
		return 0, false
	}
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	sum := 0.0
	for _, r := range records {
		sum += r.PSS
	}
	baseline = sum / float64(len(records))
	return baseline, current < baseline-drop
}
