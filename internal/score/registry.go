package score

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/Be-Wagile-India/pypss/internal/model"
)

// Metric is a custom stability metric contributed at startup. Compute must
// return a score in [0, 1]; results outside that range are clamped. There is
// no dynamic loading — metrics are registered explicitly by code.
type Metric struct {
	// Code is the short identifier used in weights, reports, and alerts
	// (e.g. "IO"). Must be unique and must not collide with the built-in
	// keys ts/ms/ev/be/cc/pss.
	Code string
	Name string
	// DefaultWeight is this metric's share of the composite unless
	// overridden via Config.CustomWeights.
	DefaultWeight float64
	Compute       func(model.Batch) float64
}

var reservedCodes = map[string]bool{
	"pss": true, "ts": true, "ms": true, "ev": true, "be": true, "cc": true,
}

// Registry holds registered plugin metrics. Registration happens before the
// pipeline starts; computeAll is then read-only and safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	metrics map[string]Metric
}

// NewRegistry creates an empty metric registry.
func NewRegistry() *Registry {
	return &Registry{metrics: make(map[string]Metric)}
}

// Register adds a metric. Duplicate or reserved codes and nil compute
// functions are rejected.
func (r *Registry) Register(m Metric) error {
	if m.Code == "" {
		return fmt.Errorf("score: metric code is required")
	}
	if reservedCodes[m.Code] {
		return fmt.Errorf("score: metric code %q is reserved", m.Code)
	}
	if m.Compute == nil {
		return fmt.Errorf("score: metric %q has no compute function", m.Code)
	}
	if m.DefaultWeight < 0 || m.DefaultWeight > 1 {
		return fmt.Errorf("score: metric %q weight %.3f out of range [0, 1]", m.Code, m.DefaultWeight)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.metrics[m.Code]; dup {
		return fmt.Errorf("score: metric %q already registered", m.Code)
	}
	r.metrics[m.Code] = m
	return nil
}

// TotalWeight returns the summed effective weight of all registered metrics,
// honoring per-code overrides. Used by startup weight validation.
func (r *Registry) TotalWeight(overrides map[string]float64) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0.0
	for code, m := range r.metrics {
		if w, ok := overrides[code]; ok {
			total += w
		} else {
			total += m.DefaultWeight
		}
	}
	return total
}

// Codes returns the registered metric codes in sorted order.
func (r *Registry) Codes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	codes := make([]string, 0, len(r.metrics))
	for code := range r.metrics {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

func (r *Registry) weight(code string, overrides map[string]float64) float64 {
	if w, ok := overrides[code]; ok {
		return w
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.metrics[code].DefaultWeight
}

// computeAll runs every registered metric over the batch. A panicking or
// misbehaving plugin is logged and skipped — it must not take down the
// scoring pass or the other plugins.
func (r *Registry) computeAll(batch model.Batch, logger *slog.Logger) map[string]float64 {
	r.mu.Lock()
	metrics := make([]Metric, 0, len(r.metrics))
	for _, m := range r.metrics {
		metrics = append(metrics, m)
	}
	r.mu.Unlock()

	if len(metrics) == 0 {
		return nil
	}

	results := make(map[string]float64, len(metrics))
	for _, m := range metrics {
		val, ok := safeCompute(m, batch, logger)
		if !ok {
			continue
		}
		results[m.Code] = clamp(val, 0, 1)
	}
	return results
}

func safeCompute(m Metric, batch model.Batch, logger *slog.Logger) (val float64, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("score: plugin metric panicked", "code", m.Code, "panic", rec)
			ok = false
		}
	}()
	return m.Compute(batch), true
}

// IOStability is a reference plugin metric: it scores the consistency of the
// wait/duration ratio across traces. Stable I/O overhead scores near 1.0;
// jittery network or disk behavior pulls it down.
func IOStability() Metric {
	return Metric{
		Code:          "IO",
		Name:          "I/O Stability",
		DefaultWeight: 0.15,
		Compute: func(batch model.Batch) float64 {
			ratios := make([]float64, 0, len(batch))
			for _, t := range batch {
				d := t.Duration.Seconds()
				if d <= 0.0001 {
					continue
				}
				ratios = append(ratios, clamp(t.EffectiveWait().Seconds()/d, 0, 1))
			}
			if len(ratios) < 2 {
				return 1.0
			}
			return expDecay(cv(ratios), 2.0)
		},
	}
}
