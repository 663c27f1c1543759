package score

import (
	"log/slog"
	"testing"
	"time"

	"github.com/Be-Wagile-India/pypss/internal/model"
)

func metricReturning(code string, w, val float64) Metric {
	return Metric{
		Code:          code,
		Name:          code,
		DefaultWeight: w,
		Compute:       func(model.Batch) float64 { return val },
	}
}

func TestRegistryRegisterRejectsBadMetrics(t *testing.T) {
	r := NewRegistry()

	if err := r.Register(Metric{Name: "no code", Compute: func(model.Batch) float64 { return 1 }}); err == nil {
		t.Fatal("expected error for missing code")
	}
	if err := r.Register(metricReturning("ts", 0.1, 1)); err == nil {
		t.Fatal("expected error for reserved code")
	}
	if err := r.Register(Metric{Code: "X", DefaultWeight: 0.1}); err == nil {
		t.Fatal("expected error for nil compute")
	}
	if err := r.Register(metricReturning("X", 1.5, 1)); err == nil {
		t.Fatal("expected error for out-of-range weight")
	}

	if err := r.Register(metricReturning("X", 0.1, 1)); err != nil {
		t.Fatalf("valid metric rejected: %v", err)
	}
	if err := r.Register(metricReturning("X", 0.1, 1)); err == nil {
		t.Fatal("expected error for duplicate code")
	}
}

func TestRegistryTotalWeightHonorsOverrides(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(metricReturning("A", 0.1, 1)); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(metricReturning("B", 0.2, 1)); err != nil {
		t.Fatal(err)
	}

	if got := r.TotalWeight(nil); got != 0.1+0.2 {
		t.Fatalf("TotalWeight = %v", got)
	}
	if got := r.TotalWeight(map[string]float64{"A": 0.05}); got != 0.05+0.2 {
		t.Fatalf("TotalWeight with override = %v", got)
	}
}

func TestComputeAllClampsAndSurvivesPanic(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(metricReturning("HOT", 0.1, 3.7)); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(Metric{
		Code:          "BAD",
		Name:          "panics",
		DefaultWeight: 0.1,
		Compute:       func(model.Batch) float64 { panic("plugin bug") },
	}); err != nil {
		t.Fatal(err)
	}

	results := r.computeAll(model.Batch{{Name: "x"}}, slog.Default())

	if got := results["HOT"]; got != 1.0 {
		t.Fatalf("out-of-range plugin score not clamped: %v", got)
	}
	if _, present := results["BAD"]; present {
		t.Fatal("panicking plugin must be skipped, not reported")
	}
}

func TestIOStability(t *testing.T) {
	m := IOStability()

	// Consistent wait/duration ratio scores perfect.
	steady := make(model.Batch, 10)
	for i := range steady {
		steady[i] = model.Trace{Name: "op", Duration: 10 * time.Millisecond, WaitTime: 5 * time.Millisecond}
	}
	if got := m.Compute(steady); got != 1.0 {
		t.Fatalf("steady ratios = %v, want 1.0", got)
	}

	// Jittery ratios score lower.
	jittery := make(model.Batch, 10)
	for i := range jittery {
		jittery[i] = model.Trace{
			Name:     "op",
			Duration: 10 * time.Millisecond,
			WaitTime: time.Duration(i) * time.Millisecond,
		}
	}
	if got := m.Compute(jittery); got >= 1.0 {
		t.Fatalf("jittery ratios = %v, want < 1.0", got)
	}

	// Too few usable samples is neutral.
	if got := m.Compute(model.Batch{{Name: "op"}}); got != 1.0 {
		t.Fatalf("insufficient samples = %v, want 1.0", got)
	}
}
