package score

import (
	"math"
	"testing"
)

func TestCV(t *testing.T) {
	if got := cv([]float64{5, 5, 5, 5}); got != 0 {
		t.Fatalf("cv of constant data = %v, want 0", got)
	}
	if got := cv([]float64{10}); got != 0 {
		t.Fatalf("cv of single sample = %v, want 0", got)
	}
	if got := cv(nil); got != 0 {
		t.Fatalf("cv of nil = %v, want 0", got)
	}

	// More spread must mean more cv.
	tight := cv([]float64{9, 10, 11})
	wide := cv([]float64{1, 10, 19})
	if wide <= tight {
		t.Fatalf("cv(wide)=%v should exceed cv(tight)=%v", wide, tight)
	}
}

func TestQuantileAndMedian(t *testing.T) {
	data := []float64{3, 1, 2, 5, 4}
	if got := median(data); got != 3 {
		t.Fatalf("median = %v, want 3", got)
	}
	// quantile must not mutate its input.
	if data[0] != 3 {
		t.Fatal("quantile mutated its input")
	}
	if got := quantile(data, 1.0); got != 5 {
		t.Fatalf("q1.0 = %v, want 5", got)
	}
	if got := quantile(nil, 0.95); got != 0 {
		t.Fatalf("quantile of empty = %v, want 0", got)
	}
}

func TestEntropyNormalized(t *testing.T) {
	// Uniform two-way split is maximal entropy.
	uniform := entropyNormalized(map[string]int{"a": 50, "b": 50})
	if math.Abs(uniform-1.0) > 1e-9 {
		t.Fatalf("uniform entropy = %v, want 1.0", uniform)
	}

	// A single tag carries no branching information.
	if got := entropyNormalized(map[string]int{"a": 100}); got != 0 {
		t.Fatalf("single-tag entropy = %v, want 0", got)
	}
	if got := entropyNormalized(nil); got != 0 {
		t.Fatalf("empty entropy = %v, want 0", got)
	}

	// Skewed beats nothing but stays below uniform.
	skewed := entropyNormalized(map[string]int{"a": 95, "b": 5})
	if skewed <= 0 || skewed >= uniform {
		t.Fatalf("skewed entropy = %v, want in (0, %v)", skewed, uniform)
	}
}

func TestExpDecay(t *testing.T) {
	if got := expDecay(0, 2); got != 1.0 {
		t.Fatalf("expDecay(0) = %v, want 1.0", got)
	}
	if a, b := expDecay(1, 2), expDecay(2, 2); b >= a {
		t.Fatalf("expDecay must be monotonically decreasing: f(1)=%v f(2)=%v", a, b)
	}
	if got := expDecay(100, 2); got < 0 || got > 1e-10 {
		t.Fatalf("expDecay(100) = %v, want ~0 and non-negative", got)
	}
}

func TestClamp(t *testing.T) {
	if got := clamp(1.5, 0, 1); got != 1 {
		t.Fatalf("clamp above = %v", got)
	}
	if got := clamp(-0.5, 0, 1); got != 0 {
		t.Fatalf("clamp below = %v", got)
	}
	if got := clamp(0.5, 0, 1); got != 0.5 {
		t.Fatalf("clamp inside = %v", got)
	}
}
