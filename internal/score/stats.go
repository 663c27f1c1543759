package score

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// cv returns the coefficient of variation (stdev/mean) of data.
// Fewer than two samples, or a zero mean, yield 0 — no variation signal.
func cv(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	mean := stat.Mean(data, nil)
	if mean == 0 {
		return 0
	}
	return stat.StdDev(data, nil) / mean
}

// stdev returns the sample standard deviation, 0 for fewer than two points.
func stdev(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	return stat.StdDev(data, nil)
}

// quantile returns the p-th quantile (p in [0,1]) of data.
// data is copied and sorted; the input is left untouched.
func quantile(data []float64, p float64) float64 {
	if len(data) == 0 {
		return 0
	}
	sorted := make([]float64, len(data))
	copy(sorted, data)
	sort.Float64s(sorted)
	return stat.Quantile(p, stat.Empirical, sorted, nil)
}

// median is the 0.5 quantile.
func median(data []float64) float64 {
	return quantile(data, 0.5)
}

// entropyNormalized returns Shannon entropy of the tag count distribution,
// normalized against the maximum possible entropy for the observed
// cardinality. The normalization constant is log2(max(cardinality, 2)), so a
// single observed tag yields zero normalized entropy rather than 0/0.
func entropyNormalized(counts map[string]int) float64 {
	total := 0
	for _, c := range counts {
		total += c
	}
	if total == 0 || len(counts) < 2 {
		return 0
	}

	entropy := 0.0
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / float64(total)
		entropy -= p * math.Log2(p)
	}

	maxEntropy := math.Log2(math.Max(float64(len(counts)), 2))
	return entropy / maxEntropy
}

// expDecay maps a badness metric (0 = perfectly stable) to a score in (0, 1]
// using exponential decay with sensitivity alpha.
func expDecay(metric, alpha float64) float64 {
	return math.Exp(-alpha * metric)
}

// clamp bounds v to [lo, hi].
func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}
