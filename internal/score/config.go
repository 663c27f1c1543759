package score

import (
	"fmt"
	"math"
)

// Config holds the weights and sensitivity coefficients for one scoring
// pass. The zero value is not usable; start from DefaultConfig.
type Config struct {
	// Weights for the five built-in sub-scores. Together with any
	// registered plugin weights they must sum to 1.0 ± 0.01.
	WeightTS float64
	WeightMS float64
	WeightEV float64
	WeightBE float64
	WeightCC float64

	// Sensitivity coefficients. Higher values punish instability harder.
	Alpha float64 // timing + concurrency CV decay
	Beta  float64 // tail-ratio damping
	Gamma float64 // memory metric decay
	Delta float64 // error metric decay

	// TailPercentile is the upper percentile compared against p50 for the
	// timing tail ratio.
	TailPercentile float64

	// MemSpikeThresholdRatio is the peak/median ratio beyond which the
	// memory score takes an extra spike penalty.
	MemSpikeThresholdRatio float64
	// MemoryEpsilon guards the median against division by near-zero.
	MemoryEpsilon float64

	// ErrorSpikeThreshold is the mean error rate beyond which the spike
	// penalty applies. ErrorSpikeImpactMultiplier scales that penalty.
	ErrorSpikeThreshold        float64
	ErrorSpikeImpactMultiplier float64
	// ErrorVMRMultiplier scales the bucketed variance-to-mean ratio's
	// contribution to the base error metric.
	ErrorVMRMultiplier float64
	// ErrorBuckets is how many time buckets the batch is split into for
	// burstiness (VMR) estimation.
	ErrorBuckets int
	// ConsecutiveErrorThreshold is the run length at which the
	// consecutive-error penalty starts; the decay multiplier sharpens it.
	ConsecutiveErrorThreshold       int
	ConsecutiveErrorDecayMultiplier float64

	// ConcurrencyWaitThreshold filters out negligible waits before the
	// concurrency chaos CV is computed.
	ConcurrencyWaitThreshold float64 // seconds

	// CustomWeights overrides the default weight of registered plugin
	// metrics, keyed by metric code.
	CustomWeights map[string]float64
}

// DefaultConfig returns the standard scoring parameters.
func DefaultConfig() Config {
	return Config{
		WeightTS: 0.30,
		WeightMS: 0.20,
		WeightEV: 0.20,
		WeightBE: 0.15,
		WeightCC: 0.15,

		Alpha: 2.0,
		Beta:  1.0,
		Gamma: 2.0,
		Delta: 1.0,

		TailPercentile: 0.95,

		MemSpikeThresholdRatio: 1.5,
		MemoryEpsilon:          1e-9,

		ErrorSpikeThreshold:             0.1,
		ErrorSpikeImpactMultiplier:      0.5,
		ErrorVMRMultiplier:              0.5,
		ErrorBuckets:                    10,
		ConsecutiveErrorThreshold:       3,
		ConsecutiveErrorDecayMultiplier: 2.0,

		ConcurrencyWaitThreshold: 0.001,
	}
}

// Validate fails fast on parameters that would silently distort scoring.
// extraWeight is the summed weight of registered plugin metrics.
func (c Config) Validate(extraWeight float64) error {
	total := c.WeightTS + c.WeightMS + c.WeightEV + c.WeightBE + c.WeightCC + extraWeight
	if math.Abs(total-1.0) > 0.01 {
		return fmt.Errorf("score: metric weights sum to %.3f, want 1.0 ±0.01", total)
	}
	for _, w := range []float64{c.WeightTS, c.WeightMS, c.WeightEV, c.WeightBE, c.WeightCC} {
		if w < 0 {
			return fmt.Errorf("score: negative metric weight %.3f", w)
		}
	}
	if c.Alpha < 0 || c.Beta < 0 || c.Gamma < 0 || c.Delta < 0 {
		return fmt.Errorf("score: sensitivity coefficients must be non-negative")
	}
	if c.TailPercentile <= 0.5 || c.TailPercentile >= 1.0 {
		return fmt.Errorf("score: tail percentile %.2f out of range (0.5, 1.0)", c.TailPercentile)
	}
	if c.ErrorSpikeThreshold < 0 || c.ErrorSpikeThreshold >= 1.0 {
		return fmt.Errorf("score: error spike threshold %.2f out of range [0, 1)", c.ErrorSpikeThreshold)
	}
	if c.ErrorBuckets < 1 {
		return fmt.Errorf("score: error buckets must be at least 1, got %d", c.ErrorBuckets)
	}
	if c.ConsecutiveErrorThreshold < 1 {
		return fmt.Errorf("score: consecutive error threshold must be at least 1, got %d", c.ConsecutiveErrorThreshold)
	}
	return nil
}
