package score_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Be-Wagile-India/pypss/internal/score"
)

func TestDefaultConfigValidates(t *testing.T) {
	require.NoError(t, score.DefaultConfig().Validate(0))
}

func TestConfigValidateWeightSum(t *testing.T) {
	cfg := score.DefaultConfig()

	// A registered plugin must bring the total back to 1.0.
	assert.Error(t, cfg.Validate(0.15), "extra plugin weight pushes the sum past 1.0")

	cfg.WeightCC = 0 // give the plugin CC's share
	require.NoError(t, cfg.Validate(0.15))

	cfg.WeightTS = -0.1
	assert.Error(t, cfg.Validate(0.25), "negative weights are invalid even if the sum works out")
}

func TestConfigValidateRejectsBadParameters(t *testing.T) {
	mutations := map[string]func(*score.Config){
		"negative alpha":        func(c *score.Config) { c.Alpha = -1 },
		"tail percentile low":   func(c *score.Config) { c.TailPercentile = 0.5 },
		"tail percentile high":  func(c *score.Config) { c.TailPercentile = 1.0 },
		"error spike threshold": func(c *score.Config) { c.ErrorSpikeThreshold = 1.0 },
		"zero error buckets":    func(c *score.Config) { c.ErrorBuckets = 0 },
		"zero consecutive":      func(c *score.Config) { c.ConsecutiveErrorThreshold = 0 },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			cfg := score.DefaultConfig()
			mutate(&cfg)
			assert.Error(t, cfg.Validate(0))
		})
	}
}
