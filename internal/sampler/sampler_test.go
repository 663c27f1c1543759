package sampler_test

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Be-Wagile-India/pypss/internal/sampler"
)

// testConfig returns a config with no adjustment throttle so each Observe
// takes effect immediately.
func testConfig(mode sampler.Mode) sampler.Config {
	cfg := sampler.DefaultConfig()
	cfg.Mode = mode
	cfg.MinInterval = 0
	return cfg
}

func newSampler(t *testing.T, cfg sampler.Config) *sampler.Sampler {
	t.Helper()
	s, err := sampler.New(cfg, slog.Default())
	require.NoError(t, err)
	return s
}

func TestNewStartsAtBaseRate(t *testing.T) {
	cfg := testConfig(sampler.ModeBalanced)
	cfg.BaseRate = 0.4
	s := newSampler(t, cfg)
	assert.Equal(t, 0.4, s.Rate())
}

func TestConfigValidate(t *testing.T) {
	bad := []func(*sampler.Config){
		func(c *sampler.Config) { c.Mode = "frantic" },
		func(c *sampler.Config) { c.MinRate = 0 },
		func(c *sampler.Config) { c.MaxRate = 1.5 },
		func(c *sampler.Config) { c.MaxRate = 0.005 }, // below min
		func(c *sampler.Config) { c.BaseRate = 0.001 },
		func(c *sampler.Config) { c.IncreaseStep = 0 },
		func(c *sampler.Config) { c.LowNoiseRate = 0.001 },
	}
	for i, mutate := range bad {
		cfg := testConfig(sampler.ModeBalanced)
		mutate(&cfg)
		assert.Error(t, cfg.Validate(), "case %d", i)
	}
	require.NoError(t, sampler.DefaultConfig().Validate())
}

func TestHighLoadDropsToMinRateInOneTick(t *testing.T) {
	s := newSampler(t, testConfig(sampler.ModeHighLoad))

	s.Observe(sampler.Signals{QPS: 5_000})
	assert.Equal(t, 0.01, s.Rate(), "QPS over threshold must force MinRate immediately")

	// Load subsides: the rate climbs back toward base stepwise, not at once.
	s.Observe(sampler.Signals{QPS: 100})
	assert.InDelta(t, 0.11, s.Rate(), 1e-9)
	s.Observe(sampler.Signals{QPS: 100})
	assert.InDelta(t, 0.21, s.Rate(), 1e-9)
}

func TestErrorTriggeredJumpsToMax(t *testing.T) {
	cfg := testConfig(sampler.ModeErrorTriggered)
	cfg.BaseRate = 0.2
	s := newSampler(t, cfg)

	s.Observe(sampler.Signals{ErrorRate: 0.25})
	assert.Equal(t, 1.0, s.Rate())

	// Recovery decays stepwise back toward base.
	s.Observe(sampler.Signals{ErrorRate: 0.0})
	assert.InDelta(t, 0.95, s.Rate(), 1e-9)
}

func TestSurgeTriggersOnLag(t *testing.T) {
	cfg := testConfig(sampler.ModeSurge)
	cfg.BaseRate = 0.5
	s := newSampler(t, cfg)

	s.Observe(sampler.Signals{Lag: 0.2})
	assert.Equal(t, 1.0, s.Rate())

	s.Observe(sampler.Signals{Lag: 0.0})
	assert.InDelta(t, 0.95, s.Rate(), 1e-9)
}

func TestLowNoiseHalvesDistanceToFloor(t *testing.T) {
	cfg := testConfig(sampler.ModeLowNoise)
	cfg.BaseRate = 0.81
	cfg.LowNoiseRate = 0.01
	s := newSampler(t, cfg)

	s.Observe(sampler.Signals{})
	assert.InDelta(t, 0.41, s.Rate(), 1e-9)
	s.Observe(sampler.Signals{})
	assert.InDelta(t, 0.21, s.Rate(), 1e-9)

	// Degradation still raises the rate even in low-noise mode.
	s.Observe(sampler.Signals{ErrorRate: 0.5})
	assert.InDelta(t, 0.31, s.Rate(), 1e-9)
}

func TestBalancedRaisesOnDegradedScores(t *testing.T) {
	cfg := testConfig(sampler.ModeBalanced)
	cfg.BaseRate = 0.5
	s := newSampler(t, cfg)

	// EV below the degraded floor trips the increase.
	s.Observe(sampler.Signals{EV: 0.4, CC: 0.9})
	assert.InDelta(t, 0.6, s.Rate(), 1e-9)

	// A zero sub-score means "no data", not degradation.
	s.Observe(sampler.Signals{EV: 0, CC: 0})
	assert.InDelta(t, 0.55, s.Rate(), 1e-9, "stable tick decays toward base")
}

func TestRateStaysWithinBounds(t *testing.T) {
	cfg := testConfig(sampler.ModeBalanced)
	cfg.BaseRate = 0.9
	cfg.MaxRate = 1.0
	s := newSampler(t, cfg)

	for i := 0; i < 20; i++ {
		s.Observe(sampler.Signals{ErrorRate: 0.9})
	}
	assert.Equal(t, 1.0, s.Rate(), "rate must clamp at MaxRate")
}

func TestObserveThrottledByMinInterval(t *testing.T) {
	cfg := testConfig(sampler.ModeErrorTriggered)
	cfg.BaseRate = 0.2
	cfg.MinInterval = time.Hour
	s := newSampler(t, cfg)

	s.Observe(sampler.Signals{ErrorRate: 0.5})
	require.Equal(t, 1.0, s.Rate())

	// Within MinInterval of the last adjustment, observations are ignored.
	s.Observe(sampler.Signals{ErrorRate: 0.0})
	assert.Equal(t, 1.0, s.Rate())
}

func TestShouldSample(t *testing.T) {
	cfg := testConfig(sampler.ModeBalanced)
	cfg.BaseRate = 1.0
	s := newSampler(t, cfg)
	for i := 0; i < 100; i++ {
		require.True(t, s.ShouldSample(), "rate 1.0 must always sample")
	}

	cfg = testConfig(sampler.ModeBalanced)
	cfg.BaseRate = 0.5
	s = newSampler(t, cfg)
	sampled := 0
	for i := 0; i < 10_000; i++ {
		if s.ShouldSample() {
			sampled++
		}
	}
	// Loose statistical bound: P(outside) is negligible at 10k draws.
	assert.InDelta(t, 5_000, sampled, 700)
}
