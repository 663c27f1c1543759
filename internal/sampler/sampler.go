// Package sampler implements the adaptive sampling control loop. The
// sampler observes recent scoring output once per evaluation tick and
// adjusts the fraction of calls that materialize a trace; instrumentation
// call sites read the current rate through a single atomic load.
package sampler

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"
)

// Mode selects the rate-adjustment strategy. Modes are explicit
// configuration, not inferred at runtime; within balanced mode, when several
// signals trip in the same tick the priority is error spike, then lag surge,
// then degraded sub-scores — evaluated once per tick, so the rate never
// oscillates faster than the tick interval.
type Mode string

const (
	// ModeBalanced raises the rate toward MaxRate when error volatility or
	// concurrency chaos degrade, and decays toward BaseRate otherwise.
	ModeBalanced Mode = "balanced"
	// ModeHighLoad forces MinRate once QPS exceeds HighQPSThreshold.
	ModeHighLoad Mode = "high_load"
	// ModeErrorTriggered jumps straight to MaxRate on an error-rate
	// spike, independent of load.
	ModeErrorTriggered Mode = "error_triggered"
	// ModeSurge jumps to MaxRate on high tail-latency (lag) events.
	ModeSurge Mode = "surge"
	// ModeLowNoise decays aggressively toward LowNoiseRate while the
	// system stays stable.
	ModeLowNoise Mode = "low_noise"
)

// Config holds the sampler's per-mode thresholds and rate bounds.
type Config struct {
	Mode     Mode
	BaseRate float64 // rate the sampler decays toward when stable
	MinRate  float64
	MaxRate  float64

	IncreaseStep float64 // per-tick increase on degradation
	DecreaseStep float64 // per-tick decay toward baseline

	HighQPSThreshold   float64 // high_load trip point, calls/second
	ErrorRateThreshold float64 // error-spike trip point, fraction
	LagThreshold       float64 // tail-latency trip point, seconds
	// DegradedScoreThreshold is the sub-score floor below which balanced
	// mode treats EV or CC as degraded.
	DegradedScoreThreshold float64
	// LowNoiseRate is the floor low_noise mode decays toward.
	LowNoiseRate float64

	// MinInterval throttles adjustments: observations arriving faster
	// than this are ignored, pinning transitions to the tick cadence.
	MinInterval time.Duration
}

// DefaultConfig returns the standard sampler parameters.
func DefaultConfig() Config {
	return Config{
		Mode:                   ModeBalanced,
		BaseRate:               1.0,
		MinRate:                0.01,
		MaxRate:                1.0,
		IncreaseStep:           0.1,
		DecreaseStep:           0.05,
		HighQPSThreshold:       1000.0,
		ErrorRateThreshold:     0.1,
		LagThreshold:           0.05,
		DegradedScoreThreshold: 0.7,
		LowNoiseRate:           0.01,
		MinInterval:            5 * time.Second,
	}
}

// Validate fails fast on inconsistent rate bounds or thresholds.
func (c Config) Validate() error {
	switch c.Mode {
	case ModeBalanced, ModeHighLoad, ModeErrorTriggered, ModeSurge, ModeLowNoise:
	default:
		return fmt.Errorf("sampler: unknown mode %q", c.Mode)
	}
	if c.MinRate <= 0 || c.MinRate > 1 {
		return fmt.Errorf("sampler: min rate %.3f out of range (0, 1]", c.MinRate)
	}
	if c.MaxRate < c.MinRate || c.MaxRate > 1 {
		return fmt.Errorf("sampler: max rate %.3f out of range [min, 1]", c.MaxRate)
	}
	if c.BaseRate < c.MinRate || c.BaseRate > c.MaxRate {
		return fmt.Errorf("sampler: base rate %.3f outside [min, max]", c.BaseRate)
	}
	if c.IncreaseStep <= 0 || c.DecreaseStep <= 0 {
		return fmt.Errorf("sampler: adjustment steps must be positive")
	}
	if c.LowNoiseRate < c.MinRate {
		return fmt.Errorf("sampler: low-noise rate %.3f below min rate", c.LowNoiseRate)
	}
	return nil
}

// Signals is one tick's worth of observed behavior, derived from the latest
// report and collector counters.
type Signals struct {
	QPS       float64 // observed ingest rate over the tick window
	ErrorRate float64 // fraction of traces that errored
	Lag       float64 // p95 latency in seconds, the tail "lag" proxy
	EV        float64 // latest error volatility sub-score
	CC        float64 // latest concurrency chaos sub-score
}

// Sampler is the process-wide sampling state. Observe is called by exactly
// one control path per tick; Rate and ShouldSample are lock-free and safe
// from any number of instrumentation call sites.
type Sampler struct {
	cfg    Config
	logger *slog.Logger

	rateBits atomic.Uint64 // math.Float64bits of the current rate

	mu         sync.Mutex // guards lastAdjust
	lastAdjust time.Time
}

// New creates a sampler starting at the configured base rate.
func New(cfg Config, logger *slog.Logger) (*Sampler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Sampler{cfg: cfg, logger: logger}
	s.setRate(cfg.BaseRate)
	return s, nil
}

// Rate returns the current sampling rate in [MinRate, MaxRate].
func (s *Sampler) Rate() float64 {
	return math.Float64frombits(s.rateBits.Load())
}

// ShouldSample reports whether the calling site should materialize a trace
// for this call. One atomic load plus one PRNG draw; never locks.
func (s *Sampler) ShouldSample() bool {
	rate := s.Rate()
	if rate >= 1.0 {
		return true
	}
	return rand.Float64() < rate
}

// Mode returns the configured operating mode.
func (s *Sampler) Mode() Mode { return s.cfg.Mode }

// Observe feeds one tick's signals into the control loop. Calls arriving
// within MinInterval of the previous adjustment are ignored, so the rate
// moves at most once per tick interval.
func (s *Sampler) Observe(sig Signals) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if !s.lastAdjust.IsZero() && now.Sub(s.lastAdjust) < s.cfg.MinInterval {
		return
	}

	old := s.Rate()
	target := s.target(sig, old)
	target = math.Max(s.cfg.MinRate, math.Min(s.cfg.MaxRate, target))

	if target != old {
		s.setRate(target)
		s.lastAdjust = now
		s.logger.Info("sampler: rate adjusted",
			"mode", string(s.cfg.Mode), "from", old, "to", target)
	}
}

func (s *Sampler) target(sig Signals, current float64) float64 {
	switch s.cfg.Mode {
	case ModeHighLoad:
		if sig.QPS > s.cfg.HighQPSThreshold {
			return s.cfg.MinRate
		}
		return stepToward(current, s.cfg.BaseRate, s.cfg.IncreaseStep)

	case ModeErrorTriggered:
		if sig.ErrorRate > s.cfg.ErrorRateThreshold {
			return s.cfg.MaxRate
		}
		return stepToward(current, s.cfg.BaseRate, s.cfg.DecreaseStep)

	case ModeSurge:
		if sig.Lag > s.cfg.LagThreshold {
			return s.cfg.MaxRate
		}
		return stepToward(current, s.cfg.BaseRate, s.cfg.DecreaseStep)

	case ModeLowNoise:
		if s.degraded(sig) {
			return current + s.cfg.IncreaseStep
		}
		// Aggressive decay: halve the distance to the floor each tick.
		return s.cfg.LowNoiseRate + (current-s.cfg.LowNoiseRate)/2

	default: // ModeBalanced
		// Any tripped signal (error spike, lag surge, degraded EV/CC)
		// raises the rate by one step; they all resolve to the same
		// adjustment, so one combined degradation test suffices.
		if s.degraded(sig) {
			return current + s.cfg.IncreaseStep
		}
		return stepToward(current, s.cfg.BaseRate, s.cfg.DecreaseStep)
	}
}

// degraded reports whether any instability signal trips its threshold.
func (s *Sampler) degraded(sig Signals) bool {
	if sig.ErrorRate > s.cfg.ErrorRateThreshold {
		return true
	}
	if sig.Lag > s.cfg.LagThreshold {
		return true
	}
	if sig.EV > 0 && sig.EV < s.cfg.DegradedScoreThreshold {
		return true
	}
	if sig.CC > 0 && sig.CC < s.cfg.DegradedScoreThreshold {
		return true
	}
	return false
}

func (s *Sampler) setRate(rate float64) {
	s.rateBits.Store(math.Float64bits(rate))
}

// stepToward moves current one step toward target, clamping at the target.
func stepToward(current, target, step float64) float64 {
	if current < target {
		return math.Min(target, current+step)
	}
	if current > target {
		return math.Max(target, current-step)
	}
	return current
}
