package score_test

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Be-Wagile-India/pypss/internal/model"
	"github.com/Be-Wagile-India/pypss/internal/score"
)

func newEngine(t *testing.T) *score.Engine {
	t.Helper()
	return score.New(score.DefaultConfig(), nil, slog.Default())
}

// steadyBatch builds n traces with the given duration, spaced one second
// apart so the batch has a well-defined time order.
func steadyBatch(n int, d time.Duration) model.Batch {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	batch := make(model.Batch, n)
	for i := range batch {
		start := base.Add(time.Duration(i) * time.Second)
		batch[i] = model.Trace{
			Name:     "op",
			Start:    start,
			End:      start.Add(d),
			Duration: d,
		}
	}
	return batch
}

func TestTailLatency(t *testing.T) {
	assert.Equal(t, 0.0, score.TailLatency(nil, 0.95))

	steady := steadyBatch(20, 200*time.Millisecond)
	assert.InDelta(t, 0.2, score.TailLatency(steady, 0.95), 1e-9)

	// A slow half dominates the tail even though the median stays fast.
	mixed := append(steadyBatch(10, 10*time.Millisecond), steadyBatch(10, 400*time.Millisecond)...)
	assert.InDelta(t, 0.4, score.TailLatency(mixed, 0.95), 1e-9)
	assert.InDelta(t, 0.01, score.TailLatency(mixed, 0.25), 1e-9)
}

func TestComputeEmptyBatch(t *testing.T) {
	report := newEngine(t).Compute(nil)

	assert.True(t, report.InsufficientData)
	assert.Equal(t, 100.0, report.PSS)
	assert.Equal(t, model.SubScores{TS: 1, MS: 1, EV: 1, BE: 1, CC: 1}, report.Scores)
	assert.Zero(t, report.SampleCount)
}

func TestComputeIdenticalTracesScoreNearPerfect(t *testing.T) {
	report := newEngine(t).Compute(steadyBatch(50, 10*time.Millisecond))

	assert.False(t, report.InsufficientData)
	assert.Equal(t, 50, report.SampleCount)
	assert.InDelta(t, 100.0, report.PSS, 0.5)
	assert.InDelta(t, 1.0, report.Scores.TS, 0.01)
	assert.Equal(t, 1.0, report.Scores.EV)
	assert.Equal(t, 1.0, report.Scores.BE)
}

func TestTimingStabilityPenalizesOutlier(t *testing.T) {
	e := newEngine(t)

	steady := e.Compute(steadyBatch(5, 10*time.Millisecond))

	spiky := steadyBatch(5, 10*time.Millisecond)
	spiky[4].Duration = 100 * time.Millisecond
	spiky[4].End = spiky[4].Start.Add(spiky[4].Duration)
	outlier := e.Compute(spiky)

	assert.Less(t, outlier.Scores.TS, steady.Scores.TS,
		"a latency outlier must lower timing stability")
	assert.Less(t, outlier.PSS, steady.PSS)
}

func TestMemoryStabilityPenalizesSpike(t *testing.T) {
	e := newEngine(t)

	flat := steadyBatch(10, time.Millisecond)
	for i := range flat {
		flat[i].MemoryPeak = 1 << 20
	}
	flatReport := e.Compute(flat)
	assert.InDelta(t, 1.0, flatReport.Scores.MS, 0.01)

	spiked := steadyBatch(10, time.Millisecond)
	for i := range spiked {
		spiked[i].MemoryPeak = 1 << 20
	}
	spiked[5].MemoryPeak = 10 << 20 // 10x the median, past the spike ratio
	spikedReport := e.Compute(spiked)

	assert.Less(t, spikedReport.Scores.MS, flatReport.Scores.MS)
}

func TestMemoryStabilityNeutralWithoutSamples(t *testing.T) {
	report := newEngine(t).Compute(steadyBatch(10, time.Millisecond))
	assert.Equal(t, 1.0, report.Scores.MS)
}

func TestErrorVolatilityClusteredWorseThanUniform(t *testing.T) {
	e := newEngine(t)

	// 10 errors out of 100, spread one per ten traces.
	uniform := steadyBatch(100, time.Millisecond)
	for i := 0; i < 100; i += 10 {
		uniform[i].IsError = true
	}
	uniformReport := e.Compute(uniform)

	// Same error rate, but all ten failures in one consecutive run.
	clustered := steadyBatch(100, time.Millisecond)
	for i := 40; i < 50; i++ {
		clustered[i].IsError = true
	}
	clusteredReport := e.Compute(clustered)

	assert.Less(t, clusteredReport.Scores.EV, uniformReport.Scores.EV,
		"clustered errors must score worse than uniformly spread errors at the same rate")
}

func TestErrorVolatilityNoErrorsIsPerfect(t *testing.T) {
	report := newEngine(t).Compute(steadyBatch(20, time.Millisecond))
	assert.Equal(t, 1.0, report.Scores.EV)
}

func TestBranchingEntropy(t *testing.T) {
	e := newEngine(t)

	// One branch: fully predictable.
	single := steadyBatch(20, time.Millisecond)
	for i := range single {
		single[i].BranchTag = "main"
	}
	assert.Equal(t, 1.0, e.Compute(single).Scores.BE)

	// Even two-way split: maximally unpredictable.
	split := steadyBatch(20, time.Millisecond)
	for i := range split {
		if i%2 == 0 {
			split[i].BranchTag = "a"
		} else {
			split[i].BranchTag = "b"
		}
	}
	assert.InDelta(t, 0.0, e.Compute(split).Scores.BE, 1e-9)

	// Untagged traces do not count against entropy.
	assert.Equal(t, 1.0, e.Compute(steadyBatch(20, time.Millisecond)).Scores.BE)
}

func TestConcurrencyChaos(t *testing.T) {
	e := newEngine(t)

	// Consistent waits are calm.
	calm := steadyBatch(10, 10*time.Millisecond)
	for i := range calm {
		calm[i].WaitTime = 5 * time.Millisecond
	}
	calmReport := e.Compute(calm)
	assert.InDelta(t, 1.0, calmReport.Scores.CC, 0.01)

	// Erratic waits are chaotic.
	chaotic := steadyBatch(10, 10*time.Millisecond)
	for i := range chaotic {
		chaotic[i].WaitTime = time.Duration(1+i*i) * time.Millisecond
	}
	chaoticReport := e.Compute(chaotic)
	assert.Less(t, chaoticReport.Scores.CC, calmReport.Scores.CC)

	// Sub-threshold waits are ignored entirely.
	negligible := steadyBatch(10, 10*time.Millisecond)
	for i := range negligible {
		negligible[i].WaitTime = time.Duration(i) * time.Microsecond
	}
	assert.Equal(t, 1.0, e.Compute(negligible).Scores.CC)
}

func TestCooperativeTracesUseFullDurationAsWait(t *testing.T) {
	e := newEngine(t)

	batch := steadyBatch(10, 10*time.Millisecond)
	for i := range batch {
		batch[i].Cooperative = true
		// Erratic durations so the wait spread is visible.
		batch[i].Duration = time.Duration(1+i*i) * time.Millisecond
		batch[i].End = batch[i].Start.Add(batch[i].Duration)
	}
	report := e.Compute(batch)
	assert.Less(t, report.Scores.CC, 1.0,
		"cooperative traces must feed duration into concurrency chaos")
}

func TestComputeModules(t *testing.T) {
	e := newEngine(t)

	batch := steadyBatch(30, time.Millisecond)
	for i := range batch {
		switch {
		case i < 10:
			batch[i].Module = "auth"
		case i < 20:
			batch[i].Module = "payments"
			batch[i].IsError = true
		}
		// The last ten stay unattributed.
	}
	report := e.Compute(batch)

	require.Len(t, report.Modules, 2)
	require.Contains(t, report.Modules, "auth")
	require.Contains(t, report.Modules, "payments")

	assert.Equal(t, 10, report.Modules["auth"].SampleCount)
	assert.Less(t, report.Modules["payments"].PSS, report.Modules["auth"].PSS,
		"the all-errors module must score below the clean one")
}

func TestComputeWindow(t *testing.T) {
	batch := steadyBatch(10, time.Millisecond)
	report := newEngine(t).Compute(batch)

	assert.Equal(t, batch[0].Start, report.WindowStart)
	assert.Equal(t, batch[9].End, report.WindowEnd)
}

func TestPSSMonotonicUnderDegradation(t *testing.T) {
	e := newEngine(t)

	healthy := e.Compute(steadyBatch(50, time.Millisecond))

	degraded := steadyBatch(50, time.Millisecond)
	for i := range degraded {
		if i%3 == 0 {
			degraded[i].IsError = true
		}
		degraded[i].Duration = time.Duration(1+i%17) * time.Millisecond
		degraded[i].End = degraded[i].Start.Add(degraded[i].Duration)
	}
	worse := e.Compute(degraded)

	assert.Less(t, worse.PSS, healthy.PSS)
	assert.GreaterOrEqual(t, worse.PSS, 0.0)
	assert.LessOrEqual(t, healthy.PSS, 100.0)
}

func TestCompositeWithPluginMetric(t *testing.T) {
	registry := score.NewRegistry()
	require.NoError(t, registry.Register(score.Metric{
		Code:          "FX",
		Name:          "fixed",
		DefaultWeight: 0.5,
		Compute:       func(model.Batch) float64 { return 0.0 },
	}))

	cfg := score.DefaultConfig()
	e := score.New(cfg, registry, slog.Default())

	report := e.Compute(steadyBatch(20, time.Millisecond))

	require.Contains(t, report.Custom, "FX")
	assert.Equal(t, 0.0, report.Custom["FX"])
	// Built-ins are all ~1.0 and the plugin contributes 0 at weight 0.5 of a
	// renormalized 1.5 total, so the composite lands near 100*(1.0/1.5).
	assert.InDelta(t, 66.7, report.PSS, 1.5)
}
