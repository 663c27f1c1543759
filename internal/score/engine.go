// Package score implements the Program Stability Score engine: a pure
// reduction from a finite batch of traces to five sub-scores and a weighted
// composite in [0, 100].
package score

import (
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/Be-Wagile-India/pypss/internal/model"
)

// Engine computes stability reports. It keeps no state across Compute calls
// beyond its configuration and the registered plugin metrics, so one Engine
// may be shared by concurrent callers.
type Engine struct {
	cfg      Config
	registry *Registry
	logger   *slog.Logger
}

// New creates a scoring engine. registry may be nil when no plugin metrics
// are in play.
func New(cfg Config, registry *Registry, logger *slog.Logger) *Engine {
	if registry == nil {
		registry = NewRegistry()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{cfg: cfg, registry: registry, logger: logger}
}

// Compute reduces a batch into a Report. An empty batch yields a neutral
// report flagged InsufficientData instead of dividing by zero anywhere.
func (e *Engine) Compute(batch model.Batch) model.Report {
	if len(batch) == 0 {
		return model.Report{
			PSS:              100,
			Scores:           model.SubScores{TS: 1, MS: 1, EV: 1, BE: 1, CC: 1},
			InsufficientData: true,
			WindowStart:      time.Now(),
			WindowEnd:        time.Now(),
		}
	}

	scores, custom := e.computeScores(batch)
	report := model.Report{
		PSS:         e.composite(scores, custom),
		Scores:      scores,
		Custom:      custom,
		SampleCount: len(batch),
	}

	report.WindowStart, report.WindowEnd = window(batch)
	report.Modules = e.computeModules(batch)
	return report
}

func (e *Engine) computeScores(batch model.Batch) (model.SubScores, map[string]float64) {
	scores := model.SubScores{
		TS: e.timingStability(batch),
		MS: e.memoryStability(batch),
		EV: e.errorVolatility(batch),
		BE: e.branchingEntropy(batch),
		CC: e.concurrencyChaos(batch),
	}
	return scores, e.registry.computeAll(batch, e.logger)
}

func (e *Engine) computeModules(batch model.Batch) map[string]model.ModuleReport {
	byModule := make(map[string]model.Batch)
	for _, t := range batch {
		if t.Module == "" {
			continue
		}
		byModule[t.Module] = append(byModule[t.Module], t)
	}
	if len(byModule) == 0 {
		return nil
	}

	modules := make(map[string]model.ModuleReport, len(byModule))
	for name, subset := range byModule {
		scores, custom := e.computeScores(subset)
		modules[name] = model.ModuleReport{
			PSS:         e.composite(scores, custom),
			Scores:      scores,
			SampleCount: len(subset),
		}
	}
	return modules
}

// composite folds the built-in sub-scores and plugin scores into the final
// PSS using the configured weights. If the weights do not sum to exactly 1
// (plugin weight drift), the sum is renormalized before scaling to 0–100.
func (e *Engine) composite(s model.SubScores, custom map[string]float64) float64 {
	weighted := e.cfg.WeightTS*s.TS +
		e.cfg.WeightMS*s.MS +
		e.cfg.WeightEV*s.EV +
		e.cfg.WeightBE*s.BE +
		e.cfg.WeightCC*s.CC
	total := e.cfg.WeightTS + e.cfg.WeightMS + e.cfg.WeightEV + e.cfg.WeightBE + e.cfg.WeightCC

	for code, val := range custom {
		w := e.registry.weight(code, e.cfg.CustomWeights)
		weighted += w * val
		total += w
	}

	if total > 0 {
		weighted /= total
	}
	return 100 * clamp(weighted, 0, 1)
}

// timingStability scores the spread of durations: exponential decay on the
// coefficient of variation, damped further by the p95/p50 tail ratio.
func (e *Engine) timingStability(batch model.Batch) float64 {
	latencies := make([]float64, 0, len(batch))
	for _, t := range batch {
		latencies = append(latencies, t.Duration.Seconds())
	}
	if len(latencies) == 0 {
		return 1.0
	}

	tailRatio := 1.0
	if len(latencies) > 1 {
		p50 := median(latencies)
		p95 := quantile(latencies, e.cfg.TailPercentile)
		if p50 > 0 {
			tailRatio = p95 / p50
		}
	}

	base := expDecay(cv(latencies), e.cfg.Alpha)
	damping := 1.0 / (1.0 + e.cfg.Beta*math.Max(0, tailRatio-1.0))
	return clamp(base*damping, 0, 1)
}

// memoryStability penalizes deviation and peaks relative to the median
// per-trace peak memory. Traces without memory samples are excluded; fewer
// than two samples is neutral.
func (e *Engine) memoryStability(batch model.Batch) float64 {
	samples := make([]float64, 0, len(batch))
	for _, t := range batch {
		if t.MemoryPeak > 0 {
			samples = append(samples, float64(t.MemoryPeak))
		}
	}
	if len(samples) < 2 {
		return 1.0
	}

	med := median(samples) + e.cfg.MemoryEpsilon
	peak := samples[0]
	for _, s := range samples[1:] {
		peak = math.Max(peak, s)
	}
	if med <= e.cfg.MemoryEpsilon {
		if peak == 0 {
			return 1.0
		}
		return 0.0
	}

	metric := stdev(samples)/med + (peak/med - 1.0)
	msScore := expDecay(metric, e.cfg.Gamma)

	if peak/med > e.cfg.MemSpikeThresholdRatio {
		spike := peak/med - e.cfg.MemSpikeThresholdRatio
		msScore *= expDecay(spike, e.cfg.Gamma)
	}
	return clamp(msScore, 0, 1)
}

// errorVolatility scores error behavior on three axes: the mean error rate,
// burstiness (variance-to-mean ratio of error counts across time buckets,
// so clustered failures punish harder than uniform ones), and the longest
// consecutive-error run.
func (e *Engine) errorVolatility(batch model.Batch) float64 {
	ordered := make(model.Batch, len(batch))
	copy(ordered, batch)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Start.Before(ordered[j].Start) })

	errorCount := 0
	for _, t := range ordered {
		if t.IsError {
			errorCount++
		}
	}
	if errorCount == 0 {
		return 1.0
	}
	meanRate := float64(errorCount) / float64(len(ordered))

	evScore := expDecay(meanRate+e.cfg.ErrorVMRMultiplier*e.burstVMR(ordered), e.cfg.Delta)

	if meanRate > e.cfg.ErrorSpikeThreshold {
		impact := (meanRate - e.cfg.ErrorSpikeThreshold) / (1.0 - e.cfg.ErrorSpikeThreshold)
		evScore *= 1.0 - impact*e.cfg.ErrorSpikeImpactMultiplier
	}

	maxRun, run := 0, 0
	for _, t := range ordered {
		if t.IsError {
			run++
			if run > maxRun {
				maxRun = run
			}
		} else {
			run = 0
		}
	}
	if maxRun >= e.cfg.ConsecutiveErrorThreshold {
		penalty := float64(maxRun - e.cfg.ConsecutiveErrorThreshold + 1)
		evScore *= expDecay(penalty, e.cfg.Delta*e.cfg.ConsecutiveErrorDecayMultiplier)
	}

	return clamp(evScore, 0, 1)
}

// burstVMR splits the time-ordered batch into equal-count buckets and
// returns the variance-to-mean ratio of per-bucket error counts. Uniformly
// spread errors yield ~0; errors clustered in one bucket yield a high ratio.
func (e *Engine) burstVMR(ordered model.Batch) float64 {
	buckets := e.cfg.ErrorBuckets
	if buckets > len(ordered) {
		buckets = len(ordered)
	}
	if buckets < 2 {
		return 0
	}

	counts := make([]float64, buckets)
	for i, t := range ordered {
		if t.IsError {
			counts[i*buckets/len(ordered)]++
		}
	}

	mean := sumOf(counts) / float64(buckets)
	if mean == 0 {
		return 0
	}
	variance := 0.0
	for _, c := range counts {
		d := c - mean
		variance += d * d
	}
	variance /= float64(buckets)
	return variance / mean
}

// branchingEntropy scores how evenly execution spreads across branch tags.
// Untagged traces are excluded; with no tagged traces at all the sub-score
// is the neutral 1.0.
func (e *Engine) branchingEntropy(batch model.Batch) float64 {
	counts := make(map[string]int)
	for _, t := range batch {
		if t.BranchTag != "" {
			counts[t.BranchTag]++
		}
	}
	if len(counts) == 0 {
		return 1.0
	}
	return clamp(1.0-entropyNormalized(counts), 0, 1)
}

// concurrencyChaos scores the spread of scheduler/IO wait times across
// traces whose wait meets the configured threshold.
func (e *Engine) concurrencyChaos(batch model.Batch) float64 {
	waits := make([]float64, 0, len(batch))
	for _, t := range batch {
		if w := t.EffectiveWait().Seconds(); w >= e.cfg.ConcurrencyWaitThreshold {
			waits = append(waits, w)
		}
	}
	if len(waits) < 2 {
		return 1.0
	}
	return clamp(expDecay(cv(waits), e.cfg.Alpha), 0, 1)
}

// TailLatency returns the p-th quantile of the batch's durations in seconds.
// The sampler watches the p95 of each scoring window as its lag signal.
func TailLatency(batch model.Batch, p float64) float64 {
	if len(batch) == 0 {
		return 0
	}
	latencies := make([]float64, 0, len(batch))
	for _, t := range batch {
		latencies = append(latencies, t.Duration.Seconds())
	}
	return quantile(latencies, p)
}

func window(batch model.Batch) (start, end time.Time) {
	start, end = batch[0].Start, batch[0].End
	for _, t := range batch[1:] {
		if t.Start.Before(start) {
			start = t.Start
		}
		if t.End.After(end) {
			end = t.End
		}
	}
	return start, end
}

func sumOf(data []float64) float64 {
	s := 0.0
	for _, v := range data {
		s += v
	}
	return s
}
