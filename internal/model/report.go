package model

import "time"

// SubScores holds the five built-in stability sub-scores, each in [0, 1].
type SubScores struct {
	TS float64 `json:"ts"` // timing stability
	MS float64 `json:"ms"` // memory stability
	EV float64 `json:"ev"` // error volatility
	BE float64 `json:"be"` // branching entropy
	CC float64 `json:"cc"` // concurrency chaos
}

// Report is the output of one scoring pass. It is created once per
// invocation and never mutated afterwards.
type Report struct {
	// PSS is the composite Program Stability Score in [0, 100].
	PSS    float64   `json:"pss"`
	Scores SubScores `json:"breakdown"`

	// Custom holds scores from registered plugin metrics, keyed by code.
	Custom map[string]float64 `json:"custom,omitempty"`

	// Modules holds a sub-report per module, computed identically over the
	// module-filtered subset of the batch.
	Modules map[string]ModuleReport `json:"modules,omitempty"`

	SampleCount int       `json:"sample_count"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`

	// InsufficientData is set when the batch was empty and every sub-score
	// defaulted to the neutral 1.0.
	InsufficientData bool `json:"insufficient_data,omitempty"`
}

// ModuleReport is the per-module breakdown inside a Report.
type ModuleReport struct {
	PSS         float64   `json:"pss"`
	Scores      SubScores `json:"breakdown"`
	SampleCount int       `json:"sample_count"`
}

// Metric returns a sub-score or the composite by its short key
// ("pss", "ts", "ms", "ev", "be", "cc", or a plugin code). PSS is returned
// on its native 0–100 scale; everything else is in [0, 1]. Unknown keys
// return ok=false.
func (r Report) Metric(key string) (float64, bool) {
	switch key {
	case "pss":
		return r.PSS, true
	case "ts":
		return r.Scores.TS, true
	case "ms":
		return r.Scores.MS, true
	case "ev":
		return r.Scores.EV, true
	case "be":
		return r.Scores.BE, true
	case "cc":
		return r.Scores.CC, true
	}
	v, ok := r.Custom[key]
	return v, ok
}

// Metric is the ModuleReport counterpart of Report.Metric.
func (m ModuleReport) Metric(key string) (float64, bool) {
	switch key {
	case "pss":
		return m.PSS, true
	case "ts":
		return m.Scores.TS, true
	case "ms":
		return m.Scores.MS, true
	case "ev":
		return m.Scores.EV, true
	case "be":
		return m.Scores.BE, true
	case "cc":
		return m.Scores.CC, true
	}
	return 0, false
}

// HistoryRecord is one persisted scoring outcome, used for regression
// comparison against the rolling window of past runs.
type HistoryRecord struct {
	Timestamp time.Time         `json:"timestamp"`
	PSS       float64           `json:"pss"`
	Scores    SubScores         `json:"breakdown"`
	Meta      map[string]string `json:"meta,omitempty"`
}
