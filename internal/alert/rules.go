// Package alert evaluates alerting rules over scoring reports and history,
// producing deduplicated alert events for external delivery channels.
package alert

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Be-Wagile-India/pypss/internal/history"
	"github.com/Be-Wagile-India/pypss/internal/model"
)

// EvalInput is everything one evaluation pass sees: the fresh report, the
// recent history window (newest first), and the per-module breakdowns.
type EvalInput struct {
	Report  model.Report
	History []model.HistoryRecord
	Now     time.Time
}

// Rule is one detection condition. Evaluate returns zero or more events;
// module-scoped rules may fire once per matching module.
type Rule interface {
	ID() string
	Evaluate(in EvalInput) []model.AlertEvent
}

// ScoreFloorRule fires when a single report metric drops below its floor.
type ScoreFloorRule struct {
	RuleID    string
	MetricKey string // "pss", "ts", "ms", "ev", "be", "cc", or plugin code
	Floor     float64
	Severity  model.Severity
}

// ID implements Rule.
func (r ScoreFloorRule) ID() string { return r.RuleID }

// Evaluate implements Rule.
func (r ScoreFloorRule) Evaluate(in EvalInput) []model.AlertEvent {
	if in.Report.InsufficientData {
		return nil
	}
	val, ok := in.Report.Metric(r.MetricKey)
	if !ok || val >= r.Floor {
		return nil
	}
	return []model.AlertEvent{{
		RuleID:      r.RuleID,
		Severity:    r.Severity,
		Message:     fmt.Sprintf("%s: score %.2f is below threshold %.2f", r.RuleID, val, r.Floor),
		MetricName:  r.MetricKey,
		MetricValue: val,
		Threshold:   r.Floor,
		FiredAt:     in.Now,
	}}
}

// Thresholds holds the per-metric floors for the built-in rules.
type Thresholds struct {
	TS float64
	MS float64
	EV float64
	BE float64
	CC float64
}

// DefaultThresholds returns the standard sub-score floors.
func DefaultThresholds() Thresholds {
	return Thresholds{TS: 0.70, MS: 0.70, EV: 0.80, BE: 0.70, CC: 0.70}
}

// BuiltinRules returns the five sub-score floor rules plus the regression
// rule, in their canonical evaluation order.
func BuiltinRules(t Thresholds, regressionLimit int, regressionDrop float64) []Rule {
	return []Rule{
		ScoreFloorRule{RuleID: "timing_stability_surge", MetricKey: "ts", Floor: t.TS, Severity: model.SeverityWarning},
		ScoreFloorRule{RuleID: "memory_stability_spike", MetricKey: "ms", Floor: t.MS, Severity: model.SeverityWarning},
		ScoreFloorRule{RuleID: "error_burst", MetricKey: "ev", Floor: t.EV, Severity: model.SeverityCritical},
		ScoreFloorRule{RuleID: "entropy_anomaly", MetricKey: "be", Floor: t.BE, Severity: model.SeverityWarning},
		ScoreFloorRule{RuleID: "concurrency_variance_spike", MetricKey: "cc", Floor: t.CC, Severity: model.SeverityWarning},
		RegressionRule{HistoryLimit: regressionLimit, ThresholdDrop: regressionDrop},
	}
}

// RegressionRule fires when the current PSS is lower than the mean of the
// last HistoryLimit records by more than ThresholdDrop.
type RegressionRule struct {
	HistoryLimit  int
	ThresholdDrop float64
}

// ID implements Rule.
func (r RegressionRule) ID() string { return "stability_regression" }

// Evaluate implements Rule.
func (r RegressionRule) Evaluate(in EvalInput) []model.AlertEvent {
	if in.Report.InsufficientData || len(in.History) == 0 {
		return nil
	}

	n := len(in.History)
	if r.HistoryLimit > 0 && n > r.HistoryLimit {
		n = r.HistoryLimit
	}
	current := in.Report.PSS
	avg, regressed := history.CheckRegression(current, in.History, r.HistoryLimit, r.ThresholdDrop)
	if !regressed {
		return nil
	}
	return []model.AlertEvent{{
		RuleID:   r.ID(),
		Severity: model.SeverityCritical,
		Message: fmt.Sprintf("regression detected: PSS %.1f is more than %.1f below the %d-run average %.1f",
			current, r.ThresholdDrop, n, avg),
		MetricName:  "pss",
		MetricValue: current,
		Threshold:   avg - r.ThresholdDrop,
		FiredAt:     in.Now,
	}}
}

// Condition is one comparison inside a custom rule.
type Condition struct {
	Metric   string  `yaml:"metric"`
	Operator string  `yaml:"operator"` // <, <=, >, >=, ==
	Value    float64 `yaml:"value"`
}

func (c Condition) holds(val float64) bool {
	switch c.Operator {
	case "<":
		return val < c.Value
	case "<=":
		return val <= c.Value
	case ">":
		return val > c.Value
	case ">=":
		return val >= c.Value
	case "==":
		return val == c.Value
	}
	return false
}

// CustomRuleSpec is the YAML shape of a user-defined rule: a conjunction of
// comparisons, optionally scoped to modules matching a regex.
type CustomRuleSpec struct {
	Name          string      `yaml:"name"`
	Severity      string      `yaml:"severity"`
	ModulePattern string      `yaml:"module_pattern"`
	Conditions    []Condition `yaml:"conditions"`
	Enabled       *bool       `yaml:"enabled"`
}

// CustomRule evaluates a conjunction of conditions, either globally or once
// per module whose name matches the pattern.
type CustomRule struct {
	name       string
	severity   model.Severity
	pattern    *regexp.Regexp // nil = global
	conditions []Condition
}

// NewCustomRule compiles a spec. Specs with no conditions or a bad regex or
// operator are rejected at startup rather than silently never firing.
func NewCustomRule(spec CustomRuleSpec) (*CustomRule, error) {
	if spec.Name == "" {
		return nil, fmt.Errorf("alert: custom rule name is required")
	}
	if len(spec.Conditions) == 0 {
		return nil, fmt.Errorf("alert: custom rule %q has no conditions", spec.Name)
	}
	for _, c := range spec.Conditions {
		switch c.Operator {
		case "<", "<=", ">", ">=", "==":
		default:
			return nil, fmt.Errorf("alert: custom rule %q: unknown operator %q", spec.Name, c.Operator)
		}
	}

	severity := model.SeverityWarning
	switch spec.Severity {
	case "", "warning":
	case "info":
		severity = model.SeverityInfo
	case "critical":
		severity = model.SeverityCritical
	default:
		return nil, fmt.Errorf("alert: custom rule %q: unknown severity %q", spec.Name, spec.Severity)
	}

	var pattern *regexp.Regexp
	if spec.ModulePattern != "" {
		var err error
		pattern, err = regexp.Compile(spec.ModulePattern)
		if err != nil {
			return nil, fmt.Errorf("alert: custom rule %q: module pattern: %w", spec.Name, err)
		}
	}

	return &CustomRule{
		name:       spec.Name,
		severity:   severity,
		pattern:    pattern,
		conditions: spec.Conditions,
	}, nil
}

// ID implements Rule.
func (r *CustomRule) ID() string { return r.name }

// Evaluate implements Rule.
func (r *CustomRule) Evaluate(in EvalInput) []model.AlertEvent {
	if in.Report.InsufficientData {
		return nil
	}

	if r.pattern == nil {
		if !r.matches(in.Report.Metric) {
			return nil
		}
		return []model.AlertEvent{r.event("", in)}
	}

	var events []model.AlertEvent
	for name, mod := range in.Report.Modules {
		if !r.pattern.MatchString(name) {
			continue
		}
		if r.matches(mod.Metric) {
			events = append(events, r.event(name, in))
		}
	}
	return events
}

func (r *CustomRule) matches(metric func(string) (float64, bool)) bool {
	for _, c := range r.conditions {
		val, ok := metric(c.Metric)
		if !ok || !c.holds(val) {
			return false
		}
	}
	return true
}

func (r *CustomRule) event(module string, in EvalInput) model.AlertEvent {
	msg := fmt.Sprintf("%s: conditions matched", r.name)
	if module != "" {
		msg = fmt.Sprintf("%s: module %q matched conditions", r.name, module)
	}
	return model.AlertEvent{
		RuleID:     r.name,
		Severity:   r.severity,
		Message:    msg,
		MetricName: "custom",
		Module:     module,
		FiredAt:    in.Now,
	}
}

// LoadCustomRules reads custom rule specs from a YAML file. A missing path
// is not an error — custom rules are optional.
func LoadCustomRules(path string) ([]Rule, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("alert: read rules file: %w", err)
	}

	var specs struct {
		Rules []CustomRuleSpec `yaml:"rules"`
	}
	if err := yaml.Unmarshal(data, &specs); err != nil {
		return nil, fmt.Errorf("alert: parse rules file %s: %w", path, err)
	}

	rules := make([]Rule, 0, len(specs.Rules))
	for _, spec := range specs.Rules {
		if spec.Enabled != nil && !*spec.Enabled {
			continue
		}
		rule, err := NewCustomRule(spec)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}
