package pypss

import (
	"log/slog"
	"time"
)

// Option configures a Pipeline.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
// Unexported; callers use the With* functions.
type resolvedOptions struct {
	logger        *slog.Logger
	version       string
	tickInterval  time.Duration
	collector     Collector
	store         Store
	channels      []Channel
	rules         []Rule
	metrics       []Metric
	metricWeights map[string]float64
}

// WithLogger sets the structured logger for the Pipeline.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in logs and history metadata.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithTickInterval overrides the scoring cadence from config
// (PYPSS_TICK_INTERVAL env var).
func WithTickInterval(d time.Duration) Option {
	return func(o *resolvedOptions) { o.tickInterval = d }
}

// WithCollector replaces the config-selected collector backend.
// Only the last call wins.
func WithCollector(c Collector) Option {
	return func(o *resolvedOptions) { o.collector = c }
}

// WithHistory replaces the config-selected history store.
// Only the last call wins.
func WithHistory(s Store) Option {
	return func(o *resolvedOptions) { o.store = s }
}

// WithChannel registers an additional alert delivery channel.
// Multiple channels may be registered; every fired alert goes to all of them.
func WithChannel(c Channel) Option {
	return func(o *resolvedOptions) { o.channels = append(o.channels, c) }
}

// WithRule registers an additional alert rule alongside the built-ins.
// Multiple rules may be registered; all are evaluated every tick.
func WithRule(r Rule) Option {
	return func(o *resolvedOptions) { o.rules = append(o.rules, r) }
}

// WithMetric registers a plugin scoring metric. Its weight joins the
// composite; the combined weight of all metrics must sum to 1.0 or New fails.
func WithMetric(m Metric) Option {
	return func(o *resolvedOptions) { o.metrics = append(o.metrics, m) }
}

// WithMetricWeight overrides the weight of a registered plugin metric by
// its code. Overrides for unregistered codes are ignored.
func WithMetricWeight(code string, weight float64) Option {
	return func(o *resolvedOptions) {
		if o.metricWeights == nil {
			o.metricWeights = make(map[string]float64)
		}
		o.metricWeights[code] = weight
	}
}
