// Package config loads and validates pipeline configuration from
// environment variables. Invalid configuration fails fast at startup;
// weights and thresholds are never silently clamped mid-run.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/Be-Wagile-India/pypss/internal/collector"
	"github.com/Be-Wagile-India/pypss/internal/sampler"
	"github.com/Be-Wagile-India/pypss/internal/score"
)

// Collector backend kinds.
const (
	CollectorRing  = "ring"
	CollectorRedis = "redis"
	CollectorGRPC  = "grpc"
	CollectorFile  = "file"
)

// History backend kinds.
const (
	HistoryNone       = "none"
	HistorySQLite     = "sqlite"
	HistoryPostgres   = "postgres"
	HistoryPrometheus = "prometheus"
)

// Config holds all pipeline configuration.
type Config struct {
	// Control loop.
	TickInterval time.Duration // drain, score, alert cadence
	DrainMax     int           // max traces per scoring batch; 0 = unlimited

	// Collector settings.
	CollectorBackend string
	RingCapacity     int
	RingShardLimit   int // capacity below which a single shard is used
	RingShardCount   int
	QueueCapacity    int
	BatchSize        int
	FlushInterval    time.Duration
	SinkWriteTimeout time.Duration
	RedisURL         string
	RedisKey         string
	GRPCTarget       string
	TraceFilePath    string

	// Scoring weights and sensitivity.
	WeightTS, WeightMS, WeightEV, WeightBE, WeightCC float64
	Alpha, Beta, Gamma, Delta                        float64
	TailPercentile                                   float64
	MemSpikeRatio                                    float64
	ErrorSpikeThreshold                              float64
	ConsecutiveErrorThreshold                        int
	ConcurrencyWaitThreshold                         float64

	// Adaptive sampler.
	SamplerMode           string
	SampleRate            float64 // base rate
	SamplerMinRate        float64
	SamplerMaxRate        float64
	SamplerIncreaseStep   float64
	SamplerDecreaseStep   float64
	SamplerHighQPS        float64
	SamplerErrorThreshold float64
	SamplerLagThreshold   float64
	SamplerDegradedScore  float64
	SamplerLowNoiseRate   float64
	SamplerMinInterval    time.Duration

	// Alerting.
	AlertsEnabled    bool
	AlertCooldown    time.Duration
	AlertStatePath   string
	AlertRulesPath   string // YAML file with custom rules
	AlertThresholdTS float64
	AlertThresholdMS float64
	AlertThresholdEV float64
	AlertThresholdBE float64
	AlertThresholdCC float64
	SlackWebhook     string
	TeamsWebhook     string
	GenericWebhook   string
	AlertmanagerURL  string

	// Regression detection.
	RegressionHistoryLimit int
	RegressionDrop         float64

	// History storage.
	HistoryBackend    string
	HistoryURI        string // sqlite path, postgres DSN, or prometheus endpoint
	HistoryRetention  time.Duration
	PrometheusPull    bool // HistoryURI is a listen address instead of a pushgateway
	PrometheusJobName string

	// Telemetry.
	OTELEndpoint string
	ServiceName  string
	LogLevel     string
}

// Load reads configuration from environment variables with defaults.
func Load() (Config, error) {
	scoreDef := score.DefaultConfig()
	samplerDef := sampler.DefaultConfig()

	cfg := Config{
		TickInterval: envDuration("PYPSS_TICK_INTERVAL", 30*time.Second),
		DrainMax:     envInt("PYPSS_DRAIN_MAX", 0),

		CollectorBackend: envStr("PYPSS_COLLECTOR", CollectorRing),
		RingCapacity:     envInt("PYPSS_MAX_TRACES", 10_000),
		RingShardLimit:   envInt("PYPSS_SHARDING_THRESHOLD", 1_000),
		RingShardCount:   envInt("PYPSS_SHARD_COUNT", 16),
		QueueCapacity:    envInt("PYPSS_QUEUE_CAPACITY", 10_000),
		BatchSize:        envInt("PYPSS_BATCH_SIZE", 256),
		FlushInterval:    envDuration("PYPSS_FLUSH_INTERVAL", 5*time.Second),
		SinkWriteTimeout: envDuration("PYPSS_SINK_WRITE_TIMEOUT", 10*time.Second),
		RedisURL:         envStr("PYPSS_REDIS_URL", "redis://localhost:6379/0"),
		RedisKey:         envStr("PYPSS_REDIS_KEY", "pypss:traces"),
		GRPCTarget:       envStr("PYPSS_GRPC_TARGET", ""),
		TraceFilePath:    envStr("PYPSS_TRACE_FILE", "pypss_traces.jsonl"),

		WeightTS: envFloat("PYPSS_WEIGHT_TS", scoreDef.WeightTS),
		WeightMS: envFloat("PYPSS_WEIGHT_MS", scoreDef.WeightMS),
		WeightEV: envFloat("PYPSS_WEIGHT_EV", scoreDef.WeightEV),
		WeightBE: envFloat("PYPSS_WEIGHT_BE", scoreDef.WeightBE),
		WeightCC: envFloat("PYPSS_WEIGHT_CC", scoreDef.WeightCC),

		Alpha:                     envFloat("PYPSS_ALPHA", scoreDef.Alpha),
		Beta:                      envFloat("PYPSS_BETA", scoreDef.Beta),
		Gamma:                     envFloat("PYPSS_GAMMA", scoreDef.Gamma),
		Delta:                     envFloat("PYPSS_DELTA", scoreDef.Delta),
		TailPercentile:            envFloat("PYPSS_TAIL_PERCENTILE", scoreDef.TailPercentile),
		MemSpikeRatio:             envFloat("PYPSS_MEM_SPIKE_RATIO", scoreDef.MemSpikeThresholdRatio),
		ErrorSpikeThreshold:       envFloat("PYPSS_ERROR_SPIKE_THRESHOLD", scoreDef.ErrorSpikeThreshold),
		ConsecutiveErrorThreshold: envInt("PYPSS_CONSECUTIVE_ERROR_THRESHOLD", scoreDef.ConsecutiveErrorThreshold),
		ConcurrencyWaitThreshold:  envFloat("PYPSS_CONCURRENCY_WAIT_THRESHOLD", scoreDef.ConcurrencyWaitThreshold),

		SamplerMode:           envStr("PYPSS_SAMPLER_MODE", string(samplerDef.Mode)),
		SampleRate:            envFloat("PYPSS_SAMPLE_RATE", samplerDef.BaseRate),
		SamplerMinRate:        envFloat("PYPSS_SAMPLER_MIN_RATE", samplerDef.MinRate),
		SamplerMaxRate:        envFloat("PYPSS_SAMPLER_MAX_RATE", samplerDef.MaxRate),
		SamplerIncreaseStep:   envFloat("PYPSS_SAMPLER_INCREASE_STEP", samplerDef.IncreaseStep),
		SamplerDecreaseStep:   envFloat("PYPSS_SAMPLER_DECREASE_STEP", samplerDef.DecreaseStep),
		SamplerHighQPS:        envFloat("PYPSS_SAMPLER_HIGH_QPS", samplerDef.HighQPSThreshold),
		SamplerErrorThreshold: envFloat("PYPSS_SAMPLER_ERROR_THRESHOLD", samplerDef.ErrorRateThreshold),
		SamplerLagThreshold:   envFloat("PYPSS_SAMPLER_LAG_THRESHOLD", samplerDef.LagThreshold),
		SamplerDegradedScore:  envFloat("PYPSS_SAMPLER_DEGRADED_SCORE", samplerDef.DegradedScoreThreshold),
		SamplerLowNoiseRate:   envFloat("PYPSS_SAMPLER_LOW_NOISE_RATE", samplerDef.LowNoiseRate),
		SamplerMinInterval:    envDuration("PYPSS_SAMPLER_MIN_INTERVAL", samplerDef.MinInterval),

		AlertsEnabled:    envBool("PYPSS_ALERTS_ENABLED", false),
		AlertCooldown:    envDuration("PYPSS_ALERT_COOLDOWN", time.Hour),
		AlertStatePath:   envStr("PYPSS_ALERT_STATE_PATH", ".pypss_alert_state.json"),
		AlertRulesPath:   envStr("PYPSS_ALERT_RULES_PATH", ""),
		AlertThresholdTS: envFloat("PYPSS_ALERT_THRESHOLD_TS", 0.70),
		AlertThresholdMS: envFloat("PYPSS_ALERT_THRESHOLD_MS", 0.70),
		AlertThresholdEV: envFloat("PYPSS_ALERT_THRESHOLD_EV", 0.80),
		AlertThresholdBE: envFloat("PYPSS_ALERT_THRESHOLD_BE", 0.70),
		AlertThresholdCC: envFloat("PYPSS_ALERT_THRESHOLD_CC", 0.70),
		SlackWebhook:     envStr("PYPSS_SLACK_WEBHOOK", ""),
		TeamsWebhook:     envStr("PYPSS_TEAMS_WEBHOOK", ""),
		GenericWebhook:   envStr("PYPSS_GENERIC_WEBHOOK", ""),
		AlertmanagerURL:  envStr("PYPSS_ALERTMANAGER_URL", ""),

		RegressionHistoryLimit: envInt("PYPSS_REGRESSION_HISTORY_LIMIT", 5),
		RegressionDrop:         envFloat("PYPSS_REGRESSION_DROP", 10.0),

		HistoryBackend:    envStr("PYPSS_HISTORY_BACKEND", HistorySQLite),
		HistoryURI:        envStr("PYPSS_HISTORY_URI", "pypss_history.db"),
		HistoryRetention:  envDuration("PYPSS_HISTORY_RETENTION", 90*24*time.Hour),
		PrometheusPull:    envBool("PYPSS_PROMETHEUS_PULL", false),
		PrometheusJobName: envStr("PYPSS_PROMETHEUS_JOB", "pypss"),

		OTELEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		ServiceName:  envStr("OTEL_SERVICE_NAME", "pypss"),
		LogLevel:     envStr("PYPSS_LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration surface that the sub-configs don't:
// backend enums, durations, and regression parameters. Scoring weights and
// sampler bounds are validated when their configs are constructed.
func (c Config) Validate() error {
	switch c.CollectorBackend {
	case CollectorRing, CollectorRedis, CollectorGRPC, CollectorFile:
	default:
		return fmt.Errorf("config: unknown collector backend %q", c.CollectorBackend)
	}
	switch c.HistoryBackend {
	case HistoryNone, HistorySQLite, HistoryPostgres, HistoryPrometheus:
	default:
		return fmt.Errorf("config: unknown history backend %q", c.HistoryBackend)
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("config: PYPSS_TICK_INTERVAL must be positive")
	}
	if c.RingCapacity <= 0 {
		return fmt.Errorf("config: PYPSS_MAX_TRACES must be positive")
	}
	if c.RingShardCount < 1 {
		return fmt.Errorf("config: PYPSS_SHARD_COUNT must be at least 1")
	}
	if c.AlertCooldown < 0 {
		return fmt.Errorf("config: PYPSS_ALERT_COOLDOWN must not be negative")
	}
	if c.RegressionHistoryLimit < 1 {
		return fmt.Errorf("config: PYPSS_REGRESSION_HISTORY_LIMIT must be at least 1")
	}
	if c.RegressionDrop < 0 {
		return fmt.Errorf("config: PYPSS_REGRESSION_DROP must not be negative")
	}
	if c.HistoryBackend == HistoryPostgres && c.HistoryURI == "" {
		return fmt.Errorf("config: postgres history backend requires PYPSS_HISTORY_URI")
	}
	if c.CollectorBackend == CollectorGRPC && c.GRPCTarget == "" {
		return fmt.Errorf("config: grpc collector requires PYPSS_GRPC_TARGET")
	}
	return nil
}

// ScoreConfig assembles the scoring engine parameters.
func (c Config) ScoreConfig() score.Config {
	sc := score.DefaultConfig()
	sc.WeightTS, sc.WeightMS, sc.WeightEV, sc.WeightBE, sc.WeightCC =
		c.WeightTS, c.WeightMS, c.WeightEV, c.WeightBE, c.WeightCC
	sc.Alpha, sc.Beta, sc.Gamma, sc.Delta = c.Alpha, c.Beta, c.Gamma, c.Delta
	sc.TailPercentile = c.TailPercentile
	sc.MemSpikeThresholdRatio = c.MemSpikeRatio
	sc.ErrorSpikeThreshold = c.ErrorSpikeThreshold
	sc.ConsecutiveErrorThreshold = c.ConsecutiveErrorThreshold
	sc.ConcurrencyWaitThreshold = c.ConcurrencyWaitThreshold
	return sc
}

// SamplerConfig assembles the adaptive sampler parameters.
func (c Config) SamplerConfig() sampler.Config {
	return sampler.Config{
		Mode:                   sampler.Mode(c.SamplerMode),
		BaseRate:               c.SampleRate,
		MinRate:                c.SamplerMinRate,
		MaxRate:                c.SamplerMaxRate,
		IncreaseStep:           c.SamplerIncreaseStep,
		DecreaseStep:           c.SamplerDecreaseStep,
		HighQPSThreshold:       c.SamplerHighQPS,
		ErrorRateThreshold:     c.SamplerErrorThreshold,
		LagThreshold:           c.SamplerLagThreshold,
		DegradedScoreThreshold: c.SamplerDegradedScore,
		LowNoiseRate:           c.SamplerLowNoiseRate,
		MinInterval:            c.SamplerMinInterval,
	}
}

// RingConfig assembles the ring buffer sizing.
func (c Config) RingConfig() collector.RingConfig {
	return collector.RingConfig{
		Capacity:       c.RingCapacity,
		ShardThreshold: c.RingShardLimit,
		ShardCount:     c.RingShardCount,
	}
}

// QueuedConfig assembles the queued collector sizing.
func (c Config) QueuedConfig() collector.QueuedConfig {
	return collector.QueuedConfig{
		QueueCapacity: c.QueueCapacity,
		BatchSize:     c.BatchSize,
		FlushInterval: c.FlushInterval,
		WriteTimeout:  c.SinkWriteTimeout,
	}
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
