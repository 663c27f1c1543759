// Package pypss is the public API for embedding the Program Stability Score
// pipeline in a Go service.
//
// Typical use:
//
//	p, err := pypss.New(
//	    pypss.WithVersion(version),
//	    pypss.WithLogger(logger),
//	    pypss.WithMetric(myCustomMetric),
//	)
//	if err != nil { ... }
//	go p.Run(ctx)
//
//	span := p.StartSpan("checkout", pypss.InModule("payments"))
//	defer span.End()
//
// The import graph enforces a strict no-cycle rule: pypss (root) imports
// internal/*, but internal/* never imports pypss (root). Public types are
// aliases of the internal model types, so instrumentation pays no
// conversion cost at the boundary.
package pypss

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/Be-Wagile-India/pypss/internal/alert"
	"github.com/Be-Wagile-India/pypss/internal/collector"
	"github.com/Be-Wagile-India/pypss/internal/config"
	"github.com/Be-Wagile-India/pypss/internal/history"
	"github.com/Be-Wagile-India/pypss/internal/sampler"
	"github.com/Be-Wagile-India/pypss/internal/score"
	"github.com/Be-Wagile-India/pypss/internal/telemetry"
)

// Pipeline is the collect, score, alert lifecycle. Construct with New(),
// run with Run(). Pipeline has no public fields; use New() options to
// configure it.
type Pipeline struct {
	cfg          config.Config
	collector    Collector
	engine       *score.Engine
	sampler      *sampler.Sampler
	alerts       *alert.Engine
	store        Store
	otelShutdown telemetry.Shutdown
	logger       *slog.Logger
	version      string

	mu         sync.RWMutex
	lastReport Report
	lastStats  collector.Stats
	lastTick   time.Time

	closeOnce sync.Once
	closeErr  error
}

// New initialises the pipeline: loads configuration, wires the collector,
// scoring engine, sampler, history store, and alert engine, and validates
// the combined metric weights. It does NOT start the scoring loop or any
// goroutines beyond the collector's own flush worker; call Run().
func New(opts ...Option) (*Pipeline, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.tickInterval > 0 {
		cfg.TickInterval = o.tickInterval
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("pypss starting", "version", version, "tick_interval", cfg.TickInterval)

	otelShutdown, err := telemetry.Init(context.Background(), cfg.OTELEndpoint, cfg.ServiceName, version, true)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	// Register plugin metrics, then validate the combined weights up front.
	// A bad weight set must fail here, not skew scores silently at runtime.
	registry := score.NewRegistry()
	for _, m := range o.metrics {
		if err := registry.Register(m); err != nil {
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("metric %q: %w", m.Code, err)
		}
	}
	scoreCfg := cfg.ScoreConfig()
	scoreCfg.CustomWeights = o.metricWeights
	if err := scoreCfg.Validate(registry.TotalWeight(o.metricWeights)); err != nil {
		_ = otelShutdown(context.Background())
		return nil, err
	}
	engine := score.New(scoreCfg, registry, logger)

	smp, err := sampler.New(cfg.SamplerConfig(), logger)
	if err != nil {
		_ = otelShutdown(context.Background())
		return nil, err
	}

	col := o.collector
	if col == nil {
		col, err = newCollector(cfg, logger)
		if err != nil {
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("collector: %w", err)
		}
	}

	store := o.store
	if store == nil {
		store, err = newStore(cfg, logger)
		if err != nil {
			_ = col.Close(context.Background())
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("history: %w", err)
		}
	}

	var alerts *alert.Engine
	if cfg.AlertsEnabled {
		alerts, err = newAlertEngine(cfg, o, logger)
		if err != nil {
			_ = store.Close()
			_ = col.Close(context.Background())
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("alert: %w", err)
		}
	}

	return &Pipeline{
		cfg:          cfg,
		collector:    col,
		engine:       engine,
		sampler:      smp,
		alerts:       alerts,
		store:        store,
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
		lastTick:     time.Now(),
	}, nil
}

// Run drives the scoring loop: every tick it drains the collector, computes
// a report, persists it, evaluates alert rules, and feeds the sampler. It
// blocks until ctx is cancelled, then shuts down gracefully. On return,
// Shutdown has already been called; callers should not call it separately.
func (p *Pipeline) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		ticker := time.NewTicker(p.cfg.TickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				p.tick(ctx)
			}
		}
	})

	err := g.Wait()
	if sdErr := p.Shutdown(context.Background()); sdErr != nil {
		return sdErr
	}
	if err != nil && !isContextErr(err) {
		return err
	}
	return nil
}

// Score runs one scoring pass immediately: drain, compute, persist, alert,
// adapt. It is the same work a tick does, exposed for on-demand use.
func (p *Pipeline) Score(ctx context.Context) Report {
	return p.tick(ctx)
}

// LastReport returns the most recent report, or a zero Report if no pass
// has run yet.
func (p *Pipeline) LastReport() Report {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastReport
}

// Record ingests a pre-built trace directly, bypassing the span helper and
// the sampler. Load-test harnesses and replay tooling use this.
func (p *Pipeline) Record(t Trace) error {
	return p.collector.Ingest(t)
}

// SampleRate returns the sampler's current rate in [0, 1].
func (p *Pipeline) SampleRate() float64 {
	return p.sampler.Rate()
}

// Shutdown performs a graceful shutdown: close the collector (flushing
// buffered traces within ctx's deadline), persist alert cooldown state,
// close the history store, and shut down telemetry. Safe to call more than
// once; later calls return the first result.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	p.closeOnce.Do(func() {
		p.logger.Info("pypss shutting down")

		if err := p.collector.Close(ctx); err != nil {
			p.logger.Error("collector close error", "error", err)
			p.closeErr = fmt.Errorf("collector close: %w", err)
		}
		if p.alerts != nil {
			if err := p.alerts.SaveState(); err != nil {
				p.logger.Error("alert state save error", "error", err)
			}
		}
		if err := p.store.Close(); err != nil {
			p.logger.Error("history close error", "error", err)
		}
		_ = p.otelShutdown(context.Background())

		p.logger.Info("pypss stopped")
	})
	return p.closeErr
}

// tick runs one full scoring pass and returns the report.
func (p *Pipeline) tick(ctx context.Context) Report {
	ctx, span := telemetry.Tracer("pypss/pipeline").Start(ctx, "pipeline.tick")
	defer span.End()

	now := time.Now()
	batch := p.collector.Drain(p.cfg.DrainMax)
	report := p.engine.Compute(batch)
	span.SetAttributes(
		attribute.Int("pypss.batch_size", len(batch)),
		attribute.Float64("pypss.score", report.PSS),
	)

	stats := collectorStats(p.collector)

	p.mu.Lock()
	prevStats := p.lastStats
	prevTick := p.lastTick
	p.lastReport = report
	p.lastStats = stats
	p.lastTick = now
	p.mu.Unlock()

	appended := false
	if !report.InsufficientData {
		rec := HistoryRecord{
			Timestamp: report.WindowEnd,
			PSS:       report.PSS,
			Scores:    report.Scores,
			Meta:      map[string]string{"version": p.version},
		}
		if err := p.store.Append(ctx, rec); err != nil {
			p.logger.Warn("history append failed", "error", err)
		} else {
			appended = true
		}
	}

	if p.alerts != nil {
		recent, err := p.store.Recent(ctx, p.cfg.RegressionHistoryLimit+1)
		if err != nil {
			p.logger.Warn("history read failed", "error", err)
		}
		// When the append above landed, the newest record is the report
		// under test; the regression baseline is everything before it.
		if appended && len(recent) > 0 {
			recent = recent[1:]
		}
		fired := p.alerts.Run(ctx, alert.EvalInput{Report: report, History: recent, Now: now})
		if len(fired) > 0 {
			p.logger.Info("alerts fired", "count", len(fired))
		}
	}

	p.sampler.Observe(p.signals(report, batch, stats, prevStats, now.Sub(prevTick)))
	return report
}

// signals derives the sampler's inputs from the tick's report, the window's
// tail latency, and the collector counter deltas since the previous tick.
func (p *Pipeline) signals(report Report, batch Batch, cur, prev collector.Stats, elapsed time.Duration) sampler.Signals {
	sig := sampler.Signals{EV: report.Scores.EV, CC: report.Scores.CC}
	if report.InsufficientData {
		// No data this window: leave EV/CC at zero-value-off so the
		// sampler does not read an empty window as degradation.
		sig.EV, sig.CC = 0, 0
	}

	if elapsed > 0 {
		sig.QPS = float64(cur.Ingested-prev.Ingested) / elapsed.Seconds()
	}
	sig.Lag = score.TailLatency(batch, 0.95)

	if len(batch) > 0 {
		errors := 0
		for _, t := range batch {
			if t.IsError {
				errors++
			}
		}
		sig.ErrorRate = float64(errors) / float64(len(batch))
	}
	return sig
}

// newCollector builds the config-selected collector backend.
func newCollector(cfg config.Config, logger *slog.Logger) (Collector, error) {
	switch cfg.CollectorBackend {
	case config.CollectorRing:
		return collector.NewRing(cfg.RingConfig()), nil
	case config.CollectorRedis:
		sink, err := collector.NewRedisSink(context.Background(), cfg.RedisURL, cfg.RedisKey)
		if err != nil {
			return nil, err
		}
		logger.Info("collector: redis", "key", cfg.RedisKey)
		return collector.NewQueued(sink, logger, cfg.QueuedConfig()), nil
	case config.CollectorGRPC:
		sink, err := collector.NewGRPCSink(collector.GRPCSinkOptions{Target: cfg.GRPCTarget})
		if err != nil {
			return nil, err
		}
		logger.Info("collector: grpc", "target", cfg.GRPCTarget)
		return collector.NewQueued(sink, logger, cfg.QueuedConfig()), nil
	case config.CollectorFile:
		sink, err := collector.NewFileSink(cfg.TraceFilePath)
		if err != nil {
			return nil, err
		}
		logger.Info("collector: file", "path", cfg.TraceFilePath)
		return collector.NewQueued(sink, logger, cfg.QueuedConfig()), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.CollectorBackend)
	}
}

// newStore builds the config-selected history store.
func newStore(cfg config.Config, logger *slog.Logger) (Store, error) {
	switch cfg.HistoryBackend {
	case config.HistoryNone:
		return history.Noop{}, nil
	case config.HistorySQLite:
		logger.Info("history: sqlite", "path", cfg.HistoryURI)
		return history.NewSQLite(cfg.HistoryURI, cfg.HistoryRetention)
	case config.HistoryPostgres:
		logger.Info("history: postgres")
		return history.NewPostgres(context.Background(), cfg.HistoryURI, cfg.HistoryRetention)
	case config.HistoryPrometheus:
		opts := history.PrometheusOptions{JobName: cfg.PrometheusJobName}
		if cfg.PrometheusPull {
			opts.ListenAddr = cfg.HistoryURI
		} else {
			opts.PushGateway = cfg.HistoryURI
		}
		logger.Info("history: prometheus", "pull", cfg.PrometheusPull)
		return history.NewPrometheus(opts, logger)
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.HistoryBackend)
	}
}

// newAlertEngine assembles built-in rules, file-defined custom rules,
// option-provided rules and channels, and the persisted cooldown state.
func newAlertEngine(cfg config.Config, o resolvedOptions, logger *slog.Logger) (*alert.Engine, error) {
	thresholds := alert.Thresholds{
		TS: cfg.AlertThresholdTS,
		MS: cfg.AlertThresholdMS,
		EV: cfg.AlertThresholdEV,
		BE: cfg.AlertThresholdBE,
		CC: cfg.AlertThresholdCC,
	}
	rules := alert.BuiltinRules(thresholds, cfg.RegressionHistoryLimit, cfg.RegressionDrop)

	if cfg.AlertRulesPath != "" {
		custom, err := alert.LoadCustomRules(cfg.AlertRulesPath)
		if err != nil {
			return nil, fmt.Errorf("custom rules: %w", err)
		}
		if len(custom) > 0 {
			logger.Info("custom alert rules loaded", "count", len(custom), "path", cfg.AlertRulesPath)
		}
		rules = append(rules, custom...)
	}
	rules = append(rules, o.rules...)

	var channels []Channel
	if cfg.GenericWebhook != "" {
		channels = append(channels, alert.NewWebhookChannel(cfg.GenericWebhook))
	}
	if cfg.SlackWebhook != "" {
		channels = append(channels, alert.NewSlackChannel(cfg.SlackWebhook))
	}
	if cfg.TeamsWebhook != "" {
		channels = append(channels, alert.NewTeamsChannel(cfg.TeamsWebhook))
	}
	if cfg.AlertmanagerURL != "" {
		channels = append(channels, alert.NewAlertmanagerChannel(cfg.AlertmanagerURL))
	}
	channels = append(channels, o.channels...)

	state := alert.NewState(cfg.AlertStatePath)
	return alert.NewEngine(rules, channels, state, cfg.AlertCooldown, logger), nil
}

// collectorStats reads ingestion counters when the collector exposes them.
func collectorStats(c Collector) collector.Stats {
	if s, ok := c.(interface{ Stats() collector.Stats }); ok {
		return s.Stats()
	}
	return collector.Stats{}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
