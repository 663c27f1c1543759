package history

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/Be-Wagile-India/pypss/internal/model"
)

// PrometheusOptions configures the Prometheus history backend. Exactly one
// of PushGateway (push mode) or ListenAddr (pull mode) should be set.
type PrometheusOptions struct {
	PushGateway string // e.g. "http://pushgateway:9091"
	ListenAddr  string // e.g. ":9464" to expose /metrics for scraping
	JobName     string // push job label; defaults to "pypss"
}

// Prometheus publishes each scoring outcome as a fixed set of gauges:
// pypss_score plus pypss_ts/ms/ev/be/cc. It is write-only — Prometheus owns
// the history, so Recent and Since return empty windows and the regression
// rule is driven by a different Store (or disabled) in this configuration.
type Prometheus struct {
	registry *prometheus.Registry
	pusher   *push.Pusher
	server   *http.Server
	logger   *slog.Logger

	score prometheus.Gauge
	subs  map[string]prometheus.Gauge
}

// NewPrometheus creates the gauge set and, in pull mode, starts the scrape
// endpoint.
func NewPrometheus(opts PrometheusOptions, logger *slog.Logger) (*Prometheus, error) {
	if opts.PushGateway == "" && opts.ListenAddr == "" {
		return nil, fmt.Errorf("history: prometheus backend needs a push gateway or listen address")
	}
	if opts.JobName == "" {
		opts.JobName = "pypss"
	}
	if logger == nil {
		logger = slog.Default()
	}

	registry := prometheus.NewRegistry()
	p := &Prometheus{
		registry: registry,
		logger:   logger,
		score: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pypss_score", Help: "Program Stability Score (0-100)",
		}),
		subs: map[string]prometheus.Gauge{
			"ts": prometheus.NewGauge(prometheus.GaugeOpts{Name: "pypss_ts", Help: "Timing stability sub-score"}),
			"ms": prometheus.NewGauge(prometheus.GaugeOpts{Name: "pypss_ms", Help: "Memory stability sub-score"}),
			"ev": prometheus.NewGauge(prometheus.GaugeOpts{Name: "pypss_ev", Help: "Error volatility sub-score"}),
			"be": prometheus.NewGauge(prometheus.GaugeOpts{Name: "pypss_be", Help: "Branching entropy sub-score"}),
			"cc": prometheus.NewGauge(prometheus.GaugeOpts{Name: "pypss_cc", Help: "Concurrency chaos sub-score"}),
		},
	}

	registry.MustRegister(p.score)
	for _, g := range p.subs {
		registry.MustRegister(g)
	}

	if opts.PushGateway != "" {
		p.pusher = push.New(opts.PushGateway, opts.JobName).Gatherer(registry)
	}

	if opts.ListenAddr != "" {
		ln, err := net.Listen("tcp", opts.ListenAddr)
		if err != nil {
			return nil, fmt.Errorf("history: listen on %s: %w", opts.ListenAddr, err)
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		p.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := p.server.Serve(ln); err != nil && err != http.ErrServerClosed {
				logger.Error("history: metrics server failed", "error", err)
			}
		}()
	}

	return p, nil
}

// Append sets the gauges and, in push mode, pushes the registry.
func (p *Prometheus) Append(ctx context.Context, rec model.HistoryRecord) error {
	p.score.Set(rec.PSS)
	p.subs["ts"].Set(rec.Scores.TS)
	p.subs["ms"].Set(rec.Scores.MS)
	p.subs["ev"].Set(rec.Scores.EV)
	p.subs["be"].Set(rec.Scores.BE)
	p.subs["cc"].Set(rec.Scores.CC)

	if p.pusher != nil {
		if err := p.pusher.PushContext(ctx); err != nil {
			return fmt.Errorf("history: push metrics: %w", err)
		}
	}
	return nil
}

// Recent implements Store; Prometheus is write-only from this side.
func (p *Prometheus) Recent(ctx context.Context, n int) ([]model.HistoryRecord, error) {
	return nil, nil
}

// Since implements Store; Prometheus is write-only from this side.
func (p *Prometheus) Since(ctx context.Context, d time.Duration) ([]model.HistoryRecord, error) {
	return nil, nil
}

// Close stops the scrape endpoint if one was started.
func (p *Prometheus) Close() error {
	if p.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		return p.server.Shutdown(ctx)
	}
	return nil
}
