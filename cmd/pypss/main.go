// Command pypss runs the Program Stability Score pipeline: a long-running
// scoring daemon, a one-shot scorer for recorded trace files, and a history
// inspector.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/Be-Wagile-India/pypss"
	"github.com/Be-Wagile-India/pypss/internal/collector"
	"github.com/Be-Wagile-India/pypss/internal/config"
	"github.com/Be-Wagile-India/pypss/internal/history"
	"github.com/Be-Wagile-India/pypss/internal/score"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "pypss",
		Short:         "Program Stability Score pipeline",
		Long:          "pypss collects execution traces, scores program stability, and alerts on regressions.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd(), newScoreCmd(), newHistoryCmd())
	return root
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the scoring pipeline until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			p, err := pypss.New(
				pypss.WithVersion(version),
				pypss.WithLogger(logger),
			)
			if err != nil {
				return err
			}
			return p.Run(ctx)
		},
	}
}

func newScoreCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score a recorded trace file and print the report",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()

			_ = godotenv.Load()
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if path == "" {
				path = cfg.TraceFilePath
			}

			batch, err := collector.ReadTraceFile(path)
			if err != nil {
				return err
			}

			engine := score.New(cfg.ScoreConfig(), score.NewRegistry(), logger)
			report := engine.Compute(batch)

			out, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	cmd.Flags().StringVarP(&path, "file", "f", "", "trace file to score (JSON lines; defaults to PYPSS_TRACE_FILE)")
	return cmd
}

func newHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent scoring history",
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			records, err := store.Recent(ctx, limit)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no history recorded")
				return nil
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%-25s %7s %6s %6s %6s %6s %6s\n", "TIMESTAMP", "PSS", "TS", "MS", "EV", "BE", "CC")
			for _, r := range records {
				fmt.Fprintf(w, "%-25s %7.2f %6.3f %6.3f %6.3f %6.3f %6.3f\n",
					r.Timestamp.Format(time.RFC3339), r.PSS,
					r.Scores.TS, r.Scores.MS, r.Scores.EV, r.Scores.BE, r.Scores.CC)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of records to show")
	return cmd
}

// openStore opens the configured history backend for reading. Prometheus
// and none are write-only or empty, so only sqlite and postgres qualify.
func openStore(cfg config.Config) (history.Store, error) {
	switch cfg.HistoryBackend {
	case config.HistorySQLite:
		return history.NewSQLite(cfg.HistoryURI, cfg.HistoryRetention)
	case config.HistoryPostgres:
		return history.NewPostgres(context.Background(), cfg.HistoryURI, cfg.HistoryRetention)
	default:
		return nil, fmt.Errorf("history backend %q keeps no readable history", cfg.HistoryBackend)
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	switch os.Getenv("PYPSS_LOG_LEVEL") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))
}
