// Package main is the digest scheduler. It runs the daily digest on the
// DIGEST_CRON schedule until SIGINT or SIGTERM.
//
// With -once it dispatches a single digest for the lookback window ending
// now, prints the report and exits.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"

	"amberline/internal/app"
	"amberline/internal/config"
	"amberline/internal/notifications/dispatch"
	"amberline/internal/scheduler"
	"amberline/internal/types"
)

func main() {
	once := flag.Bool("once", false, "dispatch one digest and exit")
	flag.Parse()

	if err := run(*once); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(once bool) error {
	cfg, err := config.LoadConfig(config.NewSSMProvider(os.Getenv("AWS_REGION")))
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := app.NewLogger(cfg.LogLevel)
	ctx := context.Background()

	awsCfg, err := app.LoadAWSConfig(ctx, cfg.AWS)
	if err != nil {
		return err
	}
	pool, err := app.NewPool(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	var metrics dispatch.Metrics = dispatch.NoopMetrics{}
	if cfg.Observability.EnableMetrics {
		metrics = dispatch.NewCloudWatchMetrics(cloudwatch.NewFromConfig(awsCfg),
			cfg.Observability.MetricNamespace, types.NewSlogLogger(logger.With("component", "metrics")))
	}
	dispatcher := app.NewDispatcher(cfg, pool, app.NewGateways(cfg, awsCfg, logger), metrics, logger)

	runner, err := scheduler.NewDigestRunner(dispatcher, runnerConfig(cfg, logger))
	if err != nil {
		return err
	}

	if once {
		return runOnce(ctx, runner, os.Stdout)
	}

	runner.Start()
	logger.Info("digest scheduler started", "next_run", runner.Next())

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	sig := <-shutdown
	logger.Info("shutdown signal received", "signal", sig.String())

	stopCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := runner.Stop(stopCtx); err != nil {
		return fmt.Errorf("waiting for running digest: %w", err)
	}
	logger.Info("digest scheduler stopped")
	return nil
}

func runnerConfig(cfg *config.Config, logger *slog.Logger) scheduler.RunnerConfig {
	return scheduler.RunnerConfig{
		Schedule: cfg.Digest.Schedule,
		Timezone: cfg.Digest.Timezone,
		Lookback: cfg.Digest.Lookback,
		Logger:   logger.With("component", "digest_runner"),
	}
}

// DigestRunOnce is the part of scheduler.DigestRunner used by -once.
type DigestRunOnce interface {
	RunOnce(ctx context.Context) (*dispatch.DigestReport, error)
}

func runOnce(ctx context.Context, r DigestRunOnce, out io.Writer) error {
	report, err := r.RunOnce(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
