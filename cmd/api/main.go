// Package main is the entry point for the Amberline API server.
//
// It loads configuration, opens the database pool and Redis, wires the
// delivery gateways, the verification lifecycle and the SQS alert trigger
// into the HTTP handlers, and serves until SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"amberline/internal/api/handlers"
	"amberline/internal/app"
	"amberline/internal/config"
	"amberline/internal/core"
	"amberline/internal/db"
	"amberline/internal/queue"
	"amberline/internal/verification"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig(config.NewSSMProvider(os.Getenv("AWS_REGION")))
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := app.NewLogger(cfg.LogLevel)
	logger.Info("amberline API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	ctx := context.Background()

	pool, err := app.NewPool(ctx, cfg.Database)
	if err != nil {
		return err
	}
	if err := db.Migrate(ctx, pool); err != nil {
		pool.Close()
		return fmt.Errorf("applying schema: %w", err)
	}

	awsCfg, err := app.LoadAWSConfig(ctx, cfg.AWS)
	if err != nil {
		pool.Close()
		return err
	}

	rdb := app.NewRedis(cfg.Redis)
	gw := app.NewGateways(cfg, awsCfg, logger)
	trigger := queue.NewAlertTrigger(sqs.NewFromConfig(awsCfg), cfg.AWS, logger.With("component", "alert_trigger"))

	srv, err := buildServer(cfg, logger, pool, rdb, gw, trigger)
	if err != nil {
		pool.Close()
		return fmt.Errorf("creating server: %w", err)
	}

	return runHTTPServer(srv, cfg, logger)
}

// buildServer wires repositories, services and handlers onto a core.Server.
// rdb may be nil, which disables request throttling.
func buildServer(
	cfg *config.Config,
	logger *slog.Logger,
	pool *pgxpool.Pool,
	rdb *redis.Client,
	gw *app.Gateways,
	alerts handlers.AlertEnqueuer,
) (*core.Server, error) {
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return nil, err
	}

	cases := db.NewCaseRepository(pool)
	sightings := db.NewSightingRepository(pool)
	leads := db.NewLeadRepository(pool)
	subs := db.NewSubscriptionRepository(pool)
	contacts := db.NewContactRepository(pool)

	var verifyLimiter verification.RequestLimiter
	if rdb != nil {
		verifyLimiter = verification.NewRedisRequestLimiter(rdb, verification.LimiterConfig{
			Cooldown:     cfg.Redis.VerifyCooldown,
			Window:       cfg.Redis.VerifyWindow,
			MaxPerWindow: int64(cfg.Redis.VerifyMax),
			KeyPrefix:    "verify",
		}, logger.With("component", "verify_limiter"))
		srv.SubmissionLimiter = verification.NewRedisRequestLimiter(rdb, verification.LimiterConfig{
			Window:       submissionWindow,
			MaxPerWindow: submissionMaxPerWindow,
			KeyPrefix:    "submit",
		}, logger.With("component", "submission_limiter"))
		srv.HealthChecks = append(srv.HealthChecks, core.CheckFunc{
			CheckName: "redis",
			Fn:        func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		})
		srv.Closers = append(srv.Closers, rdb.Close)
	}

	svc := verification.NewService(verification.Config{
		Emails:    subs,
		SMS:       subs,
		Mailer:    gw.Email,
		Codes:     gw.SMS,
		Limiter:   verifyLimiter,
		Formatter: gw.Formatter,
		Logger:    logger.With("component", "verification"),
	})

	caseHandler := handlers.NewCaseHandler(cases, sightings, contacts, alerts, srv.Validator, logger)
	reportHandler := handlers.NewReportHandler(sightings, leads, alerts, srv.Validator, logger)
	subHandler := handlers.NewSubscriptionHandler(svc, srv.Validator, logger)

	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars, func(r chi.Router) {
		caseHandler.RegisterRoutes(r, srv.RequireStaff)
		reportHandler.RegisterRoutes(r, srv.RequireStaff, srv.ThrottleSubmissions)
		subHandler.RegisterRoutes(r)
	})
	srv.RootRouteRegistrars = append(srv.RootRouteRegistrars, subHandler.RegisterRootRoutes)

	if pool != nil {
		srv.HealthChecks = append(srv.HealthChecks, core.CheckFunc{CheckName: "database", Fn: pool.Ping})
		srv.Closers = append(srv.Closers, func() error {
			pool.Close()
			return nil
		})
	}

	srv.MountRoutes()
	return srv, nil
}

// Anonymous sightings and leads per client IP.
const (
	submissionWindow       = 10 * time.Minute
	submissionMaxPerWindow = 20
)

// runHTTPServer serves until a signal or a listener error, then drains
// in-flight requests within ShutdownTimeout.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server resource shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}
