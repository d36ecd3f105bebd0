// Package scheduler runs the periodic digest job.
//
// DigestRunner owns a cron schedule evaluated in the configured timezone. On
// each tick it computes the lookback cutoff and hands it to the dispatcher,
// which summarises cases still missing and created after the cutoff.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"amberline/internal/notifications/dispatch"
	"amberline/internal/types"
)

// DefaultDigestSchedule fires once a day at 08:00 in the runner's timezone.
const DefaultDigestSchedule = "0 8 * * *"

// DefaultDigestTimeout bounds a single digest run.
const DefaultDigestTimeout = 5 * time.Minute

// DigestDispatcher is the part of the alert dispatcher the runner drives.
type DigestDispatcher interface {
	DispatchDigest(ctx context.Context, cutoff time.Time) (*dispatch.DigestReport, error)
}

// RunnerConfig configures a DigestRunner.
type RunnerConfig struct {
	Schedule string
	Timezone string
	Lookback time.Duration
	Timeout  time.Duration
	Clock    types.Clock
	Logger   *slog.Logger
}

// DigestRunner triggers DispatchDigest on a cron schedule.
type DigestRunner struct {
	cron       *cron.Cron
	dispatcher DigestDispatcher
	lookback   time.Duration
	timeout    time.Duration
	clock      types.Clock
	logger     *slog.Logger
}

// NewDigestRunner builds a runner and registers the digest job. An unknown
// timezone falls back to UTC; an invalid schedule is an error.
func NewDigestRunner(d DigestDispatcher, cfg RunnerConfig) (*DigestRunner, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultDigestSchedule
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = 24 * time.Hour
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultDigestTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = types.RealClock{}
	}

	loc := time.UTC
	if cfg.Timezone != "" {
		l, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			logger.Error("invalid digest timezone, using UTC", "timezone", cfg.Timezone, "error", err)
		} else {
			loc = l
		}
	}

	r := &DigestRunner{
		cron:       cron.New(cron.WithLocation(loc), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		dispatcher: d,
		lookback:   cfg.Lookback,
		timeout:    cfg.Timeout,
		clock:      cfg.Clock,
		logger:     logger,
	}

	if _, err := r.cron.AddFunc(cfg.Schedule, r.tick); err != nil {
		return nil, fmt.Errorf("scheduler: invalid digest schedule %q: %w", cfg.Schedule, err)
	}

	logger.Info("digest runner configured",
		"schedule", cfg.Schedule,
		"timezone", loc.String(),
		"lookback", cfg.Lookback.String(),
	)
	return r, nil
}

// Start begins running the schedule in the background.
func (r *DigestRunner) Start() {
	r.cron.Start()
}

// Stop halts the schedule and waits for a running digest to finish or for
// ctx to expire.
func (r *DigestRunner) Stop(ctx context.Context) error {
	done := r.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next reports when the digest will fire next. Zero before Start.
func (r *DigestRunner) Next() time.Time {
	entries := r.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// RunOnce dispatches a digest for the window ending now.
func (r *DigestRunner) RunOnce(ctx context.Context) (*dispatch.DigestReport, error) {
	cutoff := r.clock.Now().Add(-r.lookback)
	report, err := r.dispatcher.DispatchDigest(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("digest run: %w", err)
	}
	return report, nil
}

func (r *DigestRunner) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	start := time.Now()
	report, err := r.RunOnce(ctx)
	if err != nil {
		r.logger.Error("digest run failed", "error", err, "duration", time.Since(start).String())
		return
	}
	r.logger.Info("digest run complete",
		"cutoff", report.Cutoff.Format(time.RFC3339),
		"cases_included", report.CasesIncluded,
		"digest_sent", report.DigestSent,
		"errors", len(report.Errors),
		"duration", time.Since(start).String(),
	)
}
