package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"amberline/internal/notifications/dispatch"
)

type fakeClock struct{ now time.Time }

func (c fakeClock) Now() time.Time { return c.now }

type recordingDispatcher struct {
	mu      sync.Mutex
	cutoffs []time.Time
	report  *dispatch.DigestReport
	err     error
}

func (d *recordingDispatcher) DispatchDigest(_ context.Context, cutoff time.Time) (*dispatch.DigestReport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cutoffs = append(d.cutoffs, cutoff)
	if d.err != nil {
		return nil, d.err
	}
	if d.report != nil {
		return d.report, nil
	}
	return &dispatch.DigestReport{Cutoff: cutoff}, nil
}

var now = time.Date(2026, 6, 10, 8, 0, 0, 0, time.UTC)

func TestRunOnce_UsesLookbackCutoff(t *testing.T) {
	d := &recordingDispatcher{report: &dispatch.DigestReport{CasesIncluded: 2, DigestSent: 3}}
	r, err := NewDigestRunner(d, RunnerConfig{Lookback: 24 * time.Hour, Clock: fakeClock{now}})
	require.NoError(t, err)

	report, err := r.RunOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 3, report.DigestSent)
	require.Len(t, d.cutoffs, 1)
	assert.Equal(t, now.Add(-24*time.Hour), d.cutoffs[0])
}

func TestRunOnce_DefaultLookback(t *testing.T) {
	d := &recordingDispatcher{}
	r, err := NewDigestRunner(d, RunnerConfig{Clock: fakeClock{now}})
	require.NoError(t, err)

	_, err = r.RunOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, now.Add(-24*time.Hour), d.cutoffs[0])
}

func TestRunOnce_DispatchError(t *testing.T) {
	boom := errors.New("db down")
	r, err := NewDigestRunner(&recordingDispatcher{err: boom}, RunnerConfig{Clock: fakeClock{now}})
	require.NoError(t, err)

	_, err = r.RunOnce(context.Background())

	assert.ErrorIs(t, err, boom)
}

func TestNewDigestRunner_InvalidSchedule(t *testing.T) {
	_, err := NewDigestRunner(&recordingDispatcher{}, RunnerConfig{Schedule: "every morning"})
	assert.Error(t, err)
}

func TestNewDigestRunner_BadTimezoneFallsBackToUTC(t *testing.T) {
	r, err := NewDigestRunner(&recordingDispatcher{}, RunnerConfig{Timezone: "Mars/Olympus"})
	require.NoError(t, err)
	assert.Equal(t, time.UTC, r.cron.Location())
}

func TestDigestRunner_ScheduleInTimezone(t *testing.T) {
	r, err := NewDigestRunner(&recordingDispatcher{}, RunnerConfig{
		Schedule: "0 8 * * *",
		Timezone: "America/Chicago",
	})
	require.NoError(t, err)

	r.Start()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		require.NoError(t, r.Stop(ctx))
	}()

	next := r.Next()
	require.False(t, next.IsZero())
	chicago, _ := time.LoadLocation("America/Chicago")
	local := next.In(chicago)
	assert.Equal(t, 8, local.Hour())
	assert.Equal(t, 0, local.Minute())
}

func TestDigestRunner_TickRunsDigest(t *testing.T) {
	d := &recordingDispatcher{}
	r, err := NewDigestRunner(d, RunnerConfig{Schedule: "@every 1h", Clock: fakeClock{now}})
	require.NoError(t, err)

	r.tick()

	d.mu.Lock()
	defer d.mu.Unlock()
	assert.Len(t, d.cutoffs, 1)
}
