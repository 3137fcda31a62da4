package statestore

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edugatenow/edugate/pkg/clock"
	"github.com/edugatenow/edugate/pkg/observability"
)

func TestSweeperRunsJobsAndRecordsMetrics(t *testing.T) {
	var buf bytes.Buffer
	logger := observability.NewLogger(observability.InfoLevel, &buf)
	metrics := observability.NewMetrics(prometheus.NewRegistry())

	clk := clock.NewFixed(t0)
	store := NewMemoryStore(clk)
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "a", nil, time.Minute))
	require.NoError(t, store.Set(ctx, "b", nil, time.Minute))
	clk.Advance(time.Hour)

	s := NewSweeper(logger, metrics)
	require.NoError(t, s.AddSweep(RateLimitSweepSchedule, "ratelimit", store.Sweep))
	require.NoError(t, s.AddJob(ClockSyncSchedule, "clock", func(context.Context) error {
		return errors.New("db unreachable")
	}))
	require.NoError(t, s.AddJob(CSRFSweepSchedule, "panics", func(context.Context) error {
		panic("boom")
	}))
	assert.Equal(t, 3, s.Jobs())

	s.RunAll()

	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.SweepRemovedTotal.WithLabelValues("ratelimit")))
	assert.Contains(t, buf.String(), "db unreachable")
	assert.Contains(t, buf.String(), "panic")
}

func TestSweeperRejectsBadSchedule(t *testing.T) {
	s := NewSweeper(observability.NewLogger(observability.ErrorLevel, &bytes.Buffer{}), nil)
	assert.Error(t, s.AddJob("every now and then", "bad", func(context.Context) error { return nil }))
}

func TestSweeperStartStop(t *testing.T) {
	s := NewSweeper(observability.NewLogger(observability.ErrorLevel, &bytes.Buffer{}), nil)
	require.NoError(t, s.AddJob("@every 1h", "idle", func(context.Context) error { return nil }))
	s.Start()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Stop(ctx))
}
