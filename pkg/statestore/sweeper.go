package statestore

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/edugatenow/edugate/pkg/observability"
)

// Default schedules for the background jobs
const (
	RateLimitSweepSchedule = "@every 2m"
	CSRFSweepSchedule      = "@every 10m"
	ClockSyncSchedule      = "@every 1m"
)

// SweepFunc removes expired state and reports how many entries went
type SweepFunc func(ctx context.Context) (int, error)

// Sweeper owns the periodic maintenance jobs. The host process starts it once
// and stops it during shutdown.
type Sweeper struct {
	cron    *cron.Cron
	logger  *observability.Logger
	metrics *observability.Metrics
	timeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
}

// NewSweeper creates a stopped sweeper. Panicking jobs are recovered and logged.
func NewSweeper(logger *observability.Logger, metrics *observability.Metrics) *Sweeper {
	ctx, cancel := context.WithCancel(context.Background())
	cl := cronLogger{logger: logger}
	return &Sweeper{
		cron:    cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		logger:  logger,
		metrics: metrics,
		timeout: 30 * time.Second,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// AddSweep schedules fn and records removed entries under name
func (s *Sweeper) AddSweep(spec, name string, fn SweepFunc) error {
	return s.AddJob(spec, name, func(ctx context.Context) error {
		n, err := fn(ctx)
		if err != nil {
			return err
		}
		s.metrics.SweepRemoved(name, n)
		if n > 0 {
			s.logger.WithField("store", name).WithField("removed", n).Debug("Swept expired state")
		}
		return nil
	})
}

// AddJob schedules fn; errors are logged and the job keeps its schedule
func (s *Sweeper) AddJob(spec, name string, fn func(ctx context.Context) error) error {
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			s.logger.WithError(err).WithField("job", name).Error("Background job failed")
		}
	})
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	return nil
}

// Jobs reports how many jobs are scheduled
func (s *Sweeper) Jobs() int {
	return len(s.cron.Entries())
}

// RunAll runs every job once, synchronously
func (s *Sweeper) RunAll() {
	for _, e := range s.cron.Entries() {
		e.WrappedJob.Run()
	}
}

// Start begins running jobs in the background
func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop prevents new runs and waits for running jobs or ctx, whichever ends first
func (s *Sweeper) Stop(ctx context.Context) error {
	s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger adapts the structured logger to cron.Logger
type cronLogger struct {
	logger *observability.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(pairs(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.WithError(err).WithFields(pairs(keysAndValues)).Error(msg)
}

func pairs(kv []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return fields
}
