// Package clock provides the authoritative time source used for time-bounded
// authorization decisions such as the data-entry edit window.
package clock

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"
)

// Clock returns the current time
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// System returns the local wall clock in UTC
func System() Clock { return systemClock{} }

// Fixed is a manually driven clock for tests
type Fixed struct {
	mu  sync.Mutex
	now time.Time
}

// NewFixed creates a clock frozen at t
func NewFixed(t time.Time) *Fixed {
	return &Fixed{now: t.UTC()}
}

func (f *Fixed) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Advance moves the clock forward by d
func (f *Fixed) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

// Set moves the clock to t
func (f *Fixed) Set(t time.Time) {
	f.mu.Lock()
	f.now = t.UTC()
	f.mu.Unlock()
}

// TimeSource reports the time of an authoritative server
type TimeSource interface {
	ServerTime(ctx context.Context) (time.Time, error)
}

// SQLTimeSource reads NOW() from the database
type SQLTimeSource struct {
	db *sql.DB
}

// NewSQLTimeSource creates a time source backed by db
func NewSQLTimeSource(db *sql.DB) *SQLTimeSource {
	return &SQLTimeSource{db: db}
}

// ServerTime returns the database server's current time
func (s *SQLTimeSource) ServerTime(ctx context.Context) (time.Time, error) {
	var now time.Time
	if err := s.db.QueryRowContext(ctx, "SELECT NOW()").Scan(&now); err != nil {
		return time.Time{}, fmt.Errorf("failed to read server time: %w", err)
	}
	return now.UTC(), nil
}

// SyncedClock applies the offset between local time and an authoritative
// TimeSource, so every instance evaluates edit windows against the same clock.
// Until the first successful Sync it behaves like System.
type SyncedClock struct {
	source TimeSource
	local  func() time.Time

	mu       sync.RWMutex
	offset   time.Duration
	syncedAt time.Time
}

// NewSyncedClock creates a clock that follows source
func NewSyncedClock(source TimeSource) *SyncedClock {
	return &SyncedClock{
		source: source,
		local:  time.Now,
	}
}

// Now returns local time corrected by the last measured offset
func (c *SyncedClock) Now() time.Time {
	c.mu.RLock()
	offset := c.offset
	c.mu.RUnlock()
	return c.local().Add(offset).UTC()
}

// Offset returns the last measured offset and when it was measured
func (c *SyncedClock) Offset() (time.Duration, time.Time) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.offset, c.syncedAt
}

// Sync measures the offset to the source, compensating for half the round trip
func (c *SyncedClock) Sync(ctx context.Context) error {
	before := c.local()
	server, err := c.source.ServerTime(ctx)
	if err != nil {
		return err
	}
	after := c.local()

	midpoint := before.Add(after.Sub(before) / 2)
	offset := server.Sub(midpoint)

	c.mu.Lock()
	c.offset = offset
	c.syncedAt = after
	c.mu.Unlock()
	return nil
}
