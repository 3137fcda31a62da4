// Package statestore holds short-lived shared state: CSRF tokens and
// sliding-window rate limit counters. Memory and Redis backends are provided.
package statestore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when a key is missing or expired
var ErrNotFound = errors.New("statestore: key not found")

// Store is a TTL key/value store
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// Sweep removes expired entries and reports how many were removed
	Sweep(ctx context.Context) (int, error)
}

// WindowState is the outcome of one sliding-window reservation
type WindowState struct {
	Allowed bool
	// Count is the number of requests in the window, including this one when allowed
	Count int
	// Oldest is the earliest timestamp still inside the window
	Oldest time.Time
}

// WindowStore keeps sliding-window request logs
type WindowStore interface {
	// Reserve drops timestamps at or before now-window, then appends now only
	// if fewer than limit remain. Check and append are atomic.
	Reserve(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (WindowState, error)
	Sweep(ctx context.Context) (int, error)
}
