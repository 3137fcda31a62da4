package statestore

import (
	"context"
	"sync"
	"time"

	"github.com/edugatenow/edugate/pkg/clock"
)

type valueEntry struct {
	value   []byte
	expires time.Time
}

type windowEntry struct {
	stamps []time.Time
	window time.Duration
}

// MemoryStore implements Store and WindowStore for a single process
type MemoryStore struct {
	clock clock.Clock

	mu      sync.Mutex
	values  map[string]valueEntry
	windows map[string]*windowEntry
}

// NewMemoryStore creates an empty store; expiry is judged against clk
func NewMemoryStore(clk clock.Clock) *MemoryStore {
	if clk == nil {
		clk = clock.System()
	}
	return &MemoryStore{
		clock:   clk,
		values:  make(map[string]valueEntry),
		windows: make(map[string]*windowEntry),
	}
}

func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.values[key]
	if !ok {
		return nil, ErrNotFound
	}
	if !e.expires.IsZero() && !now.Before(e.expires) {
		delete(m.values, key)
		return nil, ErrNotFound
	}
	return append([]byte(nil), e.value...), nil
}

func (m *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	e := valueEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expires = m.clock.Now().Add(ttl)
	}

	m.mu.Lock()
	m.values[key] = e
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.values, key)
	delete(m.windows, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Reserve(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (WindowState, error) {
	cutoff := now.Add(-window)

	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.windows[key]
	if !ok {
		w = &windowEntry{}
		m.windows[key] = w
	}
	w.window = window
	w.stamps = prune(w.stamps, cutoff)

	if len(w.stamps) >= limit {
		if len(w.stamps) == 0 {
			return WindowState{Allowed: false, Oldest: now}, nil
		}
		return WindowState{Allowed: false, Count: len(w.stamps), Oldest: w.stamps[0]}, nil
	}
	w.stamps = append(w.stamps, now)
	return WindowState{Allowed: true, Count: len(w.stamps), Oldest: w.stamps[0]}, nil
}

// Sweep drops expired values and windows with no live timestamps
func (m *MemoryStore) Sweep(ctx context.Context) (int, error) {
	now := m.clock.Now()
	removed := 0

	m.mu.Lock()
	defer m.mu.Unlock()

	for k, e := range m.values {
		if !e.expires.IsZero() && !now.Before(e.expires) {
			delete(m.values, k)
			removed++
		}
	}
	for k, w := range m.windows {
		w.stamps = prune(w.stamps, now.Add(-w.window))
		if len(w.stamps) == 0 {
			delete(m.windows, k)
			removed++
		}
	}
	return removed, nil
}

// Len reports the number of live keys of both kinds
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.values) + len(m.windows)
}

// prune keeps timestamps strictly after cutoff; stamps are in ascending order
func prune(stamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(stamps) && !stamps[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return stamps
	}
	return append(stamps[:0], stamps[i:]...)
}
