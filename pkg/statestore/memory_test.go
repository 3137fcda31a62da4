package statestore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edugatenow/edugate/pkg/clock"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestMemoryStoreTTL(t *testing.T) {
	clk := clock.NewFixed(t0)
	s := NewMemoryStore(clk)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "csrf:abc", []byte("record"), time.Hour))
	got, err := s.Get(ctx, "csrf:abc")
	require.NoError(t, err)
	assert.Equal(t, []byte("record"), got)

	clk.Advance(time.Hour)
	_, err = s.Get(ctx, "csrf:abc")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Set(ctx, "k", []byte("v"), time.Minute))
	require.NoError(t, s.Delete(ctx, "k"))
	_, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreReserveSlidingWindow(t *testing.T) {
	s := NewMemoryStore(clock.NewFixed(t0))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		st, err := s.Reserve(ctx, "ip:1.2.3.4", 3, time.Minute, t0.Add(time.Duration(i)*10*time.Second))
		require.NoError(t, err)
		assert.True(t, st.Allowed)
		assert.Equal(t, i+1, st.Count)
	}

	st, err := s.Reserve(ctx, "ip:1.2.3.4", 3, time.Minute, t0.Add(30*time.Second))
	require.NoError(t, err)
	assert.False(t, st.Allowed)
	assert.Equal(t, 3, st.Count)
	assert.Equal(t, t0, st.Oldest)

	// exactly one window after the first request it has left the window
	st, err = s.Reserve(ctx, "ip:1.2.3.4", 3, time.Minute, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, st.Allowed)
	assert.Equal(t, t0.Add(10*time.Second), st.Oldest)
}

func TestMemoryStoreReserveZeroLimit(t *testing.T) {
	s := NewMemoryStore(nil)
	st, err := s.Reserve(context.Background(), "k", 0, time.Minute, t0)
	require.NoError(t, err)
	assert.False(t, st.Allowed)
}

func TestMemoryStoreReserveConcurrent(t *testing.T) {
	s := NewMemoryStore(clock.NewFixed(t0))
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st, err := s.Reserve(ctx, "user:u1", 30, time.Minute, t0)
			assert.NoError(t, err)
			if st.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 30, allowed)
}

func TestMemoryStoreSweep(t *testing.T) {
	clk := clock.NewFixed(t0)
	s := NewMemoryStore(clk)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "short", []byte("x"), time.Minute))
	require.NoError(t, s.Set(ctx, "long", []byte("x"), time.Hour))
	require.NoError(t, s.Set(ctx, "forever", []byte("x"), 0))
	_, err := s.Reserve(ctx, "ip:a", 5, time.Minute, t0)
	require.NoError(t, err)
	_, err = s.Reserve(ctx, "ip:b", 5, 10*time.Minute, t0)
	require.NoError(t, err)

	clk.Advance(2 * time.Minute)
	n, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "short value and ip:a window")
	assert.Equal(t, 3, s.Len())
}
