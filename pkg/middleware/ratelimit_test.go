package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edugatenow/edugate/pkg/auth"
	"github.com/edugatenow/edugate/pkg/clock"
	"github.com/edugatenow/edugate/pkg/config"
	"github.com/edugatenow/edugate/pkg/observability"
	"github.com/edugatenow/edugate/pkg/rbac"
	"github.com/edugatenow/edugate/pkg/statestore"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func newLimiter() (*RateLimiter, *clock.Fixed, *observability.Metrics) {
	clk := clock.NewFixed(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	return NewRateLimiter(statestore.NewMemoryStore(clk), clk, nil, metrics), clk, metrics
}

func TestCheckRateLimitSlidingWindow(t *testing.T) {
	rl, clk, _ := newLimiter()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res := rl.CheckRateLimit(ctx, "10.0.0.1", 3, time.Minute, false)
		require.True(t, res.Success)
		assert.Equal(t, 2-i, res.Remaining)
		clk.Advance(10 * time.Second)
	}

	res := rl.CheckRateLimit(ctx, "10.0.0.1", 3, time.Minute, false)
	assert.False(t, res.Success)
	assert.Equal(t, 0, res.Remaining)
	// the first request was 30s ago
	assert.Equal(t, 30, res.ResetIn)

	clk.Advance(30 * time.Second)
	res = rl.CheckRateLimit(ctx, "10.0.0.1", 3, time.Minute, false)
	assert.True(t, res.Success)
}

func TestCheckRateLimitSeparatesUserAndIPKeys(t *testing.T) {
	rl, _, _ := newLimiter()
	ctx := context.Background()

	assert.True(t, rl.CheckRateLimit(ctx, "abc", 1, time.Minute, true).Success)
	assert.False(t, rl.CheckRateLimit(ctx, "abc", 1, time.Minute, true).Success)
	assert.True(t, rl.CheckRateLimit(ctx, "abc", 1, time.Minute, false).Success)
}

func TestCheckRateLimitResetInNeverBelowOne(t *testing.T) {
	rl, clk, _ := newLimiter()
	ctx := context.Background()

	rl.CheckRateLimit(ctx, "x", 1, time.Minute, false)
	clk.Advance(time.Minute - time.Millisecond)
	res := rl.CheckRateLimit(ctx, "x", 1, time.Minute, false)
	assert.False(t, res.Success)
	assert.Equal(t, 1, res.ResetIn)
}

type failingWindowStore struct{}

func (failingWindowStore) Reserve(context.Context, string, int, time.Duration, time.Time) (statestore.WindowState, error) {
	return statestore.WindowState{}, errors.New("connection refused")
}

func (failingWindowStore) Sweep(context.Context) (int, error) { return 0, nil }

func TestCheckRateLimitFailsOpen(t *testing.T) {
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	logger := observability.NewLogger(observability.ErrorLevel, &discard{})
	rl := NewRateLimiter(failingWindowStore{}, nil, logger, metrics)

	res := rl.CheckRateLimit(context.Background(), "x", 5, time.Minute, false)
	assert.True(t, res.Success)
	assert.Equal(t, 4, res.Remaining)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RateLimitStoreErrorsTotal))
}

type discard struct{}

func (*discard) Write(p []byte) (int, error) { return len(p), nil }

func TestRateLimitMiddlewareRejectsWith429(t *testing.T) {
	rl, _, metrics := newLimiter()
	cfg := RateLimitConfig{Name: "api", Limit: 2, Window: time.Minute}
	h := RateLimitMiddleware(rl, cfg)(okHandler)

	var rec *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		rec = httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/customers", nil)
		h.ServeHTTP(rec, req)
		if i < 2 {
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
			assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))
		}
	}

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	var body rateLimitBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 60, body.RetryAfter)
	assert.Equal(t, 2, body.Limit)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RateLimitRejectionsTotal.WithLabelValues("api")))
}

func TestRateLimitMiddlewareRoleMultiplier(t *testing.T) {
	rl, _, _ := newLimiter()
	cfg := RateLimitConfig{Name: "api", Limit: 2, Window: time.Minute, RoleMultipliers: DefaultRoleMultipliers()}
	h := RateLimitMiddleware(rl, cfg)(okHandler)

	send := func(role rbac.Role, userID string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/customers", nil)
		req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UserID: userID, Role: role}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	rec := send(rbac.RoleSuperAdmin, "sa")
	assert.Equal(t, "10", rec.Header().Get("X-RateLimit-Limit"))

	rec = send(rbac.RoleAgent, "ag")
	assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	send(rbac.RoleAgent, "ag")
	assert.Equal(t, http.StatusTooManyRequests, send(rbac.RoleAgent, "ag").Code)

	// a different user has its own budget even from the same IP
	assert.Equal(t, http.StatusOK, send(rbac.RoleAgent, "ag2").Code)
}

func TestRateLimitMiddlewareIPOnlyAndMethods(t *testing.T) {
	rl, _, _ := newLimiter()

	login := RateLimitMiddleware(rl, RateLimitConfig{Name: "auth", Limit: 1, Window: time.Minute, IPOnly: true})(okHandler)
	for i, want := range []int{http.StatusOK, http.StatusTooManyRequests} {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UserID: "u" + string(rune('a'+i)), Role: rbac.RoleAdmin}))
		rec := httptest.NewRecorder()
		login.ServeHTTP(rec, req)
		assert.Equal(t, want, rec.Code)
	}

	mutation := RateLimitMiddleware(rl, RateLimitConfig{Name: "mutation", Limit: 1, Window: time.Minute, Methods: []string{http.MethodPost}})(okHandler)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		mutation.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/customers", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
	}
}

func TestPresetsAndPolicy(t *testing.T) {
	assert.Equal(t, 100, DefaultRateLimitConfig().Limit)
	assert.Equal(t, 15*time.Minute, AuthRateLimitConfig().Window)
	assert.True(t, AuthRateLimitConfig().IPOnly)
	assert.Equal(t, 30, MutationRateLimitConfig().Limit)

	cfg := DefaultRateLimitConfig().ApplyPolicy(
		config.RateLimitRule{Limit: 50},
		map[string]int{"admin": 4},
	)
	assert.Equal(t, 50, cfg.Limit)
	assert.Equal(t, time.Minute, cfg.Window)
	assert.Equal(t, 200, cfg.limitFor(&auth.Identity{Role: rbac.RoleAdmin}))
	assert.Equal(t, 50, cfg.limitFor(&auth.Identity{Role: rbac.RoleSuperAdmin}))

	authCfg := AuthRateLimitConfig().ApplyPolicy(config.RateLimitRule{}, map[string]int{"admin": 4})
	assert.Nil(t, authCfg.RoleMultipliers)
}
