package middleware

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/edugatenow/edugate/pkg/auth"
	"github.com/edugatenow/edugate/pkg/clock"
	"github.com/edugatenow/edugate/pkg/config"
	"github.com/edugatenow/edugate/pkg/httputil"
	"github.com/edugatenow/edugate/pkg/observability"
	"github.com/edugatenow/edugate/pkg/rbac"
	"github.com/edugatenow/edugate/pkg/statestore"
)

// RateLimitConfig defines one rate limit preset
type RateLimitConfig struct {
	// Name separates the counters of different presets and labels metrics
	Name string
	// Limit is the max requests allowed in the window before multipliers
	Limit int
	// Window is the sliding window length
	Window time.Duration
	// IPOnly ignores the identity and always limits by client IP
	IPOnly bool
	// Methods restricts the limit to these HTTP methods; empty means all
	Methods []string
	// RoleMultipliers scale Limit for authenticated callers
	RoleMultipliers map[rbac.Role]int
}

// DefaultRoleMultipliers returns the built-in per-role multipliers
func DefaultRoleMultipliers() map[rbac.Role]int {
	return map[rbac.Role]int{
		rbac.RoleSuperAdmin: 5,
		rbac.RoleAdmin:      3,
		rbac.RoleSuperAgent: 2,
	}
}

// DefaultRateLimitConfig returns the general API limit
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Name:            "api",
		Limit:           100,
		Window:          time.Minute,
		RoleMultipliers: DefaultRoleMultipliers(),
	}
}

// AuthRateLimitConfig returns the login limit
func AuthRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Name:   "auth",
		Limit:  10,
		Window: 15 * time.Minute,
		IPOnly: true,
	}
}

// MutationRateLimitConfig returns the limit for state-changing requests
func MutationRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Name:            "mutation",
		Limit:           30,
		Window:          time.Minute,
		Methods:         []string{http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		RoleMultipliers: DefaultRoleMultipliers(),
	}
}

// ApplyPolicy overrides limit, window and multipliers from a policy rule.
// Zero values in rule keep the preset.
func (c RateLimitConfig) ApplyPolicy(rule config.RateLimitRule, multipliers map[string]int) RateLimitConfig {
	if rule.Limit > 0 {
		c.Limit = rule.Limit
	}
	if rule.Window > 0 {
		c.Window = rule.Window
	}
	if c.RoleMultipliers != nil && len(multipliers) > 0 {
		c.RoleMultipliers = make(map[rbac.Role]int, len(multipliers))
		for role, m := range multipliers {
			c.RoleMultipliers[rbac.Role(role)] = m
		}
	}
	return c
}

func (c RateLimitConfig) appliesTo(method string) bool {
	if len(c.Methods) == 0 {
		return true
	}
	for _, m := range c.Methods {
		if m == method {
			return true
		}
	}
	return false
}

func (c RateLimitConfig) limitFor(id *auth.Identity) int {
	if id == nil || c.IPOnly {
		return c.Limit
	}
	if m, ok := c.RoleMultipliers[id.Role]; ok && m > 1 {
		return c.Limit * m
	}
	return c.Limit
}

// RateLimitResult is the outcome of one check
type RateLimitResult struct {
	Success   bool
	Remaining int
	// ResetIn is the number of seconds until the oldest counted request leaves the window
	ResetIn int
	Limit   int
}

// RateLimiter implements a sliding-window log over a statestore.WindowStore
type RateLimiter struct {
	store   statestore.WindowStore
	clock   clock.Clock
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewRateLimiter creates a rate limiter. metrics may be nil.
func NewRateLimiter(store statestore.WindowStore, clk clock.Clock, logger *observability.Logger, metrics *observability.Metrics) *RateLimiter {
	if clk == nil {
		clk = clock.System()
	}
	return &RateLimiter{store: store, clock: clk, logger: logger, metrics: metrics}
}

// CheckRateLimit records one request for identifier if it fits in the window.
// Store failures fail open.
func (rl *RateLimiter) CheckRateLimit(ctx context.Context, identifier string, limit int, window time.Duration, isUserBased bool) RateLimitResult {
	return rl.check(ctx, "", identifier, limit, window, isUserBased)
}

func (rl *RateLimiter) check(ctx context.Context, scope, identifier string, limit int, window time.Duration, isUserBased bool) RateLimitResult {
	key := "ip:" + identifier
	if isUserBased {
		key = "user:" + identifier
	}
	if scope != "" {
		key = scope + ":" + key
	}

	now := rl.clock.Now()
	state, err := rl.store.Reserve(ctx, key, limit, window, now)
	if err != nil {
		rl.metrics.RateLimitStoreError()
		if rl.logger != nil {
			rl.logger.WithError(err).WithField("key", key).Error("rate limit store failed, allowing request")
		}
		return RateLimitResult{Success: true, Remaining: max(limit-1, 0), ResetIn: secondsCeil(window), Limit: limit}
	}

	resetIn := secondsCeil(state.Oldest.Add(window).Sub(now))
	if !state.Allowed {
		return RateLimitResult{Success: false, Remaining: 0, ResetIn: resetIn, Limit: limit}
	}
	return RateLimitResult{Success: true, Remaining: max(limit-state.Count, 0), ResetIn: resetIn, Limit: limit}
}

// secondsCeil rounds d up to whole seconds, never below 1
func secondsCeil(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}

type rateLimitBody struct {
	Error      string `json:"error"`
	RetryAfter int    `json:"retryAfter"`
	Limit      int    `json:"limit"`
}

// RateLimitMiddleware limits requests per user, or per client IP when the
// request is unauthenticated or the preset is IP-only
func RateLimitMiddleware(limiter *RateLimiter, cfg RateLimitConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.appliesTo(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			id := auth.FromContext(r.Context())
			identifier, userBased := httputil.ClientIP(r), false
			if id != nil && !cfg.IPOnly {
				identifier, userBased = id.UserID, true
			}

			res := limiter.check(r.Context(), cfg.Name, identifier, cfg.limitFor(id), cfg.Window, userBased)

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(limiter.clock.Now().Add(time.Duration(res.ResetIn)*time.Second).Unix(), 10))

			if !res.Success {
				limiter.metrics.RateLimitRejected(cfg.Name)
				observability.FromContext(r.Context()).WithFields(map[string]interface{}{
					"scope":      cfg.Name,
					"identifier": identifier,
				}).Warn("rate limit exceeded")

				h.Set("Retry-After", strconv.Itoa(res.ResetIn))
				httputil.WriteJSON(w, http.StatusTooManyRequests, rateLimitBody{
					Error:      fmt.Sprintf("Too many requests, please try again in %d seconds", res.ResetIn),
					RetryAfter: res.ResetIn,
					Limit:      res.Limit,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
