// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the application must be defined here.
// Keeping them in one place prevents typos and makes key usage discoverable.
//
// USAGE PATTERN:
//
//	import "github.com/edugatenow/edugate/pkg/contextkeys"
//	ctx = contextkeys.WithIdentity(ctx, identity)
//	identity, _ := ctx.Value(contextkeys.IdentityKey).(*auth.Identity)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// IdentityKey contains *auth.Identity
	// Set by: middleware.IdentityMiddleware (pkg/middleware/auth.go)
	// Required by: RequireAuth, RequirePermission, rate limiter user keys, crm services
	// Type: *auth.Identity (absent when the caller is unauthenticated)
	IdentityKey Key = "identity"

	// RequestIDKey contains request ID string (UUID)
	// Set by: httputil.RequestIDMiddleware
	// Used by: Logger, audit trail
	// Type: string
	RequestIDKey Key = "request_id"

	// UserIDKey contains user ID string
	// Set by: Identity middleware after the session is resolved
	// Used by: Logger
	// Type: string
	UserIDKey Key = "user_id"

	// LoggerKey contains *observability.Logger
	// Set by: cmd/edugate request logging middleware
	// Used by: Handlers that need structured logging with request context
	// Type: *observability.Logger
	LoggerKey Key = "logger"

	// RequestMetaKey contains audit.RequestMeta
	// Set by: audit.Middleware (pkg/audit/middleware.go)
	// Used by: audit.Recorder to fill ipAddress, requestMethod, requestPath
	// Type: audit.RequestMeta
	RequestMetaKey Key = "request_meta"

	// ClientIPKey contains the resolved client address
	// Set by: httputil.ClientIPMiddleware
	// Used by: rate limiter IP keys, CSRF fingerprint, audit request meta
	// Type: string
	ClientIPKey Key = "client_ip"

	// RequestStartTimeKey contains request start timestamp
	// Set by: audit.Middleware
	// Type: time.Time
	RequestStartTimeKey Key = "request_start_time"
)

// WithIdentity adds the resolved caller identity to the context
func WithIdentity(ctx context.Context, identity interface{}) context.Context {
	return context.WithValue(ctx, IdentityKey, identity)
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithUserID adds user ID to the context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// WithLogger adds logger to the context
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// WithRequestMeta adds request metadata for audit entries to the context
func WithRequestMeta(ctx context.Context, meta interface{}) context.Context {
	return context.WithValue(ctx, RequestMetaKey, meta)
}

// WithClientIP adds the resolved client address to the context
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ClientIPKey, ip)
}

// WithRequestStartTime adds request start time to the context
func WithRequestStartTime(ctx context.Context, startTime interface{}) context.Context {
	return context.WithValue(ctx, RequestStartTimeKey, startTime)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// GetUserID retrieves user ID from context
func GetUserID(ctx context.Context) string {
	if userID, ok := ctx.Value(UserIDKey).(string); ok {
		return userID
	}
	return ""
}
