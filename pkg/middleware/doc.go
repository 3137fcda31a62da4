// Package middleware provides the access-control HTTP middleware: identity
// resolution, authentication and permission gates, sliding-window rate
// limiting and CSRF protection.
//
// The API router applies them in this order:
//
//	CSRFMiddleware -> IdentityMiddleware -> RateLimitMiddleware -> RequireAuth -> RequirePermission
//
// Identity runs before the rate limiter so that authenticated callers are
// limited per user rather than per IP.
//
// # Rate Limiting
//
// Default: 100 req/min
// Auth (login): 10 req/15min, always per IP
// Mutation: 30 req/min for POST, PUT, PATCH and DELETE
//
// Authenticated limits are multiplied per role: superadmin x5, admin x3,
// superagent x2.
package middleware
