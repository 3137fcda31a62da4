package audit

import (
	"context"
	"net/http"

	"github.com/edugatenow/edugate/pkg/contextkeys"
	"github.com/edugatenow/edugate/pkg/httputil"
)

// Middleware captures the client IP, method and path for entries recorded
// while serving the request
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		meta := RequestMeta{
			IPAddress: httputil.ClientIP(r),
			Method:    r.Method,
			Path:      r.URL.Path,
		}
		next.ServeHTTP(w, r.WithContext(WithRequestMeta(r.Context(), meta)))
	})
}

// WithRequestMeta attaches meta to ctx
func WithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return contextkeys.WithRequestMeta(ctx, meta)
}

// RequestMetaFrom returns the request metadata set by Middleware
func RequestMetaFrom(ctx context.Context) (RequestMeta, bool) {
	meta, ok := ctx.Value(contextkeys.RequestMetaKey).(RequestMeta)
	return meta, ok
}
