package middleware

import (
	"fmt"
	"net/http"

	"github.com/edugatenow/edugate/pkg/auth"
	"github.com/edugatenow/edugate/pkg/httputil"
	"github.com/edugatenow/edugate/pkg/observability"
	"github.com/edugatenow/edugate/pkg/rbac"
)

// RequirePermission admits callers whose role holds at least one of actions
func RequirePermission(matrix *rbac.Matrix, metrics *observability.Metrics, actions ...rbac.Action) func(http.Handler) http.Handler {
	if len(actions) == 0 {
		panic("RequirePermission needs at least one action")
	}
	resource := actions[0].Resource()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := auth.FromContext(r.Context())
			if id == nil {
				httputil.WriteUnauthorized(w, "Authentication required")
				return
			}

			if !matrix.AllowsAny(id.Role, actions...) {
				metrics.PermissionDenied(string(resource), rbac.ReasonRoleDenied)
				observability.FromContext(r.Context()).WithFields(map[string]interface{}{
					"role":     string(id.Role),
					"resource": string(resource),
					"action":   actions[0].String(),
				}).Warn("permission denied")

				httputil.WriteForbidden(w, fmt.Sprintf("Role %s is not permitted to %s %s", id.Role, actions[0], resource))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
