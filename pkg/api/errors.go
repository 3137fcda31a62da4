package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/edugatenow/edugate/pkg/auth"
	"github.com/edugatenow/edugate/pkg/crm"
	"github.com/edugatenow/edugate/pkg/httputil"
	"github.com/edugatenow/edugate/pkg/observability"
	"github.com/edugatenow/edugate/pkg/rbac"
	"github.com/edugatenow/edugate/pkg/storage"
)

// writeError maps service errors onto HTTP responses. Record-level denials
// are counted against resource.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, resource rbac.Resource, err error) {
	logger := observability.FromContext(r.Context())

	switch {
	case errors.Is(err, storage.ErrNotFound):
		httputil.WriteNotFound(w, "Not found")
	case errors.Is(err, rbac.ErrAccessDenied):
		reason := rbac.ReasonOf(err)
		s.deps.Metrics.PermissionDenied(string(resource), reason)
		logger.WithFields(map[string]interface{}{
			"resource": string(resource),
			"reason":   reason,
		}).Warn("access denied")
		httputil.WriteForbidden(w, rbac.MessageOf(err))
	case errors.Is(err, rbac.ErrSelfModification):
		httputil.WriteBadRequest(w, rbac.MessageOf(err))
	case errors.Is(err, rbac.ErrInvalidRole):
		httputil.WriteBadRequest(w, err.Error())
	case errors.Is(err, crm.ErrValidation):
		httputil.WriteBadRequest(w, detail(err, crm.ErrValidation))
	case errors.Is(err, crm.ErrConflict):
		httputil.WriteConflict(w, detail(err, crm.ErrConflict))
	case errors.Is(err, auth.ErrInvalidCredentials):
		httputil.WriteUnauthorized(w, "Invalid email or password")
	default:
		logger.WithError(err).Error("request failed")
		httputil.WriteInternalError(w)
	}
}

// detail strips the sentinel prefix from a wrapped error message
func detail(err, sentinel error) string {
	msg := err.Error()
	if trimmed := strings.TrimPrefix(msg, sentinel.Error()+": "); trimmed != "" {
		return trimmed
	}
	return msg
}
