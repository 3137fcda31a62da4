package httputil

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/edugatenow/edugate/pkg/contextkeys"
	"github.com/edugatenow/edugate/pkg/observability"
)

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = contextkeys.GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	_, err := uuid.Parse(seen)
	assert.NoError(t, err)
	assert.Equal(t, seen, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "upstream-1")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "upstream-1", seen)
}

func TestRecoveryMiddleware(t *testing.T) {
	var buf bytes.Buffer
	h := RecoveryMiddleware(observability.NewLogger(observability.InfoLevel, &buf))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { panic("boom") }))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/customers", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, buf.String(), "PANIC recovered")
}

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := observability.NewLogger(observability.InfoLevel, &buf)
	h := Chain(RequestIDMiddleware, LoggingMiddleware(logger))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodDelete, "/api/customers/c1", nil))

	out := buf.String()
	assert.True(t, strings.Contains(out, `"status":403`), out)
	assert.Contains(t, out, `"request_id"`)
}
