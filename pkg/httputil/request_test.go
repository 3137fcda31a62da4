package httputil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePage(t *testing.T) {
	tests := []struct {
		query     string
		page      int
		limit     int
		expectErr bool
	}{
		{"", 1, 20, false},
		{"?page=3&limit=50", 3, 50, false},
		{"?limit=500", 1, 100, false},
		{"?page=0&limit=0", 1, 20, false},
		{"?page=-2", 1, 20, false},
		{"?page=abc", 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			page, limit, err := ParsePage(httptest.NewRequest(http.MethodGet, "/api/audit"+tt.query, nil))
			if tt.expectErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.page, page)
			assert.Equal(t, tt.limit, limit)
		})
	}
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.9:5555"
	r.Header.Set("X-Forwarded-For", "203.0.113.5")
	r.Header.Set("X-Real-IP", "198.51.100.7")
	assert.Equal(t, "10.0.0.9", ClientIP(r), "headers are ignored without the middleware")

	r.RemoteAddr = "not-a-host-port"
	assert.Equal(t, "not-a-host-port", ClientIP(r))
}

func TestParseJSONOrError(t *testing.T) {
	var dest struct {
		Name string `json:"name"`
	}
	rec := httptest.NewRecorder()
	ok := ParseJSONOrError(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{")), &dest)
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	ok = ParseJSONOrError(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"Ada"}`)), &dest)
	assert.True(t, ok)
	assert.Equal(t, "Ada", dest.Name)
}

func TestParsePathString(t *testing.T) {
	r := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/customers/c1", nil), map[string]string{"id": "c1"})
	id, err := ParsePathString(r, "id")
	require.NoError(t, err)
	assert.Equal(t, "c1", id)

	_, err = ParsePathString(r, "agentId")
	assert.Error(t, err)
}
