package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/edugatenow/edugate/pkg/csrf"
	"github.com/edugatenow/edugate/pkg/httputil"
	"github.com/edugatenow/edugate/pkg/observability"
)

const (
	// CSRFHeaderName is the preferred token source
	CSRFHeaderName = "X-CSRF-Token"
	// CSRFCookieName holds the token for browser clients
	CSRFCookieName = "csrf-token"
	// CSRFFieldName is the body and query parameter name
	CSRFFieldName = "_csrf"

	csrfBodyLimit = 1 << 20
)

// CSRFConfig controls token delivery
type CSRFConfig struct {
	// AutoIssue sets a token cookie on safe requests that arrive without one
	AutoIssue bool
	Secure    bool
	SameSite  http.SameSite
}

// ParseSameSite maps lax, strict and none to http.SameSite; anything else is lax
func ParseSameSite(s string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

func isSafeMethod(method string) bool {
	return method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions
}

// CSRFMiddleware rejects state-changing requests without a valid token
func CSRFMiddleware(manager *csrf.Manager, cfg CSRFConfig, metrics *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSafeMethod(r.Method) {
				if cfg.AutoIssue && r.Method == http.MethodGet {
					if _, err := r.Cookie(CSRFCookieName); err != nil {
						issueToken(w, r, manager, cfg)
					}
				}
				next.ServeHTTP(w, r)
				return
			}

			token := extractCSRFToken(r)
			ok, err := manager.ValidateToken(r.Context(), token, r)
			if !ok {
				reason := csrf.ReasonOf(err)
				metrics.CSRFFailed(reason)
				logger := observability.FromContext(r.Context()).WithFields(map[string]interface{}{
					"reason": reason,
					"method": r.Method,
					"path":   r.URL.Path,
				})
				if reason == csrf.ReasonStore {
					logger.WithError(err).Error("csrf token store failed")
				} else {
					logger.Warn("csrf validation failed")
				}

				httputil.WriteDetailedError(w, http.StatusForbidden, "CSRF validation failed",
					"Invalid or missing CSRF token. Refresh the page and try again.", "CSRF_INVALID")
				return
			}

			if manager.Config().RotateOnValidate {
				rotated, err := manager.Rotate(r.Context(), token, r)
				if err != nil {
					observability.FromContext(r.Context()).WithError(err).Warn("csrf token rotation failed")
				} else if rotated != nil {
					setTokenCookie(w, rotated, manager, cfg)
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// CSRFTokenHandler serves GET /api/csrf-token
func CSRFTokenHandler(manager *csrf.Manager, cfg CSRFConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tok := issueToken(w, r, manager, cfg)
		if tok == nil {
			httputil.WriteInternalError(w)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"success":   true,
			"token":     tok.Token,
			"expiresIn": int64(manager.Config().TTL.Seconds()),
		})
	}
}

func issueToken(w http.ResponseWriter, r *http.Request, manager *csrf.Manager, cfg CSRFConfig) *csrf.Token {
	tok, err := manager.CreateToken(r.Context(), r)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to issue csrf token")
		return nil
	}
	setTokenCookie(w, tok, manager, cfg)
	return tok
}

func setTokenCookie(w http.ResponseWriter, tok *csrf.Token, manager *csrf.Manager, cfg CSRFConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    tok.Token,
		Path:     "/",
		MaxAge:   int(manager.Config().TTL.Seconds()),
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: cfg.SameSite,
	})
	w.Header().Set(CSRFHeaderName, tok.Token)
}

// extractCSRFToken checks the header, then the body, then the query string,
// then the cookie
func extractCSRFToken(r *http.Request) string {
	if t := r.Header.Get(CSRFHeaderName); t != "" {
		return t
	}
	if t := tokenFromBody(r); t != "" {
		return t
	}
	if t := r.URL.Query().Get(CSRFFieldName); t != "" {
		return t
	}
	if c, err := r.Cookie(CSRFCookieName); err == nil {
		return c.Value
	}
	return ""
}

// tokenFromBody reads _csrf from a JSON or form body and restores the body
func tokenFromBody(r *http.Request) string {
	if r.Body == nil || r.Body == http.NoBody {
		return ""
	}
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "application/json" && mediaType != "application/x-www-form-urlencoded" {
		return ""
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, csrfBodyLimit))
	r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(data))
	if err != nil || len(data) == 0 {
		return ""
	}

	if mediaType == "application/json" {
		var body struct {
			CSRF string `json:"_csrf"`
		}
		if json.Unmarshal(data, &body) == nil {
			return body.CSRF
		}
		return ""
	}

	values, err := url.ParseQuery(string(data))
	if err != nil {
		return ""
	}
	return values.Get(CSRFFieldName)
}
