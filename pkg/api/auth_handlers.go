package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/edugatenow/edugate/pkg/audit"
	"github.com/edugatenow/edugate/pkg/auth"
	"github.com/edugatenow/edugate/pkg/httputil"
	"github.com/edugatenow/edugate/pkg/middleware"
	"github.com/edugatenow/edugate/pkg/models"
	"github.com/edugatenow/edugate/pkg/rbac"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	User      *models.User `json:"user"`
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
}

type meResponse struct {
	User         *auth.Identity `json:"user"`
	Permissions  []string       `json:"permissions"`
	AllowedRoles []rbac.Role    `json:"allowedRoles"`
}

// login handles POST /api/auth/login
func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	session, err := s.deps.Authenticator.Login(r.Context(), req.Email, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		email := strings.ToLower(strings.TrimSpace(req.Email))
		s.deps.Recorder.Record(r.Context(), audit.Entry{
			UserEmail:    email,
			Action:       audit.ActionLoginFailed,
			EntityType:   audit.EntityAuth,
			EntityName:   email,
			Description:  "Failed login attempt for " + email,
			StatusCode:   http.StatusUnauthorized,
			ErrorMessage: "invalid credentials",
		})
		httputil.WriteUnauthorized(w, "Invalid email or password")
		return
	}
	if err != nil {
		s.writeError(w, r, rbac.ResourceUsers, err)
		return
	}

	u := session.User
	s.deps.Recorder.Record(r.Context(), audit.Entry{
		UserID:      u.ID,
		UserEmail:   u.Email,
		UserName:    u.Name,
		UserRole:    string(u.Role),
		Action:      audit.ActionLogin,
		EntityType:  audit.EntityAuth,
		EntityID:    u.ID,
		EntityName:  u.Email,
		Description: u.Email + " logged in",
		StatusCode:  http.StatusOK,
	})

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    session.Token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   s.deps.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	httputil.WriteSuccess(w, loginResponse{User: u, Token: session.Token, ExpiresAt: session.ExpiresAt})
}

// logout handles POST /api/auth/logout
func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	s.deps.Recorder.Record(r.Context(), audit.Entry{
		Action:      audit.ActionLogout,
		EntityType:  audit.EntityAuth,
		EntityID:    id.UserID,
		EntityName:  id.Email,
		Description: id.Email + " logged out",
		StatusCode:  http.StatusOK,
	})

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.deps.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	httputil.WriteSuccessMessage(w, "Logged out")
}

// me handles GET /api/auth/me
func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	httputil.WriteSuccess(w, meResponse{
		User:         id,
		Permissions:  s.deps.Matrix.Permissions(id.Role),
		AllowedRoles: rbac.AllowedRoles(id.Role),
	})
}
