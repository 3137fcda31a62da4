package api

import (
	"net/http"
	"os"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/edugatenow/edugate/pkg/audit"
	"github.com/edugatenow/edugate/pkg/auth"
	"github.com/edugatenow/edugate/pkg/crm"
	"github.com/edugatenow/edugate/pkg/csrf"
	"github.com/edugatenow/edugate/pkg/httputil"
	"github.com/edugatenow/edugate/pkg/middleware"
	"github.com/edugatenow/edugate/pkg/observability"
	"github.com/edugatenow/edugate/pkg/rbac"
)

// MaxBodyBytes caps request bodies
const MaxBodyBytes = 1 << 20

// RateLimits are the presets applied by the router
type RateLimits struct {
	API      middleware.RateLimitConfig
	Auth     middleware.RateLimitConfig
	Mutation middleware.RateLimitConfig
}

// DefaultRateLimits returns the built-in presets
func DefaultRateLimits() RateLimits {
	return RateLimits{
		API:      middleware.DefaultRateLimitConfig(),
		Auth:     middleware.AuthRateLimitConfig(),
		Mutation: middleware.MutationRateLimitConfig(),
	}
}

// Deps are the components the HTTP surface is built from
type Deps struct {
	Services      *crm.Services
	Authenticator *auth.Authenticator
	Matrix        *rbac.Matrix
	CSRF          *csrf.Manager
	CSRFConfig    middleware.CSRFConfig
	Limiter       *middleware.RateLimiter
	RateLimits    RateLimits
	AuditStore    audit.Store
	Recorder      *audit.Recorder
	Logger        *observability.Logger
	Metrics       *observability.Metrics
	// TrustedProxies may report the client address in forwarding headers;
	// nil trusts none
	TrustedProxies *httputil.TrustedProxies
	// SecureCookies marks session cookies Secure
	SecureCookies bool
	// ServiceName names the OpenTelemetry server spans
	ServiceName string
}

// Server is the CRM HTTP API
type Server struct {
	deps   Deps
	router *mux.Router
}

// NewServer builds the router and its middleware chain
func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = observability.NewLogger(observability.InfoLevel, os.Stderr)
	}
	if deps.Matrix == nil {
		deps.Matrix = rbac.DefaultMatrix()
	}
	if deps.ServiceName == "" {
		deps.ServiceName = "edugate"
	}
	if deps.RateLimits.API.Name == "" {
		deps.RateLimits = DefaultRateLimits()
	}

	s := &Server{deps: deps, router: mux.NewRouter()}
	s.setupRoutes()
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	d := s.deps

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteNotFound(w, "Not found")
	})

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(
		httputil.RecoveryMiddleware(d.Logger),
		httputil.RequestIDMiddleware,
		httputil.ClientIPMiddleware(d.TrustedProxies),
		httputil.LoggingMiddleware(d.Logger),
		observability.HTTPMetricsMiddleware(d.Metrics),
		otelhttp.NewMiddleware(d.ServiceName),
		httputil.MaxBytesMiddleware(MaxBodyBytes),
		audit.Middleware,
		middleware.CSRFMiddleware(d.CSRF, d.CSRFConfig, d.Metrics),
		middleware.IdentityMiddleware(d.Authenticator),
		middleware.RateLimitMiddleware(d.Limiter, d.RateLimits.API),
		middleware.RateLimitMiddleware(d.Limiter, d.RateLimits.Mutation),
	)

	// Public routes
	api.HandleFunc("/csrf-token", middleware.CSRFTokenHandler(d.CSRF, d.CSRFConfig)).Methods(http.MethodGet)
	api.Handle("/auth/login",
		middleware.RateLimitMiddleware(d.Limiter, d.RateLimits.Auth)(http.HandlerFunc(s.login)),
	).Methods(http.MethodPost)

	// Session routes
	api.Handle("/auth/logout", middleware.RequireAuth(http.HandlerFunc(s.logout))).Methods(http.MethodPost)
	api.Handle("/auth/me", middleware.RequireAuth(http.HandlerFunc(s.me))).Methods(http.MethodGet)

	// Customer routes
	viewCustomers := []rbac.Action{rbac.CustomerViewAll, rbac.CustomerViewOwn, rbac.CustomerViewAssigned}
	editCustomers := []rbac.Action{rbac.CustomerEditAll, rbac.CustomerEditOwn15Min, rbac.CustomerEditAssigned}
	s.handle(api, "/customers", s.listCustomers, http.MethodGet, viewCustomers...)
	s.handle(api, "/customers", s.createCustomer, http.MethodPost, rbac.CustomerCreate)
	s.handle(api, "/customers/{id}", s.getCustomer, http.MethodGet, viewCustomers...)
	s.handle(api, "/customers/{id}", s.updateCustomer, http.MethodPut, editCustomers...)
	s.handle(api, "/customers/{id}", s.deleteCustomer, http.MethodDelete, rbac.CustomerDelete)
	s.handle(api, "/customers/{id}/assign", s.assignAgent, http.MethodPost, rbac.CustomerAssign)
	s.handle(api, "/customers/{id}/assign/{agentId}", s.unassignAgent, http.MethodDelete, rbac.CustomerAssign)
	s.handle(api, "/customers/{id}/edit-window", s.editWindow, http.MethodGet, viewCustomers...)

	// Follow-up routes
	s.handle(api, "/followups", s.listFollowups, http.MethodGet, rbac.FollowupViewAll, rbac.FollowupViewOwn)
	s.handle(api, "/followups", s.createFollowup, http.MethodPost, rbac.FollowupCreate)
	s.handle(api, "/followups/{id}", s.getFollowup, http.MethodGet, rbac.FollowupViewAll, rbac.FollowupViewOwn)
	s.handle(api, "/followups/{id}", s.updateFollowup, http.MethodPut, rbac.FollowupEditAll, rbac.FollowupEditOwn)
	s.handle(api, "/followups/{id}", s.deleteFollowup, http.MethodDelete, rbac.FollowupDelete)

	// User routes. Reading one's own account and changing one's own password
	// are authorized per target in the service.
	s.handle(api, "/users", s.listUsers, http.MethodGet, rbac.UserViewAll)
	s.handle(api, "/users", s.createUser, http.MethodPost, rbac.UserCreate)
	s.handle(api, "/users/{id}", s.getUser, http.MethodGet)
	s.handle(api, "/users/{id}", s.updateUser, http.MethodPut)
	s.handle(api, "/users/{id}", s.deleteUser, http.MethodDelete, rbac.UserDelete)
	s.handle(api, "/users/{id}/password", s.changePassword, http.MethodPut)

	// Settings routes
	s.handle(api, "/settings", s.getSettings, http.MethodGet, rbac.SettingsView, rbac.SettingsManage)
	s.handle(api, "/settings", s.updateSettings, http.MethodPut, rbac.SettingsManage)

	// Audit routes
	auditHandlers := audit.NewHandlers(d.AuditStore, d.Recorder)
	s.handle(api, "/audit", auditHandlers.List, http.MethodGet, rbac.AuditView)
	s.handle(api, "/audit/export", auditHandlers.Export, http.MethodGet, rbac.AuditView)
}

// handle registers an authenticated route. With actions, the caller's role
// must hold at least one of them.
func (s *Server) handle(r *mux.Router, path string, h http.HandlerFunc, method string, actions ...rbac.Action) {
	var handler http.Handler = h
	if len(actions) > 0 {
		handler = middleware.RequirePermission(s.deps.Matrix, s.deps.Metrics, actions...)(handler)
	}
	r.Handle(path, middleware.RequireAuth(handler)).Methods(method)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Router exposes the underlying router for additional registrations
func (s *Server) Router() *mux.Router {
	return s.router
}
