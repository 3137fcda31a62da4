package crm

import (
	"os"

	"github.com/edugatenow/edugate/pkg/audit"
	"github.com/edugatenow/edugate/pkg/auth"
	"github.com/edugatenow/edugate/pkg/clock"
	"github.com/edugatenow/edugate/pkg/observability"
	"github.com/edugatenow/edugate/pkg/rbac"
	"github.com/edugatenow/edugate/pkg/storage"
)

// Page sizes for list operations
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Deps are the collaborators shared by every service
type Deps struct {
	Store    storage.DocumentStore
	Matrix   *rbac.Matrix
	Clock    clock.Clock
	Recorder *audit.Recorder
	Versions *auth.VersionCache
	Logger   *observability.Logger
}

// Services groups the CRM services
type Services struct {
	Customers *CustomerService
	Followups *FollowupService
	Users     *UserService
	Settings  *SettingsService
}

// New wires all services over one store
func New(deps Deps) *Services {
	if deps.Clock == nil {
		deps.Clock = clock.System()
	}
	if deps.Matrix == nil {
		deps.Matrix = rbac.DefaultMatrix()
	}
	if deps.Logger == nil {
		deps.Logger = observability.NewLogger(observability.InfoLevel, os.Stderr)
	}
	if deps.Recorder == nil {
		deps.Recorder = audit.NewRecorder(audit.NewMemoryLogger(), deps.Clock, deps.Logger, nil)
	}
	if deps.Versions == nil {
		deps.Versions = auth.NewVersionCache(0, 0)
	}

	rules := rbac.NewRules(deps.Clock)
	settings := &SettingsService{deps: deps}
	return &Services{
		Customers: &CustomerService{deps: deps, rules: rules, settings: settings},
		Followups: &FollowupService{deps: deps, settings: settings},
		Users:     &UserService{deps: deps},
		Settings:  settings,
	}
}

// Page is one page of a scoped list
type Page[T any] struct {
	Items []T
	Total int64
	Page  int
	Limit int
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	return page, limit
}

func skip(page, limit int) int64 {
	return int64((page - 1) * limit)
}

// requirePermission returns a role denial unless role holds one of actions
func requirePermission(m *rbac.Matrix, id *auth.Identity, actions ...rbac.Action) error {
	if id == nil || !m.AllowsAny(id.Role, actions...) {
		return rbac.Deny(rbac.ReasonRoleDenied, "you do not have permission to perform this action")
	}
	return nil
}
