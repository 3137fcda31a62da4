package rbac

import (
	"os"
	"sort"

	"github.com/edugatenow/edugate/pkg/observability"
)

type actionSet map[string]struct{}

func setOf(actions ...Action) actionSet {
	s := make(actionSet, len(actions))
	for _, a := range actions {
		s[a.String()] = struct{}{}
	}
	return s
}

// Matrix is the immutable role -> resource -> actions lookup table.
// Anything not listed is denied.
type Matrix struct {
	entries map[Role]map[Resource]actionSet
	logger  *observability.Logger
}

// builtInMatrix is the permission table shipped with the CRM
func builtInMatrix() map[Role]map[Resource]actionSet {
	return map[Role]map[Resource]actionSet{
		RoleSuperAdmin: {
			ResourceCustomers: setOf(CustomerViewAll, CustomerCreate, CustomerEditAll, CustomerDelete,
				CustomerAssign, CustomerExportAll, CustomerImport),
			ResourceUsers:     setOf(UserViewAll, UserCreate, UserEditAll, UserDelete, UserAssignRoles),
			ResourceFollowups: setOf(FollowupViewAll, FollowupCreate, FollowupEditAll, FollowupDelete),
			ResourceAudit:     setOf(AuditView),
			ResourceSettings:  setOf(SettingsView, SettingsManage),
			ResourceReports:   setOf(ReportViewAll, ReportExportAll),
		},
		RoleAdmin: {
			ResourceCustomers: setOf(CustomerViewAll, CustomerCreate, CustomerEditAll, CustomerDelete,
				CustomerAssign, CustomerExportAll, CustomerImport),
			ResourceUsers:     setOf(UserViewAll, UserCreate, UserEditAll, UserAssignRolesLimited),
			ResourceFollowups: setOf(FollowupViewAll, FollowupCreate, FollowupEditAll, FollowupDelete),
			ResourceAudit:     setOf(AuditView),
			ResourceSettings:  setOf(SettingsView),
			ResourceReports:   setOf(ReportViewAll, ReportExportAll),
		},
		RoleSuperAgent: {
			ResourceCustomers: setOf(CustomerViewAll, CustomerCreate, CustomerEditAll, CustomerAssign,
				CustomerExportAll),
			ResourceFollowups: setOf(FollowupViewAll, FollowupCreate, FollowupEditAll),
			ResourceReports:   setOf(ReportViewAll),
		},
		RoleDataEntry: {
			ResourceCustomers: setOf(CustomerViewOwn, CustomerCreate, CustomerEditOwn15Min, CustomerImport),
		},
		RoleAgent: {
			ResourceCustomers: setOf(CustomerViewAssigned, CustomerEditAssigned),
			ResourceFollowups: setOf(FollowupViewOwn, FollowupCreate, FollowupEditOwn),
			ResourceReports:   setOf(ReportViewOwn),
		},
	}
}

// NewMatrix creates the built-in permission matrix. Warnings about unknown
// roles go to logger.
func NewMatrix(logger *observability.Logger) *Matrix {
	if logger == nil {
		logger = observability.NewLogger(observability.WarnLevel, os.Stderr)
	}
	return &Matrix{
		entries: builtInMatrix(),
		logger:  logger,
	}
}

var defaultMatrix = NewMatrix(nil)

// DefaultMatrix returns the process-wide built-in matrix
func DefaultMatrix() *Matrix {
	return defaultMatrix
}

// CheckPermission evaluates the default matrix
func CheckPermission(role Role, resource Resource, action string) bool {
	return defaultMatrix.Check(role, resource, action)
}

// Check reports whether role may perform action on resource. It never panics:
// unknown roles log a warning and are denied, unknown resources or actions
// are denied.
func (m *Matrix) Check(role Role, resource Resource, action string) bool {
	if m == nil {
		return false
	}
	resources, ok := m.entries[role]
	if !ok {
		m.logger.WithFields(map[string]interface{}{
			"role":     string(role),
			"resource": string(resource),
			"action":   action,
		}).Warn("permission check for unknown role")
		return false
	}
	actions, ok := resources[resource]
	if !ok {
		return false
	}
	_, ok = actions[action]
	return ok
}

// Allows is the typed form of Check
func (m *Matrix) Allows(role Role, action Action) bool {
	if action == nil {
		return false
	}
	return m.Check(role, action.Resource(), action.String())
}

// AllowsAny reports whether any of the actions is granted
func (m *Matrix) AllowsAny(role Role, actions ...Action) bool {
	for _, a := range actions {
		if m.Allows(role, a) {
			return true
		}
	}
	return false
}

// Actions lists the actions role holds on resource, sorted
func (m *Matrix) Actions(role Role, resource Resource) []string {
	out := []string{}
	if m == nil {
		return out
	}
	for a := range m.entries[role][resource] {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// Permissions lists every permission held by role as resource:action strings
func (m *Matrix) Permissions(role Role) []string {
	out := []string{}
	for _, res := range AllResources() {
		for _, a := range m.Actions(role, res) {
			out = append(out, Permission{Resource: res, Action: a}.String())
		}
	}
	return out
}
