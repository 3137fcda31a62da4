package rbac

import (
	"fmt"
	"strings"
)

// Role is the coarse identity classification driving the permission matrix.
// Roles are not a strict hierarchy: every check names the role explicitly.
type Role string

const (
	RoleSuperAdmin Role = "superadmin"
	RoleAdmin      Role = "admin"
	RoleSuperAgent Role = "superagent"
	RoleDataEntry  Role = "dataentry"
	RoleAgent      Role = "agent"
)

// AllRoles returns every known role, most privileged first
func AllRoles() []Role {
	return []Role{RoleSuperAdmin, RoleAdmin, RoleSuperAgent, RoleDataEntry, RoleAgent}
}

// IsValid reports whether r is one of the known roles
func (r Role) IsValid() bool {
	switch r {
	case RoleSuperAdmin, RoleAdmin, RoleSuperAgent, RoleDataEntry, RoleAgent:
		return true
	}
	return false
}

func (r Role) String() string {
	return string(r)
}

// ParseRole parses a role name. Unknown names are rejected.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.IsValid() {
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalidRole, s)
	}
	return r, nil
}

// HasFullCustomerAccess reports whether the role sees and edits every customer
func (r Role) HasFullCustomerAccess() bool {
	return r == RoleSuperAdmin || r == RoleAdmin || r == RoleSuperAgent
}

// Resource represents a protected entity category
type Resource string

const (
	ResourceCustomers Resource = "customers"
	ResourceUsers     Resource = "users"
	ResourceFollowups Resource = "followups"
	ResourceAudit     Resource = "audit"
	ResourceSettings  Resource = "settings"
	ResourceReports   Resource = "reports"
)

// AllResources returns every protected resource
func AllResources() []Resource {
	return []Resource{
		ResourceCustomers, ResourceUsers, ResourceFollowups,
		ResourceAudit, ResourceSettings, ResourceReports,
	}
}

// Action is implemented by the per-resource action enums below. Each action
// value is bound to exactly one resource, so a customer action can never be
// checked against the users table by mistake.
type Action interface {
	Resource() Resource
	String() string
}

// CustomerAction is an action on the customers resource
type CustomerAction string

const (
	CustomerViewAll      CustomerAction = "view_all"
	CustomerViewOwn      CustomerAction = "view_own"
	CustomerViewAssigned CustomerAction = "view_assigned"
	CustomerCreate       CustomerAction = "create"
	CustomerEditAll      CustomerAction = "edit_all"
	CustomerEditOwn15Min CustomerAction = "edit_own_15min"
	CustomerEditAssigned CustomerAction = "edit_assigned"
	CustomerDelete       CustomerAction = "delete"
	CustomerAssign       CustomerAction = "assign"
	CustomerExportAll    CustomerAction = "export_all"
	CustomerImport       CustomerAction = "import"
)

func (a CustomerAction) Resource() Resource { return ResourceCustomers }
func (a CustomerAction) String() string     { return string(a) }

// UserAction is an action on the users resource
type UserAction string

const (
	UserViewAll            UserAction = "view_all"
	UserCreate             UserAction = "create"
	UserEditAll            UserAction = "edit_all"
	UserDelete             UserAction = "delete"
	UserAssignRoles        UserAction = "assign_roles"
	UserAssignRolesLimited UserAction = "assign_roles_limited"
)

func (a UserAction) Resource() Resource { return ResourceUsers }
func (a UserAction) String() string     { return string(a) }

// FollowupAction is an action on the followups resource
type FollowupAction string

const (
	FollowupViewAll FollowupAction = "view_all"
	FollowupViewOwn FollowupAction = "view_own"
	FollowupCreate  FollowupAction = "create"
	FollowupEditAll FollowupAction = "edit_all"
	FollowupEditOwn FollowupAction = "edit_own"
	FollowupDelete  FollowupAction = "delete"
)

func (a FollowupAction) Resource() Resource { return ResourceFollowups }
func (a FollowupAction) String() string     { return string(a) }

// AuditAction is an action on the audit resource
type AuditAction string

const (
	AuditView AuditAction = "view"
)

func (a AuditAction) Resource() Resource { return ResourceAudit }
func (a AuditAction) String() string     { return string(a) }

// SettingsAction is an action on the settings resource
type SettingsAction string

const (
	SettingsView   SettingsAction = "view"
	SettingsManage SettingsAction = "manage"
)

func (a SettingsAction) Resource() Resource { return ResourceSettings }
func (a SettingsAction) String() string     { return string(a) }

// ReportAction is an action on the reports resource
type ReportAction string

const (
	ReportViewAll   ReportAction = "view_all"
	ReportViewOwn   ReportAction = "view_own"
	ReportExportAll ReportAction = "export_all"
)

func (a ReportAction) Resource() Resource { return ResourceReports }
func (a ReportAction) String() string     { return string(a) }

// Permission represents a specific permission (resource + action)
type Permission struct {
	Resource Resource `json:"resource"`
	Action   string   `json:"action"`
}

// PermissionFor builds the Permission for a typed action
func PermissionFor(a Action) Permission {
	return Permission{Resource: a.Resource(), Action: a.String()}
}

// String returns a string representation of the permission
func (p Permission) String() string {
	return string(p.Resource) + ":" + p.Action
}
