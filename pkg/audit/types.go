package audit

import (
	"time"
)

// Action is the kind of change an entry records
type Action string

const (
	ActionCreate         Action = "CREATE"
	ActionUpdate         Action = "UPDATE"
	ActionDelete         Action = "DELETE"
	ActionRestore        Action = "RESTORE"
	ActionAssign         Action = "ASSIGN"
	ActionUnassign       Action = "UNASSIGN"
	ActionRoleChange     Action = "ROLE_CHANGE"
	ActionStatusChange   Action = "STATUS_CHANGE"
	ActionPasswordChange Action = "PASSWORD_CHANGE"
	ActionLogin          Action = "LOGIN"
	ActionLogout         Action = "LOGOUT"
	ActionLoginFailed    Action = "LOGIN_FAILED"
	ActionSettingsUpdate Action = "SETTINGS_UPDATE"
	ActionExport         Action = "EXPORT"
	ActionImport         Action = "IMPORT"
)

// AllActions lists every action
func AllActions() []Action {
	return []Action{
		ActionCreate, ActionUpdate, ActionDelete, ActionRestore,
		ActionAssign, ActionUnassign,
		ActionRoleChange, ActionStatusChange, ActionPasswordChange,
		ActionLogin, ActionLogout, ActionLoginFailed,
		ActionSettingsUpdate, ActionExport, ActionImport,
	}
}

// IsValid reports whether a is a known action
func (a Action) IsValid() bool {
	for _, known := range AllActions() {
		if a == known {
			return true
		}
	}
	return false
}

// EntityType is the kind of record an entry is about
type EntityType string

const (
	EntityCustomer      EntityType = "Customer"
	EntityUser          EntityType = "User"
	EntityFollowup      EntityType = "Followup"
	EntitySystemSetting EntityType = "SystemSetting"
	EntityAuth          EntityType = "Auth"
)

// IsValid reports whether t is a known entity type
func (t EntityType) IsValid() bool {
	switch t {
	case EntityCustomer, EntityUser, EntityFollowup, EntitySystemSetting, EntityAuth:
		return true
	}
	return false
}

// FieldChange is one differing leaf between two versions of a record
type FieldChange struct {
	Field    string      `json:"field"`
	OldValue interface{} `json:"oldValue"`
	NewValue interface{} `json:"newValue"`
}

// Entry is a single audit log row
type Entry struct {
	ID string `json:"id"`

	// Actor
	UserID    string `json:"userId,omitempty"`
	UserEmail string `json:"userEmail,omitempty"`
	UserName  string `json:"userName,omitempty"`
	UserRole  string `json:"userRole,omitempty"`

	Action      Action        `json:"action"`
	EntityType  EntityType    `json:"entityType"`
	EntityID    string        `json:"entityId,omitempty"`
	EntityName  string        `json:"entityName,omitempty"`
	Description string        `json:"description"`
	Changes     []FieldChange `json:"changes,omitempty"`

	CreatedAt time.Time `json:"createdAt"`

	// Request context
	IPAddress     string `json:"ipAddress,omitempty"`
	RequestMethod string `json:"requestMethod,omitempty"`
	RequestPath   string `json:"requestPath,omitempty"`
	StatusCode    int    `json:"statusCode,omitempty"`
	ErrorMessage  string `json:"errorMessage,omitempty"`
}

// RequestMeta is the request context attached to every entry recorded
// while serving the request
type RequestMeta struct {
	IPAddress string
	Method    string
	Path      string
}

// SearchFilter selects entries for the audit viewer
type SearchFilter struct {
	Page       int
	Limit      int
	Action     Action
	EntityType EntityType
	// Search matches description, user email, user name and entity name, case-insensitively
	Search string
}

// SearchResult is one page of entries, newest first
type SearchResult struct {
	Entries []*Entry
	Total   int64
	Page    int
	Limit   int
	Pages   int64
}

func (f SearchFilter) normalized() SearchFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = 20
	}
	if f.Limit > 100 {
		f.Limit = 100
	}
	return f
}

func (f SearchFilter) offset() int {
	return (f.Page - 1) * f.Limit
}

func pages(total int64, limit int) int64 {
	if total == 0 || limit <= 0 {
		return 0
	}
	return (total + int64(limit) - 1) / int64(limit)
}
