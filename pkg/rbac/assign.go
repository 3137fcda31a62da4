package rbac

// CanAssignRole reports whether acting may grant target to another user.
// superadmin may grant anything, admin anything but superadmin.
func CanAssignRole(acting, target Role) bool {
	if !target.IsValid() {
		return false
	}
	switch acting {
	case RoleSuperAdmin:
		return true
	case RoleAdmin:
		return target != RoleSuperAdmin
	}
	return false
}

// AllowedRoles lists the roles acting may grant
func AllowedRoles(acting Role) []Role {
	allowed := []Role{}
	for _, r := range AllRoles() {
		if CanAssignRole(acting, r) {
			allowed = append(allowed, r)
		}
	}
	return allowed
}

// Actor is the acting user in a user mutation
type Actor struct {
	UserID string
	Role   Role
}

// Target is the account being mutated
type Target struct {
	UserID string
	Role   Role
}

// UserMutation describes what a request changes on a user account. Nil
// pointers mean the field is untouched.
type UserMutation struct {
	Role     *Role
	IsActive *bool
	Delete   bool
}

// TouchesPrivileges reports whether the mutation changes role, activation or existence
func (m UserMutation) TouchesPrivileges() bool {
	return m.Role != nil || m.IsActive != nil || m.Delete
}

// CheckUserMutation enforces the account mutation rules. Self-modification
// of role, activation or existence returns an ErrSelfModification denial
// (400); every other refusal is ErrAccessDenied (403).
func CheckUserMutation(actor Actor, target Target, m UserMutation) error {
	self := actor.UserID != "" && actor.UserID == target.UserID

	if self {
		switch {
		case m.Delete:
			return reject(ReasonSelfDelete, "you cannot delete your own account")
		case m.Role != nil && *m.Role != target.Role:
			return reject(ReasonSelfRoleChange, "you cannot change your own role")
		case m.IsActive != nil && !*m.IsActive:
			return reject(ReasonSelfDeactivate, "you cannot deactivate your own account")
		case m.Role != nil, m.IsActive != nil:
			// Submitting unchanged values is still an attempt to edit own privileges.
			return reject(ReasonSelfRoleChange, "you cannot change your own role or status")
		}
		return nil
	}

	if m.Delete {
		if actor.Role != RoleSuperAdmin {
			return deny(ReasonDeleteRestricted, "only superadmins can delete accounts")
		}
		return nil
	}

	switch actor.Role {
	case RoleSuperAdmin:
	case RoleAdmin:
		if target.Role == RoleAdmin || target.Role == RoleSuperAdmin {
			return deny(ReasonPeerProtected, "admins cannot modify other admin or superadmin accounts")
		}
	default:
		return deny(ReasonRoleDenied, "your role cannot manage users")
	}

	if m.Role != nil && *m.Role != target.Role && !CanAssignRole(actor.Role, *m.Role) {
		if actor.Role == RoleAdmin && *m.Role == RoleSuperAdmin {
			return deny(ReasonRoleNotAssignable, "only superadmins can assign the superadmin role")
		}
		return deny(ReasonRoleNotAssignable, "you cannot assign the "+string(*m.Role)+" role")
	}
	return nil
}
