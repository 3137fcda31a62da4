package rbac

import "errors"

var (
	// ErrAccessDenied is returned when a valid identity lacks the role,
	// ownership or time window needed for an operation. Maps to 403.
	ErrAccessDenied = errors.New("access denied")

	// ErrSelfModification is returned when a user tries to change their own
	// role or activation, or delete themselves. Maps to 400.
	ErrSelfModification = errors.New("cannot modify own account")

	// ErrInvalidRole is returned for role names outside the enum. Maps to 400.
	ErrInvalidRole = errors.New("invalid role")
)

// Denial reasons. They are logged and audited; the external message stays generic.
const (
	ReasonRoleDenied        = "role_denied"
	ReasonNotOwner          = "not_owner"
	ReasonNotAssigned       = "not_assigned"
	ReasonEditWindowExpired = "edit_window_expired"
	ReasonSelfRoleChange    = "self_role_change"
	ReasonSelfDeactivate    = "self_deactivate"
	ReasonSelfDelete        = "self_delete"
	ReasonPeerProtected     = "peer_protected"
	ReasonRoleNotAssignable = "role_not_assignable"
	ReasonDeleteRestricted  = "delete_restricted"
)

// DenialError carries the machine reason for a refused operation alongside a
// message safe to show the caller.
type DenialError struct {
	Reason  string
	Message string
	Err     error
}

func (e *DenialError) Error() string {
	return e.Err.Error() + ": " + e.Message
}

func (e *DenialError) Unwrap() error {
	return e.Err
}

// Deny builds an ErrAccessDenied denial for record-level checks made
// outside this package
func Deny(reason, message string) error {
	return deny(reason, message)
}

func deny(reason, message string) *DenialError {
	return &DenialError{Reason: reason, Message: message, Err: ErrAccessDenied}
}

func reject(reason, message string) *DenialError {
	return &DenialError{Reason: reason, Message: message, Err: ErrSelfModification}
}

// ReasonOf extracts the denial reason from err, or "" when err is not a denial
func ReasonOf(err error) string {
	var d *DenialError
	if errors.As(err, &d) {
		return d.Reason
	}
	return ""
}

// MessageOf extracts the caller-facing message from err
func MessageOf(err error) string {
	var d *DenialError
	if errors.As(err, &d) {
		return d.Message
	}
	return err.Error()
}
