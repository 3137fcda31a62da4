// Package rbac decides what each EduGate role may do.
//
// # Roles
//
// Five roles, from most to least privileged: superadmin, admin, superagent,
// dataentry and agent. Roles are flat; nothing is inherited.
//
// # Permission matrix
//
// Matrix is a fixed role -> resource -> actions table. Anything not listed is
// denied, including unknown roles and resources:
//
//	m := rbac.DefaultMatrix()
//	m.Allows(rbac.RoleAgent, rbac.CustomerViewAssigned) // true
//	m.Check(rbac.RoleAgent, rbac.ResourceUsers, "view_all") // false
//
// # Record scope
//
// BuildCustomerQuery and BuildFollowupQuery return the filter that limits a
// list or read to the records the caller may see. Callers AND it with their
// own filters before paginating, so counts never include hidden records.
//
// # Field-level rules
//
// Rules evaluates record-dependent decisions against an injected clock: the
// data-entry edit window (EditWindowDuration after creation) and agent
// assignment. CheckUserMutation covers account changes: no one changes their
// own role, activation or existence, and admins never touch superadmins.
//
// Denials carry a machine reason (see ReasonOf) and a user-facing message
// (see MessageOf).
package rbac
