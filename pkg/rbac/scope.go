package rbac

import "github.com/edugatenow/edugate/pkg/query"

// Document field paths the scoped queries depend on
const (
	FieldIsDeleted       = "isDeleted"
	FieldCreatedBy       = "createdBy"
	FieldCreatedAt       = "createdAt"
	FieldAssignedAgentID = "assignment.assignedAgentId"
	FieldAssignedAgents  = "assignment.assignedAgents"
	FieldAgentID         = "agentId"
	FieldIsActive        = "isActive"
)

// NotDeleted excludes soft-deleted records
func NotDeleted() query.Filter {
	return query.Ne(FieldIsDeleted, true)
}

// AssignedTo matches customers where userID is the primary agent or an
// active secondary agent
func AssignedTo(userID string) query.Filter {
	return query.Or(
		query.Eq(FieldAssignedAgentID, userID),
		query.ElemMatch(FieldAssignedAgents,
			query.Eq(FieldAgentID, userID),
			query.Eq(FieldIsActive, true),
		),
	)
}

// BuildCustomerQuery returns the predicate restricting which customers role
// may see. It is the only gate on list, search and read endpoints and must
// be applied before pagination. Unknown roles or an empty user id match nothing.
func BuildCustomerQuery(role Role, userID string) query.Filter {
	if userID == "" {
		return query.None()
	}
	switch role {
	case RoleSuperAdmin, RoleAdmin, RoleSuperAgent:
		return NotDeleted()
	case RoleDataEntry:
		return query.And(NotDeleted(), query.Eq(FieldCreatedBy, userID))
	case RoleAgent:
		return query.And(NotDeleted(), AssignedTo(userID))
	}
	return query.None()
}

// BuildFollowupQuery returns the predicate restricting which follow-ups
// role may see
func BuildFollowupQuery(role Role, userID string) query.Filter {
	if userID == "" {
		return query.None()
	}
	switch role {
	case RoleSuperAdmin, RoleAdmin, RoleSuperAgent:
		return query.All()
	case RoleAgent:
		return query.Eq(FieldAgentID, userID)
	}
	return query.None()
}
