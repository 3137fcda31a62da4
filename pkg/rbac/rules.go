package rbac

import (
	"math"
	"time"

	"github.com/edugatenow/edugate/pkg/clock"
)

// EditWindowDuration is how long a data-entry user may edit a customer they
// created. The window is never extended.
const EditWindowDuration = 15 * time.Minute

// AgentMembership is one secondary agent entry on a customer
type AgentMembership struct {
	AgentID  string
	IsActive bool
}

// CustomerFacts is the subset of a customer record the field-level rules read
type CustomerFacts struct {
	CreatedBy       string
	CreatedAt       time.Time
	AssignedAgentID string
	AssignedAgents  []AgentMembership
}

// IsAssignedTo reports whether userID is the primary agent or an active
// secondary agent
func (c CustomerFacts) IsAssignedTo(userID string) bool {
	if userID == "" {
		return false
	}
	if c.AssignedAgentID == userID {
		return true
	}
	for _, a := range c.AssignedAgents {
		if a.AgentID == userID && a.IsActive {
			return true
		}
	}
	return false
}

// EditWindow describes how much of the data-entry edit window is left
type EditWindow struct {
	CanEdit          bool `json:"canEdit"`
	RemainingMinutes int  `json:"remainingMinutes"`
	RemainingSeconds int  `json:"remainingSeconds"`
}

// Rules evaluates record-dependent authorization against one clock
type Rules struct {
	clock clock.Clock
}

// NewRules creates rules reading time from c
func NewRules(c clock.Clock) *Rules {
	if c == nil {
		c = clock.System()
	}
	return &Rules{clock: c}
}

// Now returns the rules' authoritative time
func (r *Rules) Now() time.Time {
	return r.clock.Now()
}

// CanViewCustomer reports whether the user may see the customer
func (r *Rules) CanViewCustomer(role Role, userID string, c CustomerFacts) bool {
	return r.EvaluateCustomerView(role, userID, c) == nil
}

// CanEditCustomer reports whether the user may modify the customer now
func (r *Rules) CanEditCustomer(role Role, userID string, c CustomerFacts) bool {
	return r.EvaluateCustomerEdit(role, userID, c) == nil
}

// EvaluateCustomerView returns nil when viewing is allowed, or a
// *DenialError carrying the reason
func (r *Rules) EvaluateCustomerView(role Role, userID string, c CustomerFacts) error {
	switch {
	case role.HasFullCustomerAccess():
		return nil
	case role == RoleAgent:
		if c.IsAssignedTo(userID) {
			return nil
		}
		return deny(ReasonNotAssigned, "customer is not assigned to you")
	case role == RoleDataEntry:
		if userID != "" && c.CreatedBy == userID {
			return nil
		}
		return deny(ReasonNotOwner, "you can only access customers you created")
	}
	return deny(ReasonRoleDenied, "your role cannot access customers")
}

// EvaluateCustomerEdit returns nil when editing is allowed, or a
// *DenialError carrying the reason
func (r *Rules) EvaluateCustomerEdit(role Role, userID string, c CustomerFacts) error {
	if err := r.EvaluateCustomerView(role, userID, c); err != nil {
		return err
	}
	if role == RoleDataEntry && !r.withinEditWindow(c.CreatedAt) {
		return deny(ReasonEditWindowExpired, "the 15 minute edit window has expired")
	}
	return nil
}

// EditWindowRemaining reports the remaining data-entry edit window for c.
// Remaining values are never negative.
func (r *Rules) EditWindowRemaining(c CustomerFacts) EditWindow {
	remaining := r.remaining(c.CreatedAt)
	return EditWindow{
		CanEdit:          r.withinEditWindow(c.CreatedAt),
		RemainingMinutes: int(math.Ceil(remaining.Minutes())),
		RemainingSeconds: int(remaining / time.Second),
	}
}

// EditWindowCutoff is the earliest createdAt still editable at the rules'
// current time. Conditional updates use it to close the check-then-write race.
func (r *Rules) EditWindowCutoff() time.Time {
	return r.clock.Now().Add(-EditWindowDuration)
}

func (r *Rules) withinEditWindow(createdAt time.Time) bool {
	if createdAt.IsZero() {
		return false
	}
	return r.clock.Now().Sub(createdAt) <= EditWindowDuration
}

func (r *Rules) remaining(createdAt time.Time) time.Duration {
	if createdAt.IsZero() {
		return 0
	}
	left := EditWindowDuration - r.clock.Now().Sub(createdAt)
	switch {
	case left < 0:
		return 0
	case left > EditWindowDuration:
		return EditWindowDuration
	}
	return left
}
