package rbac

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edugatenow/edugate/pkg/clock"
)

var created = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

func multiAgentCustomer() CustomerFacts {
	return CustomerFacts{
		CreatedBy:       "D",
		CreatedAt:       created,
		AssignedAgentID: "A",
		AssignedAgents: []AgentMembership{
			{AgentID: "B", IsActive: true},
			{AgentID: "C", IsActive: false},
		},
	}
}

func TestAgentVisibilityIsUnionOfAssignments(t *testing.T) {
	rules := NewRules(clock.NewFixed(created))
	c := multiAgentCustomer()

	assert.True(t, rules.CanViewCustomer(RoleAgent, "A", c))
	assert.True(t, rules.CanViewCustomer(RoleAgent, "B", c))
	assert.False(t, rules.CanViewCustomer(RoleAgent, "C", c))
	assert.False(t, rules.CanViewCustomer(RoleAgent, "", c))

	assert.True(t, rules.CanEditCustomer(RoleAgent, "B", c))
	assert.False(t, rules.CanEditCustomer(RoleAgent, "C", c))
}

func TestFullAccessRoles(t *testing.T) {
	rules := NewRules(clock.NewFixed(created.Add(24 * time.Hour)))
	c := multiAgentCustomer()
	for _, role := range []Role{RoleSuperAdmin, RoleAdmin, RoleSuperAgent} {
		assert.True(t, rules.CanViewCustomer(role, "anyone", c), role)
		assert.True(t, rules.CanEditCustomer(role, "anyone", c), role)
	}
	assert.False(t, rules.CanViewCustomer(Role("guest"), "D", c))
}

func TestDataEntryEditWindow(t *testing.T) {
	clk := clock.NewFixed(created)
	rules := NewRules(clk)
	c := multiAgentCustomer()

	clk.Set(created.Add(14*time.Minute + 59*time.Second))
	assert.True(t, rules.CanEditCustomer(RoleDataEntry, "D", c))
	w := rules.EditWindowRemaining(c)
	assert.True(t, w.CanEdit)
	assert.Equal(t, 1, w.RemainingMinutes)
	assert.Equal(t, 1, w.RemainingSeconds)

	clk.Set(created.Add(15*time.Minute + 1*time.Second))
	assert.False(t, rules.CanEditCustomer(RoleDataEntry, "D", c))
	assert.True(t, rules.CanViewCustomer(RoleDataEntry, "D", c), "viewing survives the window")

	err := rules.EvaluateCustomerEdit(RoleDataEntry, "D", c)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAccessDenied))
	assert.Equal(t, ReasonEditWindowExpired, ReasonOf(err))

	w = rules.EditWindowRemaining(c)
	assert.False(t, w.CanEdit)
	assert.Equal(t, 0, w.RemainingMinutes)
	assert.Equal(t, 0, w.RemainingSeconds)
}

func TestEditWindowNeverNegative(t *testing.T) {
	clk := clock.NewFixed(created)
	rules := NewRules(clk)
	c := multiAgentCustomer()

	for _, elapsed := range []time.Duration{-time.Hour, 0, 5 * time.Minute, 15 * time.Minute, time.Hour, 30 * 24 * time.Hour} {
		clk.Set(created.Add(elapsed))
		w := rules.EditWindowRemaining(c)
		assert.GreaterOrEqual(t, w.RemainingMinutes, 0, elapsed)
		assert.GreaterOrEqual(t, w.RemainingSeconds, 0, elapsed)
		assert.LessOrEqual(t, w.RemainingMinutes, 15, elapsed)
	}
}

func TestDataEntryOwnership(t *testing.T) {
	rules := NewRules(clock.NewFixed(created.Add(time.Minute)))
	c := multiAgentCustomer()

	assert.False(t, rules.CanViewCustomer(RoleDataEntry, "other", c))
	err := rules.EvaluateCustomerEdit(RoleDataEntry, "other", c)
	assert.Equal(t, ReasonNotOwner, ReasonOf(err))
}

func TestEditWindowCutoff(t *testing.T) {
	clk := clock.NewFixed(created.Add(time.Hour))
	rules := NewRules(clk)
	assert.Equal(t, created.Add(45*time.Minute), rules.EditWindowCutoff())
}
