package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func docs() map[string]map[string]interface{} {
	return map[string]map[string]interface{}{
		"own-by-d": {
			"createdBy":  "D",
			"assignment": map[string]interface{}{"assignedAgentId": "A"},
		},
		"secondary-b": {
			"createdBy": "X",
			"assignment": map[string]interface{}{
				"assignedAgents": []interface{}{
					map[string]interface{}{"agentId": "B", "isActive": true},
					map[string]interface{}{"agentId": "C", "isActive": false},
				},
			},
		},
		"deleted": {
			"createdBy":  "D",
			"isDeleted":  true,
			"assignment": map[string]interface{}{"assignedAgentId": "A"},
		},
	}
}

func visible(role Role, userID string) []string {
	var out []string
	f := BuildCustomerQuery(role, userID)
	for id, d := range docs() {
		if f.Match(d) {
			out = append(out, id)
		}
	}
	return out
}

func TestBuildCustomerQuery(t *testing.T) {
	assert.ElementsMatch(t, []string{"own-by-d", "secondary-b"}, visible(RoleAdmin, "any"))
	assert.ElementsMatch(t, []string{"own-by-d", "secondary-b"}, visible(RoleSuperAgent, "any"))
	assert.ElementsMatch(t, []string{"own-by-d"}, visible(RoleDataEntry, "D"))
	assert.Empty(t, visible(RoleDataEntry, "X2"))
	assert.ElementsMatch(t, []string{"own-by-d"}, visible(RoleAgent, "A"))
	assert.ElementsMatch(t, []string{"secondary-b"}, visible(RoleAgent, "B"))
	assert.Empty(t, visible(RoleAgent, "C"))
	assert.Empty(t, visible(Role("intern"), "A"))
	assert.Empty(t, visible(RoleAdmin, ""))
}

func TestBuildFollowupQuery(t *testing.T) {
	mine := map[string]interface{}{"agentId": "A"}
	theirs := map[string]interface{}{"agentId": "B"}

	assert.True(t, BuildFollowupQuery(RoleAdmin, "X").Match(theirs))
	assert.True(t, BuildFollowupQuery(RoleSuperAdmin, "X").Match(theirs))
	assert.True(t, BuildFollowupQuery(RoleAgent, "A").Match(mine))
	assert.False(t, BuildFollowupQuery(RoleAgent, "A").Match(theirs))
	assert.False(t, BuildFollowupQuery(RoleDataEntry, "A").Match(mine))
}
