package mongo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/edugatenow/edugate/pkg/query"
	"github.com/edugatenow/edugate/pkg/rbac"
	"github.com/edugatenow/edugate/pkg/storage"
)

func TestRenderAgentCustomerScope(t *testing.T) {
	got := RenderFilter(rbac.BuildCustomerQuery(rbac.RoleAgent, "A"))

	want := bson.D{{Key: "$and", Value: bson.A{
		bson.D{{Key: "isDeleted", Value: bson.D{{Key: "$ne", Value: true}}}},
		bson.D{{Key: "$or", Value: bson.A{
			bson.D{{Key: "assignment.assignedAgentId", Value: "A"}},
			bson.D{{Key: "assignment.assignedAgents", Value: bson.D{{Key: "$elemMatch", Value: bson.D{{Key: "$and", Value: bson.A{
				bson.D{{Key: "agentId", Value: "A"}},
				bson.D{{Key: "isActive", Value: true}},
			}}}}}}},
		}}},
	}}}
	assert.Equal(t, want, got)
}

func TestRenderScalars(t *testing.T) {
	assert.Equal(t, bson.D{}, RenderFilter(query.All()))
	assert.Equal(t, bson.D{{Key: "$expr", Value: false}}, RenderFilter(query.None()))
	assert.Equal(t, bson.D{{Key: "createdBy", Value: "D"}},
		RenderFilter(rbac.BuildCustomerQuery(rbac.RoleDataEntry, "D")).Map()["$and"].(bson.A)[1])
	assert.Equal(t, bson.D{{Key: "n", Value: bson.D{{Key: "$gte", Value: 3}}}}, RenderFilter(query.Gte("n", 3)))
	assert.Equal(t, bson.D{{Key: "role", Value: bson.D{{Key: "$in", Value: bson.A{"admin", "agent"}}}}},
		RenderFilter(query.In("role", "admin", "agent")))
}

func TestRenderContainsEscapesRegex(t *testing.T) {
	got := RenderFilter(query.Contains("a.b", "fullName", "email"))
	alternatives := got[0].Value.(bson.A)
	assert.Len(t, alternatives, 2)
	assert.Equal(t, primitive.Regex{Pattern: `a\.b`, Options: "i"}, alternatives[0].(bson.D)[0].Value)
}

func TestRenderUpdate(t *testing.T) {
	got := RenderUpdate(storage.Update{
		Set:  map[string]interface{}{"isActive": false, "deletedBy": "s1"},
		Inc:  map[string]int64{"sessionVersion": 1},
		Pull: map[string]query.Filter{"assignment.assignedAgents": query.Eq("agentId", "E")},
	})
	assert.Equal(t, bson.D{
		{Key: "$set", Value: bson.D{{Key: "deletedBy", Value: "s1"}, {Key: "isActive", Value: false}}},
		{Key: "$inc", Value: bson.D{{Key: "sessionVersion", Value: int64(1)}}},
		{Key: "$pull", Value: bson.D{{Key: "assignment.assignedAgents", Value: bson.D{{Key: "agentId", Value: "E"}}}}},
	}, got)
}

func TestRenderSort(t *testing.T) {
	got := RenderSort([]storage.SortField{{Field: "createdAt", Descending: true}, {Field: "fullName"}})
	assert.Equal(t, bson.D{{Key: "createdAt", Value: -1}, {Key: "fullName", Value: 1}}, got)
}

func TestIndexesCoverScopedFields(t *testing.T) {
	idx := Indexes()
	assert.Len(t, idx["customers"], 4)
	assert.NotNil(t, idx["users"][0].Options.Unique)
}
