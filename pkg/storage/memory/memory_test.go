package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edugatenow/edugate/pkg/models"
	"github.com/edugatenow/edugate/pkg/query"
	"github.com/edugatenow/edugate/pkg/rbac"
	"github.com/edugatenow/edugate/pkg/storage"
)

func seedCustomers(t *testing.T, s *Store) {
	t.Helper()
	base := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	customers := []models.Customer{
		{ID: "c1", FullName: "Ada", CreatedBy: "D", CreatedAt: base,
			Assignment: models.Assignment{AssignedAgentID: "A"}},
		{ID: "c2", FullName: "Grace", CreatedBy: "X", CreatedAt: base.Add(time.Hour),
			Assignment: models.Assignment{AssignedAgents: []models.AgentAssignee{
				{AgentID: "B", IsActive: true}, {AgentID: "C", IsActive: false},
			}}},
		{ID: "c3", FullName: "Hedy", CreatedBy: "D", CreatedAt: base.Add(2 * time.Hour), IsDeleted: true},
	}
	for _, c := range customers {
		require.NoError(t, s.InsertOne(context.Background(), models.CollectionCustomers, c))
	}
}

func TestFindAppliesScopeBeforePaging(t *testing.T) {
	s := New()
	seedCustomers(t, s)
	ctx := context.Background()

	var page []models.Customer
	err := s.Find(ctx, models.CollectionCustomers, rbac.BuildCustomerQuery(rbac.RoleAdmin, "admin"),
		storage.FindOptions{Sort: []storage.SortField{{Field: "createdAt", Descending: true}}, Limit: 1}, &page)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "c2", page[0].ID, "newest non-deleted customer first")

	var agentB []models.Customer
	require.NoError(t, s.Find(ctx, models.CollectionCustomers, rbac.BuildCustomerQuery(rbac.RoleAgent, "B"),
		storage.FindOptions{}, &agentB))
	require.Len(t, agentB, 1)
	assert.Equal(t, "Grace", agentB[0].FullName)
	assert.True(t, agentB[0].Assignment.AssignedAgents[0].IsActive)

	n, err := s.CountDocuments(ctx, models.CollectionCustomers, rbac.BuildCustomerQuery(rbac.RoleAgent, "C"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	n, err = s.CountDocuments(ctx, models.CollectionCustomers, rbac.BuildCustomerQuery(rbac.RoleDataEntry, "D"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestFindSkipBeyondEnd(t *testing.T) {
	s := New()
	seedCustomers(t, s)
	var out []models.Customer
	require.NoError(t, s.Find(context.Background(), models.CollectionCustomers, query.All(),
		storage.FindOptions{Skip: 10}, &out))
	assert.Empty(t, out)
}

func TestFindOneAndUpdateIsConditional(t *testing.T) {
	s := New()
	seedCustomers(t, s)
	ctx := context.Background()

	var updated models.Customer
	err := s.FindOneAndUpdate(ctx, models.CollectionCustomers,
		query.And(storage.ByID("c1"), query.Eq("createdBy", "D")),
		storage.Update{Set: map[string]interface{}{"evaluation.salesStatus": "lost"}}, &updated)
	require.NoError(t, err)
	assert.Equal(t, "lost", updated.Evaluation.SalesStatus)
	assert.Equal(t, "Ada", updated.FullName)

	err = s.FindOneAndUpdate(ctx, models.CollectionCustomers,
		query.And(storage.ByID("c1"), query.Eq("createdBy", "someone-else")),
		storage.Update{Set: map[string]interface{}{"fullName": "hijacked"}}, nil)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	var reread models.Customer
	require.NoError(t, s.FindOne(ctx, models.CollectionCustomers, storage.ByID("c1"), &reread))
	assert.Equal(t, "Ada", reread.FullName)
}

func TestPushAndPull(t *testing.T) {
	s := New()
	seedCustomers(t, s)
	ctx := context.Background()

	assignee := models.AgentAssignee{AgentID: "E", IsActive: true, AssignedAt: time.Now().UTC()}
	require.NoError(t, s.UpdateOne(ctx, models.CollectionCustomers, "c1",
		storage.Update{Push: map[string]interface{}{"assignment.assignedAgents": assignee}}))

	var c models.Customer
	require.NoError(t, s.FindOne(ctx, models.CollectionCustomers, storage.ByID("c1"), &c))
	require.Len(t, c.Assignment.AssignedAgents, 1)
	assert.Equal(t, "E", c.Assignment.AssignedAgents[0].AgentID)
	assert.True(t, rbac.BuildCustomerQuery(rbac.RoleAgent, "E").Match(mustDoc(t, c)))

	require.NoError(t, s.UpdateOne(ctx, models.CollectionCustomers, "c1", storage.Update{
		Pull: map[string]query.Filter{"assignment.assignedAgents": query.Eq("agentId", "E")},
	}))
	require.NoError(t, s.FindOne(ctx, models.CollectionCustomers, storage.ByID("c1"), &c))
	assert.Empty(t, c.Assignment.AssignedAgents)
}

func TestAtomicIncrementConcurrent(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.InsertOne(ctx, models.CollectionUsers, models.User{ID: "u1", Email: "a@x"}))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.AtomicIncrement(ctx, models.CollectionUsers, "u1", "sessionVersion", 1)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	v, err := s.AtomicIncrement(ctx, models.CollectionUsers, "u1", "sessionVersion", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(51), v)

	_, err = s.AtomicIncrement(ctx, models.CollectionUsers, "missing", "sessionVersion", 1)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUniqueIndexAndDuplicates(t *testing.T) {
	s := New(WithUniqueIndex(models.CollectionUsers, "email"))
	ctx := context.Background()

	require.NoError(t, s.InsertOne(ctx, models.CollectionUsers, models.User{ID: "u1", Email: "a@x"}))
	err := s.InsertOne(ctx, models.CollectionUsers, models.User{ID: "u2", Email: "a@x"})
	assert.True(t, errors.Is(err, storage.ErrDuplicate))
	err = s.InsertOne(ctx, models.CollectionUsers, models.User{ID: "u1", Email: "b@x"})
	assert.True(t, errors.Is(err, storage.ErrDuplicate))
}

func TestDeleteOne(t *testing.T) {
	s := New()
	seedCustomers(t, s)
	ctx := context.Background()

	require.NoError(t, s.DeleteOne(ctx, models.CollectionCustomers, "c2"))
	assert.ErrorIs(t, s.DeleteOne(ctx, models.CollectionCustomers, "c2"), storage.ErrNotFound)

	n, err := s.CountDocuments(ctx, models.CollectionCustomers, query.All())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func mustDoc(t *testing.T, v interface{}) map[string]interface{} {
	t.Helper()
	m, err := toDocument(v)
	require.NoError(t, err)
	return m
}
