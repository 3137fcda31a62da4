package audit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedMemory(t *testing.T) *MemoryLogger {
	t.Helper()
	l := NewMemoryLogger()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 25; i++ {
		action := ActionUpdate
		if i%5 == 0 {
			action = ActionDelete
		}
		require.NoError(t, l.Log(context.Background(), &Entry{
			ID:          fmt.Sprintf("e%02d", i),
			Action:      action,
			EntityType:  EntityCustomer,
			EntityName:  fmt.Sprintf("Customer %d", i),
			Description: "changed",
			UserEmail:   "agent@example.com",
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		}))
	}
	return l
}

func TestMemorySearchPagingNewestFirst(t *testing.T) {
	l := seedMemory(t)

	res, err := l.Search(context.Background(), SearchFilter{Page: 2, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(25), res.Total)
	assert.Equal(t, int64(3), res.Pages)
	require.Len(t, res.Entries, 10)
	assert.Equal(t, "e14", res.Entries[0].ID)

	res, err = l.Search(context.Background(), SearchFilter{Page: 9, Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, res.Entries)
}

func TestMemorySearchFilters(t *testing.T) {
	l := seedMemory(t)
	ctx := context.Background()

	res, err := l.Search(ctx, SearchFilter{Action: ActionDelete})
	require.NoError(t, err)
	assert.Equal(t, int64(5), res.Total)
	assert.Equal(t, 20, res.Limit)

	res, err = l.Search(ctx, SearchFilter{Search: "customer 1"})
	require.NoError(t, err)
	// Customer 1 and Customer 10..19
	assert.Equal(t, int64(11), res.Total)

	res, err = l.Search(ctx, SearchFilter{Search: "AGENT@"})
	require.NoError(t, err)
	assert.Equal(t, int64(25), res.Total)

	res, err = l.Search(ctx, SearchFilter{EntityType: EntityUser})
	require.NoError(t, err)
	assert.Zero(t, res.Total)
	assert.Zero(t, res.Pages)
}

func TestActionAndEntityValidation(t *testing.T) {
	assert.True(t, ActionPasswordChange.IsValid())
	assert.False(t, Action("DROP").IsValid())
	assert.True(t, EntitySystemSetting.IsValid())
	assert.False(t, EntityType("Invoice").IsValid())
}
