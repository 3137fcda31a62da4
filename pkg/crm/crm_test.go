package crm

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/edugatenow/edugate/pkg/audit"
	"github.com/edugatenow/edugate/pkg/auth"
	"github.com/edugatenow/edugate/pkg/clock"
	"github.com/edugatenow/edugate/pkg/models"
	"github.com/edugatenow/edugate/pkg/observability"
	"github.com/edugatenow/edugate/pkg/rbac"
	"github.com/edugatenow/edugate/pkg/storage/memory"
)

type fixture struct {
	ctx      context.Context
	svc      *Services
	store    *memory.Store
	clock    *clock.Fixed
	sink     *audit.MemoryLogger
	versions *auth.VersionCache
}

var staff = map[string]rbac.Role{
	"sa":  rbac.RoleSuperAdmin,
	"ad":  rbac.RoleAdmin,
	"ad2": rbac.RoleAdmin,
	"sag": rbac.RoleSuperAgent,
	"de":  rbac.RoleDataEntry,
	"ag1": rbac.RoleAgent,
	"ag2": rbac.RoleAgent,
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := clock.NewFixed(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	store := memory.New(memory.WithUniqueIndex(models.CollectionUsers, "email"))
	sink := audit.NewMemoryLogger()
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	versions := auth.NewVersionCache(100, time.Minute)

	f := &fixture{
		ctx:   context.Background(),
		store: store,
		clock: clk,
		sink:  sink,
		svc: New(Deps{
			Store:    store,
			Matrix:   rbac.DefaultMatrix(),
			Clock:    clk,
			Recorder: audit.NewRecorder(sink, clk, logger, nil),
			Versions: versions,
			Logger:   logger,
		}),
		versions: versions,
	}

	hash, err := auth.HashPassword("password-123")
	require.NoError(t, err)
	for id, role := range staff {
		require.NoError(t, store.InsertOne(f.ctx, models.CollectionUsers, models.User{
			ID: id, Email: id + "@edugate.test", Name: "User " + id, Role: role,
			PasswordHash: hash, IsActive: true, SessionVersion: 1, CreatedAt: clk.Now(),
		}))
	}
	return f
}

func (f *fixture) as(userID string) *auth.Identity {
	return &auth.Identity{UserID: userID, Email: userID + "@edugate.test", Role: staff[userID]}
}

func (f *fixture) actions() []audit.Action {
	var out []audit.Action
	for _, e := range f.sink.Entries() {
		out = append(out, e.Action)
	}
	return out
}

func (f *fixture) lastEntry(t *testing.T) *audit.Entry {
	t.Helper()
	entries := f.sink.Entries()
	require.NotEmpty(t, entries)
	return entries[len(entries)-1]
}

func strPtr(s string) *string { return &s }

func boolPtr(b bool) *bool { return &b }

func rolePtr(r rbac.Role) *rbac.Role { return &r }
