package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edugatenow/edugate/pkg/clock"
	"github.com/edugatenow/edugate/pkg/models"
	"github.com/edugatenow/edugate/pkg/rbac"
	"github.com/edugatenow/edugate/pkg/storage"
	"github.com/edugatenow/edugate/pkg/storage/memory"
)

type fixture struct {
	store *memory.Store
	clock *clock.Fixed
	auth  *Authenticator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := clock.NewFixed(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	sessions, err := NewSessionManager(testSecret, time.Hour, clk)
	require.NoError(t, err)

	store := memory.New()
	hash, err := HashPassword("correct-horse")
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.InsertOne(ctx, models.CollectionUsers, models.User{
		ID: "u-active", Email: "active@example.com", Name: "Active", Role: rbac.RoleAgent,
		PasswordHash: hash, IsActive: true, SessionVersion: 1,
	}))
	require.NoError(t, store.InsertOne(ctx, models.CollectionUsers, models.User{
		ID: "u-inactive", Email: "inactive@example.com", Name: "Inactive", Role: rbac.RoleAgent,
		PasswordHash: hash, IsActive: false,
	}))

	return &fixture{
		store: store,
		clock: clk,
		auth:  NewAuthenticator(store, sessions, NewVersionCache(100, time.Minute), clk),
	}
}

func TestLoginSuccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.auth.Login(ctx, "  Active@Example.com ", "correct-horse")
	require.NoError(t, err)
	assert.NotEmpty(t, session.Token)
	require.NotNil(t, session.User.LastLoginAt)

	var stored models.User
	require.NoError(t, f.store.FindOne(ctx, models.CollectionUsers, storage.ByID("u-active"), &stored))
	require.NotNil(t, stored.LastLoginAt)
	assert.True(t, stored.LastLoginAt.Equal(f.clock.Now()))

	id, err := f.auth.Resolve(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, "u-active", id.UserID)
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := map[string][2]string{
		"unknown email":  {"nobody@example.com", "correct-horse"},
		"wrong password": {"active@example.com", "wrong-password"},
		"inactive user":  {"inactive@example.com", "correct-horse"},
		"empty":          {"", ""},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.auth.Login(ctx, c[0], c[1])
			assert.ErrorIs(t, err, ErrInvalidCredentials)
		})
	}
}

func TestResolveRejectsBumpedSessionVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.auth.Login(ctx, "active@example.com", "correct-horse")
	require.NoError(t, err)

	_, err = f.store.AtomicIncrement(ctx, models.CollectionUsers, "u-active", "sessionVersion", 1)
	require.NoError(t, err)

	// cached state still matches until invalidated
	_, err = f.auth.Resolve(ctx, session.Token)
	require.NoError(t, err)

	f.auth.Versions().Invalidate("u-active")
	_, err = f.auth.Resolve(ctx, session.Token)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestResolveRejectsDeactivatedUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.auth.Login(ctx, "active@example.com", "correct-horse")
	require.NoError(t, err)

	require.NoError(t, f.store.UpdateOne(ctx, models.CollectionUsers, "u-active", storage.Update{
		Set: map[string]interface{}{"isActive": false},
	}))
	f.auth.Versions().Invalidate("u-active")

	_, err = f.auth.Resolve(ctx, session.Token)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestResolveUnknownUser(t *testing.T) {
	f := newFixture(t)

	token, _, err := f.auth.Sessions().Issue(&models.User{ID: "ghost", Role: rbac.RoleAdmin})
	require.NoError(t, err)

	_, err = f.auth.Resolve(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestPasswordHelpers(t *testing.T) {
	_, err := HashPassword("short")
	assert.Error(t, err)

	hash, err := HashPassword("long-enough")
	require.NoError(t, err)
	assert.NoError(t, VerifyPassword(hash, "long-enough"))
	assert.Error(t, VerifyPassword(hash, "something-else"))
	assert.Error(t, VerifyPassword("", "long-enough"))
}

func TestIdentityContext(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, FromContext(ctx))
	assert.Equal(t, ctx, WithIdentity(ctx, nil))

	ctx = WithIdentity(ctx, &Identity{UserID: "u1", Role: rbac.RoleAdmin})
	require.NotNil(t, FromContext(ctx))
	assert.Equal(t, rbac.RoleAdmin, FromContext(ctx).Role)
}
