package crm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edugatenow/edugate/pkg/audit"
	"github.com/edugatenow/edugate/pkg/auth"
	"github.com/edugatenow/edugate/pkg/models"
	"github.com/edugatenow/edugate/pkg/rbac"
	"github.com/edugatenow/edugate/pkg/storage"
)

func TestUserCreate(t *testing.T) {
	f := newFixture(t)

	u, err := f.svc.Users.Create(f.ctx, f.as("ad"), CreateUserInput{
		Email: " New.Agent@EduGate.test ", Name: "New Agent", Role: rbac.RoleAgent, Password: "longenough",
	})
	require.NoError(t, err)
	assert.Equal(t, "new.agent@edugate.test", u.Email)
	assert.True(t, u.IsActive)
	assert.NoError(t, auth.VerifyPassword(u.PasswordHash, "longenough"))

	entry := f.lastEntry(t)
	assert.Equal(t, audit.ActionCreate, entry.Action)
	for _, ch := range entry.Changes {
		assert.NotEqual(t, u.PasswordHash, ch.NewValue)
	}

	_, err = f.svc.Users.Create(f.ctx, f.as("ad"), CreateUserInput{
		Email: "new.agent@edugate.test", Name: "Dup", Role: rbac.RoleAgent, Password: "longenough",
	})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestUserCreateRoleRules(t *testing.T) {
	f := newFixture(t)
	in := func(role rbac.Role) CreateUserInput {
		return CreateUserInput{Email: string(role) + "@new.test", Name: "N", Role: role, Password: "longenough"}
	}

	_, err := f.svc.Users.Create(f.ctx, f.as("ad"), in(rbac.RoleSuperAdmin))
	require.ErrorIs(t, err, rbac.ErrAccessDenied)
	assert.Equal(t, rbac.ReasonRoleNotAssignable, rbac.ReasonOf(err))

	_, err = f.svc.Users.Create(f.ctx, f.as("sa"), in(rbac.RoleSuperAdmin))
	require.NoError(t, err)

	_, err = f.svc.Users.Create(f.ctx, f.as("sag"), in(rbac.RoleAgent))
	assert.ErrorIs(t, err, rbac.ErrAccessDenied)

	_, err = f.svc.Users.Create(f.ctx, f.as("sa"), in("owner"))
	assert.ErrorIs(t, err, ErrValidation)

	short := in(rbac.RoleAgent)
	short.Password = "short"
	_, err = f.svc.Users.Create(f.ctx, f.as("sa"), short)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestUserSelfModificationRejected(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Users.Update(f.ctx, f.as("ad"), "ad", UpdateUserInput{IsActive: boolPtr(false)})
	assert.ErrorIs(t, err, rbac.ErrSelfModification)

	_, err = f.svc.Users.Update(f.ctx, f.as("sa"), "sa", UpdateUserInput{Role: rolePtr(rbac.RoleAdmin)})
	assert.ErrorIs(t, err, rbac.ErrSelfModification)

	err = f.svc.Users.Delete(f.ctx, f.as("sa"), "sa")
	assert.ErrorIs(t, err, rbac.ErrSelfModification)

	renamed, err := f.svc.Users.Update(f.ctx, f.as("ad"), "ad", UpdateUserInput{Name: strPtr("Renamed")})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", renamed.Name)
	assert.Equal(t, int64(1), renamed.SessionVersion)
	assert.Equal(t, audit.ActionUpdate, f.lastEntry(t).Action)
}

func TestAdminCannotModifyPeers(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Users.Update(f.ctx, f.as("ad"), "ad2", UpdateUserInput{Name: strPtr("X")})
	assert.ErrorIs(t, err, rbac.ErrAccessDenied)

	_, err = f.svc.Users.Update(f.ctx, f.as("ad"), "ag1", UpdateUserInput{Role: rolePtr(rbac.RoleSuperAdmin)})
	assert.ErrorIs(t, err, rbac.ErrAccessDenied)

	_, err = f.svc.Users.Update(f.ctx, f.as("sa"), "ad2", UpdateUserInput{Name: strPtr("X")})
	require.NoError(t, err)
}

func TestDeactivationEndsSessions(t *testing.T) {
	f := newFixture(t)
	f.versions.Put("ag1", auth.UserState{SessionVersion: 1, IsActive: true})

	after, err := f.svc.Users.Update(f.ctx, f.as("ad"), "ag1", UpdateUserInput{IsActive: boolPtr(false)})
	require.NoError(t, err)
	assert.False(t, after.IsActive)
	assert.Equal(t, int64(2), after.SessionVersion)

	_, cached := f.versions.Get("ag1")
	assert.False(t, cached)

	entry := f.lastEntry(t)
	assert.Equal(t, audit.ActionStatusChange, entry.Action)
	assert.Equal(t, "ag1", entry.EntityID)
}

func TestRoleChangeAudited(t *testing.T) {
	f := newFixture(t)

	after, err := f.svc.Users.Update(f.ctx, f.as("ad"), "ag1", UpdateUserInput{
		Role: rolePtr(rbac.RoleSuperAgent), IsActive: boolPtr(false),
	})
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleSuperAgent, after.Role)
	assert.Equal(t, int64(2), after.SessionVersion)

	entries := f.sink.Entries()
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, audit.ActionRoleChange, e.Action)
	assert.Contains(t, e.Description, "changed role from agent to superagent")
	assert.Contains(t, e.Description, "deactivated")

	fields := map[string]bool{}
	for _, c := range e.Changes {
		fields[c.Field] = true
	}
	assert.True(t, fields["role"])
	assert.True(t, fields["isActive"])
}

func TestStatusChangeAudited(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Users.Update(f.ctx, f.as("sa"), "ag2", UpdateUserInput{IsActive: boolPtr(false)})
	require.NoError(t, err)

	assert.Equal(t, []audit.Action{audit.ActionStatusChange}, f.actions())
	assert.Equal(t, "ag2@edugate.test: deactivated", f.lastEntry(t).Description)
}

func TestSelfPrivilegeChangeRejectedForEveryRole(t *testing.T) {
	for userID, role := range staff {
		t.Run(string(role)+"/"+userID, func(t *testing.T) {
			f := newFixture(t)

			inputs := []UpdateUserInput{
				{Role: rolePtr(rbac.RoleSuperAdmin)},
				{Role: rolePtr(role)},
				{IsActive: boolPtr(false)},
				{IsActive: boolPtr(true)},
			}
			for _, in := range inputs {
				_, err := f.svc.Users.Update(f.ctx, f.as(userID), userID, in)
				require.Error(t, err)
				assert.ErrorIs(t, err, rbac.ErrSelfModification)
				assert.NotErrorIs(t, err, rbac.ErrAccessDenied)
			}
			assert.Empty(t, f.sink.Entries())
		})
	}
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)

	err := f.svc.Users.ChangePassword(f.ctx, f.as("ag1"), "ag1", PasswordChange{
		CurrentPassword: "wrong", NewPassword: "brand-new-pass",
	})
	assert.ErrorIs(t, err, ErrValidation)

	err = f.svc.Users.ChangePassword(f.ctx, f.as("ag1"), "ag1", PasswordChange{
		CurrentPassword: "password-123", NewPassword: "brand-new-pass",
	})
	require.NoError(t, err)

	var u models.User
	require.NoError(t, f.store.FindOne(f.ctx, models.CollectionUsers, storage.ByID("ag1"), &u))
	assert.NoError(t, auth.VerifyPassword(u.PasswordHash, "brand-new-pass"))
	assert.Equal(t, int64(2), u.SessionVersion)

	entry := f.lastEntry(t)
	assert.Equal(t, audit.ActionPasswordChange, entry.Action)
	require.Len(t, entry.Changes, 2)
	for _, ch := range entry.Changes {
		if ch.Field == "passwordHash" {
			assert.Equal(t, audit.Redacted, ch.OldValue)
			assert.Equal(t, audit.Redacted, ch.NewValue)
		}
	}

	err = f.svc.Users.ChangePassword(f.ctx, f.as("ag1"), "ag2", PasswordChange{NewPassword: "brand-new-pass"})
	assert.ErrorIs(t, err, rbac.ErrAccessDenied)

	err = f.svc.Users.ChangePassword(f.ctx, f.as("ad"), "ad2", PasswordChange{NewPassword: "brand-new-pass"})
	assert.ErrorIs(t, err, rbac.ErrAccessDenied)

	require.NoError(t, f.svc.Users.ChangePassword(f.ctx, f.as("ad"), "ag2", PasswordChange{NewPassword: "reset-by-admin"}))
}

func TestUserDeleteSuperadminOnly(t *testing.T) {
	f := newFixture(t)

	err := f.svc.Users.Delete(f.ctx, f.as("ad"), "ag1")
	assert.ErrorIs(t, err, rbac.ErrAccessDenied)

	require.NoError(t, f.svc.Users.Delete(f.ctx, f.as("sa"), "ag1"))

	_, err = f.svc.Users.Get(f.ctx, f.as("sa"), "ag1")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	var raw models.User
	require.NoError(t, f.store.FindOne(f.ctx, models.CollectionUsers, storage.ByID("ag1"), &raw))
	assert.True(t, raw.IsDeleted)
	assert.False(t, raw.IsActive)
	assert.Equal(t, int64(2), raw.SessionVersion)

	page, err := f.svc.Users.List(f.ctx, f.as("ad"), UserListOptions{Role: rbac.RoleAgent})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)
}

func TestUserGetSelfWithoutViewPermission(t *testing.T) {
	f := newFixture(t)

	me, err := f.svc.Users.Get(f.ctx, f.as("ag1"), "ag1")
	require.NoError(t, err)
	assert.Equal(t, "ag1", me.ID)

	_, err = f.svc.Users.Get(f.ctx, f.as("ag1"), "ag2")
	assert.ErrorIs(t, err, rbac.ErrAccessDenied)
}
