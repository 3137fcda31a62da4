package crm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edugatenow/edugate/pkg/audit"
	"github.com/edugatenow/edugate/pkg/models"
	"github.com/edugatenow/edugate/pkg/rbac"
)

func TestSettingsDefaultsAndUpdate(t *testing.T) {
	f := newFixture(t)

	got, err := f.svc.Settings.Get(f.ctx, f.as("ad"))
	require.NoError(t, err)
	assert.Equal(t, models.DefaultSettings().AgencyName, got.AgencyName)

	_, err = f.svc.Settings.Get(f.ctx, f.as("ag1"))
	assert.ErrorIs(t, err, rbac.ErrAccessDenied)

	_, err = f.svc.Settings.Update(f.ctx, f.as("ad"), SettingsInput{AgencyName: strPtr("X")})
	assert.ErrorIs(t, err, rbac.ErrAccessDenied)

	days := 7
	updated, err := f.svc.Settings.Update(f.ctx, f.as("sa"), SettingsInput{
		DefaultFollowupDays: &days,
		LeadSources:         []string{"fair", " ", "partner"},
	})
	require.NoError(t, err)
	assert.Equal(t, 7, updated.DefaultFollowupDays)
	assert.Equal(t, []string{"fair", "partner"}, updated.LeadSources)
	assert.Equal(t, "sa", updated.UpdatedBy)

	entry := f.lastEntry(t)
	assert.Equal(t, audit.ActionSettingsUpdate, entry.Action)
	assert.Equal(t, models.SettingsID, entry.EntityID)
	assert.NotEmpty(t, entry.Changes)

	name := "EduGate Dubai"
	updated, err = f.svc.Settings.Update(f.ctx, f.as("sa"), SettingsInput{AgencyName: &name})
	require.NoError(t, err)
	assert.Equal(t, name, updated.AgencyName)
	assert.Equal(t, 7, updated.DefaultFollowupDays)
}

func TestSettingsValidation(t *testing.T) {
	f := newFixture(t)
	zero := 0

	_, err := f.svc.Settings.Update(f.ctx, f.as("sa"), SettingsInput{})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.Settings.Update(f.ctx, f.as("sa"), SettingsInput{DefaultFollowupDays: &zero})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.Settings.Update(f.ctx, f.as("sa"), SettingsInput{AgencyName: strPtr("  ")})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestLeadSourcesDriveCustomerValidation(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Settings.Update(f.ctx, f.as("sa"), SettingsInput{LeadSources: []string{"fair"}})
	require.NoError(t, err)

	_, err = f.svc.Customers.Create(f.ctx, f.as("sag"), CustomerInput{FullName: strPtr("A"), Source: strPtr("website")})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.Customers.Create(f.ctx, f.as("sag"), CustomerInput{FullName: strPtr("A"), Source: strPtr("fair")})
	require.NoError(t, err)
}
