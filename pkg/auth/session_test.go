package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edugatenow/edugate/pkg/clock"
	"github.com/edugatenow/edugate/pkg/models"
	"github.com/edugatenow/edugate/pkg/rbac"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func testUser() *models.User {
	return &models.User{
		ID:             "user-1",
		Email:          "agent@example.com",
		Name:           "Agent One",
		Role:           rbac.RoleAgent,
		IsActive:       true,
		SessionVersion: 4,
	}
}

func TestNewSessionManagerValidation(t *testing.T) {
	_, err := NewSessionManager("", time.Hour, nil)
	assert.Error(t, err)

	_, err = NewSessionManager(testSecret, 0, nil)
	assert.Error(t, err)
}

func TestIssueAndParse(t *testing.T) {
	clk := clock.NewFixed(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	m, err := NewSessionManager(testSecret, time.Hour, clk)
	require.NoError(t, err)

	token, expires, err := m.Issue(testUser())
	require.NoError(t, err)
	assert.Equal(t, clk.Now().Add(time.Hour), expires)

	claims, err := m.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, int64(4), claims.SessionVersion)

	id := claims.Identity()
	assert.Equal(t, rbac.RoleAgent, id.Role)
	assert.Equal(t, "agent@example.com", id.Email)
}

func TestParseRejectsExpiredToken(t *testing.T) {
	clk := clock.NewFixed(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	m, err := NewSessionManager(testSecret, time.Hour, clk)
	require.NoError(t, err)

	token, _, err := m.Issue(testUser())
	require.NoError(t, err)

	clk.Advance(2 * time.Hour)
	_, err = m.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestParseRejectsForeignSecret(t *testing.T) {
	issuerA, err := NewSessionManager(testSecret, time.Hour, nil)
	require.NoError(t, err)
	issuerB, err := NewSessionManager("another-secret-another-secret-xx", time.Hour, nil)
	require.NoError(t, err)

	token, _, err := issuerA.Issue(testUser())
	require.NoError(t, err)

	_, err = issuerB.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestParseRejectsGarbage(t *testing.T) {
	m, err := NewSessionManager(testSecret, time.Hour, nil)
	require.NoError(t, err)

	for _, token := range []string{"", "   ", "not-a-jwt", "a.b.c"} {
		_, err := m.Parse(token)
		assert.ErrorIs(t, err, ErrInvalidSession, token)
	}
}
