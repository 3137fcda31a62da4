package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/edugatenow/edugate/pkg/clock"
	"github.com/edugatenow/edugate/pkg/models"
	"github.com/edugatenow/edugate/pkg/rbac"
)

const issuer = "edugate"

// Claims carried by a session token
type Claims struct {
	Email          string    `json:"email"`
	Name           string    `json:"name"`
	Role           rbac.Role `json:"role"`
	SessionVersion int64     `json:"sv"`
	jwt.RegisteredClaims
}

// Identity converts validated claims into an Identity
func (c *Claims) Identity() *Identity {
	return &Identity{
		UserID:         c.Subject,
		Email:          c.Email,
		Name:           c.Name,
		Role:           c.Role,
		SessionVersion: c.SessionVersion,
	}
}

// SessionManager signs and verifies session tokens
type SessionManager struct {
	secret []byte
	ttl    time.Duration
	clock  clock.Clock
}

// NewSessionManager requires a non-empty secret and positive ttl
func NewSessionManager(secret string, ttl time.Duration, clk clock.Clock) (*SessionManager, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("session secret is not configured")
	}
	if ttl <= 0 {
		return nil, errors.New("session ttl must be greater than zero")
	}
	if clk == nil {
		clk = clock.System()
	}
	return &SessionManager{secret: []byte(secret), ttl: ttl, clock: clk}, nil
}

// TTL returns the lifetime of issued tokens
func (m *SessionManager) TTL() time.Duration {
	return m.ttl
}

// Issue signs a token for user at its current sessionVersion
func (m *SessionManager) Issue(user *models.User) (string, time.Time, error) {
	if user == nil || user.ID == "" {
		return "", time.Time{}, errors.New("user is required")
	}
	now := m.clock.Now().UTC()
	expires := now.Add(m.ttl)

	claims := Claims{
		Email:          user.Email,
		Name:           user.Name,
		Role:           user.Role,
		SessionVersion: user.SessionVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

// Parse verifies signature, issuer and expiry. Every failure is ErrInvalidSession.
func (m *SessionManager) Parse(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidSession
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.clock.Now),
	)
	if err != nil {
		return nil, ErrInvalidSession
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" || !claims.Role.IsValid() {
		return nil, ErrInvalidSession
	}
	return claims, nil
}
