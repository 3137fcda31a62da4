package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/edugatenow/edugate/pkg/clock"
	"github.com/edugatenow/edugate/pkg/models"
	"github.com/edugatenow/edugate/pkg/query"
	"github.com/edugatenow/edugate/pkg/storage"
)

// Session is the result of a successful login
type Session struct {
	User      *models.User
	Token     string
	ExpiresAt time.Time
}

// Authenticator checks credentials and resolves session tokens against the users collection
type Authenticator struct {
	store    storage.DocumentStore
	sessions *SessionManager
	versions *VersionCache
	clock    clock.Clock
}

// NewAuthenticator wires the user store, token signer and version cache
func NewAuthenticator(store storage.DocumentStore, sessions *SessionManager, versions *VersionCache, clk clock.Clock) *Authenticator {
	if clk == nil {
		clk = clock.System()
	}
	return &Authenticator{store: store, sessions: sessions, versions: versions, clock: clk}
}

// Login verifies email and password and issues a session token.
// Unknown, inactive and wrong-password cases all return ErrInvalidCredentials.
func (a *Authenticator) Login(ctx context.Context, email, password string) (*Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	var user models.User
	err := a.store.FindOne(ctx, models.CollectionUsers, query.Eq("email", email), &user)
	if errors.Is(err, storage.ErrNotFound) {
		bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}

	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive || user.IsDeleted {
		return nil, ErrInvalidCredentials
	}

	token, expires, err := a.sessions.Issue(&user)
	if err != nil {
		return nil, err
	}

	now := a.clock.Now()
	if err := a.store.UpdateOne(ctx, models.CollectionUsers, user.ID, storage.Update{
		Set: map[string]interface{}{"lastLoginAt": now},
	}); err != nil {
		return nil, fmt.Errorf("record login: %w", err)
	}
	user.LastLoginAt = &now

	a.versions.Put(user.ID, UserState{SessionVersion: user.SessionVersion, IsActive: true})
	return &Session{User: &user, Token: token, ExpiresAt: expires}, nil
}

// Resolve turns a token into an Identity. Tokens whose session version no
// longer matches the user record, or whose user is inactive, are rejected.
func (a *Authenticator) Resolve(ctx context.Context, token string) (*Identity, error) {
	claims, err := a.sessions.Parse(token)
	if err != nil {
		return nil, err
	}

	state, err := a.userState(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}
	if !state.IsActive || state.SessionVersion != claims.SessionVersion {
		return nil, ErrInvalidSession
	}
	return claims.Identity(), nil
}

func (a *Authenticator) userState(ctx context.Context, userID string) (UserState, error) {
	if state, ok := a.versions.Get(userID); ok {
		return state, nil
	}

	var user models.User
	err := a.store.FindOne(ctx, models.CollectionUsers, storage.ByID(userID), &user)
	if errors.Is(err, storage.ErrNotFound) {
		return UserState{}, ErrInvalidSession
	}
	if err != nil {
		return UserState{}, fmt.Errorf("load session state: %w", err)
	}

	state := UserState{SessionVersion: user.SessionVersion, IsActive: user.IsActive && !user.IsDeleted}
	a.versions.Put(userID, state)
	return state, nil
}

// Sessions exposes the token signer, used when a password change re-issues a token
func (a *Authenticator) Sessions() *SessionManager {
	return a.sessions
}

// Versions exposes the cache so mutations can invalidate it
func (a *Authenticator) Versions() *VersionCache {
	return a.versions
}
