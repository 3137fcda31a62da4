// Package csrf issues and validates anti-forgery tokens bound to a client
// fingerprint. Tokens live in a statestore.Store so that several API
// processes can share them through Redis.
package csrf

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/edugatenow/edugate/pkg/clock"
	"github.com/edugatenow/edugate/pkg/httputil"
	"github.com/edugatenow/edugate/pkg/statestore"
)

const (
	// DefaultTTL is the token lifetime when Config.TTL is zero
	DefaultTTL = time.Hour

	keyPrefix = "csrf:"
	tokenSize = 32
)

// Failure reasons, also used as metric labels
const (
	ReasonMissing  = "missing"
	ReasonUnknown  = "unknown"
	ReasonExpired  = "expired"
	ReasonMismatch = "mismatch"
	ReasonStore    = "store_error"
)

// ValidationError explains why a token was rejected
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "csrf token rejected: " + e.Reason
}

// ReasonOf returns the rejection reason carried by err, or ReasonStore
func ReasonOf(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Reason
	}
	return ReasonStore
}

// Token is the stored record for one issued token
type Token struct {
	Token     string    `json:"token"`
	ClientID  string    `json:"clientId"`
	UserAgent string    `json:"userAgent"`
	Expiry    time.Time `json:"expiry"`
	Created   time.Time `json:"created"`
}

// ExpiresIn is the remaining lifetime in whole seconds
func (t *Token) ExpiresIn(now time.Time) int64 {
	d := t.Expiry.Sub(now)
	if d <= 0 {
		return 0
	}
	return int64(d / time.Second)
}

// Config controls fingerprinting and rotation
type Config struct {
	// Strict binds tokens to user agent and client IP. When false a token
	// also passes if only the stored user agent matches.
	Strict           bool
	TTL              time.Duration
	RotateOnValidate bool
}

// Manager creates and validates tokens
type Manager struct {
	store  statestore.Store
	clock  clock.Clock
	config Config
}

// NewManager creates a Manager backed by store
func NewManager(store statestore.Store, clk clock.Clock, config Config) *Manager {
	if clk == nil {
		clk = clock.System()
	}
	if config.TTL <= 0 {
		config.TTL = DefaultTTL
	}
	return &Manager{store: store, clock: clk, config: config}
}

// Config returns the effective configuration
func (m *Manager) Config() Config {
	return m.config
}

// Fingerprint hashes the user agent, plus the client IP in strict mode
func (m *Manager) Fingerprint(r *http.Request) string {
	h := sha256.New()
	h.Write([]byte(r.UserAgent()))
	if m.config.Strict {
		h.Write([]byte{0})
		h.Write([]byte(httputil.ClientIP(r)))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// CreateToken issues a fresh token for the client making r
func (m *Manager) CreateToken(ctx context.Context, r *http.Request) (*Token, error) {
	buf := make([]byte, tokenSize)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("generate csrf token: %w", err)
	}

	now := m.clock.Now()
	tok := &Token{
		Token:     hex.EncodeToString(buf),
		ClientID:  m.Fingerprint(r),
		UserAgent: r.UserAgent(),
		Expiry:    now.Add(m.config.TTL),
		Created:   now,
	}

	data, err := json.Marshal(tok)
	if err != nil {
		return nil, err
	}
	if err := m.store.Set(ctx, keyPrefix+tok.Token, data, m.config.TTL); err != nil {
		return nil, fmt.Errorf("store csrf token: %w", err)
	}
	return tok, nil
}

// ValidateToken checks token against the client making r. Expired and
// mismatched tokens are deleted. A false result always comes with a
// *ValidationError or a store error.
func (m *Manager) ValidateToken(ctx context.Context, token string, r *http.Request) (bool, error) {
	if token == "" {
		return false, &ValidationError{Reason: ReasonMissing}
	}

	key := keyPrefix + token
	data, err := m.store.Get(ctx, key)
	if errors.Is(err, statestore.ErrNotFound) {
		return false, &ValidationError{Reason: ReasonUnknown}
	}
	if err != nil {
		return false, fmt.Errorf("load csrf token: %w", err)
	}

	var stored Token
	if err := json.Unmarshal(data, &stored); err != nil {
		_ = m.store.Delete(ctx, key)
		return false, &ValidationError{Reason: ReasonUnknown}
	}

	if !m.clock.Now().Before(stored.Expiry) {
		_ = m.store.Delete(ctx, key)
		return false, &ValidationError{Reason: ReasonExpired}
	}

	if !m.matches(&stored, r) {
		_ = m.store.Delete(ctx, key)
		return false, &ValidationError{Reason: ReasonMismatch}
	}
	return true, nil
}

func (m *Manager) matches(stored *Token, r *http.Request) bool {
	if subtle.ConstantTimeCompare([]byte(stored.ClientID), []byte(m.Fingerprint(r))) == 1 {
		return true
	}
	// proxies may change the apparent client IP between requests
	return !m.config.Strict && stored.UserAgent == r.UserAgent()
}

// Rotate replaces token with a new one when RotateOnValidate is enabled.
// Otherwise it returns nil and the old token stays valid.
func (m *Manager) Rotate(ctx context.Context, token string, r *http.Request) (*Token, error) {
	if !m.config.RotateOnValidate {
		return nil, nil
	}
	if err := m.store.Delete(ctx, keyPrefix+token); err != nil {
		return nil, fmt.Errorf("delete csrf token: %w", err)
	}
	return m.CreateToken(ctx, r)
}

// Sweep purges expired tokens from the underlying store
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	return m.store.Sweep(ctx)
}
