package auth

import (
	"context"

	"github.com/edugatenow/edugate/pkg/contextkeys"
	"github.com/edugatenow/edugate/pkg/rbac"
)

// Identity is the authenticated caller
type Identity struct {
	UserID         string    `json:"id"`
	Email          string    `json:"email"`
	Name           string    `json:"name"`
	Role           rbac.Role `json:"role"`
	SessionVersion int64     `json:"-"`
}

// WithIdentity stores id in ctx and exposes the user ID to the logger
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	if id == nil {
		return ctx
	}
	ctx = contextkeys.WithIdentity(ctx, id)
	return contextkeys.WithUserID(ctx, id.UserID)
}

// FromContext returns the caller, or nil when the request is unauthenticated
func FromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(contextkeys.IdentityKey).(*Identity)
	return id
}
