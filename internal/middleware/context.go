package middleware

import (
	"context"

	"keyguard/internal/logging"
	"keyguard/internal/models"
	"keyguard/internal/ratelimit"
)

// ContextKey defines the type for context keys to avoid conflicts
type ContextKey string

const (
	// IdentityKey is the context key for the authenticated caller
	IdentityKey ContextKey = "identity"
)

// Authentication methods
const (
	MethodAPIKey  = "api_key"
	MethodSession = "session"
)

// Identity is the authenticated caller attached to the request context.
// Key and Limits are only set for API key authentication.
type Identity struct {
	Owner  *models.Owner
	Key    *models.APIKey
	Limits []ratelimit.WindowResult
	Method string
}

// WithIdentity stores the caller in ctx and reports it to the access log
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	var ownerID, keyID string
	if identity.Owner != nil {
		ownerID = identity.Owner.ID.String()
	}
	if identity.Key != nil {
		keyID = identity.Key.ID.String()
	}
	logging.Annotate(ctx, identity.Method, ownerID, keyID)

	return context.WithValue(ctx, IdentityKey, identity)
}

// GetIdentity retrieves the authenticated caller from the request context
func GetIdentity(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(IdentityKey).(*Identity)
	return identity, ok && identity != nil
}

// GetOwner retrieves the authenticated owner from the request context
func GetOwner(ctx context.Context) (*models.Owner, bool) {
	identity, ok := GetIdentity(ctx)
	if !ok || identity.Owner == nil {
		return nil, false
	}
	return identity.Owner, true
}
