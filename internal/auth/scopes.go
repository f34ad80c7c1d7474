package auth

import (
	"fmt"
	"slices"

	"keyguard/internal/models"
)

// Scopes understood by the service
const (
	ScopeAll           = models.ScopeWildcard
	ScopeRead          = "read"
	ScopeWrite         = "write"
	ScopeAdmin         = "admin"
	ScopeContentRead   = "content:read"
	ScopeContentWrite  = "content:write"
	ScopeSearchRead    = "search:read"
	ScopeUserRead      = "user:read"
	ScopeUserWrite     = "user:write"
	ScopeAnalyticsRead = "analytics:read"
)

var knownScopes = []string{
	ScopeAll, ScopeRead, ScopeWrite, ScopeAdmin,
	ScopeContentRead, ScopeContentWrite, ScopeSearchRead,
	ScopeUserRead, ScopeUserWrite, ScopeAnalyticsRead,
}

// DefaultScopes are granted when a key is created without explicit scopes
func DefaultScopes() []string {
	return []string{ScopeRead}
}

// KnownScopes returns the accepted scope vocabulary
func KnownScopes() []string {
	return slices.Clone(knownScopes)
}

// IsKnownScope reports whether scope belongs to the vocabulary
func IsKnownScope(scope string) bool {
	return slices.Contains(knownScopes, scope)
}

// CheckGrant fails with a *ScopeError naming the first scope granter lacks.
// A key can only hand out scopes it holds itself.
func CheckGrant(granter *models.APIKey, scopes []string) error {
	for _, scope := range scopes {
		if !granter.HasScope(scope) {
			return &ScopeError{Required: scope}
		}
	}
	return nil
}

// normalizeScopes rejects unknown scopes and removes duplicates, keeping order
func normalizeScopes(scopes []string) ([]string, error) {
	if len(scopes) == 0 {
		return DefaultScopes(), nil
	}

	out := make([]string, 0, len(scopes))
	for _, s := range scopes {
		if !IsKnownScope(s) {
			return nil, &ValidationError{Field: "scopes", Message: fmt.Sprintf("unknown scope %q", s)}
		}
		if !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out, nil
}
