package context

import (
	"context"

	"github.com/dtroode/learnhub-auth/internal/model"
)

type claimsKey struct{}

// Manager stores verified access claims in a request context.
// Handlers read the claims from there instead of re-parsing cookies.
type Manager struct{}

// NewManager creates a new context manager instance.
//
// Returns a pointer to the newly created Manager instance.
func NewManager() *Manager {
	return &Manager{}
}

// SetClaimsToContext returns a copy of ctx carrying claims.
//
// Parameters:
//   - ctx: The request context
//   - claims: Claims of a verified access credential
//
// Returns a new context with the claims attached.
func (m *Manager) SetClaimsToContext(ctx context.Context, claims model.AccessClaims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// GetClaimsFromContext retrieves claims set by SetClaimsToContext.
//
// Parameters:
//   - ctx: The request context
//
// Returns the claims and a boolean indicating if they were found.
func (m *Manager) GetClaimsFromContext(ctx context.Context) (model.AccessClaims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(model.AccessClaims)
	return claims, ok
}
