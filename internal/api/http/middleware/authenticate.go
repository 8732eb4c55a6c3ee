package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/dtroode/learnhub-auth/internal/logger"
	"github.com/dtroode/learnhub-auth/internal/model"
)

// TokenVerifier checks access credentials.
type TokenVerifier interface {
	VerifyAccess(accessToken string) (model.AccessClaims, error)
}

// Authenticate requires a currently valid access cookie. It never falls back
// to the refresh token: routes behind it demand recent authentication.
type Authenticate struct {
	verifier       TokenVerifier
	contextManager model.ContextManager
	cookieName     string
	logger         *logger.Logger
}

// NewAuthenticate creates a new Authenticate middleware instance.
func NewAuthenticate(verifier TokenVerifier, contextManager model.ContextManager, cookieName string, logger *logger.Logger) *Authenticate {
	return &Authenticate{verifier: verifier, contextManager: contextManager, cookieName: cookieName, logger: logger}
}

// Handle rejects requests without valid claims and stores the claims in the context otherwise.
func (m *Authenticate) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(m.cookieName)
		if err != nil || cookie.Value == "" {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "Not authenticated")
			return
		}

		claims, err := m.verifier.VerifyAccess(cookie.Value)
		if err != nil {
			m.logger.Debug("Authenticate: rejected access token", "error", err.Error())
			writeError(w, http.StatusUnauthorized, "unauthenticated", "Not authenticated")
			return
		}

		next.ServeHTTP(w, r.WithContext(m.contextManager.SetClaimsToContext(r.Context(), claims)))
	})
}

// RequireRole allows only callers whose role covers role. It must run after Authenticate.
func RequireRole(contextManager model.ContextManager, role model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := contextManager.GetClaimsFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthenticated", "Not authenticated")
				return
			}
			if !claims.Role.Allows(role) {
				writeError(w, http.StatusForbidden, "forbidden", "Not enough permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"code": code, "message": message},
	})
}
