// Package edge guards page routes before they are served. It only decodes
// the access credential; the API verifies signatures on every call.
package edge

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dtroode/learnhub-auth/internal/logger"
	"github.com/dtroode/learnhub-auth/internal/model"
	"github.com/dtroode/learnhub-auth/internal/token"
)

// Headers set on requests that pass the gate.
const (
	HeaderUserID    = "X-User-Id"
	HeaderUserEmail = "X-User-Email"
	HeaderUserRole  = "X-User-Role"
)

// Gate redirects page requests according to the caller's role.
type Gate struct {
	cookieName string
	public     map[string]bool
	protected  []string
	roleRoutes map[string]model.Role
	roleHomes  map[model.Role]string
	logger     *logger.Logger
	now        func() time.Time
}

// NewGate creates a Gate reading the access credential from cookieName.
func NewGate(cookieName string, logger *logger.Logger) *Gate {
	return &Gate{
		cookieName: cookieName,
		public: map[string]bool{
			"/":           true,
			"/login":      true,
			"/register":   true,
			"/courses":    true,
			"/api/health": true,
		},
		protected: []string{"/student", "/instructor", "/admin", "/profile", "/dashboard"},
		roleRoutes: map[string]model.Role{
			"/student":    model.RoleStudent,
			"/instructor": model.RoleInstructor,
			"/admin":      model.RoleAdmin,
		},
		roleHomes: map[model.Role]string{
			model.RoleAdmin:      "/admin/reports",
			model.RoleInstructor: "/instructor/courses",
			model.RoleStudent:    "/student/dashboard",
		},
		logger: logger,
		now:    time.Now,
	}
}

// Handle applies the gate in front of next.
func (g *Gate) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path

		if skip(path) {
			next.ServeHTTP(w, r)
			return
		}

		if g.public[path] && !g.isProtected(path) {
			if path == "/login" || path == "/register" {
				if claims, ok := g.claims(r); ok {
					http.Redirect(w, r, g.home(claims.Role), http.StatusFound)
					return
				}
			}
			next.ServeHTTP(w, r)
			return
		}

		claims, ok := g.claims(r)
		if !ok {
			g.logger.Debug("Edge gate: no usable access token", "path", path)
			http.Redirect(w, r, LoginURL(path), http.StatusFound)
			return
		}

		if !g.allowed(claims.Role, path) {
			g.logger.Debug("Edge gate: role denied",
				"path", path,
				"role", string(claims.Role))
			http.Redirect(w, r, g.home(claims.Role), http.StatusFound)
			return
		}

		r = r.Clone(r.Context())
		r.Header.Set(HeaderUserID, claims.UserID.String())
		r.Header.Set(HeaderUserEmail, claims.Email)
		r.Header.Set(HeaderUserRole, string(claims.Role))
		next.ServeHTTP(w, r)
	})
}

// claims decodes the access cookie. Anything unusable reports false.
func (g *Gate) claims(r *http.Request) (model.AccessClaims, bool) {
	cookie, err := r.Cookie(g.cookieName)
	if err != nil || cookie.Value == "" {
		return model.AccessClaims{}, false
	}

	claims, err := token.Decode(cookie.Value)
	if err != nil {
		return model.AccessClaims{}, false
	}
	if claims.Email == "" || !claims.ExpiresAt.After(g.now()) {
		return model.AccessClaims{}, false
	}
	return claims, true
}

func (g *Gate) isProtected(path string) bool {
	for _, prefix := range g.protected {
		if hasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// allowed grants ADMIN everything and restricts role areas to their role.
func (g *Gate) allowed(role model.Role, path string) bool {
	if role == model.RoleAdmin {
		return true
	}
	for prefix, required := range g.roleRoutes {
		if hasPrefix(path, prefix) {
			return role == required
		}
	}
	return role.Valid()
}

func (g *Gate) home(role model.Role) string {
	if home, ok := g.roleHomes[role]; ok {
		return home
	}
	return g.roleHomes[model.RoleStudent]
}

// LoginURL builds the login redirect for an intended path. Entry pages are
// not worth returning to and get no redirect parameter.
func LoginURL(intended string) string {
	switch intended {
	case "", "/", "/login", "/register":
		return "/login"
	}
	return "/login?" + url.Values{"redirect": {intended}}.Encode()
}

func hasPrefix(path, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

// skip lets API calls and static assets through untouched.
func skip(path string) bool {
	return strings.HasPrefix(path, "/api/") || strings.Contains(path, ".")
}
