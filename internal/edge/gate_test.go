package edge

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtroode/learnhub-auth/internal/model"
	"github.com/dtroode/learnhub-auth/internal/testutil"
	"github.com/dtroode/learnhub-auth/internal/token"
)

func accessToken(t *testing.T, role model.Role, expiresAt time.Time) string {
	t.Helper()
	codec := token.NewJWT("edge-secret", time.Minute)
	s, err := codec.Sign(model.AccessClaims{
		UserID:    uuid.New(),
		Email:     "u@example.com",
		Role:      role,
		IssuedAt:  expiresAt.Add(-15 * time.Minute),
		ExpiresAt: expiresAt,
	})
	require.NoError(t, err)
	return s
}

func TestGate_Handle(t *testing.T) {
	t.Parallel()

	future := time.Now().Add(10 * time.Minute)
	past := time.Now().Add(-time.Minute)

	student := accessToken(t, model.RoleStudent, future)
	instructor := accessToken(t, model.RoleInstructor, future)
	admin := accessToken(t, model.RoleAdmin, future)
	expired := accessToken(t, model.RoleStudent, past)

	tests := []struct {
		name         string
		path         string
		cookie       string
		wantStatus   int
		wantLocation string
	}{
		{name: "public home", path: "/", wantStatus: http.StatusOK},
		{name: "public courses", path: "/courses", wantStatus: http.StatusOK},
		{name: "api passes", path: "/api/auth/me", wantStatus: http.StatusOK},
		{name: "static asset", path: "/assets/app.js", wantStatus: http.StatusOK},
		{name: "login anonymous", path: "/login", wantStatus: http.StatusOK},
		{name: "login while signed in", path: "/login", cookie: instructor, wantStatus: http.StatusFound, wantLocation: "/instructor/courses"},
		{name: "register while signed in", path: "/register", cookie: admin, wantStatus: http.StatusFound, wantLocation: "/admin/reports"},
		{name: "login with expired token", path: "/login", cookie: expired, wantStatus: http.StatusOK},
		{name: "protected anonymous", path: "/student/dashboard", wantStatus: http.StatusFound, wantLocation: "/login?redirect=%2Fstudent%2Fdashboard"},
		{name: "protected expired", path: "/profile", cookie: expired, wantStatus: http.StatusFound, wantLocation: "/login?redirect=%2Fprofile"},
		{name: "protected garbage", path: "/dashboard", cookie: "not.a.jwt", wantStatus: http.StatusFound, wantLocation: "/login?redirect=%2Fdashboard"},
		{name: "unknown page anonymous", path: "/settings", wantStatus: http.StatusFound, wantLocation: "/login?redirect=%2Fsettings"},
		{name: "student own area", path: "/student/dashboard", cookie: student, wantStatus: http.StatusOK},
		{name: "student in admin area", path: "/admin/reports", cookie: student, wantStatus: http.StatusFound, wantLocation: "/student/dashboard"},
		{name: "instructor in student area", path: "/student/dashboard", cookie: instructor, wantStatus: http.StatusFound, wantLocation: "/instructor/courses"},
		{name: "admin everywhere", path: "/instructor/courses", cookie: admin, wantStatus: http.StatusOK},
		{name: "profile any role", path: "/profile", cookie: instructor, wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			gate := NewGate("access_token", testutil.MakeNoopLogger())
			h := gate.Handle(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "access_token", Value: tt.cookie})
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantLocation != "" {
				assert.Equal(t, tt.wantLocation, rec.Header().Get("Location"))
			}
		})
	}
}

func TestGate_ForwardsIdentity(t *testing.T) {
	t.Parallel()

	gate := NewGate("access_token", testutil.MakeNoopLogger())
	var role, email string
	h := gate.Handle(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role = r.Header.Get(HeaderUserRole)
		email = r.Header.Get(HeaderUserEmail)
	}))

	req := httptest.NewRequest(http.MethodGet, "/student/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: "access_token", Value: accessToken(t, model.RoleStudent, time.Now().Add(time.Minute))})
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "STUDENT", role)
	assert.Equal(t, "u@example.com", email)
}

func TestGate_DecodeWithoutSecret(t *testing.T) {
	t.Parallel()

	gate := NewGate("access_token", testutil.MakeNoopLogger())
	gate.now = func() time.Time { return time.Now().Add(time.Hour) }

	tok := accessToken(t, model.RoleStudent, time.Now().Add(30*time.Minute))
	req := httptest.NewRequest(http.MethodGet, "/student", nil)
	req.AddCookie(&http.Cookie{Name: "access_token", Value: tok})

	_, ok := gate.claims(req)
	assert.False(t, ok, "token past its exp must not pass")

	gate.now = time.Now
	_, ok = gate.claims(req)
	assert.True(t, ok)
}

func TestLoginURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "/login", LoginURL("/"))
	assert.Equal(t, "/login", LoginURL("/login"))
	assert.Equal(t, "/login", LoginURL("/register"))
	assert.Equal(t, "/login?redirect=%2Fadmin%2Freports", LoginURL("/admin/reports"))
}
