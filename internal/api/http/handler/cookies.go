package handler

import (
	"net/http"
	"time"

	"github.com/dtroode/learnhub-auth/internal/model"
)

// CookieSettings describes how session cookies are written.
type CookieSettings struct {
	AccessName  string
	RefreshName string
	// RefreshPath limits the refresh cookie to the auth endpoints.
	RefreshPath string
	Domain      string
	Secure      bool
}

func (c CookieSettings) setSession(w http.ResponseWriter, tokens model.TokenPair) {
	http.SetCookie(w, c.cookie(c.AccessName, tokens.AccessToken, "/", tokens.AccessExpiresAt))
	http.SetCookie(w, c.cookie(c.RefreshName, tokens.RefreshToken, c.RefreshPath, tokens.RefreshExpiresAt))
}

func (c CookieSettings) clearSession(w http.ResponseWriter) {
	for _, ck := range []*http.Cookie{
		c.cookie(c.AccessName, "", "/", time.Time{}),
		c.cookie(c.RefreshName, "", c.RefreshPath, time.Time{}),
	} {
		ck.MaxAge = -1
		ck.Expires = time.Unix(0, 0)
		http.SetCookie(w, ck)
	}
}

func (c CookieSettings) cookie(name, value, path string, expiresAt time.Time) *http.Cookie {
	ck := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Domain:   c.Domain,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteStrictMode,
	}
	if !expiresAt.IsZero() {
		ck.Expires = expiresAt
		ck.MaxAge = int(time.Until(expiresAt).Seconds())
		if ck.MaxAge <= 0 {
			ck.MaxAge = -1
		}
	}
	return ck
}

func (c CookieSettings) read(r *http.Request) (access, refresh string) {
	if ck, err := r.Cookie(c.AccessName); err == nil {
		access = ck.Value
	}
	if ck, err := r.Cookie(c.RefreshName); err == nil {
		refresh = ck.Value
	}
	return access, refresh
}
