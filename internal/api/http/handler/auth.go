package handler

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"

	"github.com/google/uuid"

	"github.com/dtroode/learnhub-auth/internal/logger"
	"github.com/dtroode/learnhub-auth/internal/model"
	"github.com/dtroode/learnhub-auth/internal/service"
)

// AuthService defines the session operations exposed over HTTP.
type AuthService interface {
	Register(ctx context.Context, params service.RegisterParams) (service.Session, error)
	Login(ctx context.Context, email, password string) (service.Session, error)
	Resolve(ctx context.Context, accessToken, refreshToken string) (service.Resolution, error)
	Refresh(ctx context.Context, refreshToken string) (service.Session, error)
	Logout(ctx context.Context, refreshToken string)
	LogoutAll(ctx context.Context, claims model.AccessClaims) error
	Profile(ctx context.Context, claims model.AccessClaims) (model.User, error)
	RevokeUserSessions(ctx context.Context, actor model.AccessClaims, userID uuid.UUID) error
}

// Auth handles the /api/auth endpoints.
type Auth struct {
	authService    AuthService
	contextManager model.ContextManager
	cookies        CookieSettings
	logger         *logger.Logger
}

// NewAuth creates a new Auth handler.
func NewAuth(authService AuthService, contextManager model.ContextManager, cookies CookieSettings, logger *logger.Logger) *Auth {
	return &Auth{
		authService:    authService,
		contextManager: contextManager,
		cookies:        cookies,
		logger:         logger,
	}
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type whoamiResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Register creates a student account and starts its session.
func (h *Auth) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleError(w, err)
		return
	}

	h.logger.Debug("Auth handler: processing registration request", "email", req.Email)

	session, err := h.authService.Register(r.Context(), service.RegisterParams{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		h.logger.Info("Auth handler: registration failed", "error", err.Error())
		handleError(w, err)
		return
	}

	h.cookies.setSession(w, session.Tokens)
	writeJSON(w, http.StatusCreated, messageResponse{
		Message: "Registration successful",
		User:    newUserResponse(session.User),
	})
}

// Login accepts JSON {email, password} or a form with username and password.
func (h *Auth) Login(w http.ResponseWriter, r *http.Request) {
	req, err := h.parseLogin(w, r)
	if err != nil {
		handleError(w, err)
		return
	}

	session, err := h.authService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.logger.Info("Auth handler: login failed", "error", err.Error())
		handleError(w, err)
		return
	}

	h.cookies.setSession(w, session.Tokens)
	writeJSON(w, http.StatusOK, messageResponse{
		Message: "Login successful",
		User:    newUserResponse(session.User),
	})
}

func (h *Auth) parseLogin(w http.ResponseWriter, r *http.Request) (loginRequest, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/x-www-form-urlencoded" || mediaType == "multipart/form-data" {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		if err := r.ParseForm(); err != nil {
			return loginRequest{}, fmt.Errorf("%w: malformed form body", model.ErrInvalidInput)
		}
		return loginRequest{Email: r.PostForm.Get("username"), Password: r.PostForm.Get("password")}, nil
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return loginRequest{}, err
	}
	return req, nil
}

// Me identifies the caller. An expired access cookie is renewed through the
// refresh cookie in the same request.
func (h *Auth) Me(w http.ResponseWriter, r *http.Request) {
	access, refresh := h.cookies.read(r)

	res, err := h.authService.Resolve(r.Context(), access, refresh)
	if err != nil {
		if !errors.Is(err, model.ErrInfrastructure) {
			h.cookies.clearSession(w)
		} else {
			h.logger.Error("Auth handler: whoami failed", "error", err.Error())
		}
		handleError(w, err)
		return
	}

	if res.Renewed != nil {
		h.logger.Debug("Auth handler: session renewed during whoami", "user_id", res.Claims.UserID.String())
		h.cookies.setSession(w, *res.Renewed)
	}

	writeJSON(w, http.StatusOK, whoamiResponse{
		ID:    res.Claims.UserID.String(),
		Email: res.Claims.Email,
		Role:  string(res.Claims.Role),
	})
}

// Profile returns the stored account of the authenticated caller.
func (h *Auth) Profile(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.contextManager.GetClaimsFromContext(r.Context())
	if !ok {
		handleError(w, model.ErrUnauthenticated)
		return
	}

	user, err := h.authService.Profile(r.Context(), claims)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, newUserResponse(user))
}

// Refresh rotates the refresh cookie into a new session.
func (h *Auth) Refresh(w http.ResponseWriter, r *http.Request) {
	_, refresh := h.cookies.read(r)
	if refresh == "" {
		h.cookies.clearSession(w)
		handleError(w, model.ErrInvalidRefreshToken)
		return
	}

	session, err := h.authService.Refresh(r.Context(), refresh)
	if err != nil {
		if errors.Is(err, model.ErrInfrastructure) {
			h.logger.Error("Auth handler: token refresh failed", "error", err.Error())
		} else {
			h.logger.Info("Auth handler: token refresh rejected", "error", err.Error())
			h.cookies.clearSession(w)
		}
		handleError(w, err)
		return
	}

	h.cookies.setSession(w, session.Tokens)
	writeJSON(w, http.StatusOK, messageResponse{Message: "Token refreshed"})
}

// Logout revokes the current refresh token and always clears the cookies.
func (h *Auth) Logout(w http.ResponseWriter, r *http.Request) {
	if _, refresh := h.cookies.read(r); refresh != "" {
		h.authService.Logout(r.Context(), refresh)
	}

	h.cookies.clearSession(w)
	writeJSON(w, http.StatusOK, messageResponse{Message: "Logged out"})
}

// LogoutAll ends every session of the authenticated caller.
func (h *Auth) LogoutAll(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.contextManager.GetClaimsFromContext(r.Context())
	if !ok {
		handleError(w, model.ErrUnauthenticated)
		return
	}

	if err := h.authService.LogoutAll(r.Context(), claims); err != nil {
		handleError(w, err)
		return
	}

	h.cookies.clearSession(w)
	writeJSON(w, http.StatusOK, messageResponse{Message: "Logged out from all sessions"})
}

// RevokeSessions signs the user given by the {id} path value out everywhere.
func (h *Auth) RevokeSessions(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.contextManager.GetClaimsFromContext(r.Context())
	if !ok {
		handleError(w, model.ErrUnauthenticated)
		return
	}

	userID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handleError(w, fmt.Errorf("%w: invalid user id", model.ErrInvalidInput))
		return
	}

	if err := h.authService.RevokeUserSessions(r.Context(), claims, userID); err != nil {
		handleError(w, err)
		return
	}

	h.logger.Info("Auth handler: sessions revoked",
		"actor_id", claims.UserID.String(),
		"user_id", userID.String())
	w.WriteHeader(http.StatusNoContent)
}
