package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dtroode/learnhub-auth/internal/audit"
	"github.com/dtroode/learnhub-auth/internal/logger"
	"github.com/dtroode/learnhub-auth/internal/metrics"
	"github.com/dtroode/learnhub-auth/internal/model"
	"github.com/dtroode/learnhub-auth/internal/password"
)

const (
	minPasswordLength = 8
	maxNameLength     = 100
)

// PasswordHasher hashes and checks user passwords.
type PasswordHasher interface {
	Hash(password string) ([]byte, error)
	Verify(hash []byte, password string) error
	VerifyDummy(password string)
}

// Session is the outcome of a successful login, registration or refresh.
type Session struct {
	User   model.User
	Tokens model.TokenPair
}

// Resolution is the identity behind a request. Renewed is set when the
// access credential had to be re-issued from the refresh token.
type Resolution struct {
	Claims  model.AccessClaims
	Renewed *model.TokenPair
}

// RegisterParams carries the fields of a registration request.
type RegisterParams struct {
	Email    string
	Password string
	Name     string
}

// AuthConfig tunes Auth.
type AuthConfig struct {
	StoreTimeout time.Duration
	Metrics      *metrics.Auth
	Audit        *audit.Recorder
}

// Auth implements account and session operations on top of TokenService.
type Auth struct {
	users        model.UserStore
	tokens       *TokenService
	hasher       PasswordHasher
	logger       *logger.Logger
	metrics      *metrics.Auth
	audit        *audit.Recorder
	storeTimeout time.Duration
	now          func() time.Time
}

// NewAuth creates the session service over users and tokens.
func NewAuth(
	users model.UserStore,
	tokens *TokenService,
	hasher PasswordHasher,
	logger *logger.Logger,
	cfg AuthConfig,
) *Auth {
	return &Auth{
		users:        users,
		tokens:       tokens,
		hasher:       hasher,
		logger:       logger,
		metrics:      cfg.Metrics,
		audit:        cfg.Audit,
		storeTimeout: cfg.StoreTimeout,
		now:          time.Now,
	}
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a STUDENT account and starts its first session.
func (a *Auth) Register(ctx context.Context, params RegisterParams) (Session, error) {
	email := NormalizeEmail(params.Email)
	name := strings.TrimSpace(params.Name)

	a.logger.Debug("Auth service: starting user registration", "email", email)

	if err := validateRegistration(email, params.Password, name); err != nil {
		return Session{}, err
	}

	hash, err := a.hasher.Hash(params.Password)
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", model.ErrInvalidInput, err)
	}

	now := a.now()
	var user model.User
	err = callStore(ctx, a.storeTimeout, "create user", func(ctx context.Context) error {
		var err error
		user, err = a.users.Create(ctx, model.User{
			ID:           uuid.New(),
			Email:        email,
			Name:         name,
			PasswordHash: hash,
			Role:         model.RoleStudent,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
		return err
	})
	if errors.Is(err, model.ErrEmailTaken) {
		a.logger.Info("Auth service: user already exists", "email", email)
		return Session{}, err
	}
	if err != nil {
		a.logger.Error("Auth service: failed to create user",
			"email", email,
			"error", err.Error())
		return Session{}, err
	}

	tokens, err := a.tokens.Issue(ctx, user)
	if err != nil {
		a.discardUser(ctx, user)
		return Session{}, err
	}

	a.metrics.Registered()
	a.audit.Record(ctx, model.AuditEvent{Type: model.AuditRegistered, UserID: user.ID, Email: user.Email})
	a.logger.Info("Auth service: user registered", "user_id", user.ID.String())

	return Session{User: user, Tokens: tokens}, nil
}

// discardUser removes an account whose first session could not be issued, so
// registering again with the same email works.
func (a *Auth) discardUser(ctx context.Context, user model.User) {
	err := callStore(context.WithoutCancel(ctx), a.storeTimeout, "delete user", func(ctx context.Context) error {
		return a.users.Delete(ctx, user.ID)
	})
	if err != nil {
		a.logger.Error("Auth service: failed to discard user without session",
			"user_id", user.ID.String(),
			"error", err.Error())
	}
}

// Login checks email and password and starts a new session.
func (a *Auth) Login(ctx context.Context, email, pw string) (Session, error) {
	email = NormalizeEmail(email)
	if email == "" || pw == "" {
		a.metrics.Login(metrics.OutcomeInvalid)
		return Session{}, model.ErrInvalidCredentials
	}

	var user model.User
	err := callStore(ctx, a.storeTimeout, "get user", func(ctx context.Context) error {
		var err error
		user, err = a.users.GetByEmail(ctx, email)
		return err
	})
	if errors.Is(err, model.ErrNotFound) {
		a.hasher.VerifyDummy(pw)
		a.loginFailed(ctx, email)
		return Session{}, model.ErrInvalidCredentials
	}
	if err != nil {
		a.metrics.Login(metrics.OutcomeInfrastructure)
		a.logger.Error("Auth service: failed to get user by email",
			"email", email,
			"error", err.Error())
		return Session{}, err
	}

	if err := a.hasher.Verify(user.PasswordHash, pw); err != nil {
		if errors.Is(err, password.ErrMismatch) {
			a.loginFailed(ctx, email)
			return Session{}, model.ErrInvalidCredentials
		}
		a.metrics.Login(metrics.OutcomeInfrastructure)
		a.logger.Error("Auth service: failed to verify password",
			"user_id", user.ID.String(),
			"error", err.Error())
		return Session{}, model.NewInfrastructureError("verify password", err)
	}

	tokens, err := a.tokens.Issue(ctx, user)
	if err != nil {
		a.metrics.Login(metrics.OutcomeInfrastructure)
		return Session{}, err
	}

	a.metrics.Login(metrics.OutcomeSuccess)
	a.audit.Record(ctx, model.AuditEvent{Type: model.AuditLoginSucceeded, UserID: user.ID, Email: user.Email})

	return Session{User: user, Tokens: tokens}, nil
}

// Resolve identifies the caller from its cookies. A valid access credential
// is accepted without store access; otherwise the refresh token is rotated.
// Infrastructure errors are returned as is so callers keep the session.
func (a *Auth) Resolve(ctx context.Context, accessToken, refreshToken string) (Resolution, error) {
	if accessToken != "" {
		claims, err := a.tokens.VerifyAccess(accessToken)
		if err == nil {
			return Resolution{Claims: claims}, nil
		}
	}

	if refreshToken == "" {
		return Resolution{}, model.ErrUnauthenticated
	}

	session, err := a.Refresh(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, model.ErrInfrastructure) {
			return Resolution{}, err
		}
		return Resolution{}, fmt.Errorf("%w: %v", model.ErrUnauthenticated, err)
	}

	return Resolution{
		Claims: model.AccessClaims{
			UserID:    session.User.ID,
			Email:     session.User.Email,
			Role:      session.User.Role,
			ExpiresAt: session.Tokens.AccessExpiresAt,
		},
		Renewed: &session.Tokens,
	}, nil
}

// Refresh rotates refreshToken into a new session.
func (a *Auth) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokens, user, err := a.tokens.Refresh(ctx, refreshToken)
	if err != nil {
		return Session{}, err
	}
	return Session{User: user, Tokens: tokens}, nil
}

// Logout revokes the record behind refreshToken. It never fails: errors are
// logged and the caller clears its cookies regardless.
func (a *Auth) Logout(ctx context.Context, refreshToken string) {
	userID, err := a.tokens.Revoke(ctx, refreshToken)
	if err != nil {
		a.logger.Error("Auth service: failed to revoke refresh token on logout", "error", err.Error())
		return
	}
	if userID != uuid.Nil {
		a.audit.Record(ctx, model.AuditEvent{Type: model.AuditLogout, UserID: userID})
	}
}

// LogoutAll revokes every refresh token of the authenticated user.
func (a *Auth) LogoutAll(ctx context.Context, claims model.AccessClaims) error {
	if err := a.tokens.RevokeAllForUser(ctx, claims.UserID); err != nil {
		a.logger.Error("Auth service: failed to revoke all sessions",
			"user_id", claims.UserID.String(),
			"error", err.Error())
		return err
	}

	a.audit.Record(ctx, model.AuditEvent{Type: model.AuditLogoutAll, UserID: claims.UserID, Email: claims.Email})
	a.logger.Info("Auth service: all sessions revoked", "user_id", claims.UserID.String())
	return nil
}

// Profile loads the stored account of the authenticated user.
func (a *Auth) Profile(ctx context.Context, claims model.AccessClaims) (model.User, error) {
	var user model.User
	err := callStore(ctx, a.storeTimeout, "get user", func(ctx context.Context) error {
		var err error
		user, err = a.users.GetByID(ctx, claims.UserID)
		return err
	})
	if errors.Is(err, model.ErrNotFound) {
		return model.User{}, model.ErrUnauthenticated
	}
	return user, err
}

// RevokeUserSessions lets an administrator sign another user out everywhere.
func (a *Auth) RevokeUserSessions(ctx context.Context, actor model.AccessClaims, userID uuid.UUID) error {
	if !actor.Role.Allows(model.RoleAdmin) {
		return model.ErrForbidden
	}

	err := callStore(ctx, a.storeTimeout, "get user", func(ctx context.Context) error {
		_, err := a.users.GetByID(ctx, userID)
		return err
	})
	if err != nil {
		return err
	}

	if err := a.tokens.RevokeAllForUser(ctx, userID); err != nil {
		a.logger.Error("Auth service: failed to revoke user sessions",
			"user_id", userID.String(),
			"error", err.Error())
		return err
	}

	a.audit.Record(ctx, model.AuditEvent{
		Type:   model.AuditSessionsRevoked,
		UserID: userID,
		Detail: map[string]string{"actor_id": actor.UserID.String()},
	})
	return nil
}

func (a *Auth) loginFailed(ctx context.Context, email string) {
	a.metrics.Login(metrics.OutcomeInvalid)
	a.audit.Record(ctx, model.AuditEvent{Type: model.AuditLoginFailed, Email: email})
	a.logger.Info("Auth service: invalid credentials", "email", email)
}

func validateRegistration(email, pw, name string) error {
	if email == "" || pw == "" || name == "" {
		return fmt.Errorf("%w: email, password and name are required", model.ErrInvalidInput)
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return fmt.Errorf("%w: invalid email address", model.ErrInvalidInput)
	}
	if len(pw) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", model.ErrInvalidInput, minPasswordLength)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name is too long", model.ErrInvalidInput)
	}
	return nil
}
