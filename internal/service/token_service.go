package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dtroode/learnhub-auth/internal/audit"
	"github.com/dtroode/learnhub-auth/internal/logger"
	"github.com/dtroode/learnhub-auth/internal/metrics"
	"github.com/dtroode/learnhub-auth/internal/model"
	"github.com/dtroode/learnhub-auth/internal/token"
)

// DefaultRefreshTTL is the lifetime of a refresh token.
const DefaultRefreshTTL = 30 * 24 * time.Hour

// TokenConfig tunes TokenService.
type TokenConfig struct {
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
	StoreTimeout time.Duration
	Metrics      *metrics.Auth
	Audit        *audit.Recorder
}

// TokenService issues, rotates and revokes token pairs. It is the only
// writer of refresh token records.
type TokenService struct {
	codec        model.TokenCodec
	store        model.RefreshTokenStore
	users        model.UserStore
	logger       *logger.Logger
	metrics      *metrics.Auth
	audit        *audit.Recorder
	accessTTL    time.Duration
	refreshTTL   time.Duration
	storeTimeout time.Duration
	now          func() time.Time
}

// NewTokenService creates a TokenService. Zero TTLs fall back to the defaults.
func NewTokenService(
	codec model.TokenCodec,
	store model.RefreshTokenStore,
	users model.UserStore,
	logger *logger.Logger,
	cfg TokenConfig,
) *TokenService {
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = token.DefaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}
	return &TokenService{
		codec:        codec,
		store:        store,
		users:        users,
		logger:       logger,
		metrics:      cfg.Metrics,
		audit:        cfg.Audit,
		accessTTL:    cfg.AccessTTL,
		refreshTTL:   cfg.RefreshTTL,
		storeTimeout: cfg.StoreTimeout,
		now:          time.Now,
	}
}

// Issue starts a new rotation chain for user.
func (s *TokenService) Issue(ctx context.Context, user model.User) (model.TokenPair, error) {
	plaintext, rec, err := s.newRecord(user.ID)
	if err != nil {
		return model.TokenPair{}, err
	}

	err = callStore(ctx, s.storeTimeout, "create refresh token", func(ctx context.Context) error {
		return s.store.Create(ctx, rec)
	})
	if err != nil {
		s.logger.Error("Token service: failed to persist refresh token",
			"user_id", user.ID.String(),
			"error", err.Error())
		return model.TokenPair{}, err
	}

	return s.pair(user, plaintext, rec)
}

// Refresh exchanges a refresh secret for a new pair. The presented secret
// becomes unusable. Presenting an already exchanged secret revokes its whole
// chain and fails with model.ErrReplayDetected.
func (s *TokenService) Refresh(ctx context.Context, presented string) (model.TokenPair, model.User, error) {
	if presented == "" {
		s.metrics.Refresh(metrics.OutcomeInvalid)
		return model.TokenPair{}, model.User{}, model.ErrInvalidRefreshToken
	}

	hash := token.HashRefreshSecret(presented)
	var rec model.RefreshToken
	err := callStore(ctx, s.storeTimeout, "get refresh token", func(ctx context.Context) error {
		var err error
		rec, err = s.store.GetByHash(ctx, hash)
		return err
	})
	if errors.Is(err, model.ErrNotFound) || (err == nil && !token.EqualHash(rec.TokenHash, hash)) {
		s.metrics.Refresh(metrics.OutcomeInvalid)
		return model.TokenPair{}, model.User{}, model.ErrInvalidRefreshToken
	}
	if err != nil {
		return model.TokenPair{}, model.User{}, s.infraFailure("get refresh token", err)
	}

	if rec.Rotated {
		return model.TokenPair{}, model.User{}, s.replay(ctx, rec)
	}
	if !rec.Valid(s.now()) {
		s.metrics.Refresh(metrics.OutcomeInvalid)
		return model.TokenPair{}, model.User{}, model.ErrInvalidRefreshToken
	}

	plaintext, child, err := s.newRecord(rec.UserID)
	if err != nil {
		return model.TokenPair{}, model.User{}, err
	}

	err = callStore(ctx, s.storeTimeout, "rotate refresh token", func(ctx context.Context) error {
		return s.store.Rotate(ctx, rec.ID, child)
	})
	if errors.Is(err, model.ErrRotationConflict) {
		// Another request exchanged the same secret first.
		return model.TokenPair{}, model.User{}, s.replay(ctx, rec)
	}
	if err != nil {
		return model.TokenPair{}, model.User{}, s.infraFailure("rotate refresh token", err)
	}

	var user model.User
	err = callStore(ctx, s.storeTimeout, "get user", func(ctx context.Context) error {
		var err error
		user, err = s.users.GetByID(ctx, rec.UserID)
		return err
	})
	if errors.Is(err, model.ErrNotFound) {
		s.metrics.Refresh(metrics.OutcomeInvalid)
		return model.TokenPair{}, model.User{}, model.ErrInvalidRefreshToken
	}
	if err != nil {
		return model.TokenPair{}, model.User{}, s.infraFailure("get user", err)
	}

	pair, err := s.pair(user, plaintext, child)
	if err != nil {
		return model.TokenPair{}, model.User{}, err
	}

	s.metrics.Refresh(metrics.OutcomeSuccess)
	s.logger.Debug("Token service: refresh token rotated",
		"user_id", user.ID.String(),
		"parent_id", rec.ID.String())

	return pair, user, nil
}

// Revoke invalidates the record behind a refresh secret and returns its
// owner. Unknown secrets are not an error.
func (s *TokenService) Revoke(ctx context.Context, presented string) (uuid.UUID, error) {
	if presented == "" {
		return uuid.Nil, nil
	}

	var rec model.RefreshToken
	err := callStore(ctx, s.storeTimeout, "get refresh token", func(ctx context.Context) error {
		var err error
		rec, err = s.store.GetByHash(ctx, token.HashRefreshSecret(presented))
		return err
	})
	if errors.Is(err, model.ErrNotFound) {
		return uuid.Nil, nil
	}
	if err != nil {
		return uuid.Nil, err
	}

	err = callStore(ctx, s.storeTimeout, "revoke refresh token", func(ctx context.Context) error {
		return s.store.Revoke(ctx, rec.ID)
	})
	if err != nil {
		return uuid.Nil, err
	}
	return rec.UserID, nil
}

// RevokeAllForUser invalidates every refresh token of userID on every device.
func (s *TokenService) RevokeAllForUser(ctx context.Context, userID uuid.UUID) error {
	return callStore(ctx, s.storeTimeout, "revoke user refresh tokens", func(ctx context.Context) error {
		return s.store.RevokeAllByUser(ctx, userID)
	})
}

// VerifyAccess checks an access credential without touching the store.
func (s *TokenService) VerifyAccess(accessToken string) (model.AccessClaims, error) {
	return s.codec.Verify(accessToken)
}

func (s *TokenService) replay(ctx context.Context, rec model.RefreshToken) error {
	s.logger.Warn("Token service: refresh token replay detected, revoking chain",
		"user_id", rec.UserID.String(),
		"record_id", rec.ID.String())

	err := callStore(ctx, s.storeTimeout, "revoke refresh token chain", func(ctx context.Context) error {
		return s.store.RevokeChain(ctx, rec.ID)
	})
	if err != nil {
		return s.infraFailure("revoke refresh token chain", err)
	}

	s.metrics.Refresh(metrics.OutcomeReplay)
	s.audit.Record(ctx, model.AuditEvent{
		Type:   model.AuditReplayDetected,
		UserID: rec.UserID,
		Detail: map[string]string{"record_id": rec.ID.String()},
	})
	return model.ErrReplayDetected
}

func (s *TokenService) infraFailure(op string, err error) error {
	s.metrics.Refresh(metrics.OutcomeInfrastructure)
	s.logger.Error("Token service: failed to "+op, "error", err.Error())
	return err
}

func (s *TokenService) newRecord(userID uuid.UUID) (string, model.RefreshToken, error) {
	plaintext, hash, err := token.NewRefreshSecret()
	if err != nil {
		return "", model.RefreshToken{}, fmt.Errorf("issue refresh: %w", err)
	}

	now := s.now()
	return plaintext, model.RefreshToken{
		ID:        uuid.New(),
		UserID:    userID,
		TokenHash: hash,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.refreshTTL),
	}, nil
}

func (s *TokenService) pair(user model.User, refresh string, rec model.RefreshToken) (model.TokenPair, error) {
	now := s.now()
	claims := model.AccessClaims{
		UserID:    user.ID,
		Email:     user.Email,
		Role:      user.Role,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.accessTTL),
	}
	access, err := s.codec.Sign(claims)
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("issue access: %w", err)
	}

	return model.TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  claims.ExpiresAt,
		RefreshToken:     refresh,
		RefreshExpiresAt: rec.ExpiresAt,
	}, nil
}
