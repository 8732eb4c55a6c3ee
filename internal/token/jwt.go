package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/dtroode/learnhub-auth/internal/model"
)

// DefaultAccessTTL is the lifetime of an access credential.
const DefaultAccessTTL = 15 * time.Minute

// Claims is the JWT representation of model.AccessClaims.
type Claims struct {
	jwt.RegisteredClaims
	Email string     `json:"email"`
	Role  model.Role `json:"role"`
}

var _ model.TokenCodec = (*JWT)(nil)

// JWT signs and verifies access credentials with HMAC-SHA256.
type JWT struct {
	secretKey []byte
	accessTTL time.Duration
	now       func() time.Time
}

// NewJWT creates a codec for the given secret. A non-positive ttl falls back to DefaultAccessTTL.
func NewJWT(secretKey string, accessTTL time.Duration) *JWT {
	if accessTTL <= 0 {
		accessTTL = DefaultAccessTTL
	}
	return &JWT{secretKey: []byte(secretKey), accessTTL: accessTTL, now: time.Now}
}

// AccessTTL returns the lifetime given to signed credentials.
func (j *JWT) AccessTTL() time.Duration {
	return j.accessTTL
}

// Sign issues an access credential for claims. Zero IssuedAt/ExpiresAt are
// filled from the current time and the configured TTL.
func (j *JWT) Sign(claims model.AccessClaims) (string, error) {
	if claims.IssuedAt.IsZero() {
		claims.IssuedAt = j.now()
	}
	if claims.ExpiresAt.IsZero() {
		claims.ExpiresAt = claims.IssuedAt.Add(j.accessTTL)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claims.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(claims.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
		},
		Email: claims.Email,
		Role:  claims.Role,
	})

	tokenString, err := token.SignedString(j.secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}

	return tokenString, nil
}

// Verify checks the signature and expiry of an access credential.
// Every failure is reported as model.ErrUnauthenticated.
func (j *JWT) Verify(tokenString string) (model.AccessClaims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("wrong signing method %v", t.Header["alg"])
		}
		return j.secretKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.now),
	)
	if err != nil {
		return model.AccessClaims{}, fmt.Errorf("%w: %v", model.ErrUnauthenticated, err)
	}
	if !token.Valid {
		return model.AccessClaims{}, fmt.Errorf("%w: access token is invalid", model.ErrUnauthenticated)
	}

	return claims.toModel()
}

// Decode reads the claims of an access credential without checking its
// signature. The result is only good for coarse routing decisions.
func Decode(tokenString string) (model.AccessClaims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return model.AccessClaims{}, fmt.Errorf("failed to decode access token: %w", err)
	}
	if claims.ExpiresAt == nil {
		return model.AccessClaims{}, errors.New("access token has no expiry")
	}
	return claims.toModel()
}

func (c *Claims) toModel() (model.AccessClaims, error) {
	userID, err := uuid.Parse(c.Subject)
	if err != nil {
		return model.AccessClaims{}, fmt.Errorf("%w: bad subject", model.ErrUnauthenticated)
	}
	if !c.Role.Valid() {
		return model.AccessClaims{}, fmt.Errorf("%w: unknown role %q", model.ErrUnauthenticated, c.Role)
	}

	out := model.AccessClaims{
		UserID: userID,
		Email:  c.Email,
		Role:   c.Role,
	}
	if c.IssuedAt != nil {
		out.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		out.ExpiresAt = c.ExpiresAt.Time
	}
	return out, nil
}
