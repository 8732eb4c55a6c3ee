package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dtroode/learnhub-auth/internal/model"
)

var _ model.RefreshTokenStore = (*RefreshTokenRepository)(nil)

type RefreshTokenRepository struct {
	db *Connection
}

// NewRefreshTokenRepository creates a refresh token store over db.
func NewRefreshTokenRepository(db *Connection) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

const insertRefreshToken = `
        INSERT INTO refresh_tokens (id, user_id, token_hash, parent_id, issued_at, expires_at, revoked_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `

// Create inserts the root record of a new chain.
func (r *RefreshTokenRepository) Create(ctx context.Context, token model.RefreshToken) error {
	if token.ID == uuid.Nil {
		token.ID = uuid.New()
	}

	_, err := r.db.Exec(ctx, insertRefreshToken,
		token.ID, token.UserID, token.TokenHash, token.ParentID, token.IssuedAt, token.ExpiresAt, token.RevokedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create refresh token: %w", err)
	}
	return nil
}

// GetByHash looks a record up by the hash of its secret.
func (r *RefreshTokenRepository) GetByHash(ctx context.Context, hash []byte) (model.RefreshToken, error) {
	const query = `
        SELECT t.id, t.user_id, t.token_hash, t.parent_id, t.issued_at, t.expires_at, t.revoked_at,
               EXISTS (SELECT 1 FROM refresh_tokens c WHERE c.parent_id = t.id)
        FROM refresh_tokens t WHERE t.token_hash = $1
    `
	var rt model.RefreshToken
	err := r.db.QueryRow(ctx, query, hash).Scan(
		&rt.ID, &rt.UserID, &rt.TokenHash, &rt.ParentID, &rt.IssuedAt, &rt.ExpiresAt,
		&rt.RevokedAt, &rt.Rotated,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.RefreshToken{}, model.ErrNotFound
		}
		return model.RefreshToken{}, fmt.Errorf("failed to get refresh token by hash: %w", err)
	}
	return rt, nil
}

// Rotate revokes the parent and inserts the child in one transaction. The
// conditional update takes the parent's row lock, so of two concurrent
// rotations only the first sees a valid parent.
func (r *RefreshTokenRepository) Rotate(ctx context.Context, parentID uuid.UUID, child model.RefreshToken) (err error) {
	const revokeParent = `
        UPDATE refresh_tokens SET revoked_at = NOW()
        WHERE id = $1 AND revoked_at IS NULL AND expires_at > NOW()
    `

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin rotation: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	tag, err := tx.Exec(ctx, revokeParent, parentID)
	if err != nil {
		return fmt.Errorf("failed to revoke parent refresh token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrRotationConflict
	}

	if child.ID == uuid.Nil {
		child.ID = uuid.New()
	}
	child.ParentID = &parentID

	_, err = tx.Exec(ctx, insertRefreshToken,
		child.ID, child.UserID, child.TokenHash, child.ParentID, child.IssuedAt, child.ExpiresAt, child.RevokedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.ErrRotationConflict
		}
		return fmt.Errorf("failed to create child refresh token: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit rotation: %w", err)
	}
	return nil
}

// Revoke marks one record revoked.
func (r *RefreshTokenRepository) Revoke(ctx context.Context, id uuid.UUID) error {
	const query = `
        UPDATE refresh_tokens SET revoked_at = NOW()
        WHERE id = $1 AND revoked_at IS NULL
    `
	if _, err := r.db.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	return nil
}

// RevokeAllByUser revokes every live record of userID.
func (r *RefreshTokenRepository) RevokeAllByUser(ctx context.Context, userID uuid.UUID) error {
	const query = `
        UPDATE refresh_tokens SET revoked_at = NOW()
        WHERE user_id = $1 AND revoked_at IS NULL
    `
	if _, err := r.db.Exec(ctx, query, userID); err != nil {
		return fmt.Errorf("failed to revoke refresh tokens by user: %w", err)
	}
	return nil
}

// RevokeChain revokes the whole chain id belongs to with a recursive query.
func (r *RefreshTokenRepository) RevokeChain(ctx context.Context, id uuid.UUID) error {
	const query = `
        WITH RECURSIVE ancestors AS (
            SELECT id, parent_id FROM refresh_tokens WHERE id = $1
            UNION ALL
            SELECT p.id, p.parent_id FROM refresh_tokens p JOIN ancestors a ON p.id = a.parent_id
        ),
        chain AS (
            SELECT id FROM ancestors WHERE parent_id IS NULL
            UNION ALL
            SELECT c.id FROM refresh_tokens c JOIN chain ch ON c.parent_id = ch.id
        )
        UPDATE refresh_tokens SET revoked_at = NOW()
        WHERE id IN (SELECT id FROM chain) AND revoked_at IS NULL
    `
	if _, err := r.db.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("failed to revoke refresh token chain: %w", err)
	}
	return nil
}
