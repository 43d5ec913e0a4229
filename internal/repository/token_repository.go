package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/auth-service/internal/database"
	"github.com/iliyamo/auth-service/internal/model"
	"github.com/iliyamo/auth-service/internal/utils"
)

// TokenRepo is the refresh-token ledger.  A row exists for every refresh
// token handed out; its id is the token's jti.  Revocation is deletion.
type TokenRepo struct{ DB *sqlx.DB }

func NewTokenRepo(db *sqlx.DB) *TokenRepo { return &TokenRepo{DB: db} }

// Persist creates a ledger row for userID expiring after utils.RefreshTokenTTL,
// the same window the signer puts in the token's exp claim.  The returned
// record carries the id to embed in the token.
func (r *TokenRepo) Persist(ctx context.Context, userID uint64) (model.RefreshToken, error) {
	ts := now()
	rec := model.RefreshToken{
		UserID:    userID,
		ExpiresAt: ts.Add(utils.RefreshTokenTTL),
		CreatedAt: ts,
	}
	id, err := database.InsertID(ctx, r.DB,
		"INSERT INTO refresh_tokens (user_id, expires_at, created_at) VALUES (?,?,?)",
		rec.UserID, rec.ExpiresAt, rec.CreatedAt)
	if err != nil {
		return model.RefreshToken{}, fmt.Errorf("persisting refresh token: %w", err)
	}
	rec.ID = id
	return rec, nil
}

// GetByID returns a ledger row regardless of expiry; callers check Expired.
func (r *TokenRepo) GetByID(ctx context.Context, id uint64) (model.RefreshToken, error) {
	var t model.RefreshToken
	err := r.DB.GetContext(ctx, &t,
		r.DB.Rebind("SELECT id, user_id, expires_at, created_at FROM refresh_tokens WHERE id=?"), id)
	return t, notFound(err)
}

// Delete revokes a single refresh token.  Deleting an id that does not
// exist is not an error.
func (r *TokenRepo) Delete(ctx context.Context, id uint64) error {
	if _, err := r.DB.ExecContext(ctx, r.DB.Rebind("DELETE FROM refresh_tokens WHERE id=?"), id); err != nil {
		return fmt.Errorf("deleting refresh token: %w", err)
	}
	return nil
}

// Consume deletes the live record id owned by userID and reports whether it
// did.  Of several callers presenting the same record at most one sees
// true; expired rows and rows of another user are left for the sweeper.
func (r *TokenRepo) Consume(ctx context.Context, id, userID uint64) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		r.DB.Rebind("DELETE FROM refresh_tokens WHERE id=? AND user_id=? AND expires_at > ?"),
		id, userID, now())
	if err != nil {
		return false, fmt.Errorf("consuming refresh token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("consuming refresh token: %w", err)
	}
	return n == 1, nil
}

// DeleteAllForUser revokes every refresh token of a user ("log out
// everywhere") and returns how many were removed.
func (r *TokenRepo) DeleteAllForUser(ctx context.Context, userID uint64) (int64, error) {
	res, err := r.DB.ExecContext(ctx, r.DB.Rebind("DELETE FROM refresh_tokens WHERE user_id=?"), userID)
	if err != nil {
		return 0, fmt.Errorf("deleting refresh tokens for user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("deleting refresh tokens for user: %w", err)
	}
	return n, nil
}

// ListByUser returns the user's non-expired records in insertion order.
func (r *TokenRepo) ListByUser(ctx context.Context, userID uint64) ([]model.RefreshToken, error) {
	tokens := []model.RefreshToken{}
	err := r.DB.SelectContext(ctx, &tokens,
		r.DB.Rebind("SELECT id, user_id, expires_at, created_at FROM refresh_tokens WHERE user_id=? AND expires_at > ? ORDER BY id"),
		userID, now())
	if err != nil {
		return nil, fmt.Errorf("listing refresh tokens: %w", err)
	}
	return tokens, nil
}

// DeleteExpired removes rows whose expiry is at or before the current time,
// including orphans left behind when signing failed after Persist.
func (r *TokenRepo) DeleteExpired(ctx context.Context) (int64, error) {
	return r.deleteExpiredAt(ctx, now())
}

func (r *TokenRepo) deleteExpiredAt(ctx context.Context, at time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx, r.DB.Rebind("DELETE FROM refresh_tokens WHERE expires_at <= ?"), at)
	if err != nil {
		return 0, fmt.Errorf("deleting expired refresh tokens: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("deleting expired refresh tokens: %w", err)
	}
	return n, nil
}
