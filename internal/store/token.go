package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"time"

	"github.com/expense-track/apiserver/types"
)

// TokenRepository handles persistence for opaque auth tokens. Each user
// holds at most one token, issued on first login and reused afterwards.
type TokenRepository struct {
	db *sql.DB
}

func NewTokenRepository(db *sql.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// GetOrCreate returns the user's token key, generating and storing a new
// one if none exists yet.
func (r *TokenRepository) GetOrCreate(ctx context.Context, userID int64) (string, error) {
	const selectQuery = `SELECT key FROM auth_tokens WHERE user_id = $1`
	var key string
	err := r.db.QueryRowContext(ctx, selectQuery, userID).Scan(&key)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", err
	}

	key, err = newTokenKey()
	if err != nil {
		return "", err
	}

	// A concurrent first login may have inserted a token between the
	// select and the insert; fall back to the stored key.
	const insertQuery = `
		INSERT INTO auth_tokens (key, user_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO NOTHING`
	result, err := r.db.ExecContext(ctx, insertQuery, key, userID, time.Now())
	if err != nil {
		return "", err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return "", err
	}
	if affected == 0 {
		if err := r.db.QueryRowContext(ctx, selectQuery, userID).Scan(&key); err != nil {
			return "", err
		}
	}
	return key, nil
}

// GetUserByKey resolves a token key to its user.
func (r *TokenRepository) GetUserByKey(ctx context.Context, key string) (types.User, error) {
	const query = `
		SELECT u.id, u.username, u.email, u.is_staff, u.is_superuser, u.password_hash, u.created_at, u.updated_at
		FROM auth_tokens t
		JOIN users u ON u.id = t.user_id
		WHERE t.key = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, key))
}

// DeleteForUser revokes the user's token, if any.
func (r *TokenRepository) DeleteForUser(ctx context.Context, userID int64) error {
	const query = `DELETE FROM auth_tokens WHERE user_id = $1`
	_, err := r.db.ExecContext(ctx, query, userID)
	return err
}

func newTokenKey() (string, error) {
	var buf [20]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf[:]), nil
}
