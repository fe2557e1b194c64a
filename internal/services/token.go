package services

import (
	"context"

	"github.com/expense-track/apiserver/types"
)

// TokenRepository defines persistence operations for opaque auth tokens.
type TokenRepository interface {
	GetOrCreate(ctx context.Context, userID int64) (string, error)
	GetUserByKey(ctx context.Context, key string) (types.User, error)
	DeleteForUser(ctx context.Context, userID int64) error
}

// TokenService issues and resolves the opaque bearer tokens used for API
// authentication. A user holds exactly one token at a time.
type TokenService struct {
	repo TokenRepository
}

func NewTokenService(repo TokenRepository) *TokenService {
	return &TokenService{repo: repo}
}

// Issue returns the user's token key, creating one on first login.
func (s *TokenService) Issue(ctx context.Context, user types.User) (string, error) {
	return s.repo.GetOrCreate(ctx, user.ID)
}

// Resolve maps a token key back to its user.
func (s *TokenService) Resolve(ctx context.Context, key string) (types.User, error) {
	return s.repo.GetUserByKey(ctx, key)
}

// Revoke deletes the user's token, forcing a fresh login.
func (s *TokenService) Revoke(ctx context.Context, user types.User) error {
	return s.repo.DeleteForUser(ctx, user.ID)
}
