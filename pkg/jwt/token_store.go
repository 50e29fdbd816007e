package jwt

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mbeoliero/coachim/pkg/constant"
)

// Token status constants
const (
	TokenStatusNormal = 1 // Token is valid
	TokenStatusKicked = 2 // Token was kicked by new login
	TokenStatusLogout = 3 // Token was logged out
)

// TokenStore tracks issued session tokens in a Redis hash per user and platform.
type TokenStore struct {
	rdb          *redis.Client
	accessExpire time.Duration
}

// NewTokenStore creates a new TokenStore
func NewTokenStore(rdb *redis.Client, expireHours int) *TokenStore {
	return &TokenStore{
		rdb:          rdb,
		accessExpire: time.Duration(expireHours) * time.Hour,
	}
}

func (s *TokenStore) tokenKey(userId string, platformId int) string {
	return fmt.Sprintf(constant.RedisKeyToken(), userId, platformId)
}

// StoreToken stores a token with normal status and refreshes the key TTL.
func (s *TokenStore) StoreToken(ctx context.Context, userId string, platformId int, token string) error {
	key := s.tokenKey(userId, platformId)

	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, key, token, TokenStatusNormal)
	pipe.Expire(ctx, key, s.accessExpire)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}
	return nil
}

// TokenStatus returns the stored status, or 0 when the token is unknown.
func (s *TokenStore) TokenStatus(ctx context.Context, userId string, platformId int, token string) (int, error) {
	statusStr, err := s.rdb.HGet(ctx, s.tokenKey(userId, platformId), token).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get token status: %w", err)
	}

	status, err := strconv.Atoi(statusStr)
	if err != nil {
		return 0, fmt.Errorf("invalid token status value: %w", err)
	}
	return status, nil
}

// IsTokenValid checks if token is valid (exists and has normal status)
func (s *TokenStore) IsTokenValid(ctx context.Context, userId string, platformId int, token string) (bool, error) {
	status, err := s.TokenStatus(ctx, userId, platformId, token)
	if err != nil {
		return false, err
	}
	return status == TokenStatusNormal, nil
}

// InvalidateToken marks a token as logged out
func (s *TokenStore) InvalidateToken(ctx context.Context, userId string, platformId int, token string) error {
	key := s.tokenKey(userId, platformId)

	exists, err := s.rdb.HExists(ctx, key, token).Result()
	if err != nil {
		return fmt.Errorf("failed to check token existence: %w", err)
	}
	if !exists {
		return nil
	}

	if err := s.rdb.HSet(ctx, key, token, TokenStatusLogout).Err(); err != nil {
		return fmt.Errorf("failed to invalidate token: %w", err)
	}
	return nil
}

// KickOtherTokens marks every other normal token for this user/platform as kicked
// and returns them, so the gateway can close the matching connections.
func (s *TokenStore) KickOtherTokens(ctx context.Context, userId string, platformId int, currentToken string) ([]string, error) {
	key := s.tokenKey(userId, platformId)

	tokens, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get tokens: %w", err)
	}

	var kicked []string
	for token, statusStr := range tokens {
		if token == currentToken {
			continue
		}
		if status, _ := strconv.Atoi(statusStr); status != TokenStatusNormal {
			continue
		}
		if err := s.rdb.HSet(ctx, key, token, TokenStatusKicked).Err(); err != nil {
			return nil, fmt.Errorf("failed to kick token: %w", err)
		}
		kicked = append(kicked, token)
	}
	return kicked, nil
}
