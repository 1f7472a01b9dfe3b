package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisStore struct {
	client *redis.Client
}

func newRedisStore(client *redis.Client) *redisStore {
	return &redisStore{client: client}
}

// Access token revocation

func (r *redisStore) revokeToken(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		// already expired, nothing to deny
		return nil
	}
	return r.client.Set(ctx, revokedTokenKey(tokenID), "", ttl).Err()
}

func (r *redisStore) isRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := r.client.Exists(ctx, revokedTokenKey(tokenID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Password reset token operations

func (r *redisStore) storeResetToken(ctx context.Context, hash string, userID int64, ttl time.Duration) error {
	return r.client.Set(ctx, resetTokenKey(hash), strconv.FormatInt(userID, 10), ttl).Err()
}

// consumeResetToken returns the owner of the token and deletes it, so a
// token works at most once. It returns redis.Nil for unknown tokens.
func (r *redisStore) consumeResetToken(ctx context.Context, hash string) (int64, error) {
	val, err := r.client.GetDel(ctx, resetTokenKey(hash)).Result()
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid user ID in reset token: %w", err)
	}
	return id, nil
}

func (r *redisStore) ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func isMissing(err error) bool {
	return errors.Is(err, redis.Nil)
}

func revokedTokenKey(tokenID string) string {
	return fmt.Sprintf("auth:revoked:%s", tokenID)
}

func resetTokenKey(hash string) string {
	return fmt.Sprintf("auth:reset:%s", hash)
}
