package cache

import (
	"context"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenCache front-loads bearer-token resolution and holds the one-time ids
// of outstanding action tokens (password reset, email verification).
// Postgres stays authoritative; every cache path degrades to a miss.
type TokenCache struct {
	client *redis.Client
}

func NewTokenCache(client *redis.Client) *TokenCache {
	return &TokenCache{client: client}
}

func tokenKey(hash []byte) string {
	return "tok:" + hex.EncodeToString(hash)
}

func actionKey(jti string) string {
	return "act:" + jti
}

// PutAuth remembers which user and session a bearer token hash resolves to.
func (c *TokenCache) PutAuth(ctx context.Context, hash []byte, userID, sessionID string, ttl time.Duration) error {
	return c.client.Set(ctx, tokenKey(hash), userID+":"+sessionID, ttl).Err()
}

func (c *TokenCache) GetAuth(ctx context.Context, hash []byte) (userID, sessionID string, ok bool) {
	val, err := c.client.Get(ctx, tokenKey(hash)).Result()
	if err != nil {
		return "", "", false
	}
	parts := strings.SplitN(val, ":", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// Forget drops cached resolutions after revocation so a revoked token can
// never authenticate out of cache.
func (c *TokenCache) Forget(ctx context.Context, hashes ...[]byte) error {
	if len(hashes) == 0 {
		return nil
	}
	keys := make([]string, 0, len(hashes))
	for _, hash := range hashes {
		keys = append(keys, tokenKey(hash))
	}
	return c.client.Del(ctx, keys...).Err()
}

// StoreActionID registers a one-time action token id with its TTL.
func (c *TokenCache) StoreActionID(ctx context.Context, jti string, ttl time.Duration) error {
	return c.client.Set(ctx, actionKey(jti), "1", ttl).Err()
}

// ConsumeActionID atomically consumes an action token id. Returns false if
// the id was never issued, expired, or was already consumed.
func (c *TokenCache) ConsumeActionID(ctx context.Context, jti string) (bool, error) {
	if err := c.client.GetDel(ctx, actionKey(jti)).Err(); err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
