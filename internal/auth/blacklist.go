package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenBlacklist tracks revoked brand bearer tokens by jti.
type TokenBlacklist interface {
	IsBlacklisted(ctx context.Context, brandID, jti string) (bool, error)
	AddToBlacklist(ctx context.Context, brandID, jti string, ttl time.Duration) error
}

type RedisBlacklist struct {
	client *redis.Client
}

func NewRedisBlacklist(client *redis.Client) *RedisBlacklist {
	return &RedisBlacklist{client: client}
}

func (r *RedisBlacklist) IsBlacklisted(ctx context.Context, brandID, jti string) (bool, error) {
	exists, err := r.client.Exists(ctx, blacklistKey(brandID, jti)).Result()
	if err != nil {
		return false, err
	}
	return exists > 0, nil
}

func (r *RedisBlacklist) AddToBlacklist(ctx context.Context, brandID, jti string, ttl time.Duration) error {
	return r.client.Set(ctx, blacklistKey(brandID, jti), "revoked", ttl).Err()
}

// Brand scoped key: blacklist:brand:jti
func blacklistKey(brandID, jti string) string {
	return fmt.Sprintf("blacklist:%s:%s", brandID, jti)
}
