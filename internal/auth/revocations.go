package auth

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// RedisRevocations checks tokens against a Redis set. Logout and admin
// suspension paths add raw tokens to the set with a TTL matching the
// token lifetime; membership means the token is dead.
type RedisRevocations struct {
	client *redis.Client
	key    string
}

func NewRedisRevocations(client *redis.Client, key string) *RedisRevocations {
	return &RedisRevocations{client: client, key: key}
}

func (r *RedisRevocations) IsRevoked(ctx context.Context, token string) (bool, error) {
	return r.client.SIsMember(ctx, r.key, token).Result()
}
