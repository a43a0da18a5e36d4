package dedup

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "ccms:activity:"

// Redis shares claims between consumer instances. A claim is a SETNX key that
// expires after the TTL.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

func (r *Redis) Claim(ctx context.Context, id string) (bool, error) {
	return r.client.SetNX(ctx, keyPrefix+id, "1", r.ttl).Result()
}

func (r *Redis) Release(ctx context.Context, id string) error {
	return r.client.Del(ctx, keyPrefix+id).Err()
}
