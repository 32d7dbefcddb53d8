package storage

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	slotKeyPrefix     = "cart:"
	idempotencyKeyTTL = 24 * time.Hour
)

// releaseIdempotencyScript deletes the key only while it still holds the caller's token, so a
// late release cannot drop a claim taken by a retry.
var releaseIdempotencyScript = redis.NewScript(`
local key = KEYS[1]
local token = ARGV[1]

if redis.call('GET', key) == token then
	return redis.call('DEL', key)
end

return 0
`)

type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

func (r *RedisAdapter) Load(ctx context.Context, name string) ([]byte, error) {
	data, err := r.client.Get(ctx, slotKeyPrefix+name).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (r *RedisAdapter) Save(ctx context.Context, name string, data []byte) error {
	return r.client.Set(ctx, slotKeyPrefix+name, data, 0).Err()
}

func (r *RedisAdapter) SetIdempotency(ctx context.Context, key, token string) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, token, idempotencyKeyTTL).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

func (r *RedisAdapter) ReleaseIdempotency(ctx context.Context, key, token string) error {
	return releaseIdempotencyScript.Run(ctx, r.client, []string{key}, token).Err()
}
