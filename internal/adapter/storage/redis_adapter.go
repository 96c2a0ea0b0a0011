package storage

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	idempotencyKeyPrefix = "idem:"
	idempotencyKeyTTL    = 24 * time.Hour
	inFlight             = "-"
)

// reserveScript claims the key, or returns what is already stored under it.
var reserveScript = redis.NewScript(`
local key = KEYS[1]
local ttl = tonumber(ARGV[1])
local marker = ARGV[2]

if redis.call('SET', key, marker, 'NX', 'PX', ttl) then
	return {1, ''}
end

local current = redis.call('GET', key)
if not current then
	return {0, marker}
end
return {0, current}
`)

// RedisAdapter stores checkout idempotency keys. A key holds an in-flight
// marker while the checkout runs, then the resulting order ID.
type RedisAdapter struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client, ttl: idempotencyKeyTTL}
}

func (r *RedisAdapter) Reserve(ctx context.Context, key string) (string, bool, error) {
	res, err := reserveScript.Run(ctx, r.client, []string{idempotencyKeyPrefix + key},
		r.ttl.Milliseconds(), inFlight).Slice()
	if err != nil {
		return "", false, err
	}

	reserved, _ := res[0].(int64)
	if reserved == 1 {
		return "", true, nil
	}
	orderID, _ := res[1].(string)
	if orderID == inFlight {
		orderID = ""
	}
	return orderID, false, nil
}

func (r *RedisAdapter) Complete(ctx context.Context, key, orderID string) error {
	return r.client.Set(ctx, idempotencyKeyPrefix+key, orderID, r.ttl).Err()
}

func (r *RedisAdapter) Release(ctx context.Context, key string) error {
	return r.client.Del(ctx, idempotencyKeyPrefix+key).Err()
}
