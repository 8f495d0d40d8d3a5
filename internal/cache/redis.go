package cache

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisStore is the production Store backed by go-redis/v9. It is also
// what alicebob/miniredis/v2-backed tests construct, since miniredis
// speaks the same RESP protocol go-redis expects.
type RedisStore struct {
	client redis.UniversalClient
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	return b, err
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

func (s *RedisStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	d, err := s.client.PTTL(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, ErrNotFound
	}
	return d, nil
}

// incrScript increments a counter and applies ttl only on first
// creation, so a sliding window's expiry is anchored to the window's
// first event rather than reset on every request.
var incrScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

func (s *RedisStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	res, err := incrScript.Run(ctx, s.client, []string{key}, ttl.Milliseconds()).Result()
	if err != nil {
		return 0, err
	}
	return res.(int64), nil
}

// casScript performs the compare-and-swap entirely server-side so
// concurrent callers racing on the same quota counter cannot both
// observe the pre-swap value and both proceed (spec §4.D "check and
// enforcement happen atomically").
var casScript = redis.NewScript(`
local current = redis.call("GET", KEYS[1])
if current == false then current = nil end
if current == ARGV[1] or (current == nil and ARGV[1] == "") then
	if ARGV[2] == "" then
		redis.call("DEL", KEYS[1])
	elseif tonumber(ARGV[3]) > 0 then
		redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
	else
		redis.call("SET", KEYS[1], ARGV[2])
	end
	return 1
end
return 0
`)

func (s *RedisStore) CompareAndSwap(ctx context.Context, key string, oldValue, newValue []byte, ttl time.Duration) (bool, error) {
	oldArg := ""
	if oldValue != nil {
		oldArg = string(oldValue)
	}
	newArg := ""
	if newValue != nil {
		newArg = string(newValue)
	}
	res, err := casScript.Run(ctx, s.client, []string{key}, oldArg, newArg, ttl.Milliseconds()).Result()
	if err != nil {
		return false, err
	}
	n, _ := res.(int64)
	return n == 1, nil
}

// Lock implements a single-node Redlock-style advisory lock: SET NX
// with a random fencing token, released only by a script verifying
// the token still matches (so a lock that outlives its ttl and gets
// re-acquired by another caller is never released out from under
// them).
func (s *RedisStore) Lock(ctx context.Context, key string, ttl time.Duration) (func(context.Context), bool, error) {
	token := uuid.NewString()
	ok, err := s.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return func(context.Context) {}, false, err
	}
	if !ok {
		return func(context.Context) {}, false, nil
	}
	release := func(releaseCtx context.Context) {
		_ = unlockScript.Run(releaseCtx, s.client, []string{key}, token).Err()
	}
	return release, true, nil
}

var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)
