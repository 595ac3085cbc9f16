package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrUnavailable wraps any transport-level failure talking to Redis. Callers
// match it with errors.Is and decide whether the operation can degrade.
var ErrUnavailable = errors.New("cache unavailable")

// getDelScript atomically reads and removes a key, so single-use entries
// (reset markers, one-shot codes) cannot be consumed twice.
var getDelScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == false then
	return false
end
redis.call("DEL", KEYS[1])
return val
`)

// incrExpiryScript increments a counter and stamps the window TTL in the same
// step. The TTL is refreshed on every hit, which is intentional: a caller
// that keeps hammering keeps the window open.
var incrExpiryScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
redis.call("EXPIRE", KEYS[1], ARGV[1])
return count
`)

// Cache is a thin wrapper over a Redis client. All methods report transport
// failures wrapped in ErrUnavailable; a missing key is never an error.
type Cache struct {
	rdb redis.UniversalClient
}

// New wraps an already-configured Redis client.
func New(rdb redis.UniversalClient) *Cache {
	return &Cache{rdb: rdb}
}

// Get returns the value stored at key. The second return distinguishes a
// genuinely absent key from an empty value.
func (c *Cache) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return val, true, nil
}

// Set stores value at key with the given TTL. A zero ttl stores without
// expiry.
func (c *Cache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Del removes the given keys. Missing keys are not an error.
func (c *Cache) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// GetDel atomically reads and deletes key, returning the value it held.
// Returns found=false when the key did not exist.
func (c *Cache) GetDel(ctx context.Context, key string) (string, bool, error) {
	val, err := getDelScript.Run(ctx, c.rdb, []string{key}).Text()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return val, true, nil
}

// IncrWithExpiry increments the counter at key and resets its TTL to window,
// returning the post-increment count. Used for fixed-window rate counters.
func (c *Cache) IncrWithExpiry(ctx context.Context, key string, window time.Duration) (int64, error) {
	secs := int64(window / time.Second)
	if secs < 1 {
		secs = 1
	}
	count, err := incrExpiryScript.Run(ctx, c.rdb, []string{key}, secs).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return count, nil
}

// TTL reports the remaining lifetime of key. Returns found=false when the
// key does not exist, and ttl=0 with found=true when it has no expiry.
func (c *Cache) TTL(ctx context.Context, key string) (time.Duration, bool, error) {
	ttl, err := c.rdb.TTL(ctx, key).Result()
	if err != nil {
		return 0, false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	// go-redis passes the -1/-2 sentinels through as raw durations.
	switch {
	case ttl == -2: // key absent
		return 0, false, nil
	case ttl < 0: // key present, no expiry
		return 0, true, nil
	}
	return ttl, true, nil
}
