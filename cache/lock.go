package cache

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrLockNotAcquired is returned when the lock could not be taken within the
// acquisition deadline.
var ErrLockNotAcquired = errors.New("lock not acquired")

const lockRetryInterval = 50 * time.Millisecond

// releaseScript deletes the lock only if it still holds our token, so a
// holder that outlived its TTL cannot release a successor's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// WithLock runs fn while holding an exclusive lock at key. Acquisition
// blocks up to wait, polling; the lock auto-expires after ttl if the
// holder dies, so fn must finish well within ttl. Release failures are
// logged and otherwise ignored since expiry bounds the damage.
func (c *Cache) WithLock(ctx context.Context, key string, ttl, wait time.Duration, fn func(context.Context) error) error {
	token, err := lockToken()
	if err != nil {
		return err
	}

	deadline := time.Now().Add(wait)
	for {
		ok, err := c.rdb.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: %s", ErrLockNotAcquired, key)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(lockRetryInterval):
		}
	}

	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, c.rdb, []string{key}, token).Err(); err != nil {
			log.Printf("authcore: lock release failed for %s: %v", key, err)
		}
	}()

	return fn(ctx)
}

func lockToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate lock token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
