package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Eval runs a caller-owned script through the shared client, wrapping
// transport failures the same way the built-in helpers do. Packages that
// layer domain-specific scripts on top of this one go through here so the
// engine holds a single Redis connection pool.
func (c *Cache) Eval(ctx context.Context, script *redis.Script, keys []string, args ...any) (any, error) {
	val, err := script.Run(ctx, c.rdb, keys, args...).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return val, nil
}
