package authcore

import (
	"context"
	"fmt"
	"time"

	"github.com/tradebook/authcore/cache"
)

// resetStore tracks the single outstanding password-reset grant per user.
// The stored value is the reset session id embedded in the emailed token;
// a token naming any other session id is stale or forged.
type resetStore struct {
	cache    *cache.Cache
	ttl      time.Duration
	cooldown time.Duration
}

func newResetStore(c *cache.Cache, cfg ResetConfig) *resetStore {
	return &resetStore{cache: c, ttl: cfg.TTL, cooldown: cfg.Cooldown}
}

func (s *resetStore) key(userID int64) string {
	return fmt.Sprintf("user:reset:%d", userID)
}

// Save records a new grant unless the previous one is younger than the
// cooldown. A re-request after the cooldown replaces the old grant, which
// invalidates the previously emailed link.
func (s *resetStore) Save(ctx context.Context, userID int64, sessionID string) (bool, error) {
	key := s.key(userID)

	remaining, found, err := s.cache.TTL(ctx, key)
	if err != nil {
		return false, err
	}
	if found && remaining > s.ttl-s.cooldown {
		return false, nil
	}
	if err := s.cache.Set(ctx, key, sessionID, s.ttl); err != nil {
		return false, err
	}
	return true, nil
}

// Get returns the outstanding grant's session id.
func (s *resetStore) Get(ctx context.Context, userID int64) (string, bool, error) {
	return s.cache.Get(ctx, s.key(userID))
}

// Delete removes the grant once the reset completed or the account was
// blocked.
func (s *resetStore) Delete(ctx context.Context, userID int64) error {
	return s.cache.Del(ctx, s.key(userID))
}
