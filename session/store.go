package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tradebook/authcore/cache"
)

// negativeMarker is the cached body for a session known not to exist.
const negativeMarker = ""

// Entry is the cached projection of a live session. AccessID and RefreshID
// are the rotation markers embedded in the matching token pair; a token
// whose marker no longer matches has been superseded.
type Entry struct {
	UserID     int64     `json:"user_id"`
	SessionID  string    `json:"session_id"`
	AccessID   string    `json:"access_id"`
	RefreshID  string    `json:"refresh_id"`
	LastOnline time.Time `json:"last_online"`
}

// Store reads and writes cached session entries. All entries share one TTL;
// refreshing activity re-populates rather than extends.
type Store struct {
	cache *cache.Cache
	ttl   time.Duration
}

// NewStore builds a Store writing entries with the given TTL.
func NewStore(c *cache.Cache, ttl time.Duration) *Store {
	return &Store{cache: c, ttl: ttl}
}

func (s *Store) key(userID int64, sessionID string) string {
	return fmt.Sprintf("user:session:%d:%s", userID, sessionID)
}

// Get looks up a cached session. The three outcomes are:
//
//	entry != nil, hit = true   — live session found
//	entry == nil, hit = true   — cached negative: session known absent
//	entry == nil, hit = false  — cache miss, consult the durable store
func (s *Store) Get(ctx context.Context, userID int64, sessionID string) (*Entry, bool, error) {
	raw, found, err := s.cache.Get(ctx, s.key(userID, sessionID))
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}
	if raw == negativeMarker {
		return nil, true, nil
	}
	var entry Entry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		// A corrupt entry is treated as a miss so the resolver rebuilds it.
		return nil, false, nil
	}
	return &entry, true, nil
}

// Put caches a live session entry.
func (s *Store) Put(ctx context.Context, entry *Entry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode session entry: %w", err)
	}
	return s.cache.Set(ctx, s.key(entry.UserID, entry.SessionID), string(raw), s.ttl)
}

// PutNegative records that the session does not exist, so repeated probes
// with the same dead id stop reaching the durable store.
func (s *Store) PutNegative(ctx context.Context, userID int64, sessionID string) error {
	return s.cache.Set(ctx, s.key(userID, sessionID), negativeMarker, s.ttl)
}

// Delete drops the cached entries for the given session ids. Used on logout
// and whenever markers rotate, so the next lookup sees fresh state.
func (s *Store) Delete(ctx context.Context, userID int64, sessionIDs ...string) error {
	keys := make([]string, 0, len(sessionIDs))
	for _, sid := range sessionIDs {
		keys = append(keys, s.key(userID, sid))
	}
	return s.cache.Del(ctx, keys...)
}

// touchScript updates last_online inside the cached JSON without resetting
// the entry's TTL. Negative markers and absent keys are left untouched.
var touchScript = redis.NewScript(`
local raw = redis.call("GET", KEYS[1])
if raw == false or raw == "" then
	return 0
end
local entry = cjson.decode(raw)
entry["last_online"] = ARGV[1]
local ttl = redis.call("PTTL", KEYS[1])
if ttl > 0 then
	redis.call("SET", KEYS[1], cjson.encode(entry), "PX", ttl)
else
	redis.call("SET", KEYS[1], cjson.encode(entry))
end
return 1
`)

// Touch stamps last_online on a cached entry, preserving its remaining TTL.
// Returns false when no live entry was cached.
func (s *Store) Touch(ctx context.Context, userID int64, sessionID string, at time.Time) (bool, error) {
	stamp, err := at.UTC().MarshalText()
	if err != nil {
		return false, fmt.Errorf("encode heartbeat stamp: %w", err)
	}
	res, err := s.cache.Eval(ctx, touchScript, []string{s.key(userID, sessionID)}, string(stamp))
	if err != nil {
		return false, err
	}
	n, ok := res.(int64)
	if !ok {
		return false, fmt.Errorf("%w: unexpected touch reply %T", cache.ErrUnavailable, res)
	}
	return n == 1, nil
}
