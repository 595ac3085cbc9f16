package authcore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/tradebook/authcore/cache"
	"github.com/tradebook/authcore/session"
)

// cachedUser is the account projection kept in Redis. The credential hash
// never enters the cache; password checks always read the durable row.
type cachedUser struct {
	ID              int64      `json:"id"`
	Email           string     `json:"email"`
	Name            string     `json:"name"`
	Blocked         bool       `json:"blocked"`
	CreatedAt       time.Time  `json:"created_at"`
	ResetPasswordAt *time.Time `json:"reset_password_at,omitempty"`
}

// resolver is the read path shared by token validation and the flows: cache
// first, durable store on a miss, negative marker on a durable miss so dead
// identifiers stop reaching the database.
type resolver struct {
	users        UserStore
	sessions     SessionStore
	sessionCache *session.Store
	cache        *cache.Cache
	cacheTTL     time.Duration
}

// session resolves a live session or fails with ErrSessionNotFound. Cache
// population failures degrade to log lines; the durable answer still serves
// the request.
func (r *resolver) session(ctx context.Context, userID int64, sessionID string) (*session.Entry, error) {
	entry, hit, err := r.sessionCache.Get(ctx, userID, sessionID)
	if err == nil && hit {
		if entry == nil {
			return nil, ErrSessionNotFound
		}
		return entry, nil
	}
	if err != nil {
		log.Printf("authcore: session cache read failed: %v", err)
	}

	row, err := r.sessions.GetSession(ctx, userID, sessionID)
	if errors.Is(err, ErrNotFound) {
		if err := r.sessionCache.PutNegative(ctx, userID, sessionID); err != nil {
			log.Printf("authcore: negative session cache write failed: %v", err)
		}
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	entry = &session.Entry{
		UserID:     row.UserID,
		SessionID:  row.SessionID,
		AccessID:   row.AccessID,
		RefreshID:  row.RefreshID,
		LastOnline: time.Now().UTC(),
	}
	if row.LastSeenAt != nil {
		entry.LastOnline = row.LastSeenAt.UTC()
	}
	if err := r.sessionCache.Put(ctx, entry); err != nil {
		log.Printf("authcore: session cache write failed: %v", err)
	}
	return entry, nil
}

func userDataKey(userID int64) string {
	return fmt.Sprintf("user:data:%d", userID)
}

// user resolves the cached account projection or fails with ErrUserNotFound.
func (r *resolver) user(ctx context.Context, userID int64) (*cachedUser, error) {
	key := userDataKey(userID)

	raw, found, err := r.cache.Get(ctx, key)
	if err != nil {
		log.Printf("authcore: user cache read failed: %v", err)
	} else if found {
		if raw == "" {
			return nil, ErrUserNotFound
		}
		var cu cachedUser
		if err := json.Unmarshal([]byte(raw), &cu); err == nil {
			return &cu, nil
		}
		// Corrupt entry falls through to a rebuild.
	}

	row, err := r.users.GetUserByID(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		if err := r.cache.Set(ctx, key, "", r.cacheTTL); err != nil {
			log.Printf("authcore: negative user cache write failed: %v", err)
		}
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}

	cu := &cachedUser{
		ID:              row.ID,
		Email:           row.Email,
		Name:            row.Name,
		Blocked:         row.Blocked,
		CreatedAt:       row.CreatedAt,
		ResetPasswordAt: row.ResetPasswordAt,
	}
	if encoded, err := json.Marshal(cu); err == nil {
		if err := r.cache.Set(ctx, key, string(encoded), r.cacheTTL); err != nil {
			log.Printf("authcore: user cache write failed: %v", err)
		}
	}
	return cu, nil
}

// invalidateUser drops the cached projection after a mutation so the next
// read observes the new state.
func (r *resolver) invalidateUser(ctx context.Context, userID int64) {
	if err := r.cache.Del(ctx, userDataKey(userID)); err != nil {
		log.Printf("authcore: user cache invalidation failed: %v", err)
	}
}
