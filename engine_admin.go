package authcore

import (
	"context"
	"errors"
	"fmt"
	"log"
)

// BlockUser bars the account and kills everything attached to it: live
// sessions, the cached account projection, and any outstanding reset grant.
// The block is visible to token validation immediately, not at cache expiry.
func (e *Engine) BlockUser(ctx context.Context, userID int64) error {
	if err := e.users.SetBlocked(ctx, userID, true); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("block user: %w", err)
	}

	e.invalidateAllSessions(ctx, userID)
	e.resolver.invalidateUser(ctx, userID)
	if err := e.resetStore.Delete(ctx, userID); err != nil {
		log.Printf("authcore: reset grant cleanup failed: %v", err)
	}

	e.metricInc(MetricUserBlocked)
	e.emitAudit(ctx, AuditEvent{EventType: "block", UserID: userID, Success: true})
	return nil
}

// UnblockUser lifts the bar. Sessions killed by the block stay dead; the
// user logs in again.
func (e *Engine) UnblockUser(ctx context.Context, userID int64) error {
	if err := e.users.SetBlocked(ctx, userID, false); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("unblock user: %w", err)
	}
	e.resolver.invalidateUser(ctx, userID)

	e.emitAudit(ctx, AuditEvent{EventType: "unblock", UserID: userID, Success: true})
	return nil
}

// RemoveAllSessions signs the user out everywhere without touching the
// account itself.
func (e *Engine) RemoveAllSessions(ctx context.Context, userID int64) error {
	ids, err := e.sessions.DeleteAllSessions(ctx, userID)
	if err != nil {
		return fmt.Errorf("delete sessions: %w", err)
	}
	if len(ids) > 0 {
		if err := e.sessionCache.Delete(ctx, userID, ids...); err != nil {
			log.Printf("authcore: session cache eviction failed: %v", err)
		}
	}

	e.metricInc(MetricLogoutAll)
	e.emitAudit(ctx, AuditEvent{EventType: "logout_all", UserID: userID, Success: true,
		Metadata: map[string]string{"sessions": fmt.Sprint(len(ids))}})
	return nil
}
