package authcore

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/tradebook/authcore/internal"
	"github.com/tradebook/authcore/jwt"
	"github.com/tradebook/authcore/mail"
)

// SendResetPasswordLink emails a single-use reset link. Each new grant
// replaces the previous one, so only the latest emailed link works.
func (e *Engine) SendResetPasswordLink(ctx context.Context, email string) error {
	if err := e.validateInput(emailInput{Email: email}); err != nil {
		return err
	}

	user, err := e.users.GetUserByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("lookup user: %w", err)
	}
	if user.Blocked {
		return ErrUserBlocked
	}

	resetSID := internal.NewSessionID()
	saved, err := e.resetStore.Save(ctx, user.ID, resetSID)
	if err != nil {
		return err
	}
	if !saved {
		return ErrCooldown
	}

	token, err := e.jwtManager.CreateResetToken(user.ID, resetSID)
	if err != nil {
		return fmt.Errorf("sign reset token: %w", err)
	}

	expiresAt := e.now().Add(e.config.Reset.TTL)
	link := e.config.Reset.LinkBase + token
	subject, body := mail.ResetMessage(link, expiresAt, e.locator.Timezone(clientIPFromContext(ctx)))
	if err := e.mailer.Send([]string{email}, subject, body); err != nil {
		if derr := e.resetStore.Delete(ctx, user.ID); derr != nil {
			log.Printf("authcore: reset grant rollback failed: %v", derr)
		}
		return fmt.Errorf("send reset link: %w", err)
	}

	e.metricInc(MetricResetRequested)
	e.emitAudit(ctx, AuditEvent{EventType: "reset_request", UserID: user.ID, Success: true})
	return nil
}

type resetInput struct {
	Password string `json:"password" validate:"required,min=8,max=128"`
}

// ResetPassword swaps the credential behind a valid reset token. The grant
// is single-use and every live session of the account dies with the old
// password, including the one that requested the reset.
func (e *Engine) ResetPassword(ctx context.Context, resetToken, newPassword string) error {
	if err := e.validateInput(resetInput{Password: newPassword}); err != nil {
		return err
	}

	claims, err := e.parseToken(resetToken, jwt.TypeReset)
	if err != nil {
		e.metricInc(MetricResetRejected)
		return err
	}
	userID, err := claims.UserID()
	if err != nil {
		e.metricInc(MetricResetRejected)
		return ErrTokenInvalid
	}

	grantSID, found, err := e.resetStore.Get(ctx, userID)
	if err != nil {
		return err
	}
	if !found || grantSID != claims.SID {
		// No grant, already used, or superseded by a newer request.
		e.metricInc(MetricResetRejected)
		return ErrTokenInvalid
	}

	user, err := e.users.GetUserByID(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		e.metricInc(MetricResetRejected)
		return ErrTokenInvalid
	}
	if err != nil {
		return fmt.Errorf("lookup user: %w", err)
	}
	if user.Blocked {
		return ErrUserBlocked
	}

	hash, err := e.kdf.Hash(newPassword, e.config.Password.SaltLength)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	now := e.now()
	if err := e.users.UpdatePassword(ctx, userID, hash, now); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrTokenInvalid
		}
		return fmt.Errorf("update password: %w", err)
	}

	if err := e.resetStore.Delete(ctx, userID); err != nil {
		log.Printf("authcore: reset grant cleanup failed: %v", err)
	}
	e.invalidateAllSessions(ctx, userID)
	if err := e.limiter.ResetLogin(ctx, userID); err != nil {
		log.Printf("authcore: login counter reset failed: %v", err)
	}
	e.resolver.invalidateUser(ctx, userID)

	e.metricInc(MetricResetCompleted)
	e.emitAudit(ctx, AuditEvent{EventType: "reset_complete", UserID: userID, Success: true})
	return nil
}

// invalidateAllSessions kills every live session durably and in cache.
func (e *Engine) invalidateAllSessions(ctx context.Context, userID int64) {
	ids, err := e.sessions.DeleteAllSessions(ctx, userID)
	if err != nil {
		log.Printf("authcore: session invalidation failed: %v", err)
		return
	}
	if len(ids) == 0 {
		return
	}
	if err := e.sessionCache.Delete(ctx, userID, ids...); err != nil {
		log.Printf("authcore: session cache eviction failed: %v", err)
	}
}
