package authcore

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/tradebook/authcore/cache"
	"github.com/tradebook/authcore/geo"
	"github.com/tradebook/authcore/internal"
	"github.com/tradebook/authcore/internal/rate"
	"github.com/tradebook/authcore/jwt"
	"github.com/tradebook/authcore/mail"
	"github.com/tradebook/authcore/password"
	"github.com/tradebook/authcore/session"
)

// Engine orchestrates the credential and session lifecycle. Build one with
// [New] and share it; all methods are safe for concurrent use.
type Engine struct {
	config       Config
	users        UserStore
	sessions     SessionStore
	sessionCache *session.Store
	cache        *cache.Cache
	limiter      *rate.Limiter
	otpStore     *otpStore
	resetStore   *resetStore
	resolver     *resolver
	kdf          *password.KDF
	jwtManager   *jwt.Manager
	mailer       mail.Mailer
	locator      geo.Locator
	validate     *validator.Validate
	audit        *auditDispatcher
	metrics      *Metrics
	now          func() time.Time
}

// Close flushes the audit dispatcher. The Engine must not be used after.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were discarded under pressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot copies the engine counters, indexed by MetricID.
func (e *Engine) MetricsSnapshot() []uint64 {
	if e == nil {
		return make([]uint64, metricIDCount)
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) emitAudit(ctx context.Context, event AuditEvent) {
	if e == nil || e.audit == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.IP == "" {
		event.IP = clientIPFromContext(ctx)
	}
	e.audit.Emit(ctx, event)
}

func (e *Engine) validateInput(input any) error {
	if err := e.validate.Struct(input); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string]any, len(verrs))
			for _, fe := range verrs {
				fields[fe.Field()] = fe.Tag()
			}
			return ErrValidation.WithData("fields", fields)
		}
		return ErrValidation
	}
	return nil
}

func lockKey(userID int64) string {
	return fmt.Sprintf("user:lock:%d", userID)
}

// Login verifies the password and issues a fresh token pair. Failed
// attempts count against the account before the password is checked, so the
// throttle cannot be probed around.
func (e *Engine) Login(ctx context.Context, input LoginInput) (*TokenPair, error) {
	if err := e.validateInput(input); err != nil {
		return nil, err
	}

	user, err := e.users.GetUserByEmail(ctx, input.Email)
	if errors.Is(err, ErrNotFound) {
		e.metricInc(MetricLoginFailure)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if user.Blocked {
		e.emitAudit(ctx, AuditEvent{EventType: "login", UserID: user.ID, Error: "blocked"})
		return nil, ErrUserBlocked
	}

	attempts, err := e.limiter.IncrementLogin(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if attempts > int64(e.config.Login.MaxAttempts) {
		e.metricInc(MetricLoginThrottled)
		e.emitAudit(ctx, AuditEvent{EventType: "login", UserID: user.ID, Error: "throttled"})
		return nil, ErrTooManyAttempts
	}

	ok, err := e.kdf.Verify(user.PasswordHash, input.Password, e.config.Password.SaltLength)
	if err != nil || !ok {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, AuditEvent{EventType: "login", UserID: user.ID, Error: "bad password"})
		return nil, ErrInvalidCredentials
	}

	if err := e.limiter.ResetLogin(ctx, user.ID); err != nil {
		log.Printf("authcore: login counter reset failed: %v", err)
	}

	device := input.DeviceName
	if device == "" {
		device = deviceNameFromContext(ctx)
	}
	pair, sid, err := e.issueFreshSession(ctx, user.ID, device)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, AuditEvent{EventType: "login", UserID: user.ID, SessionID: sid, Success: true})
	return pair, nil
}

// issueFreshSession creates the session row, prunes beyond the cap, caches
// the entry, and mints a fresh pair. The per-user lock serializes this with
// concurrent refreshes so two flows never rotate markers at once.
func (e *Engine) issueFreshSession(ctx context.Context, userID int64, device string) (*TokenPair, string, error) {
	var pair *TokenPair
	var sid string

	err := e.cache.WithLock(ctx, lockKey(userID), e.config.Lock.TTL, e.config.Lock.Wait, func(ctx context.Context) error {
		now := e.now()
		row, err := e.createSessionRecord(ctx, userID, device, now)
		if err != nil {
			return err
		}
		sid = row.SessionID

		// Fresh logins trim both the overflow beyond the cap and sessions
		// whose refresh tokens have expired anyway.
		pruned, err := e.sessions.PruneSessions(ctx, userID, e.config.Session.MaxPerUser, now.Add(-e.config.JWT.RefreshTTL))
		if err != nil {
			return fmt.Errorf("prune sessions: %w", err)
		}
		if len(pruned) > 0 {
			e.metricInc(MetricSessionPruned)
			if err := e.sessionCache.Delete(ctx, userID, pruned...); err != nil {
				log.Printf("authcore: pruned session cache eviction failed: %v", err)
			}
		}

		if err := e.sessionCache.Put(ctx, &session.Entry{
			UserID:     userID,
			SessionID:  row.SessionID,
			AccessID:   row.AccessID,
			RefreshID:  row.RefreshID,
			LastOnline: now,
		}); err != nil {
			log.Printf("authcore: session cache write failed: %v", err)
		}

		access, refresh, err := e.jwtManager.CreatePair(userID, row.SessionID, row.AccessID, row.RefreshID, true)
		if err != nil {
			return fmt.Errorf("sign tokens: %w", err)
		}
		pair = &TokenPair{AccessToken: access, RefreshToken: refresh}
		return nil
	})
	if err != nil {
		return nil, "", err
	}

	e.metricInc(MetricSessionCreated)
	return pair, sid, nil
}

func (e *Engine) createSessionRecord(ctx context.Context, userID int64, device string, now time.Time) (*Session, error) {
	for attempt := 0; attempt < e.config.Session.CreateRetries; attempt++ {
		accessID, err := internal.NewRotationID()
		if err != nil {
			return nil, err
		}
		refreshID, err := internal.NewRotationID()
		if err != nil {
			return nil, err
		}

		ip := clientIPFromContext(ctx)
		row := &Session{
			UserID:       userID,
			SessionID:    internal.NewSessionID(),
			AccessID:     accessID,
			RefreshID:    refreshID,
			DeviceName:   device,
			LastIP:       ip,
			LastLocation: e.locator.Location(ip),
			CreatedAt:    now,
			RefreshedAt:  now,
		}
		err = e.sessions.CreateSession(ctx, row)
		if err == nil {
			return row, nil
		}
		if !errors.Is(err, ErrDuplicateKey) {
			return nil, fmt.Errorf("create session: %w", err)
		}
	}
	return nil, fmt.Errorf("create session: %w", ErrInternal)
}

// Refresh rotates both markers and returns a non-fresh pair. The previous
// pair stops working the moment the rotation lands; concurrent refreshes of
// the same user serialize on the per-user lock and all but the first fail
// with ErrTokenInvalid.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := e.parseToken(refreshToken, jwt.TypeRefresh)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		return nil, err
	}
	userID, err := claims.UserID()
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		return nil, ErrTokenInvalid
	}

	var pair *TokenPair
	err = e.cache.WithLock(ctx, lockKey(userID), e.config.Lock.TTL, e.config.Lock.Wait, func(ctx context.Context) error {
		entry, err := e.resolver.session(ctx, userID, claims.SID)
		if err != nil {
			return err
		}
		if entry.RefreshID != claims.RID {
			// Marker already rotated: this token belongs to a superseded pair.
			return ErrTokenInvalid
		}

		user, err := e.resolver.user(ctx, userID)
		if err != nil {
			return err
		}
		if user.Blocked {
			return ErrUserBlocked
		}

		accessID, err := internal.NewRotationID()
		if err != nil {
			return err
		}
		refreshID, err := internal.NewRotationID()
		if err != nil {
			return err
		}

		now := e.now()
		if err := e.sessions.UpdateSessionMarkers(ctx, userID, claims.SID, accessID, refreshID, now); err != nil {
			if errors.Is(err, ErrNotFound) {
				return ErrSessionNotFound
			}
			return fmt.Errorf("rotate markers: %w", err)
		}

		entry.AccessID = accessID
		entry.RefreshID = refreshID
		entry.LastOnline = now
		if err := e.sessionCache.Put(ctx, entry); err != nil {
			log.Printf("authcore: session cache write failed: %v", err)
		}

		access, refresh, err := e.jwtManager.CreatePair(userID, claims.SID, accessID, refreshID, false)
		if err != nil {
			return fmt.Errorf("sign tokens: %w", err)
		}
		pair = &TokenPair{AccessToken: access, RefreshToken: refresh}
		return nil
	})
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, AuditEvent{EventType: "refresh", UserID: userID, SessionID: claims.SID, Error: err.Error()})
		return nil, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, AuditEvent{EventType: "refresh", UserID: userID, SessionID: claims.SID, Success: true})
	return pair, nil
}

// Validate authenticates an access token against the live session state:
// signature, expiry, marker match, session liveness, and account standing.
func (e *Engine) Validate(ctx context.Context, accessToken string) (*Identity, error) {
	claims, err := e.parseToken(accessToken, jwt.TypeAccess)
	if err != nil {
		e.metricInc(MetricValidateFailure)
		return nil, err
	}
	userID, err := claims.UserID()
	if err != nil {
		e.metricInc(MetricValidateFailure)
		return nil, ErrTokenInvalid
	}

	entry, err := e.resolver.session(ctx, userID, claims.SID)
	if err != nil {
		e.metricInc(MetricValidateFailure)
		return nil, err
	}
	if entry.AccessID != claims.AID {
		e.metricInc(MetricValidateFailure)
		return nil, ErrTokenInvalid
	}

	user, err := e.resolver.user(ctx, userID)
	if err != nil {
		e.metricInc(MetricValidateFailure)
		return nil, err
	}
	if user.Blocked {
		e.metricInc(MetricValidateFailure)
		return nil, ErrUserBlocked
	}

	e.metricInc(MetricValidateSuccess)
	return &Identity{UserID: userID, SessionID: claims.SID, Fresh: claims.Fresh}, nil
}

// Heartbeat stamps activity on the session: last_online in the cache and
// the durable last-seen record with the caller's current address. A session
// that has fallen out of the cache is dead; the heartbeat fails rather than
// recreate it.
func (e *Engine) Heartbeat(ctx context.Context, identity *Identity) error {
	if identity == nil {
		return ErrTokenInvalid
	}
	now := e.now()

	hit, err := e.sessionCache.Touch(ctx, identity.UserID, identity.SessionID, now)
	if err != nil {
		return fmt.Errorf("heartbeat touch: %w", err)
	}
	if !hit {
		return ErrSessionNotFound
	}

	ip := clientIPFromContext(ctx)
	err = e.sessions.UpdateSessionInfo(ctx, identity.UserID, identity.SessionID,
		ip, e.locator.Location(ip), deviceNameFromContext(ctx), now)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("record heartbeat: %w", err)
	}

	e.metricInc(MetricHeartbeat)
	return nil
}

// Logout soft-deletes the session and evicts its cache entry. Logging out
// an already-dead session succeeds.
func (e *Engine) Logout(ctx context.Context, identity *Identity) error {
	if identity == nil {
		return ErrTokenInvalid
	}

	err := e.sessions.SoftDeleteSession(ctx, identity.UserID, identity.SessionID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("delete session: %w", err)
	}
	if err := e.sessionCache.Delete(ctx, identity.UserID, identity.SessionID); err != nil {
		log.Printf("authcore: logout cache eviction failed: %v", err)
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, AuditEvent{EventType: "logout", UserID: identity.UserID, SessionID: identity.SessionID, Success: true})
	return nil
}

// parseToken maps the jwt package's failures onto the public taxonomy.
func (e *Engine) parseToken(token string, typ jwt.TokenType) (*jwt.Claims, error) {
	claims, err := e.jwtManager.Parse(token, typ)
	switch {
	case err == nil:
		return claims, nil
	case errors.Is(err, jwt.ErrExpired):
		return nil, ErrTokenExpired
	default:
		return nil, ErrTokenInvalid
	}
}
