package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/tradebook/authcore/cache"
)

// Config holds the window durations; attempt thresholds stay with the
// caller so the limiter only counts.
type Config struct {
	LoginWindow    time.Duration
	DeliveryWindow time.Duration
}

// Limiter maintains the fixed-window counters for login and delivery
// throttling. It reports counts; policy decisions happen in the engine.
type Limiter struct {
	cache  *cache.Cache
	config Config
}

// New creates a [Limiter] backed by the shared cache client.
func New(c *cache.Cache, cfg Config) *Limiter {
	return &Limiter{cache: c, config: cfg}
}

func loginKey(userID int64) string {
	return fmt.Sprintf("user:login_attempts:%d", userID)
}

func deliveryKey(ip string) string {
	return "user:otp_send:" + ip
}

// IncrementLogin records a login attempt for the account and returns the
// count inside the current window. Attempts are counted before the password
// is checked, so hammering a correct password once locked still counts.
func (l *Limiter) IncrementLogin(ctx context.Context, userID int64) (int64, error) {
	return l.cache.IncrWithExpiry(ctx, loginKey(userID), l.config.LoginWindow)
}

// ResetLogin clears the account's attempt counter after a successful
// credential check or a completed password reset.
func (l *Limiter) ResetLogin(ctx context.Context, userID int64) error {
	return l.cache.Del(ctx, loginKey(userID))
}

// LoginAttempts returns the current attempt count without recording one.
func (l *Limiter) LoginAttempts(ctx context.Context, userID int64) (int64, error) {
	raw, found, err := l.cache.Get(ctx, loginKey(userID))
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, nil
	}
	var count int64
	if _, err := fmt.Sscan(raw, &count); err != nil || count < 0 {
		return 0, nil
	}
	return count, nil
}

// IncrementDelivery records a code delivery for the client address and
// returns the count inside the current window.
func (l *Limiter) IncrementDelivery(ctx context.Context, ip string) (int64, error) {
	if ip == "" {
		ip = "unknown"
	}
	return l.cache.IncrWithExpiry(ctx, deliveryKey(ip), l.config.DeliveryWindow)
}
