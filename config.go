package authcore

import (
	"errors"
	"time"
)

// Config tunes every engine policy. Zero values are filled from
// defaultConfig by the Builder; Validate rejects combinations that would
// weaken the token lifecycle guarantees.
type Config struct {
	JWT      JWTConfig
	Session  SessionConfig
	Login    LoginConfig
	OTP      OTPConfig
	Reset    ResetConfig
	Password PasswordConfig
	Lock     LockConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig carries token lifetimes and the ES256 key pair in PEM form.
type JWTConfig struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Issuer     string
	Leeway     time.Duration
	PrivateKey []byte
	PublicKey  []byte
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig bounds concurrent sessions and the cache tier.
type SessionConfig struct {
	// CacheTTL is the lifetime of cached session entries and negative
	// markers. Activity re-populates entries, it does not extend them.
	CacheTTL time.Duration
	// MaxPerUser caps live sessions; fresh logins prune the oldest beyond it.
	MaxPerUser int
	// CreateRetries bounds retry attempts on a session-id collision.
	CreateRetries int
}

/*
====================================
THROTTLE CONFIG
====================================
*/

// LoginConfig is the failed-login throttle.
type LoginConfig struct {
	MaxAttempts int
	Window      time.Duration
}

// OTPConfig governs one-time code issuance and verification.
type OTPConfig struct {
	TTL          time.Duration
	Cooldown     time.Duration
	MaxRetries   int
	Digits       int
	MaxSendPerIP int
	SendWindow   time.Duration
}

// ResetConfig governs password reset links.
type ResetConfig struct {
	TTL      time.Duration
	Cooldown time.Duration
	// LinkBase is prepended to the reset token when building the emailed
	// link, e.g. "https://app.example.com/reset-password?token=".
	LinkBase string
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig tunes the credential KDF.
type PasswordConfig struct {
	Iterations int
	SaltLength int
	KeyLength  int
}

/*
====================================
LOCK CONFIG
====================================
*/

// LockConfig tunes the per-user lock serializing token issuance.
type LockConfig struct {
	TTL  time.Duration
	Wait time.Duration
}

/*
====================================
OBSERVABILITY CONFIG
====================================
*/

// AuditConfig controls the async audit event dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	// DropIfFull drops events instead of blocking the request path when
	// the buffer is saturated. Dropped counts are observable on the Engine.
	DropIfFull bool
}

// MetricsConfig toggles the built-in counters.
type MetricsConfig struct {
	Enabled bool
}

// DefaultConfig returns the baseline configuration. Callers fill in the
// signing key pair and override what their deployment needs.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:  time.Hour,
			RefreshTTL: 90 * 24 * time.Hour,
			Leeway:     30 * time.Second,
		},
		Session: SessionConfig{
			CacheTTL:      time.Hour,
			MaxPerUser:    5,
			CreateRetries: 3,
		},
		Login: LoginConfig{
			MaxAttempts: 20,
			Window:      time.Hour,
		},
		OTP: OTPConfig{
			TTL:          10 * time.Minute,
			Cooldown:     time.Minute,
			MaxRetries:   5,
			Digits:       4,
			MaxSendPerIP: 10,
			SendWindow:   time.Hour,
		},
		Reset: ResetConfig{
			TTL:      10 * time.Minute,
			Cooldown: time.Minute,
		},
		Password: PasswordConfig{
			Iterations: 100_000,
			SaltLength: 16,
			KeyLength:  32,
		},
		Lock: LockConfig{
			TTL:  3 * time.Second,
			Wait: 5 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{Enabled: true},
	}
}

// Validate rejects configurations that would undermine the lifecycle
// guarantees rather than merely perform badly.
func (c *Config) Validate() error {
	if c.JWT.AccessTTL <= 0 || c.JWT.RefreshTTL <= 0 {
		return errors.New("config: token lifetimes must be positive")
	}
	if c.JWT.AccessTTL >= c.JWT.RefreshTTL {
		return errors.New("config: access lifetime must be shorter than refresh lifetime")
	}
	// The public key is optional; the jwt manager derives it from the
	// private key when absent.
	if len(c.JWT.PrivateKey) == 0 {
		return errors.New("config: signing key required")
	}
	if c.Session.CacheTTL <= 0 {
		return errors.New("config: session cache ttl must be positive")
	}
	if c.Session.MaxPerUser < 1 {
		return errors.New("config: at least one session per user required")
	}
	if c.Session.CreateRetries < 1 {
		return errors.New("config: session create retries must be positive")
	}
	if c.Login.MaxAttempts < 1 || c.Login.Window <= 0 {
		return errors.New("config: login throttle must allow at least one attempt")
	}
	if c.OTP.TTL <= 0 || c.OTP.MaxRetries < 1 || c.OTP.Digits < 4 {
		return errors.New("config: otp policy invalid")
	}
	if c.OTP.Cooldown >= c.OTP.TTL {
		return errors.New("config: otp cooldown must be shorter than otp ttl")
	}
	if c.Reset.TTL <= 0 || c.Reset.Cooldown >= c.Reset.TTL {
		return errors.New("config: reset cooldown must be shorter than reset ttl")
	}
	if c.Lock.TTL <= 0 || c.Lock.Wait <= 0 {
		return errors.New("config: lock ttl and wait must be positive")
	}
	return nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = append([]byte(nil), cfg.JWT.PrivateKey...)
	out.JWT.PublicKey = append([]byte(nil), cfg.JWT.PublicKey...)
	return out
}
