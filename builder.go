package authcore

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"

	"github.com/tradebook/authcore/cache"
	"github.com/tradebook/authcore/geo"
	"github.com/tradebook/authcore/internal/rate"
	"github.com/tradebook/authcore/jwt"
	"github.com/tradebook/authcore/mail"
	"github.com/tradebook/authcore/password"
	"github.com/tradebook/authcore/session"
)

// Builder assembles an Engine. Configure with the With* chain, then call
// Build once.
type Builder struct {
	config    Config
	redis     redis.UniversalClient
	users     UserStore
	sessions  SessionStore
	mailer    mail.Mailer
	locator   geo.Locator
	auditSink AuditSink

	built bool
}

// New starts a Builder with the default policy set.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithStores wires the durable user and session stores. One value may
// implement both.
func (b *Builder) WithStores(users UserStore, sessions SessionStore) *Builder {
	b.users = users
	b.sessions = sessions
	return b
}

func (b *Builder) WithMailer(m mail.Mailer) *Builder {
	b.mailer = m
	return b
}

// WithLocator plugs in a GeoIP backend. Without one, locations degrade to
// placeholders and reset emails render expiry in UTC.
func (b *Builder) WithLocator(l geo.Locator) *Builder {
	b.locator = l
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// Build validates the configuration and wiring and returns a ready Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.users == nil || b.sessions == nil {
		return nil, errors.New("durable stores required")
	}
	if b.mailer == nil {
		return nil, errors.New("mailer required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	kdf, err := password.NewKDF(password.Config{
		Iterations: cfg.Password.Iterations,
		KeyLength:  cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, fmt.Errorf("password kdf: %w", err)
	}

	jwtManager, err := jwt.NewManager(jwt.Config{
		AccessTTL:  cfg.JWT.AccessTTL,
		RefreshTTL: cfg.JWT.RefreshTTL,
		ResetTTL:   cfg.Reset.TTL,
		PrivateKey: cfg.JWT.PrivateKey,
		PublicKey:  cfg.JWT.PublicKey,
		Issuer:     cfg.JWT.Issuer,
		Leeway:     cfg.JWT.Leeway,
	})
	if err != nil {
		return nil, fmt.Errorf("jwt manager: %w", err)
	}

	c := cache.New(b.redis)
	sessionCache := session.NewStore(c, cfg.Session.CacheTTL)

	locator := b.locator
	if locator == nil {
		locator = geo.Static{}
	}

	engine := &Engine{
		config:       cfg,
		users:        b.users,
		sessions:     b.sessions,
		sessionCache: sessionCache,
		cache:        c,
		limiter: rate.New(c, rate.Config{
			LoginWindow:    cfg.Login.Window,
			DeliveryWindow: cfg.OTP.SendWindow,
		}),
		otpStore:   newOTPStore(c, cfg.OTP),
		resetStore: newResetStore(c, cfg.Reset),
		resolver: &resolver{
			users:        b.users,
			sessions:     b.sessions,
			sessionCache: sessionCache,
			cache:        c,
			cacheTTL:     cfg.Session.CacheTTL,
		},
		kdf:        kdf,
		jwtManager: jwtManager,
		mailer:     b.mailer,
		locator:    locator,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		audit:      newAuditDispatcher(cfg.Audit, b.auditSink),
		metrics:    newMetrics(cfg.Metrics),
		now:        func() time.Time { return time.Now().UTC() },
	}

	b.built = true
	return engine, nil
}
