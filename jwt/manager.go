package jwt

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenType selects which lifetime and "typ" claim a token is issued and
// verified with.
type TokenType string

const (
	// TypeAccess marks short-lived tokens accepted on protected routes.
	TypeAccess TokenType = "access"
	// TypeRefresh marks long-lived tokens accepted only for token rotation.
	TypeRefresh TokenType = "refresh"
	// TypeReset marks single-purpose reset-password tokens.
	TypeReset TokenType = "reset"
)

// ErrExpired is returned by [Manager.Parse] when the token signature is
// valid but its expiry has passed. Callers distinguish it from generic
// invalidity so clients can trigger a refresh.
var ErrExpired = errors.New("token expired")

// ErrInvalid is returned for any token that fails verification for a
// reason other than expiry.
var ErrInvalid = errors.New("token invalid")

// Config holds signing keys and per-type lifetimes.
type Config struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	ResetTTL   time.Duration
	PrivateKey []byte // PEM, EC P-256
	PublicKey  []byte // PEM; derived from PrivateKey when empty
	Issuer     string
	Leeway     time.Duration
}

// Claims is the single claim shape shared by all token types. Subject
// carries the user id in decimal form.
type Claims struct {
	SID   string `json:"sid"`
	AID   string `json:"aid,omitempty"`
	RID   string `json:"rid,omitempty"`
	Typ   string `json:"typ"`
	Fresh bool   `json:"fresh,omitempty"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim as a user id.
func (c *Claims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrInvalid
	}
	return id, nil
}

// Manager signs and verifies tokens. It is immutable after construction
// and safe for concurrent use.
type Manager struct {
	config     Config
	privateKey *ecdsa.PrivateKey
	publicKey  *ecdsa.PublicKey
}

// NewManager validates cfg, parses the PEM keys, and returns a [Manager].
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 || cfg.ResetTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if len(cfg.PrivateKey) == 0 {
		return nil, errors.New("private key required")
	}

	priv, err := jwt.ParseECPrivateKeyFromPEM(cfg.PrivateKey)
	if err != nil {
		return nil, errors.New("invalid EC private key")
	}
	if priv.Curve != elliptic.P256() {
		return nil, errors.New("EC key must use curve P-256")
	}

	pub := &priv.PublicKey
	if len(cfg.PublicKey) > 0 {
		parsed, err := jwt.ParseECPublicKeyFromPEM(cfg.PublicKey)
		if err != nil {
			return nil, errors.New("invalid EC public key")
		}
		pub = parsed
	}

	return &Manager{config: cfg, privateKey: priv, publicKey: pub}, nil
}

// CreatePair issues a matching access/refresh token pair for one session.
// Both tokens carry the session id and the current rotation markers; the
// refresh token omits the access marker and vice versa.
func (m *Manager) CreatePair(userID int64, sessionID, accessID, refreshID string, fresh bool) (string, string, error) {
	access, err := m.sign(Claims{
		SID:   sessionID,
		AID:   accessID,
		Typ:   string(TypeAccess),
		Fresh: fresh,
	}, userID, m.config.AccessTTL)
	if err != nil {
		return "", "", err
	}

	refresh, err := m.sign(Claims{
		SID: sessionID,
		RID: refreshID,
		Typ: string(TypeRefresh),
	}, userID, m.config.RefreshTTL)
	if err != nil {
		return "", "", err
	}

	return access, refresh, nil
}

// CreateResetToken issues a reset-password token bound to a reset session.
func (m *Manager) CreateResetToken(userID int64, sessionID string) (string, error) {
	return m.sign(Claims{
		SID: sessionID,
		Typ: string(TypeReset),
	}, userID, m.config.ResetTTL)
}

// Parse verifies tokenStr and returns its claims. The token's "typ" claim
// must match typ; a valid signature with a passed expiry returns
// [ErrExpired], every other failure returns [ErrInvalid].
func (m *Manager) Parse(tokenStr string, typ TokenType) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return m.publicKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, ErrInvalid
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalid
	}
	if claims.Typ != string(typ) {
		return nil, ErrInvalid
	}

	return claims, nil
}

func (m *Manager) sign(claims Claims, userID int64, ttl time.Duration) (string, error) {
	now := time.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(userID, 10),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
		Issuer:    m.config.Issuer,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	return token.SignedString(m.privateKey)
}

// GenerateKeyPair creates a fresh P-256 key pair encoded as PEM, suitable
// for tests and first-run provisioning.
func GenerateKeyPair() (privatePEM, publicPEM []byte, err error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, err
	}

	privDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, nil, err
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, nil, err
	}

	privatePEM = pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: privDER})
	publicPEM = pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	return privatePEM, publicPEM, nil
}
