package authcore

import (
	"context"
	"errors"
	"time"
)

// Store sentinels. Durable-store implementations translate their driver's
// failures into these so the engine never imports a database package.
var (
	// ErrDuplicateKey reports a unique-constraint violation.
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrNotFound reports that no row matched.
	ErrNotFound = errors.New("not found")
)

// User is the durable account record.
type User struct {
	ID              int64
	Email           string
	Name            string
	PasswordHash    []byte
	Blocked         bool
	Deleted         bool
	CreatedAt       time.Time
	ResetPasswordAt *time.Time
}

// Session is the durable session record. AccessID and RefreshID are the
// rotation markers; tokens carrying stale markers are rejected.
type Session struct {
	UserID       int64
	SessionID    string
	AccessID     string
	RefreshID    string
	DeviceName   string
	LastIP       string
	LastLocation string
	CreatedAt    time.Time
	RefreshedAt  time.Time
	LastSeenAt   *time.Time
	DeletedAt    *time.Time
}

// Live reports whether the session can still back tokens.
func (s *Session) Live() bool {
	return s != nil && s.DeletedAt == nil
}

// UserStore is the account side of the durable store.
type UserStore interface {
	// CreateUser inserts the record and fills in ID and CreatedAt.
	// A taken email returns ErrDuplicateKey.
	CreateUser(ctx context.Context, u *User) error
	// GetUserByEmail returns ErrNotFound for unknown or deleted accounts.
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByID(ctx context.Context, id int64) (*User, error)
	// UpdatePassword swaps the credential hash and stamps ResetPasswordAt.
	// Blocked and deleted accounts return ErrNotFound.
	UpdatePassword(ctx context.Context, id int64, hash []byte, at time.Time) error
	SetBlocked(ctx context.Context, id int64, blocked bool) error
}

// SessionStore is the session side of the durable store. Sessions are
// soft-deleted; a row with DeletedAt set never comes back from GetSession.
type SessionStore interface {
	// CreateSession inserts the record. A session id collision returns
	// ErrDuplicateKey so the caller can retry with a fresh id.
	CreateSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, userID int64, sessionID string) (*Session, error)
	// UpdateSessionMarkers rotates both markers and stamps RefreshedAt.
	UpdateSessionMarkers(ctx context.Context, userID int64, sessionID, accessID, refreshID string, refreshedAt time.Time) error
	// UpdateSessionInfo records where the session was last seen.
	UpdateSessionInfo(ctx context.Context, userID int64, sessionID, ip, location, device string, seenAt time.Time) error
	SoftDeleteSession(ctx context.Context, userID int64, sessionID string) error
	// PruneSessions soft-deletes everything beyond the keep newest live
	// sessions (by RefreshedAt) plus any session idle since expiredBefore,
	// returning the ids it removed.
	PruneSessions(ctx context.Context, userID int64, keep int, expiredBefore time.Time) ([]string, error)
	// DeleteAllSessions soft-deletes every live session of the user and
	// returns the ids it removed.
	DeleteAllSessions(ctx context.Context, userID int64) ([]string, error)
}

// OTPType namespaces one-time codes by the flow that issued them, so a code
// sent for registration can never complete a password reset.
type OTPType int

const (
	// OTPRegister verifies a new account's email address.
	OTPRegister OTPType = 1
	// OTPReset namespaces codes tied to a password reset. The reset link
	// flow itself needs only the email; callers wanting an extra code
	// exchange can layer it on with SendOTP/VerifyOTP.
	OTPReset OTPType = 2
)

// TokenPair is the result of a fresh login or a refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Identity is the verified caller attached to a request after token
// validation. Fresh is true only for tokens minted by a password login,
// never by refresh.
type Identity struct {
	UserID    int64
	SessionID string
	Fresh     bool
}

// RegisterInput carries a registration request. The email must have been
// verified by a registration code first.
type RegisterInput struct {
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name" validate:"required,min=1,max=100"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

// LoginInput carries a password login request.
type LoginInput struct {
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required"`
	DeviceName string `json:"device_name" validate:"max=200"`
}
