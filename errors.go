package authcore

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is the engine's public failure type. Status carries the HTTP-style
// classification for transports that wrap every response in a 200 envelope;
// Data carries machine-readable hints such as is_expired.
type Error struct {
	Code    string
	Status  int
	Message string
	Data    map[string]any
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches any *Error sharing the same Code, so errors.Is works against
// the package sentinels even after WithData derivations.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// WithData returns a copy of e carrying an extra data entry.
func (e *Error) WithData(key string, value any) *Error {
	data := make(map[string]any, len(e.Data)+1)
	for k, v := range e.Data {
		data[k] = v
	}
	data[key] = value
	return &Error{Code: e.Code, Status: e.Status, Message: e.Message, Data: data}
}

var (
	// ErrInvalidCredentials is returned for a wrong email/password pair.
	// Deliberately identical for unknown accounts and wrong passwords.
	ErrInvalidCredentials = &Error{Code: "invalid_credentials", Status: http.StatusUnauthorized, Message: "invalid email or password"}
	// ErrTokenInvalid covers malformed, forged, mistyped, and superseded tokens.
	ErrTokenInvalid = &Error{Code: "token_invalid", Status: http.StatusUnauthorized, Message: "invalid token"}
	// ErrTokenExpired is distinguished from ErrTokenInvalid so clients know
	// to refresh rather than re-authenticate.
	ErrTokenExpired = &Error{Code: "token_expired", Status: http.StatusUnauthorized, Message: "token expired", Data: map[string]any{"is_expired": true}}
	// ErrFreshTokenRequired rejects refreshed tokens on operations that
	// demand a recent password entry.
	ErrFreshTokenRequired = &Error{Code: "fresh_token_required", Status: http.StatusUnauthorized, Message: "fresh token required"}
	// ErrUserBlocked is returned for any operation on a blocked account.
	ErrUserBlocked = &Error{Code: "user_blocked", Status: http.StatusUnauthorized, Message: "account blocked"}
	// ErrUserNotFound is returned when the account genuinely cannot be
	// concealed, such as password reset for an unknown email.
	ErrUserNotFound = &Error{Code: "user_not_found", Status: http.StatusNotFound, Message: "user not found"}
	// ErrSessionNotFound is returned when a token names a dead session.
	ErrSessionNotFound = &Error{Code: "session_not_found", Status: http.StatusUnauthorized, Message: "session not found"}
	// ErrEmailTaken rejects registration against an existing account.
	ErrEmailTaken = &Error{Code: "email_taken", Status: http.StatusConflict, Message: "email already registered"}
	// ErrTooManyAttempts is the login-throttle rejection.
	ErrTooManyAttempts = &Error{Code: "too_many_attempts", Status: http.StatusTooManyRequests, Message: "too many attempts, try again later"}
	// ErrCooldown rejects a resend before the cooldown has elapsed.
	ErrCooldown = &Error{Code: "cooldown", Status: http.StatusTooManyRequests, Message: "please wait before requesting again"}
	// ErrOTPInvalid covers a wrong, expired, or exhausted one-time code.
	ErrOTPInvalid = &Error{Code: "otp_invalid", Status: http.StatusUnprocessableEntity, Message: "invalid or expired code"}
	// ErrOTPRequired is returned when a flow needs a verified code first.
	ErrOTPRequired = &Error{Code: "otp_required", Status: http.StatusUnprocessableEntity, Message: "email verification required"}
	// ErrValidation reports malformed input. Data carries per-field detail.
	ErrValidation = &Error{Code: "validation", Status: http.StatusUnprocessableEntity, Message: "invalid input"}
	// ErrInternal masks unexpected failures. The cause is logged, never returned.
	ErrInternal = &Error{Code: "internal", Status: http.StatusInternalServerError, Message: "internal error"}
)

// AsError extracts the *Error classification from err, mapping anything
// unclassified to ErrInternal. Transports use it to build the response
// envelope.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return ErrInternal
}
