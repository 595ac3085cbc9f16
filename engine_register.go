package authcore

import (
	"context"
	"errors"
	"fmt"
)

// Register creates the account and logs it straight in. The email must
// carry a verified registration code; the code is consumed here, so a
// failed insert later in the flow requires requesting a new one.
func (e *Engine) Register(ctx context.Context, input RegisterInput) (*TokenPair, error) {
	if err := e.validateInput(input); err != nil {
		return nil, err
	}

	verified, err := e.otpStore.ConsumeVerified(ctx, OTPRegister, input.Email)
	if err != nil {
		return nil, err
	}
	if !verified {
		return nil, ErrOTPRequired
	}

	hash, err := e.kdf.Hash(input.Password, e.config.Password.SaltLength)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &User{
		Email:        input.Email,
		Name:         input.Name,
		PasswordHash: hash,
	}
	if err := e.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, ErrDuplicateKey) {
			e.metricInc(MetricRegisterDuplicate)
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	pair, sid, err := e.issueFreshSession(ctx, user.ID, deviceNameFromContext(ctx))
	if err != nil {
		// The account exists; the client can still log in normally.
		e.emitAudit(ctx, AuditEvent{EventType: "register", UserID: user.ID, Error: err.Error()})
		return nil, err
	}

	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, AuditEvent{EventType: "register", UserID: user.ID, SessionID: sid, Success: true})
	return pair, nil
}

// CheckEmailExists reports whether a live account owns the email. Serves
// the signup form's availability probe.
func (e *Engine) CheckEmailExists(ctx context.Context, email string) (bool, error) {
	_, err := e.users.GetUserByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup user: %w", err)
	}
	return true, nil
}
