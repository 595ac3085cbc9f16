package authcore

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"

	"github.com/tradebook/authcore/internal"
	"github.com/tradebook/authcore/mail"
)

// hashOTP derives a deterministic digest of a code through the KDF with an
// empty salt. Codes are short-lived and low-entropy; the iteration count,
// not a salt, is what slows brute force over Redis contents.
func (e *Engine) hashOTP(code string) (string, error) {
	digest, err := e.kdf.Hash(code, 0)
	if err != nil {
		return "", fmt.Errorf("hash otp: %w", err)
	}
	return base64.StdEncoding.EncodeToString(digest), nil
}

type emailInput struct {
	Email string `json:"email" validate:"required,email"`
}

// SendOTP issues and emails a one-time code for the given flow. Resends
// within the cooldown and floods from one address are rejected; the flow
// also refuses to issue registration codes for taken emails or reset codes
// for unknown ones, since the mail itself would leak nothing better.
func (e *Engine) SendOTP(ctx context.Context, typ OTPType, email string) error {
	if err := e.validateInput(emailInput{Email: email}); err != nil {
		return err
	}

	sent, err := e.limiter.IncrementDelivery(ctx, clientIPFromContext(ctx))
	if err != nil {
		return err
	}
	if sent > int64(e.config.OTP.MaxSendPerIP) {
		return ErrTooManyAttempts
	}

	exists, err := e.CheckEmailExists(ctx, email)
	if err != nil {
		return err
	}
	switch typ {
	case OTPRegister:
		if exists {
			return ErrEmailTaken
		}
	case OTPReset:
		if !exists {
			return ErrUserNotFound
		}
	default:
		return ErrValidation.WithData("fields", map[string]any{"type": "unknown"})
	}

	code, err := internal.NewOTPCode(e.config.OTP.Digits)
	if err != nil {
		return fmt.Errorf("generate otp: %w", err)
	}
	codeHash, err := e.hashOTP(code)
	if err != nil {
		return err
	}

	saved, err := e.otpStore.Save(ctx, typ, email, codeHash, e.now())
	if err != nil {
		return err
	}
	if !saved {
		return ErrCooldown
	}

	subject, body := mail.OTPMessage(code, e.config.OTP.TTL)
	if err := e.mailer.Send([]string{email}, subject, body); err != nil {
		// Undo the entry so the user is not stuck in a cooldown for a
		// code that never arrived.
		if derr := e.otpStore.Delete(ctx, typ, email); derr != nil {
			log.Printf("authcore: otp rollback failed: %v", derr)
		}
		return fmt.Errorf("send otp: %w", err)
	}

	e.metricInc(MetricOTPSent)
	e.emitAudit(ctx, AuditEvent{EventType: "otp_send", Success: true,
		Metadata: map[string]string{"type": fmt.Sprint(int(typ))}})
	return nil
}

// VerifyOTP checks a submitted code. Wrong submissions burn one of the
// entry's retries; an exhausted, expired, or absent entry reads the same as
// a wrong code.
func (e *Engine) VerifyOTP(ctx context.Context, typ OTPType, email, code string) error {
	if err := e.validateInput(emailInput{Email: email}); err != nil {
		return err
	}

	codeHash, err := e.hashOTP(code)
	if err != nil {
		return err
	}
	ok, err := e.otpStore.Verify(ctx, typ, email, codeHash)
	if err != nil {
		return err
	}
	if !ok {
		e.metricInc(MetricOTPRejected)
		return ErrOTPInvalid
	}

	e.metricInc(MetricOTPVerified)
	return nil
}
