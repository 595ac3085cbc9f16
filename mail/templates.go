package mail

import (
	"fmt"
	"time"
)

// OTPMessage builds the subject and body for a one-time code delivery.
func OTPMessage(code string, validFor time.Duration) (subject, body string) {
	subject = "Your verification code"
	body = fmt.Sprintf(
		"Your verification code is %s.\n\n"+
			"It is valid for %d minutes. If you did not request this code, you can ignore this message.\n",
		code, int(validFor.Minutes()))
	return subject, body
}

// ResetMessage builds the subject and body for a password reset link. The
// expiry is rendered in the recipient's timezone when one is known.
func ResetMessage(link string, expiresAt time.Time, loc *time.Location) (subject, body string) {
	if loc == nil {
		loc = time.UTC
	}
	subject = "Reset your password"
	body = fmt.Sprintf(
		"Follow this link to set a new password:\n\n%s\n\n"+
			"The link expires at %s. If you did not request a reset, your password is still safe and you can ignore this message.\n",
		link, expiresAt.In(loc).Format("15:04 MST, Jan 2 2006"))
	return subject, body
}
