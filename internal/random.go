package internal

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

const rotationIDSize = 16

// NewSessionID returns a fresh session identifier. Collisions are handled by
// the caller retrying against the unique constraint, not here.
func NewSessionID() string {
	return uuid.NewString()
}

// NewRotationID returns an opaque marker embedded in a token and mirrored in
// the session record. Compact base64url so it stays cheap inside JWT claims.
func NewRotationID() (string, error) {
	var raw [rotationIDSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", fmt.Errorf("generate rotation id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// NewOTPCode returns a numeric one-time code of the given length. Each digit
// is drawn independently so leading zeros are as likely as any other digit.
func NewOTPCode(digits int) (string, error) {
	if digits < 4 || digits > 10 {
		return "", errors.New("invalid otp digits")
	}

	var b strings.Builder
	b.Grow(digits)

	max := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}
