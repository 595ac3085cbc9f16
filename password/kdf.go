package password

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	minIterations = 100_000
	minKeyLength  = 16
	maxSaltLength = 64
)

// Config holds key derivation tuning parameters.
type Config struct {
	Iterations int
	KeyLength  int
}

// KDF derives and verifies salted PBKDF2-SHA256 credentials.
//
// KDF instances are configured once and are safe for concurrent use.
type KDF struct {
	config Config
}

// NewKDF validates cfg and returns a [KDF]. Iterations below 100,000 or
// key lengths below 16 bytes are rejected.
func NewKDF(cfg Config) (*KDF, error) {
	if cfg.Iterations < minIterations {
		return nil, errors.New("iterations must be at least 100000")
	}
	if cfg.KeyLength < minKeyLength {
		return nil, errors.New("key length must be at least 16 bytes")
	}

	return &KDF{config: cfg}, nil
}

// Default returns a KDF with the baseline parameters (100,000 iterations,
// 32-byte derived key).
func Default() *KDF {
	return &KDF{config: Config{Iterations: minIterations, KeyLength: 32}}
}

// Hash derives a credential hash for password. A random salt of saltLength
// bytes is generated and prepended to the derived key; saltLength zero
// produces an unsalted derivation.
func (k *KDF) Hash(password string, saltLength int) ([]byte, error) {
	if saltLength < 0 || saltLength > maxSaltLength {
		return nil, errors.New("invalid salt length")
	}

	salt := make([]byte, saltLength)
	if saltLength > 0 {
		if _, err := io.ReadFull(rand.Reader, salt); err != nil {
			return nil, err
		}
	}

	derived := pbkdf2.Key([]byte(password), salt, k.config.Iterations, k.config.KeyLength, sha256.New)
	return append(salt, derived...), nil
}

// Verify re-derives a key from provided using the salt extracted from
// stored and compares it to the stored key in constant time. A stored
// value too short to contain the salt and a full key is a caller error.
func (k *KDF) Verify(stored []byte, provided string, saltLength int) (bool, error) {
	if saltLength < 0 || saltLength > maxSaltLength {
		return false, errors.New("invalid salt length")
	}
	if len(stored) != saltLength+k.config.KeyLength {
		return false, errors.New("malformed stored credential")
	}

	salt := stored[:saltLength]
	derived := pbkdf2.Key([]byte(provided), salt, k.config.Iterations, k.config.KeyLength, sha256.New)

	return subtle.ConstantTimeCompare(stored[saltLength:], derived) == 1, nil
}
