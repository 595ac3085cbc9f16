// Package password implements credential hashing and verification with a
// salted PBKDF2-SHA256 key derivation.
//
// # Output format
//
// Hashes are raw bytes laid out as:
//
//	salt ‖ derivedKey
//
// The salt length is chosen by the caller and must be remembered for
// verification. A salt length of zero produces an unsalted derivation,
// used for hashing short one-time codes where a deterministic digest is
// required for atomic server-side comparison.
//
// # Architecture boundaries
//
// This package owns derivation and verification only. Password policy
// (length, reuse) is enforced by the Engine.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords — callers supply plaintext and receive hashes.
//   - Import any other authcore package.
//   - Log plaintext passwords at runtime.
package password
