// Package jwt issues and verifies the ES256-signed bearer tokens used by
// the authentication engine.
//
// Three token types share one claim shape, distinguished by the "typ"
// claim: access tokens (short-lived), refresh tokens (long-lived), and
// reset-password tokens (single-purpose, short TTL). Access and refresh
// tokens carry the session's current rotation markers ("aid"/"rid") so
// storage can detect stale or replayed tokens without holding the token
// itself.
//
// # What this package must NOT do
//
//   - Consult session or user storage — callers compare markers.
//   - Import any other authcore package.
package jwt
