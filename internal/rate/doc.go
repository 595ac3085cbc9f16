// Package rate provides Redis-backed fixed-window counters guarding the
// credential-sensitive operations: password login attempts per account and
// code deliveries per client address.
//
// # Window semantics
//
// Every hit increments the counter and refreshes the window TTL, so a caller
// that keeps failing keeps the window open. Counters are cleared explicitly
// on success (login) or left to expire (deliveries). Key prefixes:
//   - user:login_attempts: — failed logins per account id
//   - user:otp_send:       — code deliveries per client IP
//
// # What this package must NOT do
//
//   - Decide limits; thresholds belong to the engine configuration.
//   - Be imported outside the authcore module.
package rate
