// Package cache wraps the Redis client used as the fast, read-authoritative
// side of session storage.
//
// Beyond plain key/value helpers it provides the three primitives the
// engine's correctness depends on, each executed as a single server-side
// script so concurrent requests can never interleave inside them:
//
//   - [Cache.ConditionalUpdate]: evaluate field comparisons against a hash
//     and apply one of two action lists depending on the outcome.
//   - [Cache.IncrWithExpiry]: increment a counter and refresh its window in
//     one round trip.
//   - [Cache.WithLock]: scoped mutual exclusion with bounded blocking
//     acquisition and guaranteed release.
//
// # What this package must NOT do
//
//   - Know about users, sessions, or tokens — key layouts belong to callers.
//   - Import any other authcore package.
package cache
