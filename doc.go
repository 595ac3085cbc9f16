// Package authcore is a session and credential lifecycle engine for
// account-based services.
//
// It covers registration with emailed one-time codes, password login with a
// per-account attempt throttle, marker-rotated JWT pairs (every refresh
// invalidates the previous pair), a capped set of concurrent sessions per
// user, single-use password reset links, and immediate account blocking.
//
// Postgres holds the durable truth; Redis serves the hot path through a
// read-through cache with negative markers, and the state transitions that
// must not race (code verification, counter windows, marker rotation) run
// as server-side scripts or under a short per-user lock.
//
// Assemble an Engine with the Builder:
//
//	engine, err := authcore.New().
//		WithConfig(cfg).
//		WithRedis(rdb).
//		WithStores(store, store).
//		WithMailer(mailer).
//		Build()
//
// HTTP integration lives in the middleware subpackage.
package authcore
