// Package postgres implements the durable user and session stores on a
// pgx connection pool.
//
// Rows are never physically deleted: accounts carry a deleted flag and
// sessions a deleted_at stamp, so the history behind a compromised account
// stays auditable. Driver-level failures surface as the authcore store
// sentinels (ErrDuplicateKey, ErrNotFound); nothing pgx-specific escapes.
package postgres
