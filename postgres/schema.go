package postgres

import (
	"context"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id                BIGSERIAL PRIMARY KEY,
	email             TEXT NOT NULL UNIQUE,
	name              TEXT NOT NULL,
	password_hash     BYTEA NOT NULL,
	blocked           BOOLEAN NOT NULL DEFAULT FALSE,
	deleted           BOOLEAN NOT NULL DEFAULT FALSE,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	reset_password_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS sessions (
	user_id       BIGINT NOT NULL REFERENCES users (id),
	session_id    TEXT NOT NULL,
	access_id     TEXT NOT NULL,
	refresh_id    TEXT NOT NULL,
	device_name   TEXT NOT NULL DEFAULT '',
	last_ip       TEXT NOT NULL DEFAULT '',
	last_location TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL,
	refreshed_at  TIMESTAMPTZ NOT NULL,
	last_seen_at  TIMESTAMPTZ,
	deleted_at    TIMESTAMPTZ,
	PRIMARY KEY (user_id, session_id)
);

CREATE INDEX IF NOT EXISTS sessions_live_by_activity
	ON sessions (user_id, refreshed_at DESC)
	WHERE deleted_at IS NULL;
`

// Migrate creates the tables and indexes if they do not exist. Safe to run
// on every startup.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
