package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tradebook/authcore"
)

const uniqueViolation = "23505"

// Store implements authcore.UserStore and authcore.SessionStore on a pgx
// pool. One Store serves both interfaces; the engine wires it in twice.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an already-connected pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Connect builds a pool from a DSN and pings it.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}

func translate(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", authcore.ErrDuplicateKey, pgErr.ConstraintName)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return authcore.ErrNotFound
	}
	return err
}

// CreateUser inserts the account and fills in ID and CreatedAt.
func (s *Store) CreateUser(ctx context.Context, u *authcore.User) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (email, name, password_hash)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`,
		u.Email, u.Name, u.PasswordHash,
	).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		return translate(err)
	}
	return nil
}

const userColumns = `id, email, name, password_hash, blocked, deleted, created_at, reset_password_at`

func scanUser(row pgx.Row) (*authcore.User, error) {
	var u authcore.User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash,
		&u.Blocked, &u.Deleted, &u.CreatedAt, &u.ResetPasswordAt)
	if err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

// GetUserByEmail returns the live account behind an email. Deleted accounts
// read as not found; blocked accounts are returned and left to the engine.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*authcore.User, error) {
	return scanUser(s.pool.QueryRow(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE email = $1 AND NOT deleted`, email))
}

func (s *Store) GetUserByID(ctx context.Context, id int64) (*authcore.User, error) {
	return scanUser(s.pool.QueryRow(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE id = $1 AND NOT deleted`, id))
}

// UpdatePassword swaps the hash and stamps reset_password_at. Blocked and
// deleted accounts are filtered out so a block takes effect mid-reset.
func (s *Store) UpdatePassword(ctx context.Context, id int64, hash []byte, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users SET password_hash = $2, reset_password_at = $3
		WHERE id = $1 AND NOT deleted AND NOT blocked`,
		id, hash, at)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return authcore.ErrNotFound
	}
	return nil
}

func (s *Store) SetBlocked(ctx context.Context, id int64, blocked bool) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users SET blocked = $2
		WHERE id = $1 AND NOT deleted`,
		id, blocked)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return authcore.ErrNotFound
	}
	return nil
}

// CreateSession inserts the session row. An id collision surfaces as
// ErrDuplicateKey for the caller's retry loop.
func (s *Store) CreateSession(ctx context.Context, sess *authcore.Session) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (user_id, session_id, access_id, refresh_id,
			device_name, last_ip, last_location, created_at, refreshed_at, last_seen_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		sess.UserID, sess.SessionID, sess.AccessID, sess.RefreshID,
		sess.DeviceName, sess.LastIP, sess.LastLocation,
		sess.CreatedAt, sess.RefreshedAt, sess.LastSeenAt)
	if err != nil {
		return translate(err)
	}
	return nil
}

// GetSession returns the live session row; soft-deleted rows read as not
// found.
func (s *Store) GetSession(ctx context.Context, userID int64, sessionID string) (*authcore.Session, error) {
	var sess authcore.Session
	err := s.pool.QueryRow(ctx, `
		SELECT user_id, session_id, access_id, refresh_id, device_name,
			last_ip, last_location, created_at, refreshed_at, last_seen_at, deleted_at
		FROM sessions
		WHERE user_id = $1 AND session_id = $2 AND deleted_at IS NULL`,
		userID, sessionID,
	).Scan(&sess.UserID, &sess.SessionID, &sess.AccessID, &sess.RefreshID,
		&sess.DeviceName, &sess.LastIP, &sess.LastLocation,
		&sess.CreatedAt, &sess.RefreshedAt, &sess.LastSeenAt, &sess.DeletedAt)
	if err != nil {
		return nil, translate(err)
	}
	return &sess, nil
}

// UpdateSessionMarkers rotates both markers and stamps refreshed_at.
func (s *Store) UpdateSessionMarkers(ctx context.Context, userID int64, sessionID, accessID, refreshID string, refreshedAt time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE sessions SET access_id = $3, refresh_id = $4, refreshed_at = $5
		WHERE user_id = $1 AND session_id = $2 AND deleted_at IS NULL`,
		userID, sessionID, accessID, refreshID, refreshedAt)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return authcore.ErrNotFound
	}
	return nil
}

// UpdateSessionInfo records the client context of the latest activity.
func (s *Store) UpdateSessionInfo(ctx context.Context, userID int64, sessionID, ip, location, device string, seenAt time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE sessions SET last_ip = $3, last_location = $4, device_name = $5, last_seen_at = $6
		WHERE user_id = $1 AND session_id = $2 AND deleted_at IS NULL`,
		userID, sessionID, ip, location, device, seenAt)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return authcore.ErrNotFound
	}
	return nil
}

func (s *Store) SoftDeleteSession(ctx context.Context, userID int64, sessionID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE sessions SET deleted_at = now()
		WHERE user_id = $1 AND session_id = $2 AND deleted_at IS NULL`,
		userID, sessionID)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return authcore.ErrNotFound
	}
	return nil
}

// PruneSessions soft-deletes every live session past the keep most recently
// refreshed ones, plus any session idle since expiredBefore, and returns
// the removed ids so the caller can evict their cache entries.
func (s *Store) PruneSessions(ctx context.Context, userID int64, keep int, expiredBefore time.Time) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		UPDATE sessions SET deleted_at = now()
		WHERE user_id = $1 AND deleted_at IS NULL AND session_id IN (
			SELECT session_id FROM sessions
			WHERE user_id = $1 AND deleted_at IS NULL
			ORDER BY refreshed_at DESC
			OFFSET $2
			UNION
			SELECT session_id FROM sessions
			WHERE user_id = $1 AND deleted_at IS NULL AND refreshed_at < $3
		)
		RETURNING session_id`,
		userID, keep, expiredBefore)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()
	return collectIDs(rows)
}

// DeleteAllSessions soft-deletes every live session of the user.
func (s *Store) DeleteAllSessions(ctx context.Context, userID int64) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		UPDATE sessions SET deleted_at = now()
		WHERE user_id = $1 AND deleted_at IS NULL
		RETURNING session_id`,
		userID)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()
	return collectIDs(rows)
}

func collectIDs(rows pgx.Rows) ([]string, error) {
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
