// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/accountd/accountd/internal/account"
)

// SessionRepository implements account.SessionRepository using SQLite.
type SessionRepository struct {
	db  *DB
	now func() time.Time
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(db *DB) *SessionRepository {
	return &SessionRepository{db: db, now: time.Now}
}

// Create stores a new session.
func (r *SessionRepository) Create(ctx context.Context, session *account.SessionRecord) error {
	r.db.writeLock.Lock()
	defer r.db.writeLock.Unlock()

	_, err := r.db.db.ExecContext(ctx,
		`INSERT INTO sessions (id, token_hash, user_email, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		session.ID.String(),
		session.TokenHash,
		session.UserEmail,
		toUnix(session.ExpiresAt),
		toUnix(session.CreatedAt),
	)
	if err != nil {
		return oops.Code("SESSION_CREATE_FAILED").
			With("operation", "insert session").
			With("session_id", session.ID.String()).
			Wrap(err)
	}
	return nil
}

// GetByTokenHash retrieves a session by its token hash.
func (r *SessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*account.SessionRecord, error) {
	var (
		idStr                string
		expiresAt, createdAt int64
		session              account.SessionRecord
	)
	err := r.db.db.QueryRowContext(ctx,
		`SELECT id, token_hash, user_email, expires_at, created_at
		 FROM sessions WHERE token_hash = ?`,
		tokenHash,
	).Scan(&idStr, &session.TokenHash, &session.UserEmail, &expiresAt, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(account.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_GET_BY_TOKEN_FAILED").
			With("operation", "get session by token hash").
			Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("SESSION_INVALID_ID").With("id", idStr).Wrap(err)
	}
	session.ID = id
	session.ExpiresAt = fromUnix(expiresAt)
	session.CreatedAt = fromUnix(createdAt)
	return &session, nil
}

// DeleteExpired removes all expired sessions and returns the count.
func (r *SessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	r.db.writeLock.Lock()
	defer r.db.writeLock.Unlock()

	result, err := r.db.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at < ?`, toUnix(r.now()))
	if err != nil {
		return 0, oops.Code("SESSION_DELETE_EXPIRED_FAILED").
			With("operation", "delete expired sessions").
			Wrap(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, oops.Code("SESSION_DELETE_EXPIRED_FAILED").
			With("operation", "rows affected").
			Wrap(err)
	}
	return n, nil
}

var _ account.SessionRepository = (*SessionRepository)(nil)
