// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package account

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Session token configuration.
const (
	SessionTokenBytes  = 32             // 32 bytes = 64 hex chars
	DefaultSessionTTL  = 24 * time.Hour // 24 hour expiry
	sessionTokenHexLen = SessionTokenBytes * 2
)

// Session is the per-connection state the core reads and writes.
// It holds at most one value: the e-mail of the authenticated user.
type Session interface {
	// UserEmail returns the stored e-mail, or ok=false if none is set.
	UserEmail(ctx context.Context) (email string, ok bool, err error)

	// SetUserEmail stores the authenticated user's e-mail.
	SetUserEmail(ctx context.Context, email string) error
}

// SessionRecord is a persisted session row.
type SessionRecord struct {
	ID        ulid.ULID
	TokenHash string
	UserEmail string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// NewSessionRecord creates a validated SessionRecord.
func NewSessionRecord(tokenHash, userEmail string, expiresAt time.Time) (*SessionRecord, error) {
	if tokenHash == "" {
		return nil, oops.Code("SESSION_INVALID_HASH").Errorf("token hash cannot be empty")
	}
	if userEmail == "" {
		return nil, oops.Code("SESSION_INVALID_EMAIL").Errorf("user email cannot be empty")
	}
	if expiresAt.IsZero() {
		return nil, oops.Code("SESSION_INVALID_EXPIRY").Errorf("expiry time cannot be zero")
	}

	return &SessionRecord{
		ID:        ulid.Make(),
		TokenHash: tokenHash,
		UserEmail: userEmail,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// IsExpired returns true if the session has expired.
func (s *SessionRecord) IsExpired() bool {
	return s.IsExpiredAt(time.Now())
}

// IsExpiredAt returns true if the session would be expired at the given time.
func (s *SessionRecord) IsExpiredAt(t time.Time) bool {
	return t.After(s.ExpiresAt)
}

// SessionRepository manages session persistence.
type SessionRepository interface {
	// Create stores a new session.
	Create(ctx context.Context, session *SessionRecord) error

	// GetByTokenHash retrieves a session by its token hash.
	// Returns ErrNotFound if no session matches.
	GetByTokenHash(ctx context.Context, tokenHash string) (*SessionRecord, error)

	// DeleteExpired removes all expired sessions and returns the count
	// of deleted records.
	DeleteExpired(ctx context.Context) (int64, error)
}

// GenerateSessionToken creates a secure random token and its hash.
// The plaintext token goes to the client; only the hash is stored.
func GenerateSessionToken() (token, hash string, err error) {
	tokenBytes := make([]byte, SessionTokenBytes)
	if _, err = rand.Read(tokenBytes); err != nil {
		return "", "", oops.Code("SESSION_TOKEN_GENERATE_FAILED").
			With("operation", "crypto/rand.Read").
			With("requested_bytes", SessionTokenBytes).
			Wrap(err)
	}

	token = hex.EncodeToString(tokenBytes)
	return token, HashSessionToken(token), nil
}

// HashSessionToken computes the SHA256 hash of a session token.
func HashSessionToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// StoredSession is a Session persisted through a SessionRepository and
// identified by an opaque client token. One StoredSession serves one request
// and is not safe for concurrent use.
type StoredSession struct {
	repo  SessionRepository
	ttl   time.Duration
	token string
}

// NewStoredSession binds a client token to a repository. An empty or
// malformed token yields a session with no user until SetUserEmail is called.
func NewStoredSession(repo SessionRepository, token string, ttl time.Duration) *StoredSession {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if len(token) != sessionTokenHexLen {
		token = ""
	}
	return &StoredSession{repo: repo, ttl: ttl, token: token}
}

// Token returns the current client token. It changes after SetUserEmail.
func (s *StoredSession) Token() string {
	return s.token
}

// UserEmail reads the session row fresh from the repository.
// Missing and expired rows both read as no user.
func (s *StoredSession) UserEmail(ctx context.Context) (string, bool, error) {
	if s.token == "" {
		return "", false, nil
	}

	rec, err := s.repo.GetByTokenHash(ctx, HashSessionToken(s.token))
	if errors.Is(err, ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, oops.Code("SESSION_GET_FAILED").
			With("operation", "get session by token hash").
			Wrap(err)
	}
	if rec.IsExpired() {
		return "", false, nil
	}
	return rec.UserEmail, true, nil
}

// SetUserEmail issues a fresh token bound to email and persists it.
// The previous token, if any, stops identifying this user.
func (s *StoredSession) SetUserEmail(ctx context.Context, email string) error {
	token, hash, err := GenerateSessionToken()
	if err != nil {
		return err
	}

	rec, err := NewSessionRecord(hash, email, time.Now().UTC().Add(s.ttl))
	if err != nil {
		return oops.Code("SESSION_CREATE_FAILED").
			With("operation", "create session record").
			Wrap(err)
	}

	if err := s.repo.Create(ctx, rec); err != nil {
		return oops.Code("SESSION_CREATE_FAILED").
			With("operation", "persist session").
			Wrap(err)
	}

	s.token = token
	return nil
}

// Compile-time interface check.
var _ Session = (*StoredSession)(nil)
