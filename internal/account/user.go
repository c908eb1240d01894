// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package account

import (
	"context"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// User represents a registered account.
type User struct {
	ID        ulid.ULID
	FirstName string
	LastName  string
	Email     string
	// PasswordHash never leaves the storage boundary.
	PasswordHash string `json:"-"`
	CreatedAt    time.Time
}

// NewUser creates a validated User with a fresh ID.
// The e-mail must already have passed ValidateEmail; passwordHash must be the
// output of a PasswordHasher, never the plaintext.
func NewUser(firstName, lastName, email, passwordHash string) (*User, error) {
	if !ValidateEmail(email) {
		return nil, oops.Code("USER_INVALID_EMAIL").Errorf("email is not a valid address")
	}
	if strings.TrimSpace(passwordHash) == "" {
		return nil, oops.Code("USER_INVALID_PASSWORD_HASH").Errorf("password hash cannot be empty")
	}

	return &User{
		ID:           ulid.Make(),
		FirstName:    firstName,
		LastName:     lastName,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}, nil
}

// UserRepository manages user persistence.
type UserRepository interface {
	// GetByEmail retrieves a user by e-mail (case-insensitive).
	// Returns ErrNotFound if no user has the given e-mail.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// Create stores a new user.
	// Returns ErrDuplicateEmail if the e-mail is already taken.
	Create(ctx context.Context, user *User) error
}
