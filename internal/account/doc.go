// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

// Package account implements the credential-management core of accountd:
// registration, login and current-session lookup.
//
// # Result-with-errors
//
// Register and Login never report an expected failure (bad e-mail syntax,
// duplicate e-mail, unknown e-mail, wrong password) through their error
// return. Those outcomes come back as FieldError values inside an
// AuthResponse. The error return is reserved for infrastructure failures
// from the collaborators (UserRepository, Session, PasswordHasher), which
// are wrapped with oops and propagated without retry.
//
// # Collaborators
//
// Service receives its UserRepository and PasswordHasher at construction
// time; Login and CurrentUser receive the per-connection Session as an
// argument. Nothing is looked up from ambient state.
//
// Storage implementations live in the postgres and sqlite subpackages.
package account
