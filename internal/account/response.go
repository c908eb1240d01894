// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package account

// Field error codes.
const (
	CodeAuthFailEmail    = "AUTH_FAIL_EMAIL"
	CodeAuthFailPassword = "AUTH_FAIL_PASSWORD"
)

// Field error messages.
const (
	MsgInvalidEmail       = "Invalid e-mail address."
	MsgEmailRegistered    = "This e-mail address has already been registered."
	MsgEmailNotFound      = "E-mail address not found."
	MsgPasswordUnverified = "Password could not be verified."
)

// FieldError is a user-facing validation or authentication failure.
type FieldError struct {
	Code    string
	Message string
}

// Error implements error.
func (e FieldError) Error() string {
	return e.Code + ": " + e.Message
}

var (
	errInvalidEmail       = FieldError{Code: CodeAuthFailEmail, Message: MsgInvalidEmail}
	errEmailRegistered    = FieldError{Code: CodeAuthFailEmail, Message: MsgEmailRegistered}
	errEmailNotFound      = FieldError{Code: CodeAuthFailEmail, Message: MsgEmailNotFound}
	errPasswordUnverified = FieldError{Code: CodeAuthFailPassword, Message: MsgPasswordUnverified}
)

// AuthResponse is the result of Register and Login.
// Either Errors is non-empty or User is set, never both.
type AuthResponse struct {
	Errors []FieldError
	User   *User
}

// HasErrors reports whether the response carries field errors.
func (r *AuthResponse) HasErrors() bool {
	return len(r.Errors) > 0
}

func failed(errs ...FieldError) *AuthResponse {
	return &AuthResponse{Errors: errs}
}

func succeeded(user *User) *AuthResponse {
	return &AuthResponse{User: user}
}
