// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package web

import (
	"time"

	"github.com/accountd/accountd/internal/account"
)

// RegisterRequest is the body of POST /register.
type RegisterRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

// LoginRequest is the body of POST /login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UserView is the public projection of a user. It never carries the
// password hash.
type UserView struct {
	ID        string    `json:"id"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

// FieldErrorView is a user-facing error.
type FieldErrorView struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// AuthResponseView is the body returned by register and login.
type AuthResponseView struct {
	Errors []FieldErrorView `json:"errors,omitempty"`
	User   *UserView        `json:"user,omitempty"`
}

// CodeInvalidRequest marks a body the transport could not accept.
const CodeInvalidRequest = "INVALID_REQUEST"

func newUserView(u *account.User) *UserView {
	if u == nil {
		return nil
	}
	return &UserView{
		ID:        u.ID.String(),
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
	}
}

func newAuthResponseView(r *account.AuthResponse) AuthResponseView {
	var view AuthResponseView
	for _, fe := range r.Errors {
		view.Errors = append(view.Errors, FieldErrorView{Code: fe.Code, Message: fe.Message})
	}
	view.User = newUserView(r.User)
	return view
}
