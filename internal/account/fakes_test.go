// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package account_test

import (
	"context"
	"strings"
	"sync"

	"github.com/accountd/accountd/internal/account"
)

// memUserRepo is an in-memory UserRepository enforcing e-mail uniqueness.
type memUserRepo struct {
	mu      sync.Mutex
	byEmail map[string]account.User
	lookups int
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{byEmail: make(map[string]account.User)}
}

func (r *memUserRepo) GetByEmail(_ context.Context, email string) (*account.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookups++
	u, ok := r.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, account.ErrNotFound
	}
	return &u, nil
}

func (r *memUserRepo) Create(_ context.Context, user *account.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := strings.ToLower(user.Email)
	if _, ok := r.byEmail[key]; ok {
		return account.ErrDuplicateEmail
	}
	r.byEmail[key] = *user
	return nil
}

func (r *memUserRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byEmail)
}

// memSession is an in-memory Session.
type memSession struct {
	email  string
	set    bool
	writes int
}

func (s *memSession) UserEmail(context.Context) (string, bool, error) {
	return s.email, s.set, nil
}

func (s *memSession) SetUserEmail(_ context.Context, email string) error {
	s.email = email
	s.set = true
	s.writes++
	return nil
}
