// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package account_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/accountd/accountd/internal/account"
	"github.com/accountd/accountd/internal/account/mocks"
	"github.com/accountd/accountd/pkg/errutil"
)

type countingRecorder struct {
	registrations map[string]int
	logins        map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{registrations: map[string]int{}, logins: map[string]int{}}
}

func (r *countingRecorder) RecordRegistration(result string) { r.registrations[result]++ }
func (r *countingRecorder) RecordLogin(result string)        { r.logins[result]++ }

func newTestService(t *testing.T, users account.UserRepository, hasher account.PasswordHasher, opts ...account.Option) *account.Service {
	t.Helper()
	svc, err := account.NewService(users, hasher, opts...)
	require.NoError(t, err)
	return svc
}

func assertFieldError(t *testing.T, resp *account.AuthResponse, code, message string) {
	t.Helper()
	require.NotNil(t, resp)
	require.Len(t, resp.Errors, 1)
	assert.True(t, resp.HasErrors())
	assert.Equal(t, code, resp.Errors[0].Code)
	assert.Equal(t, message, resp.Errors[0].Message)
	assert.Nil(t, resp.User)
}

func TestNewService_NilDependencies(t *testing.T) {
	tests := []struct {
		name        string
		users       account.UserRepository
		hasher      account.PasswordHasher
		opts        []account.Option
		expectError string
	}{
		{
			name:        "nil users repository",
			hasher:      mocks.NewMockPasswordHasher(t),
			expectError: "users repository is required",
		},
		{
			name:        "nil password hasher",
			users:       mocks.NewMockUserRepository(t),
			expectError: "password hasher is required",
		},
		{
			name:        "nil logger",
			users:       mocks.NewMockUserRepository(t),
			hasher:      mocks.NewMockPasswordHasher(t),
			opts:        []account.Option{account.WithLogger(nil)},
			expectError: "logger",
		},
		{
			name:        "nil recorder",
			users:       mocks.NewMockUserRepository(t),
			hasher:      mocks.NewMockPasswordHasher(t),
			opts:        []account.Option{account.WithRecorder(nil)},
			expectError: "recorder",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := account.NewService(tt.users, tt.hasher, tt.opts...)
			require.Error(t, err)
			assert.Nil(t, svc)
			assert.Contains(t, err.Error(), tt.expectError)
			errutil.AssertErrorCode(t, err, "ACCOUNT_INVALID_CONFIG")
		})
	}
}

func TestService_Register(t *testing.T) {
	ctx := context.Background()
	input := account.RegisterInput{FirstName: "A", LastName: "B", Email: "a@b.com", Password: "secret123"}

	t.Run("creates user with hashed password", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		hasher := mocks.NewMockPasswordHasher(t)
		rec := newCountingRecorder()
		svc := newTestService(t, users, hasher, account.WithRecorder(rec))

		users.On("GetByEmail", mock.Anything, "a@b.com").Return(nil, account.ErrNotFound)
		hasher.On("Hash", "secret123").Return("$argon2id$digest", nil)
		users.On("Create", mock.Anything, mock.MatchedBy(func(u *account.User) bool {
			return u.Email == "a@b.com" && u.FirstName == "A" && u.LastName == "B" &&
				u.PasswordHash == "$argon2id$digest"
		})).Return(nil)

		resp, err := svc.Register(ctx, input)
		require.NoError(t, err)
		require.NotNil(t, resp.User)
		assert.Empty(t, resp.Errors)
		assert.False(t, resp.HasErrors())
		assert.Equal(t, "a@b.com", resp.User.Email)
		assert.NotEqual(t, "secret123", resp.User.PasswordHash)
		assert.Equal(t, 1, rec.registrations[account.ResultOK])
	})

	t.Run("invalid email never reaches the store", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		hasher := mocks.NewMockPasswordHasher(t)
		rec := newCountingRecorder()
		svc := newTestService(t, users, hasher, account.WithRecorder(rec))

		resp, err := svc.Register(ctx, account.RegisterInput{Email: "not an email", Password: "secret123"})
		require.NoError(t, err)
		assertFieldError(t, resp, "AUTH_FAIL_EMAIL", "Invalid e-mail address.")
		users.AssertNotCalled(t, "GetByEmail", mock.Anything, mock.Anything)
		users.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		assert.Equal(t, 1, rec.registrations[account.ResultInvalidEmail])
	})

	t.Run("existing email is rejected without creating", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		hasher := mocks.NewMockPasswordHasher(t)
		svc := newTestService(t, users, hasher)

		users.On("GetByEmail", mock.Anything, "a@b.com").Return(&account.User{Email: "a@b.com"}, nil)

		resp, err := svc.Register(ctx, input)
		require.NoError(t, err)
		assertFieldError(t, resp, "AUTH_FAIL_EMAIL", "This e-mail address has already been registered.")
		users.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		hasher.AssertNotCalled(t, "Hash", mock.Anything)
	})

	t.Run("unique violation on create maps to duplicate field error", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		hasher := mocks.NewMockPasswordHasher(t)
		rec := newCountingRecorder()
		svc := newTestService(t, users, hasher, account.WithRecorder(rec))

		users.On("GetByEmail", mock.Anything, "a@b.com").Return(nil, account.ErrNotFound)
		hasher.On("Hash", "secret123").Return("$argon2id$digest", nil)
		users.On("Create", mock.Anything, mock.AnythingOfType("*account.User")).
			Return(errors.Join(account.ErrDuplicateEmail, errors.New("unique_violation")))

		resp, err := svc.Register(ctx, input)
		require.NoError(t, err)
		assertFieldError(t, resp, "AUTH_FAIL_EMAIL", "This e-mail address has already been registered.")
		assert.Equal(t, 1, rec.registrations[account.ResultDuplicateEmail])
	})

	t.Run("lookup failure propagates", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		hasher := mocks.NewMockPasswordHasher(t)
		rec := newCountingRecorder()
		svc := newTestService(t, users, hasher, account.WithRecorder(rec))

		users.On("GetByEmail", mock.Anything, "a@b.com").Return(nil, errors.New("connection refused"))

		resp, err := svc.Register(ctx, input)
		require.Error(t, err)
		assert.Nil(t, resp)
		errutil.AssertErrorCode(t, err, "ACCOUNT_REGISTER_FAILED")
		errutil.AssertErrorContext(t, err, "operation", "get user by email")
		assert.Contains(t, err.Error(), "connection refused")
		assert.Equal(t, 1, rec.registrations[account.ResultError])
	})

	t.Run("create failure propagates", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		hasher := mocks.NewMockPasswordHasher(t)
		svc := newTestService(t, users, hasher)

		users.On("GetByEmail", mock.Anything, "a@b.com").Return(nil, account.ErrNotFound)
		hasher.On("Hash", "secret123").Return("$argon2id$digest", nil)
		users.On("Create", mock.Anything, mock.AnythingOfType("*account.User")).Return(errors.New("serialization failure"))

		resp, err := svc.Register(ctx, input)
		require.Error(t, err)
		assert.Nil(t, resp)
		errutil.AssertErrorCode(t, err, "ACCOUNT_REGISTER_FAILED")
		errutil.AssertErrorContext(t, err, "operation", "create user")
	})

	t.Run("hash failure propagates", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		hasher := mocks.NewMockPasswordHasher(t)
		svc := newTestService(t, users, hasher)

		users.On("GetByEmail", mock.Anything, "a@b.com").Return(nil, account.ErrNotFound)
		hasher.On("Hash", "secret123").Return("", errors.New("entropy source failed"))

		_, err := svc.Register(ctx, account.RegisterInput{Email: "a@b.com", Password: "secret123"})
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "ACCOUNT_REGISTER_FAILED")
		errutil.AssertErrorContext(t, err, "operation", "hash password")
		users.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("cancelled context abandons before create", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		hasher := mocks.NewMockPasswordHasher(t)
		svc := newTestService(t, users, hasher)

		cctx, cancel := context.WithCancel(ctx)
		users.On("GetByEmail", mock.Anything, "a@b.com").
			Run(func(mock.Arguments) { cancel() }).
			Return(nil, account.ErrNotFound)
		hasher.On("Hash", "secret123").Return("$argon2id$digest", nil)

		_, err := svc.Register(cctx, input)
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
		users.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})
}

func TestService_Login(t *testing.T) {
	ctx := context.Background()
	user := &account.User{FirstName: "A", LastName: "B", Email: "a@b.com", PasswordHash: "$argon2id$digest"}

	t.Run("success writes session", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		hasher := mocks.NewMockPasswordHasher(t)
		session := mocks.NewMockSession(t)
		rec := newCountingRecorder()
		svc := newTestService(t, users, hasher, account.WithRecorder(rec))

		users.On("GetByEmail", mock.Anything, "a@b.com").Return(user, nil)
		hasher.On("Verify", "secret123", "$argon2id$digest").Return(true, nil)
		session.On("SetUserEmail", mock.Anything, "a@b.com").Return(nil)

		resp, err := svc.Login(ctx, account.LoginInput{Email: "a@b.com", Password: "secret123"}, session)
		require.NoError(t, err)
		require.NotNil(t, resp.User)
		assert.Empty(t, resp.Errors)
		assert.Equal(t, "a@b.com", resp.User.Email)
		assert.Equal(t, 1, rec.logins[account.ResultOK])
	})

	t.Run("unknown email does not touch session", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		hasher := mocks.NewMockPasswordHasher(t)
		session := mocks.NewMockSession(t)
		rec := newCountingRecorder()
		svc := newTestService(t, users, hasher, account.WithRecorder(rec))

		users.On("GetByEmail", mock.Anything, "nobody@b.com").Return(nil, account.ErrNotFound)

		resp, err := svc.Login(ctx, account.LoginInput{Email: "nobody@b.com", Password: "secret123"}, session)
		require.NoError(t, err)
		assertFieldError(t, resp, "AUTH_FAIL_EMAIL", "E-mail address not found.")
		session.AssertNotCalled(t, "SetUserEmail", mock.Anything, mock.Anything)
		hasher.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything)
		assert.Equal(t, 1, rec.logins[account.ResultEmailNotFound])
	})

	t.Run("wrong password does not touch session", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		hasher := mocks.NewMockPasswordHasher(t)
		session := mocks.NewMockSession(t)
		rec := newCountingRecorder()
		svc := newTestService(t, users, hasher, account.WithRecorder(rec))

		users.On("GetByEmail", mock.Anything, "a@b.com").Return(user, nil)
		hasher.On("Verify", "wrong", "$argon2id$digest").Return(false, nil)

		resp, err := svc.Login(ctx, account.LoginInput{Email: "a@b.com", Password: "wrong"}, session)
		require.NoError(t, err)
		assertFieldError(t, resp, "AUTH_FAIL_PASSWORD", "Password could not be verified.")
		session.AssertNotCalled(t, "SetUserEmail", mock.Anything, mock.Anything)
		assert.Equal(t, 1, rec.logins[account.ResultBadPassword])
	})

	t.Run("corrupt stored hash propagates", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		hasher := mocks.NewMockPasswordHasher(t)
		session := mocks.NewMockSession(t)
		svc := newTestService(t, users, hasher)

		users.On("GetByEmail", mock.Anything, "a@b.com").Return(user, nil)
		hasher.On("Verify", "secret123", "$argon2id$digest").Return(false, errors.New("invalid hash format"))

		resp, err := svc.Login(ctx, account.LoginInput{Email: "a@b.com", Password: "secret123"}, session)
		require.Error(t, err)
		assert.Nil(t, resp)
		errutil.AssertErrorCode(t, err, "ACCOUNT_LOGIN_FAILED")
		errutil.AssertErrorContext(t, err, "operation", "verify password")
	})

	t.Run("lookup failure propagates", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		hasher := mocks.NewMockPasswordHasher(t)
		session := mocks.NewMockSession(t)
		svc := newTestService(t, users, hasher)

		users.On("GetByEmail", mock.Anything, "a@b.com").Return(nil, errors.New("connection refused"))

		_, err := svc.Login(ctx, account.LoginInput{Email: "a@b.com", Password: "secret123"}, session)
		require.Error(t, err)
		errutil.AssertErrorContext(t, err, "operation", "get user by email")
	})

	t.Run("session write failure propagates", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		hasher := mocks.NewMockPasswordHasher(t)
		session := mocks.NewMockSession(t)
		svc := newTestService(t, users, hasher)

		users.On("GetByEmail", mock.Anything, "a@b.com").Return(user, nil)
		hasher.On("Verify", "secret123", "$argon2id$digest").Return(true, nil)
		session.On("SetUserEmail", mock.Anything, "a@b.com").Return(errors.New("session store down"))

		resp, err := svc.Login(ctx, account.LoginInput{Email: "a@b.com", Password: "secret123"}, session)
		require.Error(t, err)
		assert.Nil(t, resp)
		errutil.AssertErrorContext(t, err, "operation", "set session user")
	})

	t.Run("nil session is rejected", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		hasher := mocks.NewMockPasswordHasher(t)
		svc := newTestService(t, users, hasher)

		_, err := svc.Login(ctx, account.LoginInput{Email: "a@b.com", Password: "secret123"}, nil)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "ACCOUNT_INVALID_SESSION")
	})
}

func TestService_CurrentUser(t *testing.T) {
	ctx := context.Background()

	t.Run("anonymous session returns nil without lookup", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		session := mocks.NewMockSession(t)
		svc := newTestService(t, users, mocks.NewMockPasswordHasher(t))

		session.On("UserEmail", mock.Anything).Return("", false, nil)

		user, err := svc.CurrentUser(ctx, session)
		require.NoError(t, err)
		assert.Nil(t, user)
		users.AssertNotCalled(t, "GetByEmail", mock.Anything, mock.Anything)
	})

	t.Run("returns stored user", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		session := mocks.NewMockSession(t)
		svc := newTestService(t, users, mocks.NewMockPasswordHasher(t))

		stored := &account.User{Email: "a@b.com"}
		session.On("UserEmail", mock.Anything).Return("a@b.com", true, nil)
		users.On("GetByEmail", mock.Anything, "a@b.com").Return(stored, nil)

		user, err := svc.CurrentUser(ctx, session)
		require.NoError(t, err)
		assert.Same(t, stored, user)
	})

	t.Run("deleted user reads as nil", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		session := mocks.NewMockSession(t)
		svc := newTestService(t, users, mocks.NewMockPasswordHasher(t))

		session.On("UserEmail", mock.Anything).Return("gone@b.com", true, nil)
		users.On("GetByEmail", mock.Anything, "gone@b.com").Return(nil, account.ErrNotFound)

		user, err := svc.CurrentUser(ctx, session)
		require.NoError(t, err)
		assert.Nil(t, user)
	})

	t.Run("session failure propagates", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		session := mocks.NewMockSession(t)
		svc := newTestService(t, users, mocks.NewMockPasswordHasher(t))

		session.On("UserEmail", mock.Anything).Return("", false, errors.New("session store down"))

		_, err := svc.CurrentUser(ctx, session)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "ACCOUNT_CURRENT_USER_FAILED")
	})

	t.Run("store failure propagates", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		session := mocks.NewMockSession(t)
		svc := newTestService(t, users, mocks.NewMockPasswordHasher(t))

		session.On("UserEmail", mock.Anything).Return("a@b.com", true, nil)
		users.On("GetByEmail", mock.Anything, "a@b.com").Return(nil, errors.New("timeout"))

		_, err := svc.CurrentUser(ctx, session)
		require.Error(t, err)
		errutil.AssertErrorContext(t, err, "operation", "get user by email")
	})
}

func TestService_RegisterLoginScenario(t *testing.T) {
	ctx := context.Background()
	users := newMemUserRepo()
	hasher, err := account.NewBcryptHasher(bcrypt.MinCost)
	require.NoError(t, err)
	svc := newTestService(t, users, hasher)
	session := &memSession{}

	me, err := svc.CurrentUser(ctx, session)
	require.NoError(t, err)
	assert.Nil(t, me, "fresh session has no user")

	resp, err := svc.Register(ctx, account.RegisterInput{FirstName: "A", LastName: "B", Email: "a@b.com", Password: "secret123"})
	require.NoError(t, err)
	assert.Empty(t, resp.Errors)
	require.NotNil(t, resp.User)
	assert.Equal(t, "a@b.com", resp.User.Email)
	assert.NotEqual(t, "secret123", resp.User.PasswordHash)
	assert.Equal(t, 0, session.writes, "registration does not log in")

	resp, err = svc.Register(ctx, account.RegisterInput{FirstName: "A", LastName: "B", Email: "a@b.com", Password: "other"})
	require.NoError(t, err)
	assertFieldError(t, resp, "AUTH_FAIL_EMAIL", "This e-mail address has already been registered.")
	assert.Equal(t, 1, users.count())

	resp, err = svc.Login(ctx, account.LoginInput{Email: "a@b.com", Password: "wrong"}, session)
	require.NoError(t, err)
	assertFieldError(t, resp, "AUTH_FAIL_PASSWORD", "Password could not be verified.")
	assert.Equal(t, 0, session.writes)

	resp, err = svc.Login(ctx, account.LoginInput{Email: "a@b.com", Password: "secret123"}, session)
	require.NoError(t, err)
	require.NotNil(t, resp.User)
	assert.Equal(t, "a@b.com", resp.User.Email)
	assert.Equal(t, "a@b.com", session.email)

	first, err := svc.CurrentUser(ctx, session)
	require.NoError(t, err)
	second, err := svc.CurrentUser(ctx, session)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, first, second, "current user lookup is idempotent")
	assert.Equal(t, resp.User.ID, first.ID)
}

func TestService_EmptyPasswordIsAnOrdinaryPassword(t *testing.T) {
	ctx := context.Background()
	argon, err := account.NewArgon2idHasherWithParams(account.Argon2idParams{
		Time: 1, Memory: 1024, Threads: 1, SaltLen: 16, KeyLen: 32,
	})
	require.NoError(t, err)
	bcryptHasher, err := account.NewBcryptHasher(bcrypt.MinCost)
	require.NoError(t, err)

	for name, hasher := range map[string]account.PasswordHasher{"argon2id": argon, "bcrypt": bcryptHasher} {
		t.Run(name, func(t *testing.T) {
			svc := newTestService(t, newMemUserRepo(), hasher)
			session := &memSession{}

			resp, err := svc.Register(ctx, account.RegisterInput{Email: "a@b.com", Password: ""})
			require.NoError(t, err)
			require.NotNil(t, resp)
			assert.Empty(t, resp.Errors)
			require.NotNil(t, resp.User)

			resp, err = svc.Login(ctx, account.LoginInput{Email: "a@b.com", Password: "x"}, session)
			require.NoError(t, err)
			assertFieldError(t, resp, "AUTH_FAIL_PASSWORD", "Password could not be verified.")

			resp, err = svc.Login(ctx, account.LoginInput{Email: "a@b.com", Password: ""}, session)
			require.NoError(t, err)
			require.NotNil(t, resp.User)
			assert.Equal(t, "a@b.com", session.email)
		})
	}
}

func TestService_InvalidEmailSkipsLookup(t *testing.T) {
	users := newMemUserRepo()
	svc := newTestService(t, users, mocks.NewMockPasswordHasher(t))

	for _, email := range []string{"", "plain", "a@", "@b.com", "a b@c.com"} {
		resp, err := svc.Register(context.Background(), account.RegisterInput{Email: email, Password: "pw"})
		require.NoError(t, err)
		assertFieldError(t, resp, "AUTH_FAIL_EMAIL", "Invalid e-mail address.")
	}
	assert.Zero(t, users.lookups)
}

func TestService_LogsWithoutSecrets(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	users := newMemUserRepo()
	hasher, err := account.NewBcryptHasher(bcrypt.MinCost)
	require.NoError(t, err)
	svc := newTestService(t, users, hasher, account.WithLogger(logger))
	session := &memSession{}

	_, err = svc.Register(context.Background(), account.RegisterInput{Email: "a@b.com", Password: "secret123"})
	require.NoError(t, err)
	_, err = svc.Login(context.Background(), account.LoginInput{Email: "a@b.com", Password: "wrong-pass"}, session)
	require.NoError(t, err)
	_, err = svc.Login(context.Background(), account.LoginInput{Email: "a@b.com", Password: "secret123"}, session)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "user registered")
	assert.Contains(t, out, "login rejected")
	assert.Contains(t, out, "user logged in")
	assert.NotContains(t, out, "secret123")
	assert.NotContains(t, out, "wrong-pass")
	assert.NotContains(t, out, "$2a$")
}
