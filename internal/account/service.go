// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package account

import (
	"context"
	"errors"
	"log/slog"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/accountd/accountd/internal/account"

// Outcome labels reported to the Recorder.
const (
	ResultOK             = "ok"
	ResultInvalidEmail   = "invalid_email"
	ResultDuplicateEmail = "duplicate_email"
	ResultEmailNotFound  = "email_not_found"
	ResultBadPassword    = "bad_password"
	ResultError          = "error"
)

// RegisterInput carries the registration form.
type RegisterInput struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
}

// LoginInput carries the login form.
type LoginInput struct {
	Email    string
	Password string
}

// Recorder receives operation outcomes, typically for metrics.
type Recorder interface {
	RecordRegistration(result string)
	RecordLogin(result string)
}

type nopRecorder struct{}

func (nopRecorder) RecordRegistration(string) {}
func (nopRecorder) RecordLogin(string)        {}

// Service provides the registration, login and current-user operations.
// A Service holds no mutable state and is safe for concurrent use.
type Service struct {
	users    UserRepository
	hasher   PasswordHasher
	logger   *slog.Logger
	tracer   trace.Tracer
	recorder Recorder
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger. Passwords, hashes and session contents are
// never logged.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithTracer sets the tracer used for operation spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) { s.tracer = tracer }
}

// WithRecorder sets the outcome recorder.
func WithRecorder(recorder Recorder) Option {
	return func(s *Service) { s.recorder = recorder }
}

// NewService creates a new Service.
func NewService(users UserRepository, hasher PasswordHasher, opts ...Option) (*Service, error) {
	if users == nil {
		return nil, oops.Code("ACCOUNT_INVALID_CONFIG").Errorf("users repository is required")
	}
	if hasher == nil {
		return nil, oops.Code("ACCOUNT_INVALID_CONFIG").Errorf("password hasher is required")
	}

	s := &Service{
		users:    users,
		hasher:   hasher,
		logger:   slog.Default(),
		tracer:   otel.Tracer(tracerName),
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		return nil, oops.Code("ACCOUNT_INVALID_CONFIG").Errorf("logger is required")
	}
	if s.tracer == nil {
		return nil, oops.Code("ACCOUNT_INVALID_CONFIG").Errorf("tracer is required")
	}
	if s.recorder == nil {
		return nil, oops.Code("ACCOUNT_INVALID_CONFIG").Errorf("recorder is required")
	}
	return s, nil
}

// Register validates the e-mail, checks it is unused, hashes the password and
// persists a new user. No session is established.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*AuthResponse, error) {
	ctx, span := s.tracer.Start(ctx, "account.Register")
	defer span.End()

	if !ValidateEmail(in.Email) {
		return s.registerRejected(ctx, span, ResultInvalidEmail, errInvalidEmail), nil
	}

	existing, err := s.users.GetByEmail(ctx, in.Email)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, s.registerFailed(span, "get user by email", err)
	}
	if err == nil && existing != nil {
		return s.registerRejected(ctx, span, ResultDuplicateEmail, errEmailRegistered), nil
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, s.registerFailed(span, "hash password", err)
	}

	user, err := NewUser(in.FirstName, in.LastName, in.Email, hash)
	if err != nil {
		return nil, s.registerFailed(span, "build user", err)
	}

	// Abandon before the write if the caller has gone away.
	if err := ctx.Err(); err != nil {
		return nil, s.registerFailed(span, "create user", err)
	}

	if err := s.users.Create(ctx, user); err != nil {
		// A concurrent registration won the unique index.
		if errors.Is(err, ErrDuplicateEmail) {
			return s.registerRejected(ctx, span, ResultDuplicateEmail, errEmailRegistered), nil
		}
		return nil, s.registerFailed(span, "create user", err)
	}

	s.recorder.RecordRegistration(ResultOK)
	span.SetAttributes(attribute.String("account.result", ResultOK))
	s.logger.InfoContext(ctx, "user registered", "user_id", user.ID.String())

	return succeeded(user), nil
}

func (s *Service) registerRejected(ctx context.Context, span trace.Span, result string, fe FieldError) *AuthResponse {
	s.recorder.RecordRegistration(result)
	span.SetAttributes(attribute.String("account.result", result))
	s.logger.DebugContext(ctx, "registration rejected", "code", fe.Code, "result", result)
	return failed(fe)
}

func (s *Service) registerFailed(span trace.Span, operation string, err error) error {
	s.recorder.RecordRegistration(ResultError)
	return spanError(span, oops.Code("ACCOUNT_REGISTER_FAILED").
		With("operation", operation).
		Wrap(err))
}

// Login verifies the password of the user with the given e-mail and, on
// success, stores that e-mail in the session. Email-not-found and
// password-mismatch are reported with distinct codes.
func (s *Service) Login(ctx context.Context, in LoginInput, session Session) (*AuthResponse, error) {
	ctx, span := s.tracer.Start(ctx, "account.Login")
	defer span.End()

	if session == nil {
		return nil, s.loginFailed(span, "check session",
			oops.Code("ACCOUNT_INVALID_SESSION").Errorf("session is required"))
	}

	user, err := s.users.GetByEmail(ctx, in.Email)
	if errors.Is(err, ErrNotFound) || (err == nil && user == nil) {
		return s.loginRejected(ctx, span, ResultEmailNotFound, errEmailNotFound), nil
	}
	if err != nil {
		return nil, s.loginFailed(span, "get user by email", err)
	}

	valid, err := s.hasher.Verify(in.Password, user.PasswordHash)
	if err != nil {
		return nil, s.loginFailed(span, "verify password", err)
	}
	if !valid {
		return s.loginRejected(ctx, span, ResultBadPassword, errPasswordUnverified), nil
	}

	if err := ctx.Err(); err != nil {
		return nil, s.loginFailed(span, "set session user", err)
	}

	if err := session.SetUserEmail(ctx, user.Email); err != nil {
		return nil, s.loginFailed(span, "set session user", err)
	}

	s.recorder.RecordLogin(ResultOK)
	span.SetAttributes(attribute.String("account.result", ResultOK))
	s.logger.InfoContext(ctx, "user logged in", "user_id", user.ID.String())

	return succeeded(user), nil
}

func (s *Service) loginRejected(ctx context.Context, span trace.Span, result string, fe FieldError) *AuthResponse {
	s.recorder.RecordLogin(result)
	span.SetAttributes(attribute.String("account.result", result))
	s.logger.DebugContext(ctx, "login rejected", "code", fe.Code, "result", result)
	return failed(fe)
}

func (s *Service) loginFailed(span trace.Span, operation string, err error) error {
	s.recorder.RecordLogin(ResultError)
	return spanError(span, oops.Code("ACCOUNT_LOGIN_FAILED").
		With("operation", operation).
		Wrap(err))
}

// CurrentUser returns the user whose e-mail is stored in the session, or nil
// if the session is anonymous or the user no longer exists.
func (s *Service) CurrentUser(ctx context.Context, session Session) (*User, error) {
	ctx, span := s.tracer.Start(ctx, "account.CurrentUser")
	defer span.End()

	if session == nil {
		return nil, nil
	}

	email, ok, err := session.UserEmail(ctx)
	if err != nil {
		return nil, spanError(span, oops.Code("ACCOUNT_CURRENT_USER_FAILED").
			With("operation", "get session user").
			Wrap(err))
	}
	if !ok {
		return nil, nil
	}

	user, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, spanError(span, oops.Code("ACCOUNT_CURRENT_USER_FAILED").
			With("operation", "get user by email").
			Wrap(err))
	}
	return user, nil
}

func spanError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
