// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

// Package web exposes the account operations as a small JSON-over-HTTP API.
// Each request builds its own session bound to the client's cookie token.
package web

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/samber/oops"

	"github.com/accountd/accountd/internal/account"
	"github.com/accountd/accountd/pkg/errutil"
)

const maxBodyBytes = 64 << 10

const msgInvalidRequest = "Request body is invalid."

// Observer records served requests.
type Observer interface {
	ObserveHTTP(route string, status int, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObserveHTTP(string, int, time.Duration) {}

// SessionConfig controls the session cookie.
type SessionConfig struct {
	CookieName string
	TTL        time.Duration
	Secure     bool
}

// Handler serves the account API.
type Handler struct {
	svc      *account.Service
	sessions account.SessionRepository
	cfg      SessionConfig
	schemas  *Schemas
	logger   *slog.Logger
	observer Observer
	mux      *http.ServeMux
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) { h.logger = logger }
}

// WithObserver sets the request observer.
func WithObserver(o Observer) Option {
	return func(h *Handler) { h.observer = o }
}

// NewHandler creates the API handler.
func NewHandler(svc *account.Service, sessions account.SessionRepository, cfg SessionConfig, opts ...Option) (*Handler, error) {
	if svc == nil {
		return nil, oops.Code("WEB_INVALID_CONFIG").Errorf("account service is required")
	}
	if sessions == nil {
		return nil, oops.Code("WEB_INVALID_CONFIG").Errorf("session repository is required")
	}
	if cfg.CookieName == "" {
		return nil, oops.Code("WEB_INVALID_CONFIG").Errorf("cookie name is required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = account.DefaultSessionTTL
	}

	schemas, err := NewSchemas()
	if err != nil {
		return nil, err
	}

	h := &Handler{
		svc:      svc,
		sessions: sessions,
		cfg:      cfg,
		schemas:  schemas,
		logger:   slog.Default(),
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(h)
	}

	mux := http.NewServeMux()
	mux.Handle("POST /register", h.instrument("/register", h.handleRegister))
	mux.Handle("POST /login", h.instrument("/login", h.handleLogin))
	mux.Handle("GET /me", h.instrument("/me", h.handleMe))
	mux.Handle("GET /schema", h.instrument("/schema", h.handleSchema))
	h.mux = mux

	return h, nil
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}
	req, err := h.schemas.decodeRegister(body)
	if err != nil {
		h.badRequest(w, r, err)
		return
	}

	resp, err := h.svc.Register(r.Context(), account.RegisterInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  req.Password,
	})
	if err != nil {
		h.internalError(w, r, "register failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, newAuthResponseView(resp))
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}
	req, err := h.schemas.decodeLogin(body)
	if err != nil {
		h.badRequest(w, r, err)
		return
	}

	session := h.session(r)
	before := session.Token()

	resp, err := h.svc.Login(r.Context(), account.LoginInput{Email: req.Email, Password: req.Password}, session)
	if err != nil {
		h.internalError(w, r, "login failed", err)
		return
	}
	if token := session.Token(); token != "" && token != before {
		h.setCookie(w, token)
	}
	h.writeJSON(w, http.StatusOK, newAuthResponseView(resp))
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := h.svc.CurrentUser(r.Context(), h.session(r))
	if err != nil {
		h.internalError(w, r, "current user lookup failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, newUserView(user))
}

func (h *Handler) handleSchema(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, h.schemas.Document())
}

func (h *Handler) session(r *http.Request) *account.StoredSession {
	var token string
	if c, err := r.Cookie(h.cfg.CookieName); err == nil {
		token = c.Value
	}
	return account.NewStoredSession(h.sessions, token, h.cfg.TTL)
}

func (h *Handler) setCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.cfg.TTL.Seconds()),
		HttpOnly: true,
		Secure:   h.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.badRequest(w, r, oops.Code(CodeInvalidRequest).With("operation", "read body").Wrap(err))
		return nil, false
	}
	return body, true
}

func (h *Handler) badRequest(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.DebugContext(r.Context(), "rejected request body", "path", r.URL.Path, "error", err)
	h.writeJSON(w, http.StatusBadRequest, AuthResponseView{
		Errors: []FieldErrorView{{Code: CodeInvalidRequest, Message: msgInvalidRequest}},
	})
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	errutil.LogError(r.Context(), h.logger, msg, err, "path", r.URL.Path)
	h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("failed to write response", "error", err)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (h *Handler) instrument(route string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		h.observer.ObserveHTTP(route, rec.status, time.Since(start))
	})
}

// Serve serves h on ln until ctx is cancelled, then shuts down within
// shutdownTimeout.
func Serve(ctx context.Context, ln net.Listener, h http.Handler, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return oops.Code("HTTP_SERVE_FAILED").With("addr", ln.Addr().String()).Wrap(err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return oops.Code("HTTP_SHUTDOWN_FAILED").Wrap(err)
	}
	<-errCh
	return nil
}
