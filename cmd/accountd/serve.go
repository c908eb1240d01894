// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package main

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/accountd/accountd/internal/account"
	"github.com/accountd/accountd/internal/config"
	"github.com/accountd/accountd/internal/logging"
	"github.com/accountd/accountd/internal/observability"
	"github.com/accountd/accountd/internal/web"
)

const shutdownTimeout = 5 * time.Second

// ServeDeps contains injectable dependencies for the serve command.
// Nil fields use their default implementations.
type ServeDeps struct {
	// Listen opens the API listener.
	// Default: net.Listen
	Listen func(network, addr string) (net.Listener, error)
}

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the account API server",
		Long: `Start the HTTP API serving /register, /login and /me, together with
the metrics and health endpoints.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServeWithDeps(cmd.Context(), cmd, nil)
		},
	}

	d := config.Default()
	fs := cmd.Flags()
	fs.String("http-addr", d.HTTP.Addr, "API listen address")
	fs.String("metrics-addr", d.Metrics.Addr, "metrics/health HTTP address (empty = disabled)")
	fs.String("session-cookie-name", d.Session.CookieName, "session cookie name")
	fs.Duration("session-ttl", d.Session.TTL, "session lifetime")
	fs.Bool("session-secure-cookie", d.Session.SecureCookie, "mark the session cookie Secure")
	fs.Duration("session-purge-interval", d.Session.PurgeInterval, "interval between expired-session purges")
	addHasherFlags(fs)
	addStorageFlags(fs)

	return cmd
}

func runServeWithDeps(ctx context.Context, cmd *cobra.Command, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	if deps.Listen == nil {
		deps.Listen = net.Listen
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := setupLogging(cfg.Log)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	slog.Info("starting accountd",
		"version", version,
		"http_addr", cfg.HTTP.Addr,
		"storage_driver", cfg.Storage.Driver,
	)

	b, err := openBackend(ctx, cfg.Storage)
	if err != nil {
		return oops.With("operation", "open storage").Wrap(err)
	}
	defer b.Close()

	hasher, err := newHasher(cfg.Hasher)
	if err != nil {
		return err
	}

	var ready atomic.Bool
	var metrics *observability.Metrics
	var obsServer *observability.Server
	if cfg.Metrics.Addr != "" {
		obsServer = observability.NewServer(cfg.Metrics.Addr, ready.Load)
		obsErrCh, startErr := obsServer.Start()
		if startErr != nil {
			return oops.Code("OBSERVABILITY_START_FAILED").Wrap(startErr)
		}
		go monitorServerErrors(ctx, cancel, obsErrCh, "observability")
		metrics = obsServer.Metrics()
	} else {
		metrics = observability.NewMetrics(prometheus.NewRegistry())
	}

	svc, err := account.NewService(b.users, hasher,
		account.WithLogger(logger),
		account.WithRecorder(metrics),
	)
	if err != nil {
		return err
	}

	handler, err := web.NewHandler(svc, b.sessions, web.SessionConfig{
		CookieName: cfg.Session.CookieName,
		TTL:        cfg.Session.TTL,
		Secure:     cfg.Session.SecureCookie,
	}, web.WithLogger(logger), web.WithObserver(metrics))
	if err != nil {
		return err
	}

	ln, err := deps.Listen("tcp", cfg.HTTP.Addr)
	if err != nil {
		return oops.Code("HTTP_LISTEN_FAILED").With("addr", cfg.HTTP.Addr).Wrap(err)
	}

	go purgeSessions(ctx, b.sessions, cfg.Session.PurgeInterval, metrics, logger)

	ready.Store(true)
	cmd.Println("accountd listening on " + ln.Addr().String())
	slog.Info("accountd ready", "http_addr", ln.Addr().String())

	serveErr := web.Serve(ctx, ln, handler, shutdownTimeout)
	ready.Store(false)

	if obsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := obsServer.Stop(shutdownCtx); err != nil {
			slog.Warn("error stopping observability server", "error", err)
		}
	}

	if serveErr != nil {
		return serveErr
	}
	slog.Info("shutdown complete")
	return nil
}

// setupLogging installs the default logger. cfg has already been validated.
func setupLogging(cfg config.LogConfig) *slog.Logger {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	return logging.SetDefault("accountd", version, cfg.Format, level)
}

// monitorServerErrors cancels ctx when a background server fails.
// It exits when an error is received, the channel is closed, or ctx is done.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
