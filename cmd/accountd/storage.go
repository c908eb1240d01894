// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package main

import (
	"context"
	"log/slog"
	"math"
	"path/filepath"

	"github.com/samber/oops"

	"github.com/accountd/accountd/internal/account"
	"github.com/accountd/accountd/internal/account/postgres"
	"github.com/accountd/accountd/internal/account/sqlite"
	"github.com/accountd/accountd/internal/config"
	"github.com/accountd/accountd/internal/store"
	"github.com/accountd/accountd/internal/xdg"
)

const defaultSQLiteFile = "accountd.db"

// backend is an open pair of repositories and the handle that owns them.
type backend struct {
	users    account.UserRepository
	sessions account.SessionRepository
	close    func()
}

func (b *backend) Close() {
	if b.close != nil {
		b.close()
	}
}

// openBackend opens the repositories selected by cfg.
func openBackend(ctx context.Context, cfg config.StorageConfig) (*backend, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return openPostgres(ctx, cfg.DSN)
	case config.DriverSQLite:
		return openSQLite(ctx, cfg.DSN)
	default:
		return nil, oops.Code("CONFIG_INVALID").With("key", "storage.driver").
			Errorf("unsupported storage driver %q", cfg.Driver)
	}
}

func openPostgres(ctx context.Context, dsn string) (*backend, error) {
	pool, err := store.Connect(ctx, dsn, store.DefaultConnectOptions)
	if err != nil {
		return nil, err
	}
	warnPendingMigrations(dsn)

	return &backend{
		users:    postgres.NewUserRepository(pool),
		sessions: postgres.NewSessionRepository(pool),
		close:    pool.Close,
	}, nil
}

// warnPendingMigrations logs when the schema is behind the binary.
func warnPendingMigrations(dsn string) {
	m, err := store.NewMigrator(dsn)
	if err != nil {
		slog.Warn("could not check migrations", "error", err)
		return
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			slog.Debug("error closing migrator", "error", closeErr)
		}
	}()

	pending, err := m.PendingMigrations()
	if err != nil {
		slog.Warn("could not check migrations", "error", err)
		return
	}
	if len(pending) > 0 {
		slog.Warn("database has pending migrations, run 'accountd migrate up'", "pending", pending)
	}
}

func openSQLite(ctx context.Context, path string) (*backend, error) {
	if path == "" {
		dir, err := xdg.DataDir()
		if err != nil {
			return nil, err
		}
		if err := xdg.EnsureDir(dir); err != nil {
			return nil, err
		}
		path = filepath.Join(dir, defaultSQLiteFile)
	}

	db, err := sqlite.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	slog.Debug("opened sqlite database", "path", path)

	return &backend{
		users:    sqlite.NewUserRepository(db),
		sessions: sqlite.NewSessionRepository(db),
		close: func() {
			if err := db.Close(); err != nil {
				slog.Warn("error closing sqlite database", "error", err)
			}
		},
	}, nil
}

// newHasher builds the password hasher. The configured algorithm hashes new
// passwords; digests of the other algorithm still verify.
func newHasher(cfg config.HasherConfig) (account.PasswordHasher, error) {
	bcryptHasher, err := account.NewBcryptHasher(cfg.BcryptCost)
	if err != nil {
		return nil, err
	}
	argon, err := account.NewArgon2idHasherWithParams(argon2Params(cfg))
	if err != nil {
		return nil, err
	}

	var h *account.MultiHasher
	switch cfg.Algorithm {
	case config.AlgorithmBcrypt:
		h, err = account.NewMultiHasher(bcryptHasher, argon)
	case config.AlgorithmArgon2id, "":
		h, err = account.NewMultiHasher(argon, bcryptHasher)
	default:
		return nil, oops.Code("CONFIG_INVALID").With("key", "hasher.algorithm").
			Errorf("unsupported hashing algorithm %q", cfg.Algorithm)
	}
	if err != nil {
		return nil, err
	}
	return h, nil
}

// argon2Params maps the argon2 config keys onto hasher parameters. Unset
// keys fall back to the defaults.
func argon2Params(cfg config.HasherConfig) account.Argon2idParams {
	p := account.DefaultArgon2idParams
	if cfg.Argon2Time > 0 {
		p.Time = uint32(cfg.Argon2Time)
	}
	if cfg.Argon2Memory > 0 {
		p.Memory = uint32(min(int64(cfg.Argon2Memory), math.MaxUint32))
	}
	if cfg.Argon2Threads > 0 {
		p.Threads = uint8(min(cfg.Argon2Threads, math.MaxUint8))
	}
	return p
}
