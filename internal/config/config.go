// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

// Package config loads accountd configuration from defaults, an optional
// YAML file, the environment and command-line flags, in increasing priority.
package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
	"golang.org/x/crypto/bcrypt"

	"github.com/accountd/accountd/internal/logging"
)

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Password hashing algorithms.
const (
	AlgorithmArgon2id = "argon2id"
	AlgorithmBcrypt   = "bcrypt"
)

// DatabaseURLEnv overrides storage.dsn when set.
const DatabaseURLEnv = "DATABASE_URL"

// Config is the complete accountd configuration.
type Config struct {
	HTTP    HTTPConfig    `koanf:"http"`
	Metrics MetricsConfig `koanf:"metrics"`
	Log     LogConfig     `koanf:"log"`
	Storage StorageConfig `koanf:"storage"`
	Hasher  HasherConfig  `koanf:"hasher"`
	Session SessionConfig `koanf:"session"`
}

// HTTPConfig configures the account API listener.
type HTTPConfig struct {
	Addr string `koanf:"addr"`
}

// MetricsConfig configures the observability listener. An empty Addr
// disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// LogConfig configures logging.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// StorageConfig selects the repository backend.
type StorageConfig struct {
	Driver string `koanf:"driver"`
	// DSN is a postgres:// URL or a SQLite file path.
	DSN string `koanf:"dsn"`
}

// HasherConfig selects the password hashing algorithm for new hashes.
// Hashes of the other algorithm remain verifiable.
type HasherConfig struct {
	Algorithm  string `koanf:"algorithm"`
	BcryptCost int    `koanf:"bcrypt_cost"`
	// Argon2Time is the argon2id iteration count.
	Argon2Time int `koanf:"argon2_time"`
	// Argon2Memory is the argon2id memory cost in KiB.
	Argon2Memory  int `koanf:"argon2_memory"`
	Argon2Threads int `koanf:"argon2_threads"`
}

// Argon2id cost bounds. MaxArgon2Memory matches the largest memory cost
// the verifier accepts in a stored digest.
const (
	MaxArgon2Memory  = 4 * 1024 * 1024
	MaxArgon2Threads = 255
)

// SessionConfig configures the session cookie and persistence.
type SessionConfig struct {
	CookieName    string        `koanf:"cookie_name"`
	TTL           time.Duration `koanf:"ttl"`
	SecureCookie  bool          `koanf:"secure_cookie"`
	PurgeInterval time.Duration `koanf:"purge_interval"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		HTTP:    HTTPConfig{Addr: "127.0.0.1:8080"},
		Metrics: MetricsConfig{Addr: "127.0.0.1:9100"},
		Log:     LogConfig{Format: "json", Level: "info"},
		Storage: StorageConfig{Driver: DriverSQLite},
		Hasher: HasherConfig{
			Algorithm:     AlgorithmArgon2id,
			BcryptCost:    bcrypt.DefaultCost,
			Argon2Time:    1,
			Argon2Memory:  64 * 1024,
			Argon2Threads: 4,
		},
		Session: SessionConfig{
			CookieName:    "accountd_session",
			TTL:           24 * time.Hour,
			SecureCookie:  true,
			PurgeInterval: 10 * time.Minute,
		},
	}
}

func defaultValues() map[string]any {
	d := Default()
	return map[string]any{
		"http.addr":              d.HTTP.Addr,
		"metrics.addr":           d.Metrics.Addr,
		"log.format":             d.Log.Format,
		"log.level":              d.Log.Level,
		"storage.driver":         d.Storage.Driver,
		"storage.dsn":            d.Storage.DSN,
		"hasher.algorithm":       d.Hasher.Algorithm,
		"hasher.bcrypt_cost":     d.Hasher.BcryptCost,
		"hasher.argon2_time":     d.Hasher.Argon2Time,
		"hasher.argon2_memory":   d.Hasher.Argon2Memory,
		"hasher.argon2_threads":  d.Hasher.Argon2Threads,
		"session.cookie_name":    d.Session.CookieName,
		"session.ttl":            d.Session.TTL,
		"session.secure_cookie":  d.Session.SecureCookie,
		"session.purge_interval": d.Session.PurgeInterval,
	}
}

// Options controls where Load looks for configuration.
type Options struct {
	// File is a YAML config file. Missing is an error unless Optional is set.
	File     string
	Optional bool
	// EnvFile is a dotenv file loaded into the process environment if present.
	EnvFile string
	// Flags are applied last; only flags the user set override.
	Flags *pflag.FlagSet
}

// Load assembles and validates the configuration.
func Load(opts Options) (*Config, error) {
	k := koanf.New(".")
	for key, val := range defaultValues() {
		if err := k.Set(key, val); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("key", key).Wrap(err)
		}
	}

	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("env_file", opts.EnvFile).Wrap(err)
		}
	}

	if opts.File != "" {
		err := k.Load(file.Provider(opts.File), yaml.Parser())
		switch {
		case err == nil:
		case opts.Optional && errors.Is(err, fs.ErrNotExist):
		default:
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("file", opts.File).Wrap(err)
		}
	}

	if dsn := os.Getenv(DatabaseURLEnv); dsn != "" {
		if err := k.Set("storage.dsn", dsn); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("key", "storage.dsn").Wrap(err)
		}
	}

	if opts.Flags != nil {
		provider := posflag.ProviderWithFlag(opts.Flags, ".", k, func(f *pflag.Flag) (string, any) {
			return FlagKey(f.Name), posflag.FlagVal(opts.Flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("operation", "load flags").Wrap(err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("operation", "unmarshal").Wrap(err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FlagKey maps a flag name to its config key: the first dash separates
// the section, later dashes become underscores ("session-cookie-name" is
// "session.cookie_name"). Flags without a section map to "" and are ignored.
func FlagKey(name string) string {
	section, rest, found := strings.Cut(name, "-")
	if !found {
		return ""
	}
	return section + "." + strings.ReplaceAll(rest, "-", "_")
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	invalid := func(key string, format string, args ...any) error {
		return oops.Code("CONFIG_INVALID").With("key", key).Errorf(format, args...)
	}

	if c.HTTP.Addr == "" {
		return invalid("http.addr", "http.addr is required")
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return invalid("log.format", "log.format must be 'json' or 'text', got %q", c.Log.Format)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level", "log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}

	switch c.Storage.Driver {
	case DriverPostgres:
		if c.Storage.DSN == "" {
			return invalid("storage.dsn", "storage.dsn (or %s) is required for the postgres driver", DatabaseURLEnv)
		}
	case DriverSQLite:
	default:
		return invalid("storage.driver", "storage.driver must be %q or %q, got %q",
			DriverPostgres, DriverSQLite, c.Storage.Driver)
	}

	switch c.Hasher.Algorithm {
	case AlgorithmArgon2id, AlgorithmBcrypt:
	default:
		return invalid("hasher.algorithm", "hasher.algorithm must be %q or %q, got %q",
			AlgorithmArgon2id, AlgorithmBcrypt, c.Hasher.Algorithm)
	}
	if c.Hasher.BcryptCost != 0 && (c.Hasher.BcryptCost < bcrypt.MinCost || c.Hasher.BcryptCost > bcrypt.MaxCost) {
		return invalid("hasher.bcrypt_cost", "hasher.bcrypt_cost must be between %d and %d, got %d",
			bcrypt.MinCost, bcrypt.MaxCost, c.Hasher.BcryptCost)
	}
	if c.Hasher.Argon2Time < 1 {
		return invalid("hasher.argon2_time", "hasher.argon2_time must be positive, got %d", c.Hasher.Argon2Time)
	}
	if c.Hasher.Argon2Threads < 1 || c.Hasher.Argon2Threads > MaxArgon2Threads {
		return invalid("hasher.argon2_threads", "hasher.argon2_threads must be between 1 and %d, got %d",
			MaxArgon2Threads, c.Hasher.Argon2Threads)
	}
	if c.Hasher.Argon2Memory < 8*c.Hasher.Argon2Threads || c.Hasher.Argon2Memory > MaxArgon2Memory {
		return invalid("hasher.argon2_memory", "hasher.argon2_memory must be between %d and %d KiB, got %d",
			8*c.Hasher.Argon2Threads, MaxArgon2Memory, c.Hasher.Argon2Memory)
	}

	if c.Session.CookieName == "" {
		return invalid("session.cookie_name", "session.cookie_name is required")
	}
	if c.Session.TTL <= 0 {
		return invalid("session.ttl", "session.ttl must be positive, got %s", c.Session.TTL)
	}
	if c.Session.PurgeInterval <= 0 {
		return invalid("session.purge_interval", "session.purge_interval must be positive, got %s", c.Session.PurgeInterval)
	}
	return nil
}
