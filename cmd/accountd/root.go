// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/accountd/accountd/internal/config"
	"github.com/accountd/accountd/internal/xdg"
)

// Global flags available to all subcommands.
var (
	configFile string
	envFile    string
)

// NewRootCmd creates the root command for the accountd CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accountd",
		Short: "accountd - account registration and login service",
		Long: `accountd registers users, verifies their passwords and keeps a
server-side session identifying the logged-in user.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default: XDG_CONFIG_HOME/accountd/config.yaml)")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before configuration, if present")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewSeedCmd())

	return cmd
}

// addStorageFlags registers the flags shared by every command that opens
// the repositories.
func addStorageFlags(fs *pflag.FlagSet) {
	d := config.Default()
	fs.String("storage-driver", d.Storage.Driver, "repository backend (postgres or sqlite)")
	fs.String("storage-dsn", d.Storage.DSN, "postgres URL or SQLite path (default: XDG_DATA_HOME/accountd/accountd.db)")
	fs.String("log-format", d.Log.Format, "log format (json or text)")
	fs.String("log-level", d.Log.Level, "log level (debug, info, warn or error)")
}

func addHasherFlags(fs *pflag.FlagSet) {
	d := config.Default()
	fs.String("hasher-algorithm", d.Hasher.Algorithm, "algorithm for new password hashes (argon2id or bcrypt)")
	fs.Int("hasher-bcrypt-cost", d.Hasher.BcryptCost, "bcrypt cost factor")
	fs.Int("hasher-argon2-time", d.Hasher.Argon2Time, "argon2id iterations")
	fs.Int("hasher-argon2-memory", d.Hasher.Argon2Memory, "argon2id memory cost in KiB")
	fs.Int("hasher-argon2-threads", d.Hasher.Argon2Threads, "argon2id parallelism")
}

// loadConfig reads configuration for cmd. Without --config the XDG default
// file is used if it exists.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	opts := config.Options{
		File:    configFile,
		EnvFile: envFile,
		Flags:   cmd.Flags(),
	}
	if opts.File == "" {
		path, err := xdg.DefaultConfigFile()
		if err != nil {
			return nil, err
		}
		opts.File = path
		opts.Optional = true
	}
	return config.Load(opts)
}
