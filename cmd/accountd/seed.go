// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package main

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/accountd/accountd/internal/account"
)

const defaultSeedTimeout = 30 * time.Second

// seedFile is the YAML document read by the seed command.
type seedFile struct {
	Users []seedUser `yaml:"users"`
}

type seedUser struct {
	FirstName string `yaml:"firstName"`
	LastName  string `yaml:"lastName"`
	Email     string `yaml:"email"`
	Password  string `yaml:"password"`
}

// seedResult tallies a seed run.
type seedResult struct {
	Created int
	Skipped int
}

// NewSeedCmd creates the seed subcommand.
func NewSeedCmd() *cobra.Command {
	var (
		path    string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Register users listed in a YAML file",
		Long: `Registers each user in the file through the normal registration path.
Users whose e-mail is already registered are skipped, so the command can be
run repeatedly.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			return runSeed(ctx, cmd, path)
		},
	}

	cmd.Flags().StringVarP(&path, "file", "f", "", "YAML file with a users list")
	cmd.Flags().DurationVar(&timeout, "timeout", defaultSeedTimeout, "timeout for the whole seed run")
	addHasherFlags(cmd.Flags())
	addStorageFlags(cmd.Flags())
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func runSeed(ctx context.Context, cmd *cobra.Command, path string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := setupLogging(cfg.Log)

	f, err := os.Open(path) //nolint:gosec // path is operator supplied
	if err != nil {
		return oops.Code("SEED_READ_FAILED").With("file", path).Wrap(err)
	}
	defer func() { _ = f.Close() }()

	users, err := parseSeedFile(f)
	if err != nil {
		return oops.With("file", path).Wrap(err)
	}

	b, err := openBackend(ctx, cfg.Storage)
	if err != nil {
		return oops.With("operation", "open storage").Wrap(err)
	}
	defer b.Close()

	hasher, err := newHasher(cfg.Hasher)
	if err != nil {
		return err
	}
	svc, err := account.NewService(b.users, hasher, account.WithLogger(logger))
	if err != nil {
		return err
	}

	res, err := seedUsers(ctx, svc, users, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	cmd.Printf("Seed complete: %d created, %d skipped\n", res.Created, res.Skipped)
	return nil
}

// parseSeedFile decodes a seed document. Unknown keys are rejected.
func parseSeedFile(r io.Reader) ([]seedUser, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc seedFile
	if err := dec.Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, oops.Code("SEED_PARSE_FAILED").Wrap(err)
	}
	return doc.Users, nil
}

// seedUsers registers each user. Field errors skip the user; infrastructure
// errors abort the run.
func seedUsers(ctx context.Context, svc *account.Service, users []seedUser, out io.Writer) (seedResult, error) {
	var res seedResult
	for i, u := range users {
		resp, err := svc.Register(ctx, account.RegisterInput{
			FirstName: u.FirstName,
			LastName:  u.LastName,
			Email:     u.Email,
			Password:  u.Password,
		})
		if err != nil {
			return res, oops.Code("SEED_FAILED").With("index", i).With("email", u.Email).Wrap(err)
		}
		if resp.HasErrors() {
			res.Skipped++
			for _, fe := range resp.Errors {
				_, _ = io.WriteString(out, "skipped "+u.Email+": "+fe.Message+"\n")
			}
			continue
		}
		res.Created++
		_, _ = io.WriteString(out, "created "+resp.User.Email+"\n")
	}
	return res, nil
}
