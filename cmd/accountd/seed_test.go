// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/accountd/accountd/internal/account"
	"github.com/accountd/accountd/internal/account/sqlite"
	"github.com/accountd/accountd/pkg/errutil"
)

const seedYAML = `
users:
  - firstName: Ada
    lastName: Lovelace
    email: ada@example.com
    password: analytical
  - firstName: Alan
    lastName: Turing
    email: alan@example.com
    password: enigma
  - firstName: Dup
    lastName: Licate
    email: ADA@example.com
    password: again
  - firstName: Bad
    lastName: Address
    email: not-an-email
    password: pw
  - firstName: No
    lastName: Password
    email: nopw@example.com
`

func TestParseSeedFile(t *testing.T) {
	users, err := parseSeedFile(strings.NewReader(seedYAML))
	require.NoError(t, err)
	require.Len(t, users, 5)
	assert.Equal(t, seedUser{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com", Password: "analytical"}, users[0])
	assert.Empty(t, users[4].Password)
}

func TestParseSeedFile_Empty(t *testing.T) {
	users, err := parseSeedFile(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestParseSeedFile_UnknownField(t *testing.T) {
	_, err := parseSeedFile(strings.NewReader("users:\n  - email: a@b.com\n    role: admin\n"))
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "SEED_PARSE_FAILED")
}

func newSeedService(t *testing.T) *account.Service {
	t.Helper()
	db, err := sqlite.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	hasher, err := account.NewBcryptHasher(bcrypt.MinCost)
	require.NoError(t, err)
	svc, err := account.NewService(sqlite.NewUserRepository(db), hasher)
	require.NoError(t, err)
	return svc
}

func TestSeedUsers_IsIdempotent(t *testing.T) {
	svc := newSeedService(t)
	users, err := parseSeedFile(strings.NewReader(seedYAML))
	require.NoError(t, err)

	var out bytes.Buffer
	res, err := seedUsers(context.Background(), svc, users, &out)
	require.NoError(t, err)
	assert.Equal(t, seedResult{Created: 3, Skipped: 2}, res)
	assert.Contains(t, out.String(), "created ada@example.com")
	assert.Contains(t, out.String(), "skipped ADA@example.com: "+account.MsgEmailRegistered)
	assert.Contains(t, out.String(), "skipped not-an-email: "+account.MsgInvalidEmail)
	assert.Contains(t, out.String(), "created nopw@example.com")

	out.Reset()
	res, err = seedUsers(context.Background(), svc, users, &out)
	require.NoError(t, err)
	assert.Equal(t, seedResult{Created: 0, Skipped: 5}, res)
}

func TestSeedCmd_RegistersIntoSQLite(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	seedPath := filepath.Join(dir, "users.yaml")
	require.NoError(t, os.WriteFile(seedPath, []byte(seedYAML), 0o600))
	dbPath := filepath.Join(dir, "accounts.db")

	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{
		"seed",
		"--env-file", filepath.Join(dir, "missing.env"),
		"--file", seedPath,
		"--storage-dsn", dbPath,
		"--hasher-algorithm", "bcrypt",
		"--log-level", "error",
	})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "Seed complete: 3 created, 2 skipped")

	db, err := sqlite.Open(context.Background(), dbPath)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	u, err := sqlite.NewUserRepository(db).GetByEmail(context.Background(), "alan@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Turing", u.LastName)
	assert.True(t, strings.HasPrefix(u.PasswordHash, "$2a$"))
}

func TestSeedCmd_RequiresFile(t *testing.T) {
	root := NewRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"seed"})
	require.Error(t, root.Execute())
}
