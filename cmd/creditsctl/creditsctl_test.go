package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/service-credits-go/internal/user"
	"github.com/ovaphlow/pitchfork/service-credits-go/pkg/database"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestLedgerCommands(t *testing.T) {
	db := []string{"--db-driver", "sqlite", "--db-url", filepath.Join(t.TempDir(), "ledger.db")}

	out, err := run(t, append([]string{"migrate"}, db...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "migrated")

	out, err = run(t, append([]string{"grant", "user-1", "--amount", "200", "--reference", "promo-1"}, db...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "granted 200 credits to user-1")

	out, err = run(t, append([]string{"grant", "user-1", "--amount", "200", "--reference", "promo-1"}, db...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "already applied")

	out, err = run(t, append([]string{"balance", "user-1", "--json"}, db...)...)
	require.NoError(t, err)
	assert.JSONEq(t, `{"credits":200,"subscriptionActive":false}`, out)

	out, err = run(t, append([]string{"history", "user-1"}, db...)...)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "manual_grant")
	assert.Contains(t, lines[1], "promo-1")
}

func TestGrantRequiresAmount(t *testing.T) {
	_, err := run(t, "grant", "user-1", "--amount", "0")
	assert.Error(t, err)
}

func TestHashKey(t *testing.T) {
	out, err := run(t, "hash-key", "hook-key", "--cost", "4")
	require.NoError(t, err)
	hash := strings.TrimSpace(out)
	assert.True(t, user.BcryptHasher{}.Verify(hash, "hook-key"))
}

func TestToken(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "cli-test-secret-with-at-least-32-characters")
	out, err := run(t, "token", "user-9", "--email", "u9@example.com")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(strings.TrimSpace(out), "."))
}

type noAccounts struct{}

func (noAccounts) EnsureAccount(context.Context, string) error { return nil }

func TestUserCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	db := []string{"--db-driver", "sqlite", "--db-url", path}

	_, err := run(t, append([]string{"migrate"}, db...)...)
	require.NoError(t, err)

	conn, err := database.Connect(database.Config{Driver: database.DriverSQLite, DSN: path})
	require.NoError(t, err)
	_, err = user.NewUserService(conn, noAccounts{}, nil, nil).Provision(context.Background(), "user-7", "U7@Example.com")
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	out, err := run(t, append([]string{"user", "user-7"}, db...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "id=user-7 email=u7@example.com")

	out, err = run(t, append([]string{"user", "user-8"}, db...)...)
	require.Error(t, err)
	assert.Contains(t, out, "not provisioned")
}
