package migrations

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrations_EmbeddedInOrder(t *testing.T) {
	names, err := fs.Glob(Migrations, "*.sql")
	require.NoError(t, err)
	require.Equal(t, []string{"00001_create_accounts.sql", "00002_create_refresh_tokens.sql"}, names)

	for _, n := range names {
		b, err := fs.ReadFile(Migrations, n)
		require.NoError(t, err)
		assert.True(t, strings.Contains(string(b), "-- +goose Up"), n)
		assert.True(t, strings.Contains(string(b), "-- +goose Down"), n)
	}
}

func TestMigrations_AccountsSchema(t *testing.T) {
	b, err := fs.ReadFile(Migrations, "00001_create_accounts.sql")
	require.NoError(t, err)
	sql := string(b)

	assert.Contains(t, sql, "CONSTRAINT accounts_username_key UNIQUE (username)")
	assert.Contains(t, sql, "events_favorited    BIGINT[]")
}
