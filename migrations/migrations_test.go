package migrations

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFS_HasOrderedGooseMigrations(t *testing.T) {
	t.Parallel()

	names, err := fs.Glob(FS, "*.sql")
	require.NoError(t, err)
	require.Equal(t, []string{
		"00001_users.sql",
		"00002_books.sql",
		"00003_borrows.sql",
		"00004_auth_limiter.sql",
	}, names)

	for _, n := range names {
		b, err := FS.ReadFile(n)
		require.NoError(t, err)
		body := string(b)
		require.True(t, strings.Contains(body, "-- +goose Up"), n)
		require.True(t, strings.Contains(body, "-- +goose Down"), n)
	}
}
