package migrate_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"ticketline/internal/db"
	"ticketline/internal/migrate"
)

func TestMigrateIsIdempotent(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	defer conn.Close()
	ctx := context.Background()

	v, err := migrate.CurrentVersion(ctx, conn)
	require.NoError(t, err)
	require.Equal(t, 0, v)

	require.NoError(t, migrate.Migrate(ctx, conn))
	require.NoError(t, migrate.Migrate(ctx, conn))

	latest, err := migrate.Latest()
	require.NoError(t, err)
	v, err = migrate.CurrentVersion(ctx, conn)
	require.NoError(t, err)
	require.Equal(t, latest, v)

	var seq int
	require.NoError(t, conn.QueryRowContext(ctx, `SELECT value FROM sequences WHERE name='ticket'`).Scan(&seq))
	require.Equal(t, 0, seq)
}
