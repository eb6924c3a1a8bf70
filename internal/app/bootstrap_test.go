package app

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticketline/internal/config"
	"ticketline/internal/domain"
)

func TestBootstrapSeedsRoles(t *testing.T) {
	cfg := config.Default()
	cfg.Roles.Admins = []string{"root"}
	cfg.Roles.Resolvers = []string{"judge"}
	var buf bytes.Buffer
	rt, err := Bootstrap(context.Background(), t.TempDir(), cfg, NewLogger(&buf, "info", "text"))
	require.NoError(t, err)
	defer rt.Close()

	roles, err := rt.Engine.ActorRoles(context.Background(), "judge")
	require.NoError(t, err)
	assert.Equal(t, []domain.Role{domain.RoleResolver}, roles)
	assert.Contains(t, buf.String(), "roles seeded from config")
	assert.NotContains(t, buf.String(), "resolved_withdrawal")
}

func TestBootstrapWarnsOnEitherWithdrawal(t *testing.T) {
	cfg := config.Default()
	cfg.Escrow.ResolvedWithdrawal = "either"
	var buf bytes.Buffer
	rt, err := Bootstrap(context.Background(), t.TempDir(), cfg, NewLogger(&buf, "warn", "json"))
	require.NoError(t, err)
	defer rt.Close()
	assert.Contains(t, buf.String(), `"level":"WARN"`)
	assert.Contains(t, buf.String(), "resolved_withdrawal is either")
}

func TestBootstrapRejectsUnknownWithdrawalMode(t *testing.T) {
	cfg := config.Default()
	cfg.Escrow.ResolvedWithdrawal = "anyone"
	_, err := Bootstrap(context.Background(), t.TempDir(), cfg, NewLogger(io.Discard, "info", "text"))
	assert.ErrorContains(t, err, "resolved_withdrawal")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("nonsense"))
}
