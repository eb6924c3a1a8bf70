package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateDefaultParses(t *testing.T) {
	cfg, err := FromYAML([]byte(GenerateDefault("root")))
	require.NoError(t, err)
	assert.Equal(t, []string{"root"}, cfg.Roles.Admins)
	assert.Equal(t, "winner", cfg.Escrow.ResolvedWithdrawal)
	assert.Equal(t, "/v1", cfg.Server.BasePath)
	assert.Equal(t, 20, cfg.Server.RateLimit.Burst)
}

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadOptionalWithoutFile(t *testing.T) {
	cfg, err := LoadOptional(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Addr)

	_, err = Load(t.TempDir())
	assert.ErrorContains(t, err, "tl config init")
}

func TestLoadFromWorkspace(t *testing.T) {
	dir := t.TempDir()
	body := `roles:
  resolvers: [judge]
escrow:
  resolved_withdrawal: either
webhooks:
  hooks:
    - id: ops
      url: https://example.test/hook
      events: [ticket.disputed]
      enabled: true
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ticketline.yml"), []byte(body), 0o644))
	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"judge"}, cfg.Roles.Resolvers)
	assert.Equal(t, "either", cfg.Escrow.ResolvedWithdrawal)
	require.Len(t, cfg.Webhooks.Hooks, 1)
	assert.Equal(t, 5, cfg.Webhooks.Hooks[0].TimeoutSeconds)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"withdrawal mode": "escrow:\n  resolved_withdrawal: anyone\n",
		"empty admin":     "roles:\n  admins: [\"\"]\n",
		"base path":       "server:\n  base_path: v1\n",
		"burst":           "server:\n  rate_limit:\n    rps: 5\n",
		"log level":       "logging:\n  level: loud\n",
		"webhook url":     "webhooks:\n  hooks:\n    - id: a\n      url: ftp://x\n",
		"webhook dup":     "webhooks:\n  hooks:\n    - id: a\n      url: http://x\n    - id: a\n      url: http://y\n",
		"bad yaml":        "roles: [",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := FromYAML([]byte(body))
			assert.Error(t, err)
		})
	}
}

func TestYAMLRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Roles.Admins = []string{"root"}
	out, err := cfg.YAML()
	require.NoError(t, err)
	again, err := FromYAML([]byte(out))
	require.NoError(t, err)
	assert.Equal(t, cfg.Roles.Admins, again.Roles.Admins)
	assert.Equal(t, cfg.Server, again.Server)
	assert.Equal(t, cfg.Logging, again.Logging)
	assert.Equal(t, cfg.Escrow, again.Escrow)
}
