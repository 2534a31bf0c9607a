package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOperators(t *testing.T) {
	ops := ParseOperators("a@example.com:$2a$10$abc, broken ,b@example.com:$2a$10$def,c@example.com:")
	require.Len(t, ops, 2)
	assert.Equal(t, "a@example.com", ops[0].Email)
	assert.Equal(t, "$2a$10$abc", ops[0].PasswordHash)
	assert.Equal(t, "b@example.com", ops[1].Email)
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flowwatch.yaml")
	data := []byte(`
port: 4100
cache_ttl_ms: 2500
n8n_base_url: https://n8n.example.com
operators:
  - email: ops@example.com
    password_hash: "$2a$10$xyz"
`)
	require.NoError(t, os.WriteFile(path, data, 0600))

	t.Setenv("PORT", "4200")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 4200, cfg.Port, "environment wins over file")
	assert.Equal(t, 2500, cfg.CacheTTLMS)
	assert.Equal(t, "https://n8n.example.com", cfg.N8NBaseURL)
	assert.Equal(t, "WAL", cfg.SQLiteJournalMode, "defaults survive merge")
	require.Len(t, cfg.Operators, 1)
	assert.True(t, cfg.AuthEnabled())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestBindFlags(t *testing.T) {
	cfg := Default()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	cfg.BindFlags(fs)

	require.NoError(t, fs.Parse([]string{"--port", "9999", "--cache-ttl-ms=100"}))
	assert.Equal(t, 9999, cfg.Port)
	assert.Equal(t, 100, cfg.CacheTTLMS)
}

func TestWebhookCIDRsFromEnv(t *testing.T) {
	t.Setenv("WEBHOOK_ALLOW_CIDRS", "10.0.0.0/8, ,192.168.1.5")
	t.Setenv("WEBHOOK_DENY_CIDRS", "10.9.9.9")

	cfg := Default()
	assert.Equal(t, []string{"10.0.0.0/8", "192.168.1.5"}, cfg.WebhookAllowCIDRs)
	assert.Equal(t, []string{"10.9.9.9"}, cfg.WebhookDenyCIDRs)
}
