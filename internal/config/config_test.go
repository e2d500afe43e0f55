package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "cdpcli.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadAppliesDefaultsThenOverrides(t *testing.T) {
	path := writeTemp(t, `
host = "10.0.0.5"
port = 7777

[tls]
enabled = true
cert_file = "client.crt"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.5", cfg.Host)
	assert.Equal(t, 7777, cfg.Port)
	assert.True(t, cfg.AutoReconnect, "default should survive when not overridden")
	assert.True(t, cfg.TLS.Enabled)
	assert.Equal(t, "client.crt", cfg.TLS.CertFile)
}

func TestDefaultValues(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 7689, cfg.Port)
	assert.True(t, cfg.AutoReconnect)
}

func TestLoadRejectsUnknownField(t *testing.T) {
	path := writeTemp(t, `totally_unknown_field = true`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}
