package config

import (
	"os"
	"path/filepath"
	"quicknotes/internal/storage"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("QUICKNOTES_DATA_DIR", dir)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, storage.BackendSQLite, cfg.Storage.Backend)
	assert.Equal(t, storage.DefaultKey, cfg.Storage.Key)
	assert.Equal(t, filepath.Join(dir, "quicknotes.db"), cfg.Storage.DBPath)
	assert.Equal(t, filepath.Join(dir, "data"), cfg.Storage.FSPath)
	assert.Equal(t, DefaultPort, cfg.Server.Port)
	assert.Equal(t, 500*time.Millisecond, cfg.Monitor.Interval)
	assert.False(t, cfg.Vault.Enabled)
	assert.Equal(t, []string{"defaults", "environment"}, cfg.LoadedFrom)
}

func TestLoad_FileThenEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "quicknotes.yaml", `
data_dir: `+dir+`
storage:
  backend: file
  key: my-clips
server:
  port: 9000
log:
  level: debug
monitor:
  enabled: false
  interval: 2s
`)
	t.Setenv("QUICKNOTES_PORT", "9100")
	t.Setenv("QUICKNOTES_LOG_FORMAT", "json")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, storage.BackendFile, cfg.Storage.Backend)
	assert.Equal(t, "my-clips", cfg.Storage.Key)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.False(t, cfg.Monitor.Enabled)
	assert.Equal(t, 2*time.Second, cfg.Monitor.Interval)
	assert.Equal(t, []string{"defaults", path, "environment"}, cfg.LoadedFrom)

	settings := cfg.StorageSettings()
	assert.Equal(t, "my-clips", settings.Key)
	assert.Equal(t, filepath.Join(dir, "data"), settings.FSPath)
}

func TestLoad_VaultFromEnvironment(t *testing.T) {
	t.Setenv("QUICKNOTES_DATA_DIR", t.TempDir())
	t.Setenv("QUICKNOTES_VAULT_PATH", "/tmp/vault")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.True(t, cfg.Vault.Enabled)
	assert.Equal(t, "/tmp/vault", cfg.Vault.Path)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("QUICKNOTES_DATA_DIR", dir)

	tests := []struct {
		name    string
		path    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "explicit file missing",
			path:    filepath.Join(dir, "missing.yaml"),
			wantErr: "failed to load config file",
		},
		{
			name:    "unknown field",
			path:    writeFile(t, dir, "unknown.yaml", "colour: blue\n"),
			wantErr: "failed to load config file",
		},
		{
			name:    "bad backend",
			env:     map[string]string{"QUICKNOTES_STORAGE_BACKEND": "redis"},
			wantErr: "invalid configuration",
		},
		{
			name:    "bad port",
			env:     map[string]string{"QUICKNOTES_PORT": "http"},
			wantErr: "invalid QUICKNOTES_PORT",
		},
		{
			name:    "port out of range",
			env:     map[string]string{"QUICKNOTES_PORT": "70000"},
			wantErr: "invalid configuration",
		},
		{
			name:    "vault without path",
			path:    writeFile(t, dir, "vault.yaml", "vault:\n  enabled: true\n"),
			wantErr: "invalid configuration",
		},
		{
			name:    "monitor interval too small",
			env:     map[string]string{"QUICKNOTES_MONITOR_INTERVAL": "1ms"},
			wantErr: "invalid configuration",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(tt.path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
