package config

// Tests here use t.Setenv and must not run in parallel.

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/tpm/internal/errors"
)

// isolate points HOME at an empty directory and clears TPM_* overrides.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_DATA_HOME", "")
	for _, key := range []string{"DB_PATH", "DIALECT", "DSN", "LOG_LEVEL", "LOG_FORMAT", "ROADMAP_MAX_OPEN_TASKS"} {
		t.Setenv(EnvPrefix+"_"+key, "")
		require.NoError(t, os.Unsetenv(EnvPrefix+"_"+key))
	}
	return home
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	home := isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Dialect)
	assert.Equal(t, filepath.Join(home, ".local", "share", "tpm", "tpm.db"), cfg.DBPath)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 3, cfg.Roadmap.MaxOpenTasks)
	assert.Empty(t, cfg.File())
	assert.Equal(t, cfg.DBPath, cfg.DataSource())
}

func TestLoad_UserConfig(t *testing.T) {
	home := isolate(t)
	dir := filepath.Join(home, ".config", "tpm")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("log_format: json\n"), 0o644))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, filepath.Join(dir, "config.yaml"), cfg.File())
}

func TestLoad_File(t *testing.T) {
	isolate(t)
	path := writeConfig(t, `
db_path: /tmp/tracker.db
log_level: DEBUG
roadmap:
  max_open_tasks: 5
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/tracker.db", cfg.DBPath)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 5, cfg.Roadmap.MaxOpenTasks)
	assert.Equal(t, path, cfg.File())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	isolate(t)
	path := writeConfig(t, "log_level: debug\ndb_path: /tmp/file.db\n")
	t.Setenv("TPM_LOG_LEVEL", "warn")
	t.Setenv("TPM_DB_PATH", "/tmp/env.db")
	t.Setenv("TPM_ROADMAP_MAX_OPEN_TASKS", "7")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "/tmp/env.db", cfg.DBPath)
	assert.Equal(t, 7, cfg.Roadmap.MaxOpenTasks)
}

func TestLoad_Postgres(t *testing.T) {
	isolate(t)
	t.Setenv("TPM_DIALECT", "postgresql")

	_, err := Load("")
	require.Error(t, err)
	assert.Equal(t, errors.CodeConfigInvalid, errors.CodeOf(err))

	t.Setenv("TPM_DSN", "postgres://localhost/tpm")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Dialect)
	assert.Equal(t, "postgres://localhost/tpm", cfg.DataSource())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"dialect", "dialect: mysql\n"},
		{"log level", "log_level: loud\n"},
		{"log format", "log_format: xml\n"},
		{"max open tasks", "roadmap:\n  max_open_tasks: -1\n"},
		{"syntax", "log_level: [unclosed\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Equal(t, errors.CodeConfigInvalid, errors.CodeOf(err))
		})
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	isolate(t)

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Equal(t, errors.CodeConfigInvalid, errors.CodeOf(err))
}

func TestNewLogger(t *testing.T) {
	cfg := Default()
	cfg.LogFormat = "json"
	cfg.LogLevel = "warn"

	var buf bytes.Buffer
	logger := cfg.NewLogger(&buf)
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"k":"v"`)
}
