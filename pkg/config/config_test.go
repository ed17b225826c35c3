package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, []string{""}, cfg.Schema.MissingValues)
	assert.Equal(t, 100, cfg.Schema.SampleSize)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.False(t, cfg.Telemetry.Enabled)
}

func TestManager_Layering(t *testing.T) {
	dir := t.TempDir()
	user := filepath.Join(dir, "user.yaml")
	project := filepath.Join(dir, "project.yaml")
	envFile := filepath.Join(dir, ".env")

	require.NoError(t, os.WriteFile(user, []byte("schema:\n  sample_size: 50\nstorage:\n  driver: duckdb\n"), 0o644))
	require.NoError(t, os.WriteFile(project, []byte("storage:\n  driver: postgres\n  dsn: postgres://localhost/db\n"), 0o644))
	require.NoError(t, os.WriteFile(envFile, []byte("TABFLOW_DSN=from-dotenv\nTABFLOW_SAMPLE_SIZE=7\n"), 0o644))
	t.Setenv("TABFLOW_SAMPLE_SIZE", "9")

	m := NewManagerWithPaths(envFile, user, filepath.Join(dir, "missing.yaml"), project)
	require.NoError(t, m.Load())

	cfg := m.Get()
	assert.Equal(t, "postgres", cfg.Storage.Driver)
	assert.Equal(t, "from-dotenv", cfg.Storage.DSN)
	assert.Equal(t, 9, cfg.Schema.SampleSize)
	assert.Equal(t, []string{user, project}, m.GetPaths())
}

func TestManager_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("schema: [unclosed"), 0o644))

	m := NewManagerWithPaths("", path)
	require.Error(t, m.Load())

	require.Error(t, NewManagerWithPaths("").LoadFile(filepath.Join(t.TempDir(), "nope.yaml")))
}

func TestManager_SaveTo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "config.yaml")
	m := NewManagerWithPaths("")
	require.NoError(t, m.Load())
	m.Get().Storage.Driver = "mysql"
	require.NoError(t, m.SaveTo(path))

	reloaded := NewManagerWithPaths("", path)
	require.NoError(t, reloaded.Load())
	assert.Equal(t, "mysql", reloaded.Get().Storage.Driver)
}
