package runtimeconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/etylermoss/sql-bulk-import-profile/internal/profile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWithNoPathReturnsBuiltinDefaults(t *testing.T) {
	defaults, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "info", defaults.LogLevel)
	assert.Equal(t, profile.DataSourceDeletionRetain, defaults.Deletion)
}

func TestLoadYAMLFileOverridesBuiltinDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: debug\ndeletion: delete\n"), 0o644))

	defaults, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", defaults.LogLevel)
	assert.Equal(t, profile.DataSourceDeletionDelete, defaults.Deletion)
}

func TestLoadEnvironmentOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: debug\n"), 0o644))

	t.Setenv("SBIP_LOG_LEVEL", "warn")

	defaults, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", defaults.LogLevel)
}

func TestLoadRejectsUnknownDeletionName(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("deletion: purge\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	require.Error(t, err)
}
