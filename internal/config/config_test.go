package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWhenNoFileGiven(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.UpdateInterval())
	assert.Equal(t, LogLevelInfo, cfg.LogLevel)
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	contents := "user_count: 50\nusers_per_sec: 5\nupdate_interval_in_secs: 10\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.EqualValues(t, 50, cfg.UserCount)
	assert.EqualValues(t, 5, cfg.UsersPerSec)
	assert.Equal(t, 10*time.Second, cfg.UpdateInterval())
}

func TestLoadUnrecognizedExtensionFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.ini")
	require.NoError(t, os.WriteFile(path, []byte("user_count = 1"), 0o644))

	_, err := Load(path)
	assert.Error(t, err, "expected an error for an unrecognized config extension")
}

func TestLoadMissingFileYieldsFormatError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	var fe *FormatError
	require.True(t, errors.As(err, &fe), "expected a *FormatError, got %T: %v", err, err)
	assert.Equal(t, "yaml", fe.Format)
}
