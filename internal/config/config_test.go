package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "routelens.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "", cfg.Store.Path)
	assert.Equal(t, 0, cfg.Scan.MaxFiles)
	assert.Equal(t, int64(2_000_000), cfg.Scan.MaxFileBytes)
}

func TestLoadYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "routelens.yaml")
	yaml := `store:
  path: /tmp/custom.db
scan:
  max_files: 500
  max_file_bytes: 1000
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/custom.db", cfg.Store.Path)
	assert.Equal(t, 500, cfg.Scan.MaxFiles)
	assert.Equal(t, int64(1000), cfg.Scan.MaxFileBytes)
}

func TestLoadMalformedYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "routelens.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store: [unclosed"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "routelens.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  path: /tmp/from-file.db\n"), 0o644))

	t.Setenv("ROUTELENS_DB", "/tmp/from-env.db")
	t.Setenv("ROUTELENS_MAX_FILE_BYTES", "123")
	t.Setenv("ROUTELENS_MAX_FILES", "7")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/from-env.db", cfg.Store.Path)
	assert.Equal(t, int64(123), cfg.Scan.MaxFileBytes)
	assert.Equal(t, 7, cfg.Scan.MaxFiles)
}

func TestEnvIgnoresInvalidNumbers(t *testing.T) {
	t.Setenv("ROUTELENS_MAX_FILE_BYTES", "not-a-number")
	t.Setenv("ROUTELENS_MAX_FILES", "-5")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, int64(2_000_000), cfg.Scan.MaxFileBytes)
	assert.Equal(t, 0, cfg.Scan.MaxFiles)
}
