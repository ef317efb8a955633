package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/arcmgr/internal/config"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	configDir := filepath.Join(dir, "arcmgr")
	require.NoError(t, os.MkdirAll(configDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(configDir, "config.toml"), []byte(content), 0o644))
}

func TestLoad_MissingFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv(config.EnvCatalog, "")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Nil(t, cfg.Defaults.Catalog)
	assert.Nil(t, cfg.Defaults.Workers)
	assert.Nil(t, cfg.Theme.Green)
}

func TestLoad_FullConfig(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv(config.EnvCatalog, "")

	writeConfig(t, dir, `
[defaults]
catalog = "/data/catalog.db"
archive = "home"
workers = 6
checksum = true
algorithm = "blake3"
report_dir = "/var/tmp/arcmgr"
bwlimit = "200MB"
tui = true
log_max_size_mb = 50

[theme]
green = "#00ff00"
`)

	cfg, err := config.Load()
	require.NoError(t, err)

	require.NotNil(t, cfg.Defaults.Catalog)
	assert.Equal(t, "/data/catalog.db", *cfg.Defaults.Catalog)
	require.NotNil(t, cfg.Defaults.Archive)
	assert.Equal(t, "home", *cfg.Defaults.Archive)
	require.NotNil(t, cfg.Defaults.Workers)
	assert.Equal(t, 6, *cfg.Defaults.Workers)
	require.NotNil(t, cfg.Defaults.Checksum)
	assert.True(t, *cfg.Defaults.Checksum)
	require.NotNil(t, cfg.Defaults.Algorithm)
	assert.Equal(t, "blake3", *cfg.Defaults.Algorithm)
	require.NotNil(t, cfg.Defaults.BWLimit)
	assert.Equal(t, "200MB", *cfg.Defaults.BWLimit)
	require.NotNil(t, cfg.Defaults.LogMaxSizeMB)
	assert.Equal(t, 50, *cfg.Defaults.LogMaxSizeMB)
	require.NotNil(t, cfg.Theme.Green)
	assert.Equal(t, "#00ff00", *cfg.Theme.Green)

	// Unset fields should remain nil.
	assert.Nil(t, cfg.Defaults.Cache)
	assert.Nil(t, cfg.Theme.Red)
}

func TestLoad_EnvCatalogOverridesFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv(config.EnvCatalog, "/env/catalog.db")

	writeConfig(t, dir, "[defaults]\ncatalog = \"/file/catalog.db\"\n")

	cfg, err := config.Load()
	require.NoError(t, err)
	require.NotNil(t, cfg.Defaults.Catalog)
	assert.Equal(t, "/env/catalog.db", *cfg.Defaults.Catalog)
}

func TestLoad_ExpandsCacheHome(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("HOME", "/home/tester")
	t.Setenv(config.EnvCatalog, "")

	writeConfig(t, dir, "[defaults]\ncache = \"~/cache/sums.db\"\n")

	cfg, err := config.Load()
	require.NoError(t, err)
	require.NotNil(t, cfg.Defaults.Cache)
	assert.Equal(t, "/home/tester/cache/sums.db", *cfg.Defaults.Cache)
}

func TestLoad_InvalidTOML(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	writeConfig(t, dir, "invalid [[[")

	_, err := config.Load()
	assert.Error(t, err)
}

func TestConfigPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	assert.Equal(t, "/custom/config/arcmgr/config.toml", config.Path())
}

func TestDefaultCachePath(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", "/custom/cache")
	assert.Equal(t, "/custom/cache/arcmgr/checksums.db", config.DefaultCachePath())
}
