package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 10*time.Second, cfg.Proxy.Timeout)
	assert.Equal(t, "ISO3166-1-Alpha-2", cfg.Geo.CountryProperty)
	assert.False(t, cfg.StrictShapes)
}

func TestFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	yaml := "server:\n  addr: \":9000\"\ndata:\n  path: other.csv\npipeline:\n  strict_shapes: true\nproxy:\n  timeout: 3s\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "chandash.yaml"), []byte(yaml), 0o644))
	t.Setenv("CHANDASH_DATA_PATH", "env.csv")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, "env.csv", cfg.Data.Path)
	assert.True(t, cfg.StrictShapes)
	assert.Equal(t, 3*time.Second, cfg.Proxy.Timeout)
}

func TestExplicitTOMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.toml")
	require.NoError(t, os.WriteFile(path, []byte("[log]\nformat = \"json\"\nlevel = \"debug\"\n"), 0o644))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestValidation(t *testing.T) {
	t.Setenv("CHANDASH_LOG_FORMAT", "xml")
	_, err := Load(t.TempDir())
	require.Error(t, err)
}
