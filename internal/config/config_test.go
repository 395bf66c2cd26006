package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/FxRayHughes/ptcmapper/internal/config"
	"github.com/FxRayHughes/ptcmapper/internal/dialect"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "datasource.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadMySQL(t *testing.T) {
	path := writeConfig(t, `
[datasource]
enable = true
type = "mysql"
host = "db.internal"
port = 3306
user = "ptc"
password = "secret"
database = "game"
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.True(t, cfg.Enable)
	require.Equal(t, "mysql", cfg.Type)
	require.Equal(t, "db.internal", cfg.Host)
	require.Equal(t, 3306, cfg.Port)

	typ, params, err := config.Resolve(cfg, "/data", "fallback.db")
	require.NoError(t, err)
	require.Equal(t, dialect.MySQL, typ)
	require.Equal(t, "game", params.Database)
}

func TestResolveDisabledFallsBackToSQLite(t *testing.T) {
	cfg := &config.DataSourceConfig{Enable: false}

	typ, params, err := config.Resolve(cfg, "/var/data", "world.db")
	require.NoError(t, err)
	require.Equal(t, dialect.SQLite, typ)
	require.Equal(t, "/var/data/world.db", params.Path)
}

func TestResolveNilConfigFallsBackToSQLite(t *testing.T) {
	typ, params, err := config.Resolve(nil, "/var/data", "world.db")
	require.NoError(t, err)
	require.Equal(t, dialect.SQLite, typ)
	require.Equal(t, "/var/data/world.db", params.Path)
}

func TestResolveUnsupportedTypeErrors(t *testing.T) {
	cfg := &config.DataSourceConfig{Enable: true, Type: "oracle"}
	_, _, err := config.Resolve(cfg, "/var/data", "world.db")
	require.Error(t, err)
}

func TestResolveAbsoluteSQLitePathIgnoresDataDir(t *testing.T) {
	typ, params, err := config.Resolve(nil, "/var/data", "/tmp/standalone.db")
	require.NoError(t, err)
	require.Equal(t, dialect.SQLite, typ)
	require.Equal(t, "/tmp/standalone.db", params.Path)
}
