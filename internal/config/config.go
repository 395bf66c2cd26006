// Package config loads the data-source description spec.md §6 names: a
// structured configuration selecting a backend and its connection
// coordinates, or a bare SQLite file path relative to a data directory when
// the configured source is disabled or absent. Grounded on the teacher's
// internal/parser/toml (github.com/BurntSushi/toml struct-tag decoding),
// generalized from a schema-dump document to a connection document.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/FxRayHughes/ptcmapper/internal/dialect"
)

// DataSourceConfig is the structured configuration spec.md §6 recognizes.
// The zero value (Enable == false) falls back to a local SQLite file.
type DataSourceConfig struct {
	Enable   bool   `toml:"enable"`
	Type     string `toml:"type"` // sqlite, mysql, postgresql
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	Schema   string `toml:"schema"` // PostgreSQL only
}

// document is the top-level TOML file: a single [datasource] table.
type document struct {
	DataSource DataSourceConfig `toml:"datasource"`
}

// Load reads and decodes a TOML data-source configuration from path.
func Load(path string) (*DataSourceConfig, error) {
	var doc document
	if _, err := toml.DecodeFile(path, &doc); err != nil {
		return nil, fmt.Errorf("config: decode %q: %w", path, err)
	}
	return &doc.DataSource, nil
}

// Resolve turns cfg (possibly nil, possibly disabled) plus a SQLite fallback
// file path into a dialect.Type and dialect.ConnParams pair ready for
// dialect.Get + Dialect.OpenDSN. dataDir anchors a relative sqliteFile.
func Resolve(cfg *DataSourceConfig, dataDir, sqliteFile string) (dialect.Type, dialect.ConnParams, error) {
	if cfg == nil || !cfg.Enable {
		return dialect.SQLite, dialect.ConnParams{Path: sqlitePath(dataDir, sqliteFile)}, nil
	}

	switch dialect.Type(strings.ToLower(cfg.Type)) {
	case dialect.MySQL:
		return dialect.MySQL, dialect.ConnParams{
			Host: cfg.Host, Port: cfg.Port, User: cfg.User,
			Password: cfg.Password, Database: cfg.Database,
		}, nil
	case dialect.PostgreSQL:
		return dialect.PostgreSQL, dialect.ConnParams{
			Host: cfg.Host, Port: cfg.Port, User: cfg.User,
			Password: cfg.Password, Database: cfg.Database, Schema: cfg.Schema,
		}, nil
	case dialect.SQLite, "":
		return dialect.SQLite, dialect.ConnParams{Path: sqlitePath(dataDir, sqliteFile)}, nil
	default:
		return "", dialect.ConnParams{}, fmt.Errorf("config: unsupported datasource type %q", cfg.Type)
	}
}

func sqlitePath(dataDir, file string) string {
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(dataDir, file)
}

// EnsureDataDir creates dataDir if it does not already exist, mirroring the
// working-directory bootstrap every worker needs before opening a SQLite
// file under it.
func EnsureDataDir(dataDir string) error {
	return os.MkdirAll(dataDir, 0o755)
}
