// Package config holds the storage and retention configuration.
package config

import (
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"

	defaults "github.com/xtxerr/playertrack/config"
	"github.com/xtxerr/playertrack/internal/constants"
)

// Config represents the complete storage configuration.
type Config struct {
	// Enabled turns persistence on. When false an in-memory engine is used
	// and nothing survives a restart.
	Enabled bool `yaml:"enabled" env:"LOG_TO_DATABASE"`

	// Type selects the backend: sqlite, duckdb, mysql or memory.
	Type string `yaml:"type" env:"DB_TYPE"`

	// Path is the database file of embedded backends.
	Path string `yaml:"path" env:"SQLITE_FILENAME"`

	// MySQL configures the networked backend.
	MySQL MySQLConfig `yaml:"mysql" envPrefix:"MYSQL_"`

	// MaxOpenConns is the maximum number of open connections.
	MaxOpenConns int `yaml:"max_open_conns" env:"MYSQL_CONNECTION_LIMIT"`

	// MaxIdleConns is the maximum number of idle connections.
	MaxIdleConns int `yaml:"max_idle_conns"`

	// ConnMaxLifetime is the maximum lifetime of a connection.
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`

	// QueryTimeout bounds each storage call that arrives without a deadline.
	QueryTimeout time.Duration `yaml:"query_timeout"`

	// DailyCopy mirrors samples into one file per day.
	DailyCopy DailyCopyConfig `yaml:"daily_copy"`
}

// MySQLConfig configures the networked backend.
type MySQLConfig struct {
	Host     string `yaml:"host" env:"HOST"`
	Port     int    `yaml:"port" env:"PORT"`
	User     string `yaml:"user" env:"USER"`
	Password string `yaml:"password" env:"PASSWORD"`
	Database string `yaml:"database" env:"DATABASE"`
}

// DailyCopyConfig configures the per-day mirror of the sample table.
type DailyCopyConfig struct {
	// Enabled turns the mirror on. Only embedded backends support it.
	Enabled bool `yaml:"enabled" env:"CREATE_DAILY_DATABASE_COPY"`

	// Dir is where copies are created.
	Dir string `yaml:"dir" env:"DAILY_COPY_DIR"`
}

// RetentionConfig configures the sweeper.
type RetentionConfig struct {
	// Enabled turns the sweeper on.
	Enabled bool `yaml:"enabled" env:"OLD_PINGS_CLEANUP"`

	// Interval is the time between sweeps. Zero disables recurring sweeps;
	// the startup sweep still runs.
	Interval time.Duration `yaml:"interval" env:"OLD_PINGS_CLEANUP_INTERVAL"`

	// Archive exports swept samples before they are deleted.
	Archive ArchiveConfig `yaml:"archive"`
}

// ArchiveConfig configures the Parquet export of swept samples.
type ArchiveConfig struct {
	Enabled bool `yaml:"enabled" env:"ARCHIVE_ENABLED"`

	// Dir is where archive files are written.
	Dir string `yaml:"dir" env:"ARCHIVE_DIR"`

	// Compression is one of: zstd, snappy, gzip, lz4, none.
	Compression string `yaml:"compression" env:"ARCHIVE_COMPRESSION"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:         true,
		Type:            defaults.DefaultStorageType,
		Path:            defaults.DefaultDatabasePath,
		MaxOpenConns:    defaults.DefaultMaxOpenConns,
		MaxIdleConns:    defaults.DefaultMaxIdleConns,
		ConnMaxLifetime: defaults.DefaultConnMaxLifetime,
		QueryTimeout:    defaults.DefaultQueryTimeout,
		MySQL: MySQLConfig{
			Host:     "localhost",
			Port:     defaults.DefaultMySQLPort,
			Database: defaults.DefaultMySQLDatabase,
		},
		DailyCopy: DailyCopyConfig{
			Dir: defaults.DefaultDailyCopyDir,
		},
	}
}

// DefaultRetention returns the default sweeper configuration.
func DefaultRetention() RetentionConfig {
	return RetentionConfig{
		Enabled:  true,
		Interval: defaults.DefaultRetentionInterval,
		Archive: ArchiveConfig{
			Dir:         defaults.DefaultArchiveDir,
			Compression: "zstd",
		},
	}
}

// EffectiveType returns the backend actually used, honoring Enabled.
func (c *Config) EffectiveType() string {
	if !c.Enabled {
		return constants.BackendMemory
	}
	return c.Type
}

// DSN builds the driver data source name for the selected backend.
func (c *Config) DSN() string {
	switch c.EffectiveType() {
	case constants.BackendSQLite:
		return fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)",
			filepath.ToSlash(c.Path), defaults.DefaultBusyTimeoutMs)
	case constants.BackendDuckDB:
		return c.Path
	case constants.BackendMySQL:
		mc := mysql.NewConfig()
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(c.MySQL.Host, strconv.Itoa(c.MySQL.Port))
		mc.User = c.MySQL.User
		mc.Passwd = c.MySQL.Password
		mc.DBName = c.MySQL.Database
		return mc.FormatDSN()
	default:
		return ""
	}
}

// WindowCapacity returns how many poll rounds fit in duration.
func WindowCapacity(duration, interval time.Duration) int {
	if interval <= 0 || duration <= 0 {
		return 1
	}
	n := int((duration + interval - 1) / interval)
	if n < 1 {
		n = 1
	}
	return n
}
