package config

import (
	"fmt"

	"github.com/xtxerr/playertrack/internal/constants"
	"github.com/xtxerr/playertrack/internal/errors"
)

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	errs := errors.NewValidationErrors()

	if !constants.IsValidBackend(c.Type) {
		errs.AddField("storage.type", fmt.Sprintf("must be one of %v", constants.ValidBackends))
	}

	switch c.EffectiveType() {
	case constants.BackendSQLite, constants.BackendDuckDB:
		if c.Path == "" {
			errs.AddMissing("storage.path")
		}
	case constants.BackendMySQL:
		if c.MySQL.Host == "" {
			errs.AddMissing("storage.mysql.host")
		}
		if c.MySQL.Port <= 0 || c.MySQL.Port > 65535 {
			errs.AddField("storage.mysql.port", "must be in 1..65535")
		}
		if c.MySQL.Database == "" {
			errs.AddMissing("storage.mysql.database")
		}
	}

	if c.MaxOpenConns < 0 {
		errs.AddField("storage.max_open_conns", "cannot be negative")
	}
	if c.MaxIdleConns < 0 {
		errs.AddField("storage.max_idle_conns", "cannot be negative")
	}
	if c.QueryTimeout < 0 {
		errs.AddField("storage.query_timeout", "cannot be negative")
	}

	if c.DailyCopy.Enabled && c.Enabled && !constants.IsEmbeddedBackend(c.Type) {
		errs.AddField("storage.daily_copy.enabled", "only supported by embedded backends")
	}

	return errs.ErrOrNil()
}

// Validate checks the retention configuration.
func (c *RetentionConfig) Validate() error {
	errs := errors.NewValidationErrors()

	if c.Interval < 0 {
		errs.AddField("retention.interval", "cannot be negative")
	}
	if c.Archive.Enabled && c.Archive.Dir == "" {
		errs.AddMissing("retention.archive.dir")
	}
	switch c.Archive.Compression {
	case "", "zstd", "snappy", "gzip", "lz4", "none":
	default:
		errs.AddField("retention.archive.compression", "must be zstd, snappy, gzip, lz4 or none")
	}

	return errs.ErrOrNil()
}
