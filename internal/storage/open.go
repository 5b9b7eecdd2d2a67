package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	defaults "github.com/xtxerr/playertrack/config"
	"github.com/xtxerr/playertrack/internal/constants"
	"github.com/xtxerr/playertrack/internal/errors"
	"github.com/xtxerr/playertrack/internal/logging"
	"github.com/xtxerr/playertrack/internal/storage/config"
	"github.com/xtxerr/playertrack/internal/storage/memstore"
	"github.com/xtxerr/playertrack/internal/storage/mirror"
	"github.com/xtxerr/playertrack/internal/storage/sqlstore"
	"github.com/xtxerr/playertrack/internal/storage/types"
)

var log = logging.Component("storage")

// Option customizes Open.
type Option func(*options)

type options struct {
	period func() string
}

// WithPeriod overrides the daily copy period function.
func WithPeriod(period func() string) Option {
	return func(o *options) { o.period = period }
}

// Open opens the configured backend. When the daily copy is enabled the
// returned engine mirrors every inserted sample.
func Open(cfg config.Config, opts ...Option) (Engine, error) {
	o := options{
		period: mirror.DailyPeriod(time.Now, defaults.DefaultDailyCopyLayout),
	}
	for _, opt := range opts {
		opt(&o)
	}

	backend := cfg.EffectiveType()
	if backend == constants.BackendMemory {
		log.Warn("persistence disabled, samples are kept in memory only")
		return memstore.New(), nil
	}

	store, err := sqlstore.Open(sqlConfig(cfg, backend, cfg.DSN()))
	if err != nil {
		return nil, errors.Wrapf(err, "open %s storage", backend)
	}
	log.Info("storage opened", "backend", backend)

	if !cfg.DailyCopy.Enabled {
		return store, nil
	}
	if !constants.IsEmbeddedBackend(backend) {
		log.Warn("daily copy is only supported by embedded backends", "backend", backend)
		return store, nil
	}

	rot := mirror.New(copyOpener(cfg, backend), o.period)
	return &mirrored{Engine: store, rotator: rot}, nil
}

func sqlConfig(cfg config.Config, backend, dsn string) sqlstore.Config {
	return sqlstore.Config{
		Backend:         backend,
		DSN:             dsn,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		QueryTimeout:    cfg.QueryTimeout,
	}
}

// CopyPath returns the daily copy file of a period.
func CopyPath(dir, backend, period string) string {
	ext := ".sql"
	if backend == constants.BackendDuckDB {
		ext = ".duckdb"
	}
	return filepath.Join(dir, "database_copy_"+period+ext)
}

func copyOpener(cfg config.Config, backend string) mirror.Opener {
	return func(ctx context.Context, period string) (mirror.Sink, error) {
		if err := os.MkdirAll(cfg.DailyCopy.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("create copy dir: %w", err)
		}

		copyCfg := cfg
		copyCfg.Path = CopyPath(cfg.DailyCopy.Dir, backend, period)

		store, err := sqlstore.Open(sqlConfig(copyCfg, backend, copyCfg.DSN()))
		if err != nil {
			return nil, err
		}
		if err := store.EnsureSampleTable(ctx); err != nil {
			store.Close()
			return nil, err
		}
		return store, nil
	}
}

// mirrored duplicates sample inserts into the daily copy.
type mirrored struct {
	Engine
	rotator *mirror.Rotator
}

// InsertSample writes the primary row, then mirrors it. A mirror failure
// never fails or rolls back the primary write.
func (m *mirrored) InsertSample(ctx context.Context, sample types.Sample) error {
	if err := m.Engine.InsertSample(ctx, sample); err != nil {
		return err
	}
	m.rotator.Write(ctx, sample)
	return nil
}

func (m *mirrored) Close() error {
	copyErr := m.rotator.Close()
	if err := m.Engine.Close(); err != nil {
		return err
	}
	return copyErr
}

// MirrorStats returns the daily copy statistics of e, if it mirrors.
func MirrorStats(e Engine) (mirror.Stats, bool) {
	m, ok := e.(*mirrored)
	if !ok {
		return mirror.Stats{}, false
	}
	return m.rotator.Stats(), true
}
