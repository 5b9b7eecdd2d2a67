// Package sqlstore implements the telemetry store on database/sql.
//
// One implementation serves the embedded sqlite (modernc.org/sqlite) and
// DuckDB backends and the networked MySQL backend. The physical schema is
// shared with existing deployments:
//
//	pings(timestamp BIGINT NOT NULL, ip TEXT, playerCount INTEGER)
//	players_record(ip PRIMARY KEY, timestamp BIGINT, playerCount INTEGER)
//
// Every call runs on its own pooled connection, so callers on different
// goroutines never share a statement.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"

	"github.com/xtxerr/playertrack/internal/constants"
	"github.com/xtxerr/playertrack/internal/errors"
	"github.com/xtxerr/playertrack/internal/logging"
	"github.com/xtxerr/playertrack/internal/storage/types"
)

var log = logging.Component("sqlstore")

// =============================================================================
// Store Configuration
// =============================================================================

// Config holds store configuration options.
type Config struct {
	// Backend is the dialect name: sqlite, duckdb or mysql.
	Backend string

	// DSN is the database connection string.
	DSN string

	// MaxOpenConns is the maximum number of open connections.
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	MaxIdleConns int

	// ConnMaxLifetime is the maximum lifetime of a connection.
	ConnMaxLifetime time.Duration

	// QueryTimeout is the default timeout for calls without a deadline.
	QueryTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Backend:         constants.BackendSQLite,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		QueryTimeout:    30 * time.Second,
	}
}

// =============================================================================
// Store
// =============================================================================

// Store provides the telemetry operations over a SQL database.
//
// Store is safe for concurrent use.
type Store struct {
	db      *sql.DB
	dialect Dialect
	q       queries
	config  Config
	mu      sync.RWMutex
	closed  bool
}

// Open opens the database and verifies the connection.
// The schema is not touched until EnsureSchema is called.
func Open(cfg Config) (*Store, error) {
	dialect, err := LookupDialect(cfg.Backend)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(dialect.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	log.Debug("database opened", "backend", dialect.Name)

	return &Store{
		db:      db,
		dialect: dialect,
		q:       dialect.render(),
		config:  cfg,
	}, nil
}

// Close closes the store. It is idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	return s.db.Close()
}

// Backend returns the dialect name.
func (s *Store) Backend() string {
	return s.dialect.Name
}

func (s *Store) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// withTimeout applies the default query timeout when ctx has no deadline.
func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || s.config.QueryTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.config.QueryTimeout)
}

// =============================================================================
// Schema
// =============================================================================

// EnsureSchema creates the sample and record tables and their indexes if
// absent. Failures are fatal to startup.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if err := s.exec(ctx, s.dialect.sampleSchema); err != nil {
		return errors.Schema(err)
	}
	if err := s.exec(ctx, s.dialect.recordSchema); err != nil {
		return errors.Schema(err)
	}
	return nil
}

// EnsureSampleTable creates only the sample table. Daily copies use it.
func (s *Store) EnsureSampleTable(ctx context.Context) error {
	return errors.Schema(s.exec(ctx, s.dialect.sampleSchema))
}

func (s *Store) exec(ctx context.Context, stmts []string) error {
	if s.isClosed() {
		return errors.ErrClosed
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: %w", stmt, err)
		}
	}
	return nil
}

// =============================================================================
// Samples
// =============================================================================

// QueryRange returns every sample with startMs <= timestamp <= endMs.
func (s *Store) QueryRange(ctx context.Context, startMs, endMs int64) ([]types.Sample, error) {
	if s.isClosed() {
		return nil, errors.ErrClosed
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, s.q.queryRange, startMs, endMs)
	if err != nil {
		return nil, errors.Storage("query range", err)
	}
	defer rows.Close()

	var samples []types.Sample
	for rows.Next() {
		var (
			ts    int64
			ip    sql.NullString
			count sql.NullInt64
		)
		if err := rows.Scan(&ts, &ip, &count); err != nil {
			return nil, errors.Storage("scan sample", err)
		}
		samples = append(samples, types.Sample{
			EntityKey:   ip.String,
			TimestampMs: ts,
			PlayerCount: fromNull(count),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Storage("query range", err)
	}
	return samples, nil
}

// InsertSample appends one sample.
func (s *Store) InsertSample(ctx context.Context, sample types.Sample) error {
	if s.isClosed() {
		return errors.ErrClosed
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, s.q.insertSample,
		sample.TimestampMs, sample.EntityKey, toNull(sample.PlayerCount))
	return errors.Storage("insert sample", err)
}

// DeleteOlderThan removes samples with timestamp < ms and returns how
// many rows were deleted.
func (s *Store) DeleteOlderThan(ctx context.Context, ms int64) (int64, error) {
	if s.isClosed() {
		return 0, errors.ErrClosed
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, s.q.deleteOlder, ms)
	if err != nil {
		return 0, errors.Storage("delete old samples", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		// Some drivers cannot report affected rows; the delete still ran.
		return 0, nil
	}
	return n, nil
}

// =============================================================================
// Records
// =============================================================================

// GetRecord returns the stored record row for key. A row holding an
// unknown record is still reported as found.
func (s *Store) GetRecord(ctx context.Context, key string) (types.Record, bool, error) {
	return s.queryRecord(ctx, "get record", s.q.getRecord, key)
}

// GetLegacyRecord derives a record from the highest sample ever stored
// for key. Ties resolve to the earliest sample.
func (s *Store) GetLegacyRecord(ctx context.Context, key string) (types.Record, bool, error) {
	return s.queryRecord(ctx, "get legacy record", s.q.getLegacy, key)
}

func (s *Store) queryRecord(ctx context.Context, op, query, key string) (types.Record, bool, error) {
	if s.isClosed() {
		return types.Record{}, false, errors.ErrClosed
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var count, ts sql.NullInt64
	err := s.db.QueryRowContext(ctx, query, key).Scan(&count, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Record{}, false, nil
	}
	if err != nil {
		return types.Record{}, false, errors.Storage(op, err)
	}

	rec := types.Record{PlayerCount: fromNull(count)}
	if rec.Known() {
		rec.TimestampMs = ts.Int64
	}
	return rec, true, nil
}

// InsertRecord creates the record row for key.
func (s *Store) InsertRecord(ctx context.Context, key string, rec types.Record) error {
	if s.isClosed() {
		return errors.ErrClosed
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, s.q.insertRecord, recordTimestamp(rec), key, toNull(rec.PlayerCount))
	if isDuplicate(err) {
		err = fmt.Errorf("record %q: %w: %w", key, errors.ErrDuplicate, err)
	}
	return errors.Storage("insert record", err)
}

// UpdateRecord overwrites the record row for key.
func (s *Store) UpdateRecord(ctx context.Context, key string, rec types.Record) error {
	if s.isClosed() {
		return errors.ErrClosed
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, s.q.updateRecord, recordTimestamp(rec), toNull(rec.PlayerCount), key)
	return errors.Storage("update record", err)
}

// =============================================================================
// Helpers
// =============================================================================

// isDuplicate reports whether err is a primary key violation raised by
// any of the supported drivers.
func isDuplicate(err error) bool {
	if err == nil {
		return false
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1062
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "Duplicate key")
}

func toNull(c types.Count) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(c.N), Valid: c.Valid}
}

func fromNull(n sql.NullInt64) types.Count {
	if !n.Valid {
		return types.Absent
	}
	return types.Of(int(n.Int64))
}

func recordTimestamp(rec types.Record) sql.NullInt64 {
	return sql.NullInt64{Int64: rec.TimestampMs, Valid: rec.Known()}
}

