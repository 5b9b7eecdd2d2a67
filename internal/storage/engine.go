package storage

import (
	"context"

	"github.com/xtxerr/playertrack/internal/storage/types"
)

// Engine is the storage contract every backend satisfies.
//
// Every method blocks until the backend has answered or ctx is done, and
// every implementation is safe for concurrent use. Failures wrap
// errors.ErrStorage, except EnsureSchema which wraps errors.ErrSchema.
type Engine interface {
	// EnsureSchema creates tables and indexes if absent. Idempotent.
	EnsureSchema(ctx context.Context) error

	// QueryRange returns all samples with startMs <= timestamp <= endMs.
	QueryRange(ctx context.Context, startMs, endMs int64) ([]types.Sample, error)

	// GetRecord returns the stored record of key, if a row exists.
	GetRecord(ctx context.Context, key string) (types.Record, bool, error)

	// GetLegacyRecord derives a record from the maximum sample of key.
	GetLegacyRecord(ctx context.Context, key string) (types.Record, bool, error)

	// InsertSample appends a sample.
	InsertSample(ctx context.Context, sample types.Sample) error

	// InsertRecord creates the record row of key.
	InsertRecord(ctx context.Context, key string, rec types.Record) error

	// UpdateRecord overwrites the record row of key.
	UpdateRecord(ctx context.Context, key string, rec types.Record) error

	// DeleteOlderThan removes samples with timestamp < ms.
	DeleteOlderThan(ctx context.Context, ms int64) (int64, error)

	// Close releases the backend. Idempotent.
	Close() error
}
