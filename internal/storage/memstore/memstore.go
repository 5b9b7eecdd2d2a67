// Package memstore is a non-durable telemetry store kept in process memory.
// It backs the daemon when persistence is disabled and serves as the
// reference implementation in tests.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/xtxerr/playertrack/internal/errors"
	"github.com/xtxerr/playertrack/internal/storage/types"
)

// Store holds samples and records in memory.
//
// Store is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	samples []types.Sample
	records map[string]types.Record
	schema  bool
	closed  bool
}

// New creates an empty store.
func New() *Store {
	return &Store{records: make(map[string]types.Record)}
}

func (s *Store) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.closed {
		return errors.ErrClosed
	}
	return nil
}

// EnsureSchema marks the store ready. It is idempotent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return errors.Schema(err)
	}
	s.schema = true
	return nil
}

// QueryRange returns samples with startMs <= timestamp <= endMs, ordered
// by timestamp.
func (s *Store) QueryRange(ctx context.Context, startMs, endMs int64) ([]types.Sample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	var out []types.Sample
	for _, sample := range s.samples {
		if sample.TimestampMs >= startMs && sample.TimestampMs <= endMs {
			out = append(out, sample)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].TimestampMs < out[j].TimestampMs
	})
	return out, nil
}

// InsertSample appends one sample.
func (s *Store) InsertSample(ctx context.Context, sample types.Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	s.samples = append(s.samples, sample)
	return nil
}

// DeleteOlderThan removes samples with timestamp < ms.
func (s *Store) DeleteOlderThan(ctx context.Context, ms int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return 0, err
	}

	kept := s.samples[:0]
	var deleted int64
	for _, sample := range s.samples {
		if sample.TimestampMs < ms {
			deleted++
			continue
		}
		kept = append(kept, sample)
	}
	for i := len(kept); i < len(s.samples); i++ {
		s.samples[i] = types.Sample{}
	}
	s.samples = kept
	return deleted, nil
}

// GetRecord returns the record row for key.
func (s *Store) GetRecord(ctx context.Context, key string) (types.Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return types.Record{}, false, err
	}
	rec, ok := s.records[key]
	return rec, ok, nil
}

// GetLegacyRecord returns the highest stored sample for key, earliest on ties.
func (s *Store) GetLegacyRecord(ctx context.Context, key string) (types.Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return types.Record{}, false, err
	}

	var (
		best  types.Record
		found bool
	)
	for _, sample := range s.samples {
		if sample.EntityKey != key || !sample.PlayerCount.Valid {
			continue
		}
		better := !found ||
			sample.PlayerCount.Greater(best.PlayerCount) ||
			(sample.PlayerCount == best.PlayerCount && sample.TimestampMs < best.TimestampMs)
		if better {
			best = types.Record{PlayerCount: sample.PlayerCount, TimestampMs: sample.TimestampMs}
			found = true
		}
	}
	return best, found, nil
}

// InsertRecord creates the record row for key.
func (s *Store) InsertRecord(ctx context.Context, key string, rec types.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	if _, ok := s.records[key]; ok {
		return errors.Storage("insert record", errors.Wrapf(errors.ErrDuplicate, "record %q", key))
	}
	s.records[key] = rec
	return nil
}

// UpdateRecord overwrites the record row for key. Updating a missing row
// is a no-op, matching an SQL UPDATE.
func (s *Store) UpdateRecord(ctx context.Context, key string, rec types.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	if _, ok := s.records[key]; ok {
		s.records[key] = rec
	}
	return nil
}

// Close releases the store. It is idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Len returns the number of stored samples.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.samples)
}
