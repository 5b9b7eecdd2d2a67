// Package record tracks the all-time peak player count of every server.
//
// At startup Reconcile loads each record. A server without a record row is
// migrated once from the maximum of its raw samples, so later startups
// take the fast path. Afterwards Observe raises a record on every strict
// increase; persisting the change is left to the caller.
package record

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	defaults "github.com/xtxerr/playertrack/config"
	"github.com/xtxerr/playertrack/internal/errors"
	"github.com/xtxerr/playertrack/internal/logging"
	"github.com/xtxerr/playertrack/internal/storage"
	"github.com/xtxerr/playertrack/internal/storage/types"
)

var log = logging.Component("record")

// Change is a record raised by Observe.
type Change struct {
	Key    string
	Record types.Record

	// Insert is set when no record row is known to exist yet and the
	// change must be persisted with InsertRecord instead of UpdateRecord.
	Insert bool
}

// ReconcileStats counts the outcome of Reconcile per entity.
type ReconcileStats struct {
	Stored   int // record row found
	Migrated int // derived from raw samples and inserted
	Unknown  int // no samples at all
	Failed   int // storage error; entity starts unknown
}

// Tracker holds the current record of every entity.
//
// Tracker is safe for concurrent use.
type Tracker struct {
	engine      storage.Engine
	keys        []string
	concurrency int

	mu      sync.RWMutex
	records map[string]types.Record
	stored  map[string]bool
}

// New creates a tracker for keys. All records start unknown.
func New(engine storage.Engine, keys []string) *Tracker {
	t := &Tracker{
		engine:      engine,
		keys:        append([]string(nil), keys...),
		concurrency: defaults.DefaultReconcileConcurrency,
		records:     make(map[string]types.Record, len(keys)),
		stored:      make(map[string]bool, len(keys)),
	}
	for _, k := range keys {
		t.records[k] = types.Record{}
	}
	return t
}

type outcome int

const (
	outcomeStored outcome = iota
	outcomeMigrated
	outcomeUnknown
	outcomeFailed
)

// Reconcile loads the record of every entity. Storage failures are logged
// and leave that entity unknown; only context cancellation is returned.
func (t *Tracker) Reconcile(ctx context.Context) (ReconcileStats, error) {
	var (
		statsMu sync.Mutex
		stats   ReconcileStats
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.concurrency)

	for _, key := range t.keys {
		key := key
		g.Go(func() error {
			o, err := t.reconcileOne(gctx, key)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				log.Error("record reconcile failed", "key", key, "error", err)
				o = outcomeFailed
			}

			statsMu.Lock()
			defer statsMu.Unlock()
			switch o {
			case outcomeStored:
				stats.Stored++
			case outcomeMigrated:
				stats.Migrated++
			case outcomeUnknown:
				stats.Unknown++
			default:
				stats.Failed++
			}
			return nil
		})
	}

	err := g.Wait()
	log.Info("records reconciled",
		"stored", stats.Stored,
		"migrated", stats.Migrated,
		"unknown", stats.Unknown,
		"failed", stats.Failed)
	return stats, err
}

func (t *Tracker) reconcileOne(ctx context.Context, key string) (outcome, error) {
	rec, found, err := t.engine.GetRecord(ctx, key)
	if err != nil {
		return outcomeFailed, err
	}
	if found {
		t.adopt(key, rec, true)
		return outcomeStored, nil
	}

	legacy, found, err := t.engine.GetLegacyRecord(ctx, key)
	if err != nil {
		return outcomeFailed, err
	}
	o := outcomeUnknown
	if found {
		rec = legacy
		o = outcomeMigrated
	}

	// The row is written even for an unknown record so the next startup
	// skips the sample scan.
	if err := t.engine.InsertRecord(ctx, key, rec); err != nil {
		t.adopt(key, rec, false)
		return outcomeFailed, err
	}
	t.adopt(key, rec, true)
	return o, nil
}

func (t *Tracker) adopt(key string, rec types.Record, stored bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records[key] = rec
	t.stored[key] = stored
}

// =============================================================================
// Live updates
// =============================================================================

// Observe raises the record of key when count strictly exceeds it. An
// unknown record is exceeded by any present count, zero included. Absent
// counts and unknown keys never change anything.
func (t *Tracker) Observe(key string, count types.Count, tsMs int64) (Change, bool) {
	if !count.Valid {
		return Change{}, false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	cur, ok := t.records[key]
	if !ok || !count.Greater(cur.PlayerCount) {
		return Change{}, false
	}

	rec := types.Record{PlayerCount: count, TimestampMs: tsMs}
	t.records[key] = rec
	ch := Change{Key: key, Record: rec, Insert: !t.stored[key]}
	t.stored[key] = true
	return ch, true
}

// Get returns the current record of key.
func (t *Tracker) Get(key string) types.Record {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.records[key]
}

// Snapshot returns a copy of all records keyed by entity.
func (t *Tracker) Snapshot() map[string]types.Record {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]types.Record, len(t.records))
	for k, v := range t.records {
		out[k] = v
	}
	return out
}

// Persist writes ch through engine. An insert that finds the row already
// present is retried as an update.
func Persist(ctx context.Context, engine storage.Engine, ch Change) error {
	if ch.Insert {
		err := engine.InsertRecord(ctx, ch.Key, ch.Record)
		if !errors.Is(err, errors.ErrDuplicate) {
			return err
		}
		log.Debug("record row exists, updating", "key", ch.Key)
	}
	return engine.UpdateRecord(ctx, ch.Key, ch.Record)
}
