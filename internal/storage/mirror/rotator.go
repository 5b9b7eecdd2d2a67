// Package mirror keeps a secondary copy of every inserted sample in a file
// that rotates whenever the period key changes (one file per local day by
// default). Mirror failures are logged and counted; they never reach the
// caller of the primary write.
package mirror

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xtxerr/playertrack/internal/logging"
	"github.com/xtxerr/playertrack/internal/storage/types"
)

var log = logging.Component("mirror")

// Sink receives mirrored samples for one period.
type Sink interface {
	InsertSample(ctx context.Context, sample types.Sample) error
	Close() error
}

// Opener creates the sink for a period.
type Opener func(ctx context.Context, period string) (Sink, error)

// DailyPeriod returns a period function keyed by the local date of now().
func DailyPeriod(now func() time.Time, layout string) func() string {
	if now == nil {
		now = time.Now
	}
	return func() string {
		return now().Format(layout)
	}
}

// Rotator writes samples to the sink of the current period.
//
// Rotator is safe for concurrent use.
type Rotator struct {
	mu      sync.Mutex
	open    Opener
	period  func() string
	current Sink
	key     string
	failed  string
	closed  bool

	rotations atomic.Int64
	mirrored  atomic.Int64
	failures  atomic.Int64
}

// New creates a rotator. Nothing is opened until the first Write.
func New(open Opener, period func() string) *Rotator {
	return &Rotator{open: open, period: period}
}

// Write mirrors one sample, rotating first if the period changed. A period
// whose copy failed to open is not retried until the period changes.
func (r *Rotator) Write(ctx context.Context, sample types.Sample) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}

	key := r.period()
	if key == r.failed {
		return
	}
	if r.current == nil || key != r.key {
		r.rotateLocked(ctx, key)
	}
	if r.current == nil {
		return
	}

	if err := r.current.InsertSample(ctx, sample); err != nil {
		r.failures.Add(1)
		log.Error("cannot insert into daily copy",
			"period", r.key,
			"key", sample.EntityKey,
			"error", err)
		return
	}
	r.mirrored.Add(1)
}

func (r *Rotator) rotateLocked(ctx context.Context, key string) {
	if r.current != nil {
		if err := r.current.Close(); err != nil {
			log.Warn("close daily copy", "period", r.key, "error", err)
		}
		r.current = nil
	}

	sink, err := r.open(ctx, key)
	if err != nil {
		r.failures.Add(1)
		r.failed = key
		log.Error("cannot open daily copy", "period", key, "error", err)
		return
	}

	r.failed = ""
	r.current = sink
	r.key = key
	r.rotations.Add(1)
	log.Info("daily copy opened", "period", key)
}

// Period returns the key of the open copy, or "" if none is open.
func (r *Rotator) Period() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return ""
	}
	return r.key
}

// Close closes the open copy. It is idempotent.
func (r *Rotator) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	if r.current == nil {
		return nil
	}
	err := r.current.Close()
	r.current = nil
	return err
}

// Stats returns rotator statistics.
func (r *Rotator) Stats() Stats {
	return Stats{
		Rotations: r.rotations.Load(),
		Mirrored:  r.mirrored.Load(),
		Failures:  r.failures.Load(),
	}
}

// Stats holds rotator statistics.
type Stats struct {
	Rotations int64
	Mirrored  int64
	Failures  int64
}
