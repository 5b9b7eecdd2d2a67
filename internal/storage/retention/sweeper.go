// Package retention deletes samples that fell out of the retention horizon.
//
// A Sweeper runs once at startup and then every Interval. Before deleting,
// it can export the expiring rows to a Parquet archive; if the export
// fails the delete is skipped until the next tick.
package retention

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/xtxerr/playertrack/internal/logging"
	"github.com/xtxerr/playertrack/internal/storage"
	"github.com/xtxerr/playertrack/internal/storage/config"
	"github.com/xtxerr/playertrack/internal/storage/parquet"
)

var log = logging.Component("retention")

// Stats holds retention statistics.
type Stats struct {
	LastRunTime     time.Time
	Sweeps          int64
	SamplesDeleted  int64
	SamplesArchived int64
	Errors          int64
}

// Result holds the result of one sweep.
type Result struct {
	Cutoff   int64 // samples with timestamp < Cutoff were removed
	Deleted  int64
	Archived int64
	Archive  string // archive file, empty when nothing was archived
	Elapsed  time.Duration
}

// Sweeper periodically removes expired samples.
type Sweeper struct {
	engine  storage.Engine
	horizon time.Duration
	cfg     config.RetentionConfig
	now     func() time.Time

	sweeping sync.Mutex

	mu    sync.Mutex
	stats Stats
}

// New creates a sweeper removing samples older than horizon.
func New(engine storage.Engine, horizon time.Duration, cfg config.RetentionConfig) *Sweeper {
	return &Sweeper{
		engine:  engine,
		horizon: horizon,
		cfg:     cfg,
		now:     time.Now,
	}
}

// WithClock replaces the clock used to compute the cutoff.
func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	s.now = now
	return s
}

// Run sweeps once, then on every interval until ctx is done. A zero
// interval stops after the first sweep. Failures are logged and never
// end the loop.
func (s *Sweeper) Run(ctx context.Context) error {
	s.sweepAndLog(ctx)

	if s.cfg.Interval <= 0 {
		log.Info("recurring sweeps disabled")
		return nil
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.sweepAndLog(ctx)
		}
	}
}

func (s *Sweeper) sweepAndLog(ctx context.Context) {
	res, err := s.Sweep(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Error("sweep failed", "cutoff_ms", res.Cutoff, "error", err)
		}
		return
	}
	log.Info("sweep finished",
		"deleted", res.Deleted,
		"archived", res.Archived,
		"elapsed", res.Elapsed)
}

// Sweep removes every sample older than now - horizon. Concurrent calls
// run one at a time; GetStats never waits on a running sweep.
func (s *Sweeper) Sweep(ctx context.Context) (Result, error) {
	s.sweeping.Lock()
	defer s.sweeping.Unlock()

	start := time.Now()
	res, err := s.sweep(ctx, s.now().UnixMilli()-s.horizon.Milliseconds())
	res.Elapsed = time.Since(start)

	s.mu.Lock()
	s.stats.LastRunTime = start
	s.stats.Sweeps++
	s.stats.SamplesArchived += res.Archived
	s.stats.SamplesDeleted += res.Deleted
	if err != nil {
		s.stats.Errors++
	}
	s.mu.Unlock()
	return res, err
}

func (s *Sweeper) sweep(ctx context.Context, cutoff int64) (Result, error) {
	res := Result{Cutoff: cutoff}

	if s.cfg.Archive.Enabled {
		path, n, err := s.archive(ctx, cutoff)
		if err != nil {
			return res, fmt.Errorf("archive: %w", err)
		}
		res.Archive, res.Archived = path, n
	}

	deleted, err := s.engine.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return res, err
	}
	res.Deleted = deleted
	return res, nil
}

// archive writes the samples below cutoff to a new Parquet file.
func (s *Sweeper) archive(ctx context.Context, cutoff int64) (string, int64, error) {
	samples, err := s.engine.QueryRange(ctx, 0, cutoff-1)
	if err != nil {
		return "", 0, err
	}
	if len(samples) == 0 {
		return "", 0, nil
	}

	a, err := parquet.Create(ArchivePath(s.cfg.Archive.Dir, cutoff), s.cfg.Archive.Compression, cutoff)
	if err != nil {
		return "", 0, err
	}
	if err := a.Write(samples); err != nil {
		a.Abort()
		return "", 0, err
	}
	if err := a.Commit(); err != nil {
		return "", 0, err
	}
	return a.Path(), a.Rows(), nil
}

// ArchivePath names the archive of all samples before cutoffMs.
func ArchivePath(dir string, cutoffMs int64) string {
	return filepath.Join(dir, "samples_before_"+strconv.FormatInt(cutoffMs, 10)+".parquet")
}

// GetStats returns a copy of the statistics.
func (s *Sweeper) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}
