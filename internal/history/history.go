// Package history rebuilds the in-memory windows from storage at startup.
package history

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/xtxerr/playertrack/internal/logging"
	"github.com/xtxerr/playertrack/internal/roster"
	"github.com/xtxerr/playertrack/internal/series"
	"github.com/xtxerr/playertrack/internal/storage"
	"github.com/xtxerr/playertrack/internal/storage/types"
)

var log = logging.Component("history")

// Target is the state a Loader seeds.
type Target struct {
	// Timeline is the shared timestamp axis.
	Timeline *series.Timeline

	// Windows holds one window per entity key.
	Windows map[string]*series.Window
}

// Result summarizes one load.
type Result struct {
	// Rows is the number of samples read from storage.
	Rows int

	// Entities is the number of roster entities that had samples.
	Entities int

	// Ignored is the number of samples whose key is not in the roster.
	Ignored int

	// TimelineLen is the length of the seeded timeline.
	TimelineLen int
}

// Loader reads the samples of the last horizon and seeds a Target.
type Loader struct {
	engine  storage.Engine
	roster  *roster.Roster
	horizon time.Duration
	now     func() time.Time
}

// New creates a loader.
func New(engine storage.Engine, r *roster.Roster, horizon time.Duration) *Loader {
	return &Loader{
		engine:  engine,
		roster:  r,
		horizon: horizon,
		now:     time.Now,
	}
}

// WithClock replaces the clock used to compute the load range.
func (l *Loader) WithClock(now func() time.Time) *Loader {
	l.now = now
	return l
}

// Load queries [now - horizon, now] and seeds t.
//
// The timeline is taken from the first roster entity that has samples.
// Entities with fewer samples than the timeline are left-padded with
// absent values on the timeline's leading timestamps. Windows keep only
// their newest Cap() points. An empty range leaves every window empty.
func (l *Loader) Load(ctx context.Context, t Target) (Result, error) {
	end := l.now().UnixMilli()
	start := end - l.horizon.Milliseconds()

	began := time.Now()
	rows, err := l.engine.QueryRange(ctx, start, end)
	if err != nil {
		return Result{}, fmt.Errorf("load history: %w", err)
	}

	res := Result{Rows: len(rows)}
	grouped := make(map[string][]types.Sample)
	for _, s := range rows {
		if _, ok := l.roster.ByKey(s.EntityKey); !ok {
			res.Ignored++
			continue
		}
		grouped[s.EntityKey] = append(grouped[s.EntityKey], s)
	}
	for _, samples := range grouped {
		sort.SliceStable(samples, func(i, j int) bool {
			return samples[i].TimestampMs < samples[j].TimestampMs
		})
	}

	if len(grouped) == 0 {
		t.Timeline.Seed(nil)
		for _, w := range t.Windows {
			w.Clear()
		}
		log.Info("no history in range", "start_ms", start, "end_ms", end)
		return res, nil
	}

	timeline := l.timeline(grouped, t.Timeline.Cap())
	t.Timeline.Seed(timeline)
	res.TimelineLen = len(timeline)

	for _, srv := range l.roster.All() {
		w, ok := t.Windows[srv.Key()]
		if !ok {
			continue
		}
		samples := grouped[srv.Key()]
		if len(samples) > 0 {
			res.Entities++
		}
		w.Seed(align(samples, timeline))
	}

	log.Info("history loaded",
		"rows", res.Rows,
		"entities", res.Entities,
		"ignored", res.Ignored,
		"timeline", res.TimelineLen,
		"elapsed", time.Since(began))
	return res, nil
}

func (l *Loader) timeline(grouped map[string][]types.Sample, capacity int) []int64 {
	for _, srv := range l.roster.All() {
		samples := grouped[srv.Key()]
		if len(samples) == 0 {
			continue
		}
		if len(samples) > capacity {
			samples = samples[len(samples)-capacity:]
		}
		ts := make([]int64, len(samples))
		for i, s := range samples {
			ts[i] = s.TimestampMs
		}
		return ts
	}
	return nil
}

// align converts samples to points, left-padded to the timeline length.
func align(samples []types.Sample, timeline []int64) []series.Point {
	pad := len(timeline) - len(samples)
	if pad < 0 {
		pad = 0
	}

	points := make([]series.Point, 0, pad+len(samples))
	for i := 0; i < pad; i++ {
		points = append(points, series.Point{TimestampMs: timeline[i], Value: types.Absent})
	}
	for _, s := range samples {
		points = append(points, series.Point{TimestampMs: s.TimestampMs, Value: s.PlayerCount})
	}
	return points
}
