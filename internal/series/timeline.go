package series

import "github.com/xtxerr/playertrack/internal/storage/types"

// Timeline is the shared timestamp axis of all server windows.
// It is a window whose values are never read.
type Timeline struct {
	w *Window
}

// NewTimeline creates a timeline of the given capacity.
func NewTimeline(capacity int) *Timeline {
	return &Timeline{w: NewWindow(capacity)}
}

// Append records one poll round.
func (t *Timeline) Append(tsMs int64) {
	t.w.Append(Point{TimestampMs: tsMs, Value: types.Absent})
}

// Seed replaces the timeline, keeping the newest capacity entries.
func (t *Timeline) Seed(timestamps []int64) {
	points := make([]Point, len(timestamps))
	for i, ts := range timestamps {
		points[i] = Point{TimestampMs: ts}
	}
	t.w.Seed(points)
}

// Timestamps returns the axis, oldest first.
func (t *Timeline) Timestamps() []int64 {
	return t.w.Timestamps()
}

// Newest returns the timestamp of the latest round.
func (t *Timeline) Newest() (int64, bool) {
	p, ok := t.w.Newest()
	return p.TimestampMs, ok
}

// Len returns the number of rounds held.
func (t *Timeline) Len() int {
	return t.w.Len()
}

// Cap returns the capacity of the timeline.
func (t *Timeline) Cap() int {
	return t.w.Cap()
}
