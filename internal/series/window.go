// Package series holds the bounded in-memory time series shown to viewers.
//
// A Window keeps the newest N points of one server. Timestamps and values
// live in the same Point, so they can never drift out of alignment. The
// window also tracks its peak: the largest present value it currently
// holds, with ties resolved to the earliest point.
package series

import (
	"sync"
	"sync/atomic"

	"github.com/xtxerr/playertrack/internal/storage/types"
)

// Point is one aligned (timestamp, value) pair.
type Point struct {
	TimestampMs int64
	Value       types.Count
}

// Window is a thread-safe circular buffer of points with peak tracking.
type Window struct {
	mu       sync.RWMutex
	data     []Point
	head     int64 // Sequence number of the next write
	tail     int64 // Sequence number of the oldest point
	count    int64
	capacity int64

	peakSeq   int64
	peakValid bool

	// Statistics
	appendCount atomic.Int64
	evictCount  atomic.Int64
}

// NewWindow creates a window holding at most capacity points.
func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		capacity = 1
	}
	return &Window{
		data:     make([]Point, capacity),
		capacity: int64(capacity),
	}
}

// Append adds a point, evicting the oldest one when the window is full.
// The evicted point is returned with ok set.
func (w *Window) Append(p Point) (evicted Point, ok bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.appendLocked(p)
}

func (w *Window) appendLocked(p Point) (evicted Point, ok bool) {
	recompute := false
	if w.count >= w.capacity {
		idx := w.tail % w.capacity
		evicted, ok = w.data[idx], true
		w.data[idx] = Point{}
		if w.peakValid && w.peakSeq == w.tail {
			recompute = true
		}
		w.tail++
		w.count--
		w.evictCount.Add(1)
	}

	seq := w.head
	w.data[seq%w.capacity] = p
	w.head++
	w.count++
	w.appendCount.Add(1)

	if recompute {
		w.recomputePeakLocked()
	} else if p.Value.Greater(w.peakValueLocked()) {
		w.peakSeq = seq
		w.peakValid = true
	}

	return evicted, ok
}

// Seed replaces the window contents with points, oldest first. When more
// points than capacity are given only the newest are kept.
func (w *Window) Seed(points []Point) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.clearLocked()
	if n := int64(len(points)); n > w.capacity {
		points = points[n-w.capacity:]
	}
	for _, p := range points {
		w.appendLocked(p)
	}
}

// Points returns a copy of the points, oldest first.
func (w *Window) Points() []Point {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make([]Point, w.count)
	for i := int64(0); i < w.count; i++ {
		out[i] = w.data[(w.tail+i)%w.capacity]
	}
	return out
}

// Values returns the values, oldest first.
func (w *Window) Values() []types.Count {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make([]types.Count, w.count)
	for i := int64(0); i < w.count; i++ {
		out[i] = w.data[(w.tail+i)%w.capacity].Value
	}
	return out
}

// Timestamps returns the timestamps, oldest first.
func (w *Window) Timestamps() []int64 {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make([]int64, w.count)
	for i := int64(0); i < w.count; i++ {
		out[i] = w.data[(w.tail+i)%w.capacity].TimestampMs
	}
	return out
}

// Newest returns the most recent point.
// Returns false if the window is empty.
func (w *Window) Newest() (Point, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.count == 0 {
		return Point{}, false
	}
	return w.data[(w.head-1)%w.capacity], true
}

// Peak returns the largest present point, earliest on ties.
// Returns false if the window holds no present value.
func (w *Window) Peak() (Point, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if !w.peakValid {
		return Point{}, false
	}
	return w.data[w.peakSeq%w.capacity], true
}

func (w *Window) peakValueLocked() types.Count {
	if !w.peakValid {
		return types.Absent
	}
	return w.data[w.peakSeq%w.capacity].Value
}

func (w *Window) recomputePeakLocked() {
	w.peakValid = false
	for seq := w.tail; seq < w.head; seq++ {
		v := w.data[seq%w.capacity].Value
		if v.Greater(w.peakValueLocked()) {
			w.peakSeq = seq
			w.peakValid = true
		}
	}
}

// Len returns the current number of points.
func (w *Window) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return int(w.count)
}

// Cap returns the capacity of the window.
func (w *Window) Cap() int {
	return int(w.capacity)
}

// Clear removes all points.
func (w *Window) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.clearLocked()
}

func (w *Window) clearLocked() {
	for i := range w.data {
		w.data[i] = Point{}
	}
	w.head = 0
	w.tail = 0
	w.count = 0
	w.peakValid = false
}

// Stats returns window statistics.
func (w *Window) Stats() WindowStats {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return WindowStats{
		Capacity:    int(w.capacity),
		Count:       int(w.count),
		AppendCount: w.appendCount.Load(),
		EvictCount:  w.evictCount.Load(),
	}
}

// WindowStats holds window statistics.
type WindowStats struct {
	Capacity    int
	Count       int
	AppendCount int64
	EvictCount  int64
}
