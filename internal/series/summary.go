package series

import (
	"math"

	"github.com/DataDog/sketches-go/ddsketch"
)

// Summary describes the distribution of the present values in a window.
type Summary struct {
	Count   int64    `json:"count"`
	Missing int64    `json:"missing"`
	Min     float64  `json:"min"`
	Max     float64  `json:"max"`
	Avg     float64  `json:"avg"`
	P50     *float64 `json:"p50,omitempty"`
	P95     *float64 `json:"p95,omitempty"`
	P99     *float64 `json:"p99,omitempty"`
	FirstTs int64    `json:"firstTs"`
	LastTs  int64    `json:"lastTs"`
}

// SummaryAccuracy is the relative accuracy of the percentile sketch.
const SummaryAccuracy = 0.01

// Summarize computes running statistics and percentiles over points.
// Absent values are counted in Missing and otherwise ignored.
func Summarize(points []Point) Summary {
	var s Summary
	if len(points) == 0 {
		return s
	}

	s.FirstTs = points[0].TimestampMs
	s.LastTs = points[len(points)-1].TimestampMs

	sketch, err := ddsketch.NewDefaultDDSketch(SummaryAccuracy)
	if err != nil {
		sketch = nil
	}

	var sum float64
	min, max := math.MaxFloat64, -math.MaxFloat64
	for _, p := range points {
		if !p.Value.Valid {
			s.Missing++
			continue
		}
		v := float64(p.Value.N)
		s.Count++
		sum += v
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
		if sketch != nil {
			// Add only fails outside the indexable range.
			_ = sketch.Add(v)
		}
	}

	if s.Count == 0 {
		return s
	}

	s.Min = min
	s.Max = max
	s.Avg = sum / float64(s.Count)

	if sketch != nil {
		s.P50 = quantile(sketch, 0.50)
		s.P95 = quantile(sketch, 0.95)
		s.P99 = quantile(sketch, 0.99)
	}
	return s
}

func quantile(sketch *ddsketch.DDSketch, q float64) *float64 {
	v, err := sketch.GetValueAtQuantile(q)
	if err != nil {
		return nil
	}
	return &v
}
