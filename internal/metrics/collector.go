package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// collector reads component statistics at scrape time.
type collector struct {
	src Sources

	viewersOpen     *prometheus.Desc
	viewerAddresses *prometheus.Desc
	admitted        *prometheus.Desc
	rejected        *prometheus.Desc
	broadcasts      *prometheus.Desc
	framesSent      *prometheus.Desc
	framesSkipped   *prometheus.Desc
	rounds          *prometheus.Desc
	failedPings     *prometheus.Desc
	unknownEvents   *prometheus.Desc
	rejectedRounds  *prometheus.Desc
	writesPending   *prometheus.Desc
	writesCompleted *prometheus.Desc
	writesFailed    *prometheus.Desc
	writesDropped   *prometheus.Desc
	sweeps          *prometheus.Desc
	sweptSamples    *prometheus.Desc
	archivedSamples *prometheus.Desc
	sweepErrors     *prometheus.Desc
	lastSweep       *prometheus.Desc
	copyRotations   *prometheus.Desc
	copiedSamples   *prometheus.Desc
	copyFailures    *prometheus.Desc
}

func desc(name, help string, labels ...string) *prometheus.Desc {
	return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, labels, nil)
}

func newCollector(src Sources) *collector {
	return &collector{
		src:             src,
		viewersOpen:     desc("viewers_open", "Admitted viewer connections"),
		viewerAddresses: desc("viewer_addresses", "Distinct addresses with open viewer connections"),
		admitted:        desc("viewers_admitted_total", "Viewer connections admitted"),
		rejected:        desc("viewers_rejected_total", "Viewer connections rejected", "reason"),
		broadcasts:      desc("broadcasts_total", "Messages published to viewers"),
		framesSent:      desc("broadcast_frames_sent_total", "Frames queued on viewer connections"),
		framesSkipped:   desc("broadcast_frames_skipped_total", "Frames skipped for closed or saturated viewers"),
		rounds:          desc("rounds_total", "Poll rounds applied"),
		failedPings:     desc("failed_pings_total", "Events carrying a poll error"),
		unknownEvents:   desc("unknown_events_total", "Events for servers not in the roster"),
		rejectedRounds:  desc("rounds_rejected_total", "Poll rounds refused at submission"),
		writesPending:   desc("storage_writes_pending", "Storage writes waiting in queues"),
		writesCompleted: desc("storage_writes_completed_total", "Storage writes completed"),
		writesFailed:    desc("storage_writes_failed_total", "Storage writes that failed"),
		writesDropped:   desc("storage_writes_dropped_total", "Storage writes dropped on full queues"),
		sweeps:          desc("retention_sweeps_total", "Retention sweeps run"),
		sweptSamples:    desc("retention_deleted_samples_total", "Samples deleted by retention"),
		archivedSamples: desc("retention_archived_samples_total", "Samples exported before deletion"),
		sweepErrors:     desc("retention_errors_total", "Failed retention sweeps"),
		lastSweep:       desc("retention_last_run_timestamp_seconds", "Time of the last retention sweep"),
		copyRotations:   desc("daily_copy_rotations_total", "Daily copy files opened"),
		copiedSamples:   desc("daily_copy_samples_total", "Samples written to the daily copy"),
		copyFailures:    desc("daily_copy_failures_total", "Failed daily copy writes"),
	}
}

// Describe implements prometheus.Collector.
func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.viewersOpen, c.viewerAddresses, c.admitted, c.rejected,
		c.broadcasts, c.framesSent, c.framesSkipped,
		c.rounds, c.failedPings, c.unknownEvents, c.rejectedRounds,
		c.writesPending, c.writesCompleted, c.writesFailed, c.writesDropped,
		c.sweeps, c.sweptSamples, c.archivedSamples, c.sweepErrors, c.lastSweep,
		c.copyRotations, c.copiedSamples, c.copyFailures,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *collector) Collect(ch chan<- prometheus.Metric) {
	gauge := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, labels...)
	}
	counter := func(d *prometheus.Desc, v int64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}

	if g := c.src.Governor; g != nil {
		s := g.Stats()
		gauge(c.viewersOpen, float64(s.Open))
		gauge(c.viewerAddresses, float64(s.Addresses))
		counter(c.admitted, s.Admitted)
		for reason, n := range s.Rejected {
			counter(c.rejected, n, reason)
		}
	}

	if h := c.src.Hub; h != nil {
		s := h.GetStats()
		counter(c.broadcasts, s.Published)
		counter(c.framesSent, s.Sent)
		counter(c.framesSkipped, s.Skipped)
	}

	if p := c.src.Pipeline; p != nil {
		s := p.Stats()
		counter(c.rounds, s.Rounds)
		counter(c.failedPings, s.Failed)
		counter(c.unknownEvents, s.Unknown)
		counter(c.rejectedRounds, s.Rejected)
	}

	if w := c.src.Writer; w != nil {
		s := w.Stats()
		gauge(c.writesPending, float64(s.Pending))
		counter(c.writesCompleted, s.Completed)
		counter(c.writesFailed, s.Failed)
		counter(c.writesDropped, s.Dropped)
	}

	if sw := c.src.Sweeper; sw != nil {
		s := sw.GetStats()
		counter(c.sweeps, s.Sweeps)
		counter(c.sweptSamples, s.SamplesDeleted)
		counter(c.archivedSamples, s.SamplesArchived)
		counter(c.sweepErrors, s.Errors)
		if !s.LastRunTime.IsZero() {
			gauge(c.lastSweep, float64(s.LastRunTime.UnixNano())/1e9)
		}
	}

	if c.src.Mirror != nil {
		if s, ok := c.src.Mirror(); ok {
			counter(c.copyRotations, s.Rotations)
			counter(c.copiedSamples, s.Mirrored)
			counter(c.copyFailures, s.Failures)
		}
	}
}
