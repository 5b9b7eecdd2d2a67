// Package metrics exposes daemon statistics to Prometheus.
//
// Per-server gauges are pushed after every poll round. Everything else is
// read from the components' Stats methods at scrape time.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xtxerr/playertrack/internal/governor"
	"github.com/xtxerr/playertrack/internal/hub"
	"github.com/xtxerr/playertrack/internal/ingest"
	"github.com/xtxerr/playertrack/internal/live"
	"github.com/xtxerr/playertrack/internal/roster"
	"github.com/xtxerr/playertrack/internal/storage/mirror"
	"github.com/xtxerr/playertrack/internal/storage/retention"
	"github.com/xtxerr/playertrack/internal/storage/types"
)

const namespace = "playertrack"

// Sources are the components scraped on every collection. Nil fields are
// skipped.
type Sources struct {
	Governor *governor.Governor
	Hub      *hub.Hub
	Pipeline *ingest.Pipeline
	Writer   *ingest.Writer
	Sweeper  *retention.Sweeper

	// Mirror returns the daily copy statistics, ok false when disabled.
	Mirror func() (mirror.Stats, bool)
}

// Exporter owns a private registry.
type Exporter struct {
	registry *prometheus.Registry
	roster   *roster.Roster

	players *prometheus.GaugeVec
	records *prometheus.GaugeVec

	mu     sync.Mutex
	absent map[string]bool
}

// New creates an exporter for the servers of r.
func New(r *roster.Roster, src Sources) *Exporter {
	e := &Exporter{
		registry: prometheus.NewRegistry(),
		roster:   r,
		players: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "players",
				Help:      "Player count of the latest poll round",
			},
			[]string{"server", "ip"},
		),
		records: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "record_players",
				Help:      "All-time peak player count",
			},
			[]string{"server", "ip"},
		),
		absent: make(map[string]bool),
	}

	e.registry.MustRegister(
		e.players,
		e.records,
		newCollector(src),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return e
}

// ObserveRound updates the per-server gauges. Servers whose poll failed
// are removed until they answer again.
func (e *Exporter) ObserveRound(r live.Round) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, srv := range e.roster.All() {
		if srv.ID >= len(r.Values) {
			continue
		}
		v := r.Values[srv.ID]
		if !v.Valid {
			if !e.absent[srv.Key()] {
				e.players.DeleteLabelValues(srv.Name, srv.IP)
				e.absent[srv.Key()] = true
			}
			continue
		}
		delete(e.absent, srv.Key())
		e.players.WithLabelValues(srv.Name, srv.IP).Set(float64(v.N))
	}

	for _, ch := range r.Changes {
		if srv, ok := e.roster.ByKey(ch.Key); ok {
			e.records.WithLabelValues(srv.Name, srv.IP).Set(float64(ch.Record.PlayerCount.N))
		}
	}
}

// SetRecords seeds the record gauges from a tracker snapshot. Unknown
// records are left unset.
func (e *Exporter) SetRecords(records map[string]types.Record) {
	for key, rec := range records {
		srv, ok := e.roster.ByKey(key)
		if !ok || !rec.Known() {
			continue
		}
		e.records.WithLabelValues(srv.Name, srv.IP).Set(float64(rec.PlayerCount.N))
	}
}

// Registry returns the private registry.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}
