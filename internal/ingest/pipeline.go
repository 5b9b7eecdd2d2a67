// Package ingest applies poll rounds from the external pinger.
//
// For every round the pipeline, in order:
//  1. submits one InsertSample per event to the Writer,
//  2. appends the round to the timeline and every server window,
//  3. raises records and submits their persistence to the Writer,
//  4. publishes one update to all open viewers.
//
// Rounds are applied one at a time by Run. Storage writes complete later
// and never hold up the live view.
package ingest

import (
	"context"
	"sync/atomic"

	"github.com/xtxerr/playertrack/internal/errors"
	"github.com/xtxerr/playertrack/internal/hub"
	"github.com/xtxerr/playertrack/internal/live"
	"github.com/xtxerr/playertrack/internal/logging"
	"github.com/xtxerr/playertrack/internal/storage/types"
)

var log = logging.Component("ingest")

// Config configures a Pipeline.
type Config struct {
	// QueueSize is how many rounds may wait for Run.
	QueueSize int

	// LogFailedPings logs every event that carries an error.
	LogFailedPings bool
}

// Stats holds cumulative pipeline statistics.
type Stats struct {
	Rounds   int64
	Events   int64
	Failed   int64 // events carrying an error
	Unknown  int64 // events for servers not in the roster
	Rejected int64 // rounds refused by Submit
	Records  int64 // records raised
}

// Pipeline turns rounds into storage writes, live state and broadcasts.
type Pipeline struct {
	state  *live.State
	hub    *hub.Hub
	writer *Writer
	cfg    Config
	ticks  chan Tick

	onRound func(live.Round)

	rounds   atomic.Int64
	events   atomic.Int64
	failed   atomic.Int64
	unknown  atomic.Int64
	rejected atomic.Int64
	records  atomic.Int64
}

// New creates a pipeline.
func New(state *live.State, h *hub.Hub, w *Writer, cfg Config) *Pipeline {
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1
	}
	return &Pipeline{
		state:  state,
		hub:    h,
		writer: w,
		cfg:    cfg,
		ticks:  make(chan Tick, cfg.QueueSize),
	}
}

// OnRound registers fn to observe every applied round.
func (p *Pipeline) OnRound(fn func(live.Round)) *Pipeline {
	p.onRound = fn
	return p
}

// Submit validates t and queues it for Run without blocking.
func (p *Pipeline) Submit(t Tick) error {
	if err := t.Validate(); err != nil {
		p.rejected.Add(1)
		return err
	}
	select {
	case p.ticks <- t:
		return nil
	default:
		p.rejected.Add(1)
		return errors.ErrQueueFull
	}
}

// Run applies queued rounds until ctx is done. Rounds still queued at that
// point are applied before Run returns.
func (p *Pipeline) Run(ctx context.Context) error {
	for {
		select {
		case t := <-p.ticks:
			p.handle(t)
		case <-ctx.Done():
			p.drain()
			return nil
		}
	}
}

func (p *Pipeline) drain() {
	for {
		select {
		case t := <-p.ticks:
			p.handle(t)
		default:
			return
		}
	}
}

func (p *Pipeline) handle(t Tick) {
	if err := p.HandleTick(t); err != nil {
		log.Error("round not applied", "timestamp", t.Timestamp, "error", err)
	}
}

// HandleTick applies one round synchronously. Every roster server gets a
// sample per round; servers without an event are stored as absent so the
// stored history stays aligned with the timeline. A round that is not
// later than the newest one is rejected before anything is written.
func (p *Pipeline) HandleTick(t Tick) error {
	if err := t.Validate(); err != nil {
		return err
	}

	rs := p.state.Roster()
	tsMs := t.Timestamp * 1000
	values := make([]types.Count, rs.Len())

	for _, ev := range t.Events {
		p.events.Add(1)
		srv, ok := rs.ByID(ev.ServerID)
		if !ok {
			p.unknown.Add(1)
			log.Warn("event for unknown server ignored", "server_id", ev.ServerID)
			continue
		}

		if ev.Result.Failed() {
			p.failed.Add(1)
			if p.cfg.LogFailedPings {
				log.Warn("ping failed", "server", srv.Name, "ip", srv.IP, "error", ev.Result.Error.Message)
			}
		}
		values[srv.ID] = ev.Result.Count()
	}

	err := p.state.Apply(tsMs, values, func(r live.Round) {
		for _, srv := range rs.All() {
			p.writer.SubmitSample(types.Sample{
				EntityKey:   srv.Key(),
				TimestampMs: tsMs,
				PlayerCount: values[srv.ID],
			})
		}
		for _, ch := range r.Changes {
			p.records.Add(1)
			log.Info("new record", "key", ch.Key, "player_count", ch.Record.PlayerCount.N)
			p.writer.SubmitRecord(ch)
		}
		if _, err := p.hub.Publish(r.Update(rs)); err != nil {
			log.Error("publish failed", "error", err)
		}
		if p.onRound != nil {
			p.onRound(r)
		}
	})
	if err != nil {
		return err
	}

	p.rounds.Add(1)
	return nil
}

// Stats returns current statistics.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Rounds:   p.rounds.Load(),
		Events:   p.events.Load(),
		Failed:   p.failed.Load(),
		Unknown:  p.unknown.Load(),
		Rejected: p.rejected.Load(),
		Records:  p.records.Load(),
	}
}
