// Package live holds the in-memory view served to viewers: the shared
// timeline, one window per server and the record tracker.
//
// A poll round is applied under the write lock and its broadcast is
// published before the lock is released. A viewer joins under the read
// lock, so it receives either the round in its snapshot or the round's
// update, never both and never neither.
package live

import (
	"encoding/json"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/xtxerr/playertrack/internal/errors"
	"github.com/xtxerr/playertrack/internal/history"
	"github.com/xtxerr/playertrack/internal/record"
	"github.com/xtxerr/playertrack/internal/roster"
	"github.com/xtxerr/playertrack/internal/series"
	"github.com/xtxerr/playertrack/internal/storage/types"
	"github.com/xtxerr/playertrack/internal/wire"
)

// State is the live view of every server.
//
// State is safe for concurrent use.
type State struct {
	roster   *roster.Roster
	tracker  *record.Tracker
	public   wire.PublicConfig
	timeline *series.Timeline
	windows  []*series.Window // indexed by server ID

	mu     sync.RWMutex
	group  singleflight.Group
	rounds int64
}

// New creates an empty state whose windows hold capacity points.
func New(r *roster.Roster, tracker *record.Tracker, capacity int, public wire.PublicConfig) *State {
	s := &State{
		roster:   r,
		tracker:  tracker,
		public:   public,
		timeline: series.NewTimeline(capacity),
		windows:  make([]*series.Window, r.Len()),
	}
	for i := range s.windows {
		s.windows[i] = series.NewWindow(capacity)
	}
	return s
}

// Roster returns the server list.
func (s *State) Roster() *roster.Roster {
	return s.roster
}

// Tracker returns the record tracker.
func (s *State) Tracker() *record.Tracker {
	return s.tracker
}

// Target exposes the timeline and windows for seeding at startup.
func (s *State) Target() history.Target {
	t := history.Target{
		Timeline: s.timeline,
		Windows:  make(map[string]*series.Window, len(s.windows)),
	}
	for _, srv := range s.roster.All() {
		t.Windows[srv.Key()] = s.windows[srv.ID]
	}
	return t
}

// Window returns the window of server id.
func (s *State) Window(id int) (*series.Window, bool) {
	if id < 0 || id >= len(s.windows) {
		return nil, false
	}
	return s.windows[id], true
}

// =============================================================================
// Rounds
// =============================================================================

// Round is one poll round as applied to the state.
type Round struct {
	TimestampMs int64

	// Values holds one count per server, indexed by ID.
	Values []types.Count

	// Changes lists the records raised by this round.
	Changes []record.Change
}

// Update builds the broadcast envelope of the round.
func (r Round) Update(rs *roster.Roster) *wire.Update {
	u := wire.NewUpdate(r.TimestampMs/1000, r.Values)
	if len(r.Changes) > 0 {
		u.Records = make(map[int]types.Record, len(r.Changes))
		for _, ch := range r.Changes {
			if srv, ok := rs.ByKey(ch.Key); ok {
				u.Records[srv.ID] = ch.Record
			}
		}
	}
	return u
}

// Apply appends one round and runs publish before releasing the write lock.
// values must hold one count per server and tsMs must be later than the
// newest round; otherwise nothing changes and ErrInvalidTick is returned.
func (s *State) Apply(tsMs int64, values []types.Count, publish func(Round)) error {
	if len(values) != len(s.windows) {
		return fmt.Errorf("round has %d values for %d servers: %w", len(values), len(s.windows), errors.ErrInvalidTick)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if last, ok := s.timeline.Newest(); ok && tsMs <= last {
		return fmt.Errorf("round at %d is not after the newest round at %d: %w", tsMs, last, errors.ErrInvalidTick)
	}

	round := Round{TimestampMs: tsMs, Values: values}
	s.timeline.Append(tsMs)
	for id, v := range values {
		s.windows[id].Append(series.Point{TimestampMs: tsMs, Value: v})
	}
	for _, srv := range s.roster.All() {
		if ch, ok := s.tracker.Observe(srv.Key(), values[srv.ID], tsMs); ok {
			round.Changes = append(round.Changes, ch)
		}
	}
	s.rounds++

	if publish != nil {
		publish(round)
	}
	return nil
}

// Rounds returns the number of rounds applied since startup.
func (s *State) Rounds() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rounds
}

// =============================================================================
// Snapshots
// =============================================================================

// Snapshot builds the init envelope of the current state.
func (s *State) Snapshot() *wire.Init {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *State) snapshotLocked() *wire.Init {
	servers := s.roster.All()
	records := s.tracker.Snapshot()

	msg := wire.NewInit()
	msg.Servers = servers
	msg.Config = s.public
	msg.Series = make([][]types.Count, len(servers))
	msg.Records = make([]types.Record, len(servers))
	msg.Peaks = make([]wire.Peak, len(servers))

	ts := s.timeline.Timestamps()
	msg.Timestamps = make([]int64, len(ts))
	for i, v := range ts {
		msg.Timestamps[i] = v / 1000
	}

	for _, srv := range servers {
		w := s.windows[srv.ID]
		msg.Series[srv.ID] = w.Values()
		msg.Records[srv.ID] = records[srv.Key()]
		p, ok := w.Peak()
		msg.Peaks[srv.ID] = wire.NewPeak(p.Value, p.TimestampMs, ok)
	}
	return msg
}

// Join encodes the current snapshot and hands it to deliver while no round
// can be applied. Concurrent joins share one encoding.
func (s *State) Join(deliver func(init []byte) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, err, _ := s.group.Do("init", func() (interface{}, error) {
		return json.Marshal(s.snapshotLocked())
	})
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return deliver(v.([]byte))
}
