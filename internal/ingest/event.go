package ingest

import (
	"fmt"

	"github.com/xtxerr/playertrack/internal/errors"
	"github.com/xtxerr/playertrack/internal/storage/types"
)

// Tick is one poll round as reported by the pinger.
type Tick struct {
	// Timestamp is the round time in Unix seconds.
	Timestamp int64   `json:"timestamp"`
	Events    []Event `json:"events"`
}

// Event is the outcome of polling one server.
type Event struct {
	ServerID int `json:"serverId"`

	// Timestamp is informational; the round uses Tick.Timestamp.
	Timestamp int64  `json:"timestamp,omitempty"`
	Result    Result `json:"result"`
}

// Result holds either a player count or an error.
type Result struct {
	PlayerCount *int       `json:"playerCount,omitempty"`
	Error       *PollError `json:"error,omitempty"`
}

// PollError describes a failed poll.
type PollError struct {
	Message string `json:"message"`
}

// Count returns the polled count, absent when the poll failed.
func (r Result) Count() types.Count {
	if r.Error != nil || r.PlayerCount == nil {
		return types.Absent
	}
	return types.Of(*r.PlayerCount)
}

// Failed reports whether the poll failed.
func (r Result) Failed() bool {
	return r.Error != nil
}

// Validate checks the shape of the tick. Server IDs must be unique but are
// not checked against the roster here.
func (t Tick) Validate() error {
	errs := errors.NewValidationErrors()
	if t.Timestamp <= 0 {
		errs.Add(fmt.Errorf("timestamp must be positive: %w", errors.ErrInvalidTick))
	}
	seen := make(map[int]int, len(t.Events))
	for i, ev := range t.Events {
		if first, dup := seen[ev.ServerID]; dup {
			errs.Add(fmt.Errorf("events[%d]: serverId %d already reported by events[%d]: %w", i, ev.ServerID, first, errors.ErrInvalidTick))
		} else {
			seen[ev.ServerID] = i
		}

		r := ev.Result
		switch {
		case r.PlayerCount == nil && r.Error == nil:
			errs.Add(fmt.Errorf("events[%d]: result needs playerCount or error: %w", i, errors.ErrInvalidTick))
		case r.PlayerCount != nil && r.Error != nil:
			errs.Add(fmt.Errorf("events[%d]: result has both playerCount and error: %w", i, errors.ErrInvalidTick))
		case r.PlayerCount != nil && *r.PlayerCount < 0:
			errs.Add(fmt.Errorf("events[%d]: negative playerCount: %w", i, errors.ErrInvalidTick))
		}
	}
	return errs.ErrOrNil()
}
