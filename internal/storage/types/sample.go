package types

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"
)

// Count is a player count that may be absent.
type Count struct {
	N     int
	Valid bool
}

// Of returns a present count.
func Of(n int) Count {
	return Count{N: n, Valid: true}
}

// Absent is the count of a failed poll.
var Absent = Count{}

// Greater reports whether c is present and strictly greater than o.
// An absent o compares below every present count, including zero.
func (c Count) Greater(o Count) bool {
	if !c.Valid {
		return false
	}
	if !o.Valid {
		return true
	}
	return c.N > o.N
}

// String returns the count or "null".
func (c Count) String() string {
	if !c.Valid {
		return "null"
	}
	return strconv.Itoa(c.N)
}

// MarshalJSON encodes an absent count as null.
func (c Count) MarshalJSON() ([]byte, error) {
	if !c.Valid {
		return []byte("null"), nil
	}
	return strconv.AppendInt(nil, int64(c.N), 10), nil
}

// UnmarshalJSON accepts a number or null.
func (c *Count) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*c = Absent
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*c = Of(n)
	return nil
}

// Sample is one observation of one server.
// Samples are immutable once written.
type Sample struct {
	// EntityKey identifies the server (its address).
	EntityKey string

	// TimestampMs is the poll round time in Unix milliseconds.
	TimestampMs int64

	// PlayerCount is absent when the poll failed.
	PlayerCount Count
}

// TimestampTime returns the timestamp as a time.Time.
func (s *Sample) TimestampTime() time.Time {
	return time.UnixMilli(s.TimestampMs)
}

// Record is the all-time peak of one server.
type Record struct {
	PlayerCount Count
	TimestampMs int64
}

// Known reports whether a peak has ever been observed.
func (r Record) Known() bool {
	return r.PlayerCount.Valid
}

// Timestamp returns the record time as a nullable pointer.
func (r Record) Timestamp() *int64 {
	if !r.Known() {
		return nil
	}
	ts := r.TimestampMs
	return &ts
}

// recordJSON is the wire shape of a Record.
type recordJSON struct {
	PlayerCount Count  `json:"playerCount"`
	Timestamp   *int64 `json:"timestamp"`
}

// MarshalJSON encodes an unknown record as {"playerCount":null,"timestamp":null}.
// Timestamps are sent in Unix seconds.
func (r Record) MarshalJSON() ([]byte, error) {
	out := recordJSON{PlayerCount: r.PlayerCount}
	if r.Known() {
		sec := r.TimestampMs / 1000
		out.Timestamp = &sec
	}
	return json.Marshal(out)
}
