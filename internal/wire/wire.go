// Package wire defines the JSON envelopes exchanged with live viewers.
//
// Every server-to-client message carries a "type" field. Timestamps on the
// wire are Unix seconds; counts are numbers or null.
package wire

import (
	"encoding/json"
	"fmt"

	"github.com/xtxerr/playertrack/internal/constants"
	"github.com/xtxerr/playertrack/internal/errors"
	"github.com/xtxerr/playertrack/internal/roster"
	"github.com/xtxerr/playertrack/internal/storage/types"
)

// =============================================================================
// Server -> client
// =============================================================================

// PublicConfig is the part of the configuration viewers need to draw graphs.
type PublicConfig struct {
	GraphDurationMs       int64  `json:"graphDuration"`
	ServerGraphDurationMs int64  `json:"serverGraphDuration"`
	PingIntervalMs        int64  `json:"pingInterval"`
	GraphMaxLength        int    `json:"graphMaxLength"`
	ServerGraphMaxLength  int    `json:"serverGraphMaxLength"`
	GraphDurationLabel    string `json:"graphDurationLabel"`
}

// Peak is the largest value currently held in a server's window.
type Peak struct {
	PlayerCount types.Count `json:"playerCount"`
	Timestamp   *int64      `json:"timestamp"`
}

// NewPeak builds a peak from a window point. ok false yields an empty peak.
func NewPeak(count types.Count, tsMs int64, ok bool) Peak {
	if !ok || !count.Valid {
		return Peak{PlayerCount: types.Absent}
	}
	sec := tsMs / 1000
	return Peak{PlayerCount: count, Timestamp: &sec}
}

// Init is the full snapshot sent right after a viewer connection opens.
// Series, Records and Peaks are indexed by server ID.
type Init struct {
	Type       string          `json:"type"`
	Servers    []roster.Server `json:"servers"`
	Timestamps []int64         `json:"timestamps"`
	Series     [][]types.Count `json:"series"`
	Records    []types.Record  `json:"records"`
	Peaks      []Peak          `json:"peaks"`
	Config     PublicConfig    `json:"config"`
}

// NewInit returns an init envelope with its type set.
func NewInit() *Init {
	return &Init{Type: constants.MessageInit}
}

// Update carries one poll round. Records is only present when at least one
// record was raised in the round; it maps server ID to the new record.
type Update struct {
	Type      string               `json:"type"`
	Timestamp int64                `json:"timestamp"`
	Values    []types.Count        `json:"values"`
	Records   map[int]types.Record `json:"records,omitempty"`
}

// NewUpdate returns an update for the round at tsSec.
func NewUpdate(tsSec int64, values []types.Count) *Update {
	return &Update{Type: constants.MessageUpdate, Timestamp: tsSec, Values: values}
}

// Pong answers a ping.
type Pong struct {
	Type string `json:"type"`
}

// NewPong returns a pong envelope.
func NewPong() Pong {
	return Pong{Type: constants.MessagePong}
}

// Error reports a rejected request.
type Error struct {
	Type    string `json:"type"`
	Code    int32  `json:"code"`
	Name    string `json:"name"`
	Message string `json:"message"`
}

// NewError creates an error envelope.
func NewError(code int32, msg string) Error {
	return Error{
		Type:    constants.MessageError,
		Code:    code,
		Name:    errors.CodeName(code),
		Message: msg,
	}
}

// NewErrorf creates an error envelope with a formatted message.
func NewErrorf(code int32, format string, args ...interface{}) Error {
	return NewError(code, fmt.Sprintf(format, args...))
}

// NewErrorFromErr maps err to its code. The message never exposes internals.
func NewErrorFromErr(err error) Error {
	code := errors.ErrorToCode(err)
	if code == errors.CodeInternal {
		return NewError(code, "internal error")
	}
	return NewError(code, err.Error())
}

// =============================================================================
// Client -> server
// =============================================================================

// Message is an inbound control request.
type Message struct {
	Type string `json:"type"`
}

// Decode parses an inbound frame. Frames that are not a JSON object with a
// string type are reported as errors.ErrInvalidFormat.
func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", errors.ErrInvalidFormat, err)
	}
	if m.Type == "" {
		return Message{}, fmt.Errorf("%w: missing type", errors.ErrInvalidFormat)
	}
	return m, nil
}

// IsControl reports whether the message type is one the server answers.
func (m Message) IsControl() bool {
	return m.Type == constants.MessagePing || m.Type == constants.MessageSnapshot
}
