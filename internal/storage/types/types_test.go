package types

import (
	"encoding/json"
	"testing"
)

func TestCount_Greater(t *testing.T) {
	tests := []struct {
		name string
		c, o Count
		want bool
	}{
		{"present over absent", Of(0), Absent, true},
		{"absent over present", Absent, Of(0), false},
		{"absent over absent", Absent, Absent, false},
		{"strictly greater", Of(5), Of(4), true},
		{"equal", Of(5), Of(5), false},
		{"smaller", Of(3), Of(5), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.c.Greater(tt.o); got != tt.want {
				t.Errorf("Greater() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCount_JSON(t *testing.T) {
	data, err := json.Marshal([]Count{Of(3), Absent, Of(0)})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(data) != "[3,null,0]" {
		t.Errorf("got %s, want [3,null,0]", data)
	}

	var back []Count
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if back[0] != Of(3) || back[1] != Absent || back[2] != Of(0) {
		t.Errorf("unexpected decode: %+v", back)
	}
}

func TestRecord_MarshalJSON(t *testing.T) {
	data, err := json.Marshal(Record{})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(data) != `{"playerCount":null,"timestamp":null}` {
		t.Errorf("unknown record: got %s", data)
	}

	data, err = json.Marshal(Record{PlayerCount: Of(120), TimestampMs: 1700000000000})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(data) != `{"playerCount":120,"timestamp":1700000000}` {
		t.Errorf("known record: got %s", data)
	}
}
