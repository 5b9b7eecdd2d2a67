package ingest

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/xtxerr/playertrack/internal/errors"
	"github.com/xtxerr/playertrack/internal/history"
	"github.com/xtxerr/playertrack/internal/hub"
	"github.com/xtxerr/playertrack/internal/live"
	"github.com/xtxerr/playertrack/internal/record"
	"github.com/xtxerr/playertrack/internal/roster"
	"github.com/xtxerr/playertrack/internal/storage"
	"github.com/xtxerr/playertrack/internal/storage/memstore"
	"github.com/xtxerr/playertrack/internal/storage/types"
	ptest "github.com/xtxerr/playertrack/internal/testing"
	"github.com/xtxerr/playertrack/internal/wire"
)

func count(n int) Result { return Result{PlayerCount: &n} }

func failure(msg string) Result { return Result{Error: &PollError{Message: msg}} }

type fixture struct {
	store    *memstore.Store
	writer   *Writer
	hub      *hub.Hub
	conn     *hub.Conn
	state    *live.State
	pipeline *Pipeline
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	r, err := roster.New([]roster.Server{
		{Name: "Alpha", IP: "a", Type: "PC"},
		{Name: "Beta", IP: "b", Type: "PC"},
		{Name: "Gamma", IP: "c", Type: "PE"},
	})
	if err != nil {
		t.Fatal(err)
	}

	f := &fixture{store: memstore.New(), hub: hub.New(8)}
	f.writer = NewWriter(f.store, 16)
	f.state = live.New(r, record.New(f.store, []string{"a", "b", "c"}), 10, wire.PublicConfig{})
	f.pipeline = New(f.state, f.hub, f.writer, Config{QueueSize: 2, LogFailedPings: true})
	f.conn = f.hub.Register("viewer")
	f.conn.MarkOpen()
	return f
}

func (f *fixture) next(t *testing.T) string {
	t.Helper()
	select {
	case data := <-f.conn.SendChan():
		return string(data)
	default:
		t.Fatal("no broadcast queued")
		return ""
	}
}

func TestTick_Validate(t *testing.T) {
	tests := []struct {
		name string
		tick Tick
		ok   bool
	}{
		{"valid", Tick{Timestamp: 1, Events: []Event{{ServerID: 0, Result: count(1)}}}, true},
		{"empty round", Tick{Timestamp: 1}, true},
		{"error result", Tick{Timestamp: 1, Events: []Event{{Result: failure("timeout")}}}, true},
		{"no timestamp", Tick{}, false},
		{"empty result", Tick{Timestamp: 1, Events: []Event{{}}}, false},
		{"both", Tick{Timestamp: 1, Events: []Event{{Result: Result{PlayerCount: count(1).PlayerCount, Error: &PollError{}}}}}, false},
		{"negative", Tick{Timestamp: 1, Events: []Event{{Result: count(-1)}}}, false},
		{"duplicate server", Tick{Timestamp: 1, Events: []Event{{ServerID: 2, Result: count(1)}, {ServerID: 2, Result: count(4)}}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.tick.Validate()
			if (err == nil) != tt.ok {
				t.Errorf("Validate() = %v", err)
			}
			if err != nil && !errors.Is(err, errors.ErrInvalidTick) {
				t.Errorf("Validate() = %v, want ErrInvalidTick", err)
			}
		})
	}
}

func TestTick_JSON(t *testing.T) {
	var tick Tick
	body := `{"timestamp":1700000000,"events":[
		{"serverId":0,"timestamp":1700000000,"result":{"playerCount":12}},
		{"serverId":1,"result":{"error":{"message":"ETIMEDOUT"}}}]}`
	if err := json.Unmarshal([]byte(body), &tick); err != nil {
		t.Fatal(err)
	}
	if err := tick.Validate(); err != nil {
		t.Fatal(err)
	}
	if tick.Events[0].Result.Count() != types.Of(12) || tick.Events[1].Result.Count() != types.Absent {
		t.Errorf("counts = %v, %v", tick.Events[0].Result.Count(), tick.Events[1].Result.Count())
	}
}

func TestPipeline_HandleTick(t *testing.T) {
	f := newFixture(t)

	err := f.pipeline.HandleTick(Tick{Timestamp: 100, Events: []Event{
		{ServerID: 0, Result: count(5)},
		{ServerID: 1, Result: failure("timeout")},
		{ServerID: 7, Result: count(1)},
	}})
	if err != nil {
		t.Fatal(err)
	}

	want := `{"type":"update","timestamp":100,"values":[5,null,null],"records":{"0":{"playerCount":5,"timestamp":100}}}`
	if got := f.next(t); got != want {
		t.Errorf("broadcast = %s\nwant        %s", got, want)
	}

	if err := f.pipeline.HandleTick(Tick{Timestamp: 103, Events: []Event{{ServerID: 0, Result: count(3)}}}); err != nil {
		t.Fatal(err)
	}
	if got := f.next(t); got != `{"type":"update","timestamp":103,"values":[3,null,null]}` {
		t.Errorf("broadcast = %s", got)
	}

	w, _ := f.state.Window(0)
	if vals := w.Values(); len(vals) != 2 || vals[0] != types.Of(5) || vals[1] != types.Of(3) {
		t.Errorf("window = %v", vals)
	}
	if w, _ := f.state.Window(2); w.Len() != 2 {
		t.Errorf("missing server should get absent points, len = %d", w.Len())
	}

	f.writer.Close()
	if f.store.Len() != 6 {
		t.Errorf("stored %d samples, want one per server and round", f.store.Len())
	}
	rec, ok, err := f.store.GetRecord(context.Background(), "a")
	if err != nil || !ok || rec.PlayerCount != types.Of(5) || rec.TimestampMs != 100_000 {
		t.Errorf("GetRecord(a) = %+v, %v, %v", rec, ok, err)
	}

	stats := f.pipeline.Stats()
	if stats.Rounds != 2 || stats.Events != 4 || stats.Failed != 1 || stats.Unknown != 1 || stats.Records != 1 {
		t.Errorf("Stats() = %+v", stats)
	}
}

func TestPipeline_RejectsStaleRound(t *testing.T) {
	f := newFixture(t)

	if err := f.pipeline.HandleTick(Tick{Timestamp: 5, Events: []Event{{ServerID: 0, Result: count(1)}}}); err != nil {
		t.Fatal(err)
	}
	f.next(t)

	for _, ts := range []int64{3, 5} {
		err := f.pipeline.HandleTick(Tick{Timestamp: ts, Events: []Event{{ServerID: 0, Result: count(2)}}})
		if !errors.Is(err, errors.ErrInvalidTick) {
			t.Errorf("HandleTick(%d) = %v, want ErrInvalidTick", ts, err)
		}
	}

	w, _ := f.state.Window(0)
	if ts := w.Timestamps(); len(ts) != 1 || ts[0] != 5000 {
		t.Errorf("window timestamps = %v", ts)
	}
	if f.conn.Pending() != 0 {
		t.Error("stale round was broadcast")
	}
	f.writer.Close()
	if f.store.Len() != 3 {
		t.Errorf("stored %d samples, want 3", f.store.Len())
	}
	if got := f.pipeline.Stats().Rounds; got != 1 {
		t.Errorf("Rounds = %d, want 1", got)
	}
}

func TestPipeline_HistoryRoundTrip(t *testing.T) {
	f := newFixture(t)
	ticks := []Tick{
		{Timestamp: 1, Events: []Event{{ServerID: 0, Result: count(10)}, {ServerID: 1, Result: count(20)}, {ServerID: 2, Result: count(30)}}},
		{Timestamp: 2, Events: []Event{{ServerID: 0, Result: count(11)}, {ServerID: 2, Result: failure("timeout")}}},
		{Timestamp: 3, Events: []Event{{ServerID: 0, Result: count(12)}, {ServerID: 1, Result: count(22)}, {ServerID: 2, Result: count(32)}}},
	}
	for _, tk := range ticks {
		if err := f.pipeline.HandleTick(tk); err != nil {
			t.Fatal(err)
		}
	}
	f.writer.Close()

	rs := f.state.Roster()
	restarted := live.New(rs, record.New(f.store, []string{"a", "b", "c"}), 10, wire.PublicConfig{})
	now := time.Unix(3, 0)
	loader := history.New(f.store, rs, time.Hour).WithClock(func() time.Time { return now })
	if _, err := loader.Load(context.Background(), restarted.Target()); err != nil {
		t.Fatal(err)
	}

	for _, srv := range rs.All() {
		want, _ := f.state.Window(srv.ID)
		got, _ := restarted.Window(srv.ID)
		wp, gp := want.Points(), got.Points()
		if len(wp) != len(gp) {
			t.Fatalf("%s: reloaded %v, live %v", srv.Key(), gp, wp)
		}
		for i := range wp {
			if wp[i] != gp[i] {
				t.Errorf("%s: reloaded %v, live %v", srv.Key(), gp, wp)
				break
			}
		}
	}
}

func TestPipeline_OnRound(t *testing.T) {
	f := newFixture(t)
	var seen []int64
	f.pipeline.OnRound(func(r live.Round) { seen = append(seen, r.TimestampMs) })

	f.pipeline.HandleTick(Tick{Timestamp: 1})
	f.pipeline.HandleTick(Tick{Timestamp: 2})
	if len(seen) != 2 || seen[1] != 2000 {
		t.Errorf("OnRound saw %v", seen)
	}
}

func TestPipeline_SubmitAndRun(t *testing.T) {
	f := newFixture(t)

	if err := f.pipeline.Submit(Tick{}); !errors.Is(err, errors.ErrInvalidTick) {
		t.Errorf("Submit(invalid) = %v", err)
	}
	for i := int64(1); i <= 2; i++ {
		if err := f.pipeline.Submit(Tick{Timestamp: i}); err != nil {
			t.Fatalf("Submit(%d) = %v", i, err)
		}
	}
	if err := f.pipeline.Submit(Tick{Timestamp: 3}); !errors.Is(err, errors.ErrQueueFull) {
		t.Errorf("Submit on full queue = %v", err)
	}

	gt := ptest.NewGoroutineTest(t)
	gt.Go(f.pipeline.Run)

	if err := ptest.Eventually(time.Second, 5*time.Millisecond, func() bool {
		return f.pipeline.Stats().Rounds == 2
	}); err != nil {
		t.Fatalf("rounds not applied: %v", err)
	}
	gt.Cancel()
	gt.Wait()

	if got := f.pipeline.Stats().Rejected; got != 2 {
		t.Errorf("Rejected = %d, want 2", got)
	}
}

// gatedEngine blocks InsertSample until the gate is closed.
type gatedEngine struct {
	storage.Engine
	gate chan struct{}

	mu    sync.Mutex
	order map[string][]int64
}

func (g *gatedEngine) InsertSample(ctx context.Context, s types.Sample) error {
	<-g.gate
	g.mu.Lock()
	g.order[s.EntityKey] = append(g.order[s.EntityKey], s.TimestampMs)
	g.mu.Unlock()
	return g.Engine.InsertSample(ctx, s)
}

func TestWriter_QueueFullAndOrder(t *testing.T) {
	eng := &gatedEngine{Engine: memstore.New(), gate: make(chan struct{}), order: make(map[string][]int64)}
	w := NewWriter(eng, 2)

	// One write is taken by the lane goroutine, two wait in the queue.
	var accepted int
	for ts := int64(1); ts <= 6; ts++ {
		if err := w.SubmitSample(types.Sample{EntityKey: "a", TimestampMs: ts}); err == nil {
			accepted++
		} else if !errors.Is(err, errors.ErrQueueFull) {
			t.Fatalf("SubmitSample() = %v", err)
		}
	}
	if accepted < 2 || accepted > 3 {
		t.Errorf("accepted %d writes with queue size 2", accepted)
	}

	// Another entity has its own lane.
	if err := w.SubmitSample(types.Sample{EntityKey: "b", TimestampMs: 1}); err != nil {
		t.Errorf("other lane rejected: %v", err)
	}

	close(eng.gate)
	w.Close()
	w.Close()

	stats := w.Stats()
	if stats.Completed != int64(accepted+1) || stats.Dropped != int64(6-accepted) || stats.Lanes != 2 {
		t.Errorf("Stats() = %+v", stats)
	}

	eng.mu.Lock()
	defer eng.mu.Unlock()
	var prev int64
	for _, s := range eng.order["a"] {
		if s <= prev {
			t.Errorf("writes of one entity out of order: %v", eng.order["a"])
		}
		prev = s
	}

	if err := w.SubmitSample(types.Sample{EntityKey: "a"}); !errors.Is(err, errors.ErrClosed) {
		t.Errorf("SubmitSample after Close = %v", err)
	}
}

func TestWriter_FailuresCounted(t *testing.T) {
	store := memstore.New()
	w := NewWriter(store, 4)
	store.Close()

	w.SubmitSample(types.Sample{EntityKey: "a", TimestampMs: 1})
	w.SubmitRecord(record.Change{Key: "a", Record: types.Record{PlayerCount: types.Of(1)}, Insert: true})
	w.Close()

	if got := w.Stats().Failed; got != 2 {
		t.Errorf("Failed = %d, want 2", got)
	}
}
