package governor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/xtxerr/playertrack/internal/errors"
	ptest "github.com/xtxerr/playertrack/internal/testing"
)

func testConfig() Config {
	return Config{
		MaxPerIP:             2,
		MaxTotal:             10,
		MaxMessagesPerWindow: 3,
		MessageWindow:        time.Minute,
	}
}

func req(remote string) Request {
	return Request{Host: "tracker.example", RemoteAddr: remote}
}

func TestGovernor_PerIPLimit(t *testing.T) {
	g := New(testConfig())

	first, err := g.Admit(req("10.0.0.1:5000"))
	if err != nil {
		t.Fatalf("first Admit() = %v", err)
	}
	if _, err := g.Admit(req("10.0.0.1:5001")); err != nil {
		t.Fatalf("second Admit() = %v", err)
	}

	_, err = g.Admit(req("10.0.0.1:5002"))
	if !errors.Is(err, errors.ErrPerIPLimit) {
		t.Fatalf("third Admit() = %v, want ErrPerIPLimit", err)
	}
	if errors.CloseCode(err) != errors.CloseTryAgainLater {
		t.Errorf("close code = %d", errors.CloseCode(err))
	}

	// Another address is unaffected.
	if _, err := g.Admit(req("10.0.0.2:5000")); err != nil {
		t.Errorf("other address rejected: %v", err)
	}

	first.Release()
	if _, err := g.Admit(req("10.0.0.1:5003")); err != nil {
		t.Errorf("fourth Admit() after release = %v", err)
	}
	if g.PerIP("10.0.0.1") != 2 {
		t.Errorf("PerIP = %d, want 2", g.PerIP("10.0.0.1"))
	}
}

func TestGovernor_GlobalLimit(t *testing.T) {
	cfg := testConfig()
	cfg.MaxTotal = 2
	g := New(cfg)

	if _, err := g.Admit(req("10.0.0.1:1")); err != nil {
		t.Fatal(err)
	}
	if _, err := g.Admit(req("10.0.0.2:1")); err != nil {
		t.Fatal(err)
	}
	_, err := g.Admit(req("10.0.0.3:1"))
	if !errors.Is(err, errors.ErrGlobalLimit) {
		t.Errorf("Admit() = %v, want ErrGlobalLimit", err)
	}
	if g.PerIP("10.0.0.3") != 0 {
		t.Error("rejected address must not be counted")
	}

	stats := g.Stats()
	if stats.Open != 2 || stats.Admitted != 2 || stats.Rejected["global"] != 1 {
		t.Errorf("Stats() = %+v", stats)
	}
}

func TestGovernor_ReleaseForgetsAddress(t *testing.T) {
	g := New(testConfig())
	tk, err := g.Admit(req("10.0.0.1:1"))
	if err != nil {
		t.Fatal(err)
	}

	tk.Release()
	tk.Release()

	stats := g.Stats()
	if stats.Open != 0 || stats.Addresses != 0 {
		t.Errorf("Stats() after release = %+v", stats)
	}
}

func TestGovernor_OriginAllowed(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		host    string
		want    bool
	}{
		{"absent origin, no list", nil, "", "tracker.example", true},
		{"same host http", nil, "http://tracker.example", "tracker.example", true},
		{"same host https with port", nil, "https://tracker.example:8443", "tracker.example:8443", true},
		{"other host", nil, "https://evil.example", "tracker.example", false},
		{"missing host header", nil, "https://tracker.example", "", false},
		{"listed", []string{"https://a.example"}, "https://a.example", "tracker.example", true},
		{"not listed", []string{"https://a.example"}, "https://tracker.example", "tracker.example", false},
		{"absent origin with list", []string{"https://a.example"}, "", "tracker.example", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.AllowedOrigins = tt.allowed
			g := New(cfg)
			if got := g.OriginAllowed(tt.origin, tt.host); got != tt.want {
				t.Errorf("OriginAllowed(%q, %q) = %v, want %v", tt.origin, tt.host, got, tt.want)
			}
		})
	}
}

func TestGovernor_OriginRejectedFirst(t *testing.T) {
	cfg := testConfig()
	cfg.MaxTotal = 0
	g := New(cfg)

	r := req("10.0.0.1:1")
	r.Origin = "https://evil.example"
	_, err := g.Admit(r)
	if !errors.Is(err, errors.ErrOriginNotAllowed) {
		t.Fatalf("Admit() = %v, want ErrOriginNotAllowed", err)
	}
	if errors.CloseCode(err) != errors.ClosePolicy || errors.CloseReason(err) != "Origin not allowed" {
		t.Errorf("close = %d %q", errors.CloseCode(err), errors.CloseReason(err))
	}
}

func TestGovernor_ResolveAddress(t *testing.T) {
	tests := []struct {
		name   string
		trust  bool
		header http.Header
		remote string
		want   string
	}{
		{"socket only", false, nil, "192.0.2.1:4000", "192.0.2.1"},
		{"untrusted header ignored", false, http.Header{"X-Forwarded-For": {"203.0.113.9"}}, "192.0.2.1:4000", "192.0.2.1"},
		{"cloudflare first", true, http.Header{"Cf-Connecting-Ip": {"203.0.113.7"}, "X-Forwarded-For": {"203.0.113.9"}}, "192.0.2.1:4000", "203.0.113.7"},
		{"first forwarded", true, http.Header{"X-Forwarded-For": {"203.0.113.9, 10.0.0.1"}}, "192.0.2.1:4000", "203.0.113.9"},
		{"ipv6 forwarded", true, http.Header{"X-Forwarded-For": {"2001:db8::1"}}, "192.0.2.1:4000", "2001:db8::1"},
		{"garbage falls back", true, http.Header{"X-Forwarded-For": {"<script>"}}, "[2001:db8::2]:4000", "2001:db8::2"},
		{"no port", false, nil, "192.0.2.1", "192.0.2.1"},
		{"malformed cafe", true, http.Header{"Cf-Connecting-Ip": {"cafe"}}, "10.0.0.1:4000", "10.0.0.1"},
		{"malformed 1.2.3.4.5", true, http.Header{"Cf-Connecting-Ip": {"1.2.3.4.5"}}, "10.0.0.1:4000", "10.0.0.1"},
		{"malformed :::", true, http.Header{"Cf-Connecting-Ip": {":::"}}, "10.0.0.1:4000", "10.0.0.1"},
		{"malformed ...", true, http.Header{"Cf-Connecting-Ip": {"..."}}, "10.0.0.1:4000", "10.0.0.1"},
		{"malformed 999.999.999.999", true, http.Header{"Cf-Connecting-Ip": {"999.999.999.999"}}, "10.0.0.1:4000", "10.0.0.1"},
		{"malformed forwarded", true, http.Header{"X-Forwarded-For": {"1.2.3.4.5, 203.0.113.9"}}, "10.0.0.1:4000", "10.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.TrustProxy = tt.trust
			g := New(cfg)
			if got := g.ResolveAddress(tt.header, tt.remote); got != tt.want {
				t.Errorf("ResolveAddress() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRequestFrom(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "http://tracker.example/ws", nil)
	r.Header.Set("Origin", "http://tracker.example")
	r.RemoteAddr = "192.0.2.1:4000"

	got := RequestFrom(r)
	if got.Origin != "http://tracker.example" || got.Host != "tracker.example" || got.RemoteAddr != "192.0.2.1:4000" {
		t.Errorf("RequestFrom() = %+v", got)
	}
}

func TestTicket_RateLimit(t *testing.T) {
	clock := ptest.NewClock(time.Unix(1000, 0))
	g := New(testConfig()).WithClock(clock.Now)

	tk, err := g.Admit(req("10.0.0.1:1"))
	if err != nil {
		t.Fatal(err)
	}
	if !tk.OpenedAt.Equal(clock.Now()) {
		t.Errorf("OpenedAt = %v", tk.OpenedAt)
	}

	for i := 0; i < 3; i++ {
		if err := tk.Allow(); err != nil {
			t.Fatalf("message %d: %v", i, err)
		}
	}
	if err := tk.Allow(); !errors.Is(err, errors.ErrRateLimited) {
		t.Fatalf("fourth message = %v, want ErrRateLimited", err)
	}

	clock.Advance(time.Minute)
	if err := tk.Allow(); err != nil {
		t.Errorf("message in new window = %v", err)
	}

	tk.Release()
	if err := tk.Allow(); !errors.Is(err, errors.ErrConnClosed) {
		t.Errorf("Allow() after release = %v", err)
	}
}

func TestGovernor_ConcurrentAdmitRelease(t *testing.T) {
	cfg := testConfig()
	cfg.MaxPerIP = 1000
	cfg.MaxTotal = 1000
	g := New(cfg)

	gt := ptest.NewGoroutineTest(t)
	for i := 0; i < 50; i++ {
		gt.Go(func(ctx context.Context) error {
			tk, err := g.Admit(req("10.0.0.1:1"))
			if err != nil {
				return err
			}
			tk.Release()
			return nil
		})
	}
	gt.Wait()

	if g.Open() != 0 || g.PerIP("10.0.0.1") != 0 {
		t.Errorf("Open = %d, PerIP = %d after all releases", g.Open(), g.PerIP("10.0.0.1"))
	}
}
