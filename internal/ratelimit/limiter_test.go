package ratelimit

import (
	"sync"
	"testing"
	"time"
)

func TestParseRateLimit(t *testing.T) {
	cases := []struct {
		in       string
		wantOK   bool
		wantReq  int
		wantDur  time.Duration
	}{
		{"1/s", true, 1, time.Second},
		{"2/500ms", true, 2, 500 * time.Millisecond},
		{"2/500", false, 0, 0},
		{"3/2m", true, 3, 2 * time.Minute},
		{"notanumber/s", false, 0, 0},
		{"0/s", false, 0, 0},
	}
	for _, c := range cases {
		cfg, ok := ParseRateLimit(c.in)
		if ok != c.wantOK {
			t.Errorf("ParseRateLimit(%q) ok = %v, want %v", c.in, ok, c.wantOK)
			continue
		}
		if !ok {
			continue
		}
		if cfg.Requests != c.wantReq || cfg.Period != c.wantDur {
			t.Errorf("ParseRateLimit(%q) = %+v, want {%d %v}", c.in, cfg, c.wantReq, c.wantDur)
		}
	}
}

func TestHostOf(t *testing.T) {
	cases := map[string]string{
		"https://example.com/path?q=1": "example.com",
		"http://a.b.c":                 "a.b.c",
		"example.com":                  "example.com",
	}
	for in, want := range cases {
		if got := HostOf(in); got != want {
			t.Errorf("HostOf(%q) = %q, want %q", in, got, want)
		}
	}
}

// TestLimiter_RateBound submits 5 requests against a "2/period" config
// and checks the full drain takes at least one extra window, since only
// 2 of the 5 can resolve immediately.
func TestLimiter_RateBound(t *testing.T) {
	l := New()
	cfg := Config{Requests: 2, Period: 80 * time.Millisecond}

	var wg sync.WaitGroup
	start := time.Now()
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.AcquireSlot("host", cfg)
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	if elapsed < cfg.Period {
		t.Errorf("expected draining 5 requests at 2/window to take at least one window, took %v", elapsed)
	}
}

// TestLimiter_FIFOWithinOneGoroutine checks that sequential acquisitions
// from a single caller resolve in submission order (trivially true, but
// exercises the waiter queue/drain path end to end).
func TestLimiter_FIFOWithinOneGoroutine(t *testing.T) {
	l := New()
	cfg := Config{Requests: 1, Period: 20 * time.Millisecond}
	for i := 0; i < 3; i++ {
		if err := l.AcquireSlot("seqhost", cfg); err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
	}
}

func TestLimiter_ZeroConfigNeverBlocks(t *testing.T) {
	l := New()
	done := make(chan struct{})
	go func() {
		_ = l.AcquireSlot("host", Config{})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected zero-config AcquireSlot to return immediately")
	}
}
