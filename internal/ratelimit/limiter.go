// Package ratelimit implements the per-host request-rate gate: a FIFO
// queue of waiters per host, lazily garbage collected once a host has
// been idle for 5 minutes. `golang.org/x/time/rate` was considered, but
// its token-bucket semantics don't expose the merge-to-more-restrictive
// config and FIFO-waiter-drain behavior needed here, so this is
// hand-rolled instead.
package ratelimit

import (
	"strconv"
	"strings"
	"sync"
	"time"
)

// Config is a parsed rate-limit policy: `requests` per `Period`.
type Config struct {
	Requests int
	Period   time.Duration
}

// ParseRateLimit parses "N/Munit" (unit in {ms,s,m,h}); unit defaults to
// s only when the amount is entirely absent ("1/s"); "2/500" (amount
// present, unit missing) is invalid and returns ok=false.
func ParseRateLimit(s string) (cfg Config, ok bool) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 {
		return Config{}, false
	}
	n, err := strconv.Atoi(parts[0])
	if err != nil || n <= 0 {
		return Config{}, false
	}
	rest := parts[1]
	if rest == "s" {
		return Config{Requests: n, Period: time.Second}, true
	}
	amount, unit, ok2 := splitAmountUnit(rest)
	if !ok2 {
		return Config{}, false
	}
	mul, ok3 := unitDuration(unit)
	if !ok3 {
		return Config{}, false
	}
	if amount <= 0 {
		return Config{}, false
	}
	return Config{Requests: n, Period: time.Duration(amount) * mul}, true
}

func splitAmountUnit(s string) (amount int, unit string, ok bool) {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 {
		return 0, "", false
	}
	n, err := strconv.Atoi(s[:i])
	if err != nil {
		return 0, "", false
	}
	return n, s[i:], true
}

func unitDuration(unit string) (time.Duration, bool) {
	switch unit {
	case "ms":
		return time.Millisecond, true
	case "s":
		return time.Second, true
	case "m":
		return time.Minute, true
	case "h":
		return time.Hour, true
	}
	return 0, false
}

func moreRestrictive(a, b Config) Config {
	ratioA := float64(a.Period) / float64(a.Requests)
	ratioB := float64(b.Period) / float64(b.Requests)
	if ratioA >= ratioB {
		return a
	}
	return b
}

type waiter struct{ done chan struct{} }

type hostState struct {
	cfg        Config
	timestamps []time.Time
	queue      []*waiter
	lastUsedAt time.Time
	timer      *time.Timer
}

// Limiter gates requests per host. Shared across concurrent Engine
// operations; every mutation is guarded by mu since this runtime
// schedules goroutines concurrently rather than cooperatively.
type Limiter struct {
	mu    sync.Mutex
	hosts map[string]*hostState
	gcInterval time.Duration
}

// New creates a Limiter. A background goroutine GCs idle host state
// every minute; idle means both queue and timestamps empty for 5 minutes.
func New() *Limiter {
	l := &Limiter{hosts: make(map[string]*hostState), gcInterval: time.Minute}
	go l.gcLoop()
	return l
}

func (l *Limiter) gcLoop() {
	ticker := time.NewTicker(l.gcInterval)
	defer ticker.Stop()
	for range ticker.C {
		l.mu.Lock()
		for host, hs := range l.hosts {
			if len(hs.queue) == 0 && len(hs.timestamps) == 0 && time.Since(hs.lastUsedAt) > 5*time.Minute {
				if hs.timer != nil {
					hs.timer.Stop()
				}
				delete(l.hosts, host)
			}
		}
		l.mu.Unlock()
	}
}

// AcquireSlot blocks until a slot opens for host under cfg, merging cfg
// into the host's existing policy by taking whichever is more
// restrictive. It takes no context: a queued caller cannot be cancelled
// or timed out and waits until the queue drains to it.
func (l *Limiter) AcquireSlot(host string, cfg Config) error {
	if cfg.Requests <= 0 || cfg.Period <= 0 {
		return nil
	}
	l.mu.Lock()
	hs, ok := l.hosts[host]
	if !ok {
		hs = &hostState{cfg: cfg}
		l.hosts[host] = hs
	} else {
		hs.cfg = moreRestrictive(hs.cfg, cfg)
	}
	hs.lastUsedAt = time.Now()
	w := &waiter{done: make(chan struct{})}
	hs.queue = append(hs.queue, w)
	l.drainLocked(host)
	l.mu.Unlock()

	<-w.done
	return nil
}

// ReleaseSlot triggers a drain so queued waiters never starve when a
// previously-busy host frees up.
func (l *Limiter) ReleaseSlot(host string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.drainLocked(host)
}

func (l *Limiter) drainLocked(host string) {
	hs, ok := l.hosts[host]
	if !ok {
		return
	}
	now := time.Now()
	pruned := hs.timestamps[:0]
	for _, ts := range hs.timestamps {
		if now.Sub(ts) < hs.cfg.Period {
			pruned = append(pruned, ts)
		}
	}
	hs.timestamps = pruned

	for len(hs.queue) > 0 && len(hs.timestamps) < hs.cfg.Requests {
		hs.timestamps = append(hs.timestamps, now)
		w := hs.queue[0]
		hs.queue = hs.queue[1:]
		close(w.done)
	}

	if hs.timer != nil {
		hs.timer.Stop()
		hs.timer = nil
	}
	if len(hs.queue) > 0 && len(hs.timestamps) > 0 {
		wait := hs.timestamps[0].Add(hs.cfg.Period).Sub(now)
		if wait < 0 {
			wait = 0
		}
		hs.timer = time.AfterFunc(wait, func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			l.drainLocked(host)
		})
	}
}

// HostOf extracts the host component of an absolute URL for rate-limiter
// keying. Returns the input unchanged if it cannot be parsed as a URL
// with a host.
func HostOf(rawURL string) string {
	if i := strings.Index(rawURL, "://"); i >= 0 {
		rest := rawURL[i+3:]
		if j := strings.IndexAny(rest, "/?#"); j >= 0 {
			rest = rest[:j]
		}
		return rest
	}
	return rawURL
}
