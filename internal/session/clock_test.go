package session_test

import (
	"sync"
	"testing"
	"time"

	"github.com/tradelab/sim-engine/internal/session"
)

// fakeClock implements session.Clock with manually fired tickers, keyed by
// interval, so tests step the simulation deterministically.
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers map[time.Duration]*fakeTicker
}

type fakeTicker struct {
	ch chan time.Time
}

func (f *fakeTicker) C() <-chan time.Time { return f.ch }
func (f *fakeTicker) Stop()               {}

func newFakeClock(t0 time.Time) *fakeClock {
	return &fakeClock{
		now:     t0,
		tickers: make(map[time.Duration]*fakeTicker),
	}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) NewTicker(d time.Duration) session.Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	ft := &fakeTicker{ch: make(chan time.Time, 64)}
	c.tickers[d] = ft
	return ft
}

// advance moves the clock forward without firing anything.
func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fire advances the clock by step and delivers one tick on the ticker
// created with the given interval. The send is buffered; callers assert
// outcomes with waitFor.
func (c *fakeClock) fire(t *testing.T, interval, step time.Duration) {
	t.Helper()
	waitFor(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		_, ok := c.tickers[interval]
		return ok
	}, "ticker registered")

	c.mu.Lock()
	c.now = c.now.Add(step)
	now := c.now
	ft := c.tickers[interval]
	c.mu.Unlock()

	ft.ch <- now
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
