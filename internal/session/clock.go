package session

import "time"

// Clock abstracts wall-clock time and tickers so tests can step the
// simulation deterministically instead of sleeping.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker is the subset of time.Ticker the session needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type realClock struct{}

// RealClock returns a Clock backed by the system clock.
func RealClock() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) NewTicker(d time.Duration) Ticker {
	return &realTicker{t: time.NewTicker(d)}
}

type realTicker struct {
	t *time.Ticker
}

func (rt *realTicker) C() <-chan time.Time { return rt.t.C }
func (rt *realTicker) Stop()               { rt.t.Stop() }
