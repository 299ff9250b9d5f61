// Package timeutil lets the dial owner, feed simulator, frame logger and
// replay sources run against either the wall clock or a test clock.
package timeutil

import (
	"sync"
	"time"
)

// Clock is the subset of package time the helm loops depend on.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker delivers ticks on C until stopped.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// RealClock is the wall clock.
type RealClock struct{}

func (RealClock) Now() time.Time                         { return time.Now() }
func (RealClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (RealClock) NewTicker(d time.Duration) Ticker {
	return realTicker{time.NewTicker(d)}
}

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// MockClock only moves when Advance is called. Pending After channels and
// tickers whose deadline has been reached fire during Advance.
type MockClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []*waiter
}

// waiter is a one-shot After channel when period is zero, a ticker otherwise.
type waiter struct {
	ch      chan time.Time
	due     time.Time
	period  time.Duration
	stopped bool
}

func NewMockClock(t time.Time) *MockClock {
	return &MockClock{now: t}
}

func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d. A ticker fires at most once per call
// and is rescheduled one period after the new time, so a long jump does not
// replay every missed tick.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)

	pending := c.waiters[:0]
	for _, w := range c.waiters {
		if w.stopped {
			continue
		}
		if c.now.Before(w.due) {
			pending = append(pending, w)
			continue
		}
		select {
		case w.ch <- c.now:
		default:
		}
		if w.period > 0 {
			w.due = c.now.Add(w.period)
			pending = append(pending, w)
		}
	}
	c.waiters = pending
}

func (c *MockClock) add(d, period time.Duration) *waiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	w := &waiter{ch: make(chan time.Time, 1), due: c.now.Add(d), period: period}
	c.waiters = append(c.waiters, w)
	return w
}

// After returns a channel that receives the clock's time once Advance has
// moved it d past now.
func (c *MockClock) After(d time.Duration) <-chan time.Time {
	return c.add(d, 0).ch
}

// NewTicker returns a ticker driven by Advance. Non-positive periods panic,
// matching time.NewTicker.
func (c *MockClock) NewTicker(d time.Duration) Ticker {
	if d <= 0 {
		panic("timeutil: non-positive interval for NewTicker")
	}
	return &MockTicker{clock: c, w: c.add(d, d)}
}

// MockTicker is the Ticker returned by MockClock.
type MockTicker struct {
	clock *MockClock
	w     *waiter
}

func (t *MockTicker) C() <-chan time.Time { return t.w.ch }

func (t *MockTicker) Stop() {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	t.w.stopped = true
}
