// Package timertest provides a manually driven clock for countdown tests.
package timertest

import (
	"sync"
	"time"

	"github.com/stemsi/exstem-proctor/internal/proctor/timer"
)

// Clock is a timer.Clock that only moves when Advance or Tick is called.
type Clock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*ticker
}

var _ timer.Clock = (*Clock)(nil)

// New returns a clock frozen at start.
func New(start time.Time) *Clock {
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) NewTicker(time.Duration) timer.Ticker {
	t := &ticker{c: make(chan time.Time, 1)}
	c.mu.Lock()
	c.tickers = append(c.tickers, t)
	c.mu.Unlock()
	return t
}

// Advance moves the clock forward by d and delivers one tick.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	tickers := append([]*ticker{}, c.tickers...)
	c.mu.Unlock()

	for _, t := range tickers {
		t.send(now)
	}
}

// Tick delivers a tick stamped with at without moving the clock, simulating
// a late or duplicated tick.
func (c *Clock) Tick(at time.Time) {
	c.mu.Lock()
	tickers := append([]*ticker{}, c.tickers...)
	c.mu.Unlock()

	for _, t := range tickers {
		t.send(at)
	}
}

// Tickers returns the number of tickers that have not been stopped.
func (c *Clock) Tickers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.tickers {
		if !t.isStopped() {
			n++
		}
	}
	return n
}

type ticker struct {
	mu      sync.Mutex
	c       chan time.Time
	stopped bool
}

func (t *ticker) C() <-chan time.Time { return t.c }

func (t *ticker) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

func (t *ticker) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// send waits for buffer space until the ticker is stopped; ticks are never dropped.
func (t *ticker) send(at time.Time) {
	for {
		if t.isStopped() {
			return
		}
		select {
		case t.c <- at:
			return
		case <-time.After(time.Millisecond):
		}
	}
}
