// Package timer implements the per-attempt exam countdown.
//
// Remaining time is derived from an absolute deadline on every tick, so a
// ticker that drifts, bursts or stalls (a backgrounded tab, a suspended
// laptop) can only make the countdown skip ahead, never run backwards.
package timer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Resolution is the tick interval and the rounding unit of Remaining.
const Resolution = time.Second

var ErrAlreadyStarted = errors.New("timer already started")

// Band classifies remaining time for display.
type Band int

const (
	BandNormal Band = iota
	BandWarning
	BandCritical
)

const (
	warningThreshold  = 5 * time.Minute
	criticalThreshold = time.Minute
)

func (b Band) String() string {
	switch b {
	case BandWarning:
		return "warning"
	case BandCritical:
		return "critical"
	default:
		return "normal"
	}
}

// BandOf returns the display band for a remaining duration.
func BandOf(remaining time.Duration) Band {
	switch {
	case remaining <= criticalThreshold:
		return BandCritical
	case remaining <= warningThreshold:
		return BandWarning
	default:
		return BandNormal
	}
}

// Format renders remaining time as MM:SS, or HH:MM:SS past one hour.
func Format(remaining time.Duration) string {
	if remaining < 0 {
		remaining = 0
	}
	secs := int(ceil(remaining) / time.Second)
	h, m, s := secs/3600, (secs%3600)/60, secs%60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// Timer is a one-shot countdown. Register callbacks before Start.
type Timer struct {
	duration time.Duration
	clock    Clock
	log      zerolog.Logger

	mu        sync.Mutex
	started   bool
	stopped   bool
	deadline  time.Time
	remaining time.Duration
	onTick    []func(time.Duration)
	onTimeUp  []func()

	timeUpOnce sync.Once
	stopOnce   sync.Once
	stopCh     chan struct{}
	done       chan struct{}
}

// Option configures a Timer.
type Option func(*Timer)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(t *Timer) { t.clock = c }
}

// WithLogger sets the logger. Defaults to zerolog.Nop().
func WithLogger(log zerolog.Logger) Option {
	return func(t *Timer) { t.log = log.With().Str("component", "timer").Logger() }
}

// New creates a stopped timer for the given duration.
func New(duration time.Duration, opts ...Option) *Timer {
	if duration < 0 {
		duration = 0
	}
	t := &Timer{
		duration:  duration,
		clock:     RealClock{},
		log:       zerolog.Nop(),
		remaining: ceil(duration),
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// OnTick registers fn to receive every decrease of the remaining time.
func (t *Timer) OnTick(fn func(remaining time.Duration)) {
	t.mu.Lock()
	t.onTick = append(t.onTick, fn)
	t.mu.Unlock()
}

// OnTimeUp registers fn to run once when the countdown reaches zero.
func (t *Timer) OnTimeUp(fn func()) {
	t.mu.Lock()
	t.onTimeUp = append(t.onTimeUp, fn)
	t.mu.Unlock()
}

// Start begins the countdown. The countdown ends when it reaches zero,
// when Stop is called, or when ctx is done.
func (t *Timer) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return ErrAlreadyStarted
	}
	t.started = true
	t.deadline = t.clock.Now().Add(t.duration)
	t.mu.Unlock()

	t.log.Debug().Dur("duration", t.duration).Msg("Countdown started")

	ticker := t.clock.NewTicker(Resolution)
	go t.run(ctx, ticker)
	return nil
}

// Stop ends the countdown without firing time-up. Safe to call repeatedly
// and from inside a callback.
func (t *Timer) Stop() {
	t.stopOnce.Do(func() {
		t.mu.Lock()
		t.stopped = true
		started := t.started
		t.started = true
		t.mu.Unlock()

		close(t.stopCh)
		if !started {
			close(t.done)
		}
	})
}

// Remaining returns the last published remaining time.
func (t *Timer) Remaining() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining
}

// Done is closed once the countdown goroutine has exited.
func (t *Timer) Done() <-chan struct{} {
	return t.done
}

func (t *Timer) run(ctx context.Context, ticker Ticker) {
	defer close(t.done)
	defer ticker.Stop()

	if t.advance(t.clock.Now()) {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stopCh:
			return
		case now := <-ticker.C():
			if t.advance(now) {
				return
			}
		}
	}
}

// advance publishes the remaining time at now and reports whether the
// countdown is over.
func (t *Timer) advance(now time.Time) bool {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return true
	}
	left := ceil(t.deadline.Sub(now))
	if left >= t.remaining && left > 0 {
		t.mu.Unlock()
		return false
	}
	changed := left < t.remaining
	t.remaining = left
	ticks := append([]func(time.Duration){}, t.onTick...)
	t.mu.Unlock()

	if changed {
		for _, fn := range ticks {
			fn(left)
		}
	}

	if left > 0 {
		return false
	}
	t.fireTimeUp()
	return true
}

func (t *Timer) fireTimeUp() {
	t.timeUpOnce.Do(func() {
		t.mu.Lock()
		if t.stopped {
			t.mu.Unlock()
			return
		}
		t.stopped = true
		fns := append([]func(){}, t.onTimeUp...)
		t.mu.Unlock()

		t.log.Info().Msg("Time up")
		for _, fn := range fns {
			fn()
		}
	})
}

// ceil rounds d up to a whole number of seconds.
func ceil(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return ((d + Resolution - 1) / Resolution) * Resolution
}
