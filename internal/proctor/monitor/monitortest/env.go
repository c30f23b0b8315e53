// Package monitortest provides an in-memory monitor.Environment whose
// events are fired by the test.
package monitortest

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/stemsi/exstem-proctor/internal/proctor/monitor"
)

// ErrFullscreenDenied is returned by RequestFullscreen when DenyFullscreen is set.
var ErrFullscreenDenied = errors.New("fullscreen denied")

// Event records whether PreventDefault was called.
type Event struct {
	prevented atomic.Bool
}

func (e *Event) PreventDefault() { e.prevented.Store(true) }
func (e *Event) Prevented() bool { return e.prevented.Load() }

// KeyEvent is a synthesized keydown.
type KeyEvent struct {
	Event
	KeyName   string
	CtrlDown  bool
	ShiftDown bool
}

func (k *KeyEvent) Key() string { return k.KeyName }
func (k *KeyEvent) Ctrl() bool  { return k.CtrlDown }
func (k *KeyEvent) Shift() bool { return k.ShiftDown }

// Env is a fake page. The zero value is not usable; call New.
type Env struct {
	DenyFullscreen bool

	mu         sync.Mutex
	nextID     int
	clipboard  map[int]func(monitor.ClipboardAction, monitor.Event)
	context    map[int]func(monitor.Event)
	visibility map[int]func(bool)
	blur       map[int]func()
	fullscreen map[int]func(bool)
	keydown    map[int]func(monitor.KeyEvent)
	selects    map[int]func(monitor.Event)

	isFullscreen bool
}

var _ monitor.Environment = (*Env)(nil)

func New() *Env {
	return &Env{
		clipboard:  map[int]func(monitor.ClipboardAction, monitor.Event){},
		context:    map[int]func(monitor.Event){},
		visibility: map[int]func(bool){},
		blur:       map[int]func(){},
		fullscreen: map[int]func(bool){},
		keydown:    map[int]func(monitor.KeyEvent){},
		selects:    map[int]func(monitor.Event){},
	}
}

func subscribe[F any](e *Env, m map[int]F, fn F) monitor.Subscription {
	e.mu.Lock()
	e.nextID++
	id := e.nextID
	m[id] = fn
	e.mu.Unlock()
	return monitor.SubscriptionFunc(func() {
		e.mu.Lock()
		delete(m, id)
		e.mu.Unlock()
	})
}

func snapshot[F any](e *Env, m map[int]F) []F {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]F, 0, len(m))
	for _, fn := range m {
		out = append(out, fn)
	}
	return out
}

func (e *Env) OnClipboard(fn func(monitor.ClipboardAction, monitor.Event)) monitor.Subscription {
	return subscribe(e, e.clipboard, fn)
}

func (e *Env) OnContextMenu(fn func(monitor.Event)) monitor.Subscription {
	return subscribe(e, e.context, fn)
}

func (e *Env) OnVisibilityChange(fn func(bool)) monitor.Subscription {
	return subscribe(e, e.visibility, fn)
}

func (e *Env) OnBlur(fn func()) monitor.Subscription {
	return subscribe(e, e.blur, fn)
}

func (e *Env) OnFullscreenChange(fn func(bool)) monitor.Subscription {
	return subscribe(e, e.fullscreen, fn)
}

func (e *Env) OnKeyDown(fn func(monitor.KeyEvent)) monitor.Subscription {
	return subscribe(e, e.keydown, fn)
}

func (e *Env) OnSelectStart(fn func(monitor.Event)) monitor.Subscription {
	return subscribe(e, e.selects, fn)
}

func (e *Env) RequestFullscreen() error {
	if e.DenyFullscreen {
		return ErrFullscreenDenied
	}
	e.setFullscreen(true)
	return nil
}

func (e *Env) ExitFullscreen() error {
	e.setFullscreen(false)
	return nil
}

func (e *Env) setFullscreen(on bool) {
	e.mu.Lock()
	changed := e.isFullscreen != on
	e.isFullscreen = on
	e.mu.Unlock()
	if changed {
		for _, fn := range snapshot(e, e.fullscreen) {
			fn(on)
		}
	}
}

// Fullscreen reports the simulated presentation mode.
func (e *Env) Fullscreen() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.isFullscreen
}

// Observers returns the number of live subscriptions.
func (e *Env) Observers() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.clipboard) + len(e.context) + len(e.visibility) + len(e.blur) +
		len(e.fullscreen) + len(e.keydown) + len(e.selects)
}

// ─── Event synthesis ───────────────────────────────────────────────

func (e *Env) Clipboard(action monitor.ClipboardAction) *Event {
	ev := &Event{}
	for _, fn := range snapshot(e, e.clipboard) {
		fn(action, ev)
	}
	return ev
}

func (e *Env) ContextMenu() *Event {
	ev := &Event{}
	for _, fn := range snapshot(e, e.context) {
		fn(ev)
	}
	return ev
}

func (e *Env) Hide() {
	for _, fn := range snapshot(e, e.visibility) {
		fn(true)
	}
}

func (e *Env) Show() {
	for _, fn := range snapshot(e, e.visibility) {
		fn(false)
	}
}

func (e *Env) Blur() {
	for _, fn := range snapshot(e, e.blur) {
		fn()
	}
}

// LeaveFullscreen simulates the student pressing Escape.
func (e *Env) LeaveFullscreen() {
	e.setFullscreen(false)
}

func (e *Env) KeyDown(key string, ctrl, shift bool) *KeyEvent {
	ev := &KeyEvent{KeyName: key, CtrlDown: ctrl, ShiftDown: shift}
	for _, fn := range snapshot(e, e.keydown) {
		fn(ev)
	}
	return ev
}

func (e *Env) SelectStart() *Event {
	ev := &Event{}
	for _, fn := range snapshot(e, e.selects) {
		fn(ev)
	}
	return ev
}
