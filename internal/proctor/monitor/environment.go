package monitor

// Event is a browser event whose default action can be suppressed.
type Event interface {
	PreventDefault()
}

// KeyEvent is a keydown event. Ctrl reports Control or Meta.
type KeyEvent interface {
	Event
	Key() string
	Ctrl() bool
	Shift() bool
}

// ClipboardAction is the clipboard operation a ClipboardEvent attempts.
type ClipboardAction string

const (
	ClipboardCopy  ClipboardAction = "copy"
	ClipboardCut   ClipboardAction = "cut"
	ClipboardPaste ClipboardAction = "paste"
)

// Subscription releases one registered observer.
type Subscription interface {
	Unsubscribe()
}

// SubscriptionFunc adapts a function to Subscription.
type SubscriptionFunc func()

func (f SubscriptionFunc) Unsubscribe() { f() }

// Environment is the page the monitor observes. A browser binding forwards
// document/window events to it; tests synthesize them directly.
type Environment interface {
	OnClipboard(func(ClipboardAction, Event)) Subscription
	OnContextMenu(func(Event)) Subscription
	OnVisibilityChange(func(hidden bool)) Subscription
	OnBlur(func()) Subscription
	OnFullscreenChange(func(fullscreen bool)) Subscription
	OnKeyDown(func(KeyEvent)) Subscription
	OnSelectStart(func(Event)) Subscription

	RequestFullscreen() error
	ExitFullscreen() error
}
