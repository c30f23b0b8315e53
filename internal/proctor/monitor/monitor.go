// Package monitor counts proctoring violations observed in an exam page and
// escalates them to a terminal "integrity exceeded" signal.
package monitor

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// DefaultMaxViolations is the ceiling when none is configured.
const DefaultMaxViolations = 3

var (
	ErrAlreadyActivated = errors.New("monitor already activated")
	ErrDeactivated      = errors.New("monitor deactivated")
)

// Kind is a class of counted violation. The values match model.ViolationKind.
type Kind string

const (
	KindClipboard      Kind = "clipboard"
	KindFocusLost      Kind = "focus_lost"
	KindFullscreenExit Kind = "fullscreen_exit"
	KindScreenshot     Kind = "screenshot"
)

func (k Kind) label() string {
	switch k {
	case KindClipboard:
		return "Copy/paste"
	case KindFocusLost:
		return "Berpindah tab atau jendela"
	case KindFullscreenExit:
		return "Keluar dari layar penuh"
	case KindScreenshot:
		return "Tangkapan layar"
	default:
		return string(k)
	}
}

// State is the monitor lifecycle.
type State int

const (
	StateInactive State = iota
	StateActive
	StateExceeded
	StateDeactivated
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateExceeded:
		return "exceeded"
	case StateDeactivated:
		return "deactivated"
	default:
		return "inactive"
	}
}

// Severity of a violation notice.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityHigh
	SeverityTerminal
)

// Notice is emitted for every counted violation.
type Notice struct {
	Severity  Severity
	Kind      Kind
	Count     int
	Max       int
	Remaining int
	Message   string
}

// Notifier shows notices to the student.
type Notifier interface {
	Notify(Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

// Monitor observes an Environment while active. All methods are safe for
// concurrent use; callbacks run outside the internal lock.
type Monitor struct {
	env      Environment
	notifier Notifier
	max      int
	log      zerolog.Logger

	mu          sync.Mutex
	state       State
	count       int
	subs        []Subscription
	onExceeded  []func()
	onViolation []func(Kind, int)

	exceededOnce sync.Once
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithMaxViolations sets the ceiling. Values below 1 keep the default.
func WithMaxViolations(n int) Option {
	return func(m *Monitor) {
		if n >= 1 {
			m.max = n
		}
	}
}

// WithNotifier sets the notice sink.
func WithNotifier(n Notifier) Option {
	return func(m *Monitor) { m.notifier = n }
}

// WithLogger sets the logger. Defaults to zerolog.Nop().
func WithLogger(log zerolog.Logger) Option {
	return func(m *Monitor) { m.log = log.With().Str("component", "monitor").Logger() }
}

// New creates an inactive monitor over env.
func New(env Environment, opts ...Option) *Monitor {
	m := &Monitor{
		env:      env,
		notifier: NotifierFunc(func(Notice) {}),
		max:      DefaultMaxViolations,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OnExceeded registers fn to run once, the first time the count reaches the ceiling.
func (m *Monitor) OnExceeded(fn func()) {
	m.mu.Lock()
	m.onExceeded = append(m.onExceeded, fn)
	m.mu.Unlock()
}

// OnViolation registers fn to receive every counted violation.
func (m *Monitor) OnViolation(fn func(kind Kind, count int)) {
	m.mu.Lock()
	m.onViolation = append(m.onViolation, fn)
	m.mu.Unlock()
}

// Activate subscribes to the environment and requests fullscreen.
// A denied fullscreen request is logged and does not fail activation.
func (m *Monitor) Activate() error {
	m.mu.Lock()
	switch m.state {
	case StateDeactivated:
		m.mu.Unlock()
		return ErrDeactivated
	case StateActive, StateExceeded:
		m.mu.Unlock()
		return ErrAlreadyActivated
	}
	m.state = StateActive
	m.mu.Unlock()

	subs := []Subscription{
		m.env.OnClipboard(m.handleClipboard),
		m.env.OnContextMenu(m.suppress),
		m.env.OnVisibilityChange(m.handleVisibility),
		m.env.OnBlur(m.handleBlur),
		m.env.OnFullscreenChange(m.handleFullscreen),
		m.env.OnKeyDown(m.handleKeyDown),
		m.env.OnSelectStart(m.suppress),
	}

	m.mu.Lock()
	if m.state == StateDeactivated {
		// Deactivate ran while subscribing.
		m.mu.Unlock()
		release(subs)
		return ErrDeactivated
	}
	m.subs = subs
	m.mu.Unlock()

	if err := m.env.RequestFullscreen(); err != nil {
		m.log.Warn().Err(err).Msg("Fullscreen request denied")
	}
	m.log.Info().Int("max_violations", m.max).Msg("Monitor activated")
	return nil
}

// Deactivate releases every observer and leaves fullscreen. Idempotent.
func (m *Monitor) Deactivate() {
	m.mu.Lock()
	if m.state == StateDeactivated {
		m.mu.Unlock()
		return
	}
	wasWatching := m.state == StateActive || m.state == StateExceeded
	m.state = StateDeactivated
	subs := m.subs
	m.subs = nil
	m.mu.Unlock()

	release(subs)
	if wasWatching {
		if err := m.env.ExitFullscreen(); err != nil {
			m.log.Debug().Err(err).Msg("Exit fullscreen failed")
		}
	}
	m.log.Info().Msg("Monitor deactivated")
}

// State returns the current lifecycle state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Count returns the number of counted violations.
func (m *Monitor) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}

// Max returns the configured ceiling.
func (m *Monitor) Max() int {
	return m.max
}

func release(subs []Subscription) {
	for _, s := range subs {
		if s != nil {
			s.Unsubscribe()
		}
	}
}

// watching must be called with mu held.
func (m *Monitor) watching() bool {
	return m.state == StateActive || m.state == StateExceeded
}

func (m *Monitor) suppress(ev Event) {
	m.mu.Lock()
	ok := m.watching()
	m.mu.Unlock()
	if ok {
		ev.PreventDefault()
	}
}

func (m *Monitor) handleClipboard(_ ClipboardAction, ev Event) {
	m.mu.Lock()
	ok := m.watching()
	m.mu.Unlock()
	if !ok {
		return
	}
	ev.PreventDefault()
	m.record(KindClipboard)
}

func (m *Monitor) handleVisibility(hidden bool) {
	if hidden {
		m.record(KindFocusLost)
	}
}

func (m *Monitor) handleBlur() {
	m.record(KindFocusLost)
}

func (m *Monitor) handleFullscreen(fullscreen bool) {
	if !fullscreen {
		m.record(KindFullscreenExit)
	}
}

func (m *Monitor) handleKeyDown(ev KeyEvent) {
	m.mu.Lock()
	ok := m.watching()
	m.mu.Unlock()
	if !ok {
		return
	}
	if isRestricted(ev) {
		ev.PreventDefault()
	}
	if isScreenshot(ev) {
		ev.PreventDefault()
		m.record(KindScreenshot)
	}
}

// record counts one violation and escalates.
func (m *Monitor) record(kind Kind) {
	m.mu.Lock()
	if !m.watching() {
		m.mu.Unlock()
		return
	}
	m.count++
	n := m.count
	terminal := n >= m.max
	if terminal {
		m.state = StateExceeded
	}
	violationFns := append([]func(Kind, int){}, m.onViolation...)
	exceededFns := append([]func(){}, m.onExceeded...)
	m.mu.Unlock()

	notice := m.escalate(kind, n)
	m.log.Warn().
		Str("kind", string(kind)).
		Int("count", n).
		Int("max", m.max).
		Msg("Violation recorded")

	m.notifier.Notify(notice)
	for _, fn := range violationFns {
		fn(kind, n)
	}

	if terminal {
		m.exceededOnce.Do(func() {
			m.log.Warn().Int("count", n).Msg("Violation ceiling reached")
			for _, fn := range exceededFns {
				fn()
			}
		})
	}
}

// escalate builds the notice for the n-th violation. The ceiling wins over
// the first-warning rule when max is 1.
func (m *Monitor) escalate(kind Kind, n int) Notice {
	notice := Notice{Kind: kind, Count: n, Max: m.max}
	switch {
	case n >= m.max:
		notice.Severity = SeverityTerminal
		notice.Message = "Batas pelanggaran tercapai. Ujian dikumpulkan otomatis."
	case n == 1:
		notice.Severity = SeverityLow
		notice.Remaining = m.max - n
		notice.Message = fmt.Sprintf("Peringatan: %s. Pelanggaran %d/%d.", kind.label(), n, m.max)
	default:
		notice.Severity = SeverityHigh
		notice.Remaining = m.max - n
		notice.Message = fmt.Sprintf("%s! Pelanggaran %d/%d, tersisa %d kesempatan sebelum ujian dikumpulkan otomatis.",
			kind.label(), n, m.max, notice.Remaining)
	}
	return notice
}
