// Package session drives one proctored exam attempt: it owns the attempt
// state, runs the countdown and the violation monitor, and submits exactly
// once whichever of the student, the timer or the monitor asks first.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/proctor/client"
	"github.com/stemsi/exstem-proctor/internal/proctor/monitor"
	"github.com/stemsi/exstem-proctor/internal/proctor/timer"
)

var (
	ErrNoContent          = errors.New("exam has no questions")
	ErrNotStarted         = errors.New("attempt not started")
	ErrAlreadyStarted     = errors.New("attempt already started")
	ErrInvalidOption      = errors.New("option index out of range")
	ErrAlreadySubmitted   = errors.New("attempt already submitted")
	ErrSubmissionInFlight = errors.New("submission in flight")
	ErrClosed             = errors.New("attempt closed")
	ErrNotFailed          = errors.New("no failed submission to retry")
)

const (
	defaultSubmitTimeout = 15 * time.Second
	defaultRetries       = 3
	reportTimeout        = 5 * time.Second
)

// Trigger identifies who asked for the submission.
type Trigger int

const (
	TriggerStudent Trigger = iota
	TriggerTimeUp
	TriggerIntegrity
)

func (t Trigger) String() string {
	switch t {
	case TriggerTimeUp:
		return "time_up"
	case TriggerIntegrity:
		return "integrity"
	default:
		return "student"
	}
}

// State of the controller.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateNoContent
	StateInProgress
	StateSubmitting
	StateSubmitted
	StateFailed
)

func (s State) String() string {
	return [...]string{"idle", "loading", "no_content", "in_progress", "submitting", "submitted", "failed"}[s]
}

// PaperSource fetches the student view of an exam.
type PaperSource interface {
	FetchPaper(ctx context.Context, examID uuid.UUID, entryToken string) (*model.ExamPaper, error)
}

// Submitter sends a packaged attempt for grading.
type Submitter interface {
	Submit(ctx context.Context, examID uuid.UUID, req model.SubmitRequest) (*model.SubmissionSummary, error)
}

// ViolationReporter forwards soft signals to the audit trail.
type ViolationReporter interface {
	ReportViolation(ctx context.Context, examID uuid.UUID, kind model.ViolationKind, count int) error
}

// Outcome is the result of a submission. Summary is set only when the
// server confirmed the grade; anything shown before that is provisional.
type Outcome struct {
	Trigger Trigger
	Summary *model.SubmissionSummary
	Err     error
}

// Confirmed reports whether the server accepted the attempt.
func (o Outcome) Confirmed() bool {
	return o.Err == nil && o.Summary != nil
}

// Controller is the single writer of an Attempt and the single caller of the Submitter.
type Controller struct {
	examID    uuid.UUID
	source    PaperSource
	submitter Submitter
	reporter  ViolationReporter

	env           monitor.Environment
	notifier      monitor.Notifier
	maxViolations int
	clock         timer.Clock

	submitTimeout time.Duration
	retries       int
	baseBackoff   time.Duration
	maxBackoff    time.Duration

	log zerolog.Logger

	// submitted flips once; only the caller that flips it reaches the network.
	submitted atomic.Bool

	mu        sync.Mutex
	state     State
	paper     *model.ExamPaper
	attempt   Attempt
	payload   model.SubmitRequest
	trigger   Trigger
	onOutcome []func(Outcome)
	onTick    []func(time.Duration)
	timer     *timer.Timer
	monitor   *monitor.Monitor
	runCtx    context.Context
	cancel    context.CancelFunc
	// closed stops spawn from adding to wg once Close is waiting on it.
	closed bool

	wg sync.WaitGroup
}

// Option configures a Controller.
type Option func(*Controller)

// WithEnvironment enables the violation monitor over env.
func WithEnvironment(env monitor.Environment) Option {
	return func(c *Controller) { c.env = env }
}

// WithNotifier receives violation notices.
func WithNotifier(n monitor.Notifier) Option {
	return func(c *Controller) { c.notifier = n }
}

// WithMaxViolations sets the integrity ceiling used when the paper does not
// carry the server's max_violations setting.
func WithMaxViolations(n int) Option {
	return func(c *Controller) { c.maxViolations = n }
}

// WithClock sets the countdown clock.
func WithClock(clk timer.Clock) Option {
	return func(c *Controller) { c.clock = clk }
}

// WithReporter forwards counted violations to the server.
func WithReporter(r ViolationReporter) Option {
	return func(c *Controller) { c.reporter = r }
}

// WithSubmitTimeout bounds each submission request.
func WithSubmitTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.submitTimeout = d
		}
	}
}

// WithRetries sets how many times a retryable submission failure is retried.
func WithRetries(n int) Option {
	return func(c *Controller) {
		if n >= 0 {
			c.retries = n
		}
	}
}

// WithBackoff sets the retry backoff bounds.
func WithBackoff(base, max time.Duration) Option {
	return func(c *Controller) {
		c.baseBackoff = base
		c.maxBackoff = max
	}
}

// WithLogger sets the logger. Defaults to zerolog.Nop().
func WithLogger(log zerolog.Logger) Option {
	return func(c *Controller) { c.log = log }
}

// New creates an idle controller for one attempt at examID.
func New(examID uuid.UUID, source PaperSource, submitter Submitter, opts ...Option) *Controller {
	c := &Controller{
		examID:        examID,
		source:        source,
		submitter:     submitter,
		maxViolations: monitor.DefaultMaxViolations,
		clock:         timer.RealClock{},
		submitTimeout: defaultSubmitTimeout,
		retries:       defaultRetries,
		baseBackoff:   client.DefaultBaseBackoff,
		maxBackoff:    client.DefaultMaxBackoff,
		log:           zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With().
		Str("component", "session").
		Str("exam_id", examID.String()).
		Logger()
	return c
}

// OnOutcome registers fn to receive every submission outcome.
func (c *Controller) OnOutcome(fn func(Outcome)) {
	c.mu.Lock()
	c.onOutcome = append(c.onOutcome, fn)
	c.mu.Unlock()
}

// OnTick registers fn to receive countdown updates.
func (c *Controller) OnTick(fn func(remaining time.Duration)) {
	c.mu.Lock()
	c.onTick = append(c.onTick, fn)
	c.mu.Unlock()
}

// Start fetches the paper and enters proctored mode. An exam without
// questions leaves the controller in StateNoContent and returns ErrNoContent.
func (c *Controller) Start(ctx context.Context, entryToken string) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.state = StateLoading
	c.mu.Unlock()

	paper, err := c.source.FetchPaper(ctx, c.examID, entryToken)
	if err != nil {
		c.setState(StateIdle)
		return fmt.Errorf("fetch paper: %w", err)
	}
	if paper == nil || len(paper.Questions) == 0 {
		c.setState(StateNoContent)
		c.log.Warn().Msg("Exam has no questions, not starting")
		return ErrNoContent
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	duration := time.Duration(paper.DurationMinutes) * time.Minute

	tm := timer.New(duration, timer.WithClock(c.clock), timer.WithLogger(c.log))
	tm.OnTick(c.handleTick)
	tm.OnTimeUp(func() { c.force(TriggerTimeUp) })

	maxViolations := c.maxViolations
	if paper.MaxViolations > 0 {
		maxViolations = paper.MaxViolations
	}

	var mon *monitor.Monitor
	if c.env != nil {
		monOpts := []monitor.Option{
			monitor.WithMaxViolations(maxViolations),
			monitor.WithLogger(c.log),
		}
		if c.notifier != nil {
			monOpts = append(monOpts, monitor.WithNotifier(c.notifier))
		}
		mon = monitor.New(c.env, monOpts...)
		mon.OnViolation(c.handleViolation)
		mon.OnExceeded(func() { c.force(TriggerIntegrity) })
	}

	c.mu.Lock()
	c.paper = paper
	c.attempt = newAttempt(len(paper.Questions), tm.Remaining())
	c.timer = tm
	c.monitor = mon
	c.runCtx = runCtx
	c.cancel = cancel
	c.state = StateInProgress
	c.mu.Unlock()

	if mon != nil {
		if err := mon.Activate(); err != nil {
			c.log.Warn().Err(err).Msg("Monitor activation failed")
		}
	}
	if err := tm.Start(runCtx); err != nil {
		return fmt.Errorf("start timer: %w", err)
	}

	c.log.Info().
		Int("questions", len(paper.Questions)).
		Dur("duration", duration).
		Msg("Attempt started")
	return nil
}

// SelectOption records option for the current question, replacing any earlier choice.
func (c *Controller) SelectOption(option int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.mutable(); err != nil {
		return err
	}
	q := c.paper.Questions[c.attempt.Current]
	if option < 0 || option >= len(q.Options) {
		return ErrInvalidOption
	}
	c.attempt.Answers[c.attempt.Current] = option
	return nil
}

// ToggleFlag flips the flag of the current question and returns the new value.
func (c *Controller) ToggleFlag() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.mutable(); err != nil {
		return false, err
	}
	idx := c.attempt.Current
	if c.attempt.Flagged[idx] {
		delete(c.attempt.Flagged, idx)
		return false, nil
	}
	c.attempt.Flagged[idx] = true
	return true, nil
}

// Navigate moves to index, clamped into the question range, and returns
// the index actually selected.
func (c *Controller) Navigate(index int) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.mutable(); err != nil {
		return c.attempt.Current, err
	}
	last := c.attempt.Total - 1
	switch {
	case index < 0:
		index = 0
	case index > last:
		index = last
	}
	c.attempt.Current = index
	return index, nil
}

// Submit ends the attempt and sends it for grading. Only the first call of
// the attempt proceeds; every later call returns ErrAlreadySubmitted
// without network I/O.
func (c *Controller) Submit(ctx context.Context, trigger Trigger) (*model.SubmissionSummary, error) {
	switch c.State() {
	case StateIdle, StateLoading, StateNoContent:
		return nil, ErrNotStarted
	}
	if !c.submitted.CompareAndSwap(false, true) {
		return nil, ErrAlreadySubmitted
	}

	c.mu.Lock()
	c.state = StateSubmitting
	c.trigger = trigger
	c.payload = c.attempt.request()
	req := c.payload
	tm, mon := c.timer, c.monitor
	c.mu.Unlock()

	tm.Stop()
	if mon != nil {
		mon.Deactivate()
	}

	c.log.Info().
		Str("trigger", trigger.String()).
		Int("answered", len(req.Answers)).
		Int("flagged", len(req.FlaggedIndices)).
		Msg("Submitting attempt")

	return c.deliver(ctx, trigger, req)
}

// Retry resends the frozen attempt after a failed submission.
func (c *Controller) Retry(ctx context.Context) (*model.SubmissionSummary, error) {
	c.mu.Lock()
	if c.state != StateFailed {
		c.mu.Unlock()
		return nil, ErrNotFailed
	}
	c.state = StateSubmitting
	req, trigger := c.payload, c.trigger
	c.mu.Unlock()

	c.log.Info().Str("trigger", trigger.String()).Msg("Retrying failed submission")
	return c.deliver(ctx, trigger, req)
}

// Close tears the attempt down and waits for background work. It does not submit.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	tm, mon, cancel := c.timer, c.monitor, c.cancel
	c.mu.Unlock()

	if tm != nil {
		tm.Stop()
	}
	if mon != nil {
		mon.Deactivate()
	}
	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
}

// State returns the controller state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Attempt returns a copy of the attempt for display.
func (c *Controller) Attempt() Attempt {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempt.clone()
}

// AnsweredCount returns the number of questions with a selected option.
func (c *Controller) AnsweredCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.attempt.Answers)
}

// Question returns the current question, without its answer key.
func (c *Controller) Question() (model.QuestionForStudent, int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paper == nil || len(c.paper.Questions) == 0 {
		return model.QuestionForStudent{}, 0, ErrNotStarted
	}
	return c.paper.Questions[c.attempt.Current], c.attempt.Current, nil
}

// mutable reports whether the attempt accepts changes. Called with mu held.
func (c *Controller) mutable() error {
	switch c.state {
	case StateInProgress:
		if c.submitted.Load() {
			return ErrSubmissionInFlight
		}
		return nil
	case StateSubmitting, StateFailed:
		return ErrSubmissionInFlight
	case StateSubmitted:
		return ErrClosed
	default:
		return ErrNotStarted
	}
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Controller) context() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.runCtx == nil {
		return context.Background()
	}
	return c.runCtx
}

// force submits on behalf of the timer or the monitor without blocking the caller.
func (c *Controller) force(trigger Trigger) {
	if c.submitted.Load() {
		return
	}
	ctx := c.context()
	c.spawn(func() {
		if _, err := c.Submit(ctx, trigger); err != nil && !errors.Is(err, ErrAlreadySubmitted) {
			c.log.Error().Err(err).Str("trigger", trigger.String()).Msg("Forced submission failed")
		}
	})
}

// spawn runs fn on a goroutine tracked by Close. After Close it does nothing.
func (c *Controller) spawn(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn()
	}()
}

func (c *Controller) deliver(ctx context.Context, trigger Trigger, req model.SubmitRequest) (*model.SubmissionSummary, error) {
	summary, err := c.send(ctx, req)

	c.mu.Lock()
	if err != nil {
		c.state = StateFailed
	} else {
		c.state = StateSubmitted
	}
	fns := append([]func(Outcome){}, c.onOutcome...)
	c.mu.Unlock()

	outcome := Outcome{Trigger: trigger, Summary: summary, Err: err}
	for _, fn := range fns {
		fn(outcome)
	}

	if err != nil {
		c.log.Error().Err(err).Msg("Submission failed")
		return nil, fmt.Errorf("submit attempt: %w", err)
	}
	c.log.Info().
		Int("score", summary.Score).
		Int("correct", summary.Correct).
		Int("total", summary.Total).
		Msg("Submission confirmed")
	return summary, nil
}

// send calls the submitter with a per-request timeout, retrying transient
// failures with exponential backoff.
func (c *Controller) send(ctx context.Context, req model.SubmitRequest) (*model.SubmissionSummary, error) {
	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			wait := client.Backoff(attempt, c.baseBackoff, c.maxBackoff)
			c.log.Warn().Err(lastErr).Int("attempt", attempt).Dur("wait", wait).Msg("Retrying submission")
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return nil, fmt.Errorf("%w (last error: %v)", ctx.Err(), lastErr)
			case <-t.C:
			}
		}

		reqCtx, cancel := context.WithTimeout(ctx, c.submitTimeout)
		summary, err := c.submitter.Submit(reqCtx, c.examID, req)
		cancel()
		if err == nil {
			return summary, nil
		}
		lastErr = err
		if ctx.Err() != nil || !client.IsRetryable(err) {
			break
		}
	}
	return nil, lastErr
}

func (c *Controller) handleTick(remaining time.Duration) {
	c.mu.Lock()
	c.attempt.Remaining = remaining
	fns := append([]func(time.Duration){}, c.onTick...)
	c.mu.Unlock()
	for _, fn := range fns {
		fn(remaining)
	}
}

func (c *Controller) handleViolation(kind monitor.Kind, count int) {
	c.mu.Lock()
	c.attempt.Violations = count
	ctx := c.runCtx
	c.mu.Unlock()

	if c.reporter == nil {
		return
	}
	c.spawn(func() {
		reqCtx, cancel := context.WithTimeout(ctx, reportTimeout)
		defer cancel()
		if err := c.reporter.ReportViolation(reqCtx, c.examID, model.ViolationKind(kind), count); err != nil {
			c.log.Warn().Err(err).Str("kind", string(kind)).Msg("Violation report failed")
		}
	})
}
