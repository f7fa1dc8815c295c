package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/model"
)

// Phase is the lifecycle position of a session.
type Phase string

const (
	PhaseNotStarted   Phase = "NOT_STARTED"
	PhaseInstructions Phase = "INSTRUCTIONS"
	PhaseActive       Phase = "ACTIVE"
	PhaseSubmitted    Phase = "SUBMITTED"
	PhaseExited       Phase = "EXITED"
)

// ExitPrompt is shown by the Confirmer before an active session is abandoned.
const ExitPrompt = "Are you sure you want to exit the test? Your progress will be lost."

const (
	tickInterval  = time.Second
	submitTimeout = 10 * time.Second
)

// Deps are the collaborators of a Controller.
type Deps struct {
	Content    ContentProvider
	Fullscreen Fullscreen
	Events     EventSource
	Sink       SubmissionSink
	Navigator  Navigator
	Scheduler  Scheduler
	Observer   ViolationObserver // optional
	OnChange   func(View)        // optional, called after every state change

	LearnerID   int
	AlarmWindow time.Duration
	Now         func() time.Time
}

// Controller runs one timed test session. All methods are safe for concurrent
// use; mutations are serialised in arrival order. Collaborator calls happen
// after the internal lock is released, in the order of the changes that
// produced them.
type Controller struct {
	mu   sync.Mutex
	deps Deps
	log  zerolog.Logger

	testID  string
	def     *model.TestDefinition
	loadErr error
	phase   Phase

	state   *State
	timers  Timers
	monitor *Monitor
	elapsed int

	tickGen    uint64
	cancelTick Cancel
	submission *model.Submission

	// outbox holds effects not yet run, in the order their state changes
	// were made. Only the draining goroutine runs them.
	outbox   effects
	draining bool
}

// NewController creates a Controller in the NotStarted phase.
func NewController(deps Deps, log zerolog.Logger) *Controller {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Scheduler == nil {
		deps.Scheduler = NewRealScheduler()
	}
	return &Controller{
		deps:    deps,
		log:     log.With().Str("component", "session_controller").Int("learner_id", deps.LearnerID).Logger(),
		phase:   PhaseNotStarted,
		monitor: NewMonitor(deps.AlarmWindow),
	}
}

// effects are collaborator calls deferred until the lock is released.
type effects []func()

func (e *effects) add(fn func()) { *e = append(*e, fn) }

func (e effects) run() {
	for _, fn := range e {
		fn()
	}
}

// flushLocked queues fx behind every earlier change and releases c.mu. If no
// other goroutine is draining the outbox, the caller drains it, so
// collaborators see effects in the same order the state changed. Effects run
// without c.mu held and may call back into the controller.
func (c *Controller) flushLocked(fx effects) {
	c.outbox = append(c.outbox, fx...)
	if c.draining {
		c.mu.Unlock()
		return
	}
	c.draining = true
	for len(c.outbox) > 0 {
		batch := c.outbox
		c.outbox = nil
		c.mu.Unlock()
		batch.run()
		c.mu.Lock()
	}
	c.draining = false
	c.mu.Unlock()
}

// Load fetches the test definition and moves to the Instructions phase. On
// failure the controller stays NotStarted and keeps the error for View.
func (c *Controller) Load(ctx context.Context, testID string) error {
	c.mu.Lock()
	if c.phase != PhaseNotStarted {
		c.mu.Unlock()
		return fmt.Errorf("load: %w", ErrInvalidPhase)
	}
	c.testID = testID
	c.mu.Unlock()

	def, err := c.deps.Content.Load(ctx, testID)
	if err == nil {
		_, err = NewState(def)
	}

	var fx effects
	c.mu.Lock()
	if err != nil {
		c.loadErr = err
		c.log.Warn().Err(err).Str("test_id", testID).Msg("Test content unavailable")
	} else if c.phase == PhaseNotStarted {
		c.def = def
		c.loadErr = nil
		c.phase = PhaseInstructions
	}
	c.notifyLocked(&fx)
	c.flushLocked(fx)

	if err != nil {
		return fmt.Errorf("load test %s: %w", testID, err)
	}
	return nil
}

// Begin starts the active session: fullscreen is requested, both timers are
// armed, the monitor subscribes and the one-second tick is scheduled.
func (c *Controller) Begin() error {
	var fx effects
	c.mu.Lock()
	if c.phase != PhaseInstructions {
		c.mu.Unlock()
		return fmt.Errorf("begin: %w", ErrInvalidPhase)
	}

	st, err := NewState(c.def)
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("begin: %w", err)
	}
	c.state = st
	c.elapsed = 0
	c.timers.Start(c.def, st.CurrentSection())
	c.monitor.attach(c.deps.Events, c.onHidden, c.onUnload)

	c.tickGen++
	gen := c.tickGen
	c.cancelTick = c.deps.Scheduler.Every(tickInterval, func() { c.onTick(gen) })
	c.phase = PhaseActive

	c.log.Info().
		Str("test_id", c.testID).
		Int("global_seconds", c.timers.GlobalRemaining()).
		Int("questions", st.TotalQuestions()).
		Msg("Session started")

	if fs := c.deps.Fullscreen; fs != nil {
		fx.add(func() {
			if err := fs.RequestFullscreen(); err != nil {
				c.log.Warn().Err(err).Msg("Fullscreen request failed, continuing")
			}
		})
	}
	c.notifyLocked(&fx)
	c.flushLocked(fx)
	return nil
}

// RecordAnswer stores the selected option for a question.
func (c *Controller) RecordAnswer(questionID, option string) error {
	return c.mutate("record answer", func(fx *effects) error {
		return c.state.RecordAnswer(questionID, option)
	})
}

// ToggleFlag flips the review flag of a question and returns the new value.
func (c *Controller) ToggleFlag(questionID string) (bool, error) {
	var flagged bool
	err := c.mutate("toggle flag", func(fx *effects) error {
		var err error
		flagged, err = c.state.ToggleFlag(questionID)
		return err
	})
	return flagged, err
}

// Next moves to the next question, entering the next section after the last
// question of a section. On the final question it returns ErrAtLastQuestion.
func (c *Controller) Next() error {
	return c.mutate("next", func(fx *effects) error {
		if c.state.stepForward() {
			return nil
		}
		if c.state.AtEnd() {
			return ErrAtLastQuestion
		}
		c.advanceSectionLocked(fx)
		return nil
	})
}

// NextSection skips to the first question of the next section, or submits
// when no section remains.
func (c *Controller) NextSection() error {
	return c.mutate("next section", func(fx *effects) error {
		c.advanceSectionLocked(fx)
		return nil
	})
}

// Previous moves to the previous question. Stepping back into an earlier
// section resets that section's countdown to its full limit. On the first
// question it does nothing.
func (c *Controller) Previous() error {
	return c.mutate("previous", func(fx *effects) error {
		_, sectionChanged := c.state.stepBackward()
		if sectionChanged {
			c.timers.ArmSection(c.state.CurrentSection())
		}
		return nil
	})
}

// Submit ends the active session and hands the snapshot to the sink.
// Submitting an already submitted session has no effect.
func (c *Controller) Submit() error {
	var fx effects
	c.mu.Lock()
	switch c.phase {
	case PhaseSubmitted:
		c.mu.Unlock()
		return nil
	case PhaseActive:
	default:
		c.mu.Unlock()
		return fmt.Errorf("submit: %w", ErrInvalidPhase)
	}
	c.submitLocked(model.SubmitReasonLearner, &fx)
	c.notifyLocked(&fx)
	c.flushLocked(fx)
	return nil
}

// Exit abandons the session without submitting. An active session is only
// abandoned when confirmer agrees; from the instructions screen no
// confirmation is needed. It reports whether the session was left.
func (c *Controller) Exit(confirmer Confirmer) (bool, error) {
	c.mu.Lock()
	phase := c.phase
	c.mu.Unlock()

	switch phase {
	case PhaseInstructions:
	case PhaseActive:
		if confirmer == nil || !confirmer.Confirm(ExitPrompt) {
			return false, nil
		}
	default:
		return false, fmt.Errorf("exit: %w", ErrInvalidPhase)
	}

	var fx effects
	c.mu.Lock()
	if c.phase != phase {
		// A tick submitted the session while the learner was deciding.
		c.mu.Unlock()
		return false, fmt.Errorf("exit: %w", ErrInvalidPhase)
	}
	if phase == PhaseActive {
		c.releaseLocked(&fx)
	}
	c.phase = PhaseExited
	c.log.Info().Str("test_id", c.testID).Msg("Learner exited session")
	if nav := c.deps.Navigator; nav != nil {
		fx.add(nav.NavigateToDashboard)
	}
	c.notifyLocked(&fx)
	c.flushLocked(fx)
	return true, nil
}

// Phase returns the current lifecycle phase.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Submission returns the final snapshot once the session is submitted.
func (c *Controller) Submission() *model.Submission {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.submission
}

// mutate runs fn on the state of an active session.
func (c *Controller) mutate(op string, fn func(fx *effects) error) error {
	var fx effects
	c.mu.Lock()
	if c.phase != PhaseActive {
		c.mu.Unlock()
		return fmt.Errorf("%s: %w", op, ErrInvalidPhase)
	}
	if err := fn(&fx); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("%s: %w", op, err)
	}
	c.notifyLocked(&fx)
	c.flushLocked(fx)
	return nil
}

func (c *Controller) advanceSectionLocked(fx *effects) {
	if c.state.enterNextSection() {
		c.timers.ArmSection(c.state.CurrentSection())
		c.log.Debug().
			Int("section_index", c.state.SectionIndex()).
			Int("section_seconds", c.timers.SectionRemaining()).
			Msg("Entered next section")
		return
	}
	c.submitLocked(model.SubmitReasonEndOfContent, fx)
}

func (c *Controller) submitLocked(reason model.SubmitReason, fx *effects) {
	if c.phase != PhaseActive {
		return
	}
	c.releaseLocked(fx)
	c.phase = PhaseSubmitted

	sub := &model.Submission{
		ID:               uuid.New(),
		TestID:           c.testID,
		LearnerID:        c.deps.LearnerID,
		Answers:          c.state.Answers(),
		Flagged:          c.state.Flagged(),
		ViolationCount:   c.monitor.Count(),
		TimeTakenSeconds: c.elapsed,
		Reason:           reason,
		SubmittedAt:      c.deps.Now(),
	}
	c.submission = sub

	c.log.Info().
		Str("test_id", c.testID).
		Str("reason", string(reason)).
		Int("answered", len(sub.Answers)).
		Int("violations", sub.ViolationCount).
		Int("time_taken", sub.TimeTakenSeconds).
		Msg("Session submitted")

	sink, nav := c.deps.Sink, c.deps.Navigator
	fx.add(func() {
		if sink != nil {
			ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
			defer cancel()
			if err := sink.Submit(ctx, sub); err != nil {
				c.log.Error().Err(err).Str("submission_id", sub.ID.String()).Msg("Submission sink failed")
			}
		}
		if nav != nil {
			nav.NavigateToDashboard()
		}
	})
}

// releaseLocked cancels the tick schedule, the monitor subscriptions and the
// alarm, and leaves fullscreen.
func (c *Controller) releaseLocked(fx *effects) {
	if c.cancelTick != nil {
		c.cancelTick()
		c.cancelTick = nil
	}
	c.tickGen++
	c.timers.Stop()
	c.monitor.detach()

	if fs := c.deps.Fullscreen; fs != nil {
		fx.add(func() {
			if err := fs.ExitFullscreen(); err != nil {
				c.log.Debug().Err(err).Msg("Fullscreen exit failed")
			}
		})
	}
}

func (c *Controller) onTick(gen uint64) {
	var fx effects
	c.mu.Lock()
	if gen != c.tickGen || c.phase != PhaseActive {
		c.mu.Unlock()
		return
	}
	c.elapsed++
	switch c.timers.Tick() {
	case ExpiryGlobal:
		c.submitLocked(model.SubmitReasonTimeExpired, &fx)
	case ExpirySection:
		c.advanceSectionLocked(&fx)
	}
	c.notifyLocked(&fx)
	c.flushLocked(fx)
}

func (c *Controller) onHidden(ev Event) Verdict {
	var fx effects
	c.mu.Lock()
	if c.phase != PhaseActive || !c.monitor.attached() {
		c.mu.Unlock()
		return VerdictNone
	}
	count := c.monitor.record(c.deps.Scheduler, c.onAlarmElapsed)
	c.log.Warn().Int("violations", count).Msg("Visibility lost during active session")

	if obs := c.deps.Observer; obs != nil {
		v := model.Violation{
			TestID:     c.testID,
			LearnerID:  c.deps.LearnerID,
			Kind:       model.ViolationTabSwitch,
			Count:      count,
			TickOffset: c.elapsed,
			RecordedAt: ev.At,
		}
		if v.RecordedAt.IsZero() {
			v.RecordedAt = c.deps.Now()
		}
		fx.add(func() { obs.ViolationRecorded(v) })
	}
	c.notifyLocked(&fx)
	c.flushLocked(fx)
	return VerdictNone
}

func (c *Controller) onUnload(Event) Verdict {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhaseActive {
		return VerdictNone
	}
	return VerdictConfirmLeave
}

func (c *Controller) onAlarmElapsed(gen uint64) {
	var fx effects
	c.mu.Lock()
	if c.monitor.clearAlarm(gen) {
		c.notifyLocked(&fx)
	}
	c.flushLocked(fx)
}

func (c *Controller) notifyLocked(fx *effects) {
	if c.deps.OnChange == nil {
		return
	}
	v := c.viewLocked()
	onChange := c.deps.OnChange
	fx.add(func() { onChange(v) })
}
