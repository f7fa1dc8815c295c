package session

import (
	"context"
	"time"

	"github.com/stemsi/exstem-session/internal/model"
)

// ContentProvider supplies test definitions.
type ContentProvider interface {
	Load(ctx context.Context, testID string) (*model.TestDefinition, error)
}

// Fullscreen asks the presentation layer to enter or leave fullscreen.
// Both calls are best effort.
type Fullscreen interface {
	RequestFullscreen() error
	ExitFullscreen() error
}

// EventKind identifies a platform signal the monitor can subscribe to.
type EventKind string

const (
	EventVisibilityHidden EventKind = "visibility_hidden"
	EventBeforeUnload     EventKind = "before_unload"
)

// Event is a single platform signal.
type Event struct {
	Kind EventKind
	At   time.Time
}

// Verdict is a listener's answer to a platform signal.
type Verdict int

const (
	VerdictNone Verdict = iota
	// VerdictConfirmLeave asks the platform to show its native leave confirmation.
	VerdictConfirmLeave
)

// Listener handles one platform signal.
type Listener func(Event) Verdict

// Subscription is released exactly once by the monitor.
type Subscription interface {
	Unsubscribe()
}

// EventSource is the platform's visibility/unload event stream.
type EventSource interface {
	Subscribe(kind EventKind, l Listener) Subscription
}

// SubmissionSink receives the final snapshot of a session.
type SubmissionSink interface {
	Submit(ctx context.Context, s *model.Submission) error
}

// Navigator moves the learner away from the test screen.
type Navigator interface {
	NavigateToDashboard()
}

// Confirmer is the yes/no gate in front of Exit.
type Confirmer interface {
	Confirm(prompt string) bool
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(prompt string) bool

// Confirm implements Confirmer.
func (f ConfirmFunc) Confirm(prompt string) bool { return f(prompt) }

// ViolationObserver is told about every violation recorded by the monitor.
type ViolationObserver interface {
	ViolationRecorded(v model.Violation)
}

// Cancel stops a scheduled task. Calling it more than once is safe.
type Cancel func()

// Scheduler runs callbacks on a timer. Callbacks may run on any goroutine.
type Scheduler interface {
	Every(interval time.Duration, fn func()) Cancel
	After(delay time.Duration, fn func()) Cancel
}
