package websocket

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/session"
)

type recordingConn struct {
	mu     sync.Mutex
	writes []interface{}
}

func (c *recordingConn) SetWriteDeadline(time.Time) error { return nil }

func (c *recordingConn) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, v)
	return nil
}

func (c *recordingConn) events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, 0, len(c.writes))
	for _, w := range c.writes {
		switch r := w.(type) {
		case StateResponse:
			out = append(out, r.Event)
		case FullscreenResponse:
			out = append(out, r.Event)
		case AlarmResponse:
			out = append(out, r.Event)
		case ConfirmResponse:
			out = append(out, r.Event)
		case NavigateResponse:
			out = append(out, r.Event)
		case ErrorResponse:
			out = append(out, r.Event)
		}
	}
	return out
}

func (c *recordingConn) last() interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writes[len(c.writes)-1]
}

func TestBridge_SubscribeDispatchUnsubscribe(t *testing.T) {
	conn := &recordingConn{}
	b := NewBridge(conn, zerolog.Nop())

	calls := 0
	sub := b.Subscribe(session.EventVisibilityHidden, func(session.Event) session.Verdict {
		calls++
		return session.VerdictNone
	})
	assert.Equal(t, 1, b.Listeners(session.EventVisibilityHidden))

	b.Dispatch(session.EventVisibilityHidden, time.Now())
	assert.Equal(t, 1, calls)

	sub.Unsubscribe()
	sub.Unsubscribe()
	assert.Equal(t, 0, b.Listeners(session.EventVisibilityHidden))

	b.Dispatch(session.EventVisibilityHidden, time.Now())
	assert.Equal(t, 1, calls)
	assert.Empty(t, conn.events())
}

func TestBridge_ConfirmLeaveVerdictIsForwarded(t *testing.T) {
	conn := &recordingConn{}
	b := NewBridge(conn, zerolog.Nop())
	b.Subscribe(session.EventBeforeUnload, func(session.Event) session.Verdict {
		return session.VerdictConfirmLeave
	})

	verdicts := b.Dispatch(session.EventBeforeUnload, time.Now())

	assert.Equal(t, []session.Verdict{session.VerdictConfirmLeave}, verdicts)
	assert.Equal(t, []Event{EventConfirmLeave}, conn.events())
}

func TestBridge_AlarmEventOnlyOnTransitions(t *testing.T) {
	conn := &recordingConn{}
	b := NewBridge(conn, zerolog.Nop())

	b.PushState(session.View{Phase: session.PhaseActive})
	b.PushState(session.View{Phase: session.PhaseActive, Alarm: true, Violations: 1})
	b.PushState(session.View{Phase: session.PhaseActive, Alarm: true, Violations: 2})
	b.PushState(session.View{Phase: session.PhaseActive, Violations: 2})

	assert.Equal(t, []Event{
		EventState,
		EventAlarm, EventState,
		EventState,
		EventAlarm, EventState,
	}, conn.events())
}

func TestBridge_NavigateSendsDashboardPath(t *testing.T) {
	conn := &recordingConn{}
	b := NewBridge(conn, zerolog.Nop())

	b.NavigateToDashboard()

	assert.Equal(t, NavigateResponse{Event: EventNavigate, To: DashboardPath}, conn.last())
}

func TestConfirmAnswer_RecordsPrompt(t *testing.T) {
	a := &ConfirmAnswer{Confirmed: false}
	assert.False(t, a.Confirm("leave?"))
	assert.Equal(t, "leave?", a.Prompt)
}

type idleScheduler struct{}

func (idleScheduler) Every(time.Duration, func()) session.Cancel { return func() {} }
func (idleScheduler) After(time.Duration, func()) session.Cancel { return func() {} }

type staticContent struct{ def *model.TestDefinition }

func (s staticContent) Load(context.Context, string) (*model.TestDefinition, error) {
	return s.def, nil
}

type nopSink struct{ got chan *model.Submission }

func (s nopSink) Submit(_ context.Context, sub *model.Submission) error {
	s.got <- sub
	return nil
}

func TestBridge_DrivesController(t *testing.T) {
	limit := 10
	def := &model.TestDefinition{
		ID:                     "bio-1",
		Title:                  "Biology",
		GlobalTimeLimitMinutes: &limit,
		Sections: []model.Section{{
			ID:    "cells",
			Title: "Cells",
			Questions: []model.Question{
				{ID: "q1", Text: "Powerhouse?", Options: []string{"Mitochondria", "Nucleus"}, SectionID: "cells"},
			},
		}},
	}

	conn := &recordingConn{}
	b := NewBridge(conn, zerolog.Nop())
	sink := nopSink{got: make(chan *model.Submission, 1)}
	ctrl := session.NewController(session.Deps{
		Content:    staticContent{def: def},
		Fullscreen: b,
		Events:     b,
		Sink:       sink,
		Navigator:  b,
		Scheduler:  idleScheduler{},
		OnChange:   b.PushState,
		LearnerID:  11,
	}, zerolog.Nop())

	require.NoError(t, ctrl.Load(context.Background(), "bio-1"))
	require.NoError(t, ctrl.Begin())
	assert.Equal(t, 1, b.Listeners(session.EventVisibilityHidden))
	assert.Equal(t, 1, b.Listeners(session.EventBeforeUnload))

	b.Dispatch(session.EventVisibilityHidden, time.Now())
	assert.Equal(t, 1, ctrl.View().Violations)

	require.NoError(t, ctrl.RecordAnswer("q1", "Mitochondria"))
	require.NoError(t, ctrl.Submit())

	sub := <-sink.got
	assert.Equal(t, "Mitochondria", sub.Answers["q1"])
	assert.Equal(t, 1, sub.ViolationCount)
	assert.Equal(t, 0, b.Listeners(session.EventVisibilityHidden))
	assert.Equal(t, 0, b.Listeners(session.EventBeforeUnload))

	events := conn.events()
	require.GreaterOrEqual(t, len(events), 4)
	// Leaving the session exits fullscreen, navigates, then clears the alarm.
	assert.Equal(t, []Event{EventFullscreen, EventNavigate, EventAlarm, EventState}, events[len(events)-4:])
}

func TestBridge_SendErrorWritesTypedEvent(t *testing.T) {
	conn := &recordingConn{}
	b := NewBridge(conn, zerolog.Nop())

	b.SendError("INVALID_PHASE", "not now")

	assert.Equal(t, ErrorResponse{Event: EventError, Code: "INVALID_PHASE", Error: "not now"}, conn.last())
}
