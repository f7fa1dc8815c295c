package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stretchr/testify/mock"
)

func intPtr(v int) *int { return &v }

// fakeScheduler is a manual clock. Callbacks run synchronously inside Advance.
type fakeScheduler struct {
	mu    sync.Mutex
	now   time.Duration
	seq   int
	tasks []*fakeTask
}

type fakeTask struct {
	at    time.Duration
	every time.Duration
	seq   int
	fn    func()
	done  bool
}

func (s *fakeScheduler) add(delay, every time.Duration, fn func()) Cancel {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	t := &fakeTask{at: s.now + delay, every: every, seq: s.seq, fn: fn}
	s.tasks = append(s.tasks, t)
	return func() {
		s.mu.Lock()
		t.done = true
		s.mu.Unlock()
	}
}

func (s *fakeScheduler) Every(interval time.Duration, fn func()) Cancel {
	return s.add(interval, interval, fn)
}

func (s *fakeScheduler) After(delay time.Duration, fn func()) Cancel {
	return s.add(delay, 0, fn)
}

// Advance moves the clock forward, firing due callbacks in time order.
func (s *fakeScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	target := s.now + d
	for {
		var next *fakeTask
		for _, t := range s.tasks {
			if t.done || t.at > target {
				continue
			}
			if next == nil || t.at < next.at || (t.at == next.at && t.seq < next.seq) {
				next = t
			}
		}
		if next == nil {
			break
		}
		s.now = next.at
		if next.every > 0 {
			next.at += next.every
		} else {
			next.done = true
		}
		s.mu.Unlock()
		next.fn()
		s.mu.Lock()
	}
	s.now = target
	s.mu.Unlock()
}

// Outstanding counts scheduled callbacks that may still fire.
func (s *fakeScheduler) Outstanding() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.tasks {
		if !t.done {
			n++
		}
	}
	return n
}

// spyEvents is an EventSource that counts subscribe/unsubscribe calls.
type spyEvents struct {
	mu           sync.Mutex
	subs         []*spySub
	subscribed   int
	unsubscribed int
}

type spySub struct {
	src    *spyEvents
	kind   EventKind
	l      Listener
	active bool
}

func (s *spyEvents) Subscribe(kind EventKind, l Listener) Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub := &spySub{src: s, kind: kind, l: l, active: true}
	s.subs = append(s.subs, sub)
	s.subscribed++
	return sub
}

func (sub *spySub) Unsubscribe() {
	sub.src.mu.Lock()
	defer sub.src.mu.Unlock()
	if sub.active {
		sub.active = false
		sub.src.unsubscribed++
	}
}

// Fire delivers an event to every active listener of its kind.
func (s *spyEvents) Fire(kind EventKind) []Verdict {
	s.mu.Lock()
	var ls []Listener
	for _, sub := range s.subs {
		if sub.active && sub.kind == kind {
			ls = append(ls, sub.l)
		}
	}
	s.mu.Unlock()

	out := make([]Verdict, 0, len(ls))
	for _, l := range ls {
		out = append(out, l(Event{Kind: kind}))
	}
	return out
}

func (s *spyEvents) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscribed, s.unsubscribed
}

type stubContent struct {
	def *model.TestDefinition
	err error
}

func (s stubContent) Load(ctx context.Context, testID string) (*model.TestDefinition, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.def, nil
}

type mockSink struct {
	mock.Mock
}

func (m *mockSink) Submit(ctx context.Context, s *model.Submission) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

type mockFullscreen struct {
	mock.Mock
}

func (m *mockFullscreen) RequestFullscreen() error {
	return m.Called().Error(0)
}

func (m *mockFullscreen) ExitFullscreen() error {
	return m.Called().Error(0)
}

type countingNavigator struct {
	mu    sync.Mutex
	calls int
}

func (n *countingNavigator) NavigateToDashboard() {
	n.mu.Lock()
	n.calls++
	n.mu.Unlock()
}

func (n *countingNavigator) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls
}

type recordingObserver struct {
	mu         sync.Mutex
	violations []model.Violation
}

func (o *recordingObserver) ViolationRecorded(v model.Violation) {
	o.mu.Lock()
	o.violations = append(o.violations, v)
	o.mu.Unlock()
}

func question(id, section string) model.Question {
	return model.Question{
		ID:        id,
		Text:      "Question " + id,
		Options:   []string{"a", "b", "c", "d"},
		SectionID: section,
	}
}

// mathTest mirrors a three-section exam with per-section limits.
func mathTest() *model.TestDefinition {
	return &model.TestDefinition{
		ID:                     "math-final",
		Title:                  "Mathematics Final Exam",
		Description:            "Algebra, geometry and calculus",
		Instructions:           []string{"Read each question carefully"},
		GlobalTimeLimitMinutes: intPtr(120),
		Sections: []model.Section{
			{ID: "algebra", Title: "Algebra", TimeLimitMinutes: intPtr(45), Questions: []model.Question{
				question("q1", "algebra"), question("q2", "algebra"),
			}},
			{ID: "geometry", Title: "Geometry", TimeLimitMinutes: intPtr(45), Questions: []model.Question{
				question("q3", "geometry"), question("q4", "geometry"),
			}},
			{ID: "calculus", Title: "Calculus", TimeLimitMinutes: intPtr(30), Questions: []model.Question{
				question("q5", "calculus"),
			}},
		},
	}
}

// shortTest has a timed first section and an untimed second one.
func shortTest() *model.TestDefinition {
	return &model.TestDefinition{
		ID:                     "short",
		Title:                  "Short Quiz",
		GlobalTimeLimitMinutes: intPtr(5),
		Sections: []model.Section{
			{ID: "a", Title: "Section A", TimeLimitMinutes: intPtr(1), Questions: []model.Question{question("qa", "a")}},
			{ID: "b", Title: "Section B", Questions: []model.Question{question("qb", "b")}},
		},
	}
}

type harness struct {
	ctrl     *Controller
	sched    *fakeScheduler
	events   *spyEvents
	sink     *mockSink
	screen   *mockFullscreen
	nav      *countingNavigator
	observer *recordingObserver
}

func newHarness(def *model.TestDefinition) *harness {
	h := &harness{
		sched:    &fakeScheduler{},
		events:   &spyEvents{},
		sink:     &mockSink{},
		screen:   &mockFullscreen{},
		nav:      &countingNavigator{},
		observer: &recordingObserver{},
	}
	h.sink.On("Submit", mock.Anything, mock.AnythingOfType("*model.Submission")).Return(nil)
	h.screen.On("RequestFullscreen").Return(nil)
	h.screen.On("ExitFullscreen").Return(nil)

	h.ctrl = NewController(Deps{
		Content:    stubContent{def: def},
		Fullscreen: h.screen,
		Events:     h.events,
		Sink:       h.sink,
		Navigator:  h.nav,
		Scheduler:  h.sched,
		Observer:   h.observer,
		LearnerID:  42,
	}, zerolog.Nop())
	return h
}

// start loads and begins the session.
func (h *harness) start() error {
	if err := h.ctrl.Load(context.Background(), "any"); err != nil {
		return err
	}
	return h.ctrl.Begin()
}
