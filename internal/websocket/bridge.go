package websocket

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/session"
)

// Bridge adapts one learner connection to the session ports: fullscreen
// commands and navigation go out as events, visibility and unload reports
// come in through Dispatch.
type Bridge struct {
	conn Conn
	log  zerolog.Logger

	writeMu sync.Mutex

	mu        sync.Mutex
	listeners map[session.EventKind]map[uint64]session.Listener
	nextID    uint64
	alarm     bool
}

// NewBridge creates a Bridge writing to conn.
func NewBridge(conn Conn, log zerolog.Logger) *Bridge {
	return &Bridge{
		conn:      conn,
		log:       log,
		listeners: make(map[session.EventKind]map[uint64]session.Listener),
	}
}

// Send writes v to the connection. Writes are serialised; failures mean the
// peer is gone and are only logged.
func (b *Bridge) Send(v interface{}) {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	if err := WriteTyped(b.conn, v); err != nil {
		b.log.Debug().Err(err).Msg("WebSocket write failed")
	}
}

// SendError writes a typed error event.
func (b *Bridge) SendError(code, msg string) {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	if err := WriteError(b.conn, code, msg); err != nil {
		b.log.Debug().Err(err).Str("code", code).Msg("WebSocket error write failed")
	}
}

// RequestFullscreen implements session.Fullscreen.
func (b *Bridge) RequestFullscreen() error {
	b.Send(FullscreenResponse{Event: EventFullscreen, Enter: true})
	return nil
}

// ExitFullscreen implements session.Fullscreen.
func (b *Bridge) ExitFullscreen() error {
	b.Send(FullscreenResponse{Event: EventFullscreen, Enter: false})
	return nil
}

// NavigateToDashboard implements session.Navigator.
func (b *Bridge) NavigateToDashboard() {
	b.Send(NavigateResponse{Event: EventNavigate, To: DashboardPath})
}

// PushState sends a state snapshot, preceded by an alarm event whenever the
// alarm flag changes.
func (b *Bridge) PushState(v session.View) {
	b.mu.Lock()
	changed := v.Alarm != b.alarm
	b.alarm = v.Alarm
	b.mu.Unlock()

	if changed {
		b.Send(AlarmResponse{Event: EventAlarm, Active: v.Alarm, Violations: v.Violations})
	}
	b.Send(StateResponse{Event: EventState, State: v})
}

// Subscribe implements session.EventSource.
func (b *Bridge) Subscribe(kind session.EventKind, l session.Listener) session.Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	if b.listeners[kind] == nil {
		b.listeners[kind] = make(map[uint64]session.Listener)
	}
	b.listeners[kind][id] = l
	return &subscription{bridge: b, kind: kind, id: id}
}

// Dispatch delivers a platform event to the current listeners and returns
// their verdicts. A confirm-leave verdict is forwarded to the client.
func (b *Bridge) Dispatch(kind session.EventKind, at time.Time) []session.Verdict {
	b.mu.Lock()
	ls := make([]session.Listener, 0, len(b.listeners[kind]))
	for _, l := range b.listeners[kind] {
		ls = append(ls, l)
	}
	b.mu.Unlock()

	verdicts := make([]session.Verdict, 0, len(ls))
	confirm := false
	for _, l := range ls {
		v := l(session.Event{Kind: kind, At: at})
		confirm = confirm || v == session.VerdictConfirmLeave
		verdicts = append(verdicts, v)
	}
	if confirm {
		b.Send(ConfirmResponse{Event: EventConfirmLeave})
	}
	return verdicts
}

// Listeners returns how many listeners are subscribed to kind.
func (b *Bridge) Listeners(kind session.EventKind) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners[kind])
}

type subscription struct {
	bridge *Bridge
	kind   session.EventKind
	id     uint64
	once   sync.Once
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		s.bridge.mu.Lock()
		delete(s.bridge.listeners[s.kind], s.id)
		s.bridge.mu.Unlock()
	})
}

// ConfirmAnswer is the learner's reply to the exit prompt, sent along with
// the exit action. It remembers the prompt it was asked.
type ConfirmAnswer struct {
	Confirmed bool
	Prompt    string
}

// Confirm implements session.Confirmer.
func (a *ConfirmAnswer) Confirm(prompt string) bool {
	a.Prompt = prompt
	return a.Confirmed
}
