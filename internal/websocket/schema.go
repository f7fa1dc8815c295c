package websocket

import "github.com/stemsi/exstem-session/internal/session"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionBegin       Action = "begin"
	ActionAnswer      Action = "answer"
	ActionFlag        Action = "flag"
	ActionNext        Action = "next"
	ActionPrevious    Action = "previous"
	ActionNextSection Action = "next_section"
	ActionSubmit      Action = "submit"
	ActionExit        Action = "exit"
	ActionVisibility  Action = "visibility"
	ActionUnload      Action = "unload"
	ActionState       Action = "state"
	ActionPing        Action = "ping"
)

// Request is every client message. Fields unused by an action are ignored.
type Request struct {
	Action Action `json:"action"`
	// answer, flag
	QID    string `json:"q_id,omitempty"`
	Option string `json:"option,omitempty"`
	// visibility
	Hidden bool `json:"hidden,omitempty"`
	// exit
	Confirmed bool `json:"confirmed,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventState        Event = "state"
	EventFullscreen   Event = "fullscreen"
	EventAlarm        Event = "alarm"
	EventConfirmLeave Event = "confirm_leave"
	EventConfirmExit  Event = "confirm_exit"
	EventNavigate     Event = "navigate"
	EventError        Event = "error"
	EventPong         Event = "pong"
)

// DashboardPath is where the client goes after a session ends.
const DashboardPath = "/dashboard"

type StateResponse struct {
	Event Event        `json:"event"`
	State session.View `json:"state"`
}

type FullscreenResponse struct {
	Event Event `json:"event"`
	Enter bool  `json:"enter"`
}

type AlarmResponse struct {
	Event      Event `json:"event"`
	Active     bool  `json:"active"`
	Violations int   `json:"violations"`
}

type ConfirmResponse struct {
	Event  Event  `json:"event"`
	Prompt string `json:"prompt,omitempty"`
}

type NavigateResponse struct {
	Event Event  `json:"event"`
	To    string `json:"to"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
