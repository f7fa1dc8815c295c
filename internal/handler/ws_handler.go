package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/middleware"
	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/response"
	"github.com/stemsi/exstem-session/internal/service"
	"github.com/stemsi/exstem-session/internal/session"
	ws "github.com/stemsi/exstem-session/internal/websocket"
)

const closeGrace = time.Second

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// SessionStarter is the part of service.SessionService the stream needs.
type SessionStarter interface {
	NewController(learnerID int, a service.Adapters) *session.Controller
	Claim(ctx context.Context, testID string, learnerID int) error
	Release(ctx context.Context, testID string, learnerID int) error
	Announce(ctx context.Context, typ model.MonitorEventType, testID string, learnerID int)
}

// WSHandler runs learner test sessions over WebSocket.
type WSHandler struct {
	sessions SessionStarter
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(sessions SessionStarter, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		sessions: sessions,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// SessionStream godoc
// WS /ws/v1/tests/:test_id/session?token=
// Loads the test, then drives one session controller from client actions
// until the session is submitted, exited or the connection drops.
func (h *WSHandler) SessionStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	testID, ok := testIDParam(c)
	if !ok {
		return
	}
	learnerID := claims.UserID

	if err := h.sessions.Claim(c.Request.Context(), testID, learnerID); err != nil {
		if errors.Is(err, service.ErrSessionRunning) {
			response.Fail(c, http.StatusConflict, response.ErrSessionRunning)
			return
		}
		h.log.Error().Err(err).Int("learner_id", learnerID).Msg("Failed to claim session")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	// The request context is gone once the connection drops.
	defer func() {
		if err := h.sessions.Release(context.Background(), testID, learnerID); err != nil {
			h.log.Warn().Err(err).Int("learner_id", learnerID).Msg("Failed to release session claim")
		}
	}()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Int("learner_id", learnerID).
		Str("test_id", testID).
		Logger()

	bridge := ws.NewBridge(conn, wsLog)

	// The final state push is the last effect of a submit or exit; the
	// connection is closed only after it went out.
	finished := make(chan struct{})
	var finishOnce sync.Once
	ctrl := h.sessions.NewController(learnerID, service.Adapters{
		Fullscreen: bridge,
		Events:     bridge,
		Navigator:  bridge,
		OnChange: func(v session.View) {
			bridge.PushState(v)
			if v.Phase == session.PhaseSubmitted || v.Phase == session.PhaseExited {
				finishOnce.Do(func() { close(finished) })
			}
		},
	})

	ctx := context.Background()
	if err := ctrl.Load(c.Request.Context(), testID); err != nil {
		code := sessionErrCode(err)
		bridge.SendError(string(code), response.GetMessage(code))
		closeNormally(conn, "test unavailable")
		return
	}

	h.sessions.Announce(ctx, model.MonitorJoined, testID, learnerID)
	wsLog.Info().Msg("Learner connected")

	readDone := make(chan struct{})
	defer close(readDone)
	go func() {
		select {
		case <-finished:
			closeNormally(conn, "session ended")
		case <-readDone:
		}
	}()

	for {
		var req ws.Request
		if err := ws.ReadJSON(conn, &req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			break
		}
		h.handleAction(ctx, ctrl, bridge, wsLog, testID, learnerID, &req)
	}

	// A learner who drops out of an active session has abandoned it.
	if ctrl.Phase() == session.PhaseActive {
		left, err := ctrl.Exit(session.ConfirmFunc(func(string) bool { return true }))
		if err == nil && left {
			wsLog.Info().Msg("Active session abandoned by disconnect")
			h.sessions.Announce(ctx, model.MonitorExited, testID, learnerID)
		}
	}
}

func (h *WSHandler) handleAction(
	ctx context.Context,
	ctrl *session.Controller,
	bridge *ws.Bridge,
	wsLog zerolog.Logger,
	testID string,
	learnerID int,
	req *ws.Request,
) {
	var err error

	switch req.Action {
	case ws.ActionBegin:
		err = ctrl.Begin()
	case ws.ActionAnswer:
		if req.QID == "" || req.Option == "" {
			bridge.SendError(string(response.ErrInvalidPayload), "q_id and option are required")
			return
		}
		err = ctrl.RecordAnswer(req.QID, req.Option)
	case ws.ActionFlag:
		if req.QID == "" {
			bridge.SendError(string(response.ErrInvalidPayload), "q_id is required")
			return
		}
		_, err = ctrl.ToggleFlag(req.QID)
	case ws.ActionNext:
		err = ctrl.Next()
	case ws.ActionPrevious:
		err = ctrl.Previous()
	case ws.ActionNextSection:
		err = ctrl.NextSection()
	case ws.ActionSubmit:
		err = ctrl.Submit()
	case ws.ActionExit:
		answer := &ws.ConfirmAnswer{Confirmed: req.Confirmed}
		var left bool
		left, err = ctrl.Exit(answer)
		if err == nil && !left {
			bridge.Send(ws.ConfirmResponse{Event: ws.EventConfirmExit, Prompt: answer.Prompt})
		}
		if left {
			h.sessions.Announce(ctx, model.MonitorExited, testID, learnerID)
		}
	case ws.ActionVisibility:
		if req.Hidden {
			bridge.Dispatch(session.EventVisibilityHidden, time.Now())
		}
	case ws.ActionUnload:
		bridge.Dispatch(session.EventBeforeUnload, time.Now())
	case ws.ActionState:
		bridge.PushState(ctrl.View())
	case ws.ActionPing:
		bridge.Send(ws.PongResponse{Event: ws.EventPong})
	default:
		wsLog.Warn().Str("action", string(req.Action)).Msg("Unknown action")
		bridge.SendError(string(response.ErrInvalidPayload), "unknown action: "+string(req.Action))
		return
	}

	if err != nil {
		code := sessionErrCode(err)
		wsLog.Debug().Err(err).Str("action", string(req.Action)).Msg("Action rejected")
		bridge.SendError(string(code), response.GetMessage(code))
	}
}

// sessionErrCode maps controller errors to API error codes.
func sessionErrCode(err error) response.ErrCode {
	switch {
	case errors.Is(err, session.ErrTestNotFound):
		return response.ErrTestNotFound
	case errors.Is(err, session.ErrEmptyTest):
		return response.ErrEmptyTest
	case errors.Is(err, session.ErrInvalidPhase):
		return response.ErrInvalidPhase
	case errors.Is(err, session.ErrAtLastQuestion):
		return response.ErrAtLastQuestion
	case errors.Is(err, session.ErrUnknownQuestion), errors.Is(err, session.ErrUnknownOption):
		return response.ErrUnknownAnswer
	default:
		return response.ErrInternal
	}
}

// closeNormally asks the peer to close. The read loop ends on its reply or
// after closeGrace, whichever comes first.
func closeNormally(conn *websocket.Conn, reason string) {
	deadline := time.Now().Add(closeGrace)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
	_ = conn.SetReadDeadline(deadline)
}
