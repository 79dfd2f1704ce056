// Package ws is the WebSocket front door: it authenticates connections,
// decodes client actions into orchestrator calls, and streams relayed
// session events back out.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/luuphuc6297/elsa-coding-challenges-sub000/internal/domain"
	"github.com/luuphuc6297/elsa-coding-challenges-sub000/internal/errors"
	"github.com/luuphuc6297/elsa-coding-challenges-sub000/internal/fanout"
	"github.com/luuphuc6297/elsa-coding-challenges-sub000/internal/orchestrator"
)

// Authenticator validates the bearer credential presented at connect time.
type Authenticator interface {
	Verify(token string) (domain.User, error)
}

type Config struct {
	Orchestrator *orchestrator.Orchestrator
	Hub          *Hub
	Auth         Authenticator
}

type Handler struct {
	orc      *orchestrator.Orchestrator
	hub      *Hub
	auth     Authenticator
	upgrader websocket.Upgrader
}

func NewHandler(c Config) *Handler {
	return &Handler{
		orc:  c.Orchestrator,
		hub:  c.Hub,
		auth: c.Auth,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Serve upgrades the request and runs the connection until it drops. A
// rejected credential still upgrades, so the client receives an explicit
// error event before the immediate disconnect.
func (h *Handler) Serve(c *gin.Context) {
	sock, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Warn("ws: upgrade failed", "error", err)
		return
	}

	user, err := h.auth.Verify(bearerToken(c))
	if err != nil {
		rejectConn(sock, err)
		return
	}

	conn := newConn(sock, user, h)
	go conn.writePump()
	conn.readPump(c.Request.Context())
}

func bearerToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		return header
	}
	// Browser WebSocket clients cannot set headers; accept a query token.
	return c.Query("token")
}

func rejectConn(sock *websocket.Conn, err error) {
	e := errors.Convert(err)
	payload, _ := json.Marshal(ErrorPayload{Code: e.CodeString(), Message: e.Message})
	env, _ := json.Marshal(fanout.Envelope{Event: EventError, Data: payload})

	sock.SetWriteDeadline(time.Now().Add(writeTimeout))
	sock.WriteMessage(websocket.TextMessage, env)
	sock.Close()
}

func (h *Handler) dispatch(ctx context.Context, c *Conn, msg ClientMessage) Response {
	switch msg.Action {
	case ActionJoin:
		var p JoinPayload
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			return malformed(msg.Action)
		}

		snap, err := h.orc.Join(ctx, orchestrator.JoinRequest{
			SessionID: p.SessionID,
			QuizID:    p.QuizID,
			UserID:    c.user.UserID,
			Username:  c.user.Username,
			Settings:  p.Settings,
		})
		if err != nil {
			return fail(msg.Action, err)
		}
		if err := h.hub.join(ctx, c, p.SessionID); err != nil {
			return fail(msg.Action, err)
		}
		return ok(msg.Action, snap)

	case ActionReady:
		ref, resp := sessionRef(msg)
		if resp != nil {
			return *resp
		}
		if err := h.orc.Ready(ctx, ref.SessionID, c.user.UserID); err != nil {
			return fail(msg.Action, err)
		}
		return ok(msg.Action, nil)

	case ActionStart:
		ref, resp := sessionRef(msg)
		if resp != nil {
			return *resp
		}
		if err := h.orc.StartSession(ctx, ref.SessionID, c.user.UserID); err != nil {
			return fail(msg.Action, err)
		}
		return ok(msg.Action, nil)

	case ActionSubmit:
		var p SubmitPayload
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			return malformed(msg.Action)
		}

		res, err := h.orc.SubmitAnswer(ctx, orchestrator.SubmitAnswerRequest{
			SessionID:  p.SessionID,
			UserID:     c.user.UserID,
			QuestionID: p.QuestionID,
			Answer:     p.Answer,
			TimeSpent:  time.Duration(p.TimeSpentMs) * time.Millisecond,
		})
		if err != nil {
			return fail(msg.Action, err)
		}
		return ok(msg.Action, res)

	case ActionReconnect:
		ref, resp := sessionRef(msg)
		if resp != nil {
			return *resp
		}

		snap, err := h.orc.Resync(ctx, ref.SessionID, c.user.UserID)
		if err != nil {
			return fail(msg.Action, err)
		}
		if err := h.hub.join(ctx, c, ref.SessionID); err != nil {
			return fail(msg.Action, err)
		}
		return ok(msg.Action, snap)

	case ActionAdvance:
		ref, resp := sessionRef(msg)
		if resp != nil {
			return *resp
		}
		if err := h.orc.Advance(ctx, ref.SessionID, c.user.UserID); err != nil {
			return fail(msg.Action, err)
		}
		return ok(msg.Action, nil)

	case ActionEnd:
		ref, resp := sessionRef(msg)
		if resp != nil {
			return *resp
		}
		if err := h.orc.EndSession(ctx, ref.SessionID, c.user.UserID); err != nil {
			return fail(msg.Action, err)
		}
		return ok(msg.Action, nil)

	default:
		return fail(msg.Action, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("unknown action: %s", msg.Action)))
	}
}

func sessionRef(msg ClientMessage) (SessionRef, *Response) {
	var ref SessionRef
	if err := json.Unmarshal(msg.Data, &ref); err != nil || ref.SessionID == "" {
		r := malformed(msg.Action)
		return SessionRef{}, &r
	}
	return ref, nil
}

func malformed(action string) Response {
	return fail(action, errors.New(errors.CodeInvalidArgument,
		errors.WithMessagef("malformed payload")))
}
