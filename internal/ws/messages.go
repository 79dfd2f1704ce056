package ws

import (
	"encoding/json"

	"github.com/luuphuc6297/elsa-coding-challenges-sub000/internal/domain"
	"github.com/luuphuc6297/elsa-coding-challenges-sub000/internal/errors"
)

// Client-initiated actions.
const (
	ActionJoin      = "join"
	ActionReady     = "ready"
	ActionStart     = "startSession"
	ActionSubmit    = "submitAnswer"
	ActionReconnect = "reconnectSession"
	ActionAdvance   = "advanceQuestion"
	ActionEnd       = "endSession"
)

// EventError is the server-pushed error event, used when a failure is not a
// direct reply to a client action, e.g. rejected credentials at connect.
const EventError = "error"

// ClientMessage is the client-to-server action envelope.
type ClientMessage struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data"`
}

// Response wraps every reply to a client-initiated action.
type Response struct {
	Action  string        `json:"action"`
	Success bool          `json:"success"`
	Data    any           `json:"data,omitempty"`
	Error   *ErrorPayload `json:"error,omitempty"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func ok(action string, data any) Response {
	return Response{Action: action, Success: true, Data: data}
}

func fail(action string, err error) Response {
	e := errors.Convert(err)
	return Response{
		Action:  action,
		Success: false,
		Error:   &ErrorPayload{Code: e.CodeString(), Message: e.Message},
	}
}

type JoinPayload struct {
	SessionID string                 `json:"session_id"`
	QuizID    string                 `json:"quiz_id,omitempty"`
	Settings  domain.SessionSettings `json:"settings"`
}

type SessionRef struct {
	SessionID string `json:"session_id"`
}

type SubmitPayload struct {
	SessionID   string `json:"session_id"`
	QuestionID  string `json:"question_id"`
	Answer      string `json:"answer"`
	TimeSpentMs int64  `json:"time_spent_ms"`
}
