package domain

import "time"

const (
	EventNameParticipantJoined = "session.participant_joined"
	EventNameParticipantLeft   = "session.participant_left"
	EventNameParticipantReady  = "session.participant_ready"
	EventNameSessionStarted    = "session.started"
	EventNameQuestionStarted   = "question.started"
	EventNameQuestionEnded     = "question.ended"
	EventNameScoreUpdated      = "score.updated"
	EventNameSessionCompleted  = "session.completed"
)

// CloseReason records which of the two racing paths closed a live question.
type CloseReason string

const (
	CloseAllAnswered CloseReason = "all_answered"
	CloseTimeout     CloseReason = "timeout"
	CloseForced      CloseReason = "forced"
)

type EventParticipantJoined struct {
	SessionID   string
	Participant Participant
}

func (EventParticipantJoined) Name() string { return EventNameParticipantJoined }

type EventParticipantLeft struct {
	SessionID string
	UserID    string
	Username  string
}

func (EventParticipantLeft) Name() string { return EventNameParticipantLeft }

type EventParticipantReady struct {
	SessionID string
	UserID    string
	ReadyAt   time.Time
}

func (EventParticipantReady) Name() string { return EventNameParticipantReady }

type EventSessionStarted struct {
	Session Session
}

func (EventSessionStarted) Name() string { return EventNameSessionStarted }

type EventQuestionStarted struct {
	SessionID string
	Question  Question
	Index     int
	Total     int
	StartTime time.Time
	Deadline  time.Time
}

func (EventQuestionStarted) Name() string { return EventNameQuestionStarted }

type EventQuestionEnded struct {
	SessionID     string
	QuestionID    string
	CorrectAnswer string
	Reason        CloseReason
	Leaderboard   Leaderboard
}

func (EventQuestionEnded) Name() string { return EventNameQuestionEnded }

type EventScoreUpdated struct {
	SessionID   string
	UserID      string
	QuestionID  string
	Correct     bool
	Points      int64
	TotalScore  int64
	Leaderboard Leaderboard
}

func (EventScoreUpdated) Name() string { return EventNameScoreUpdated }

type EventSessionCompleted struct {
	Session     Session
	Leaderboard Leaderboard
}

func (EventSessionCompleted) Name() string { return EventNameSessionCompleted }
