package domain

import (
	"time"
)

// SessionStatus is the lifecycle status of a quiz session.
// Transitions are strictly ordered: waiting -> active -> completed.
type SessionStatus string

const (
	SessionWaiting   SessionStatus = "waiting"
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
)

// ParticipantStatus is the connection status of a participant within a session.
type ParticipantStatus string

const (
	ParticipantOnline  ParticipantStatus = "online"
	ParticipantTaking  ParticipantStatus = "taking"
	ParticipantOffline ParticipantStatus = "offline"
)

type SessionSettings struct {
	ShuffleQuestions bool `json:"shuffle_questions"`
	ShuffleOptions   bool `json:"shuffle_options"`
	ShowResults      bool `json:"show_results"`
}

// Session represents one live run of a quiz. At any instant it is owned
// exclusively by the server process holding its timer; other processes only
// see it through relayed events.
type Session struct {
	SessionID       string
	QuizID          string
	HostID          string
	Status          SessionStatus
	StartTime       time.Time
	EndTime         *time.Time
	CurrentQuestion int
	Settings        SessionSettings
}

// Participant is a user within a session. Participants are never deleted
// during a session, only marked offline.
type Participant struct {
	UserID       string
	Username     string
	Status       ParticipantStatus
	Score        int64
	CorrectCount int
	TimeSpentMs  int64
	Ready        bool
	ReadyAt      time.Time
	Answers      []Answer
	LastActive   time.Time
}

// Answer is a scored submission for one question.
type Answer struct {
	QuestionID  string
	Answer      string
	Correct     bool
	Points      int64
	TimeSpentMs int64
	SubmitTime  time.Time
}

type Option struct {
	OptionID   string `json:"option_id"`
	OptionText string `json:"option_text"`
}

// Question is a quiz-definition question. CorrectAnswer is held server-side
// only and never sent to clients before the question ends.
type Question struct {
	QuestionID    string
	QuestionText  string
	Options       []Option
	CorrectAnswer string
	TimeLimit     time.Duration
	Points        int64
}

type Quiz struct {
	QuizID    string
	Title     string
	Questions []Question
}

// User is the identity record looked up from the account collaborator.
type User struct {
	UserID   string
	Username string
	Email    string
}

// LeaderboardEntry is one ranked row of a session leaderboard.
type LeaderboardEntry struct {
	UserID       string
	Username     string
	Score        int64
	CorrectCount int
	TimeSpentMs  int64
	UpdateTime   time.Time
}

// Leaderboard holds the ranked entries of a session, sorted by score
// descending, ties broken by ascending time spent.
type Leaderboard struct {
	SessionID string
	Archived  bool
	Entries   []LeaderboardEntry
}
