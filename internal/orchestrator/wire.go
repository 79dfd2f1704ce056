package orchestrator

import (
	"time"

	"github.com/luuphuc6297/elsa-coding-challenges-sub000/internal/domain"
	"github.com/luuphuc6297/elsa-coding-challenges-sub000/internal/session"
)

// Wire event names, as seen by clients and mirrored between processes.
const (
	WireSessionEvent    = "sessionEvent"
	WireQuestionStarted = "questionStarted"
	WireQuestionEnded   = "questionEnded"
	WireQuestionTimeout = "questionTimeout"
	WireScoreUpdate     = "scoreUpdate"
	WireQuizCompleted   = "quizCompleted"
)

// SessionEventPayload is the generic envelope for join/leave/ready notices.
type SessionEventPayload struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

const (
	SessionEventJoined  = "participantJoined"
	SessionEventLeft    = "participantLeft"
	SessionEventReady   = "participantReady"
	SessionEventStarted = "sessionStarted"
)

// Question is the client-facing view of a question. It never carries the
// correct answer.
type Question struct {
	QuestionID   string          `json:"question_id"`
	QuestionText string          `json:"question_text"`
	Options      []domain.Option `json:"options"`
	TimeLimitMs  int64           `json:"time_limit_ms"`
	Points       int64           `json:"points"`
}

func wireQuestion(q domain.Question) Question {
	return Question{
		QuestionID:   q.QuestionID,
		QuestionText: q.QuestionText,
		Options:      q.Options,
		TimeLimitMs:  q.TimeLimit.Milliseconds(),
		Points:       q.Points,
	}
}

type ParticipantPayload struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
	Status    string `json:"status"`
}

type ReadyPayload struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	ReadyAt   time.Time `json:"ready_at"`
}

type SessionStartedPayload struct {
	SessionID      string    `json:"session_id"`
	QuizID         string    `json:"quiz_id"`
	StartTime      time.Time `json:"start_time"`
	TotalQuestions int       `json:"total_questions"`
}

type QuestionStartedPayload struct {
	SessionID string    `json:"session_id"`
	Question  Question  `json:"question"`
	Index     int       `json:"index"`
	Total     int       `json:"total"`
	StartTime time.Time `json:"start_time"`
	Deadline  time.Time `json:"deadline"`
}

type LeaderboardEntryPayload struct {
	UserID       string `json:"user_id"`
	Username     string `json:"username"`
	Score        int64  `json:"score"`
	CorrectCount int    `json:"correct_count"`
	TimeSpentMs  int64  `json:"time_spent_ms"`
}

type LeaderboardPayload struct {
	SessionID string                    `json:"session_id"`
	Entries   []LeaderboardEntryPayload `json:"entries"`
}

func wireLeaderboard(l *domain.Leaderboard) LeaderboardPayload {
	p := LeaderboardPayload{
		SessionID: l.SessionID,
		Entries:   make([]LeaderboardEntryPayload, 0, len(l.Entries)),
	}
	for _, e := range l.Entries {
		p.Entries = append(p.Entries, LeaderboardEntryPayload{
			UserID:       e.UserID,
			Username:     e.Username,
			Score:        e.Score,
			CorrectCount: e.CorrectCount,
			TimeSpentMs:  e.TimeSpentMs,
		})
	}
	return p
}

type QuestionEndedPayload struct {
	SessionID     string             `json:"session_id"`
	QuestionID    string             `json:"question_id"`
	CorrectAnswer string             `json:"correct_answer"`
	Reason        string             `json:"reason"`
	Leaderboard   LeaderboardPayload `json:"leaderboard"`
}

type ScoreUpdatePayload struct {
	SessionID   string             `json:"session_id"`
	UserID      string             `json:"user_id"`
	QuestionID  string             `json:"question_id"`
	Correct     bool               `json:"correct"`
	Points      int64              `json:"points"`
	TotalScore  int64              `json:"total_score"`
	Leaderboard LeaderboardPayload `json:"leaderboard"`
}

type QuizCompletedPayload struct {
	SessionID   string             `json:"session_id"`
	Leaderboard LeaderboardPayload `json:"leaderboard"`
}

// Snapshot is the resynchronization view returned to a reconnecting client.
type Snapshot struct {
	Session      SessionView          `json:"session"`
	Phase        string               `json:"phase"`
	Participants []ParticipantPayload `json:"participants"`
	Live         *LiveQuestionView    `json:"live,omitempty"`
}

type SessionView struct {
	SessionID       string    `json:"session_id"`
	QuizID          string    `json:"quiz_id"`
	HostID          string    `json:"host_id"`
	Status          string    `json:"status"`
	StartTime       time.Time `json:"start_time"`
	CurrentQuestion int       `json:"current_question"`
}

type LiveQuestionView struct {
	Question  Question  `json:"question"`
	Index     int       `json:"index"`
	StartTime time.Time `json:"start_time"`
	Deadline  time.Time `json:"deadline"`
	Answered  bool      `json:"answered"`
}

func wireSnapshot(snap session.Snapshot) *Snapshot {
	out := &Snapshot{
		Session: SessionView{
			SessionID:       snap.Session.SessionID,
			QuizID:          snap.Session.QuizID,
			HostID:          snap.Session.HostID,
			Status:          string(snap.Session.Status),
			StartTime:       snap.Session.StartTime,
			CurrentQuestion: snap.Session.CurrentQuestion,
		},
		Phase: string(snap.Phase),
	}

	for _, p := range snap.Participants {
		out.Participants = append(out.Participants, ParticipantPayload{
			SessionID: snap.Session.SessionID,
			UserID:    p.UserID,
			Username:  p.Username,
			Status:    string(p.Status),
		})
	}

	if snap.Live != nil {
		out.Live = &LiveQuestionView{
			Question:  wireQuestion(snap.Live.Question),
			Index:     snap.Live.Index,
			StartTime: snap.Live.StartTime,
			Deadline:  snap.Live.Deadline,
			Answered:  snap.Live.Answered,
		}
	}

	return out
}
