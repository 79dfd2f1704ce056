// Package session holds the authoritative in-memory model of live sessions
// on the process that owns their timers. All mutations of one session are
// serialized behind its lock (single-writer discipline); other processes only
// observe relayed events.
package session

import (
	"sync"
	"time"

	"github.com/luuphuc6297/elsa-coding-challenges-sub000/internal/domain"
	"github.com/luuphuc6297/elsa-coding-challenges-sub000/internal/errors"
)

// Phase is the protocol-level state of a session.
type Phase string

const (
	PhaseLobby          Phase = "lobby"
	PhaseQuestionLive   Phase = "question_live"
	PhaseQuestionClosed Phase = "question_closed"
	PhaseCompleted      Phase = "completed"
)

// liveQuestion is the ephemeral snapshot held only while a question accepts
// answers.
type liveQuestion struct {
	question  domain.Question
	index     int
	startTime time.Time
	deadline  time.Time
	answered  map[string]bool
	// advancing is the one-shot guard: only one of "all answered" and
	// "timeout" may close a given question.
	advancing bool
}

type state struct {
	mu           sync.Mutex
	session      domain.Session
	phase        Phase
	participants map[string]*domain.Participant
	joinOrder    []string
	live         *liveQuestion
}

// Manager maps session ids to mutable session records.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*state
}

func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*state),
	}
}

func (m *Manager) get(sessionID string) (*state, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("session not found: %s", sessionID))
	}
	return s, nil
}

// CreateSession registers a new session record in the waiting state.
func (m *Manager) CreateSession(ss domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[ss.SessionID]; ok {
		return errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("session already exists: %s", ss.SessionID))
	}

	ss.Status = domain.SessionWaiting
	m.sessions[ss.SessionID] = &state{
		session:      ss,
		phase:        PhaseLobby,
		participants: make(map[string]*domain.Participant),
	}
	return nil
}

// Exists reports whether the session is tracked by this process.
func (m *Manager) Exists(sessionID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.sessions[sessionID]
	return ok
}

// AddParticipant creates the participant on first join or marks an existing
// one back online. It returns the participant and whether it was new.
func (m *Manager) AddParticipant(sessionID, userID, username string, now time.Time) (domain.Participant, bool, error) {
	s, err := m.get(sessionID)
	if err != nil {
		return domain.Participant{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session.Status == domain.SessionCompleted {
		return domain.Participant{}, false, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("session is completed: %s", sessionID))
	}

	if p, ok := s.participants[userID]; ok {
		p.Status = domain.ParticipantOnline
		p.LastActive = now
		return *p, false, nil
	}

	p := &domain.Participant{
		UserID:     userID,
		Username:   username,
		Status:     domain.ParticipantOnline,
		LastActive: now,
	}
	s.participants[userID] = p
	s.joinOrder = append(s.joinOrder, userID)
	return *p, true, nil
}

// SetReady flags the participant ready and reports whether every participant
// in the lobby is now ready.
func (m *Manager) SetReady(sessionID, userID string, now time.Time) (allReady bool, err error) {
	s, err := m.get(sessionID)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseLobby {
		return false, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("session is not in lobby: %s", sessionID))
	}

	p, ok := s.participants[userID]
	if !ok {
		return false, participantNotFound(sessionID, userID)
	}

	p.Ready = true
	p.ReadyAt = now
	p.LastActive = now

	for _, other := range s.participants {
		if other.Status != domain.ParticipantOffline && !other.Ready {
			return false, nil
		}
	}
	return true, nil
}

// Activate moves the session from waiting to active. Transitions are
// strictly ordered; any other starting status is rejected.
func (m *Manager) Activate(sessionID string, now time.Time) (domain.Session, error) {
	s, err := m.get(sessionID)
	if err != nil {
		return domain.Session{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session.Status != domain.SessionWaiting {
		return domain.Session{}, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("session cannot start from status %q: %s", s.session.Status, sessionID))
	}

	s.session.Status = domain.SessionActive
	s.session.StartTime = now
	s.session.CurrentQuestion = -1

	for _, p := range s.participants {
		if p.Status == domain.ParticipantOnline {
			p.Status = domain.ParticipantTaking
		}
	}
	return s.session, nil
}

// StartQuestion makes q the live question at the given index. The index only
// moves forward.
func (m *Manager) StartQuestion(sessionID string, q domain.Question, index int, now time.Time) (deadline time.Time, err error) {
	s, err := m.get(sessionID)
	if err != nil {
		return time.Time{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session.Status != domain.SessionActive {
		return time.Time{}, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("session is not active: %s", sessionID))
	}
	if s.live != nil {
		return time.Time{}, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("a question is already live: session=%s", sessionID))
	}
	if index <= s.session.CurrentQuestion {
		return time.Time{}, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("question index must move forward: session=%s index=%d current=%d",
				sessionID, index, s.session.CurrentQuestion))
	}

	deadline = now.Add(q.TimeLimit)
	s.session.CurrentQuestion = index
	s.phase = PhaseQuestionLive
	s.live = &liveQuestion{
		question:  q,
		index:     index,
		startTime: now,
		deadline:  deadline,
		answered:  make(map[string]bool),
	}
	return deadline, nil
}

// SubmitResult is the outcome of a scored submission.
type SubmitResult struct {
	QuestionID  string
	Correct     bool
	Points      int64
	TotalScore  int64
	Participant domain.Participant
	// AllAnswered is true when every eligible participant has now answered.
	AllAnswered bool
}

// SubmitAnswer records and scores one answer for the live question. Answers
// are scored once: a second submission for the same question is rejected, as
// are submissions outside a live question, for a question that is not the
// live one, or after the advance guard fired.
func (m *Manager) SubmitAnswer(sessionID, userID, questionID, answer string, timeSpent time.Duration, now time.Time, points func(timeSpent, timeLimit time.Duration, basePoints int64) int64) (SubmitResult, error) {
	s, err := m.get(sessionID)
	if err != nil {
		return SubmitResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session.Status != domain.SessionActive {
		return SubmitResult{}, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("session is not active: %s", sessionID))
	}
	if s.live == nil || s.live.advancing {
		return SubmitResult{}, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("no live question: session=%s", sessionID))
	}

	if s.live.question.QuestionID != questionID {
		return SubmitResult{}, errors.New(errors.CodeNotFound,
			errors.WithMessagef("question is not live: session=%s question=%s", sessionID, questionID))
	}

	p, ok := s.participants[userID]
	if !ok {
		return SubmitResult{}, participantNotFound(sessionID, userID)
	}

	if s.live.answered[userID] {
		return SubmitResult{}, errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("answer already submitted: session=%s user=%s question=%s",
				sessionID, userID, s.live.question.QuestionID))
	}

	q := s.live.question
	correct := answer == q.CorrectAnswer

	var awarded int64
	if correct {
		awarded = points(timeSpent, q.TimeLimit, q.Points)
	}

	s.live.answered[userID] = true

	p.Score += awarded
	if correct {
		p.CorrectCount++
	}
	p.TimeSpentMs += timeSpent.Milliseconds()
	p.LastActive = now
	p.Answers = append(p.Answers, domain.Answer{
		QuestionID:  q.QuestionID,
		Answer:      answer,
		Correct:     correct,
		Points:      awarded,
		TimeSpentMs: timeSpent.Milliseconds(),
		SubmitTime:  now,
	})

	return SubmitResult{
		QuestionID:  q.QuestionID,
		Correct:     correct,
		Points:      awarded,
		TotalScore:  p.Score,
		Participant: *p,
		AllAnswered: s.allAnsweredLocked(),
	}, nil
}

// AllAnswered reports whether every participant still taking the quiz has
// answered the live question. Disconnected participants do not block
// advancement.
func (m *Manager) AllAnswered(sessionID string) bool {
	s, err := m.get(sessionID)
	if err != nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.live == nil {
		return false
	}
	return s.allAnsweredLocked()
}

func (s *state) allAnsweredLocked() bool {
	eligible := 0
	for _, p := range s.participants {
		if p.Status != domain.ParticipantTaking {
			continue
		}
		eligible++
		if !s.live.answered[p.UserID] {
			return false
		}
	}
	return eligible > 0
}

// LiveQuestionID returns the id of the live question, if any.
func (m *Manager) LiveQuestionID(sessionID string) (string, bool) {
	s, err := m.get(sessionID)
	if err != nil {
		return "", false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.live == nil || s.live.advancing {
		return "", false
	}
	return s.live.question.QuestionID, true
}

// BeginAdvance fires the one-shot advance guard for the live question. It
// returns true exactly once per question: whichever of "all answered" and
// "timeout" calls first wins, the loser is a no-op.
func (m *Manager) BeginAdvance(sessionID, questionID string) bool {
	s, err := m.get(sessionID)
	if err != nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.live == nil || s.live.advancing || s.live.question.QuestionID != questionID {
		return false
	}
	s.live.advancing = true
	return true
}

// ClosedQuestion is the server-side view of a question that just closed.
type ClosedQuestion struct {
	Question  domain.Question
	Index     int
	StartTime time.Time
}

// CloseQuestion clears the live question and returns its snapshot, including
// the correct answer that may now be revealed.
func (m *Manager) CloseQuestion(sessionID string) (ClosedQuestion, error) {
	s, err := m.get(sessionID)
	if err != nil {
		return ClosedQuestion{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.live == nil {
		return ClosedQuestion{}, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("no live question: session=%s", sessionID))
	}

	closed := ClosedQuestion{
		Question:  s.live.question,
		Index:     s.live.index,
		StartTime: s.live.startTime,
	}
	s.live = nil
	s.phase = PhaseQuestionClosed
	return closed, nil
}

// SetStatus reports the participant's connection status transition on
// connect/disconnect. Participants are never removed, only marked offline.
func (m *Manager) SetStatus(sessionID, userID string, status domain.ParticipantStatus, now time.Time) (domain.Participant, error) {
	s, err := m.get(sessionID)
	if err != nil {
		return domain.Participant{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.participants[userID]
	if !ok {
		return domain.Participant{}, participantNotFound(sessionID, userID)
	}

	p.Status = status
	p.LastActive = now
	return *p, nil
}

// Complete ends the session. Only active sessions complete; the transition
// order waiting -> active -> completed admits no skips.
func (m *Manager) Complete(sessionID string, now time.Time) (domain.Session, error) {
	s, err := m.get(sessionID)
	if err != nil {
		return domain.Session{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session.Status != domain.SessionActive {
		return domain.Session{}, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("session cannot complete from status %q: %s", s.session.Status, sessionID))
	}

	end := now
	s.session.Status = domain.SessionCompleted
	s.session.EndTime = &end
	s.phase = PhaseCompleted
	s.live = nil
	return s.session, nil
}

// Remove drops a completed session from memory. The durable records remain
// the archived source of truth.
func (m *Manager) Remove(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
}

// Snapshot is a read-only copy of session state used to resynchronize a
// reconnecting client.
type Snapshot struct {
	Session      domain.Session
	Phase        Phase
	Participants []domain.Participant
	// Live question view, nil when no question is live. CorrectAnswer is
	// stripped: it is never sent to clients while the question is open.
	Live *LiveQuestionView
}

type LiveQuestionView struct {
	Question  domain.Question
	Index     int
	StartTime time.Time
	Deadline  time.Time
	Answered  bool
}

// Snapshot returns a consistent copy of the session for the given user.
func (m *Manager) Snapshot(sessionID, userID string) (Snapshot, error) {
	s, err := m.get(sessionID)
	if err != nil {
		return Snapshot{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Session: s.session,
		Phase:   s.phase,
	}

	for _, id := range s.joinOrder {
		snap.Participants = append(snap.Participants, *s.participants[id])
	}

	if s.live != nil && !s.live.advancing {
		q := s.live.question
		q.CorrectAnswer = ""
		snap.Live = &LiveQuestionView{
			Question:  q,
			Index:     s.live.index,
			StartTime: s.live.startTime,
			Deadline:  s.live.deadline,
			Answered:  s.live.answered[userID],
		}
	}

	return snap, nil
}

// Host returns the session host: the first participant to join.
func (m *Manager) Host(sessionID string) (string, error) {
	s, err := m.get(sessionID)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.HostID, nil
}

// CurrentQuestionIndex returns the index of the most recently started
// question, -1 before the first one.
func (m *Manager) CurrentQuestionIndex(sessionID string) (int, error) {
	s, err := m.get(sessionID)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.CurrentQuestion, nil
}

func participantNotFound(sessionID, userID string) error {
	return errors.New(errors.CodeNotFound,
		errors.WithMessagef("participant not found: session=%s user=%s", sessionID, userID))
}
