package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/luuphuc6297/elsa-coding-challenges-sub000/internal/domain"
	"github.com/luuphuc6297/elsa-coding-challenges-sub000/internal/errors"
)

// Rate-limited action kinds.
const (
	ActionJoin   = "join"
	ActionAnswer = "answer"
)

const timeoutHandlerBudget = 30 * time.Second

type JoinRequest struct {
	SessionID string
	// QuizID is required only when the join creates the session.
	QuizID   string
	UserID   string
	Username string
	Settings domain.SessionSettings
}

// Join enters the lobby. The first participant to join becomes the host; a
// join for an unknown session creates it from the quiz definition.
func (o *Orchestrator) Join(ctx context.Context, req JoinRequest) (*Snapshot, error) {
	if req.SessionID == "" || req.UserID == "" {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("join requires session_id and user_id"))
	}

	if err := o.admit(ctx, ActionJoin, req.UserID); err != nil {
		return nil, err
	}

	defer o.turn(req.SessionID)()
	now := o.clock.Now()

	if !o.state.Exists(req.SessionID) {
		if err := o.adopt(ctx, req); err != nil {
			return nil, err
		}
	}

	username := req.Username
	if username == "" && o.users != nil {
		u, err := o.findUser(ctx, req.UserID)
		if err != nil {
			return nil, err
		}
		username = u.Username
	}

	p, created, err := o.state.AddParticipant(req.SessionID, req.UserID, username, now)
	if err != nil {
		return nil, err
	}

	if created {
		o.metrics.IncrementCounter("participant_joined")
		o.broadcast(ctx, req.SessionID, WireSessionEvent, SessionEventPayload{
			Type: SessionEventJoined,
			Data: ParticipantPayload{
				SessionID: req.SessionID,
				UserID:    p.UserID,
				Username:  p.Username,
				Status:    string(p.Status),
			},
		})
		o.eb.Publish(ctx, domain.EventParticipantJoined{SessionID: req.SessionID, Participant: p})
	}

	snap, err := o.state.Snapshot(req.SessionID, req.UserID)
	if err != nil {
		return nil, err
	}
	return wireSnapshot(snap), nil
}

// adopt makes this process the owner of the session: from the durable record
// when one exists, creating session and record otherwise. Ownership is
// arbitrated by the session lease, so a record whose owner is still alive is
// never touched; only the lease winner may create or resurrect a session.
func (o *Orchestrator) adopt(ctx context.Context, req JoinRequest) (err error) {
	ss, found, err := o.findSession(ctx, req.SessionID)
	if err != nil {
		return err
	}

	if !found && req.QuizID == "" {
		return errors.New(errors.CodeNotFound,
			errors.WithMessagef("session not found: %s", req.SessionID))
	}
	if found && ss.Status == domain.SessionCompleted {
		return errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("session is completed: %s", req.SessionID))
	}

	if err := o.acquireLease(ctx, req.SessionID); err != nil {
		return err
	}
	defer func() {
		if err != nil {
			o.releaseLease(req.SessionID)
		}
	}()

	switch {
	case !found:
		ss = domain.Session{
			SessionID: req.SessionID,
			QuizID:    req.QuizID,
			HostID:    req.UserID,
			Status:    domain.SessionWaiting,
			Settings:  req.Settings,
		}
		if err := o.createSession(ctx, ss); err != nil {
			return err
		}

	case ss.Status == domain.SessionActive:
		// An active record whose lease was free means the owning process
		// died mid-session. The answer window is gone with it; reopen the
		// lobby so the host can resume from the durable record.
		ss.Status = domain.SessionWaiting
		if err := o.persistStatus(ctx, ss.SessionID, domain.SessionWaiting, nil); err != nil {
			return err
		}
	}

	quiz, err := o.getQuiz(ctx, ss.QuizID)
	if err != nil {
		return err
	}
	if len(quiz.Questions) == 0 {
		return errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("quiz has no questions: %s", ss.QuizID))
	}

	if err := o.state.CreateSession(ss); err != nil {
		return err
	}

	o.quizMu.Lock()
	o.quizBySession[ss.SessionID] = quiz
	o.quizMu.Unlock()
	return nil
}

// acquireLease wins or refuses session ownership. A refusal means another
// live process owns the session; the client should retry against it.
func (o *Orchestrator) acquireLease(ctx context.Context, sessionID string) error {
	if o.leases == nil {
		return nil
	}

	won, err := o.leases.Acquire(ctx, sessionID)
	if err != nil {
		return errors.New(errors.CodeUnavailable, errors.WithCause(err))
	}
	if !won {
		return errors.New(errors.CodeUnavailable,
			errors.WithMessagef("session is owned by another process: %s", sessionID))
	}
	return nil
}

func (o *Orchestrator) releaseLease(sessionID string) {
	if o.leases != nil {
		o.leases.Release(sessionID)
	}
}

// Ready flags the participant ready. When every participant has signaled
// ready the session starts without waiting for the host.
func (o *Orchestrator) Ready(ctx context.Context, sessionID, userID string) error {
	defer o.turn(sessionID)()
	now := o.clock.Now()

	allReady, err := o.state.SetReady(sessionID, userID, now)
	if err != nil {
		return err
	}

	o.broadcast(ctx, sessionID, WireSessionEvent, SessionEventPayload{
		Type: SessionEventReady,
		Data: ReadyPayload{SessionID: sessionID, UserID: userID, ReadyAt: now},
	})
	o.eb.Publish(ctx, domain.EventParticipantReady{SessionID: sessionID, UserID: userID, ReadyAt: now})

	if allReady {
		return o.start(ctx, sessionID)
	}
	return nil
}

// StartSession force-starts the session. Only the host may do this.
func (o *Orchestrator) StartSession(ctx context.Context, sessionID, userID string) error {
	defer o.turn(sessionID)()

	if err := o.requireHost(sessionID, userID); err != nil {
		return err
	}
	return o.start(ctx, sessionID)
}

func (o *Orchestrator) start(ctx context.Context, sessionID string) error {
	now := o.clock.Now()

	ss, err := o.state.Activate(sessionID, now)
	if err != nil {
		return err
	}

	if err := o.persistStatus(ctx, sessionID, domain.SessionActive, nil); err != nil {
		slog.ErrorContext(ctx, "orchestrator: persist session start failed",
			"session", sessionID, "error", err)
	}

	quiz := o.quiz(sessionID)
	if ss.Settings.ShuffleQuestions {
		quiz.Questions = shuffled(quiz.Questions)
		o.quizMu.Lock()
		o.quizBySession[sessionID] = quiz
		o.quizMu.Unlock()
	}

	o.metrics.IncrementCounter("session_started")
	o.broadcast(ctx, sessionID, WireSessionEvent, SessionEventPayload{
		Type: SessionEventStarted,
		Data: SessionStartedPayload{
			SessionID:      sessionID,
			QuizID:         ss.QuizID,
			StartTime:      now,
			TotalQuestions: len(quiz.Questions),
		},
	})
	o.eb.Publish(ctx, domain.EventSessionStarted{Session: ss})

	return o.startQuestion(ctx, sessionID, 0)
}

func (o *Orchestrator) startQuestion(ctx context.Context, sessionID string, index int) error {
	quiz := o.quiz(sessionID)
	if index >= len(quiz.Questions) {
		return o.complete(ctx, sessionID)
	}

	q := quiz.Questions[index]

	ss, _ := o.state.Snapshot(sessionID, "")
	if ss.Session.Settings.ShuffleOptions {
		q.Options = shuffledOptions(q.Options)
	}

	now := o.clock.Now()
	deadline, err := o.state.StartQuestion(sessionID, q, index, now)
	if err != nil {
		return err
	}

	o.metrics.IncrementCounter("question_started")
	o.broadcast(ctx, sessionID, WireQuestionStarted, QuestionStartedPayload{
		SessionID: sessionID,
		Question:  wireQuestion(q),
		Index:     index,
		Total:     len(quiz.Questions),
		StartTime: now,
		Deadline:  deadline,
	})
	o.eb.Publish(ctx, domain.EventQuestionStarted{
		SessionID: sessionID,
		Question:  q,
		Index:     index,
		Total:     len(quiz.Questions),
		StartTime: now,
		Deadline:  deadline,
	})

	o.scheduleTimeout(sessionID, q.QuestionID, q.TimeLimit)
	return nil
}

// questionTimer pairs the deadline timer with a stop channel so canceling
// the deadline also releases the goroutine waiting on it.
type questionTimer struct {
	timer clockwork.Timer
	stop  chan struct{}
}

// scheduleTimeout arms the question deadline. The timer fires independently
// of answer arrivals; the one-shot advance guard resolves the race with the
// all-answered path.
func (o *Orchestrator) scheduleTimeout(sessionID, questionID string, d time.Duration) {
	qt := &questionTimer{
		timer: o.clock.NewTimer(d),
		stop:  make(chan struct{}),
	}
	o.replaceTimer(sessionID, qt)

	go func() {
		select {
		case <-qt.timer.Chan():
		case <-qt.stop:
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), timeoutHandlerBudget)
		defer cancel()

		defer o.turn(sessionID)()
		o.closeQuestion(ctx, sessionID, questionID, domain.CloseTimeout)
	}()
}

type SubmitAnswerRequest struct {
	SessionID  string
	UserID     string
	QuestionID string
	Answer     string
	TimeSpent  time.Duration
}

type AnswerResult struct {
	QuestionID string `json:"question_id"`
	Correct    bool   `json:"correct"`
	Points     int64  `json:"points"`
	TotalScore int64  `json:"total_score"`
}

// SubmitAnswer scores one answer, updates the leaderboard, and mirrors a
// scoreUpdate. When the submission was the last one outstanding it also
// closes the question.
func (o *Orchestrator) SubmitAnswer(ctx context.Context, req SubmitAnswerRequest) (*AnswerResult, error) {
	if req.SessionID == "" || req.UserID == "" || req.QuestionID == "" {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("submit requires session_id, user_id and question_id"))
	}

	if err := o.admit(ctx, ActionAnswer, req.UserID); err != nil {
		return nil, err
	}

	defer o.turn(req.SessionID)()
	started := time.Now()
	defer func() { o.metrics.TrackLatency("submit_answer", time.Since(started)) }()

	now := o.clock.Now()
	res, err := o.state.SubmitAnswer(req.SessionID, req.UserID, req.QuestionID, req.Answer, req.TimeSpent, now, o.points)
	if err != nil {
		o.metrics.TrackError("submit_answer")
		return nil, err
	}

	lb, err := o.lb.UpsertEntry(ctx, req.SessionID, domain.LeaderboardEntry{
		UserID:       res.Participant.UserID,
		Username:     res.Participant.Username,
		Score:        res.Participant.Score,
		CorrectCount: res.Participant.CorrectCount,
		TimeSpentMs:  res.Participant.TimeSpentMs,
		UpdateTime:   now,
	})
	if err != nil {
		// The answer is recorded in the authoritative state; surface the
		// storage failure without undoing the submission.
		slog.ErrorContext(ctx, "orchestrator: leaderboard update failed",
			"session", req.SessionID, "user", req.UserID, "error", err)
		return nil, errors.New(errors.CodeUnavailable, errors.WithCause(err))
	}

	o.broadcast(ctx, req.SessionID, WireScoreUpdate, ScoreUpdatePayload{
		SessionID:   req.SessionID,
		UserID:      req.UserID,
		QuestionID:  res.QuestionID,
		Correct:     res.Correct,
		Points:      res.Points,
		TotalScore:  res.TotalScore,
		Leaderboard: wireLeaderboard(lb),
	})
	o.eb.Publish(ctx, domain.EventScoreUpdated{
		SessionID:   req.SessionID,
		UserID:      req.UserID,
		QuestionID:  res.QuestionID,
		Correct:     res.Correct,
		Points:      res.Points,
		TotalScore:  res.TotalScore,
		Leaderboard: *lb,
	})

	if res.AllAnswered {
		o.closeQuestion(ctx, req.SessionID, res.QuestionID, domain.CloseAllAnswered)
	}

	return &AnswerResult{
		QuestionID: res.QuestionID,
		Correct:    res.Correct,
		Points:     res.Points,
		TotalScore: res.TotalScore,
	}, nil
}

// closeQuestion ends the live question exactly once; the caller holds the
// session's turn. Whichever of "all answered" and "timeout" arrives second
// finds the guard fired and returns without side effects.
func (o *Orchestrator) closeQuestion(ctx context.Context, sessionID, questionID string, reason domain.CloseReason) {
	if !o.state.BeginAdvance(sessionID, questionID) {
		return
	}

	o.cancelTimer(sessionID)

	closed, err := o.state.CloseQuestion(sessionID)
	if err != nil {
		slog.ErrorContext(ctx, "orchestrator: close question failed",
			"session", sessionID, "question", questionID, "error", err)
		return
	}

	lb, err := o.lb.GetEntries(ctx, sessionID)
	if err != nil {
		slog.ErrorContext(ctx, "orchestrator: read leaderboard failed",
			"session", sessionID, "error", err)
		lb = &domain.Leaderboard{SessionID: sessionID}
	}

	wireEvent := WireQuestionEnded
	if reason == domain.CloseTimeout {
		wireEvent = WireQuestionTimeout
	}

	o.metrics.IncrementCounter("question_closed")
	o.broadcast(ctx, sessionID, wireEvent, QuestionEndedPayload{
		SessionID:     sessionID,
		QuestionID:    closed.Question.QuestionID,
		CorrectAnswer: closed.Question.CorrectAnswer,
		Reason:        string(reason),
		Leaderboard:   wireLeaderboard(lb),
	})
	o.eb.Publish(ctx, domain.EventQuestionEnded{
		SessionID:     sessionID,
		QuestionID:    closed.Question.QuestionID,
		CorrectAnswer: closed.Question.CorrectAnswer,
		Reason:        reason,
		Leaderboard:   *lb,
	})
}

// Advance moves a closed question forward: the next question goes live, or
// the session completes when none remain. Host only.
func (o *Orchestrator) Advance(ctx context.Context, sessionID, userID string) error {
	defer o.turn(sessionID)()

	if err := o.requireHost(sessionID, userID); err != nil {
		return err
	}

	index, err := o.state.CurrentQuestionIndex(sessionID)
	if err != nil {
		return err
	}
	return o.startQuestion(ctx, sessionID, index+1)
}

// EndSession completes the session on the host's request, closing any live
// question first.
func (o *Orchestrator) EndSession(ctx context.Context, sessionID, userID string) error {
	defer o.turn(sessionID)()

	if err := o.requireHost(sessionID, userID); err != nil {
		return err
	}

	if qid, ok := o.state.LiveQuestionID(sessionID); ok {
		o.closeQuestion(ctx, sessionID, qid, domain.CloseForced)
	}
	return o.complete(ctx, sessionID)
}

func (o *Orchestrator) complete(ctx context.Context, sessionID string) error {
	now := o.clock.Now()

	ss, err := o.state.Complete(sessionID, now)
	if err != nil {
		return err
	}

	o.cancelTimer(sessionID)

	if err := o.persistStatus(ctx, sessionID, domain.SessionCompleted, ss.EndTime); err != nil {
		slog.ErrorContext(ctx, "orchestrator: persist session completion failed",
			"session", sessionID, "error", err)
	}

	lb, err := o.lb.GetEntries(ctx, sessionID)
	if err != nil {
		slog.ErrorContext(ctx, "orchestrator: read final leaderboard failed",
			"session", sessionID, "error", err)
		lb = &domain.Leaderboard{SessionID: sessionID}
	}

	if err := o.lb.Archive(ctx, sessionID); err != nil {
		slog.ErrorContext(ctx, "orchestrator: archive leaderboard failed",
			"session", sessionID, "error", err)
	}

	o.metrics.IncrementCounter("session_completed")
	o.broadcast(ctx, sessionID, WireQuizCompleted, QuizCompletedPayload{
		SessionID:   sessionID,
		Leaderboard: wireLeaderboard(lb),
	})
	o.eb.Publish(ctx, domain.EventSessionCompleted{Session: ss, Leaderboard: *lb})

	o.state.Remove(sessionID)
	o.quizMu.Lock()
	delete(o.quizBySession, sessionID)
	o.quizMu.Unlock()
	o.releaseLease(sessionID)
	return nil
}

// Resync replays the current session and question state to a reconnecting
// participant. It is an explicit request, not a push: no event is mirrored,
// so reconnects cannot cause duplicate event storms.
func (o *Orchestrator) Resync(ctx context.Context, sessionID, userID string) (*Snapshot, error) {
	defer o.turn(sessionID)()
	now := o.clock.Now()

	snap, err := o.state.Snapshot(sessionID, userID)
	if err != nil {
		return nil, err
	}

	status := domain.ParticipantOnline
	if snap.Session.Status == domain.SessionActive {
		status = domain.ParticipantTaking
	}
	if _, err := o.state.SetStatus(sessionID, userID, status, now); err != nil {
		return nil, err
	}

	snap, err = o.state.Snapshot(sessionID, userID)
	if err != nil {
		return nil, err
	}
	return wireSnapshot(snap), nil
}

// Disconnect marks the participant offline without removing them from
// scoring. If the live question was only waiting on them, it closes.
func (o *Orchestrator) Disconnect(sessionID, userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), timeoutHandlerBudget)
	defer cancel()

	defer o.turn(sessionID)()
	now := o.clock.Now()

	p, err := o.state.SetStatus(sessionID, userID, domain.ParticipantOffline, now)
	if err != nil {
		return
	}

	o.broadcast(ctx, sessionID, WireSessionEvent, SessionEventPayload{
		Type: SessionEventLeft,
		Data: ParticipantPayload{
			SessionID: sessionID,
			UserID:    p.UserID,
			Username:  p.Username,
			Status:    string(p.Status),
		},
	})
	o.eb.Publish(ctx, domain.EventParticipantLeft{
		SessionID: sessionID,
		UserID:    p.UserID,
		Username:  p.Username,
	})

	if qid, ok := o.state.LiveQuestionID(sessionID); ok && o.state.AllAnswered(sessionID) {
		o.closeQuestion(ctx, sessionID, qid, domain.CloseAllAnswered)
	}
}

func (o *Orchestrator) admit(ctx context.Context, action, userID string) error {
	if o.limiter == nil {
		return nil
	}

	if o.limiter.IsBlocked(ctx, action, userID) {
		o.metrics.IncrementCounter("rate_limited")
		return errors.New(errors.CodeResourceExhausted,
			errors.WithMessagef("action %q is blocked for a cooldown", action))
	}

	res := o.limiter.Consume(ctx, action, userID)
	if !res.Allowed {
		o.metrics.IncrementCounter("rate_limited")
		return errors.New(errors.CodeResourceExhausted,
			errors.WithMessagef("rate limit exceeded for %q, remaining quota 0", action))
	}
	return nil
}

func (o *Orchestrator) requireHost(sessionID, userID string) error {
	host, err := o.state.Host(sessionID)
	if err != nil {
		return err
	}
	if host != userID {
		return errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("only the host may control the session: %s", sessionID))
	}
	return nil
}

func (o *Orchestrator) broadcast(ctx context.Context, sessionID, event string, data any) {
	if err := o.bc.Publish(ctx, sessionID, event, data); err != nil {
		slog.ErrorContext(ctx, "orchestrator: fan-out publish failed",
			"session", sessionID, "event", event, "error", err)
		o.metrics.TrackError("fanout_publish")
	}
}

func (o *Orchestrator) quiz(sessionID string) domain.Quiz {
	o.quizMu.Lock()
	defer o.quizMu.Unlock()
	return o.quizBySession[sessionID]
}

func (o *Orchestrator) replaceTimer(sessionID string, qt *questionTimer) {
	o.timersMu.Lock()
	defer o.timersMu.Unlock()

	if old, ok := o.timers[sessionID]; ok {
		old.timer.Stop()
		close(old.stop)
	}
	o.timers[sessionID] = qt
}

func (o *Orchestrator) cancelTimer(sessionID string) {
	o.timersMu.Lock()
	defer o.timersMu.Unlock()

	if qt, ok := o.timers[sessionID]; ok {
		qt.timer.Stop()
		close(qt.stop)
		delete(o.timers, sessionID)
	}
}

// Stop cancels every pending question timer and gives up the session leases
// this process holds; used on shutdown.
func (o *Orchestrator) Stop() {
	o.timersMu.Lock()
	for id, qt := range o.timers {
		qt.timer.Stop()
		close(qt.stop)
		delete(o.timers, id)
	}
	o.timersMu.Unlock()

	if o.leases != nil {
		o.leases.Stop()
	}
}

// NewSessionID mints a session id the way the rest of the system expects
// them: UUIDv7, time-ordered.
func NewSessionID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate session ID: %w", err)
	}
	return id.String(), nil
}

func shuffled(qs []domain.Question) []domain.Question {
	out := make([]domain.Question, len(qs))
	copy(out, qs)
	rand.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

func shuffledOptions(opts []domain.Option) []domain.Option {
	out := make([]domain.Option, len(opts))
	copy(out, opts)
	rand.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}
