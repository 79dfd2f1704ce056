// Package orchestrator drives the protocol state machine of live quiz
// sessions: it validates client actions, mutates the session state manager,
// schedules question deadline timers, and mirrors every resulting transition
// on the fan-out layer.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/luuphuc6297/elsa-coding-challenges-sub000/internal/domain"
	"github.com/luuphuc6297/elsa-coding-challenges-sub000/internal/event"
	"github.com/luuphuc6297/elsa-coding-challenges-sub000/internal/lease"
	"github.com/luuphuc6297/elsa-coding-challenges-sub000/internal/ratelimit"
	"github.com/luuphuc6297/elsa-coding-challenges-sub000/internal/resilience"
	"github.com/luuphuc6297/elsa-coding-challenges-sub000/internal/score"
	"github.com/luuphuc6297/elsa-coding-challenges-sub000/internal/session"
	"github.com/luuphuc6297/elsa-coding-challenges-sub000/internal/telemetry"
)

// QuizRepository is the quiz-definition lookup collaborator. Its internals
// are out of scope; only these reads are consumed.
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// UserRepository is the identity lookup collaborator.
type UserRepository interface {
	FindByID(ctx context.Context, userID string) (domain.User, error)
}

// Leaderboard is the slice of the leaderboard service the orchestrator
// drives on every score change.
type Leaderboard interface {
	UpsertEntry(ctx context.Context, sessionID string, e domain.LeaderboardEntry) (*domain.Leaderboard, error)
	GetEntries(ctx context.Context, sessionID string) (*domain.Leaderboard, error)
	Archive(ctx context.Context, sessionID string) error
}

// Broadcaster mirrors one event on the shared fan-out channel for the
// session. Calls happen synchronously inside the session's turn so emission
// order matches mutation order.
type Broadcaster interface {
	Publish(ctx context.Context, sessionID, event string, data any) error
}

// PointsFunc computes awarded points; score.Points by default,
// score.PointsWithBonus when the speed bonus is enabled.
type PointsFunc func(timeSpent, timeLimit time.Duration, basePoints int64) int64

type Config struct {
	State       *session.Manager
	Sessions    session.Store
	Quizzes     QuizRepository
	Users       UserRepository
	Leaderboard Leaderboard
	Limiter     *ratelimit.Limiter
	Broadcast   Broadcaster
	EventBus    *event.Bus
	Metrics     telemetry.Sink
	Clock       clockwork.Clock
	Points      PointsFunc
	// Leases arbitrates session ownership between processes. Nil disables
	// arbitration; only a single-process deployment may do that.
	Leases *lease.Keeper
	// StoreWrapper guards the session database (session records, quiz and
	// user reads); when nil a default one is created.
	StoreWrapper *resilience.Wrapper
	// SpeedBonus switches scoring to the 1.5x fastest-30% variant.
	SpeedBonus bool
}

type Orchestrator struct {
	state   *session.Manager
	store   session.Store
	quizzes QuizRepository
	users   UserRepository
	lb      Leaderboard
	limiter *ratelimit.Limiter
	bc      Broadcaster
	eb      *event.Bus
	metrics telemetry.Sink
	clock   clockwork.Clock
	points  PointsFunc
	leases  *lease.Keeper
	dbRes   *resilience.Wrapper

	// turns serializes all operations of one session on this process,
	// including the publish that concludes each mutation.
	turns sync.Map // sessionID -> *sync.Mutex

	quizMu        sync.Mutex
	quizBySession map[string]domain.Quiz

	timersMu sync.Mutex
	timers   map[string]*questionTimer
}

func New(c Config) *Orchestrator {
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Metrics == nil {
		c.Metrics = telemetry.NopSink{}
	}
	if c.EventBus == nil {
		c.EventBus = event.NewBus()
	}
	if c.Points == nil {
		if c.SpeedBonus {
			c.Points = score.PointsWithBonus
		} else {
			c.Points = score.Points
		}
	}
	if c.StoreWrapper == nil {
		c.StoreWrapper = resilience.New("session-db", resilience.Config{MaxAttempts: 3})
	}

	return &Orchestrator{
		state:         c.State,
		store:         c.Sessions,
		quizzes:       c.Quizzes,
		users:         c.Users,
		lb:            c.Leaderboard,
		limiter:       c.Limiter,
		bc:            c.Broadcast,
		eb:            c.EventBus,
		metrics:       c.Metrics,
		clock:         c.Clock,
		points:        c.Points,
		leases:        c.Leases,
		dbRes:         c.StoreWrapper,
		quizBySession: make(map[string]domain.Quiz),
		timers:        make(map[string]*questionTimer),
	}
}

func (o *Orchestrator) turn(sessionID string) func() {
	v, _ := o.turns.LoadOrStore(sessionID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
