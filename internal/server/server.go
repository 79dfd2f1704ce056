// Package server assembles the infrastructure and services of one engine
// process and runs its HTTP surface.
package server

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/luuphuc6297/elsa-coding-challenges-sub000/internal/auth"
	"github.com/luuphuc6297/elsa-coding-challenges-sub000/internal/domain"
	"github.com/luuphuc6297/elsa-coding-challenges-sub000/internal/errors"
	"github.com/luuphuc6297/elsa-coding-challenges-sub000/internal/event"
	"github.com/luuphuc6297/elsa-coding-challenges-sub000/internal/fanout"
	"github.com/luuphuc6297/elsa-coding-challenges-sub000/internal/leaderboard"
	"github.com/luuphuc6297/elsa-coding-challenges-sub000/internal/lease"
	"github.com/luuphuc6297/elsa-coding-challenges-sub000/internal/orchestrator"
	"github.com/luuphuc6297/elsa-coding-challenges-sub000/internal/quiz"
	"github.com/luuphuc6297/elsa-coding-challenges-sub000/internal/ratelimit"
	"github.com/luuphuc6297/elsa-coding-challenges-sub000/internal/session"
	"github.com/luuphuc6297/elsa-coding-challenges-sub000/internal/telemetry"
	"github.com/luuphuc6297/elsa-coding-challenges-sub000/internal/user"
	"github.com/luuphuc6297/elsa-coding-challenges-sub000/internal/ws"
)

type Config struct {
	HTTP struct {
		Port int32
	}

	Auth struct {
		Secret string
	}

	Redis struct {
		Leaderboard struct {
			Addrs  []string
			Pass   string
			Prefix string
		}

		Pubsub struct {
			Addrs  []string
			Pass   string
			Prefix string
		}

		Ratelimit struct {
			Addrs  []string
			Pass   string
			Prefix string
		}
	}

	Postgres struct {
		Session struct {
			Addr string
			User string
			Pass string
			Name string
		}

		Leaderboard struct {
			Addr string
			User string
			Pass string
			Name string
		}
	}

	RateLimit struct {
		Join   ActionLimit
		Answer ActionLimit
	}

	Scoring struct {
		SpeedBonus bool
	}
}

type ActionLimit struct {
	Window   time.Duration
	Quota    int
	BlockFor time.Duration
}

type Server struct {
	c Config

	eb      *event.Bus
	metrics *telemetry.PromSink

	infra struct {
		redis struct {
			leaderboard redis.UniversalClient
			pubsub      redis.UniversalClient
			ratelimit   redis.UniversalClient
		}

		postgres struct {
			session     *pgxpool.Pool
			leaderboard *pgxpool.Pool
		}
	}

	service struct {
		state        *session.Manager
		orchestrator *orchestrator.Orchestrator
		leaderboard  *leaderboard.Service
		limiter      *ratelimit.Limiter
		hub          *ws.Hub
		relay        *fanout.Relay
	}

	http *http.Server
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c}

	s.eb = event.NewBus()
	s.metrics = telemetry.NewPromSink("quiz_engine")

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	s.initService()
	s.initEvents()
	s.initAPI()
	return s, nil
}

func (s *Server) initInfra() error {
	if err := s.initRedis(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	if err := s.initPostgres(); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	return nil
}

func (s *Server) initRedis() error {
	connect := func(addrs []string, pass string) (redis.UniversalClient, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		r := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    addrs,
			Password: pass,
		})

		if err := telemetry.MonitorRedis(r); err != nil {
			return nil, err
		}

		if err := r.Ping(ctx).Err(); err != nil {
			return nil, err
		}

		return r, nil
	}

	var err error
	s.infra.redis.leaderboard, err = connect(s.c.Redis.Leaderboard.Addrs, s.c.Redis.Leaderboard.Pass)
	if err != nil {
		return fmt.Errorf("leaderboard: %w", err)
	}

	s.infra.redis.pubsub, err = connect(s.c.Redis.Pubsub.Addrs, s.c.Redis.Pubsub.Pass)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}

	s.infra.redis.ratelimit, err = connect(s.c.Redis.Ratelimit.Addrs, s.c.Redis.Ratelimit.Pass)
	if err != nil {
		return fmt.Errorf("ratelimit: %w", err)
	}

	return nil
}

func (s *Server) initPostgres() (err error) {
	connect := func(addr, user, pass, name string) (*pgxpool.Pool, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		cc, err := pgxpool.ParseConfig(fmt.Sprintf("postgres://%s:%s@%s/%s", user, pass, addr, name))
		if err != nil {
			return nil, err
		}

		db, err := pgxpool.NewWithConfig(ctx, cc)
		if err != nil {
			return nil, err
		}

		if err := db.Ping(ctx); err != nil {
			return nil, err
		}

		return db, nil
	}

	s.infra.postgres.session, err = connect(s.c.Postgres.Session.Addr, s.c.Postgres.Session.User, s.c.Postgres.Session.Pass, s.c.Postgres.Session.Name)
	if err != nil {
		return fmt.Errorf("session: %w", err)
	}

	s.infra.postgres.leaderboard, err = connect(s.c.Postgres.Leaderboard.Addr, s.c.Postgres.Leaderboard.User, s.c.Postgres.Leaderboard.Pass, s.c.Postgres.Leaderboard.Name)
	if err != nil {
		return fmt.Errorf("leaderboard: %w", err)
	}

	return nil
}

func (s *Server) initService() {
	s.service.state = session.NewManager()

	s.service.leaderboard = leaderboard.NewService(leaderboard.Config{
		Store:  leaderboard.NewPostgresStore(s.infra.postgres.leaderboard),
		Redis:  s.infra.redis.leaderboard,
		Prefix: s.c.Redis.Leaderboard.Prefix,
	})

	s.service.limiter = ratelimit.New(ratelimit.Config{
		Redis:  s.infra.redis.ratelimit,
		Prefix: s.c.Redis.Ratelimit.Prefix,
		Actions: map[string]ratelimit.ActionConfig{
			orchestrator.ActionJoin:   actionConfig(s.c.RateLimit.Join),
			orchestrator.ActionAnswer: actionConfig(s.c.RateLimit.Answer),
		},
	})

	s.service.orchestrator = orchestrator.New(orchestrator.Config{
		State:       s.service.state,
		Sessions:    session.NewPostgresStore(s.infra.postgres.session),
		Quizzes:     quiz.NewPostgresRepository(s.infra.postgres.session),
		Users:       user.NewPostgresRepository(s.infra.postgres.session),
		Leaderboard: s.service.leaderboard,
		Limiter:     s.service.limiter,
		Broadcast:   fanout.NewPublisher(s.infra.redis.pubsub, s.c.Redis.Pubsub.Prefix),
		EventBus:    s.eb,
		Metrics:     s.metrics,
		SpeedBonus:  s.c.Scoring.SpeedBonus,
		Leases: lease.NewKeeper(lease.Config{
			Redis:  s.infra.redis.pubsub,
			Prefix: s.c.Redis.Pubsub.Prefix,
		}),
	})

	s.service.hub = ws.NewHub()
	s.service.relay = fanout.NewRelay(s.infra.redis.pubsub, s.c.Redis.Pubsub.Prefix, s.service.hub.Deliver)
	s.service.hub.AttachRelay(s.service.relay)
}

func actionConfig(l ActionLimit) ratelimit.ActionConfig {
	return ratelimit.ActionConfig{
		Window:   l.Window,
		Quota:    l.Quota,
		BlockFor: l.BlockFor,
	}
}

// initEvents wires the internal bus subscribers: per-event counters today.
func (s *Server) initEvents() {
	counter := func(name string) event.Handler {
		return func(context.Context, event.Event) error {
			s.metrics.IncrementCounter(name)
			return nil
		}
	}

	s.eb.Subscribe(domain.EventNameSessionStarted, counter("events_session_started"))
	s.eb.Subscribe(domain.EventNameQuestionStarted, counter("events_question_started"))
	s.eb.Subscribe(domain.EventNameQuestionEnded, counter("events_question_ended"))
	s.eb.Subscribe(domain.EventNameScoreUpdated, counter("events_score_updated"))
	s.eb.Subscribe(domain.EventNameSessionCompleted, counter("events_session_completed"))
}

func (s *Server) initAPI() {
	e := gin.New()
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	pprof.Register(e, "/debug/pprof")
	e.Use(gin.Recovery())

	e.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	wsHandler := ws.NewHandler(ws.Config{
		Orchestrator: s.service.orchestrator,
		Hub:          s.service.hub,
		Auth:         auth.NewJWT(s.c.Auth.Secret),
	})
	e.GET("/ws", wsHandler.Serve)

	e.GET("/api/sessions/:id/leaderboard", s.getLeaderboard)

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

// getLeaderboard serves the read-only REST view, cache-first like every
// other leaderboard read.
func (s *Server) getLeaderboard(c *gin.Context) {
	l, err := s.service.leaderboard.GetEntries(c.Request.Context(), c.Param("id"))
	if err != nil {
		e := errors.Convert(err)
		c.JSON(e.HTTPStatusCode(), gin.H{"error": gin.H{
			"code":    e.CodeString(),
			"message": e.Message,
		}})
		return
	}

	c.JSON(http.StatusOK, l)
}

func (s *Server) Start() {
	ctx := context.TODO()

	var eg errgroup.Group
	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if err := eg.Wait(); err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	s.service.relay.Stop()
	s.service.orchestrator.Stop()
	s.eb.Stop()

	slog.InfoContext(ctx, "server: shutdown completed")
}
