// Package ratelimit provides per-(user, action) admission control backed by
// fixed-window counters in Redis.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/luuphuc6297/elsa-coding-challenges-sub000/internal/resilience"
)

// ActionConfig is the window and quota for one action kind. A zero BlockFor
// disables the cooldown for that action.
type ActionConfig struct {
	Window   time.Duration
	Quota    int
	BlockFor time.Duration
}

type Config struct {
	Redis   redis.UniversalClient
	Prefix  string
	Actions map[string]ActionConfig
	// Wrapper guards Redis access; when nil a default one is created.
	Wrapper *resilience.Wrapper
}

type Limiter struct {
	redis   redis.UniversalClient
	prefix  string
	actions map[string]ActionConfig
	res     *resilience.Wrapper
}

func New(c Config) *Limiter {
	res := c.Wrapper
	if res == nil {
		res = resilience.New("ratelimit-redis", resilience.Config{MaxAttempts: 2})
	}

	return &Limiter{
		redis:   c.Redis,
		prefix:  c.Prefix,
		actions: c.Actions,
		res:     res,
	}
}

type Result struct {
	Allowed   bool
	Remaining int
}

// Consume counts one attempt of action by userID against the fixed window.
// Unknown actions are unlimited. On underlying-store failure the limiter
// fails open: availability over strict enforcement.
func (l *Limiter) Consume(ctx context.Context, action, userID string) Result {
	ac, ok := l.actions[action]
	if !ok {
		return Result{Allowed: true, Remaining: -1}
	}

	var count int64
	err := l.res.Do(ctx, func(ctx context.Context) error {
		var err error
		count, err = l.redis.Incr(ctx, l.counterKey(action, userID)).Result()
		if err != nil {
			return err
		}
		// First hit opens a fresh window; the counter expires with it.
		if count == 1 {
			return l.redis.Expire(ctx, l.counterKey(action, userID), ac.Window).Err()
		}
		return nil
	})
	if err != nil {
		slog.WarnContext(ctx, "ratelimit: store unavailable, failing open",
			"action", action, "error", err)
		return Result{Allowed: true, Remaining: -1}
	}

	if count > int64(ac.Quota) {
		l.block(ctx, action, userID, ac)
		return Result{Allowed: false}
	}

	return Result{Allowed: true, Remaining: ac.Quota - int(count)}
}

// IsBlocked reports whether userID is serving a cooldown for action.
// Callers consult it before Consume. Store failures read as not blocked.
func (l *Limiter) IsBlocked(ctx context.Context, action, userID string) bool {
	var blocked bool
	err := l.res.Do(ctx, func(ctx context.Context) error {
		n, err := l.redis.Exists(ctx, l.blockKey(action, userID)).Result()
		if err != nil {
			return err
		}
		blocked = n > 0
		return nil
	})
	if err != nil {
		slog.WarnContext(ctx, "ratelimit: store unavailable, failing open",
			"action", action, "error", err)
		return false
	}

	return blocked
}

func (l *Limiter) block(ctx context.Context, action, userID string, ac ActionConfig) {
	if ac.BlockFor <= 0 {
		return
	}

	err := l.res.Do(ctx, func(ctx context.Context) error {
		return l.redis.Set(ctx, l.blockKey(action, userID), 1, ac.BlockFor).Err()
	})
	if err != nil {
		slog.WarnContext(ctx, "ratelimit: set block failed", "action", action, "error", err)
	}
}

func (l *Limiter) counterKey(action, userID string) string {
	return fmt.Sprintf("%s:ratelimit:%s:%s", l.prefix, action, userID)
}

func (l *Limiter) blockKey(action, userID string) string {
	return fmt.Sprintf("%s:ratelimit:block:%s:%s", l.prefix, action, userID)
}
