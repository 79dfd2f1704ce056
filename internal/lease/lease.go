// Package lease coordinates session ownership between engine processes. A
// session is mutated by exactly one process at a time: the holder of its
// Redis lease. Leases expire on their own, so the sessions of a crashed
// owner become adoptable without any cleanup step.
package lease

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
)

const (
	defaultTTL     = 15 * time.Second
	requestTimeout = 2 * time.Second
)

type Config struct {
	Redis  redis.UniversalClient
	Prefix string
	// TTL bounds how long a crashed owner blocks takeover of its sessions.
	TTL   time.Duration
	Clock clockwork.Clock
}

// Keeper holds this process's session leases and keeps them alive. Each
// Keeper identifies itself with a random owner token, so leases survive
// neither restarts nor handoffs between processes.
type Keeper struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
	clock  clockwork.Clock
	owner  string

	mu   sync.Mutex
	held map[string]chan struct{}
}

func NewKeeper(c Config) *Keeper {
	if c.TTL <= 0 {
		c.TTL = defaultTTL
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}

	return &Keeper{
		redis:  c.Redis,
		prefix: c.Prefix,
		ttl:    c.TTL,
		clock:  c.Clock,
		owner:  uuid.NewString(),
		held:   make(map[string]chan struct{}),
	}
}

// Acquire takes the session's lease. It returns false when another live
// process holds it. Acquiring a lease this process already holds is a no-op
// success. A won lease is refreshed in the background until Release.
func (k *Keeper) Acquire(ctx context.Context, sessionID string) (bool, error) {
	k.mu.Lock()
	_, holding := k.held[sessionID]
	k.mu.Unlock()
	if holding {
		return true, nil
	}

	won, err := k.redis.SetNX(ctx, k.key(sessionID), k.owner, k.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("lease: acquire session %s: %w", sessionID, err)
	}
	if !won {
		return false, nil
	}

	stop := make(chan struct{})
	k.mu.Lock()
	k.held[sessionID] = stop
	k.mu.Unlock()

	go k.keepAlive(sessionID, stop)
	return true, nil
}

// Release drops the lease so another process may adopt the session at once.
func (k *Keeper) Release(sessionID string) {
	k.mu.Lock()
	stop, ok := k.held[sessionID]
	if ok {
		delete(k.held, sessionID)
	}
	k.mu.Unlock()

	if !ok {
		return
	}
	close(stop)
	k.drop(sessionID)
}

// Stop releases every held lease; used on shutdown.
func (k *Keeper) Stop() {
	k.mu.Lock()
	held := k.held
	k.held = make(map[string]chan struct{})
	k.mu.Unlock()

	for sessionID, stop := range held {
		close(stop)
		k.drop(sessionID)
	}
}

func (k *Keeper) keepAlive(sessionID string, stop chan struct{}) {
	t := k.clock.NewTicker(k.ttl / 3)
	defer t.Stop()

	for {
		select {
		case <-stop:
			return
		case <-t.Chan():
			k.refresh(sessionID)
		}
	}
}

// refresh extends the lease only while the key still carries our token; a
// lease lost to expiry is not stolen back from its new owner.
func (k *Keeper) refresh(sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	val, err := k.redis.Get(ctx, k.key(sessionID)).Result()
	if err != nil || val != k.owner {
		slog.Warn("lease: refresh skipped, lease no longer ours",
			"session", sessionID, "error", err)
		return
	}

	if err := k.redis.Expire(ctx, k.key(sessionID), k.ttl).Err(); err != nil {
		slog.Warn("lease: refresh failed", "session", sessionID, "error", err)
	}
}

func (k *Keeper) drop(sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	val, err := k.redis.Get(ctx, k.key(sessionID)).Result()
	if err != nil || val != k.owner {
		return
	}

	if err := k.redis.Del(ctx, k.key(sessionID)).Err(); err != nil {
		slog.Warn("lease: release failed", "session", sessionID, "error", err)
	}
}

func (k *Keeper) key(sessionID string) string {
	return fmt.Sprintf("%s:lease:session:%s", k.prefix, sessionID)
}
