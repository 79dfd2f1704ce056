// Package fanout mirrors orchestrator events to every server process over a
// shared Redis pub/sub channel keyed by session id. Processes that do not
// own a session's timer still relay its events to their locally connected
// clients.
package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Envelope is the wire form of one mirrored event. Relays pass it through
// verbatim.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type Publisher struct {
	redis  redis.UniversalClient
	prefix string
}

func NewPublisher(rc redis.UniversalClient, prefix string) *Publisher {
	return &Publisher{redis: rc, prefix: prefix}
}

// Publish mirrors one event on the session's channel. Emission order within
// a session matches the order mutations occurred on the owning process
// because the orchestrator publishes while holding the session's turn.
func (p *Publisher) Publish(ctx context.Context, sessionID, event string, data any) error {
	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("fanout: marshal %s: %v", event, err)
	}

	env, err := json.Marshal(Envelope{Event: event, Data: b})
	if err != nil {
		return fmt.Errorf("fanout: marshal envelope: %v", err)
	}

	return p.redis.Publish(ctx, channel(p.prefix, sessionID), env).Err()
}

// Handler receives relayed envelopes for a session.
type Handler func(sessionID string, env Envelope)

// Relay subscribes to the channels of sessions with at least one locally
// connected client and hands received envelopes to the handler.
type Relay struct {
	redis   redis.UniversalClient
	prefix  string
	handler Handler

	mu   sync.Mutex
	subs map[string]*sub
}

type sub struct {
	pubsub *redis.PubSub
	cancel context.CancelFunc
}

func NewRelay(rc redis.UniversalClient, prefix string, h Handler) *Relay {
	return &Relay{
		redis:   rc,
		prefix:  prefix,
		handler: h,
		subs:    make(map[string]*sub),
	}
}

// Subscribe starts relaying events for sessionID. Subscribing twice is a
// no-op; the relay keeps a single subscription per session.
func (r *Relay) Subscribe(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.subs[sessionID]; ok {
		return nil
	}

	ps := r.redis.Subscribe(ctx, channel(r.prefix, sessionID))
	// Force the subscription onto the wire before we report success.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return fmt.Errorf("fanout: subscribe session %s: %w", sessionID, err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.subs[sessionID] = &sub{pubsub: ps, cancel: cancel}

	go r.run(runCtx, sessionID, ps)
	return nil
}

// Unsubscribe stops relaying events for sessionID.
func (r *Relay) Unsubscribe(sessionID string) {
	r.mu.Lock()
	s, ok := r.subs[sessionID]
	if ok {
		delete(r.subs, sessionID)
	}
	r.mu.Unlock()

	if !ok {
		return
	}

	s.cancel()
	if err := s.pubsub.Close(); err != nil {
		slog.Warn("fanout: close subscription failed", "session", sessionID, "error", err)
	}
}

// Stop closes every subscription.
func (r *Relay) Stop() {
	r.mu.Lock()
	subs := r.subs
	r.subs = make(map[string]*sub)
	r.mu.Unlock()

	for sessionID, s := range subs {
		s.cancel()
		if err := s.pubsub.Close(); err != nil {
			slog.Warn("fanout: close subscription failed", "session", sessionID, "error", err)
		}
	}
}

func (r *Relay) run(ctx context.Context, sessionID string, ps *redis.PubSub) {
	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}

			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				slog.ErrorContext(ctx, "fanout: drop malformed envelope",
					"session", sessionID, "error", err)
				continue
			}

			r.handler(sessionID, env)
		}
	}
}

func channel(prefix, sessionID string) string {
	return fmt.Sprintf("%s:session:%s", prefix, sessionID)
}
