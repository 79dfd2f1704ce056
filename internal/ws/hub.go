package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/luuphuc6297/elsa-coding-challenges-sub000/internal/fanout"
)

// SessionRelay is the slice of the cross-process relay the hub drives.
type SessionRelay interface {
	Subscribe(ctx context.Context, sessionID string) error
	Unsubscribe(sessionID string)
}

// Hub tracks which local connections watch which session and bridges them to
// the cross-process relay: the first local watcher of a session subscribes
// its channel, the last one leaving unsubscribes it.
//
// The hub-wide lock only guards the room map. Each room carries its own
// lock, so the relay I/O of one session never stalls joins, leaves or
// delivery on another.
type Hub struct {
	mu    sync.Mutex
	rooms map[string]*room

	relay SessionRelay
}

// room is the set of local watchers of one session. Its lock also covers
// subscribing and unsubscribing the session's relay channel, keeping the
// subscription state and the member set in step.
type room struct {
	mu         sync.Mutex
	conns      map[*Conn]struct{}
	subscribed bool
	// gone marks a room that emptied and left the map; a holder of a stale
	// pointer must look the session up again.
	gone bool
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]*room)}
}

// AttachRelay wires the relay whose Deliver callback this hub serves. Called
// once at startup, before any connection is accepted.
func (h *Hub) AttachRelay(r SessionRelay) {
	h.relay = r
}

func (h *Hub) room(sessionID string) *room {
	h.mu.Lock()
	defer h.mu.Unlock()

	r := h.rooms[sessionID]
	if r == nil {
		r = &room{conns: make(map[*Conn]struct{})}
		h.rooms[sessionID] = r
	}
	return r
}

// remove drops the room from the map if it is still the registered one.
func (h *Hub) remove(sessionID string, r *room) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.rooms[sessionID] == r {
		delete(h.rooms, sessionID)
	}
}

func (h *Hub) join(ctx context.Context, c *Conn, sessionID string) error {
	if prev := c.session(); prev != "" && prev != sessionID {
		h.leaveRoom(c, prev)
	}

	for {
		r := h.room(sessionID)

		r.mu.Lock()
		if r.gone {
			r.mu.Unlock()
			continue
		}

		if !r.subscribed && h.relay != nil {
			if err := h.relay.Subscribe(ctx, sessionID); err != nil {
				if len(r.conns) == 0 {
					h.remove(sessionID, r)
					r.gone = true
				}
				r.mu.Unlock()
				return err
			}
		}
		r.subscribed = true
		r.conns[c] = struct{}{}
		r.mu.Unlock()

		c.setSession(sessionID)
		return nil
	}
}

func (h *Hub) leave(c *Conn) {
	if sid := c.session(); sid != "" {
		h.leaveRoom(c, sid)
		c.setSession("")
	}
}

func (h *Hub) leaveRoom(c *Conn, sessionID string) {
	h.mu.Lock()
	r := h.rooms[sessionID]
	h.mu.Unlock()
	if r == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.conns, c)
	if len(r.conns) > 0 || r.gone {
		return
	}

	h.remove(sessionID, r)
	r.gone = true
	if r.subscribed && h.relay != nil {
		h.relay.Unsubscribe(sessionID)
	}
}

// Deliver pushes one relayed envelope to every local watcher of the session.
// It is the fanout.Handler of this process's relay.
func (h *Hub) Deliver(sessionID string, env fanout.Envelope) {
	b, err := json.Marshal(env)
	if err != nil {
		slog.Error("ws: marshal envelope", "event", env.Event, "error", err)
		return
	}

	h.mu.Lock()
	r := h.rooms[sessionID]
	h.mu.Unlock()
	if r == nil {
		return
	}

	r.mu.Lock()
	conns := make([]*Conn, 0, len(r.conns))
	for c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.Unlock()

	for _, c := range conns {
		c.enqueue(b)
	}
}
