// Package resilience wraps I/O calls with bounded retries and a
// per-dependency circuit breaker. Every call the engine makes to durable
// storage or the shared in-memory store goes through a Wrapper.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// ErrOpen is returned without invoking the wrapped operation while the
// breaker is shedding load.
var ErrOpen = errors.New("resilience: circuit open")

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

type Config struct {
	// MaxAttempts bounds the retry loop, including the first attempt.
	// Zero means a single attempt.
	MaxAttempts int
	// InitialBackoff is the delay before the first retry; it doubles on
	// every subsequent retry up to MaxBackoff.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// FailureThreshold is the number of consecutive failed calls that trips
	// the breaker from Closed to Open.
	FailureThreshold int
	// ResetTimeout is how long the breaker stays Open before allowing a
	// single Half-Open trial call.
	ResetTimeout time.Duration

	Clock clockwork.Clock
}

func (c *Config) withDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 50 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = time.Second
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 30 * time.Second
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
}

// Wrapper guards one dependency. Not copyable after first use.
type Wrapper struct {
	name  string
	c     Config
	clock clockwork.Clock

	mu           sync.Mutex
	state        State
	failures     int
	openedAt     time.Time
	trialPending bool
}

func New(name string, c Config) *Wrapper {
	c.withDefaults()
	return &Wrapper{
		name:  name,
		c:     c,
		clock: c.Clock,
		state: StateClosed,
	}
}

// Do runs op through the retry loop, gated by the breaker. The breaker
// counts the whole Do call as one outcome: a call that succeeds on its last
// retry is a success.
func (w *Wrapper) Do(ctx context.Context, op func(ctx context.Context) error) error {
	if err := w.admit(); err != nil {
		return err
	}

	err := w.retry(ctx, op)
	w.record(err == nil)
	return err
}

func (w *Wrapper) retry(ctx context.Context, op func(ctx context.Context) error) error {
	backoff := w.c.InitialBackoff

	var err error
	for attempt := 1; ; attempt++ {
		if err = op(ctx); err == nil {
			return nil
		}

		if attempt >= w.c.MaxAttempts {
			return fmt.Errorf("%s: %d attempts: %w", w.name, attempt, err)
		}

		slog.WarnContext(ctx, "resilience: attempt failed, retrying",
			"dependency", w.name,
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.clock.After(backoff):
		}

		if backoff *= 2; backoff > w.c.MaxBackoff {
			backoff = w.c.MaxBackoff
		}
	}
}

// admit decides whether a call may proceed. In Half-Open exactly one trial
// call is let through; concurrent callers are rejected until it settles.
func (w *Wrapper) admit() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.state {
	case StateClosed:
		return nil

	case StateOpen:
		if w.clock.Since(w.openedAt) < w.c.ResetTimeout {
			return ErrOpen
		}
		w.state = StateHalfOpen
		w.trialPending = true
		slog.Info("resilience: breaker half-open", "dependency", w.name)
		return nil

	case StateHalfOpen:
		if w.trialPending {
			return ErrOpen
		}
		w.trialPending = true
		return nil
	}

	return nil
}

func (w *Wrapper) record(success bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if success {
		if w.state != StateClosed {
			slog.Info("resilience: breaker closed", "dependency", w.name)
		}
		w.state = StateClosed
		w.failures = 0
		w.trialPending = false
		return
	}

	w.trialPending = false

	switch w.state {
	case StateHalfOpen:
		w.trip()
	case StateClosed:
		w.failures++
		if w.failures >= w.c.FailureThreshold {
			w.trip()
		}
	}
}

func (w *Wrapper) trip() {
	w.state = StateOpen
	w.failures = 0
	w.openedAt = w.clock.Now()
	slog.Warn("resilience: breaker open", "dependency", w.name)
}

// State reports the current breaker state.
func (w *Wrapper) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}
