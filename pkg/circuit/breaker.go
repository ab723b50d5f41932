// Package circuit provides a small circuit breaker used to stop hammering a
// broker that is already failing. Vesting events are fire-and-forget, so a
// tripped breaker drops publishes instead of slowing claim processing.
package circuit

import (
	"errors"
	"sync"
	"time"
)

// State of the breaker.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned while the breaker is rejecting calls.
var ErrOpen = errors.New("circuit breaker is open")

// Breaker trips to Open after MaxFailures consecutive failures, waits
// Cooldown, then allows a single probe (HalfOpen). A successful probe
// closes it again; a failed one re-opens it.
type Breaker struct {
	maxFailures int
	cooldown    time.Duration

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
}

// Config holds breaker settings.
type Config struct {
	MaxFailures int           // default 5
	Cooldown    time.Duration // default 30s
}

func New(cfg Config) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	return &Breaker{maxFailures: cfg.MaxFailures, cooldown: cfg.Cooldown}
}

// Do runs fn under breaker protection.
func (b *Breaker) Do(fn func() error) error {
	if err := b.allow(); err != nil {
		return err
	}
	if err := fn(); err != nil {
		b.fail()
		return err
	}
	b.succeed()
	return nil
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case Closed, HalfOpen:
		return nil
	default: // Open
		if time.Since(b.openedAt) >= b.cooldown {
			b.state = HalfOpen
			return nil
		}
		return ErrOpen
	}
}

func (b *Breaker) fail() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	if b.state == HalfOpen || b.failures >= b.maxFailures {
		b.state = Open
		b.openedAt = time.Now()
		b.failures = 0
	}
}

func (b *Breaker) succeed() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.state = Closed
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
