// Package resilience guards speech backends against repeated failure.
//
// [CircuitBreaker] is a three-state breaker (closed, open, half-open).
// [FallbackGroup] orders several backends of the same kind, each behind its
// own breaker, and tries them in turn. [TTSFallback] applies that to
// [tts.Provider].
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] while the breaker
// rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until ResetTimeout has
	// passed since the last failure.
	StateOpen

	// StateHalfOpen lets up to HalfOpenMax probe calls through. Any probe
	// failure re-opens the breaker; HalfOpenMax successes close it.
	StateHalfOpen
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig holds tuning knobs for a [CircuitBreaker].
type CircuitBreakerConfig struct {
	// Name labels log lines.
	Name string

	// MaxFailures consecutive failures open the breaker. Default: 5.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open. Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is the probe budget in the half-open state. Default: 3.
	HalfOpenMax int

	// Now replaces [time.Now]. Tests use it to move time without sleeping.
	Now func() time.Time
}

// CircuitBreaker implements the three-state circuit breaker pattern.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	halfOpenMax  int
	now          func() time.Time

	mu        sync.Mutex
	state     State
	failures  int
	openedAt  time.Time
	probes    int
	probeWins int
}

// NewCircuitBreaker creates a [CircuitBreaker]. Zero-value config fields get
// defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 3
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &CircuitBreaker{
		name:         cfg.Name,
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
		halfOpenMax:  cfg.HalfOpenMax,
		now:          cfg.Now,
	}
}

// Execute runs fn if the breaker admits the call.
//
// A call that fails only because ctx was cancelled or timed out is not held
// against the backend: the client went away, the backend did not fail.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	probe, err := cb.admit()
	if err != nil {
		return err
	}

	err = fn(ctx)

	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch {
	case err == nil:
		cb.onSuccess(probe)
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		if probe {
			cb.probes--
		}
	default:
		cb.onFailure(probe)
	}
	return err
}

// admit decides whether a call may proceed and whether it is a probe.
func (cb *CircuitBreaker) admit() (probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if cb.now().Sub(cb.openedAt) < cb.resetTimeout {
			return false, ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.probes, cb.probeWins = 0, 0
		slog.Info("circuit breaker half-open", "name", cb.name)
	}
	if cb.state == StateHalfOpen {
		if cb.probes >= cb.halfOpenMax {
			return false, ErrCircuitOpen
		}
		cb.probes++
		return true, nil
	}
	return false, nil
}

// onFailure must be called with cb.mu held.
func (cb *CircuitBreaker) onFailure(probe bool) {
	if probe {
		cb.trip()
		slog.Warn("circuit breaker re-opened by failed probe", "name", cb.name)
		return
	}
	cb.failures++
	if cb.state == StateClosed && cb.failures >= cb.maxFailures {
		cb.trip()
		slog.Warn("circuit breaker opened", "name", cb.name, "consecutive_failures", cb.failures)
	}
}

// onSuccess must be called with cb.mu held.
func (cb *CircuitBreaker) onSuccess(probe bool) {
	if !probe {
		cb.failures = 0
		return
	}
	cb.probeWins++
	if cb.state == StateHalfOpen && cb.probeWins >= cb.halfOpenMax {
		cb.state = StateClosed
		cb.failures = 0
		slog.Info("circuit breaker closed", "name", cb.name)
	}
}

func (cb *CircuitBreaker) trip() {
	cb.state = StateOpen
	cb.openedAt = cb.now()
	cb.failures = 0
	cb.probes, cb.probeWins = 0, 0
}

// State returns the current [State]. An open breaker whose timeout has
// passed reports [StateHalfOpen]; the transition itself happens on the next
// call to Execute.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker closed and clears its counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.failures = 0
	cb.probes, cb.probeWins = 0, 0
	slog.Info("circuit breaker manually reset", "name", cb.name)
}
