package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when every entry in a [FallbackGroup] failed or
// was skipped by an open breaker.
var ErrAllFailed = errors.New("all providers failed")

// FallbackConfig configures the breaker created for each entry of a
// [FallbackGroup].
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

type fallbackEntry[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup holds a primary and zero or more fallbacks of the same type.
// Entries are tried in registration order; entries with an open breaker are
// skipped. Entries must all be added before the group is shared.
type FallbackGroup[T any] struct {
	entries []fallbackEntry[T]
	cfg     FallbackConfig
}

// NewFallbackGroup creates a [FallbackGroup] with primary as the first entry.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	fg := &FallbackGroup[T]{cfg: cfg}
	fg.AddFallback(primaryName, primary)
	return fg
}

// AddFallback appends an entry after those already registered.
func (fg *FallbackGroup[T]) AddFallback(name string, fallback T) {
	cbCfg := fg.cfg.CircuitBreaker
	cbCfg.Name = name
	fg.entries = append(fg.entries, fallbackEntry[T]{
		name:    name,
		value:   fallback,
		breaker: NewCircuitBreaker(cbCfg),
	})
}

// Names returns the entry names in try order.
func (fg *FallbackGroup[T]) Names() []string {
	names := make([]string, len(fg.entries))
	for i, e := range fg.entries {
		names[i] = e.name
	}
	return names
}

// States reports the breaker state of every entry, keyed by name.
func (fg *FallbackGroup[T]) States() map[string]State {
	states := make(map[string]State, len(fg.entries))
	for _, e := range fg.entries {
		states[e.name] = e.breaker.State()
	}
	return states
}

// Available reports whether at least one entry would currently be tried.
func (fg *FallbackGroup[T]) Available() bool {
	for _, e := range fg.entries {
		if e.breaker.State() != StateOpen {
			return true
		}
	}
	return false
}

// Execute tries fn against each entry until one succeeds.
func (fg *FallbackGroup[T]) Execute(ctx context.Context, fn func(context.Context, T) error) error {
	_, err := ExecuteWithResult(ctx, fg, func(ctx context.Context, v T) (struct{}, error) {
		return struct{}{}, fn(ctx, v)
	})
	return err
}

// ExecuteWithResult tries fn against each entry until one succeeds and
// returns its result. Once ctx is done no further entries are tried and the
// context error is returned as-is.
//
// Errors from every attempted entry are joined under [ErrAllFailed].
func ExecuteWithResult[T, R any](ctx context.Context, fg *FallbackGroup[T], fn func(context.Context, T) (R, error)) (R, error) {
	return executeNamed(ctx, fg, func(ctx context.Context, _ string, v T) (R, error) {
		return fn(ctx, v)
	})
}

// executeNamed is ExecuteWithResult with the entry name passed to fn.
func executeNamed[T, R any](ctx context.Context, fg *FallbackGroup[T], fn func(context.Context, string, T) (R, error)) (R, error) {
	var (
		zero R
		errs []error
	)
	for i := range fg.entries {
		entry := &fg.entries[i]
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		var result R
		err := entry.breaker.Execute(ctx, func(ctx context.Context) error {
			var innerErr error
			result, innerErr = fn(ctx, entry.name, entry.value)
			return innerErr
		})
		if err == nil {
			return result, nil
		}
		if errors.Is(err, ErrCircuitOpen) {
			slog.DebugContext(ctx, "skipping provider, circuit open", "provider", entry.name)
		} else {
			slog.WarnContext(ctx, "provider failed, trying next", "provider", entry.name, "err", err)
		}
		errs = append(errs, fmt.Errorf("%s: %w", entry.name, err))
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, errors.Join(errs...))
}
