// Package health provides HTTP liveness and readiness handlers.
//
// /healthz always answers 200 while the process can serve HTTP. /readyz
// answers 200 only when every registered [Checker] passes. Both respond with
// a JSON object carrying a top-level "status" ("ok" or "fail") and, for
// readiness, a "checks" map with one entry per checker.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 5 * time.Second

// Checker is a named dependency probe. Check returns nil when the dependency
// is usable.
type Checker struct {
	// Name appears as a key in the readiness response, e.g. "history".
	Name string

	// Check must respect context cancellation.
	Check func(ctx context.Context) error
}

// Pinger is implemented by anything that can verify its own connectivity,
// such as a pgx pool or a history store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingChecker wraps p as a [Checker].
func PingChecker(name string, p Pinger) Checker {
	return Checker{Name: name, Check: p.Ping}
}

// ErrNotConfigured is reported by [ConfiguredChecker] when the dependency
// is absent.
var ErrNotConfigured = errors.New("not configured")

// ConfiguredChecker reports [ErrNotConfigured] whenever present returns
// false. present is evaluated on every probe so hot-reloaded dependencies
// are seen immediately.
func ConfiguredChecker(name string, present func() bool) Checker {
	return Checker{Name: name, Check: func(context.Context) error {
		if !present() {
			return ErrNotConfigured
		}
		return nil
	}}
}

type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves the probe endpoints. The checker list is fixed at
// construction time.
type Handler struct {
	checkers []Checker
}

// New creates a [Handler] evaluating checkers on each readiness probe.
func New(checkers ...Checker) *Handler {
	return &Handler{checkers: append([]Checker(nil), checkers...)}
}

// Healthz is the liveness probe.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz runs all checkers concurrently, each with its own [checkTimeout]
// deadline derived from the request context.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	var (
		mu     sync.Mutex
		checks = make(map[string]string, len(h.checkers))
		allOK  = true
	)

	var g errgroup.Group
	for _, c := range h.checkers {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
			defer cancel()
			err := c.Check(ctx)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				checks[c.Name] = "fail: " + err.Error()
				allOK = false
				return nil
			}
			checks[c.Name] = "ok"
			return nil
		})
	}
	_ = g.Wait()

	res := result{Status: "ok", Checks: checks}
	status := http.StatusOK
	if !allOK {
		res.Status = "fail"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}

// Register mounts GET /healthz and GET /readyz on r.
func (h *Handler) Register(r chi.Router) {
	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
