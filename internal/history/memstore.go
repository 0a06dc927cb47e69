package history

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore is an in-process [Store]. Its contents are lost on restart.
type MemStore struct {
	mu    sync.RWMutex
	cards map[string]Card
	now   func() time.Time
}

var _ Store = (*MemStore)(nil)

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{cards: make(map[string]Card), now: time.Now}
}

// Save implements [Store].
func (s *MemStore) Save(ctx context.Context, c *Card) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.Validate(); err != nil {
		return err
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now().UTC()
	}
	stored := *c
	stored.Roots = slices.Clone(c.Roots)

	s.mu.Lock()
	s.cards[c.ID] = stored
	s.mu.Unlock()
	return nil
}

// Get implements [Store].
func (s *MemStore) Get(_ context.Context, id string) (*Card, error) {
	s.mu.RLock()
	c, ok := s.cards[id]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	c.Roots = slices.Clone(c.Roots)
	return &c, nil
}

// List implements [Store].
func (s *MemStore) List(_ context.Context, limit int) ([]Card, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	s.mu.RLock()
	out := make([]Card, 0, len(s.cards))
	for _, c := range s.cards {
		c.Roots = slices.Clone(c.Roots)
		out = append(out, c)
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b Card) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Delete implements [Store].
func (s *MemStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.cards, id)
	s.mu.Unlock()
	return nil
}

// Ping implements [Store]; a MemStore is always reachable.
func (s *MemStore) Ping(context.Context) error { return nil }
