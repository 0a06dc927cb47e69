package history

import "context"

// DefaultListLimit caps List when the caller passes a non-positive limit.
const DefaultListLimit = 50

// Store persists cards. Implementations must be safe for concurrent use.
type Store interface {
	// Save validates c and inserts or replaces it. An empty ID is filled
	// with a new UUID and a zero CreatedAt with the current time; both are
	// written back into c.
	Save(ctx context.Context, c *Card) error

	// Get returns the card with id, or (nil, nil) if there is none.
	Get(ctx context.Context, id string) (*Card, error)

	// List returns up to limit cards, newest first. A non-positive limit
	// means [DefaultListLimit].
	List(ctx context.Context, limit int) ([]Card, error)

	// Delete removes the card with id. Deleting a missing card is not an
	// error.
	Delete(ctx context.Context, id string) error

	// Ping reports whether the backing storage is reachable.
	Ping(ctx context.Context) error
}
