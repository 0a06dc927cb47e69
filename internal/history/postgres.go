package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/MrWong99/vocabox/pkg/audio"
)

// Schema is the DDL for the cards table. Apply it with
// [PostgresStore.Migrate] or during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS cards (
    id         TEXT PRIMARY KEY,
    word       TEXT NOT NULL,
    phonetic   TEXT NOT NULL DEFAULT '',
    meaning    TEXT NOT NULL DEFAULT '',
    roots      JSONB NOT NULL DEFAULT '[]',
    mnemonic   TEXT NOT NULL DEFAULT '',
    audio      TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_cards_created_at ON cards(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_cards_word ON cards(lower(word));
`

// DB is the subset of pgx used by [PostgresStore]. *pgxpool.Pool and
// *pgx.Conn both satisfy it.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
}

// PostgresStore is a [Store] backed by PostgreSQL. Roots are stored as
// JSONB, audio as its base64 text.
type PostgresStore struct {
	db  DB
	now func() time.Time
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore returns a store using db. Call [PostgresStore.Migrate]
// before the first query.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

// Migrate executes [Schema].
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("history: migrate: %w", err)
	}
	return nil
}

// Save implements [Store] as an upsert keyed on the card ID.
func (s *PostgresStore) Save(ctx context.Context, c *Card) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now().UTC()
	}
	roots, err := json.Marshal(emptyRoots(c.Roots))
	if err != nil {
		return fmt.Errorf("history: marshal roots: %w", err)
	}

	const query = `
		INSERT INTO cards (id, word, phonetic, meaning, roots, mnemonic, audio, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO UPDATE SET
			word = EXCLUDED.word,
			phonetic = EXCLUDED.phonetic,
			meaning = EXCLUDED.meaning,
			roots = EXCLUDED.roots,
			mnemonic = EXCLUDED.mnemonic,
			audio = EXCLUDED.audio
		RETURNING created_at`

	err = s.db.QueryRow(ctx, query,
		c.ID, c.Word, c.Phonetic, c.Meaning, roots, c.Mnemonic, string(c.Audio), c.CreatedAt,
	).Scan(&c.CreatedAt)
	if err != nil {
		return fmt.Errorf("history: save %q: %w", c.ID, err)
	}
	return nil
}

const selectColumns = `id, word, phonetic, meaning, roots, mnemonic, audio, created_at`

// Get implements [Store].
func (s *PostgresStore) Get(ctx context.Context, id string) (*Card, error) {
	row := s.db.QueryRow(ctx, `SELECT `+selectColumns+` FROM cards WHERE id = $1`, id)
	c, err := scanCard(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("history: get %q: %w", id, err)
	}
	return c, nil
}

// List implements [Store].
func (s *PostgresStore) List(ctx context.Context, limit int) ([]Card, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.db.Query(ctx,
		`SELECT `+selectColumns+` FROM cards ORDER BY created_at DESC, id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: list: %w", err)
	}
	defer rows.Close()

	var cards []Card
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("history: list scan: %w", err)
		}
		cards = append(cards, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: list: %w", err)
	}
	return cards, nil
}

// Delete implements [Store].
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM cards WHERE id = $1`, id); err != nil {
		return fmt.Errorf("history: delete %q: %w", id, err)
	}
	return nil
}

// Ping implements [Store].
func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("history: ping: %w", err)
	}
	return nil
}

// scanCard reads one row in selectColumns order.
func scanCard(row pgx.Row) (*Card, error) {
	var (
		c         Card
		rootsJSON []byte
		payload   string
	)
	if err := row.Scan(&c.ID, &c.Word, &c.Phonetic, &c.Meaning, &rootsJSON, &c.Mnemonic, &payload, &c.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(rootsJSON, &c.Roots); err != nil {
		return nil, fmt.Errorf("unmarshal roots: %w", err)
	}
	if len(c.Roots) == 0 {
		c.Roots = nil
	}
	c.Audio = audio.Payload(payload)
	return &c, nil
}
