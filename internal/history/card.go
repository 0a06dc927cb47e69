// Package history persists the word cards a learner has looked up, together
// with the pronunciation audio that was synthesised for them.
//
// Two [Store] implementations are provided: [MemStore], used when no
// database is configured, and [PostgresStore], backed by pgx.
package history

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrWong99/vocabox/pkg/audio"
)

// Root is one morpheme of a word's etymology, e.g. {"bene", "well"}.
type Root struct {
	Part    string `json:"part"`
	Meaning string `json:"meaning"`
}

// Card is a single looked-up word.
type Card struct {
	ID       string `json:"id"`
	Word     string `json:"word"`
	Phonetic string `json:"phonetic,omitempty"`
	Meaning  string `json:"meaning,omitempty"`
	Roots    []Root `json:"roots,omitempty"`
	Mnemonic string `json:"mnemonic,omitempty"`

	// Audio is the pronunciation payload exactly as the TTS backend
	// returned it. It may be empty.
	Audio audio.Payload `json:"audio,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Validate reports every problem with c.
func (c *Card) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Word) == "" {
		errs = append(errs, errors.New("word must not be empty"))
	}
	for i, r := range c.Roots {
		if strings.TrimSpace(r.Part) == "" {
			errs = append(errs, fmt.Errorf("roots[%d]: part must not be empty", i))
		}
	}
	if c.Audio != "" {
		if _, err := c.Audio.Bytes(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("history: invalid card: %w", errors.Join(errs...))
	}
	return nil
}

// emptyRoots keeps the JSONB column "[]" rather than "null".
func emptyRoots(r []Root) []Root {
	if r == nil {
		return []Root{}
	}
	return r
}
