package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/vocabox/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// TTSFactory builds a TTS provider from its configuration entry.
type TTSFactory func(ProviderEntry) (tts.Provider, error)

// Registry maps provider names to their constructor functions.
// It is safe for concurrent use.
type Registry struct {
	mu  sync.RWMutex
	tts map[string]TTSFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		tts: make(map[string]TTSFactory),
	}
}

// RegisterTTS registers a TTS provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterTTS(name string, factory TTSFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts[name] = factory
}

// CreateTTS instantiates a TTS provider using the factory registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) {
	r.mu.RLock()
	factory, ok := r.tts[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: tts/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// TTSNames returns the registered TTS provider names in sorted order.
func (r *Registry) TTSNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tts))
	for n := range r.tts {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}
