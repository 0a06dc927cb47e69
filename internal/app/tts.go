package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/vocabox/internal/config"
	"github.com/MrWong99/vocabox/internal/observe"
	"github.com/MrWong99/vocabox/internal/resilience"
	"github.com/MrWong99/vocabox/pkg/audio"
	"github.com/MrWong99/vocabox/pkg/provider/tts"
)

// BuildTTS assembles the synthesis chain described by pc: every backend is
// instrumented and the primary plus its fallbacks sit behind per-backend
// circuit breakers. It returns nil, nil when no primary is configured.
//
// An unknown or failing primary is an error. A fallback that cannot be built
// is logged and left out of the chain.
func BuildTTS(pc config.ProvidersConfig, reg *config.Registry, m *observe.Metrics) (tts.Provider, error) {
	if pc.TTS.Name == "" {
		return nil, nil
	}
	primary, err := newTTS(pc.TTS, reg, m)
	if err != nil {
		return nil, fmt.Errorf("app: create tts provider %q: %w", pc.TTS.Name, err)
	}

	chain := resilience.NewTTSFallback(primary, pc.TTS.Name, resilience.FallbackConfig{})
	for _, entry := range pc.TTSFallbacks {
		p, err := newTTS(entry, reg, m)
		if err != nil {
			if errors.Is(err, config.ErrProviderNotRegistered) {
				slog.Warn("tts fallback not registered, skipping", "name", entry.Name)
			} else {
				slog.Warn("tts fallback could not be created, skipping", "name", entry.Name, "err", err)
			}
			continue
		}
		chain.AddFallback(entry.Name, p)
	}
	return chain, nil
}

func newTTS(entry config.ProviderEntry, reg *config.Registry, m *observe.Metrics) (tts.Provider, error) {
	p, err := reg.CreateTTS(entry)
	if err != nil {
		return nil, err
	}
	if entry.Voice != "" {
		p = defaultVoice{Provider: p, id: entry.Voice}
	}
	return observe.InstrumentTTS(entry.Name, p, m), nil
}

// defaultVoice fills in a configured voice ID when the request names none.
type defaultVoice struct {
	tts.Provider
	id string
}

func (d defaultVoice) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) (audio.Payload, error) {
	if voice.ID == "" {
		voice.ID = d.id
	}
	return d.Provider.Synthesize(ctx, text, voice)
}
