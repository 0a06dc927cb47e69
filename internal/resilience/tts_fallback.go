package resilience

import (
	"context"

	"github.com/MrWong99/vocabox/pkg/audio"
	"github.com/MrWong99/vocabox/pkg/provider/tts"
)

// TTSFallback implements [tts.Provider] with failover across several TTS
// backends, each behind its own circuit breaker.
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]
}

var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback creates a [TTSFallback] with primary as the preferred backend.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers another backend after those already added.
func (f *TTSFallback) AddFallback(name string, provider tts.Provider) {
	f.group.AddFallback(name, provider)
}

// Synthesize returns the payload of the first backend that succeeds.
//
// When voice.Provider names a backend, every other backend receives the
// profile with its ID cleared and so uses its own default voice.
func (f *TTSFallback) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) (audio.Payload, error) {
	return executeNamed(ctx, f.group, func(ctx context.Context, name string, p tts.Provider) (audio.Payload, error) {
		v := voice
		if v.Provider != "" && v.Provider != name {
			v.ID = ""
		}
		return p.Synthesize(ctx, text, v)
	})
}

// ListVoices returns the voices of the first healthy backend.
func (f *TTSFallback) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	return ExecuteWithResult(ctx, f.group, func(ctx context.Context, p tts.Provider) ([]tts.VoiceProfile, error) {
		return p.ListVoices(ctx)
	})
}

// Available reports whether any backend's breaker admits calls.
func (f *TTSFallback) Available() bool {
	return f.group.Available()
}

// States reports each backend's breaker state keyed by name.
func (f *TTSFallback) States() map[string]State {
	return f.group.States()
}
