// Package tts defines the Provider interface for text-to-speech backends.
//
// A provider turns a short piece of text (usually a single word or an
// example sentence) into an [audio.Payload]. Payloads are opaque: some
// backends return headerless 16-bit PCM, others a complete WAV, MP3 or Ogg
// file. Consumers classify the bytes themselves with [audio.Classify].
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"

	"github.com/MrWong99/vocabox/pkg/audio"
)

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders text with voice and returns the complete audio as a
	// base64 payload. An empty voice ID selects the provider's default voice.
	//
	// Returns an error if text is empty, the backend cannot be reached, or
	// ctx is cancelled before synthesis completes.
	Synthesize(ctx context.Context, text string, voice VoiceProfile) (audio.Payload, error)

	// ListVoices returns all voice profiles available from this provider.
	ListVoices(ctx context.Context) ([]VoiceProfile, error)
}
