// Package mock provides a test double for the tts.Provider interface.
//
// Use Provider to return controlled payloads to consumers and to verify the
// text and VoiceProfile passed to the TTS backend.
//
// Example:
//
//	p := &mock.Provider{
//	    SynthesizeResult: audio.EncodePayload(pcm),
//	    ListVoicesResult: []tts.VoiceProfile{{ID: "v1", Name: "Alice"}},
//	}
//	payload, _ := p.Synthesize(ctx, "apple", voice)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/vocabox/pkg/audio"
	"github.com/MrWong99/vocabox/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	// Ctx is the context passed to Synthesize.
	Ctx context.Context
	// Text is the text passed to Synthesize.
	Text string
	// Voice is the VoiceProfile passed to Synthesize.
	Voice tts.VoiceProfile
}

// ListVoicesCall records a single invocation of ListVoices.
type ListVoicesCall struct {
	// Ctx is the context passed to ListVoices.
	Ctx context.Context
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// SynthesizeResult is returned by Synthesize.
	SynthesizeResult audio.Payload

	// SynthesizeErr, if non-nil, is returned as the error from Synthesize.
	SynthesizeErr error

	// ListVoicesResult is returned by ListVoices.
	ListVoicesResult []tts.VoiceProfile

	// ListVoicesErr, if non-nil, is returned as the error from ListVoices.
	ListVoicesErr error

	// --- Call records ---

	// SynthesizeCalls records every call to Synthesize in order.
	SynthesizeCalls []SynthesizeCall

	// ListVoicesCalls records every call to ListVoices in order.
	ListVoicesCalls []ListVoicesCall
}

// Synthesize records the call and returns SynthesizeResult, SynthesizeErr.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) (audio.Payload, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = append(p.SynthesizeCalls, SynthesizeCall{Ctx: ctx, Text: text, Voice: voice})
	if p.SynthesizeErr != nil {
		return "", p.SynthesizeErr
	}
	return p.SynthesizeResult, nil
}

// ListVoices records the call and returns ListVoicesResult, ListVoicesErr.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ListVoicesCalls = append(p.ListVoicesCalls, ListVoicesCall{Ctx: ctx})
	return p.ListVoicesResult, p.ListVoicesErr
}

// CallCountSynthesize returns the number of Synthesize calls. Thread-safe.
func (p *Provider) CallCountSynthesize() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.SynthesizeCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = nil
	p.ListVoicesCalls = nil
}

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)
