package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/vocabox/pkg/audio"
	"github.com/MrWong99/vocabox/pkg/provider/tts"
)

// InstrumentedTTS decorates a [tts.Provider] with a span and metrics per
// call.
type InstrumentedTTS struct {
	name    string
	next    tts.Provider
	metrics *Metrics
}

var _ tts.Provider = (*InstrumentedTTS)(nil)

// InstrumentTTS wraps p. name is reported as the provider attribute.
func InstrumentTTS(name string, p tts.Provider, m *Metrics) *InstrumentedTTS {
	return &InstrumentedTTS{name: name, next: p, metrics: m}
}

// Synthesize implements [tts.Provider].
func (i *InstrumentedTTS) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) (audio.Payload, error) {
	ctx, span := StartSpan(ctx, "tts.synthesize", trace.WithAttributes(
		attribute.String("provider", i.name),
		attribute.String("voice.id", voice.ID),
		attribute.Int("text.length", len(text)),
	))
	start := time.Now()
	payload, err := i.next.Synthesize(ctx, text, voice)
	i.metrics.RecordSynthesis(ctx, i.name, time.Since(start), err)
	if err == nil {
		span.SetAttributes(attribute.Int("payload.length", len(payload)))
	}
	EndSpan(span, err)
	return payload, err
}

// ListVoices implements [tts.Provider].
func (i *InstrumentedTTS) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	ctx, span := StartSpan(ctx, "tts.list_voices", trace.WithAttributes(attribute.String("provider", i.name)))
	voices, err := i.next.ListVoices(ctx)
	status := "ok"
	if err != nil {
		status = "error"
		i.metrics.RecordProviderError(ctx, i.name, "tts.voices")
	}
	i.metrics.RecordProviderRequest(ctx, i.name, "tts.voices", status)
	EndSpan(span, err)
	return voices, err
}
