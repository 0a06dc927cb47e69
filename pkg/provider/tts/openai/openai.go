// Package openai provides a TTS provider backed by the OpenAI audio/speech
// endpoint.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/MrWong99/vocabox/pkg/audio"
	"github.com/MrWong99/vocabox/pkg/provider/tts"
)

const (
	// DefaultModel is the default OpenAI speech model.
	DefaultModel = "gpt-4o-mini-tts"

	// DefaultVoice is used when a request does not name one.
	DefaultVoice = "alloy"

	// DefaultResponseFormat yields headerless 16-bit PCM at 24 kHz mono.
	DefaultResponseFormat = "pcm"

	maxAudioBytes = 32 << 20
)

// playableFormats are the response formats the playback decoders accept.
// OpenAI also offers aac and flac, which nothing downstream can decode.
var playableFormats = []string{"pcm", "wav", "mp3", "opus"}

// builtinVoices is the fixed OpenAI voice catalogue.
var builtinVoices = []string{
	"alloy", "ash", "ballad", "coral", "echo", "fable", "nova", "onyx", "sage", "shimmer", "verse",
}

var _ tts.Provider = (*Provider)(nil)

// Provider implements tts.Provider using the OpenAI API.
type Provider struct {
	client       oai.Client
	model        string
	format       string
	instructions string
}

// config holds optional configuration for the provider.
type config struct {
	baseURL      string
	organization string
	timeout      time.Duration
	format       string
	instructions string
	maxRetries   int
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithOrganization sets the OpenAI organization ID on all requests.
func WithOrganization(org string) Option {
	return func(c *config) {
		c.organization = org
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithResponseFormat selects the audio encoding: "pcm" (default), "wav",
// "mp3" or "opus". New rejects anything else.
func WithResponseFormat(format string) Option {
	return func(c *config) {
		c.format = format
	}
}

// WithInstructions sets delivery instructions, e.g. "speak slowly and
// clearly". Ignored by the tts-1 models.
func WithInstructions(s string) Option {
	return func(c *config) {
		c.instructions = s
	}
}

// WithMaxRetries sets how often the client retries failed requests.
func WithMaxRetries(n int) Option {
	return func(c *config) {
		c.maxRetries = n
	}
}

// New constructs a new OpenAI TTS Provider. If model is empty, DefaultModel
// is used.
func New(apiKey string, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai tts: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := &config{format: DefaultResponseFormat, maxRetries: -1}
	for _, o := range opts {
		o(cfg)
	}
	if !slices.Contains(playableFormats, cfg.format) {
		return nil, fmt.Errorf("openai tts: unsupported response format %q (want one of %s)",
			cfg.format, strings.Join(playableFormats, ", "))
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.organization != "" {
		reqOpts = append(reqOpts, option.WithOrganization(cfg.organization))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}
	if cfg.maxRetries >= 0 {
		reqOpts = append(reqOpts, option.WithMaxRetries(cfg.maxRetries))
	}

	return &Provider{
		client:       oai.NewClient(reqOpts...),
		model:        model,
		format:       cfg.format,
		instructions: cfg.instructions,
	}, nil
}

// Synthesize implements tts.Provider. With the default "pcm" format the
// payload is headerless PCM; every other format yields a container file.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) (audio.Payload, error) {
	if strings.TrimSpace(text) == "" {
		return "", errors.New("openai tts: text must not be empty")
	}
	voiceID := voice.ID
	if voiceID == "" {
		voiceID = DefaultVoice
	}

	params := oai.AudioSpeechNewParams{
		Input:          text,
		Model:          oai.SpeechModel(p.model),
		Voice:          oai.AudioSpeechNewParamsVoice(voiceID),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormat(p.format),
	}
	if p.instructions != "" {
		params.Instructions = param.NewOpt(p.instructions)
	}
	if voice.SpeedFactor > 0 {
		params.Speed = param.NewOpt(voice.SpeedFactor)
	}

	resp, err := p.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai tts: synthesize: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes))
	if err != nil {
		return "", fmt.Errorf("openai tts: read audio: %w", err)
	}
	if len(data) == 0 {
		return "", errors.New("openai tts: empty audio response")
	}
	return audio.EncodePayload(data), nil
}

// ListVoices implements tts.Provider. OpenAI has no voices endpoint, so the
// built-in catalogue is returned.
func (p *Provider) ListVoices(_ context.Context) ([]tts.VoiceProfile, error) {
	profiles := make([]tts.VoiceProfile, 0, len(builtinVoices))
	for _, v := range builtinVoices {
		profiles = append(profiles, tts.VoiceProfile{
			ID:       v,
			Name:     v,
			Provider: "openai",
			Metadata: map[string]string{"model": p.model},
		})
	}
	return profiles, nil
}

// ModelID returns the configured speech model.
func (p *Provider) ModelID() string {
	return p.model
}
