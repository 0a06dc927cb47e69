// Package gemini provides a TTS provider backed by the Gemini
// generateContent REST endpoint with audio output. Gemini returns headerless
// 16-bit PCM at 24 kHz mono as base64 inline data; that string is passed
// through as the payload without re-encoding.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrWong99/vocabox/pkg/audio"
	"github.com/MrWong99/vocabox/pkg/provider/tts"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com"
	defaultModel   = "gemini-2.5-flash-preview-tts"
	defaultVoice   = "Kore"
	defaultTimeout = 60 * time.Second

	maxResponseBytes = 32 << 20
)

// prebuiltVoices is the catalogue of Gemini prebuilt voices.
var prebuiltVoices = []string{
	"Zephyr", "Puck", "Charon", "Kore", "Fenrir", "Leda", "Orus", "Aoede",
	"Callirrhoe", "Autonoe", "Enceladus", "Iapetus", "Umbriel", "Algieba",
	"Despina", "Erinome", "Algenib", "Rasalgethi", "Laomedeia", "Achernar",
	"Alnilam", "Schedar", "Gacrux", "Pulcherrima", "Achird", "Zubenelgenubi",
	"Vindemiatrix", "Sadachbia", "Sadaltager", "Sulafat",
}

var _ tts.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Gemini Provider.
type Option func(*Provider)

// WithModel sets the TTS-capable Gemini model.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithBaseURL overrides the API base URL.
func WithBaseURL(base string) Option {
	return func(p *Provider) {
		p.baseURL = strings.TrimRight(base, "/")
	}
}

// WithDefaultVoice sets the prebuilt voice used when a request names none.
func WithDefaultVoice(name string) Option {
	return func(p *Provider) {
		p.defaultVoice = name
	}
}

// WithTimeout sets the per-request HTTP timeout. Defaults to 60 s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// Provider implements tts.Provider backed by Gemini.
type Provider struct {
	apiKey       string
	model        string
	baseURL      string
	defaultVoice string
	httpClient   *http.Client
}

// New creates a Gemini Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:       apiKey,
		model:        defaultModel,
		baseURL:      defaultBaseURL,
		defaultVoice: defaultVoice,
		httpClient:   &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// ---- request/response types ----

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type prebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

type voiceConfig struct {
	PrebuiltVoiceConfig prebuiltVoiceConfig `json:"prebuiltVoiceConfig"`
}

type speechConfig struct {
	VoiceConfig  voiceConfig `json:"voiceConfig"`
	LanguageCode string      `json:"languageCode,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string     `json:"responseModalities"`
	SpeechConfig       speechConfig `json:"speechConfig"`
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) (audio.Payload, error) {
	if strings.TrimSpace(text) == "" {
		return "", errors.New("gemini: text must not be empty")
	}
	name := voice.ID
	if name == "" {
		name = p.defaultVoice
	}

	body, err := json.Marshal(generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: text}}}},
		GenerationConfig: generationConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: speechConfig{
				VoiceConfig:  voiceConfig{PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: name}},
				LanguageCode: voice.Language,
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("gemini: marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", p.baseURL, url.PathEscape(p.model))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("gemini: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("gemini: generateContent: %w", err)
	}
	defer resp.Body.Close()

	var gr generateResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&gr); err != nil {
		return "", fmt.Errorf("gemini: decode response (status %d): %w", resp.StatusCode, err)
	}
	if gr.Error != nil {
		return "", fmt.Errorf("gemini: generateContent: %s (%d %s)", gr.Error.Message, gr.Error.Code, gr.Error.Status)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gemini: generateContent returned status %d", resp.StatusCode)
	}
	return firstAudio(gr)
}

// firstAudio returns the first inline audio part of the first candidate.
func firstAudio(gr generateResponse) (audio.Payload, error) {
	if len(gr.Candidates) == 0 {
		return "", errors.New("gemini: response has no candidates")
	}
	for _, pt := range gr.Candidates[0].Content.Parts {
		if pt.InlineData != nil && pt.InlineData.Data != "" {
			return audio.Payload(pt.InlineData.Data), nil
		}
	}
	return "", fmt.Errorf("gemini: response has no audio (finish reason %q)", gr.Candidates[0].FinishReason)
}

// ListVoices implements tts.Provider with the prebuilt voice catalogue.
func (p *Provider) ListVoices(_ context.Context) ([]tts.VoiceProfile, error) {
	profiles := make([]tts.VoiceProfile, 0, len(prebuiltVoices))
	for _, v := range prebuiltVoices {
		profiles = append(profiles, tts.VoiceProfile{
			ID:       v,
			Name:     v,
			Provider: "gemini",
			Metadata: map[string]string{"type": "prebuilt"},
		})
	}
	return profiles, nil
}
