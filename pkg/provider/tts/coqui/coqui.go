// Package coqui provides a TTS provider backed by a locally running Coqui
// server. The server's WAV response is returned unchanged as the payload, so
// downstream consumers see a self-describing container file.
//
// Two API modes are supported:
//
//   - APIModeStandard (default): the standard Coqui TTS server. Synthesis is
//     GET /api/tts with query parameters; voices come from GET /details.
//
//   - APIModeXTTS: the Coqui XTTS v2 API server. Synthesis is
//     POST /tts_to_audio/ with a JSON body; voices come from
//     GET /studio_speakers.
package coqui

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/MrWong99/vocabox/pkg/audio"
	"github.com/MrWong99/vocabox/pkg/provider/tts"
)

var _ tts.Provider = (*Provider)(nil)

const (
	defaultLanguage        = "en"
	defaultTimeout         = 30 * time.Second
	ttsEndpoint            = "/tts_to_audio/"
	studioSpeakersEndpoint = "/studio_speakers"
	apiTTSEndpoint         = "/api/tts"
	detailsEndpoint        = "/details"

	// maxWAVBytes bounds a single synthesis response.
	maxWAVBytes = 32 << 20
)

// APIMode selects which Coqui server API the provider will target.
type APIMode string

const (
	// APIModeXTTS targets the Coqui XTTS v2 API server (/tts_to_audio/).
	APIModeXTTS APIMode = "xtts"

	// APIModeStandard targets the standard Coqui TTS server (/api/tts).
	APIModeStandard APIMode = "standard"
)

// Option is a functional option for configuring a Coqui Provider.
type Option func(*Provider)

// WithLanguage sets the language code sent to the server. Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithTimeout sets the per-request HTTP timeout. Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// WithAPIMode sets the server API mode.
func WithAPIMode(mode APIMode) Option {
	return func(p *Provider) {
		p.apiMode = mode
	}
}

// Provider implements tts.Provider backed by a Coqui TTS server.
type Provider struct {
	serverURL  string
	language   string
	httpClient *http.Client
	apiMode    APIMode
}

// New creates a Provider that targets the server at serverURL
// (e.g., "http://localhost:5002").
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("coqui: serverURL must not be empty")
	}
	p := &Provider{
		serverURL: strings.TrimRight(serverURL, "/"),
		language:  defaultLanguage,
		apiMode:   APIModeStandard,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// ttsRequest is the JSON body sent to POST /tts_to_audio/ (XTTS mode).
type ttsRequest struct {
	Text       string `json:"text"`
	SpeakerWav string `json:"speaker_wav"`
	Language   string `json:"language"`
}

// detailsResponse is the JSON body returned by GET /details (standard mode).
type detailsResponse struct {
	ModelName string   `json:"model_name"`
	Language  string   `json:"language"`
	Speakers  []string `json:"speakers"`
}

// Synthesize renders text and returns the server's WAV file as the payload.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) (audio.Payload, error) {
	if strings.TrimSpace(text) == "" {
		return "", errors.New("coqui: text must not be empty")
	}
	if voice.ID == "" && p.apiMode == APIModeXTTS {
		return "", errors.New("coqui: voice.ID must not be empty (required for XTTS mode)")
	}

	req, err := p.newSynthesisRequest(ctx, text, voice)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "audio/wav")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("coqui: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("coqui: %s %s returned status %d", req.Method, req.URL.Path, resp.StatusCode)
	}

	wav, err := io.ReadAll(io.LimitReader(resp.Body, maxWAVBytes))
	if err != nil {
		return "", fmt.Errorf("coqui: read WAV response: %w", err)
	}
	if audio.Classify(wav) != audio.ContainerFile {
		return "", fmt.Errorf("coqui: response is not an audio file (%d bytes)", len(wav))
	}
	return audio.EncodePayload(wav), nil
}

func (p *Provider) newSynthesisRequest(ctx context.Context, text string, voice tts.VoiceProfile) (*http.Request, error) {
	lang := p.language
	if voice.Language != "" {
		lang = voice.Language
	}

	if p.apiMode == APIModeXTTS {
		data, err := json.Marshal(ttsRequest{Text: text, SpeakerWav: voice.ID, Language: lang})
		if err != nil {
			return nil, fmt.Errorf("coqui: marshal tts request: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+ttsEndpoint, bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("coqui: create tts request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}

	params := url.Values{}
	params.Set("text", text)
	if voice.ID != "" {
		params.Set("speaker_id", voice.ID)
	}
	if lang != "" {
		params.Set("language_id", lang)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+apiTTSEndpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("coqui: create tts request: %w", err)
	}
	return req, nil
}

// ListVoices retrieves the available voices. XTTS servers list studio
// speakers; standard servers list the speakers of the loaded model, or the
// model itself for single-speaker models.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	if p.apiMode == APIModeStandard {
		return p.listVoicesStandard(ctx)
	}
	return p.listVoicesXTTS(ctx)
}

func (p *Provider) getJSON(ctx context.Context, endpoint string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("coqui: create list-voices request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("coqui: GET %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("coqui: GET %s returned status %d", endpoint, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("coqui: decode %s: %w", endpoint, err)
	}
	return nil
}

func (p *Provider) listVoicesXTTS(ctx context.Context) ([]tts.VoiceProfile, error) {
	var raw map[string]json.RawMessage
	if err := p.getJSON(ctx, studioSpeakersEndpoint, &raw); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	slices.Sort(names)

	profiles := make([]tts.VoiceProfile, 0, len(names))
	for _, name := range names {
		profiles = append(profiles, tts.VoiceProfile{
			ID:       name,
			Name:     name,
			Provider: "coqui",
			Metadata: map[string]string{"type": "studio"},
		})
	}
	return profiles, nil
}

func (p *Provider) listVoicesStandard(ctx context.Context) ([]tts.VoiceProfile, error) {
	var details detailsResponse
	if err := p.getJSON(ctx, detailsEndpoint, &details); err != nil {
		return nil, err
	}

	if len(details.Speakers) > 0 {
		speakers := slices.Sorted(slices.Values(details.Speakers))
		profiles := make([]tts.VoiceProfile, 0, len(speakers))
		for _, spk := range speakers {
			profiles = append(profiles, tts.VoiceProfile{
				ID:       spk,
				Name:     spk,
				Provider: "coqui",
				Language: details.Language,
				Metadata: map[string]string{
					"type":       "speaker",
					"model_name": details.ModelName,
				},
			})
		}
		return profiles, nil
	}

	name := details.ModelName
	if name == "" {
		name = "default"
	}
	return []tts.VoiceProfile{{
		Name:     name,
		Provider: "coqui",
		Language: details.Language,
		Metadata: map[string]string{
			"type":       "single-speaker",
			"model_name": name,
		},
	}}, nil
}
