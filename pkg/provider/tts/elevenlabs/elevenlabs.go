// Package elevenlabs provides an ElevenLabs-backed TTS provider using the
// ElevenLabs stream-input WebSocket API. Audio chunks are collected into a
// single headerless PCM payload.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/coder/websocket"

	"github.com/MrWong99/vocabox/pkg/audio"
	"github.com/MrWong99/vocabox/pkg/provider/tts"
)

const (
	defaultWSBase    = "wss://api.elevenlabs.io"
	defaultAPIBase   = "https://api.elevenlabs.io"
	defaultModel     = "eleven_flash_v2_5"
	defaultOutputFmt = "pcm_24000"
	defaultVoiceID   = "21m00Tcm4TlvDq8ikWAM"
	maxResponseBytes = 16 << 20
	wsReadLimitBytes = 4 << 20
)

// Option is a functional option for configuring the ElevenLabs Provider.
type Option func(*Provider)

// WithModel sets the ElevenLabs model ID (e.g., "eleven_flash_v2_5").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithOutputFormat sets the audio output format. Only pcm_* formats produce
// payloads that the rest of the pipeline treats as raw PCM.
func WithOutputFormat(format string) Option {
	return func(p *Provider) {
		p.outputFormat = format
	}
}

// WithDefaultVoice sets the voice used when a request does not name one.
func WithDefaultVoice(id string) Option {
	return func(p *Provider) {
		p.defaultVoice = id
	}
}

// WithBaseURL overrides the HTTP API base URL. The WebSocket base is derived
// from it by swapping the scheme. Intended for tests and proxies.
func WithBaseURL(base string) Option {
	return func(p *Provider) {
		base = strings.TrimRight(base, "/")
		p.apiBase = base
		switch {
		case strings.HasPrefix(base, "https://"):
			p.wsBase = "wss://" + strings.TrimPrefix(base, "https://")
		case strings.HasPrefix(base, "http://"):
			p.wsBase = "ws://" + strings.TrimPrefix(base, "http://")
		default:
			p.wsBase = base
		}
	}
}

// WithHTTPClient sets the client used for REST calls.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements tts.Provider backed by the ElevenLabs streaming API.
type Provider struct {
	apiKey       string
	model        string
	outputFormat string
	defaultVoice string
	apiBase      string
	wsBase       string
	httpClient   *http.Client
}

var _ tts.Provider = (*Provider)(nil)

// New creates a new ElevenLabs Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:       apiKey,
		model:        defaultModel,
		outputFormat: defaultOutputFmt,
		defaultVoice: defaultVoiceID,
		apiBase:      defaultAPIBase,
		wsBase:       defaultWSBase,
		httpClient:   &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// ---- WebSocket message types ----

// textMessage is the JSON payload sent to ElevenLabs for each text fragment.
type textMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	Flush         bool           `json:"flush,omitempty"`
}

// voiceSettings mirrors the ElevenLabs voice_settings object.
type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Speed           float64 `json:"speed,omitempty"`
}

// audioResponse is the JSON message received from ElevenLabs over the WebSocket.
type audioResponse struct {
	Audio   string `json:"audio"` // base64-encoded PCM
	IsFinal bool   `json:"isFinal"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// boiMessage is the initial "begin of input" handshake.
type boiMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	XiAPIKey      string         `json:"xi_api_key"`
}

// Synthesize opens a WebSocket to ElevenLabs, sends text followed by the
// end-of-input marker, and concatenates every received audio chunk.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) (audio.Payload, error) {
	if strings.TrimSpace(text) == "" {
		return "", errors.New("elevenlabs: text must not be empty")
	}
	voiceID := voice.ID
	if voiceID == "" {
		voiceID = p.defaultVoice
	}

	conn, _, err := websocket.Dial(ctx, p.wsURL(voiceID), nil)
	if err != nil {
		return "", fmt.Errorf("elevenlabs: dial: %w", err)
	}
	defer conn.CloseNow()
	conn.SetReadLimit(wsReadLimitBytes)

	vs := &voiceSettings{Stability: 0.5, SimilarityBoost: 0.75, Speed: voice.SpeedFactor}
	msgs := []any{
		// ElevenLabs requires a non-empty first text value.
		boiMessage{Text: " ", VoiceSettings: vs, XiAPIKey: p.apiKey},
		textMessage{Text: text + " ", Flush: true},
		textMessage{Text: ""},
	}
	for _, m := range msgs {
		data, err := json.Marshal(m)
		if err != nil {
			return "", fmt.Errorf("elevenlabs: encode message: %w", err)
		}
		if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
			return "", fmt.Errorf("elevenlabs: send: %w", err)
		}
	}

	pcm, err := readAudio(ctx, conn)
	if err != nil {
		return "", err
	}
	conn.Close(websocket.StatusNormalClosure, "done")
	if len(pcm) == 0 {
		return "", errors.New("elevenlabs: no audio received")
	}
	return audio.EncodePayload(pcm), nil
}

// readAudio collects decoded audio chunks until the server signals the final
// message or closes the connection normally.
func readAudio(ctx context.Context, conn *websocket.Conn) ([]byte, error) {
	var pcm bytes.Buffer
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return pcm.Bytes(), nil
			}
			return nil, fmt.Errorf("elevenlabs: read: %w", err)
		}
		var resp audioResponse
		if err := json.Unmarshal(msg, &resp); err != nil {
			continue
		}
		if resp.Error != "" {
			return nil, fmt.Errorf("elevenlabs: server error: %s: %s", resp.Error, resp.Message)
		}
		if resp.Audio != "" {
			chunk, err := base64.StdEncoding.DecodeString(resp.Audio)
			if err != nil {
				return nil, fmt.Errorf("elevenlabs: decode audio chunk: %w", err)
			}
			pcm.Write(chunk)
		}
		if resp.IsFinal {
			return pcm.Bytes(), nil
		}
	}
}

// wsURL constructs the stream-input WebSocket URL for a voice.
func (p *Provider) wsURL(voiceID string) string {
	q := url.Values{}
	q.Set("model_id", p.model)
	q.Set("output_format", p.outputFormat)
	return fmt.Sprintf("%s/v1/text-to-speech/%s/stream-input?%s", p.wsBase, url.PathEscape(voiceID), q.Encode())
}

// ---- ListVoices ----

// voicesResponse is the top-level response from GET /v1/voices.
type voicesResponse struct {
	Voices []elevenLabsVoice `json:"voices"`
}

// elevenLabsVoice is a single voice entry from the ElevenLabs API.
type elevenLabsVoice struct {
	VoiceID  string            `json:"voice_id"`
	Name     string            `json:"name"`
	Category string            `json:"category"`
	Labels   map[string]string `json:"labels"`
}

// ListVoices returns all voices available from ElevenLabs for the configured API key.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiBase+"/v1/voices", nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices: %w", err)
	}
	req.Header.Set("xi-api-key", p.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices HTTP: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("elevenlabs: list voices: unexpected status %d", resp.StatusCode)
	}

	var vr voicesResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&vr); err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices decode: %w", err)
	}
	return toProfiles(vr), nil
}

func toProfiles(vr voicesResponse) []tts.VoiceProfile {
	profiles := make([]tts.VoiceProfile, 0, len(vr.Voices))
	for _, v := range vr.Voices {
		meta := make(map[string]string, len(v.Labels)+1)
		for k, val := range v.Labels {
			meta[k] = val
		}
		if v.Category != "" {
			meta["category"] = v.Category
		}
		profiles = append(profiles, tts.VoiceProfile{
			ID:       v.VoiceID,
			Name:     v.Name,
			Provider: "elevenlabs",
			Metadata: meta,
		})
	}
	return profiles
}
