package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/MrWong99/vocabox/pkg/audio"
	"github.com/MrWong99/vocabox/pkg/provider/tts"
)

type speechServer struct {
	mu   sync.Mutex
	body map[string]any
	auth string
	path string
}

func (s *speechServer) start(t *testing.T, status int, reply []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		s.mu.Lock()
		_ = json.Unmarshal(raw, &s.body)
		s.auth = r.Header.Get("Authorization")
		s.path = r.URL.Path
		s.mu.Unlock()
		if status != http.StatusOK {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"bad voice","type":"invalid_request_error"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(reply)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNew(t *testing.T) {
	t.Parallel()
	if _, err := New("", ""); err == nil {
		t.Error("expected error for empty API key")
	}
	p, err := New("sk-test", "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.ModelID() != DefaultModel {
		t.Errorf("model: got %q, want %q", p.ModelID(), DefaultModel)
	}
	if p.format != DefaultResponseFormat {
		t.Errorf("format: got %q", p.format)
	}
}

func TestNew_ResponseFormat(t *testing.T) {
	t.Parallel()
	tests := []struct {
		format  string
		wantErr bool
	}{
		{"pcm", false},
		{"wav", false},
		{"mp3", false},
		{"opus", false},
		{"aac", true},
		{"flac", true},
		{"", true},
	}
	for _, tc := range tests {
		t.Run(tc.format, func(t *testing.T) {
			t.Parallel()
			_, err := New("sk-test", "", WithResponseFormat(tc.format))
			if (err != nil) != tc.wantErr {
				t.Errorf("New(format=%q) error = %v, wantErr %v", tc.format, err, tc.wantErr)
			}
		})
	}
}

func TestSynthesize_PCM(t *testing.T) {
	t.Parallel()
	pcm := []byte{1, 0, 2, 0, 3, 0, 4, 0}
	s := &speechServer{}
	srv := s.start(t, http.StatusOK, pcm)

	p, err := New("sk-test", "tts-1", WithBaseURL(srv.URL+"/v1/"), WithMaxRetries(0), WithInstructions("slowly"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	payload, err := p.Synthesize(context.Background(), "apple", tts.VoiceProfile{ID: "nova", SpeedFactor: 0.8})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	got, _ := payload.Bytes()
	if !bytes.Equal(got, pcm) {
		t.Errorf("payload: got %v", got)
	}
	if audio.Classify(got) != audio.RawPCM {
		t.Error("pcm response should classify as raw PCM")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.path != "/v1/audio/speech" {
		t.Errorf("path: got %q", s.path)
	}
	if s.auth != "Bearer sk-test" {
		t.Errorf("auth: got %q", s.auth)
	}
	want := map[string]any{
		"input":           "apple",
		"model":           "tts-1",
		"voice":           "nova",
		"response_format": "pcm",
		"instructions":    "slowly",
		"speed":           0.8,
	}
	for k, v := range want {
		if s.body[k] != v {
			t.Errorf("body[%q]: got %v, want %v", k, s.body[k], v)
		}
	}
}

func TestSynthesize_DefaultsAndContainer(t *testing.T) {
	t.Parallel()
	wav := audio.FrameWAV([]byte{0, 0}, 24000, 1)
	s := &speechServer{}
	srv := s.start(t, http.StatusOK, wav)

	p, _ := New("sk-test", "", WithBaseURL(srv.URL+"/v1/"), WithMaxRetries(0), WithResponseFormat("wav"))
	payload, err := p.Synthesize(context.Background(), "pear", tts.VoiceProfile{})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	got, _ := payload.Bytes()
	if audio.Classify(got) != audio.ContainerFile {
		t.Error("wav response should classify as a container")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.body["voice"] != DefaultVoice || s.body["response_format"] != "wav" {
		t.Errorf("body: %v", s.body)
	}
	if _, ok := s.body["speed"]; ok {
		t.Error("speed must be omitted when unset")
	}
}

func TestSynthesize_Errors(t *testing.T) {
	t.Parallel()
	s := &speechServer{}
	srv := s.start(t, http.StatusBadRequest, nil)
	p, _ := New("sk-test", "", WithBaseURL(srv.URL+"/v1/"), WithMaxRetries(0))

	if _, err := p.Synthesize(context.Background(), "apple", tts.VoiceProfile{ID: "nope"}); err == nil {
		t.Error("expected error on 400")
	}
	if _, err := p.Synthesize(context.Background(), " ", tts.VoiceProfile{}); err == nil {
		t.Error("expected error for empty text")
	}

	empty := (&speechServer{}).start(t, http.StatusOK, nil)
	p, _ = New("sk-test", "", WithBaseURL(empty.URL+"/v1/"), WithMaxRetries(0))
	if _, err := p.Synthesize(context.Background(), "apple", tts.VoiceProfile{}); err == nil {
		t.Error("expected error for empty audio")
	}
}

func TestListVoices(t *testing.T) {
	t.Parallel()
	p, _ := New("sk-test", "tts-1-hd")
	voices, err := p.ListVoices(context.Background())
	if err != nil {
		t.Fatalf("ListVoices: %v", err)
	}
	if len(voices) != len(builtinVoices) {
		t.Fatalf("got %d voices", len(voices))
	}
	if voices[0].ID != "alloy" || voices[0].Provider != "openai" || voices[0].Metadata["model"] != "tts-1-hd" {
		t.Errorf("voices[0] = %+v", voices[0])
	}
}
