package server_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/vocabox/internal/history"
	"github.com/MrWong99/vocabox/internal/observe"
	"github.com/MrWong99/vocabox/internal/server"
	"github.com/MrWong99/vocabox/pkg/audio"
	"github.com/MrWong99/vocabox/pkg/audio/media"
	audiomock "github.com/MrWong99/vocabox/pkg/audio/mock"
	"github.com/MrWong99/vocabox/pkg/audio/playback"
	"github.com/MrWong99/vocabox/pkg/provider/tts"
	ttsmock "github.com/MrWong99/vocabox/pkg/provider/tts/mock"
)

// pcm returns little-endian 16-bit PCM for samples.
func pcm(samples ...int16) []byte {
	b := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(b[2*i:], uint16(s))
	}
	return b
}

type fixture struct {
	srv      *server.Server
	registry *media.Registry
	store    *history.MemStore
	device   *audiomock.Device
	tts      *ttsmock.Provider
	reader   *sdkmetric.ManualReader
}

func newFixture(t *testing.T, opts ...server.Option) *fixture {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	f := &fixture{
		registry: media.NewRegistry("http://vocabox.test/media/"),
		store:    history.NewMemStore(),
		device:   &audiomock.Device{},
		tts:      &ttsmock.Provider{SynthesizeResult: audio.EncodePayload(pcm(100, -100, 200, -200))},
		reader:   reader,
	}
	player, err := playback.NewPlayer(f.device)
	if err != nil {
		t.Fatalf("NewPlayer: %v", err)
	}
	base := []server.Option{
		server.WithMetrics(m),
		server.WithTTS(f.tts),
		server.WithPlayer(player),
	}
	f.srv = server.New(f.registry, f.store, append(base, opts...)...)
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
	return v
}

func (f *fixture) counter(t *testing.T, name, key, value string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := f.reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			if met.Name != name {
				continue
			}
			sum, ok := met.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("%s is not an int64 sum", name)
			}
			for _, dp := range sum.DataPoints {
				if key == "" {
					return dp.Value
				}
				if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.Emit() == value {
					return dp.Value
				}
			}
		}
	}
	return 0
}

func TestSpeech(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		setup      func(f *fixture)
		body       any
		wantStatus int
	}{
		{name: "ok", body: map[string]any{"text": "apple", "voice": map[string]string{"id": "v1"}}, wantStatus: http.StatusOK},
		{name: "empty text", body: map[string]any{"text": "  "}, wantStatus: http.StatusBadRequest},
		{name: "bad json", body: "{", wantStatus: http.StatusBadRequest},
		{name: "unknown field", body: map[string]any{"text": "a", "speed": 2}, wantStatus: http.StatusBadRequest},
		{
			name:       "backend error",
			setup:      func(f *fixture) { f.tts.SynthesizeErr = errors.New("quota exceeded") },
			body:       map[string]any{"text": "apple"},
			wantStatus: http.StatusBadGateway,
		},
		{
			name:       "no backend",
			setup:      func(f *fixture) { f.srv.SetTTS(nil) },
			body:       map[string]any{"text": "apple"},
			wantStatus: http.StatusServiceUnavailable,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			if tc.setup != nil {
				tc.setup(f)
			}
			rec := f.do(t, http.MethodPost, "/api/speech", tc.body)
			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tc.wantStatus, rec.Body)
			}
		})
	}
}

func TestSpeech_Response(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/speech", map[string]any{
		"text":  "apple",
		"voice": map[string]string{"id": "v1", "language": "en"},
	})
	got := decode[struct {
		Payload audio.Payload `json:"payload"`
		Format  string        `json:"format"`
		Bytes   int           `json:"bytes"`
	}](t, rec)

	if got.Payload != f.tts.SynthesizeResult {
		t.Errorf("payload = %q, want backend payload", got.Payload)
	}
	if got.Format != "raw_pcm" || got.Bytes != 8 {
		t.Errorf("format = %q bytes = %d, want raw_pcm / 8", got.Format, got.Bytes)
	}
	call := f.tts.SynthesizeCalls[0]
	if call.Text != "apple" || call.Voice.ID != "v1" || call.Voice.Language != "en" {
		t.Errorf("backend call = %+v", call)
	}
}

func TestVoices(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.tts.ListVoicesResult = []tts.VoiceProfile{{ID: "alloy", Name: "Alloy"}}

	rec := f.do(t, http.MethodGet, "/api/voices", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	voices := decode[[]tts.VoiceProfile](t, rec)
	if len(voices) != 1 || voices[0].ID != "alloy" {
		t.Errorf("voices = %+v", voices)
	}
}

type playResult struct {
	Path       string `json:"path"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	Frames     int    `json:"frames"`
	Error      string `json:"error"`
}

func TestPlay_RawPCM(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/audio/play", map[string]any{
		"payload": audio.EncodePayload(pcm(0, 16384, -16384)),
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	got := decode[playResult](t, rec)
	if got.Path != "raw_pcm" || got.SampleRate != 24000 || got.Channels != 1 || got.Frames != 3 {
		t.Errorf("result = %+v", got)
	}

	waitOutputs(t, f.device, 1)
	if n := f.counter(t, "vocabox.audio.decodes", "path", "raw_pcm"); n != 1 {
		t.Errorf("decodes{raw_pcm} = %d, want 1", n)
	}
}

func TestPlay_ContainerIgnoresNominalRate(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	wav := audio.FrameWAV(pcm(1, 2, 3, 4), 44100, 2)
	rec := f.do(t, http.MethodPost, "/api/audio/play", map[string]any{
		"payload":     audio.EncodePayload(wav),
		"sample_rate": 8000,
	})
	got := decode[playResult](t, rec)
	if got.Path != "container" || got.SampleRate != 44100 || got.Channels != 2 || got.Frames != 2 {
		t.Errorf("result = %+v", got)
	}
}

func TestPlay_Errors(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/audio/play", map[string]any{"payload": "%%%"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed base64: status = %d, want 400", rec.Code)
	}

	// Undecodable audio degrades silently.
	rec = f.do(t, http.MethodPost, "/api/audio/play", map[string]any{
		"payload": audio.EncodePayload([]byte{1, 2, 3}),
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("odd-length PCM: status = %d, want 202", rec.Code)
	}
	if got := decode[playResult](t, rec); got.Path != "none" || got.Error == "" {
		t.Errorf("odd-length PCM result = %+v", got)
	}
	if len(f.device.OpenCalls()) != 0 {
		t.Error("device opened for undecodable payload")
	}

	disabled := newFixture(t, server.WithPlayer(nil))
	rec = disabled.do(t, http.MethodPost, "/api/audio/play", map[string]any{"payload": audio.EncodePayload(pcm(1))})
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("no player: status = %d, want 503", rec.Code)
	}
}

func waitOutputs(t *testing.T, d *audiomock.Device, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		outs := d.Outputs()
		done := len(outs) >= n
		for _, o := range outs {
			if o.CallCountClose() == 0 {
				done = false
			}
		}
		if done {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d closed outputs", n)
}

func TestRefs_Lifecycle(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	raw := pcm(10, 20, 30)

	rec := f.do(t, http.MethodPost, "/api/audio/refs", map[string]any{"payload": audio.EncodePayload(raw)})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status = %d, body %s", rec.Code, rec.Body)
	}
	ref := decode[media.Ref](t, rec)
	if ref.MIMEType != media.MIMEWAV || ref.Size != audio.WAVHeaderSize+len(raw) {
		t.Errorf("ref = %+v", ref)
	}
	if !strings.HasPrefix(ref.URL, "http://vocabox.test/media/") {
		t.Errorf("url = %q", ref.URL)
	}
	if got := f.counter(t, "vocabox.media.active_refs", "", ""); got != 1 {
		t.Errorf("active_refs = %d, want 1", got)
	}

	rec = f.do(t, http.MethodGet, "/media/"+ref.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stream: status = %d", rec.Code)
	}
	if body := rec.Body.Bytes(); len(body) != ref.Size || string(body[:4]) != "RIFF" {
		t.Errorf("stream body: %d bytes, header %q", len(body), body[:4])
	}

	if rec = f.do(t, http.MethodDelete, "/api/audio/refs/"+ref.ID, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("release: status = %d", rec.Code)
	}
	if rec = f.do(t, http.MethodDelete, "/api/audio/refs/"+ref.ID, nil); rec.Code != http.StatusNotFound {
		t.Errorf("second release: status = %d, want 404", rec.Code)
	}
	if rec = f.do(t, http.MethodGet, "/media/"+ref.ID, nil); rec.Code != http.StatusNotFound {
		t.Errorf("stream after release: status = %d, want 404", rec.Code)
	}
	if got := f.counter(t, "vocabox.media.active_refs", "", ""); got != 0 {
		t.Errorf("active_refs = %d, want 0", got)
	}
}

func TestRefs_MalformedPayload(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/audio/refs", map[string]any{"payload": "not base64!"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if f.registry.Len() != 0 {
		t.Error("malformed payload was registered")
	}
}

func TestRefs_HeaderlessMP3(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	mp3 := append([]byte{0xFF, 0xFB, 0x90, 0x64}, make([]byte, 64)...)

	rec := f.do(t, http.MethodPost, "/api/audio/refs", map[string]any{"payload": audio.EncodePayload(mp3)})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status = %d, body %s", rec.Code, rec.Body)
	}
	ref := decode[media.Ref](t, rec)
	if ref.MIMEType != media.MIMEMPEG || ref.Wrapped || ref.Size != len(mp3) {
		t.Errorf("ref = %+v", ref)
	}
	if got := f.counter(t, "vocabox.media.materializations", "wrapped", "false"); got != 1 {
		t.Errorf("materializations{wrapped=false} = %d, want 1", got)
	}
	if got := f.counter(t, "vocabox.media.materializations", "wrapped", "true"); got != 0 {
		t.Errorf("materializations{wrapped=true} = %d, want 0", got)
	}

	rec = f.do(t, http.MethodGet, "/media/"+ref.ID, nil)
	if ct := rec.Header().Get("Content-Type"); ct != media.MIMEMPEG {
		t.Errorf("Content-Type = %q, want %q", ct, media.MIMEMPEG)
	}
}

func TestReleaseAll(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	for range 3 {
		f.do(t, http.MethodPost, "/api/audio/refs", map[string]any{"payload": audio.EncodePayload(pcm(1))})
	}
	if n := f.srv.ReleaseAll(); n != 3 {
		t.Errorf("ReleaseAll = %d, want 3", n)
	}
	if got := f.counter(t, "vocabox.media.active_refs", "", ""); got != 0 {
		t.Errorf("active_refs = %d, want 0", got)
	}
}

func TestDownload(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	raw := pcm(1, 2)
	rec := f.do(t, http.MethodPost, "/api/audio/download", map[string]any{
		"payload":  audio.EncodePayload(raw),
		"filename": "apple.wav",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "audio/wav" {
		t.Errorf("Content-Type = %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); cd != `attachment; filename="apple.wav"` {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if rec.Body.Len() != audio.WAVHeaderSize+len(raw) {
		t.Errorf("body = %d bytes", rec.Body.Len())
	}

	// MP3 keeps its bytes but is still labelled audio/wav.
	mp3 := []byte("ID3\x04\x00\x00\x00\x00\x00\x00")
	rec = f.do(t, http.MethodPost, "/api/audio/download", map[string]any{"payload": audio.EncodePayload(mp3)})
	if !bytes.Equal(rec.Body.Bytes(), mp3) || rec.Header().Get("Content-Type") != "audio/wav" {
		t.Errorf("mp3 download: %q %q", rec.Header().Get("Content-Type"), rec.Body.Bytes())
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "pronunciation.wav") {
		t.Errorf("default filename: %q", cd)
	}

	rec = f.do(t, http.MethodPost, "/api/audio/download", map[string]any{"payload": "@@"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed: status = %d, want 400", rec.Code)
	}
}

func TestSave(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	f := newFixture(t, server.WithSaver(media.DirSaver{Dir: dir}))

	rec := f.do(t, http.MethodPost, "/api/audio/save", map[string]any{
		"payload":  audio.EncodePayload(pcm(5, 6)),
		"filename": "../word.wav",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	data, err := os.ReadFile(filepath.Join(dir, "word.wav"))
	if err != nil {
		t.Fatalf("read saved file: %v", err)
	}
	if len(data) != audio.WAVHeaderSize+4 {
		t.Errorf("saved %d bytes", len(data))
	}

	rec = f.do(t, http.MethodPost, "/api/audio/save", map[string]any{
		"payload":  audio.EncodePayload(pcm(5)),
		"filename": "..",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid name: status = %d, want 400", rec.Code)
	}

	noDir := newFixture(t)
	rec = noDir.do(t, http.MethodPost, "/api/audio/save", map[string]any{"payload": audio.EncodePayload(pcm(5))})
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("no saver: status = %d, want 503", rec.Code)
	}
}

func TestCards(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/cards", map[string]any{
		"word":    "benevolent",
		"meaning": "well meaning and kindly",
		"roots":   []map[string]string{{"part": "bene", "meaning": "well"}},
		"speak":   true,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("save: status = %d, body %s", rec.Code, rec.Body)
	}
	card := decode[history.Card](t, rec)
	if card.ID == "" || card.Audio != f.tts.SynthesizeResult {
		t.Fatalf("saved card = %+v", card)
	}
	if f.tts.SynthesizeCalls[0].Text != "benevolent" {
		t.Errorf("synthesized %q", f.tts.SynthesizeCalls[0].Text)
	}

	rec = f.do(t, http.MethodPost, "/api/cards", map[string]any{"word": "lucid"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("save second: status = %d", rec.Code)
	}
	if f.tts.CallCountSynthesize() != 1 {
		t.Error("card without speak was synthesized")
	}

	rec = f.do(t, http.MethodGet, "/api/cards?limit=1", nil)
	if list := decode[[]history.Card](t, rec); len(list) != 1 {
		t.Errorf("list limit=1 returned %d cards", len(list))
	}
	if rec = f.do(t, http.MethodGet, "/api/cards?limit=x", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit: status = %d", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/api/cards/"+card.ID, nil)
	if got := decode[history.Card](t, rec); got.Word != "benevolent" || len(got.Roots) != 1 {
		t.Errorf("get = %+v", got)
	}

	rec = f.do(t, http.MethodGet, "/api/cards/"+card.ID+"/audio", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("audio: status = %d", rec.Code)
	}
	if cd := rec.Header().Get("Content-Disposition"); cd != `attachment; filename="benevolent.wav"` {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if rec.Body.Len() != audio.WAVHeaderSize+8 {
		t.Errorf("audio body = %d bytes", rec.Body.Len())
	}

	if rec = f.do(t, http.MethodDelete, "/api/cards/"+card.ID, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("delete: status = %d", rec.Code)
	}
	if rec = f.do(t, http.MethodGet, "/api/cards/"+card.ID, nil); rec.Code != http.StatusNotFound {
		t.Errorf("get after delete: status = %d", rec.Code)
	}
	if rec = f.do(t, http.MethodGet, "/api/cards/"+card.ID+"/audio", nil); rec.Code != http.StatusNotFound {
		t.Errorf("audio after delete: status = %d", rec.Code)
	}
}

func TestCards_Invalid(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	if rec := f.do(t, http.MethodPost, "/api/cards", map[string]any{"word": ""}); rec.Code != http.StatusBadRequest {
		t.Errorf("empty word: status = %d", rec.Code)
	}
	f.tts.SynthesizeErr = errors.New("down")
	if rec := f.do(t, http.MethodPost, "/api/cards", map[string]any{"word": "x", "speak": true}); rec.Code != http.StatusBadGateway {
		t.Errorf("synthesis failure: status = %d", rec.Code)
	}
	if list, _ := f.store.List(context.Background(), 0); len(list) != 0 {
		t.Errorf("cards stored after failures: %v", list)
	}
}

func TestProbes(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	if rec := f.do(t, http.MethodGet, "/healthz", nil); rec.Code != http.StatusOK {
		t.Errorf("healthz: %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/readyz", nil); rec.Code != http.StatusOK {
		t.Errorf("readyz: %d, body %s", rec.Code, rec.Body)
	}

	f.srv.SetTTS(nil)
	if rec := f.do(t, http.MethodGet, "/readyz", nil); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz without tts: %d", rec.Code)
	}

	if rec := f.do(t, http.MethodGet, "/metrics", nil); rec.Code != http.StatusOK {
		t.Errorf("metrics: %d", rec.Code)
	}
}

func TestCORS(t *testing.T) {
	t.Parallel()
	f := newFixture(t, server.WithCORSOrigins([]string{"http://localhost:5173"}))

	req := httptest.NewRequest(http.MethodOptions, "/api/speech", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}
