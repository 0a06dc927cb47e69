package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/MrWong99/vocabox/internal/observe"
	"github.com/MrWong99/vocabox/pkg/audio"
	"github.com/MrWong99/vocabox/pkg/audio/media"
	"github.com/MrWong99/vocabox/pkg/provider/tts"
)

// defaultFilename is used when a download request names no file.
const defaultFilename = "pronunciation.wav"

var (
	errNoTTS    = errors.New("no text-to-speech backend configured")
	errNoPlayer = errors.New("audio output is disabled")
	errNoSaver  = errors.New("audio.download_dir is not configured")
)

type speechRequest struct {
	Text  string           `json:"text"`
	Voice tts.VoiceProfile `json:"voice"`
}

type speechResponse struct {
	Payload audio.Payload `json:"payload"`
	Format  string        `json:"format"`
	Bytes   int           `json:"bytes"`
}

func (s *Server) handleSpeech(w http.ResponseWriter, r *http.Request) {
	var req speechRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, errors.New("text must not be empty"))
		return
	}
	p := s.TTS()
	if p == nil {
		writeError(w, http.StatusServiceUnavailable, errNoTTS)
		return
	}

	payload, err := p.Synthesize(r.Context(), req.Text, req.Voice)
	if err != nil {
		observe.Logger(r.Context()).Warn("synthesis failed", "err", err)
		writeError(w, http.StatusBadGateway, fmt.Errorf("synthesize: %w", err))
		return
	}
	data, err := payload.Bytes()
	if err != nil {
		writeError(w, http.StatusBadGateway, fmt.Errorf("backend returned %w", err))
		return
	}
	writeJSON(w, http.StatusOK, speechResponse{
		Payload: payload,
		Format:  audio.Classify(data).String(),
		Bytes:   len(data),
	})
}

func (s *Server) handleVoices(w http.ResponseWriter, r *http.Request) {
	p := s.TTS()
	if p == nil {
		writeError(w, http.StatusServiceUnavailable, errNoTTS)
		return
	}
	voices, err := p.ListVoices(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, fmt.Errorf("list voices: %w", err))
		return
	}
	if voices == nil {
		voices = []tts.VoiceProfile{}
	}
	writeJSON(w, http.StatusOK, voices)
}

type playRequest struct {
	Payload    audio.Payload `json:"payload"`
	SampleRate int           `json:"sample_rate,omitempty"`
}

type playResponse struct {
	Path       string `json:"path"`
	SampleRate int    `json:"sample_rate,omitempty"`
	Channels   int    `json:"channels,omitempty"`
	Frames     int    `json:"frames"`
	Error      string `json:"error,omitempty"`
}

func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	if s.player == nil {
		writeError(w, http.StatusServiceUnavailable, errNoPlayer)
		return
	}
	var req playRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	rate := req.SampleRate
	if rate <= 0 {
		rate = s.sampleRate
	}

	// Playback outlives the request.
	pb, err := s.player.DecodeAndPlay(context.WithoutCancel(r.Context()), req.Payload, rate)
	if err != nil {
		writeError(w, payloadStatus(err), err)
		return
	}
	s.metrics.RecordDecode(r.Context(), string(pb.Path))
	s.trackPlayback(pb)

	resp := playResponse{
		Path:       string(pb.Path),
		SampleRate: pb.Format.SampleRate,
		Channels:   pb.Format.Channels,
		Frames:     pb.Frames,
	}
	if err := pb.Err(); err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusAccepted, resp)
}

type payloadRequest struct {
	Payload  audio.Payload `json:"payload"`
	Filename string        `json:"filename,omitempty"`
}

func (s *Server) handleCreateRef(w http.ResponseWriter, r *http.Request) {
	var req payloadRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ref, err := media.MaterializeURL(s.registry, req.Payload)
	if err != nil {
		writeError(w, payloadStatus(err), err)
		return
	}
	s.metrics.RecordMaterialization(r.Context(), "url", ref.Wrapped)
	s.metrics.ActiveMediaRefs.Add(r.Context(), 1)
	w.Header().Set("Location", ref.URL)
	writeJSON(w, http.StatusCreated, ref)
}

func (s *Server) handleReleaseRef(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.Release(chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, media.ErrUnknownRef) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.metrics.ActiveMediaRefs.Add(r.Context(), -1)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	var req payloadRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.download(w, r, req.Payload, req.Filename)
}

// download materializes payload straight into the response as an
// attachment.
func (s *Server) download(w http.ResponseWriter, r *http.Request, payload audio.Payload, filename string) {
	if filename == "" {
		filename = defaultFilename
	}
	f, err := media.MaterializeDownload(r.Context(), attachmentSaver{w: w}, payload, filename)
	if err != nil {
		// Nothing has been written if preparation failed.
		if isMalformedPayload(err) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		observe.Logger(r.Context()).Warn("download write failed", "err", err)
		return
	}
	s.metrics.RecordMaterialization(r.Context(), "download", f.Wrapped)
}

type saveResponse struct {
	Name     string `json:"name"`
	MIMEType string `json:"mime_type"`
	Size     int    `json:"size"`
	Wrapped  bool   `json:"wrapped"`
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	if s.saver == nil {
		writeError(w, http.StatusServiceUnavailable, errNoSaver)
		return
	}
	var req payloadRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Filename == "" {
		req.Filename = defaultFilename
	}
	f, err := media.MaterializeDownload(r.Context(), s.saver, req.Payload, req.Filename)
	if err != nil {
		writeError(w, payloadStatus(err), err)
		return
	}
	s.metrics.RecordMaterialization(r.Context(), "download", f.Wrapped)
	writeJSON(w, http.StatusCreated, saveResponse{
		Name:     f.Name,
		MIMEType: f.MIMEType,
		Size:     len(f.Data),
		Wrapped:  f.Wrapped,
	})
}

// attachmentSaver writes a prepared file as the HTTP response body.
type attachmentSaver struct {
	w http.ResponseWriter
}

func (a attachmentSaver) Save(_ context.Context, f media.File) error {
	h := a.w.Header()
	h.Set("Content-Type", f.MIMEType)
	h.Set("Content-Length", strconv.Itoa(len(f.Data)))
	h.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", f.Name))
	a.w.WriteHeader(http.StatusOK)
	_, err := a.w.Write(f.Data)
	return err
}
