// Package server exposes the vocabox audio pipeline over HTTP.
//
// Routes:
//
//	POST   /api/speech               synthesize text into a payload
//	GET    /api/voices               list voices of the TTS backend
//	POST   /api/audio/play           decode and play a payload on the host
//	POST   /api/audio/refs           register a payload as a streamable URL
//	DELETE /api/audio/refs/{id}      release a reference
//	GET    /media/{id}               stream a registered reference
//	POST   /api/audio/download       return a payload as a WAV attachment
//	POST   /api/audio/save           write a payload into the download dir
//	GET    /api/cards                list history, newest first
//	POST   /api/cards                save a card
//	GET    /api/cards/{id}           fetch a card
//	DELETE /api/cards/{id}           delete a card
//	GET    /api/cards/{id}/audio     download a card's pronunciation
//	GET    /healthz, /readyz         probes
//	GET    /metrics                  Prometheus scrape endpoint
package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/vocabox/internal/health"
	"github.com/MrWong99/vocabox/internal/history"
	"github.com/MrWong99/vocabox/internal/observe"
	"github.com/MrWong99/vocabox/pkg/audio"
	"github.com/MrWong99/vocabox/pkg/audio/media"
	"github.com/MrWong99/vocabox/pkg/audio/playback"
	"github.com/MrWong99/vocabox/pkg/provider/tts"
)

// maxBodyBytes bounds JSON request bodies. Payloads are base64 audio of a
// word or a sentence, well below this.
const maxBodyBytes = 32 << 20

// Player is the decode-and-play operation the server drives.
type Player interface {
	DecodeAndPlay(ctx context.Context, payload audio.Payload, sampleRate int) (*playback.Playback, error)
}

// Option configures a [Server].
type Option func(*Server)

// WithTTS sets the initial TTS backend. Without it /api/speech answers 503
// until [Server.SetTTS] is called.
func WithTTS(p tts.Provider) Option {
	return func(s *Server) { s.SetTTS(p) }
}

// WithPlayer enables /api/audio/play.
func WithPlayer(p Player) Option {
	return func(s *Server) { s.player = p }
}

// WithSaver enables /api/audio/save.
func WithSaver(sv media.Saver) Option {
	return func(s *Server) { s.saver = sv }
}

// WithSampleRate sets the nominal rate passed to the player for raw PCM.
func WithSampleRate(hz int) Option {
	return func(s *Server) { s.sampleRate = hz }
}

// WithListLimit sets the default page size of GET /api/cards.
func WithListLimit(n int) Option {
	return func(s *Server) { s.listLimit = n }
}

// WithCORSOrigins allows browser calls from the given origins.
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) { s.corsOrigins = origins }
}

// WithMetrics replaces [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithCheckers adds readiness checks beyond the built-in ones.
func WithCheckers(c ...health.Checker) Option {
	return func(s *Server) { s.checkers = append(s.checkers, c...) }
}

// ttsBox lets atomic.Pointer hold an interface value.
type ttsBox struct{ p tts.Provider }

// Server routes HTTP requests to the audio pipeline. The media registry and
// the history store are owned by the caller.
type Server struct {
	ttsp        atomic.Pointer[ttsBox]
	player      Player
	registry    *media.Registry
	store       history.Store
	saver       media.Saver
	metrics     *observe.Metrics
	checkers    []health.Checker
	sampleRate  int
	listLimit   int
	corsOrigins []string

	handler http.Handler
}

// New builds a server around reg and store.
func New(reg *media.Registry, store history.Store, opts ...Option) *Server {
	s := &Server{
		registry:   reg,
		store:      store,
		sampleRate: audio.DefaultSampleRate,
		listLimit:  history.DefaultListLimit,
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	s.handler = s.routes()
	return s
}

// SetTTS swaps the TTS backend. A nil provider disables synthesis.
func (s *Server) SetTTS(p tts.Provider) {
	if p == nil {
		s.ttsp.Store(nil)
		return
	}
	s.ttsp.Store(&ttsBox{p: p})
}

// TTS returns the current backend, or nil.
func (s *Server) TTS() tts.Provider {
	if b := s.ttsp.Load(); b != nil {
		return b.p
	}
	return nil
}

// ServeHTTP implements [http.Handler].
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(observe.Middleware(s.metrics))
	if len(s.corsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.corsOrigins,
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "Range"},
			ExposedHeaders: []string{"Content-Disposition", "Content-Range", "X-Correlation-ID"},
			MaxAge:         300,
		}))
	}

	checks := append([]health.Checker{
		health.PingChecker("history", s.store),
		health.ConfiguredChecker("tts", func() bool { return s.TTS() != nil }),
	}, s.checkers...)
	health.New(checks...).Register(r)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Get("/media/{id}", s.registry.ServeHTTP)

	r.Route("/api", func(r chi.Router) {
		r.Post("/speech", s.handleSpeech)
		r.Get("/voices", s.handleVoices)

		r.Route("/audio", func(r chi.Router) {
			r.Post("/play", s.handlePlay)
			r.Post("/refs", s.handleCreateRef)
			r.Delete("/refs/{id}", s.handleReleaseRef)
			r.Post("/download", s.handleDownload)
			r.Post("/save", s.handleSave)
		})

		r.Route("/cards", func(r chi.Router) {
			r.Get("/", s.handleListCards)
			r.Post("/", s.handleSaveCard)
			r.Get("/{id}", s.handleGetCard)
			r.Delete("/{id}", s.handleDeleteCard)
			r.Get("/{id}/audio", s.handleCardAudio)
		})
	})
	return r
}

// trackPlayback keeps the active playback gauge in step with pb.
func (s *Server) trackPlayback(pb *playback.Playback) {
	if pb.Path == playback.PathNone {
		return
	}
	ctx := context.Background()
	s.metrics.ActivePlaybacks.Add(ctx, 1)
	go func() {
		<-pb.Done()
		s.metrics.ActivePlaybacks.Add(ctx, -1)
		if err := pb.Err(); err != nil {
			slog.Warn("playback ended with error", "path", pb.Path, "err", err)
		}
	}()
}

// ReleaseAll drops every registered media reference and adjusts the gauge.
// Call it once the HTTP listener has stopped.
func (s *Server) ReleaseAll() int {
	n := s.registry.Close()
	s.metrics.ActiveMediaRefs.Add(context.Background(), int64(-n))
	return n
}

// NewHTTPServer wraps h in an [http.Server] with conservative timeouts.
// WriteTimeout is left unset so long media streams are not cut off.
func NewHTTPServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
