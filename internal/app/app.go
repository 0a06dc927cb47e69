// Package app wires the vocabox subsystems into a running service.
//
// The App struct owns the full lifecycle: New creates and connects the
// history store, the audio output, the media registry and the HTTP server;
// Run serves until the context ends; Shutdown tears everything down in
// order. Reload applies hot-reloadable config changes while running.
//
// For testing, inject doubles via functional options (WithStore, WithDevice,
// WithListener, ...). When an option is not provided, New creates the real
// implementation from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/vocabox/internal/config"
	"github.com/MrWong99/vocabox/internal/history"
	"github.com/MrWong99/vocabox/internal/observe"
	"github.com/MrWong99/vocabox/internal/server"
	"github.com/MrWong99/vocabox/pkg/audio/media"
	"github.com/MrWong99/vocabox/pkg/audio/playback"
	"github.com/MrWong99/vocabox/pkg/audio/portaudio"
)

// App owns all subsystem lifetimes.
type App struct {
	cfg      *config.Config
	registry *config.Registry
	level    *slog.LevelVar
	metrics  *observe.Metrics

	// Subsystems, initialised in New and torn down in Shutdown.
	store    history.Store
	device   playback.Device
	media    *media.Registry
	srv      *server.Server
	httpSrv  *http.Server
	listener net.Listener

	// closers are called in order during Shutdown.
	closers []func(context.Context) error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a history store instead of creating one from config.
func WithStore(s history.Store) Option {
	return func(a *App) { a.store = s }
}

// WithDevice injects an audio output device instead of opening PortAudio.
// The caller keeps ownership of d.
func WithDevice(d playback.Device) Option {
	return func(a *App) { a.device = d }
}

// WithListener makes Run serve on ln instead of listening on
// server.listen_addr.
func WithListener(ln net.Listener) Option {
	return func(a *App) { a.listener = ln }
}

// WithMetrics sets the metric instruments. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLevelVar lets Reload change the log level of a handler built on lv.
func WithLevelVar(lv *slog.LevelVar) Option {
	return func(a *App) { a.level = lv }
}

// New creates an App from cfg. reg supplies the TTS constructors named in
// cfg.Providers.
func New(ctx context.Context, cfg *config.Config, reg *config.Registry, opts ...Option) (*App, error) {
	a := &App{cfg: cfg, registry: reg}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	ttsp, err := BuildTTS(cfg.Providers, reg, a.metrics)
	if err != nil {
		return nil, err
	}
	if ttsp == nil {
		slog.Warn("no tts provider configured, speech endpoints will return 503")
	}

	if err := a.initHistory(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init history: %w", err)
	}

	srvOpts := []server.Option{
		server.WithTTS(ttsp),
		server.WithMetrics(a.metrics),
		server.WithSampleRate(cfg.Audio.SampleRate),
		server.WithListLimit(cfg.History.ListLimit),
		server.WithCORSOrigins(cfg.Server.CORSOrigins),
	}
	if player := a.initPlayer(); player != nil {
		srvOpts = append(srvOpts, server.WithPlayer(player))
	}
	if dir := cfg.Audio.DownloadDir; dir != "" {
		srvOpts = append(srvOpts, server.WithSaver(media.DirSaver{Dir: dir}))
	}

	a.media = media.NewRegistry(mediaPrefix(cfg.Server.PublicURL))
	a.srv = server.New(a.media, a.store, srvOpts...)
	a.httpSrv = server.NewHTTPServer(cfg.Server.ListenAddr, a.srv)
	return a, nil
}

// initHistory connects to PostgreSQL when a DSN is configured and falls back
// to an in-memory store otherwise.
func (a *App) initHistory(ctx context.Context) error {
	if a.store != nil {
		return nil
	}
	dsn := a.cfg.History.PostgresDSN
	if dsn == "" {
		slog.Warn("history.postgres_dsn not set, card history is kept in memory")
		a.store = history.NewMemStore()
		return nil
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	a.closers = append(a.closers, func(context.Context) error {
		pool.Close()
		return nil
	})
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	store := history.NewPostgresStore(pool)
	if err := store.Migrate(ctx); err != nil {
		return err
	}
	a.store = store
	slog.Info("card history connected to postgres")
	return nil
}

// initPlayer returns nil when local playback is disabled or the output
// device cannot be initialised.
func (a *App) initPlayer() *playback.Player {
	if a.device == nil {
		if !a.cfg.Audio.Output.Enabled {
			return nil
		}
		dev, err := portaudio.NewDevice(a.cfg.Audio.Output.FramesPerBuffer)
		if err != nil {
			slog.Warn("audio output unavailable, playback disabled", "err", err)
			return nil
		}
		a.device = dev
		// Waits for playbacks still writing to their streams.
		a.closers = append(a.closers, dev.Shutdown)
	}
	player, err := playback.NewPlayer(a.device)
	if err != nil {
		slog.Warn("audio player unavailable", "err", err)
		return nil
	}
	return player
}

// mediaPrefix builds the URL prefix for media references.
func mediaPrefix(publicURL string) string {
	return strings.TrimRight(publicURL, "/") + "/media/"
}

// Handler returns the HTTP handler serving the API.
func (a *App) Handler() http.Handler {
	return a.srv
}

// Run serves HTTP and blocks until ctx is cancelled or the listener fails.
// When ctx is done, Run returns its error; call Shutdown afterwards.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- a.serve()
	}()

	slog.Info("app running", "addr", a.addr())
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *App) serve() error {
	tls := a.cfg.Server.TLS
	switch {
	case a.listener != nil && tls != nil:
		return a.httpSrv.ServeTLS(a.listener, tls.CertFile, tls.KeyFile)
	case a.listener != nil:
		return a.httpSrv.Serve(a.listener)
	case tls != nil:
		return a.httpSrv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
	default:
		return a.httpSrv.ListenAndServe()
	}
}

func (a *App) addr() string {
	if a.listener != nil {
		return a.listener.Addr().String()
	}
	return a.httpSrv.Addr
}

// Reload applies the hot-reloadable differences between old and new: the
// log level and the TTS chain. Everything else is logged as needing a
// restart. It matches the callback signature of [config.NewWatcher].
func (a *App) Reload(old, new *config.Config) {
	d := config.Diff(old, new)

	if d.LogLevelChanged && a.level != nil {
		a.level.Set(d.NewLogLevel.Slog())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}

	if d.TTSChanged {
		p, err := BuildTTS(new.Providers, a.registry, a.metrics)
		if err != nil {
			slog.Error("tts reload failed, keeping current chain", "err", err)
		} else {
			a.srv.SetTTS(p)
			slog.Info("tts chain reloaded", "primary", new.Providers.TTS.Name, "fallbacks", len(new.Providers.TTSFallbacks))
		}
	}

	for _, section := range d.RestartRequired {
		slog.Warn("config change requires a restart", "section", section)
	}
}

// Shutdown stops the HTTP server, releases every outstanding media
// reference and then runs the closers in order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if err := a.httpSrv.Shutdown(ctx); err != nil {
			slog.Warn("http shutdown error", "err", err)
			shutdownErr = err
		}
		if n := a.srv.ReleaseAll(); n > 0 {
			slog.Info("released media references", "count", n)
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(ctx); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// closeAll runs the closers registered so far after a failed New.
func (a *App) closeAll() {
	for _, c := range a.closers {
		if err := c(context.Background()); err != nil {
			slog.Warn("closer error", "err", err)
		}
	}
	a.closers = nil
}
