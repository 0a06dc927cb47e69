package config

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// DefaultWatchInterval is how often a [Watcher] stats the config file.
const DefaultWatchInterval = 5 * time.Second

// fileState identifies one version of the config file. The hash catches
// edits that keep the mtime; the mtime skips hashing an untouched file.
type fileState struct {
	modTime time.Time
	sum     [sha256.Size]byte
}

// Watcher keeps a running vocabox in step with its YAML file. Only
// server.log_level and the providers section take effect without a restart;
// the callback (usually app.App.Reload) decides what to apply. An edit that
// fails to parse or validate is logged and the last good config stays.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(old, new *Config)

	mu      sync.Mutex
	current *Config
	state   fileState

	stop     chan struct{}
	stopOnce sync.Once
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. Defaults to [DefaultWatchInterval].
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher loads path and starts polling it. onChange receives the
// previous and the new config after every valid content change; it may be
// nil.
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: DefaultWatchInterval,
		onChange: onChange,
		stop:     make(chan struct{}),
	}
	for _, o := range opts {
		o(w)
	}

	cfg, st, err := readConfig(path)
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	w.current, w.state = cfg, st

	go w.loop()
	return w, nil
}

// Current returns the last config that loaded and validated.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Stop ends polling. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
}

func (w *Watcher) loop() {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-w.stop:
			return
		case <-t.C:
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	info, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("config reload: stat failed", "path", w.path, "err", err)
		return
	}
	w.mu.Lock()
	seen := w.state.modTime
	w.mu.Unlock()
	if info.ModTime().Equal(seen) {
		return
	}

	cfg, st, err := readConfig(w.path)
	if err != nil {
		slog.Warn("config reload: keeping previous config", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	unchanged := st.sum == w.state.sum
	old := w.current
	w.state = st
	if !unchanged {
		w.current = cfg
	}
	w.mu.Unlock()
	if unchanged {
		return
	}

	slog.Info("config reload: file changed",
		"path", w.path,
		"log_level", cfg.Server.LogLevel,
		"tts", cfg.Providers.TTS.Name,
	)
	// Outside the lock: the callback may call Current.
	if w.onChange != nil {
		w.onChange(old, cfg)
	}
}

// readConfig parses and validates path and records which version of the
// file it read.
func readConfig(path string) (*Config, fileState, error) {
	// Stat before reading: a write in between leaves the older mtime, so the
	// next poll reads the file again.
	info, err := os.Stat(path)
	if err != nil {
		return nil, fileState{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fileState{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fileState{}, err
	}
	return cfg, fileState{modTime: info.ModTime(), sum: sha256.Sum256(data)}, nil
}
