// Command vocabox is the main entry point for the vocabox audio service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrWong99/vocabox/internal/app"
	"github.com/MrWong99/vocabox/internal/config"
	"github.com/MrWong99/vocabox/internal/observe"
	"github.com/MrWong99/vocabox/pkg/provider/tts"
	"github.com/MrWong99/vocabox/pkg/provider/tts/coqui"
	"github.com/MrWong99/vocabox/pkg/provider/tts/elevenlabs"
	"github.com/MrWong99/vocabox/pkg/provider/tts/gemini"
	oaitts "github.com/MrWong99/vocabox/pkg/provider/tts/openai"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	envPath := flag.String("env", ".env", "optional dotenv file loaded before the config")
	watch := flag.Bool("watch", true, "reload log level and TTS providers when the config file changes")
	flag.Parse()

	if err := config.LoadDotEnv(*envPath); err != nil {
		fmt.Fprintf(os.Stderr, "vocabox: %v\n", err)
		return 1
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "vocabox: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "vocabox: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	var level slog.LevelVar
	level.Set(cfg.Server.LogLevel.Slog())
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &level})))

	slog.Info("vocabox starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, reg, app.WithLevelVar(&level))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	if *watch {
		w, err := config.NewWatcher(*configPath, application.Reload)
		if err != nil {
			slog.Warn("config watcher disabled", "err", err)
		} else {
			defer w.Stop()
		}
	}

	slog.Info("server ready, press Ctrl+C to shut down")

	runErr := application.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("stopping")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires the TTS backends that ship with vocabox
// into reg. Each factory receives a config.ProviderEntry and constructs the
// provider from the implementation package.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, elevenlabs.WithBaseURL(entry.BaseURL))
		}
		if outputFmt := optString(entry.Options, "output_format"); outputFmt != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(outputFmt))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("coqui", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []coqui.Option
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, coqui.WithLanguage(lang))
		}
		if mode := optString(entry.Options, "api_mode"); mode != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(mode)))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, coqui.WithTimeout(d))
		}
		return coqui.New(entry.BaseURL, opts...)
	})

	reg.RegisterTTS("gemini", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []gemini.Option
		if entry.Model != "" {
			opts = append(opts, gemini.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, gemini.WithBaseURL(entry.BaseURL))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, gemini.WithTimeout(d))
		}
		return gemini.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("openai", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []oaitts.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaitts.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, oaitts.WithOrganization(org))
		}
		if f := optString(entry.Options, "response_format"); f != "" {
			opts = append(opts, oaitts.WithResponseFormat(f))
		}
		if s := optString(entry.Options, "instructions"); s != "" {
			opts = append(opts, oaitts.WithInstructions(s))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, oaitts.WithTimeout(d))
		}
		return oaitts.New(entry.APIKey, entry.Model, opts...)
	})

	for _, name := range reg.TTSNames() {
		slog.Debug("registered provider", "kind", "tts", "name", name)
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         vocabox · startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("TTS", providerLabel(cfg.Providers.TTS))
	for i, fb := range cfg.Providers.TTSFallbacks {
		printRow(fmt.Sprintf("Fallback %d", i+1), providerLabel(fb))
	}
	if cfg.Audio.Output.Enabled {
		printRow("Playback", fmt.Sprintf("portaudio @ %d Hz", cfg.Audio.SampleRate))
	} else {
		printRow("Playback", "(disabled)")
	}
	printRow("Downloads", orDisabled(cfg.Audio.DownloadDir))
	if cfg.History.PostgresDSN != "" {
		printRow("History", "postgres")
	} else {
		printRow("History", "in-memory")
	}
	printRow("Listen addr", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func providerLabel(e config.ProviderEntry) string {
	switch {
	case e.Name == "":
		return "(not configured)"
	case e.Model != "":
		return e.Name + " / " + e.Model
	default:
		return e.Name
	}
}

func orDisabled(s string) string {
	if s == "" {
		return "(disabled)"
	}
	return s
}

func printRow(label, value string) {
	if len(value) > 19 {
		value = value[:16] + "..."
	}
	fmt.Printf("║  %-14s  : %-19s ║\n", label, value)
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// optDuration parses a duration such as "20s" from a provider Options map.
// Invalid values are logged and ignored.
func optDuration(opts map[string]any, key string) time.Duration {
	s := optString(opts, key)
	if s == "" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		slog.Warn("ignoring invalid provider option", "key", key, "value", s, "err", err)
		return 0
	}
	return d
}
