package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"tts": {"elevenlabs", "coqui", "gemini", "openai"},
}

// envRef matches ${VAR} references. Bare $VAR is left alone so that DSNs
// and keys containing '$' survive.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, expands ${VAR} references
// from the environment, applies defaults and validates the result.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	raw = ExpandEnv(raw)

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.applyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ExpandEnv replaces every ${VAR} in data with the value of the environment
// variable VAR. Unset variables expand to the empty string.
func ExpandEnv(data []byte) []byte {
	return envRef.ReplaceAllFunc(data, func(m []byte) []byte {
		name := envRef.FindSubmatch(m)[1]
		return []byte(os.Getenv(string(name)))
	})
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.PublicURL != "" {
		u, err := url.Parse(cfg.Server.PublicURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("server.public_url %q must be an absolute URL", cfg.Server.PublicURL))
		}
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Providers
	validateProviderName("tts", cfg.Providers.TTS.Name)
	if cfg.Providers.TTS.Name == "" {
		if len(cfg.Providers.TTSFallbacks) > 0 {
			errs = append(errs, errors.New("providers.tts_fallbacks requires providers.tts to be configured"))
		} else {
			slog.Warn("providers.tts is not configured; speech synthesis will be unavailable")
		}
	}
	for i, fb := range cfg.Providers.TTSFallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.tts_fallbacks[%d].name is required", i))
			continue
		}
		validateProviderName("tts", fb.Name)
	}

	// Audio
	if cfg.Audio.SampleRate < 0 || cfg.Audio.SampleRate > 192000 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d is out of range [1, 192000]", cfg.Audio.SampleRate))
	}
	if cfg.Audio.Output.FramesPerBuffer < 0 {
		errs = append(errs, fmt.Errorf("audio.output.frames_per_buffer %d must not be negative", cfg.Audio.Output.FramesPerBuffer))
	}

	// History
	if cfg.History.ListLimit < 0 {
		errs = append(errs, fmt.Errorf("history.list_limit %d must not be negative", cfg.History.ListLimit))
	}
	if cfg.History.PostgresDSN == "" {
		slog.Warn("history.postgres_dsn is empty; card history will be kept in memory only")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
