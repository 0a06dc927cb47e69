package config_test

import (
	"slices"
	"testing"

	"github.com/MrWong99/vocabox/internal/config"
)

func baseConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{ListenAddr: ":8080", LogLevel: config.LogInfo},
		Providers: config.ProvidersConfig{
			TTS: config.ProviderEntry{Name: "elevenlabs", Voice: "rachel", Options: map[string]any{"stability": 0.5}},
		},
		Audio:   config.AudioConfig{SampleRate: 24000},
		History: config.HistoryConfig{ListLimit: 50},
	}
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	d := config.Diff(baseConfig(), baseConfig())
	if d.LogLevelChanged || d.TTSChanged || len(d.RestartRequired) != 0 {
		t.Errorf("expected empty diff, got %+v", d)
	}
}

func TestDiff(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name        string
		mutate      func(c *config.Config)
		wantLog     bool
		wantTTS     bool
		wantRestart []string
	}{
		{
			name:    "log level",
			mutate:  func(c *config.Config) { c.Server.LogLevel = config.LogDebug },
			wantLog: true,
		},
		{
			name:    "tts voice",
			mutate:  func(c *config.Config) { c.Providers.TTS.Voice = "adam" },
			wantTTS: true,
		},
		{
			name:    "tts option",
			mutate:  func(c *config.Config) { c.Providers.TTS.Options["stability"] = 0.9 },
			wantTTS: true,
		},
		{
			name: "fallback added",
			mutate: func(c *config.Config) {
				c.Providers.TTSFallbacks = append(c.Providers.TTSFallbacks, config.ProviderEntry{Name: "coqui"})
			},
			wantTTS: true,
		},
		{
			name:        "listen addr",
			mutate:      func(c *config.Config) { c.Server.ListenAddr = ":9999" },
			wantRestart: []string{"server"},
		},
		{
			name: "audio and history",
			mutate: func(c *config.Config) {
				c.Audio.Output.Enabled = true
				c.History.PostgresDSN = "postgres://x"
			},
			wantRestart: []string{"audio", "history"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			next := baseConfig()
			tc.mutate(next)
			d := config.Diff(baseConfig(), next)
			if d.LogLevelChanged != tc.wantLog {
				t.Errorf("LogLevelChanged: got %v, want %v", d.LogLevelChanged, tc.wantLog)
			}
			if tc.wantLog && d.NewLogLevel != next.Server.LogLevel {
				t.Errorf("NewLogLevel: got %q", d.NewLogLevel)
			}
			if d.TTSChanged != tc.wantTTS {
				t.Errorf("TTSChanged: got %v, want %v", d.TTSChanged, tc.wantTTS)
			}
			if !slices.Equal(d.RestartRequired, tc.wantRestart) {
				t.Errorf("RestartRequired: got %v, want %v", d.RestartRequired, tc.wantRestart)
			}
		})
	}
}
