package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrWong99/vocabox/internal/config"
)

func TestValidate_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "invalid log level",
			yaml:    "server:\n  log_level: bananas\n",
			wantErr: "server.log_level",
		},
		{
			name:    "relative public url",
			yaml:    "server:\n  public_url: /vocab\n",
			wantErr: "server.public_url",
		},
		{
			name:    "tls missing key",
			yaml:    "server:\n  tls:\n    cert_file: a.pem\n",
			wantErr: "server.tls",
		},
		{
			name:    "fallbacks without primary",
			yaml:    "providers:\n  tts_fallbacks:\n    - name: coqui\n",
			wantErr: "requires providers.tts",
		},
		{
			name:    "unnamed fallback",
			yaml:    "providers:\n  tts:\n    name: coqui\n  tts_fallbacks:\n    - model: x\n",
			wantErr: "tts_fallbacks[0].name",
		},
		{
			name:    "sample rate out of range",
			yaml:    "audio:\n  sample_rate: 500000\n",
			wantErr: "audio.sample_rate",
		},
		{
			name:    "negative frames per buffer",
			yaml:    "audio:\n  output:\n    frames_per_buffer: -1\n",
			wantErr: "frames_per_buffer",
		},
		{
			name:    "negative list limit",
			yaml:    "history:\n  list_limit: -5\n",
			wantErr: "history.list_limit",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tc.yaml))
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tc.wantErr)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error should mention %q, got: %v", tc.wantErr, err)
			}
		})
	}
}

func TestValidate_JoinsAllErrors(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: loud
audio:
  sample_rate: -1
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	for _, want := range []string{"server.log_level", "audio.sample_rate"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %q, got: %v", want, err)
		}
	}
}

func TestValidate_UnknownProviderIsOnlyAWarning(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("providers:\n  tts:\n    name: my-custom-tts\n"))
	if err != nil {
		t.Fatalf("unknown provider names must not fail validation: %v", err)
	}
}

// Environment tests mutate process state and must not run in parallel.

func TestLoadFromReader_ExpandsEnv(t *testing.T) {
	t.Setenv("VOCABOX_TEST_KEY", "xi-secret")
	t.Setenv("VOCABOX_TEST_DSN", "postgres://u:p$ss@db/vocab")

	yaml := `
providers:
  tts:
    name: elevenlabs
    api_key: "${VOCABOX_TEST_KEY}"
    base_url: "$NOT_EXPANDED"
history:
  postgres_dsn: "${VOCABOX_TEST_DSN}"
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Providers.TTS.APIKey != "xi-secret" {
		t.Errorf("api_key: got %q", cfg.Providers.TTS.APIKey)
	}
	if cfg.Providers.TTS.BaseURL != "$NOT_EXPANDED" {
		t.Errorf("bare $VAR must be left alone, got %q", cfg.Providers.TTS.BaseURL)
	}
	if cfg.History.PostgresDSN != "postgres://u:p$ss@db/vocab" {
		t.Errorf("postgres_dsn: got %q", cfg.History.PostgresDSN)
	}
}

func TestExpandEnv_UnsetIsEmpty(t *testing.T) {
	t.Setenv("VOCABOX_SET", "x")
	got := string(config.ExpandEnv([]byte("a=${VOCABOX_SET} b=${VOCABOX_DEFINITELY_UNSET_42}")))
	if got != "a=x b=" {
		t.Errorf("got %q", got)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	content := "VOCABOX_DOTENV_A=from-file\nVOCABOX_DOTENV_B=from-file\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("VOCABOX_DOTENV_B", "from-env")
	// t.Setenv restores the variable afterwards; clear A the same way.
	t.Setenv("VOCABOX_DOTENV_A", "")
	os.Unsetenv("VOCABOX_DOTENV_A")

	if err := config.LoadDotEnv(filepath.Join(dir, "missing.env"), envPath); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("VOCABOX_DOTENV_A"); got != "from-file" {
		t.Errorf("A: got %q, want from-file", got)
	}
	if got := os.Getenv("VOCABOX_DOTENV_B"); got != "from-env" {
		t.Errorf("existing variables must not be overridden, got %q", got)
	}
}
