package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrWong99/lisible/internal/config"
)

func TestValidate_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		yaml    string
		mention string
	}{
		{
			name:    "invalid log level",
			yaml:    "server:\n  log_level: verbose\n",
			mention: "log_level",
		},
		{
			name:    "invalid log format",
			yaml:    "server:\n  log_format: xml\n",
			mention: "log_format",
		},
		{
			name:    "fallback without primary",
			yaml:    "providers:\n  tts_fallbacks:\n    - name: coqui\n",
			mention: "providers.tts_fallbacks requires",
		},
		{
			name:    "fallback without name",
			yaml:    "providers:\n  tts:\n    name: elevenlabs\n  tts_fallbacks:\n    - base_url: http://x\n",
			mention: "tts_fallbacks[0].name",
		},
		{
			name:    "bad language tag",
			yaml:    "voice:\n  language: \"fr_FR_!!\"\n",
			mention: "voice.language",
		},
		{
			name:    "carrier without placeholder",
			yaml:    "voice:\n  carrier_template: \"Le mot.\"\n",
			mention: "{token}",
		},
		{
			name:    "negative carrier runes",
			yaml:    "voice:\n  carrier_max_runes: -1\n",
			mention: "carrier_max_runes",
		},
		{
			name:    "negative probe interval",
			yaml:    "voice:\n  availability_probe_interval: -5s\n",
			mention: "availability_probe_interval",
		},
		{
			name:    "unknown cache backend",
			yaml:    "cache:\n  backend: redis\n",
			mention: "cache.backend",
		},
		{
			name:    "disk cache without dir",
			yaml:    "cache:\n  backend: disk\n",
			mention: "cache.dir",
		},
		{
			name:    "postgres cache without dsn",
			yaml:    "cache:\n  backend: postgres\n",
			mention: "postgres_dsn",
		},
		{
			name:    "compression level out of range",
			yaml:    "cache:\n  compression_level: 30\n",
			mention: "compression_level",
		},
		{
			name:    "file recordings without path",
			yaml:    "recordings:\n  source: file\n",
			mention: "recordings.path",
		},
		{
			name:    "postgres recordings without dsn",
			yaml:    "recordings:\n  source: postgres\n",
			mention: "postgres_dsn",
		},
		{
			name:    "unknown recordings source",
			yaml:    "recordings:\n  source: s3\n",
			mention: "recordings.source",
		},
		{
			name:    "threshold out of range",
			yaml:    "scoring:\n  thresholds:\n    good: 1.5\n",
			mention: "scoring.thresholds",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tt.yaml))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.mention) {
				t.Errorf("error should mention %q, got: %v", tt.mention, err)
			}
		})
	}
}

func TestValidate_JoinsAllErrors(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: loud
cache:
  backend: tape
recordings:
  source: floppy
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	for _, want := range []string{"log_level", "cache.backend", "recordings.source"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("joined error should mention %q, got: %v", want, err)
		}
	}
}

func TestValidate_UnknownProviderNameIsOnlyAWarning(t *testing.T) {
	t.Parallel()
	yaml := `
providers:
  tts:
    name: my-custom-tts
  local_tts:
    name: say
`
	if _, err := config.LoadFromReader(strings.NewReader(yaml)); err != nil {
		t.Fatalf("unknown provider names should not fail validation: %v", err)
	}
}

func TestLoad_File(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "lisible.yaml")
	if err := os.WriteFile(path, []byte("server:\n  listen_addr: \":7000\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.ListenAddr != ":7000" {
		t.Errorf("listen_addr: got %q", cfg.Server.ListenAddr)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !strings.Contains(err.Error(), "config: open") {
		t.Errorf("unexpected error: %v", err)
	}
}
