package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/MrWong99/lisible/internal/scoring"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"tts":       {"elevenlabs", "coqui"},
	"local_tts": {"espeak"},
	"stt":       {"whisper"},
	"audio":     {"speaker"},
}

// Defaults applied by [LoadFromReader] to fields left empty.
const (
	DefaultListenAddr          = ":8080"
	DefaultLanguage            = "fr-FR"
	DefaultPrefetchConcurrency = 4
	DefaultCompressionLevel    = 3
	DefaultShutdownTimeout     = 10 * time.Second
)

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

// LoadFromReader decodes a YAML config from r, fills defaults and validates
// the result. An empty document yields the default configuration.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills every unset field of cfg with its default value.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.LogFormat == "" {
		cfg.Server.LogFormat = LogFormatText
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Voice.Language == "" {
		cfg.Voice.Language = DefaultLanguage
	}
	if cfg.Voice.PrefetchConcurrency == 0 {
		cfg.Voice.PrefetchConcurrency = DefaultPrefetchConcurrency
	}
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = CacheMemory
	}
	if cfg.Cache.CompressionLevel == 0 {
		cfg.Cache.CompressionLevel = DefaultCompressionLevel
	}
	if cfg.Recordings.Source == "" {
		cfg.Recordings.Source = RecordingsNone
	}

	def := scoring.DefaultThresholds()
	th := &cfg.Scoring.Thresholds
	defaultFloat(&th.MinMatch, def.MinMatch)
	defaultFloat(&th.GoodBand, def.GoodBand)
	defaultFloat(&th.Excellent, def.Excellent)
	defaultFloat(&th.Good, def.Good)
	defaultFloat(&th.Fair, def.Fair)
}

func defaultFloat(v *float64, d float64) {
	if *v == 0 {
		*v = d
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.LogFormat != "" && !cfg.Server.LogFormat.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_format %q is invalid; valid values: text, json", cfg.Server.LogFormat))
	}
	if cfg.Server.ShutdownTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.shutdown_timeout %s must not be negative", cfg.Server.ShutdownTimeout))
	}

	// Providers
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("local_tts", cfg.Providers.LocalTTS.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("audio", cfg.Providers.Audio.Name)
	for i, fb := range cfg.Providers.TTSFallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.tts_fallbacks[%d].name is required", i))
			continue
		}
		validateProviderName("tts", fb.Name)
	}
	if len(cfg.Providers.TTSFallbacks) > 0 && !cfg.Providers.TTS.Configured() {
		errs = append(errs, errors.New("providers.tts_fallbacks requires providers.tts to be configured"))
	}
	if !cfg.Providers.TTS.Configured() && !cfg.Providers.LocalTTS.Configured() {
		slog.Warn("neither providers.tts nor providers.local_tts is configured; only personal recordings and cached clips can be spoken")
	}
	if cfg.Providers.TTS.Configured() && cfg.Voice.DefaultVoice == "" {
		slog.Warn("providers.tts is configured but voice.default_voice is empty; requests must name a voice to use remote synthesis")
	}
	if !cfg.Providers.Audio.Configured() {
		slog.Warn("providers.audio is not configured; server-side playback is disabled")
	}

	// Voice
	errs = append(errs, validateVoice(cfg.Voice)...)

	// Cache
	if !cfg.Cache.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("cache.backend %q is invalid; valid values: memory, disk, postgres", cfg.Cache.Backend))
	}
	if cfg.Cache.Backend == CacheDisk && cfg.Cache.Dir == "" {
		errs = append(errs, errors.New("cache.dir is required when cache.backend is disk"))
	}
	if cfg.Cache.Backend == CachePostgres && cfg.Database.PostgresDSN == "" {
		errs = append(errs, errors.New("cache.backend postgres requires database.postgres_dsn"))
	}
	if cfg.Cache.CompressionLevel < 1 || cfg.Cache.CompressionLevel > 22 {
		errs = append(errs, fmt.Errorf("cache.compression_level %d is out of range [1, 22]", cfg.Cache.CompressionLevel))
	}
	if cfg.Cache.MemoryBytes < 0 || cfg.Cache.DiskBytes < 0 {
		errs = append(errs, errors.New("cache.memory_bytes and cache.disk_bytes must not be negative"))
	}

	// Recordings
	if !cfg.Recordings.Source.IsValid() {
		errs = append(errs, fmt.Errorf("recordings.source %q is invalid; valid values: none, file, postgres", cfg.Recordings.Source))
	}
	if cfg.Recordings.Source == RecordingsFile && cfg.Recordings.Path == "" {
		errs = append(errs, errors.New("recordings.path is required when recordings.source is file"))
	}
	if cfg.Recordings.Source == RecordingsPostgres && cfg.Database.PostgresDSN == "" {
		errs = append(errs, errors.New("recordings.source postgres requires database.postgres_dsn"))
	}

	// Scoring
	if err := cfg.Scoring.Thresholds.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("scoring.thresholds: %w", err))
	}

	return errors.Join(errs...)
}

// validateVoice checks the hot-reloadable voice section.
func validateVoice(v VoiceConfig) []error {
	var errs []error
	if v.Language != "" {
		if _, err := language.Parse(v.Language); err != nil {
			errs = append(errs, fmt.Errorf("voice.language %q is not a valid BCP 47 tag: %w", v.Language, err))
		}
	}
	if v.CarrierTemplate != "" && !strings.Contains(v.CarrierTemplate, "{token}") {
		errs = append(errs, fmt.Errorf("voice.carrier_template %q must contain {token}", v.CarrierTemplate))
	}
	if v.CarrierMaxRunes < 0 {
		errs = append(errs, fmt.Errorf("voice.carrier_max_runes %d must not be negative", v.CarrierMaxRunes))
	}
	if v.PrefetchConcurrency < 0 {
		errs = append(errs, fmt.Errorf("voice.prefetch_concurrency %d must not be negative", v.PrefetchConcurrency))
	}
	if v.AvailabilityProbeInterval < 0 {
		errs = append(errs, fmt.Errorf("voice.availability_probe_interval %s must not be negative", v.AvailabilityProbeInterval))
	}
	if v.SynthesisTimeout < 0 {
		errs = append(errs, fmt.Errorf("voice.synthesis_timeout %s must not be negative", v.SynthesisTimeout))
	}
	return errs
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or a third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
