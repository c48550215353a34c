// Package config defines the configuration schema for the lisible server
// and loads it from YAML.
//
// A configuration file names the providers used for speech (remote and local
// synthesis, recognition and the host audio player), the voice cascade
// settings, where synthesized clips are cached and where personal recordings
// come from. Provider names are resolved to constructors through a
// [Registry], so the schema itself stays free of provider imports.
//
// A minimal configuration:
//
//	server:
//	  listen_addr: ":8080"
//	providers:
//	  tts:
//	    name: elevenlabs
//	    api_key: sk-...
//	  local_tts:
//	    name: espeak
//	voice:
//	  default_voice: "21m00Tcm4TlvDq8ikWAM"
//	  language: fr-FR
package config

import (
	"log/slog"
	"time"

	"github.com/MrWong99/lisible/internal/scoring"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level maps l to its slog level. Unknown values map to info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	}
	return slog.LevelInfo
}

// LogFormat selects the slog handler.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// IsValid reports whether f is a recognised log format.
func (f LogFormat) IsValid() bool {
	switch f {
	case LogFormatText, LogFormatJSON:
		return true
	}
	return false
}

// CacheBackend selects where synthesized clips are persisted.
type CacheBackend string

const (
	// CacheMemory keeps clips in process memory only.
	CacheMemory CacheBackend = "memory"

	// CacheDisk keeps clips in a directory, fronted by a memory layer.
	CacheDisk CacheBackend = "disk"

	// CachePostgres keeps clips in the database, fronted by a memory layer.
	CachePostgres CacheBackend = "postgres"
)

// IsValid reports whether b is a recognised cache backend.
func (b CacheBackend) IsValid() bool {
	switch b {
	case CacheMemory, CacheDisk, CachePostgres:
		return true
	}
	return false
}

// RecordingsSource selects where personal recordings are read from.
type RecordingsSource string

const (
	RecordingsNone     RecordingsSource = "none"
	RecordingsFile     RecordingsSource = "file"
	RecordingsPostgres RecordingsSource = "postgres"
)

// IsValid reports whether s is a recognised recordings source.
func (s RecordingsSource) IsValid() bool {
	switch s {
	case RecordingsNone, RecordingsFile, RecordingsPostgres:
		return true
	}
	return false
}

// Config is the root configuration structure.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Voice      VoiceConfig      `yaml:"voice"`
	Cache      CacheConfig      `yaml:"cache"`
	Recordings RecordingsConfig `yaml:"recordings"`
	Database   DatabaseConfig   `yaml:"database"`
	Scoring    ScoringConfig    `yaml:"scoring"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the HTTP listen address (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel is one of debug, info, warn, error. Default: info.
	LogLevel LogLevel `yaml:"log_level"`

	// LogFormat is text or json. Default: text.
	LogFormat LogFormat `yaml:"log_format"`

	// ShutdownTimeout bounds graceful shutdown. Default: 10s.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// ProvidersConfig selects the speech backends.
type ProvidersConfig struct {
	// TTS is the primary remote synthesizer.
	TTS ProviderEntry `yaml:"tts"`

	// TTSFallbacks are tried in order when the primary fails.
	TTSFallbacks []ProviderEntry `yaml:"tts_fallbacks"`

	// LocalTTS is the on-device engine used as the last resort.
	LocalTTS ProviderEntry `yaml:"local_tts"`

	// Audio is the host audio player.
	Audio ProviderEntry `yaml:"audio"`

	// STT transcribes dictation answers.
	STT ProviderEntry `yaml:"stt"`
}

// ProviderEntry is the common configuration shape for every provider slot.
// An empty Name leaves the slot unconfigured.
type ProviderEntry struct {
	Name    string `yaml:"name"`
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`

	// Options carries provider-specific settings.
	Options map[string]any `yaml:"options"`
}

// Configured reports whether the entry names a provider.
func (e ProviderEntry) Configured() bool { return e.Name != "" }

// OptionString returns Options[key] when it is a string.
func (e ProviderEntry) OptionString(key string) (string, bool) {
	s, ok := e.Options[key].(string)
	return s, ok
}

// OptionInt returns Options[key] when it is an integer.
func (e ProviderEntry) OptionInt(key string) (int, bool) {
	switch v := e.Options[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		if v == float64(int(v)) {
			return int(v), true
		}
	}
	return 0, false
}

// OptionDuration returns Options[key] parsed as a duration string.
func (e ProviderEntry) OptionDuration(key string) (time.Duration, bool) {
	s, ok := e.OptionString(key)
	if !ok {
		return 0, false
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, false
	}
	return d, true
}

// VoiceConfig tunes the voice cascade. Every field may change at runtime.
type VoiceConfig struct {
	// DefaultVoice is the remote voice used when a request names none.
	DefaultVoice string `yaml:"default_voice"`

	// Language is the BCP 47 tag used for local voice selection. Default: fr-FR.
	Language string `yaml:"language"`

	// CarrierTemplate wraps single words before remote synthesis. It must
	// contain the "{token}" placeholder. Empty disables the carrier.
	CarrierTemplate string `yaml:"carrier_template"`

	// CarrierMaxRunes is the longest word the carrier applies to. 0 means
	// no limit.
	CarrierMaxRunes int `yaml:"carrier_max_runes"`

	// LocalVoice names the preferred local voice by ID or name.
	LocalVoice string `yaml:"local_voice"`

	// VoiceDenylist lists local voice IDs or names that are never picked.
	VoiceDenylist []string `yaml:"voice_denylist"`

	// AvailabilityProbeInterval lets one remote attempt through while the
	// service is exhausted. 0 disables probing.
	AvailabilityProbeInterval time.Duration `yaml:"availability_probe_interval"`

	// PrefetchConcurrency bounds parallel prefetch synthesis. Default: 4.
	PrefetchConcurrency int `yaml:"prefetch_concurrency"`

	// SynthesisTimeout bounds a single remote call. 0 disables it.
	SynthesisTimeout time.Duration `yaml:"synthesis_timeout"`
}

// CacheConfig selects the clip cache backend.
type CacheConfig struct {
	// Backend is memory, disk or postgres. Default: memory.
	Backend CacheBackend `yaml:"backend"`

	// Dir is the disk backend directory.
	Dir string `yaml:"dir"`

	// CompressionLevel is the zstd level for the disk backend (1-22). Default: 3.
	CompressionLevel int `yaml:"compression_level"`

	// MemoryBytes bounds the in-memory layer. 0 means unbounded.
	MemoryBytes int64 `yaml:"memory_bytes"`

	// DiskBytes bounds the disk backend. 0 means unbounded.
	DiskBytes int64 `yaml:"disk_bytes"`
}

// RecordingsConfig selects the personal recording source.
type RecordingsConfig struct {
	// Source is none, file or postgres. Default: none.
	Source RecordingsSource `yaml:"source"`

	// Path is the YAML file read by the file source.
	Path string `yaml:"path"`
}

// DatabaseConfig holds the PostgreSQL connection.
type DatabaseConfig struct {
	PostgresDSN string `yaml:"postgres_dsn"`
}

// ScoringConfig overrides the alignment thresholds. Zero fields keep the
// defaults.
type ScoringConfig struct {
	Thresholds scoring.Thresholds `yaml:"thresholds"`

	// NearMisses enables phonetic near-miss diagnostics. Default: true.
	NearMisses *bool `yaml:"near_misses"`
}
