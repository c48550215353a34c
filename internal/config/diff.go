package config

import (
	"slices"
	"time"
)

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; everything else
// needs a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// VoiceChanged is true when any voice setting applied by the resolver
	// (language, carrier, local voice, denylist) changed.
	VoiceChanged bool
	NewVoice     VoiceConfig

	// DefaultVoiceChanged is true when the remote voice used for requests
	// that name none changed.
	DefaultVoiceChanged bool

	// ProbeIntervalChanged is true when availability probing changed.
	ProbeIntervalChanged bool
	NewProbeInterval     time.Duration

	// RestartRequired lists sections that changed but cannot be applied
	// without a restart.
	RestartRequired []string
}

// Changed reports whether d carries any hot-reloadable change.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.VoiceChanged || d.DefaultVoiceChanged || d.ProbeIntervalChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{NewVoice: new.Voice}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	ov, nv := old.Voice, new.Voice
	if ov.Language != nv.Language ||
		ov.CarrierTemplate != nv.CarrierTemplate ||
		ov.CarrierMaxRunes != nv.CarrierMaxRunes ||
		ov.LocalVoice != nv.LocalVoice ||
		!slices.Equal(ov.VoiceDenylist, nv.VoiceDenylist) {
		d.VoiceChanged = true
	}
	d.DefaultVoiceChanged = ov.DefaultVoice != nv.DefaultVoice
	if ov.AvailabilityProbeInterval != nv.AvailabilityProbeInterval {
		d.ProbeIntervalChanged = true
		d.NewProbeInterval = nv.AvailabilityProbeInterval
	}
	if ov.PrefetchConcurrency != nv.PrefetchConcurrency || ov.SynthesisTimeout != nv.SynthesisTimeout {
		d.RestartRequired = append(d.RestartRequired, "voice")
	}

	if old.Server.ListenAddr != new.Server.ListenAddr || old.Server.LogFormat != new.Server.LogFormat {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if !providersEqual(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Cache != new.Cache {
		d.RestartRequired = append(d.RestartRequired, "cache")
	}
	if old.Recordings != new.Recordings {
		d.RestartRequired = append(d.RestartRequired, "recordings")
	}
	if old.Database != new.Database {
		d.RestartRequired = append(d.RestartRequired, "database")
	}
	if old.Scoring.Thresholds != new.Scoring.Thresholds || !boolPtrEqual(old.Scoring.NearMisses, new.Scoring.NearMisses) {
		d.RestartRequired = append(d.RestartRequired, "scoring")
	}
	return d
}

func providersEqual(a, b ProvidersConfig) bool {
	return entryEqual(a.TTS, b.TTS) &&
		entryEqual(a.LocalTTS, b.LocalTTS) &&
		entryEqual(a.Audio, b.Audio) &&
		entryEqual(a.STT, b.STT) &&
		slices.EqualFunc(a.TTSFallbacks, b.TTSFallbacks, entryEqual)
}

// entryEqual compares entries by their scalar fields and option count.
// Nested option values are not compared.
func entryEqual(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.APIKey != b.APIKey || a.BaseURL != b.BaseURL || a.Model != b.Model {
		return false
	}
	if len(a.Options) != len(b.Options) {
		return false
	}
	for k, av := range a.Options {
		bv, ok := b.Options[k]
		if !ok || !scalarEqual(av, bv) {
			return false
		}
	}
	return true
}

func scalarEqual(a, b any) bool {
	switch a.(type) {
	case string, int, int64, float64, bool, nil:
		return a == b
	}
	return true
}

func boolPtrEqual(a, b *bool) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
