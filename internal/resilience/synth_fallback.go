package resilience

import (
	"context"

	"github.com/MrWong99/lisible/pkg/provider/tts"
)

// SynthFallback implements [tts.Synthesizer] with failover across several
// remote backends. Each backend has its own circuit breaker.
type SynthFallback struct {
	group *FallbackGroup[tts.Synthesizer]
}

var _ tts.Synthesizer = (*SynthFallback)(nil)

// NewSynthFallback creates a [SynthFallback] with primary as the preferred
// backend.
func NewSynthFallback(primary tts.Synthesizer, primaryName string, cfg FallbackConfig) *SynthFallback {
	return &SynthFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional backend.
func (f *SynthFallback) AddFallback(name string, s tts.Synthesizer) {
	f.group.AddFallback(name, s)
}

// Synthesize returns the clip from the first healthy backend.
func (f *SynthFallback) Synthesize(ctx context.Context, req tts.Request) ([]byte, error) {
	return ExecuteWithResult(ctx, f.group, func(s tts.Synthesizer) ([]byte, error) {
		return s.Synthesize(ctx, req)
	})
}

// ListVoices returns the voices of the first healthy backend.
func (f *SynthFallback) ListVoices(ctx context.Context) ([]tts.Voice, error) {
	return ExecuteWithResult(ctx, f.group, func(s tts.Synthesizer) ([]tts.Voice, error) {
		return s.ListVoices(ctx)
	})
}

// States reports the breaker state of every backend, keyed by name.
func (f *SynthFallback) States() map[string]State {
	return f.group.States()
}
