// Package tts defines the Synthesizer interface for remote text-to-speech
// services.
//
// A Synthesizer turns one short text (a word, a phrase or a carrier sentence)
// into a complete encoded audio clip. Clips are small, so the whole payload is
// returned at once and can be cached as-is by the caller.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"errors"
)

// ErrEmptyAudio is returned when a backend reports success but produces no
// audio bytes. Callers treat it like any other synthesis failure.
var ErrEmptyAudio = errors.New("tts: empty audio payload")

// Synthesizer is the abstraction over any remote TTS backend.
type Synthesizer interface {
	// Synthesize renders req.Text with the voice req.VoiceID and returns the
	// encoded clip (MP3 or WAV, see the implementation). Any transport error,
	// non-success status or empty payload is returned as an error.
	Synthesize(ctx context.Context, req Request) ([]byte, error)

	// ListVoices returns the voices the backend currently offers.
	ListVoices(ctx context.Context) ([]Voice, error)
}
