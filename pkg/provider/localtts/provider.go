// Package localtts defines the Synthesizer interface for speech engines that
// run on the playback device itself and speak directly to its audio output.
//
// Local engines are the last resort of the voice cascade: they produce no
// cacheable payload, only sound, and report the start and end of speech so
// that the caller can sequence tokens.
package localtts

import "context"

// Voice describes one voice of a local engine.
type Voice struct {
	// ID is passed back to the engine to select the voice.
	ID string `json:"id"`

	// Name is the human-readable voice name.
	Name string `json:"name"`

	// Language is the voice's BCP 47 language tag (e.g. "fr-FR").
	Language string `json:"language"`

	// Gender is "M", "F" or empty when unknown.
	Gender string `json:"gender,omitempty"`
}

// Utterance is a single request to speak.
type Utterance struct {
	Text  string
	Voice Voice

	// OnStart, if set, is called once audio output has begun.
	OnStart func()
}

// Synthesizer is a local speech engine.
//
// Implementations must be safe for concurrent use, although callers serialise
// utterances that share one audio device.
type Synthesizer interface {
	// Voices lists the engine's installed voices.
	Voices(ctx context.Context) ([]Voice, error)

	// Speak speaks u and returns when speech has ended. Cancelling ctx stops
	// speech and returns ctx.Err().
	Speak(ctx context.Context, u Utterance) error
}
