// Package stt defines the Transcriber interface for speech-to-text backends
// used to grade dictation answers.
//
// A learner's spoken answer is short (a word, a phrase, a sentence) and is
// uploaded whole, so transcription is a single request/response call.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
)

// ErrEmptyAudio is returned when the audio payload is empty.
var ErrEmptyAudio = errors.New("stt: empty audio")

// Transcriber is the abstraction over any STT backend.
type Transcriber interface {
	// Transcribe returns the recognised text of audio, an encoded file (WAV,
	// or any container the backend accepts). language is a BCP 47 hint; empty
	// lets the backend use its default or auto-detect.
	Transcribe(ctx context.Context, audio []byte, language string) (string, error)
}
