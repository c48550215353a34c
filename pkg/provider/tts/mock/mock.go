// Package mock provides a test double for the tts.Synthesizer interface.
//
// Example:
//
//	s := &mock.Synthesizer{Audio: []byte("RIFF....")}
//	clip, _ := s.Synthesize(ctx, tts.Request{Text: "table", VoiceID: "v1"})
//	// s.Calls()[0].Request.Text == "table"
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/lisible/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	// Ctx is the context passed to Synthesize.
	Ctx context.Context
	// Request is the request passed to Synthesize.
	Request tts.Request
}

// Synthesizer is a mock implementation of tts.Synthesizer.
type Synthesizer struct {
	mu sync.Mutex

	// Audio is returned by Synthesize when Err is nil and AudioFunc is unset.
	Audio []byte

	// Err, if non-nil, is returned by Synthesize.
	Err error

	// AudioFunc, if set, computes the result per request and takes precedence
	// over Audio and Err.
	AudioFunc func(ctx context.Context, req tts.Request) ([]byte, error)

	// Block, if non-nil, makes Synthesize wait until it is closed or the
	// context is cancelled.
	Block chan struct{}

	// Voices is returned by ListVoices.
	Voices []tts.Voice

	// ListVoicesErr, if non-nil, is returned by ListVoices.
	ListVoicesErr error

	calls []SynthesizeCall
}

var _ tts.Synthesizer = (*Synthesizer)(nil)

// Synthesize records the call and returns the configured result.
func (s *Synthesizer) Synthesize(ctx context.Context, req tts.Request) ([]byte, error) {
	s.mu.Lock()
	s.calls = append(s.calls, SynthesizeCall{Ctx: ctx, Request: req})
	fn, audio, err, block := s.AudioFunc, s.Audio, s.Err, s.Block
	s.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fn != nil {
		return fn(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), audio...), nil
}

// ListVoices returns Voices, ListVoicesErr.
func (s *Synthesizer) ListVoices(_ context.Context) ([]tts.Voice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Voices, s.ListVoicesErr
}

// SetErr replaces Err under the lock so it can be changed while calls are in
// flight.
func (s *Synthesizer) SetErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Err = err
}

// Calls returns a copy of the recorded Synthesize calls.
func (s *Synthesizer) Calls() []SynthesizeCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SynthesizeCall(nil), s.calls...)
}

// CallCount returns the number of Synthesize calls so far.
func (s *Synthesizer) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// Reset clears all recorded calls.
func (s *Synthesizer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}
