// Package mock provides a test double for the localtts.Synthesizer interface.
//
// Speak returns immediately unless Hold is set, in which case each utterance
// waits until Release is called or its context is cancelled. This lets tests
// observe an utterance "in progress".
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/lisible/pkg/provider/localtts"
)

// Synthesizer is a mock implementation of localtts.Synthesizer.
type Synthesizer struct {
	mu sync.Mutex

	// VoiceList is returned by Voices.
	VoiceList []localtts.Voice

	// VoicesErr, if non-nil, is returned by Voices.
	VoicesErr error

	// SpeakErr, if non-nil, is returned by Speak after OnStart fires.
	SpeakErr error

	// Hold makes every Speak block until Release or cancellation.
	Hold bool

	spoken  []localtts.Utterance
	release chan struct{}
}

var _ localtts.Synthesizer = (*Synthesizer)(nil)

// Voices returns VoiceList, VoicesErr.
func (s *Synthesizer) Voices(_ context.Context) ([]localtts.Voice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.VoiceList, s.VoicesErr
}

// Speak records u, fires u.OnStart and returns SpeakErr.
func (s *Synthesizer) Speak(ctx context.Context, u localtts.Utterance) error {
	s.mu.Lock()
	s.spoken = append(s.spoken, u)
	err := s.SpeakErr
	var wait chan struct{}
	if s.Hold {
		if s.release == nil {
			s.release = make(chan struct{})
		}
		wait = s.release
	}
	s.mu.Unlock()

	if u.OnStart != nil {
		u.OnStart()
	}
	if wait != nil {
		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// Release unblocks every utterance currently held.
func (s *Synthesizer) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.release != nil {
		close(s.release)
		s.release = nil
	}
}

// Spoken returns a copy of the recorded utterances.
func (s *Synthesizer) Spoken() []localtts.Utterance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]localtts.Utterance(nil), s.spoken...)
}
