// Package mock provides an in-memory [audio.Player] for unit tests.
//
// By default Play returns immediately. With Hold set, every Play blocks until
// the test calls Finish (one clip per call) or the context is cancelled, so a
// test can observe which clip is "playing" and decide when it ends:
//
//	p := &mock.Player{Hold: true}
//	go orchestrator.Play(ctx, tokens, "v1")
//	clip := <-p.Started()
//	p.Finish()
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/lisible/pkg/audio"
)

const chanBuf = 64

// Player is a mock implementation of [audio.Player].
type Player struct {
	mu sync.Mutex

	// Err, if non-nil, is returned by every Play.
	Err error

	// ErrFunc, if set, decides the error per clip and overrides Err.
	ErrFunc func(clip audio.Clip) error

	// Hold makes Play block until Finish or cancellation.
	Hold bool

	plays     []audio.Clip
	cancelled int
	started   chan audio.Clip
	finish    chan struct{}
}

var _ audio.Player = (*Player)(nil)

func (p *Player) chans() (chan audio.Clip, chan struct{}) {
	if p.started == nil {
		p.started = make(chan audio.Clip, chanBuf)
		p.finish = make(chan struct{}, chanBuf)
	}
	return p.started, p.finish
}

// Play implements [audio.Player].
func (p *Player) Play(ctx context.Context, clip audio.Clip) error {
	p.mu.Lock()
	started, finish := p.chans()
	err := p.Err
	if p.ErrFunc != nil {
		err = p.ErrFunc(clip)
	}
	if err != nil {
		// Decode failures happen before any sound.
		p.mu.Unlock()
		return err
	}
	p.plays = append(p.plays, clip)
	hold := p.Hold
	p.mu.Unlock()

	select {
	case started <- clip:
	default:
	}
	if !hold {
		return nil
	}
	select {
	case <-finish:
		return nil
	case <-ctx.Done():
		p.mu.Lock()
		p.cancelled++
		p.mu.Unlock()
		return ctx.Err()
	}
}

// Started delivers every clip as its playback begins.
func (p *Player) Started() <-chan audio.Clip {
	p.mu.Lock()
	defer p.mu.Unlock()
	started, _ := p.chans()
	return started
}

// Finish ends one held playback.
func (p *Player) Finish() {
	p.mu.Lock()
	_, finish := p.chans()
	p.mu.Unlock()
	finish <- struct{}{}
}

// Plays returns a copy of the clips that started playing.
func (p *Player) Plays() []audio.Clip {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]audio.Clip(nil), p.plays...)
}

// Cancelled returns how many held playbacks ended by cancellation.
func (p *Player) Cancelled() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancelled
}
