// Package speaker plays clips on the host's default sound card using
// github.com/faiface/beep. It needs cgo and the platform audio headers
// (ALSA on Linux), which is why it has no unit tests of its own; decoding is
// covered in package decode.
//
// The sound card is opened once at a fixed sample rate; clips with other
// rates are resampled on the fly. Only one clip plays at a time.
package speaker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"

	"github.com/MrWong99/lisible/pkg/audio"
	"github.com/MrWong99/lisible/pkg/audio/decode"
)

const (
	defaultSampleRate = beep.SampleRate(44100)
	resampleQuality   = 4
)

// Option configures a [Player].
type Option func(*Player)

// WithSampleRate sets the output device rate. Default: 44100 Hz.
func WithSampleRate(rate int) Option {
	return func(p *Player) {
		p.rate = beep.SampleRate(rate)
	}
}

// WithBufferDuration sets the device buffer length. Shorter buffers cut
// playback more promptly on cancellation. Default: 100ms.
func WithBufferDuration(d time.Duration) Option {
	return func(p *Player) {
		p.buffer = d
	}
}

// Player implements [audio.Player] on the default output device.
type Player struct {
	rate   beep.SampleRate
	buffer time.Duration

	// play serialises clips; beep mixes concurrent streamers otherwise.
	play sync.Mutex
}

var _ audio.Player = (*Player)(nil)

// New initialises the output device.
func New(opts ...Option) (*Player, error) {
	p := &Player{rate: defaultSampleRate, buffer: 100 * time.Millisecond}
	for _, o := range opts {
		o(p)
	}
	if err := speaker.Init(p.rate, p.rate.N(p.buffer)); err != nil {
		return nil, fmt.Errorf("speaker: init: %w", err)
	}
	return p, nil
}

// Play decodes clip and blocks until it has been played out.
func (p *Player) Play(ctx context.Context, clip audio.Clip) error {
	stream, f, err := decode.Clip(clip)
	if err != nil {
		return fmt.Errorf("speaker: %w", err)
	}
	defer stream.Close()
	sr := f.SampleRate

	p.play.Lock()
	defer p.play.Unlock()

	var s beep.Streamer = stream
	if sr != p.rate {
		s = beep.Resample(resampleQuality, sr, p.rate, s)
	}
	ctrl := &beep.Ctrl{Streamer: s}
	done := make(chan struct{})
	speaker.Play(beep.Seq(ctrl, beep.Callback(func() { close(done) })))

	select {
	case <-done:
		return stream.Err()
	case <-ctx.Done():
		// A nil streamer ends the Seq on the next buffer fill.
		speaker.Lock()
		ctrl.Streamer = nil
		speaker.Unlock()
		return ctx.Err()
	}
}
