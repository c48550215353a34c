// Package voice decides which audio source plays a token.
//
// A [Resolver] walks four tiers in order and returns the first that can
// produce sound:
//
//  1. personal: the learner's own recording of the word;
//  2. cached: a clip synthesized earlier for the same text and voice;
//  3. synthesized: a fresh clip from the remote text-to-speech service,
//     stored in the cache on success;
//  4. local-fallback: the device's own speech engine.
//
// Failures never surface as errors. Each tier that cannot serve falls
// through to the next, and when nothing at all can speak the resolution is
// marked [Resolution.Silent]. A failed remote call marks the shared
// [resilience.Availability] exhausted so that later tokens skip the remote
// tier until a call succeeds again.
package voice

import (
	"context"
	"errors"

	"github.com/MrWong99/lisible/pkg/audio"
)

// ErrNoPlayer is returned by a clip handle when the resolver was built
// without an [audio.Player].
var ErrNoPlayer = errors.New("voice: no audio player configured")

// Tier names the source a resolution came from.
type Tier string

const (
	TierPersonal      Tier = "personal"
	TierCached        Tier = "cached"
	TierSynthesized   Tier = "synthesized"
	TierLocalFallback Tier = "local-fallback"
)

// Handle plays a resolved token. Play blocks until playback has finished
// and returns ctx.Err() promptly once ctx is cancelled.
type Handle interface {
	Play(ctx context.Context) error
}

// Resolution is the outcome of resolving one token.
type Resolution struct {
	Tier Tier

	// Silent is set when no tier could produce sound. Handle is then a
	// no-op.
	Silent bool

	// Clip holds the encoded audio for the personal, cached and synthesized
	// tiers. It is empty for local-fallback.
	Clip audio.Clip

	Handle Handle
}

var silent = Resolution{Tier: TierLocalFallback, Silent: true, Handle: silentHandle{}}

type silentHandle struct{}

func (silentHandle) Play(context.Context) error { return nil }
