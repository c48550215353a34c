// Package clipcache stores synthesized audio clips keyed by normalised token
// text and voice.
//
// A clip is written the first time a (text, voice) pair is synthesized and is
// never mutated afterwards: a second Put for an existing key keeps the
// original payload. Implementations are safe for concurrent use.
package clipcache

import (
	"context"
	"errors"

	"github.com/MrWong99/lisible/internal/textnorm"
)

// ErrEmptyPayload is returned by Put when the payload has no bytes. An empty
// clip is never a valid synthesis result and must not shadow a later success.
var ErrEmptyPayload = errors.New("clipcache: empty payload")

// Key identifies a cached clip.
type Key struct {
	// Text is the normalised token text.
	Text string

	// VoiceID is the remote synthesis voice the clip was rendered with.
	VoiceID string
}

// NewKey builds a Key from a raw token, normalising it first.
func NewKey(token, voiceID string) Key {
	return Key{Text: textnorm.Normalize(token), VoiceID: voiceID}
}

// String returns a stable single-string form of k, suitable as a map key or
// a hash input.
func (k Key) String() string {
	return k.VoiceID + "\x00" + k.Text
}

// Store is a clip cache backend.
type Store interface {
	// Get returns the payload stored for key. ok is false on a miss; err is
	// only set when the backend itself failed.
	Get(ctx context.Context, key Key) (payload []byte, ok bool, err error)

	// Put inserts payload for key unless key is already present.
	Put(ctx context.Context, key Key, payload []byte) error
}
