package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/lisible/pkg/audio"
	"github.com/MrWong99/lisible/pkg/provider/localtts"
	"github.com/MrWong99/lisible/pkg/provider/stt"
	"github.com/MrWong99/lisible/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory builds a provider of type T from its configuration entry.
type Factory[T any] func(ProviderEntry) (T, error)

// factories is a name-keyed set of constructors for one provider kind.
type factories[T any] struct {
	kind string
	m    map[string]Factory[T]
}

func newFactories[T any](kind string) factories[T] {
	return factories[T]{kind: kind, m: make(map[string]Factory[T])}
}

func (f factories[T]) create(mu *sync.RWMutex, entry ProviderEntry) (T, error) {
	mu.RLock()
	factory, ok := f.m[entry.Name]
	mu.RUnlock()
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, f.kind, entry.Name)
	}
	return factory(entry)
}

// Registry maps provider names to their constructor functions for each
// provider kind. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	tts      factories[tts.Synthesizer]
	localTTS factories[localtts.Synthesizer]
	stt      factories[stt.Transcriber]
	audio    factories[audio.Player]
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		tts:      newFactories[tts.Synthesizer]("tts"),
		localTTS: newFactories[localtts.Synthesizer]("local_tts"),
		stt:      newFactories[stt.Transcriber]("stt"),
		audio:    newFactories[audio.Player]("audio"),
	}
}

// RegisterTTS registers a remote synthesizer factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterTTS(name string, factory Factory[tts.Synthesizer]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts.m[name] = factory
}

// RegisterLocalTTS registers a local speech engine factory under name.
func (r *Registry) RegisterLocalTTS(name string, factory Factory[localtts.Synthesizer]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.localTTS.m[name] = factory
}

// RegisterSTT registers a transcriber factory under name.
func (r *Registry) RegisterSTT(name string, factory Factory[stt.Transcriber]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt.m[name] = factory
}

// RegisterAudio registers an audio player factory under name.
func (r *Registry) RegisterAudio(name string, factory Factory[audio.Player]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audio.m[name] = factory
}

// CreateTTS instantiates the remote synthesizer registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Synthesizer, error) {
	return r.tts.create(&r.mu, entry)
}

// CreateLocalTTS instantiates the local engine registered under entry.Name.
func (r *Registry) CreateLocalTTS(entry ProviderEntry) (localtts.Synthesizer, error) {
	return r.localTTS.create(&r.mu, entry)
}

// CreateSTT instantiates the transcriber registered under entry.Name.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Transcriber, error) {
	return r.stt.create(&r.mu, entry)
}

// CreateAudio instantiates the audio player registered under entry.Name.
func (r *Registry) CreateAudio(entry ProviderEntry) (audio.Player, error) {
	return r.audio.create(&r.mu, entry)
}
