package voice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/language"

	"github.com/MrWong99/lisible/internal/clipcache"
	"github.com/MrWong99/lisible/internal/observe"
	"github.com/MrWong99/lisible/internal/recordings"
	"github.com/MrWong99/lisible/internal/resilience"
	"github.com/MrWong99/lisible/internal/textnorm"
	"github.com/MrWong99/lisible/pkg/audio"
	"github.com/MrWong99/lisible/pkg/provider/localtts"
	"github.com/MrWong99/lisible/pkg/provider/tts"
)

const defaultPrefetchConcurrency = 4

// Option configures a [Resolver].
type Option func(*Resolver)

// WithCache sets the clip cache. Default: an unbounded in-memory cache.
func WithCache(c clipcache.Store) Option {
	return func(r *Resolver) { r.cache = c }
}

// WithRemote sets the remote synthesizer. Without one the synthesized tier
// is skipped.
func WithRemote(s tts.Synthesizer) Option {
	return func(r *Resolver) { r.remote = s }
}

// WithLocal sets the device speech engine used as the last tier.
func WithLocal(s localtts.Synthesizer) Option {
	return func(r *Resolver) { r.local = s }
}

// WithPlayer sets the audio output for clip-based tiers.
func WithPlayer(p audio.Player) Option {
	return func(r *Resolver) { r.player = p }
}

// WithFetcher sets how personal recording references are loaded.
// Default: [recordings.NewFetcher].
func WithFetcher(f recordings.Fetcher) Option {
	return func(r *Resolver) { r.fetcher = f }
}

// WithAvailability shares an availability flag between resolvers. Default:
// a private flag named "tts".
func WithAvailability(a *resilience.Availability) Option {
	return func(r *Resolver) { r.avail = a }
}

// WithSettings sets the initial [Settings]. Default: [DefaultSettings].
func WithSettings(s Settings) Option {
	return func(r *Resolver) { r.settings.Store(&s) }
}

// WithSynthesisTimeout bounds each remote synthesis call. Zero (the default)
// leaves calls unbounded.
func WithSynthesisTimeout(d time.Duration) Option {
	return func(r *Resolver) { r.timeout = d }
}

// WithPrefetchConcurrency limits parallel synthesis in [Resolver.Prefetch].
// Default: 4.
func WithPrefetchConcurrency(n int) Option {
	return func(r *Resolver) { r.prefetchLimit = n }
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

// Resolver resolves tokens to playable handles. It is safe for concurrent
// use. Resolvers returned by [Resolver.ForLearner] share the cache, the
// availability flag, the settings and in-flight synthesis with their parent.
type Resolver struct {
	cache         clipcache.Store
	remote        tts.Synthesizer
	local         localtts.Synthesizer
	player        audio.Player
	fetcher       recordings.Fetcher
	avail         *resilience.Availability
	metrics       *observe.Metrics
	timeout       time.Duration
	prefetchLimit int

	settings *atomic.Pointer[Settings]
	flights  *singleflight.Group

	personal *recordings.Index
}

// New returns a Resolver configured by opts.
func New(opts ...Option) *Resolver {
	r := &Resolver{
		settings:      new(atomic.Pointer[Settings]),
		flights:       new(singleflight.Group),
		prefetchLimit: defaultPrefetchConcurrency,
	}
	def := DefaultSettings()
	r.settings.Store(&def)
	for _, o := range opts {
		o(r)
	}
	if r.metrics == nil {
		r.metrics = observe.DefaultMetrics()
	}
	if r.cache == nil {
		r.cache = clipcache.NewMemory(0)
	}
	if r.fetcher == nil {
		r.fetcher = recordings.NewFetcher()
	}
	if r.avail == nil {
		m := r.metrics
		r.avail = resilience.NewAvailability("tts", resilience.WithStateListener(
			func(name string, to resilience.AvailabilityState) {
				m.RecordAvailabilityChange(context.Background(), name, to.String())
			}))
	}
	if r.prefetchLimit <= 0 {
		r.prefetchLimit = defaultPrefetchConcurrency
	}
	return r
}

// ForLearner returns a resolver that also consults ix for personal
// recordings. A nil ix disables the personal tier.
func (r *Resolver) ForLearner(ix *recordings.Index) *Resolver {
	c := *r
	c.personal = ix
	return &c
}

// Availability returns the shared availability flag.
func (r *Resolver) Availability() *resilience.Availability { return r.avail }

// Settings returns the current settings.
func (r *Resolver) Settings() Settings { return *r.settings.Load() }

// SetSettings replaces the settings for subsequent resolutions.
func (r *Resolver) SetSettings(s Settings) {
	s.Denylist = append([]string(nil), s.Denylist...)
	r.settings.Store(&s)
}

// Resolve picks the audio source for token. Blocking work (fetching a
// recording, remote synthesis, listing local voices) happens here, so the
// returned handle only plays. If ctx is cancelled while resolving, the
// result is silent; a remote call already in flight still completes and
// fills the cache.
func (r *Resolver) Resolve(ctx context.Context, token, voiceID string) Resolution {
	ctx, span := observe.StartSpan(ctx, "voice.Resolve")
	defer span.End()

	res := r.resolve(ctx, token, voiceID)
	span.SetAttributes(
		attribute.String("voice.tier", string(res.Tier)),
		attribute.Bool("voice.silent", res.Silent),
	)
	r.metrics.RecordResolution(ctx, string(res.Tier))
	observe.Logger(ctx).Debug("voice resolved",
		"token", token, "voice_id", voiceID, "tier", res.Tier, "silent", res.Silent)
	return res
}

func (r *Resolver) resolve(ctx context.Context, token, voiceID string) Resolution {
	if textnorm.Normalize(token) == "" {
		return silent
	}
	if res, ok := r.personalTier(ctx, token, voiceID); ok {
		return res
	}
	return r.sharedTiers(ctx, token, voiceID)
}

// personalTier loads the learner's recording of token, if any.
func (r *Resolver) personalTier(ctx context.Context, token, voiceID string) (Resolution, bool) {
	ref, ok := r.personal.Lookup(token)
	if !ok {
		return Resolution{}, false
	}
	data, err := r.fetcher.Fetch(ctx, ref)
	if err != nil {
		observe.Logger(ctx).Warn("personal recording unavailable", "token", token, "ref", ref, "err", err)
		return Resolution{}, false
	}
	clip := audio.NewClip(data)
	return Resolution{
		Tier:   TierPersonal,
		Clip:   clip,
		Handle: &personalHandle{r: r, clip: clip, token: token, voiceID: voiceID},
	}, true
}

// sharedTiers walks the cached, synthesized and local tiers.
func (r *Resolver) sharedTiers(ctx context.Context, token, voiceID string) Resolution {
	if voiceID != "" {
		key := clipcache.NewKey(token, voiceID)
		payload, ok, err := r.cache.Get(ctx, key)
		if err != nil {
			observe.Logger(ctx).Warn("clip cache lookup failed", "token", token, "err", err)
		}
		if ok {
			clip := audio.NewClip(payload)
			return Resolution{Tier: TierCached, Clip: clip, Handle: &clipHandle{player: r.player, clip: clip}}
		}

		if r.remote != nil {
			payload, err := r.synthesize(ctx, token, voiceID, key)
			if err == nil {
				clip := audio.NewClip(payload)
				return Resolution{Tier: TierSynthesized, Clip: clip, Handle: &clipHandle{player: r.player, clip: clip}}
			}
			if ctx.Err() != nil {
				return silent
			}
			observe.Logger(ctx).Debug("remote synthesis skipped or failed", "token", token, "err", err)
		}
	}
	return r.localTier(ctx, token)
}

// synthesize returns a clip for token from the remote service. Concurrent
// calls for the same key share one request. The request runs detached from
// ctx: a caller that gives up stops waiting, but the clip still reaches the
// cache.
func (r *Resolver) synthesize(ctx context.Context, token, voiceID string, key clipcache.Key) ([]byte, error) {
	settings := r.Settings()
	detached := context.WithoutCancel(ctx)

	ch := r.flights.DoChan(key.String(), func() (any, error) {
		if payload, ok, _ := r.cache.Get(detached, key); ok {
			return payload, nil
		}
		var payload []byte
		err := r.avail.Do(func() error {
			var err error
			payload, err = r.callRemote(detached, settings, token, voiceID)
			return err
		})
		if err != nil {
			return nil, err
		}
		if err := r.cache.Put(detached, key, payload); err != nil {
			observe.Logger(ctx).Warn("clip cache insert failed", "token", token, "err", err)
		}
		return payload, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Resolver) callRemote(ctx context.Context, settings Settings, token, voiceID string) ([]byte, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	ctx, span := observe.StartSpan(ctx, "voice.synthesize")
	defer span.End()

	start := time.Now()
	payload, err := r.remote.Synthesize(ctx, tts.Request{
		Text:     settings.synthesisText(token),
		VoiceID:  voiceID,
		Language: settings.Language,
	})
	r.metrics.SynthesisDuration.Record(ctx, time.Since(start).Seconds())
	if err == nil && len(payload) == 0 {
		err = tts.ErrEmptyAudio
	}
	if err != nil {
		kind := "error"
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			kind = "timeout"
		case errors.Is(err, tts.ErrEmptyAudio):
			kind = "empty"
		}
		r.metrics.RecordSynthesisError(ctx, kind)
		span.RecordError(err)
		observe.Logger(ctx).Warn("remote synthesis failed", "token", token, "voice_id", voiceID, "err", err)
		return nil, fmt.Errorf("voice: synthesize %q: %w", token, err)
	}
	return payload, nil
}

// localTier speaks token with the device engine, or returns silent when no
// suitable engine or voice exists.
func (r *Resolver) localTier(ctx context.Context, token string) Resolution {
	if r.local == nil {
		return silent
	}
	v, ok := r.pickLocalVoice(ctx, r.Settings())
	if !ok {
		return silent
	}
	return Resolution{
		Tier:   TierLocalFallback,
		Handle: &localHandle{
			engine:    r.local,
			metrics:   r.metrics,
			utterance: localtts.Utterance{Text: strings.TrimSpace(token), Voice: v},
		},
	}
}

// pickLocalVoice prefers the hinted voice, then a non-denied voice with the
// exact configured language, then one sharing its base language.
func (r *Resolver) pickLocalVoice(ctx context.Context, s Settings) (localtts.Voice, bool) {
	voices, err := r.local.Voices(ctx)
	if err != nil {
		observe.Logger(ctx).Warn("local voices unavailable", "err", err)
		return localtts.Voice{}, false
	}
	if s.LocalVoiceHint != "" {
		for _, v := range voices {
			if strings.EqualFold(v.ID, s.LocalVoiceHint) || strings.EqualFold(v.Name, s.LocalVoiceHint) {
				return v, true
			}
		}
	}

	want, wantErr := language.Parse(s.Language)
	wantBase, _ := want.Base()
	var fallback *localtts.Voice
	for i, v := range voices {
		if s.denied(v.ID, v.Name) {
			continue
		}
		if s.Language == "" || wantErr != nil {
			return v, true
		}
		tag, err := language.Parse(v.Language)
		if err != nil {
			continue
		}
		if tag.String() == want.String() {
			return v, true
		}
		if base, _ := tag.Base(); base == wantBase && fallback == nil {
			fallback = &voices[i]
		}
	}
	if fallback != nil {
		return *fallback, true
	}
	return localtts.Voice{}, false
}

// Prefetch synthesizes and caches every token not yet cached, without
// playing anything. Tokens covered by a personal recording are skipped.
// Per-token failures are ignored; the returned error is non-nil only when
// ctx ends first.
func (r *Resolver) Prefetch(ctx context.Context, tokens []string, voiceID string) error {
	if r.remote == nil || voiceID == "" {
		return nil
	}
	var g errgroup.Group
	g.SetLimit(r.prefetchLimit)
	seen := make(map[clipcache.Key]struct{}, len(tokens))
	for _, token := range tokens {
		key := clipcache.NewKey(token, voiceID)
		if key.Text == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if _, ok := r.personal.Lookup(token); ok {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if _, ok, _ := r.cache.Get(ctx, key); ok {
				return nil
			}
			if _, err := r.synthesize(ctx, token, voiceID, key); err != nil {
				observe.Logger(ctx).Debug("prefetch skipped token", "token", token, "err", err)
			}
			return nil
		})
	}
	g.Wait()
	return ctx.Err()
}
