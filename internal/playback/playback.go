// Package playback plays an ordered list of tokens one after another.
//
// An [Orchestrator] runs at most one session at a time. Each token is
// resolved through a [Resolver] and played to completion before the next one
// starts; completion of the handle, not a timer, gates the advance. Starting
// a new session cancels the running one, and the new session does not touch
// the audio output until the old one has released it.
//
// Callbacks run on the session goroutine and may call back into the
// orchestrator, for example to chain the next sentence from OnComplete.
package playback

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/MrWong99/lisible/internal/observe"
	"github.com/MrWong99/lisible/internal/textnorm"
	"github.com/MrWong99/lisible/internal/voice"
)

// Resolver is the subset of [voice.Resolver] the orchestrator needs.
type Resolver interface {
	Resolve(ctx context.Context, token, voiceID string) voice.Resolution
}

var _ Resolver = (*voice.Resolver)(nil)

// Outcome is how a session ended.
type Outcome string

const (
	// OutcomeRunning is reported while the session has not ended.
	OutcomeRunning   Outcome = ""
	OutcomeCompleted Outcome = "completed"
	OutcomeCancelled Outcome = "cancelled"
)

// PlayOption configures a single [Orchestrator.Play] call.
type PlayOption func(*playConfig)

type playConfig struct {
	onTokenStart func(index int)
	onComplete   func()
}

// OnTokenStart registers fn to run just before token index is resolved.
// Indices refer to the slice passed to Play; skipped tokens get no call.
func OnTokenStart(fn func(index int)) PlayOption {
	return func(c *playConfig) { c.onTokenStart = fn }
}

// OnComplete registers fn to run once every token has played. It runs after
// the session has ended and Done is closed. It is never called for a
// cancelled session, including one cancelled after its last token played.
func OnComplete(fn func()) PlayOption {
	return func(c *playConfig) { c.onComplete = fn }
}

// Session is one run of [Orchestrator.Play].
type Session struct {
	id      string
	tokens  []string
	voiceID string
	cancel  context.CancelFunc
	done    chan struct{}

	// calling is set while a callback runs on the session goroutine.
	calling atomic.Bool

	mu        sync.Mutex
	cancelled bool
	cursor    int
	outcome   Outcome
	silent    []int
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// Tokens returns the tokens the session was started with.
func (s *Session) Tokens() []string { return slices.Clone(s.tokens) }

// VoiceID returns the remote voice requested for the session.
func (s *Session) VoiceID() string { return s.voiceID }

// Done is closed once the session has ended and released the audio output.
func (s *Session) Done() <-chan struct{} { return s.done }

// Outcome returns how the session ended, or [OutcomeRunning].
func (s *Session) Outcome() Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcome
}

// Cursor returns the index of the token being played or last played, or -1
// before the first token starts.
func (s *Session) Cursor() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Cancelled reports whether Cancel has been called.
func (s *Session) Cancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

// Silent returns the indices of tokens that resolved to no sound at all.
func (s *Session) Silent() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.silent)
}

// Cancel stops the session. It is safe to call any number of times, on a
// nil session and after the session has finished.
func (s *Session) Cancel() {
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.cancelled || s.outcome != OutcomeRunning {
		s.mu.Unlock()
		return
	}
	s.cancelled = true
	s.mu.Unlock()
	s.cancel()
}

func (s *Session) stopped(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled || ctx.Err() != nil
}

func (s *Session) advance(i int) {
	s.mu.Lock()
	s.cursor = i
	s.mu.Unlock()
}

func (s *Session) markSilent(i int) {
	s.mu.Lock()
	s.silent = append(s.silent, i)
	s.mu.Unlock()
}

// finish fixes the outcome. A Cancel that lands after the last token but
// before finish still turns the session into a cancelled one.
func (s *Session) finish(ctx context.Context, o Outcome) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelled || ctx.Err() != nil {
		o = OutcomeCancelled
	}
	s.outcome = o
	return o
}

func (s *Session) call(fn func()) {
	s.calling.Store(true)
	defer s.calling.Store(false)
	fn()
}

// wait blocks until s has ended. Called from one of s's own callbacks it
// returns at once: s stops before the next audio once the callback returns.
func (s *Session) wait() {
	if s.calling.Load() {
		return
	}
	<-s.done
}

// Option configures an [Orchestrator].
type Option func(*Orchestrator)

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// Orchestrator sequences playback sessions. It is safe for concurrent use.
type Orchestrator struct {
	resolver Resolver
	metrics  *observe.Metrics

	mu     sync.Mutex
	active *Session
}

// New returns an Orchestrator resolving tokens through r.
func New(r Resolver, opts ...Option) *Orchestrator {
	o := &Orchestrator{resolver: r}
	for _, opt := range opts {
		opt(o)
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	return o
}

// Play starts a session for tokens. Any running session is cancelled and
// Play waits for it to end, unless Play is called from that session's own
// callback. Either way the new session plays nothing until the previous one
// has ended. ctx bounds the whole session: cancelling it has the same effect
// as [Orchestrator.Cancel].
func (o *Orchestrator) Play(ctx context.Context, tokens []string, voiceID string, opts ...PlayOption) *Session {
	var cfg playConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	sctx, cancel := context.WithCancel(ctx)
	s := &Session{
		id:      uuid.NewString(),
		tokens:  slices.Clone(tokens),
		voiceID: voiceID,
		cancel:  cancel,
		done:    make(chan struct{}),
		cursor:  -1,
	}
	o.mu.Lock()
	prev := o.active
	o.active = s
	o.mu.Unlock()

	prev.Cancel()
	go o.run(sctx, s, prev, cfg)
	if prev != nil {
		prev.wait()
	}
	return s
}

// Cancel stops s. It is idempotent and accepts nil.
func (o *Orchestrator) Cancel(s *Session) {
	s.Cancel()
}

// Stop cancels the running session, if any, and waits for it to end.
func (o *Orchestrator) Stop() {
	if s := o.Active(); s != nil {
		s.Cancel()
		s.wait()
	}
}

// Active returns the running session or nil.
func (o *Orchestrator) Active() *Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active
}

func (o *Orchestrator) run(ctx context.Context, s *Session, prev *Session, cfg playConfig) {
	if prev != nil {
		<-prev.done
	}
	ctx = observe.WithSession(ctx, s.id)
	log := observe.Logger(ctx)
	o.metrics.ActivePlaybacks.Add(ctx, 1)

	outcome := s.finish(ctx, o.loop(ctx, s, cfg, log))

	o.mu.Lock()
	if o.active == s {
		o.active = nil
	}
	o.mu.Unlock()

	s.cancel()
	o.metrics.ActivePlaybacks.Add(context.WithoutCancel(ctx), -1)
	o.metrics.RecordPlaybackSession(context.WithoutCancel(ctx), string(outcome))
	log.Debug("playback session ended", "outcome", outcome, "tokens", len(s.tokens))
	close(s.done)

	if outcome == OutcomeCompleted && cfg.onComplete != nil {
		cfg.onComplete()
	}
}

func (o *Orchestrator) loop(ctx context.Context, s *Session, cfg playConfig, log *slog.Logger) Outcome {
	for i, token := range s.tokens {
		if s.stopped(ctx) {
			return OutcomeCancelled
		}
		if textnorm.Normalize(token) == "" {
			continue
		}
		s.advance(i)
		if cfg.onTokenStart != nil {
			s.call(func() { cfg.onTokenStart(i) })
			if s.stopped(ctx) {
				return OutcomeCancelled
			}
		}

		res := o.resolver.Resolve(ctx, token, s.voiceID)
		if s.stopped(ctx) {
			return OutcomeCancelled
		}
		if res.Silent {
			s.markSilent(i)
		}
		if err := res.Handle.Play(ctx); err != nil {
			if s.stopped(ctx) {
				return OutcomeCancelled
			}
			log.Warn("token playback failed", "index", i, "token", token, "tier", res.Tier, "err", err)
		}
	}
	return OutcomeCompleted
}
