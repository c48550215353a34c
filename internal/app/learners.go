package app

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/MrWong99/lisible/internal/api"
	"github.com/MrWong99/lisible/internal/observe"
	"github.com/MrWong99/lisible/internal/playback"
	"github.com/MrWong99/lisible/internal/recordings"
	"github.com/MrWong99/lisible/internal/voice"
)

var (
	_ api.Resolvers = (*Learners)(nil)
	_ api.Listener  = (*Learners)(nil)
)

// learner is the per-learner playback state. view is swapped at the start
// of every listen so the orchestrator resolves against the recordings index
// loaded for that session.
type learner struct {
	// listenMu serialises listens so that stopping the previous session,
	// swapping the view and starting the next session happen as one step.
	listenMu sync.Mutex

	orch *playback.Orchestrator
	view atomic.Pointer[voice.Resolver]
	last *playback.Session
}

func (st *learner) Resolve(ctx context.Context, token, voiceID string) voice.Resolution {
	return st.view.Load().Resolve(ctx, token, voiceID)
}

// Learners owns one playback orchestrator per learner, each resolving
// through a resolver view that knows the learner's personal recordings.
// Orchestrators are created on first use. All methods are safe for
// concurrent use.
type Learners struct {
	shared     *voice.Resolver
	recordings *recordings.Cache
	metrics    *observe.Metrics

	mu       sync.Mutex
	learners map[string]*learner
}

// NewLearners returns a registry resolving through shared. recs may be nil
// when no personal recordings are configured.
func NewLearners(shared *voice.Resolver, recs *recordings.Cache, m *observe.Metrics) *Learners {
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return &Learners{
		shared:     shared,
		recordings: recs,
		metrics:    m,
		learners:   make(map[string]*learner),
	}
}

// ResolverFor returns the resolver for learnerID. When the learner's
// recordings cannot be loaded the shared resolver is returned, so the
// cascade starts at the cache tier.
func (l *Learners) ResolverFor(ctx context.Context, learnerID string) *voice.Resolver {
	if learnerID == "" || l.recordings == nil {
		return l.shared
	}
	ctx = observe.WithLearner(ctx, learnerID)
	ix, err := l.recordings.Index(ctx, learnerID)
	if err != nil {
		observe.Logger(ctx).Warn("personal recordings unavailable", "err", err)
		return l.shared
	}
	return l.shared.ForLearner(ix)
}

// Listen starts playing tokens for learnerID, cancelling whatever the
// learner was listening to. The learner's recordings are reloaded for
// every listen so that newly recorded words are picked up.
func (l *Learners) Listen(ctx context.Context, learnerID string, tokens []string, voiceID string) *playback.Session {
	ctx = observe.WithLearner(ctx, learnerID)
	if l.recordings != nil {
		l.recordings.Invalidate(learnerID)
	}
	res := l.ResolverFor(ctx, learnerID)

	l.mu.Lock()
	st, ok := l.learners[learnerID]
	if !ok {
		st = &learner{}
		st.view.Store(res)
		st.orch = playback.New(st, playback.WithMetrics(l.metrics))
		l.learners[learnerID] = st
	}
	l.mu.Unlock()

	st.listenMu.Lock()
	defer st.listenMu.Unlock()

	// The previous session must be over before the view is swapped.
	st.orch.Stop()
	st.view.Store(res)
	log := observe.Logger(ctx)
	s := st.orch.Play(ctx, tokens, voiceID, playback.OnTokenStart(func(i int) {
		log.Debug("listen: token started", "index", i)
	}))

	l.mu.Lock()
	st.last = s
	l.mu.Unlock()

	log.Info("listen started", "session_id", s.ID(), "tokens", len(tokens), "voice_id", voiceID)
	return s
}

// Session returns the learner's most recent session, or nil.
func (l *Learners) Session(learnerID string) *playback.Session {
	l.mu.Lock()
	defer l.mu.Unlock()
	if st, ok := l.learners[learnerID]; ok {
		return st.last
	}
	return nil
}

// Cancel stops the learner's running session and reports whether one was
// running.
func (l *Learners) Cancel(learnerID string) bool {
	l.mu.Lock()
	st, ok := l.learners[learnerID]
	l.mu.Unlock()
	if !ok {
		return false
	}
	s := st.orch.Active()
	if s == nil {
		return false
	}
	s.Cancel()
	slog.Info("listen cancelled", "learner_id", learnerID, "session_id", s.ID())
	return true
}

// Active returns the number of learners with a running session.
func (l *Learners) Active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, st := range l.learners {
		if st.orch.Active() != nil {
			n++
		}
	}
	return n
}

// StopAll cancels every running session and waits for them to end.
func (l *Learners) StopAll() {
	l.mu.Lock()
	orchs := make([]*playback.Orchestrator, 0, len(l.learners))
	for _, st := range l.learners {
		orchs = append(orchs, st.orch)
	}
	l.mu.Unlock()

	for _, o := range orchs {
		o.Stop()
	}
}
