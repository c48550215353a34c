package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/lisible/internal/playback"
	"github.com/MrWong99/lisible/internal/recordings"
	"github.com/MrWong99/lisible/internal/voice"
	"github.com/MrWong99/lisible/pkg/audio"
	audiomock "github.com/MrWong99/lisible/pkg/audio/mock"
	ttsmock "github.com/MrWong99/lisible/pkg/provider/tts/mock"
)

var synthAudio = []byte("ID3 synthesized")

// stubSource serves recordings from memory and counts loads.
type stubSource struct {
	mu    sync.Mutex
	recs  map[string][]recordings.Recording
	err   error
	loads int
}

func (s *stubSource) Recordings(_ context.Context, learnerID string) ([]recordings.Recording, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	if s.err != nil {
		return nil, s.err
	}
	return s.recs[learnerID], nil
}

func (s *stubSource) set(learnerID string, recs ...recordings.Recording) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recs == nil {
		s.recs = make(map[string][]recordings.Recording)
	}
	s.recs[learnerID] = recs
}

// writeRecording writes a fake mp3 into a temp dir and returns its path.
func writeRecording(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write recording: %v", err)
	}
	return path
}

func waitDone(t *testing.T, s *playback.Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not finish")
	}
}

func waitStarted(t *testing.T, p *audiomock.Player) {
	t.Helper()
	select {
	case <-p.Started():
	case <-time.After(2 * time.Second):
		t.Fatal("playback did not start")
	}
}

func newTestLearners(src recordings.Source, player *audiomock.Player) (*Learners, *ttsmock.Synthesizer) {
	remote := &ttsmock.Synthesizer{Audio: synthAudio}
	shared := voice.New(voice.WithRemote(remote), voice.WithPlayer(player))
	var recs *recordings.Cache
	if src != nil {
		recs = recordings.NewCache(src)
	}
	return NewLearners(shared, recs, nil), remote
}

func TestLearners_ResolverForWithoutRecordings(t *testing.T) {
	t.Parallel()

	l, _ := newTestLearners(nil, &audiomock.Player{})
	if got := l.ResolverFor(context.Background(), "alice"); got != l.shared {
		t.Error("expected the shared resolver when no recordings are configured")
	}
}

func TestLearners_ResolverForPersonal(t *testing.T) {
	t.Parallel()

	src := &stubSource{}
	src.set("alice", recordings.Recording{Word: "Table", AudioRef: writeRecording(t, "table.mp3", []byte("ID3 alice"))})
	l, remote := newTestLearners(src, &audiomock.Player{})

	ctx := context.Background()
	res := l.ResolverFor(ctx, "alice").Resolve(ctx, "table", "v1")
	if res.Tier != voice.TierPersonal {
		t.Fatalf("tier = %q, want %q", res.Tier, voice.TierPersonal)
	}
	if string(res.Clip.Data) != "ID3 alice" {
		t.Errorf("clip = %q, want the personal recording", res.Clip.Data)
	}
	if remote.CallCount() != 0 {
		t.Errorf("remote called %d times, want 0", remote.CallCount())
	}

	// Another learner has no recording of the word.
	res = l.ResolverFor(ctx, "bob").Resolve(ctx, "table", "v1")
	if res.Tier != voice.TierSynthesized {
		t.Errorf("bob tier = %q, want %q", res.Tier, voice.TierSynthesized)
	}
}

func TestLearners_ResolverForSourceError(t *testing.T) {
	t.Parallel()

	src := &stubSource{err: errors.New("db down")}
	l, _ := newTestLearners(src, &audiomock.Player{})

	ctx := context.Background()
	r := l.ResolverFor(ctx, "alice")
	if r != l.shared {
		t.Error("expected the shared resolver when recordings fail to load")
	}
	if res := r.Resolve(ctx, "table", "v1"); res.Tier != voice.TierSynthesized {
		t.Errorf("tier = %q, want %q", res.Tier, voice.TierSynthesized)
	}
}

func TestLearners_ListenPlaysInOrder(t *testing.T) {
	t.Parallel()

	player := &audiomock.Player{Hold: true}
	l, remote := newTestLearners(nil, player)

	s := l.Listen(context.Background(), "alice", []string{"le", "chat"}, "v1")
	for range 2 {
		waitStarted(t, player)
		player.Finish()
	}
	waitDone(t, s)

	if s.Outcome() != playback.OutcomeCompleted {
		t.Errorf("outcome = %q, want %q", s.Outcome(), playback.OutcomeCompleted)
	}
	calls := remote.Calls()
	if len(calls) != 2 || calls[0].Request.Text != "le" || calls[1].Request.Text != "chat" {
		t.Errorf("unexpected synthesis calls: %+v", calls)
	}
	if got := l.Session("alice"); got != s {
		t.Error("Session did not return the latest session")
	}
	if l.Cancel("alice") {
		t.Error("Cancel reported a running session after completion")
	}
}

func TestLearners_CancelRunning(t *testing.T) {
	t.Parallel()

	player := &audiomock.Player{Hold: true}
	l, _ := newTestLearners(nil, player)

	s := l.Listen(context.Background(), "alice", []string{"le", "chat", "noir"}, "v1")
	waitStarted(t, player)
	if l.Active() != 1 {
		t.Errorf("Active = %d, want 1", l.Active())
	}
	if !l.Cancel("alice") {
		t.Fatal("Cancel = false, want true")
	}
	waitDone(t, s)

	if s.Outcome() != playback.OutcomeCancelled {
		t.Errorf("outcome = %q, want %q", s.Outcome(), playback.OutcomeCancelled)
	}
	if l.Active() != 0 {
		t.Errorf("Active = %d, want 0", l.Active())
	}
}

func TestLearners_UnknownLearner(t *testing.T) {
	t.Parallel()

	l, _ := newTestLearners(nil, &audiomock.Player{})
	if l.Session("bob") != nil {
		t.Error("Session for unknown learner should be nil")
	}
	if l.Cancel("bob") {
		t.Error("Cancel for unknown learner should be false")
	}
}

func TestLearners_ListenReplacesSession(t *testing.T) {
	t.Parallel()

	player := &audiomock.Player{Hold: true}
	l, _ := newTestLearners(nil, player)

	first := l.Listen(context.Background(), "alice", []string{"le", "chat"}, "v1")
	waitStarted(t, player)

	second := l.Listen(context.Background(), "alice", []string{"noir"}, "v1")
	if !first.Cancelled() {
		t.Error("first session was not cancelled by the second listen")
	}
	waitStarted(t, player)
	player.Finish()
	waitDone(t, second)

	if second.Outcome() != playback.OutcomeCompleted {
		t.Errorf("second outcome = %q, want %q", second.Outcome(), playback.OutcomeCompleted)
	}
	if l.Session("alice") != second {
		t.Error("Session should return the replacing session")
	}
}

func TestLearners_ListenReloadsRecordings(t *testing.T) {
	t.Parallel()

	src := &stubSource{}
	player := &audiomock.Player{}
	l, _ := newTestLearners(src, player)
	ctx := context.Background()

	waitDone(t, l.Listen(ctx, "alice", []string{"table"}, "v1"))

	src.set("alice", recordings.Recording{Word: "table", AudioRef: writeRecording(t, "table.mp3", []byte("ID3 alice"))})
	waitDone(t, l.Listen(ctx, "alice", []string{"table"}, "v1"))

	plays := player.Plays()
	if len(plays) != 2 {
		t.Fatalf("plays = %d, want 2", len(plays))
	}
	if string(plays[0].Data) != string(synthAudio) {
		t.Errorf("first play = %q, want the synthesized clip", plays[0].Data)
	}
	if string(plays[1].Data) != "ID3 alice" {
		t.Errorf("second play = %q, want the new personal recording", plays[1].Data)
	}
}

func TestLearners_StopAll(t *testing.T) {
	t.Parallel()

	player := &audiomock.Player{Hold: true}
	l, _ := newTestLearners(nil, player)
	ctx := context.Background()

	a := l.Listen(ctx, "alice", []string{"le"}, "v1")
	waitStarted(t, player)
	b := l.Listen(ctx, "bob", []string{"chat"}, "v1")
	waitStarted(t, player)

	l.StopAll()

	for _, s := range []*playback.Session{a, b} {
		if s.Outcome() != playback.OutcomeCancelled {
			t.Errorf("session %s outcome = %q, want %q", s.ID(), s.Outcome(), playback.OutcomeCancelled)
		}
	}
}

// overlapPlayer records the highest number of clips playing at once.
type overlapPlayer struct {
	mu        sync.Mutex
	playing   int
	maxAtOnce int
}

func (p *overlapPlayer) Play(ctx context.Context, _ audio.Clip) error {
	p.mu.Lock()
	p.playing++
	p.maxAtOnce = max(p.maxAtOnce, p.playing)
	p.mu.Unlock()

	select {
	case <-time.After(2 * time.Millisecond):
	case <-ctx.Done():
	}

	p.mu.Lock()
	p.playing--
	p.mu.Unlock()
	return ctx.Err()
}

func TestLearners_ConcurrentListensNeverOverlap(t *testing.T) {
	t.Parallel()

	src := &stubSource{}
	src.set("alice", recordings.Recording{Word: "table", AudioRef: writeRecording(t, "table.mp3", []byte("ID3 alice"))})
	player := &overlapPlayer{}
	shared := voice.New(voice.WithRemote(&ttsmock.Synthesizer{Audio: synthAudio}), voice.WithPlayer(player))
	l := NewLearners(shared, recordings.NewCache(src), nil)

	const n = 16
	sessions := make(chan *playback.Session, n)
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sessions <- l.Listen(context.Background(), "alice", []string{"table", "chat", "table"}, "v1")
		}()
	}
	wg.Wait()
	close(sessions)

	for s := range sessions {
		waitDone(t, s)
	}
	player.mu.Lock()
	defer player.mu.Unlock()
	if player.maxAtOnce > 1 {
		t.Errorf("%d clips played at once, want at most 1", player.maxAtOnce)
	}
	if l.Active() != 0 {
		t.Errorf("Active = %d after every session ended", l.Active())
	}
}
