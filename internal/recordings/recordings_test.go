package recordings_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrWong99/lisible/internal/recordings"
)

func TestIndex_LookupNormalizes(t *testing.T) {
	t.Parallel()

	ix := recordings.NewIndex([]recordings.Recording{
		{Word: "Table", AudioRef: "a/table.mp3"},
		{Word: "table!", AudioRef: "a/other.mp3"},
		{Word: "l'école", AudioRef: "a/ecole.mp3"},
		{Word: "...", AudioRef: "a/dots.mp3"},
		{Word: "chaise", AudioRef: ""},
	})

	if ix.Len() != 2 {
		t.Errorf("Len = %d, want 2", ix.Len())
	}
	tests := []struct {
		token  string
		want   string
		wantOK bool
	}{
		{"table", "a/table.mp3", true},
		{"  TABLE.", "a/table.mp3", true},
		{"«l'école»", "a/ecole.mp3", true},
		{"chaise", "", false},
		{"chat", "", false},
	}
	for _, tt := range tests {
		got, ok := ix.Lookup(tt.token)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("Lookup(%q) = %q, %v; want %q, %v", tt.token, got, ok, tt.want, tt.wantOK)
		}
	}

	var nilIndex *recordings.Index
	if _, ok := nilIndex.Lookup("table"); ok || nilIndex.Len() != 0 {
		t.Error("nil index must be empty")
	}
}

type countingSource struct {
	calls int
	recs  map[string][]recordings.Recording
	err   error
}

func (s *countingSource) Recordings(_ context.Context, learnerID string) ([]recordings.Recording, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.recs[learnerID], nil
}

func TestCache_LoadsOncePerLearner(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	src := &countingSource{recs: map[string][]recordings.Recording{
		"alice": {{Word: "table", AudioRef: "t.mp3"}},
	}}
	c := recordings.NewCache(src)

	for range 3 {
		ix, err := c.Index(ctx, "alice")
		if err != nil {
			t.Fatalf("Index: %v", err)
		}
		if _, ok := ix.Lookup("table"); !ok {
			t.Fatal("table missing")
		}
	}
	if src.calls != 1 {
		t.Errorf("source calls = %d, want 1", src.calls)
	}

	c.Invalidate("alice")
	if _, err := c.Index(ctx, "alice"); err != nil {
		t.Fatal(err)
	}
	if src.calls != 2 {
		t.Errorf("source calls after Invalidate = %d, want 2", src.calls)
	}

	ix, err := c.Index(ctx, "")
	if err != nil || ix.Len() != 0 {
		t.Errorf("anonymous learner = %d entries, err %v", ix.Len(), err)
	}
}

func TestCache_DoesNotCacheFailures(t *testing.T) {
	t.Parallel()
	src := &countingSource{err: errors.New("db down")}
	c := recordings.NewCache(src)

	if _, err := c.Index(context.Background(), "bob"); err == nil {
		t.Fatal("expected error")
	}
	if _, err := c.Index(context.Background(), "bob"); err == nil {
		t.Fatal("expected error")
	}
	if src.calls != 2 {
		t.Errorf("source calls = %d, want 2", src.calls)
	}
}

func TestFileSource(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "recordings.yaml")
	doc := `learners:
  alice:
    - word: table
      audio_ref: alice/table.mp3
    - word: chat
      audio_ref: /abs/chat.wav
    - word: nuit
      audio_ref: https://cdn.example.com/nuit.mp3
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	src, err := recordings.NewFileSource(path)
	if err != nil {
		t.Fatal(err)
	}

	recs, err := src.Recordings(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Recordings: %v", err)
	}
	want := []string{
		filepath.Join(dir, "alice/table.mp3"),
		"/abs/chat.wav",
		"https://cdn.example.com/nuit.mp3",
	}
	if len(recs) != len(want) {
		t.Fatalf("got %d recordings, want %d", len(recs), len(want))
	}
	for i, r := range recs {
		if r.AudioRef != want[i] {
			t.Errorf("recs[%d].AudioRef = %q, want %q", i, r.AudioRef, want[i])
		}
	}

	none, err := src.Recordings(context.Background(), "nobody")
	if err != nil || len(none) != 0 {
		t.Errorf("unknown learner = %v, err %v", none, err)
	}
}

func TestFileSource_RejectsUnknownFields(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("learner:\n  alice: []\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	src, _ := recordings.NewFileSource(path)
	if _, err := src.Recordings(context.Background(), "alice"); err == nil {
		t.Error("expected parse error for unknown field")
	}
	if _, err := recordings.NewFileSource(""); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestRefFetcher(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	local := filepath.Join(dir, "table.mp3")
	if err := os.WriteFile(local, []byte("ID3audio"), 0o644); err != nil {
		t.Fatal(err)
	}
	empty := filepath.Join(dir, "empty.mp3")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.mp3" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("remote"))
	}))
	defer srv.Close()

	f := recordings.NewFetcher(recordings.WithHTTPClient(srv.Client()))
	tests := []struct {
		name    string
		ref     string
		want    string
		wantErr bool
	}{
		{"bare path", local, "ID3audio", false},
		{"file url", "file://" + local, "ID3audio", false},
		{"http", srv.URL + "/ok.mp3", "remote", false},
		{"http 404", srv.URL + "/missing.mp3", "", true},
		{"missing file", filepath.Join(dir, "nope.mp3"), "", true},
		{"empty file", empty, "", true},
		{"unsupported scheme", "s3://bucket/key", "", true},
		{"empty ref", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.Fetch(context.Background(), tt.ref)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Fetch(%q) error = %v, wantErr %v", tt.ref, err, tt.wantErr)
			}
			if string(got) != tt.want {
				t.Errorf("Fetch(%q) = %q, want %q", tt.ref, got, tt.want)
			}
		})
	}

	_, err := f.Fetch(context.Background(), "s3://bucket/key")
	if !errors.Is(err, recordings.ErrUnsupportedRef) || !strings.Contains(err.Error(), "s3") {
		t.Errorf("unsupported error = %v", err)
	}
}
