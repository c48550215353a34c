package clipcache_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrWong99/lisible/internal/clipcache"
)

func TestNewKey_Normalizes(t *testing.T) {
	t.Parallel()

	a := clipcache.NewKey("  Table!", "v1")
	b := clipcache.NewKey("table", "v1")
	if a != b {
		t.Errorf("NewKey(%q) = %+v, want %+v", "  Table!", a, b)
	}
	if a == clipcache.NewKey("table", "v2") {
		t.Error("keys with different voices must differ")
	}
}

// storeContract runs the behaviour every Store must share.
func storeContract(t *testing.T, s clipcache.Store) {
	t.Helper()
	ctx := context.Background()
	key := clipcache.NewKey("table", "v1")

	if _, ok, err := s.Get(ctx, key); ok || err != nil {
		t.Fatalf("Get on empty store = ok %v, err %v", ok, err)
	}
	if err := s.Put(ctx, key, []byte("first")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Put(ctx, key, []byte("second")); err != nil {
		t.Fatalf("second Put: %v", err)
	}
	got, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		t.Fatalf("Get = ok %v, err %v", ok, err)
	}
	if string(got) != "first" {
		t.Errorf("payload = %q, want %q (clips are never mutated)", got, "first")
	}
	if _, ok, _ := s.Get(ctx, clipcache.NewKey("table", "v2")); ok {
		t.Error("hit for a different voice")
	}
	if err := s.Put(ctx, clipcache.NewKey("chaise", "v1"), nil); !errors.Is(err, clipcache.ErrEmptyPayload) {
		t.Errorf("Put(nil) error = %v, want ErrEmptyPayload", err)
	}
}

func TestMemory_Contract(t *testing.T) {
	t.Parallel()
	storeContract(t, clipcache.NewMemory(0))
}

func TestMemory_EvictsLeastRecentlyUsed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := clipcache.NewMemory(10)

	a, b, c := clipcache.NewKey("a", "v"), clipcache.NewKey("b", "v"), clipcache.NewKey("c", "v")
	_ = m.Put(ctx, a, []byte("aaaa"))
	_ = m.Put(ctx, b, []byte("bbbb"))
	m.Get(ctx, a) // a becomes most recent
	_ = m.Put(ctx, c, []byte("cccc"))

	if _, ok, _ := m.Get(ctx, b); ok {
		t.Error("b should have been evicted")
	}
	if _, ok, _ := m.Get(ctx, a); !ok {
		t.Error("a should still be cached")
	}
	if m.Size() != 8 || m.Len() != 2 {
		t.Errorf("size/len = %d/%d, want 8/2", m.Size(), m.Len())
	}

	_ = m.Put(ctx, clipcache.NewKey("huge", "v"), bytes.Repeat([]byte("x"), 11))
	if m.Len() != 2 {
		t.Error("payload larger than capacity must not be stored")
	}
}

func newDisk(t *testing.T, opts ...clipcache.DiskOption) (*clipcache.Disk, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "clips")
	d, err := clipcache.NewDisk(dir, opts...)
	if err != nil {
		t.Fatalf("NewDisk: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d, dir
}

func TestDisk_Contract(t *testing.T) {
	t.Parallel()
	d, _ := newDisk(t)
	storeContract(t, d)
}

func TestDisk_CompressesLargePayloads(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	d, dir := newDisk(t)

	payload := []byte(strings.Repeat("ID3 compressible audio frame ", 200))
	key := clipcache.NewKey("bonjour", "v1")
	if err := d.Put(ctx, key, payload); err != nil {
		t.Fatalf("Put: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) != 1 {
		t.Fatalf("ReadDir = %d entries, err %v", len(entries), err)
	}
	info, _ := entries[0].Info()
	if info.Size() >= int64(len(payload)) {
		t.Errorf("file size %d not smaller than payload %d", info.Size(), len(payload))
	}

	got, ok, err := d.Get(ctx, key)
	if err != nil || !ok || !bytes.Equal(got, payload) {
		t.Errorf("Get = %d bytes, ok %v, err %v", len(got), ok, err)
	}
}

func TestDisk_PersistsAcrossReopen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	d, dir := newDisk(t)
	key := clipcache.NewKey("table", "v1")
	if err := d.Put(ctx, key, []byte("RIFF....WAVE")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	d.Close()

	reopened, err := clipcache.NewDisk(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if reopened.Len() != 1 {
		t.Errorf("Len after reopen = %d, want 1", reopened.Len())
	}
	got, ok, err := reopened.Get(ctx, key)
	if err != nil || !ok || string(got) != "RIFF....WAVE" {
		t.Errorf("Get after reopen = %q, ok %v, err %v", got, ok, err)
	}
}

func TestDisk_CapacityEviction(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	// Raw payloads carry a one byte header.
	d, _ := newDisk(t, clipcache.WithCapacity(12))

	_ = d.Put(ctx, clipcache.NewKey("un", "v"), []byte("11111"))
	_ = d.Put(ctx, clipcache.NewKey("deux", "v"), []byte("22222"))
	_ = d.Put(ctx, clipcache.NewKey("trois", "v"), []byte("33333"))

	if d.Len() != 2 {
		t.Errorf("Len = %d, want 2", d.Len())
	}
	if _, ok, _ := d.Get(ctx, clipcache.NewKey("trois", "v")); !ok {
		t.Error("newest clip missing")
	}
}

func TestDisk_CorruptFile(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	d, dir := newDisk(t)
	key := clipcache.NewKey("table", "v1")
	_ = d.Put(ctx, key, []byte("payload"))

	entries, _ := os.ReadDir(dir)
	if err := os.WriteFile(filepath.Join(dir, entries[0].Name()), []byte{0x7f, 1, 2}, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := d.Get(ctx, key); err == nil {
		t.Error("expected error for unknown header")
	}
}

func TestNewDisk_EmptyDir(t *testing.T) {
	t.Parallel()
	if _, err := clipcache.NewDisk(""); err == nil {
		t.Error("expected error")
	}
}

type failingStore struct{}

func (failingStore) Get(context.Context, clipcache.Key) ([]byte, bool, error) {
	return nil, false, errors.New("boom")
}
func (failingStore) Put(context.Context, clipcache.Key, []byte) error { return errors.New("boom") }

func TestLayered_PromotesLowerHits(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	upper, lower := clipcache.NewMemory(0), clipcache.NewMemory(0)
	l := clipcache.NewLayered(upper, lower)
	key := clipcache.NewKey("table", "v1")

	_ = lower.Put(ctx, key, []byte("clip"))
	got, ok, err := l.Get(ctx, key)
	if err != nil || !ok || string(got) != "clip" {
		t.Fatalf("Get = %q, ok %v, err %v", got, ok, err)
	}
	if upper.Len() != 1 {
		t.Error("hit was not promoted to the upper layer")
	}
}

func TestLayered_SkipsFailingLayer(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mem := clipcache.NewMemory(0)
	l := clipcache.NewLayered(failingStore{}, mem)
	key := clipcache.NewKey("table", "v1")

	if err := l.Put(ctx, key, []byte("clip")); err == nil {
		t.Error("Put should report the failing layer")
	}
	if _, ok, err := l.Get(ctx, key); !ok || err != nil {
		t.Errorf("Get = ok %v, err %v, want hit from healthy layer", ok, err)
	}

	if _, _, err := clipcache.NewLayered(failingStore{}).Get(ctx, key); err == nil {
		t.Error("all layers failing should return an error")
	}
}
