package clipcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

const (
	clipExt = ".clip"

	// Payloads smaller than this are stored raw; compressing them rarely pays.
	compressMin = 1024

	headerRaw  byte = 0
	headerZstd byte = 1
)

var _ Store = (*Disk)(nil)

// DiskOption configures a [Disk] cache.
type DiskOption func(*Disk)

// WithCapacity bounds the bytes used on disk. When a Put would exceed it the
// least recently used clips are removed. Zero (the default) disables eviction.
func WithCapacity(bytes int64) DiskOption {
	return func(d *Disk) {
		d.capacity = bytes
	}
}

// WithCompressionLevel sets the zstd level (1 fastest .. 22 smallest).
// Default: 3.
func WithCompressionLevel(level int) DiskOption {
	return func(d *Disk) {
		d.level = level
	}
}

// Disk persists clips as one file per key under a directory. Payloads are
// zstd compressed when that makes them smaller. Files are written to a
// temporary name and renamed into place, so a crash never leaves a partial
// clip behind.
type Disk struct {
	dir      string
	capacity int64
	level    int

	enc *zstd.Encoder
	dec *zstd.Decoder

	mu    sync.Mutex
	size  int64
	index map[string]diskEntry // file name -> entry
}

type diskEntry struct {
	size       int64
	lastAccess time.Time
}

// NewDisk opens (creating if needed) a disk cache rooted at dir. Existing
// clips are indexed by their modification time.
func NewDisk(dir string, opts ...DiskOption) (*Disk, error) {
	if dir == "" {
		return nil, errors.New("clipcache: disk directory must not be empty")
	}
	d := &Disk{
		dir:   dir,
		level: 3,
		index: make(map[string]diskEntry),
	}
	for _, o := range opts {
		o(d)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("clipcache: create dir: %w", err)
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(d.level)))
	if err != nil {
		return nil, fmt.Errorf("clipcache: zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("clipcache: zstd decoder: %w", err)
	}
	d.enc, d.dec = enc, dec

	if err := d.scan(); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

// Get implements [Store].
func (d *Disk) Get(_ context.Context, key Key) ([]byte, bool, error) {
	name := fileName(key)
	raw, err := os.ReadFile(filepath.Join(d.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("clipcache: read %s: %w", name, err)
	}
	payload, err := d.decode(raw)
	if err != nil {
		return nil, false, fmt.Errorf("clipcache: decode %s: %w", name, err)
	}

	d.mu.Lock()
	if e, ok := d.index[name]; ok {
		e.lastAccess = time.Now()
		d.index[name] = e
	}
	d.mu.Unlock()
	return payload, true, nil
}

// Put implements [Store].
func (d *Disk) Put(_ context.Context, key Key, payload []byte) error {
	if len(payload) == 0 {
		return ErrEmptyPayload
	}
	name := fileName(key)

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.index[name]; ok {
		return nil
	}
	data := d.encode(payload)
	n := int64(len(data))
	if d.capacity > 0 {
		if n > d.capacity {
			return nil
		}
		for d.size+n > d.capacity && len(d.index) > 0 {
			d.evictOldest()
		}
	}
	if err := writeAtomic(filepath.Join(d.dir, name), data); err != nil {
		return fmt.Errorf("clipcache: write %s: %w", name, err)
	}
	d.index[name] = diskEntry{size: n, lastAccess: time.Now()}
	d.size += n
	return nil
}

// Len returns the number of clips on disk.
func (d *Disk) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.index)
}

// Close releases the zstd encoder and decoder.
func (d *Disk) Close() error {
	if d.dec != nil {
		d.dec.Close()
	}
	if d.enc != nil {
		return d.enc.Close()
	}
	return nil
}

func (d *Disk) encode(payload []byte) []byte {
	if len(payload) >= compressMin {
		compressed := d.enc.EncodeAll(payload, make([]byte, 1, len(payload)/2+1))
		compressed[0] = headerZstd
		if len(compressed) < len(payload)+1 {
			return compressed
		}
	}
	out := make([]byte, 0, len(payload)+1)
	out = append(out, headerRaw)
	return append(out, payload...)
}

func (d *Disk) decode(raw []byte) ([]byte, error) {
	if len(raw) < 2 {
		return nil, errors.New("truncated clip")
	}
	switch raw[0] {
	case headerRaw:
		return raw[1:], nil
	case headerZstd:
		return d.dec.DecodeAll(raw[1:], nil)
	default:
		return nil, fmt.Errorf("unknown clip header %#x", raw[0])
	}
}

func (d *Disk) scan() error {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return fmt.Errorf("clipcache: scan: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), clipExt) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		d.index[e.Name()] = diskEntry{size: info.Size(), lastAccess: info.ModTime()}
		d.size += info.Size()
	}
	return nil
}

// evictOldest must be called with d.mu held.
func (d *Disk) evictOldest() {
	var (
		oldest     string
		oldestTime time.Time
	)
	for name, e := range d.index {
		if oldest == "" || e.lastAccess.Before(oldestTime) {
			oldest, oldestTime = name, e.lastAccess
		}
	}
	if oldest == "" {
		return
	}
	os.Remove(filepath.Join(d.dir, oldest))
	d.size -= d.index[oldest].size
	delete(d.index, oldest)
}

func fileName(key Key) string {
	sum := sha256.Sum256([]byte(key.String()))
	return hex.EncodeToString(sum[:16]) + clipExt
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
