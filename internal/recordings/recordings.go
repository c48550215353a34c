// Package recordings indexes a learner's own pronunciations.
//
// A learner records a word once; the recording is then preferred over any
// synthesized voice whenever that word is played. The index is built once per
// exercise session from a [Source] and is read-only afterwards.
package recordings

import (
	"context"
	"fmt"
	"sync"

	"github.com/MrWong99/lisible/internal/textnorm"
)

// Recording is one personal pronunciation.
type Recording struct {
	// Word is the token as the learner recorded it. It is normalised when
	// indexed.
	Word string `yaml:"word" json:"word"`

	// AudioRef locates the audio: a file path, a file:// URL or an http(s) URL.
	AudioRef string `yaml:"audio_ref" json:"audio_ref"`
}

// Source lists the recordings of a learner. An unknown learner yields an
// empty list, not an error.
type Source interface {
	Recordings(ctx context.Context, learnerID string) ([]Recording, error)
}

// Index maps normalised words to audio references.
type Index struct {
	refs map[string]string
}

// NewIndex builds an Index. When several recordings normalise to the same
// word the first one wins. Recordings with an empty word or reference are
// skipped.
func NewIndex(recs []Recording) *Index {
	ix := &Index{refs: make(map[string]string, len(recs))}
	for _, r := range recs {
		w := textnorm.Normalize(r.Word)
		if w == "" || r.AudioRef == "" {
			continue
		}
		if _, dup := ix.refs[w]; !dup {
			ix.refs[w] = r.AudioRef
		}
	}
	return ix
}

// Lookup returns the audio reference recorded for token. A nil Index has no
// entries.
func (ix *Index) Lookup(token string) (string, bool) {
	if ix == nil {
		return "", false
	}
	ref, ok := ix.refs[textnorm.Normalize(token)]
	return ref, ok
}

// Len returns the number of indexed words.
func (ix *Index) Len() int {
	if ix == nil {
		return 0
	}
	return len(ix.refs)
}

// Load fetches the recordings of learnerID from src and indexes them.
func Load(ctx context.Context, src Source, learnerID string) (*Index, error) {
	recs, err := src.Recordings(ctx, learnerID)
	if err != nil {
		return nil, fmt.Errorf("recordings: load %q: %w", learnerID, err)
	}
	return NewIndex(recs), nil
}

// Cache keeps one loaded Index per learner so that a session's index is
// built once and reused by every resolution.
type Cache struct {
	src Source

	mu      sync.Mutex
	indexes map[string]*Index
}

// NewCache returns a Cache reading from src. A nil src yields empty indexes.
func NewCache(src Source) *Cache {
	return &Cache{src: src, indexes: make(map[string]*Index)}
}

// Index returns the cached index for learnerID, loading it on first use.
// Failed loads are not cached.
func (c *Cache) Index(ctx context.Context, learnerID string) (*Index, error) {
	if c.src == nil || learnerID == "" {
		return NewIndex(nil), nil
	}
	c.mu.Lock()
	ix, ok := c.indexes[learnerID]
	c.mu.Unlock()
	if ok {
		return ix, nil
	}

	ix, err := Load(ctx, c.src, learnerID)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.indexes[learnerID]; ok {
		return existing, nil
	}
	c.indexes[learnerID] = ix
	return ix, nil
}

// Invalidate drops the cached index of learnerID so that the next session
// reloads it.
func (c *Cache) Invalidate(learnerID string) {
	c.mu.Lock()
	delete(c.indexes, learnerID)
	c.mu.Unlock()
}
