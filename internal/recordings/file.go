package recordings

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

var _ Source = (*FileSource)(nil)

// fileDocument is the on-disk layout of a recordings file:
//
//	learners:
//	  alice:
//	    - word: table
//	      audio_ref: alice/table.mp3
type fileDocument struct {
	Learners map[string][]Recording `yaml:"learners"`
}

// FileSource reads recordings from a YAML file. The file is parsed on every
// call so edits are picked up by the next session. Relative audio references
// are resolved against the file's directory.
type FileSource struct {
	path string
}

// NewFileSource returns a FileSource for path.
func NewFileSource(path string) (*FileSource, error) {
	if path == "" {
		return nil, errors.New("recordings: file path must not be empty")
	}
	return &FileSource{path: path}, nil
}

// Recordings implements [Source].
func (s *FileSource) Recordings(_ context.Context, learnerID string) ([]Recording, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("recordings: open %s: %w", s.path, err)
	}
	defer f.Close()

	var doc fileDocument
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("recordings: parse %s: %w", s.path, err)
	}

	base := filepath.Dir(s.path)
	recs := doc.Learners[learnerID]
	out := make([]Recording, 0, len(recs))
	for _, r := range recs {
		if isLocalPath(r.AudioRef) && !filepath.IsAbs(r.AudioRef) {
			r.AudioRef = filepath.Join(base, r.AudioRef)
		}
		out = append(out, r)
	}
	return out, nil
}
