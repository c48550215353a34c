package recordings

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// ErrUnsupportedRef is returned for audio references whose scheme the
// fetcher does not handle.
var ErrUnsupportedRef = errors.New("recordings: unsupported audio reference")

// maxRecordingBytes bounds a single downloaded recording.
const maxRecordingBytes = 16 << 20

// Fetcher loads the bytes behind an audio reference.
type Fetcher interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// RefFetcher fetches bare paths, file:// URLs and http(s):// URLs.
type RefFetcher struct {
	client *http.Client
}

var _ Fetcher = (*RefFetcher)(nil)

// FetcherOption configures a RefFetcher.
type FetcherOption func(*RefFetcher)

// WithHTTPClient replaces the HTTP client used for remote references.
func WithHTTPClient(c *http.Client) FetcherOption {
	return func(f *RefFetcher) {
		f.client = c
	}
}

// NewFetcher returns a RefFetcher with a 10 second HTTP timeout.
func NewFetcher(opts ...FetcherOption) *RefFetcher {
	f := &RefFetcher{client: &http.Client{Timeout: 10 * time.Second}}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Fetch implements [Fetcher].
func (f *RefFetcher) Fetch(ctx context.Context, ref string) ([]byte, error) {
	if ref == "" {
		return nil, fmt.Errorf("%w: empty", ErrUnsupportedRef)
	}
	if isLocalPath(ref) {
		return readFile(ref)
	}
	u, err := url.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("recordings: parse %q: %w", ref, err)
	}
	switch u.Scheme {
	case "file":
		return readFile(u.Path)
	case "http", "https":
		return f.get(ctx, u.String())
	default:
		return nil, fmt.Errorf("%w: scheme %q", ErrUnsupportedRef, u.Scheme)
	}
}

func (f *RefFetcher) get(ctx context.Context, ref string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, fmt.Errorf("recordings: create request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("recordings: GET %s: %w", ref, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("recordings: GET %s returned status %d", ref, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxRecordingBytes+1))
	if err != nil {
		return nil, fmt.Errorf("recordings: read %s: %w", ref, err)
	}
	if len(data) > maxRecordingBytes {
		return nil, fmt.Errorf("recordings: %s exceeds %d bytes", ref, maxRecordingBytes)
	}
	return checkNonEmpty(ref, data)
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("recordings: read %s: %w", path, err)
	}
	return checkNonEmpty(path, data)
}

func checkNonEmpty(ref string, data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("recordings: %s is empty", ref)
	}
	return data, nil
}

// isLocalPath reports whether ref has no URL scheme.
func isLocalPath(ref string) bool {
	return !strings.Contains(ref, "://")
}
