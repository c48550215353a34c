// Package audio defines how encoded clips reach the learner's ears.
//
// A [Clip] is a complete encoded file (MP3 or WAV) held in memory; a [Player]
// plays one clip at a time and returns when playback has finished. Finishing,
// not a timer, is what lets the playback orchestrator move to the next token.
package audio

import (
	"bytes"
	"context"
	"errors"
)

// ErrUnsupportedFormat is returned by players for payloads they cannot decode.
var ErrUnsupportedFormat = errors.New("audio: unsupported format")

// Format identifies the container of a clip.
type Format string

const (
	FormatUnknown Format = ""
	FormatMP3     Format = "mp3"
	FormatWAV     Format = "wav"
)

// ContentType returns the MIME type for f, or application/octet-stream.
func (f Format) ContentType() string {
	switch f {
	case FormatMP3:
		return "audio/mpeg"
	case FormatWAV:
		return "audio/wav"
	default:
		return "application/octet-stream"
	}
}

// Clip is an encoded audio file.
type Clip struct {
	Data   []byte
	Format Format
}

// NewClip wraps data, detecting its format from the leading bytes.
func NewClip(data []byte) Clip {
	return Clip{Data: data, Format: Sniff(data)}
}

// Sniff detects the container format of data from its magic bytes.
func Sniff(data []byte) Format {
	switch {
	case len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE")):
		return FormatWAV
	case len(data) >= 3 && bytes.Equal(data[0:3], []byte("ID3")):
		return FormatMP3
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		// MPEG audio frame sync.
		return FormatMP3
	default:
		return FormatUnknown
	}
}

// Player plays clips on an output device.
//
// Play blocks until the clip has finished playing and returns nil, or returns
// ctx.Err() promptly after ctx is cancelled, having silenced the clip. A clip
// that cannot be decoded yields an error before any sound is produced.
// Implementations must be safe for concurrent use; concurrent calls are
// serialised rather than mixed.
type Player interface {
	Play(ctx context.Context, clip Clip) error
}
