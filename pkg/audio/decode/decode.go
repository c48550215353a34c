// Package decode turns encoded clips into beep streamers. It is pure Go and
// kept apart from the speaker backend so it can be used and tested without a
// sound card.
package decode

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/wav"

	"github.com/MrWong99/lisible/pkg/audio"
)

// Clip decodes c. When c.Format is unknown it is sniffed from the data.
func Clip(c audio.Clip) (beep.StreamSeekCloser, beep.Format, error) {
	format := c.Format
	if format == audio.FormatUnknown {
		format = audio.Sniff(c.Data)
	}
	var (
		s   beep.StreamSeekCloser
		f   beep.Format
		err error
	)
	switch format {
	case audio.FormatMP3:
		s, f, err = mp3.Decode(io.NopCloser(bytes.NewReader(c.Data)))
	case audio.FormatWAV:
		s, f, err = wav.Decode(bytes.NewReader(c.Data))
	default:
		return nil, beep.Format{}, audio.ErrUnsupportedFormat
	}
	if err != nil {
		return nil, beep.Format{}, fmt.Errorf("decode %s: %w", format, err)
	}
	return s, f, nil
}

// Duration reports the playing time of c without playing it.
func Duration(c audio.Clip) (time.Duration, error) {
	s, f, err := Clip(c)
	if err != nil {
		return 0, err
	}
	defer s.Close()
	return f.SampleRate.D(s.Len()), nil
}
