package decode_test

import (
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/lisible/pkg/audio"
	"github.com/MrWong99/lisible/pkg/audio/decode"
)

// monoWAV builds a 16-bit mono PCM WAV with n silent samples.
func monoWAV(rate uint32, n int) []byte {
	le := binary.LittleEndian
	data := make([]byte, 2*n)
	b := []byte("RIFF")
	b = le.AppendUint32(b, uint32(36+len(data)))
	b = append(b, "WAVEfmt "...)
	b = le.AppendUint32(b, 16)
	b = le.AppendUint16(b, 1) // PCM
	b = le.AppendUint16(b, 1) // mono
	b = le.AppendUint32(b, rate)
	b = le.AppendUint32(b, rate*2)
	b = le.AppendUint16(b, 2)
	b = le.AppendUint16(b, 16)
	b = append(b, "data"...)
	b = le.AppendUint32(b, uint32(len(data)))
	return append(b, data...)
}

func TestClip_WAV(t *testing.T) {
	t.Parallel()

	s, f, err := decode.Clip(audio.NewClip(monoWAV(22050, 4)))
	if err != nil {
		t.Fatalf("Clip: %v", err)
	}
	defer s.Close()
	if f.SampleRate != 22050 || f.NumChannels != 1 {
		t.Errorf("format = %+v, want 22050 Hz mono", f)
	}
	if s.Len() != 4 {
		t.Errorf("Len() = %d, want 4", s.Len())
	}
}

func TestClip_SniffsUnknownFormat(t *testing.T) {
	t.Parallel()

	s, _, err := decode.Clip(audio.Clip{Data: monoWAV(16000, 1)})
	if err != nil {
		t.Fatalf("Clip: %v", err)
	}
	s.Close()
}

func TestClip_Errors(t *testing.T) {
	t.Parallel()

	if _, _, err := decode.Clip(audio.Clip{Data: []byte("OggS....")}); !errors.Is(err, audio.ErrUnsupportedFormat) {
		t.Errorf("ogg: err = %v, want ErrUnsupportedFormat", err)
	}
	if _, _, err := decode.Clip(audio.Clip{Data: []byte("RIFF\x00\x00\x00\x00WAVE"), Format: audio.FormatWAV}); err == nil {
		t.Error("truncated wav: expected error")
	}
}

func TestDuration(t *testing.T) {
	t.Parallel()

	d, err := decode.Duration(audio.NewClip(monoWAV(16000, 8000)))
	if err != nil {
		t.Fatalf("Duration: %v", err)
	}
	if d != 500*time.Millisecond {
		t.Errorf("Duration = %v, want 500ms", d)
	}
}
