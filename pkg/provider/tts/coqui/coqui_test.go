package coqui

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrWong99/lisible/pkg/provider/tts"
)

// buildTestWAV constructs a minimal but valid RIFF/WAVE byte slice containing the
// supplied raw PCM samples. It writes a standard 44-byte header (RIFF + fmt + data)
// so that checkWAV can locate the audio payload.
func buildTestWAV(pcm []byte) []byte {
	// PCM WAV layout:
	//   RIFF chunk descriptor  (12 bytes)
	//   fmt  sub-chunk         (24 bytes: 8 header + 16 data)
	//   data sub-chunk         ( 8 bytes: 8 header + len(pcm) data)
	fmtSize := uint32(16)
	dataSize := uint32(len(pcm))
	fileSize := 4 + (8 + fmtSize) + (8 + dataSize) // WAVE + fmt chunk + data chunk

	buf := make([]byte, 0, 12+8+fmtSize+8+dataSize)
	le := binary.LittleEndian

	putU32 := func(v uint32) {
		var b [4]byte
		le.PutUint32(b[:], v)
		buf = append(buf, b[:]...)
	}
	putU16 := func(v uint16) {
		var b [2]byte
		le.PutUint16(b[:], v)
		buf = append(buf, b[:]...)
	}

	// RIFF chunk.
	buf = append(buf, []byte("RIFF")...)
	putU32(fileSize)
	buf = append(buf, []byte("WAVE")...)

	// fmt sub-chunk.
	buf = append(buf, []byte("fmt ")...)
	putU32(fmtSize)
	putU16(1)     // PCM format
	putU16(1)     // 1 channel (mono)
	putU32(16000) // sample rate
	putU32(32000) // byte rate = SampleRate * NumChannels * BitsPerSample/8
	putU16(2)     // block align
	putU16(16)    // bits per sample

	// data sub-chunk.
	buf = append(buf, []byte("data")...)
	putU32(dataSize)
	buf = append(buf, pcm...)

	return buf
}

func mustNew(t *testing.T, serverURL string, opts ...Option) *Provider {
	t.Helper()
	p, err := New(serverURL, opts...)
	if err != nil {
		t.Fatalf("New(%q): unexpected error: %v", serverURL, err)
	}
	return p
}

func TestNew(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Error("expected error for empty server URL")
	}
	if _, err := New("http://x", WithAPIMode("bogus")); err == nil {
		t.Error("expected error for unknown api mode")
	}
	p := mustNew(t, "http://localhost:5002/")
	if p.serverURL != "http://localhost:5002" {
		t.Errorf("serverURL = %q, want trailing slash trimmed", p.serverURL)
	}
	if p.apiMode != APIModeStandard || p.language != "fr" {
		t.Errorf("defaults = (%q, %q), want (standard, fr)", p.apiMode, p.language)
	}
}

func TestSynthesize_Standard(t *testing.T) {
	wav := buildTestWAV([]byte{1, 2, 3, 4})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != apiTTSEndpoint {
			http.NotFound(w, r)
			return
		}
		q := r.URL.Query()
		if q.Get("text") != "C'est une table." || q.Get("speaker_id") != "p225" || q.Get("language_id") != "fr" {
			http.Error(w, "bad query "+r.URL.RawQuery, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write(wav)
	}))
	defer srv.Close()

	p := mustNew(t, srv.URL)
	got, err := p.Synthesize(context.Background(), tts.Request{Text: "C'est une table.", VoiceID: "p225"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(got) != string(wav) {
		t.Error("expected the WAV file to be returned unchanged")
	}
}

func TestSynthesize_XTTS(t *testing.T) {
	wav := buildTestWAV([]byte{9, 9})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != ttsEndpoint {
			http.NotFound(w, r)
			return
		}
		var body ttsRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if body.Text != "chat" || body.SpeakerWav != "claribel" || body.Language != "en" {
			http.Error(w, "bad body", http.StatusBadRequest)
			return
		}
		_, _ = w.Write(wav)
	}))
	defer srv.Close()

	p := mustNew(t, srv.URL, WithAPIMode(APIModeXTTS))
	got, err := p.Synthesize(context.Background(), tts.Request{Text: "chat", VoiceID: "claribel", Language: "en"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if len(got) != len(wav) {
		t.Errorf("got %d bytes, want %d", len(got), len(wav))
	}

	if _, err := p.Synthesize(context.Background(), tts.Request{Text: "chat"}); err == nil {
		t.Error("expected error for empty voice ID in xtts mode")
	}
}

func TestSynthesize_Failures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    []byte
		wantErr error
	}{
		{name: "server error", status: http.StatusInternalServerError},
		{name: "not a wav", status: http.StatusOK, body: []byte("<html>")},
		{name: "empty data chunk", status: http.StatusOK, body: buildTestWAV(nil), wantErr: tts.ErrEmptyAudio},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write(tc.body)
			}))
			defer srv.Close()

			_, err := mustNew(t, srv.URL).Synthesize(context.Background(), tts.Request{Text: "chat", VoiceID: "v"})
			if err == nil {
				t.Fatal("expected error")
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Errorf("err = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestListVoices_Standard(t *testing.T) {
	tests := []struct {
		name    string
		details string
		wantIDs []string
	}{
		{"multi speaker", `{"model_name":"vctk","language":"en","speakers":["p226","p225"]}`, []string{"p225", "p226"}},
		{"single speaker", `{"model_name":"fr/css10/vits"}`, []string{"fr/css10/vits"}},
		{"unnamed model", `{}`, []string{"default"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != detailsEndpoint {
					http.NotFound(w, r)
					return
				}
				_, _ = w.Write([]byte(tc.details))
			}))
			defer srv.Close()

			voices, err := mustNew(t, srv.URL).ListVoices(context.Background())
			if err != nil {
				t.Fatalf("ListVoices: %v", err)
			}
			if len(voices) != len(tc.wantIDs) {
				t.Fatalf("got %d voices, want %d", len(voices), len(tc.wantIDs))
			}
			for i, v := range voices {
				if v.ID != tc.wantIDs[i] || v.Provider != "coqui" {
					t.Errorf("voices[%d] = %+v, want ID %q", i, v, tc.wantIDs[i])
				}
			}
		})
	}
}

func TestListVoices_XTTS(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != studioSpeakersEndpoint {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"Zofija Kendrick":{},"Ana Florence":{}}`))
	}))
	defer srv.Close()

	voices, err := mustNew(t, srv.URL, WithAPIMode(APIModeXTTS)).ListVoices(context.Background())
	if err != nil {
		t.Fatalf("ListVoices: %v", err)
	}
	if len(voices) != 2 || voices[0].ID != "Ana Florence" {
		t.Errorf("voices = %+v, want sorted studio speakers", voices)
	}
}

func TestCheckWAV_OddChunk(t *testing.T) {
	// A LIST chunk of odd size before data must be padded past.
	wav := []byte("RIFF\x00\x00\x00\x00WAVE")
	wav = append(wav, []byte("LIST")...)
	wav = binary.LittleEndian.AppendUint32(wav, 3)
	wav = append(wav, 'a', 'b', 'c', 0)
	wav = append(wav, []byte("data")...)
	wav = binary.LittleEndian.AppendUint32(wav, 2)
	wav = append(wav, 1, 2)
	if err := checkWAV(wav); err != nil {
		t.Errorf("checkWAV: %v", err)
	}
}
