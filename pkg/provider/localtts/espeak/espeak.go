// Package espeak drives the espeak-ng (or legacy espeak) command-line
// synthesizer as a [localtts.Synthesizer].
package espeak

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/MrWong99/lisible/pkg/provider/localtts"
)

// ErrNotInstalled is returned by [New] when no espeak executable is found.
var ErrNotInstalled = errors.New("espeak: executable not found in PATH")

// candidates are looked up in order when no explicit executable is given.
var candidates = []string{"espeak-ng", "espeak"}

// Option configures an [Engine].
type Option func(*Engine)

// WithExecutable uses path instead of searching PATH.
func WithExecutable(path string) Option {
	return func(e *Engine) {
		e.path = path
	}
}

// WithSpeed sets the speaking rate in words per minute. Default: 150, a
// little slower than espeak's own default, which suits early readers.
func WithSpeed(wpm int) Option {
	return func(e *Engine) {
		e.speed = wpm
	}
}

// WithAmplitude sets the volume (0-200). Default: 100.
func WithAmplitude(amp int) Option {
	return func(e *Engine) {
		e.amplitude = amp
	}
}

// Engine implements localtts.Synthesizer by spawning one espeak process per
// utterance.
type Engine struct {
	path      string
	speed     int
	amplitude int

	mu     sync.Mutex
	voices []localtts.Voice
}

var _ localtts.Synthesizer = (*Engine)(nil)

// New locates the espeak executable and returns an Engine.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{speed: 150, amplitude: 100}
	for _, o := range opts {
		o(e)
	}
	if e.path == "" {
		for _, c := range candidates {
			if p, err := exec.LookPath(c); err == nil {
				e.path = p
				break
			}
		}
		if e.path == "" {
			return nil, ErrNotInstalled
		}
	}
	return e, nil
}

// Voices runs "espeak --voices" once and caches the parsed result.
func (e *Engine) Voices(ctx context.Context) ([]localtts.Voice, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.voices != nil {
		return e.voices, nil
	}
	out, err := exec.CommandContext(ctx, e.path, "--voices").Output()
	if err != nil {
		return nil, fmt.Errorf("espeak: list voices: %w", err)
	}
	e.voices = parseVoices(string(out))
	return e.voices, nil
}

// Speak runs espeak for u.Text and waits for it to exit. espeak begins audio
// output as soon as the process starts, so OnStart fires right after Start.
func (e *Engine) Speak(ctx context.Context, u localtts.Utterance) error {
	text := strings.TrimSpace(u.Text)
	if text == "" {
		return errors.New("espeak: text must not be empty")
	}
	cmd := exec.CommandContext(ctx, e.path, e.args(u.Voice, text)...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("espeak: start: %w", err)
	}
	if u.OnStart != nil {
		u.OnStart()
	}
	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("espeak: %w", err)
	}
	return nil
}

func (e *Engine) args(v localtts.Voice, text string) []string {
	args := make([]string, 0, 7)
	if v.ID != "" {
		args = append(args, "-v", v.ID)
	}
	args = append(args,
		"-s", strconv.Itoa(e.speed),
		"-a", strconv.Itoa(e.amplitude),
		"--", text,
	)
	return args
}

// parseVoices parses the table printed by "espeak --voices":
//
//	Pty Language       Age/Gender VoiceName          File                 Other Languages
//	 5  fr-fr           --/M      French_(France)    roa/fr
func parseVoices(output string) []localtts.Voice {
	voices := make([]localtts.Voice, 0)
	sc := bufio.NewScanner(strings.NewReader(output))
	first := true
	for sc.Scan() {
		line := sc.Text()
		if first {
			first = false
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}
		gender := ""
		if _, g, ok := strings.Cut(fields[2], "/"); ok && (g == "M" || g == "F") {
			gender = g
		}
		voices = append(voices, localtts.Voice{
			ID:       fields[1],
			Name:     strings.ReplaceAll(fields[3], "_", " "),
			Language: fields[1],
			Gender:   gender,
		})
	}
	return voices
}
