// Command lisible serves voice resolution, host playback and answer scoring
// for the reading exercises.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/MrWong99/lisible/internal/app"
	"github.com/MrWong99/lisible/internal/config"
	"github.com/MrWong99/lisible/internal/observe"
	"github.com/MrWong99/lisible/pkg/audio"
	"github.com/MrWong99/lisible/pkg/audio/speaker"
	"github.com/MrWong99/lisible/pkg/provider/localtts"
	"github.com/MrWong99/lisible/pkg/provider/localtts/espeak"
	"github.com/MrWong99/lisible/pkg/provider/stt"
	"github.com/MrWong99/lisible/pkg/provider/stt/whisper"
	"github.com/MrWong99/lisible/pkg/provider/tts"
	"github.com/MrWong99/lisible/pkg/provider/tts/coqui"
	"github.com/MrWong99/lisible/pkg/provider/tts/elevenlabs"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	watch := flag.Bool("watch", true, "reload the configuration file when it changes")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "lisible: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "lisible: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(cfg.Server.LogLevel.Level())
	slog.SetDefault(newLogger(cfg.Server.LogFormat, level))

	slog.Info("lisible starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, app.TelemetryConfig(cfg, version))
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	application, err := app.New(ctx, cfg, providers, app.WithLogLevel(level))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	if *watch {
		w, err := config.NewWatcher(*configPath, application.ApplyConfig)
		if err != nil {
			slog.Warn("config watcher disabled", "err", err)
		} else {
			defer w.Stop()
		}
	}

	slog.Info("server ready, press Ctrl+C to shut down")

	code := 0
	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		code = 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	slog.Info("shutdown signal received, stopping")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		code = 1
	}
	if err := otelShutdown(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return code
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(format config.LogFormat, level *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == config.LogFormatJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the provider
// from the real implementation package.
func registerBuiltinProviders(reg *config.Registry) {
	// ── Remote TTS ────────────────────────────────────────────────────────────

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Synthesizer, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, elevenlabs.WithBaseURL(entry.BaseURL))
		}
		if outputFmt, ok := entry.OptionString("output_format"); ok {
			opts = append(opts, elevenlabs.WithOutputFormat(outputFmt))
		}
		stability, okS := entry.Options["stability"].(float64)
		similarity, okB := entry.Options["similarity_boost"].(float64)
		if okS && okB {
			opts = append(opts, elevenlabs.WithVoiceSettings(stability, similarity))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("coqui", func(entry config.ProviderEntry) (tts.Synthesizer, error) {
		var opts []coqui.Option
		if lang, ok := entry.OptionString("language"); ok {
			opts = append(opts, coqui.WithLanguage(lang))
		}
		if mode, ok := entry.OptionString("api_mode"); ok {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(mode)))
		}
		if d, ok := entry.OptionDuration("timeout"); ok {
			opts = append(opts, coqui.WithTimeout(d))
		}
		return coqui.New(entry.BaseURL, opts...)
	})

	// ── Local TTS ─────────────────────────────────────────────────────────────

	reg.RegisterLocalTTS("espeak", func(entry config.ProviderEntry) (localtts.Synthesizer, error) {
		var opts []espeak.Option
		if exe, ok := entry.OptionString("executable"); ok {
			opts = append(opts, espeak.WithExecutable(exe))
		}
		if wpm, ok := entry.OptionInt("speed"); ok {
			opts = append(opts, espeak.WithSpeed(wpm))
		}
		if amp, ok := entry.OptionInt("amplitude"); ok {
			opts = append(opts, espeak.WithAmplitude(amp))
		}
		return espeak.New(opts...)
	})

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang, ok := entry.OptionString("language"); ok {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		if prompt, ok := entry.OptionString("prompt"); ok {
			opts = append(opts, whisper.WithPrompt(prompt))
		}
		if d, ok := entry.OptionDuration("timeout"); ok {
			opts = append(opts, whisper.WithTimeout(d))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	// ── Audio output ──────────────────────────────────────────────────────────

	reg.RegisterAudio("speaker", func(entry config.ProviderEntry) (audio.Player, error) {
		var opts []speaker.Option
		if rate, ok := entry.OptionInt("sample_rate"); ok {
			opts = append(opts, speaker.WithSampleRate(rate))
		}
		if d, ok := entry.OptionDuration("buffer"); ok {
			opts = append(opts, speaker.WithBufferDuration(d))
		}
		return speaker.New(opts...)
	})

	for kind, names := range config.ValidProviderNames {
		for _, name := range names {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// buildProviders instantiates all providers named in cfg using the registry
// and returns them in an [app.Providers] struct for the application to consume.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}
	p := cfg.Providers

	if p.TTS.Configured() {
		s, err := reg.CreateTTS(p.TTS)
		if err != nil {
			return nil, fmt.Errorf("create tts provider %q: %w", p.TTS.Name, err)
		}
		ps.TTS = s
		slog.Info("provider created", "kind", "tts", "name", p.TTS.Name)

		for _, fb := range p.TTSFallbacks {
			s, err := reg.CreateTTS(fb)
			if err != nil {
				return nil, fmt.Errorf("create tts fallback %q: %w", fb.Name, err)
			}
			ps.TTSFallbacks = append(ps.TTSFallbacks, app.NamedSynthesizer{Name: fb.Name, Synthesizer: s})
			slog.Info("provider created", "kind", "tts_fallback", "name", fb.Name)
		}
	}

	if p.LocalTTS.Configured() {
		s, err := reg.CreateLocalTTS(p.LocalTTS)
		if err != nil {
			// The device engine is optional: a host without espeak still
			// serves clips.
			slog.Warn("local tts unavailable", "name", p.LocalTTS.Name, "err", err)
		} else {
			ps.LocalTTS = s
			slog.Info("provider created", "kind", "local_tts", "name", p.LocalTTS.Name)
		}
	}

	if p.STT.Configured() {
		t, err := reg.CreateSTT(p.STT)
		if err != nil {
			return nil, fmt.Errorf("create stt provider %q: %w", p.STT.Name, err)
		}
		ps.STT = t
		slog.Info("provider created", "kind", "stt", "name", p.STT.Name)
	}

	if p.Audio.Configured() {
		pl, err := reg.CreateAudio(p.Audio)
		if err != nil {
			slog.Warn("audio output unavailable", "name", p.Audio.Name, "err", err)
		} else {
			ps.Audio = pl
			slog.Info("provider created", "kind", "audio", "name", p.Audio.Name)
		}
	}

	return ps, nil
}
