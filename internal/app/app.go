// Package app wires all lisible subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves the HTTP API until the context ends, and Shutdown
// tears everything down in order.
//
// For testing, inject doubles via functional options (WithClipStore,
// WithRecordingSource, etc.). When an option is not provided, New creates
// real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/lisible/internal/api"
	"github.com/MrWong99/lisible/internal/clipcache"
	"github.com/MrWong99/lisible/internal/config"
	"github.com/MrWong99/lisible/internal/health"
	"github.com/MrWong99/lisible/internal/observe"
	"github.com/MrWong99/lisible/internal/recordings"
	"github.com/MrWong99/lisible/internal/resilience"
	"github.com/MrWong99/lisible/internal/scoring"
	"github.com/MrWong99/lisible/internal/voice"
	"github.com/MrWong99/lisible/pkg/audio"
	"github.com/MrWong99/lisible/pkg/provider/localtts"
	"github.com/MrWong99/lisible/pkg/provider/stt"
	"github.com/MrWong99/lisible/pkg/provider/tts"
	"github.com/MrWong99/lisible/pkg/store/postgres"
)

// readHeaderTimeout bounds how long a client may take to send headers.
const readHeaderTimeout = 10 * time.Second

// NamedSynthesizer is a remote synthesizer registered under a provider name.
type NamedSynthesizer struct {
	Name string
	tts.Synthesizer
}

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry.
type Providers struct {
	TTS          tts.Synthesizer
	TTSFallbacks []NamedSynthesizer
	LocalTTS     localtts.Synthesizer
	Audio        audio.Player
	STT          stt.Transcriber
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers
	metrics   *observe.Metrics
	logLevel  *slog.LevelVar

	// Subsystems, initialised in New and torn down in Shutdown.
	store        *postgres.Store
	clips        clipcache.Store
	recSource    recordings.Source
	recordings   *recordings.Cache
	avail        *resilience.Availability
	remote       tts.Synthesizer
	resolver     *voice.Resolver
	learners     *Learners
	scorer       *scoring.Scorer
	checkers     []health.Checker
	handler      http.Handler
	defaultVoice atomic.Pointer[string]

	srvMu  sync.Mutex
	server *http.Server
	addr   net.Addr

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithClipStore injects the clip cache instead of building one from config.
func WithClipStore(s clipcache.Store) Option {
	return func(a *App) { a.clips = s }
}

// WithRecordingSource injects the personal recording source instead of
// building one from config.
func WithRecordingSource(src recordings.Source) Option {
	return func(a *App) { a.recSource = src }
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogLevel hands the app the level of the process logger so that
// configuration reloads can change it.
func WithLogLevel(lv *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = lv }
}

// WithHealthCheckers adds readiness checks beyond the built-in ones.
func WithHealthCheckers(cs ...health.Checker) Option {
	return func(a *App) { a.checkers = append(a.checkers, cs...) }
}

// New creates a fully wired App from cfg and providers. Zero-valued scoring
// thresholds in cfg are filled with defaults.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	config.ApplyDefaults(cfg)
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	dv := cfg.Voice.DefaultVoice
	a.defaultVoice.Store(&dv)

	if err := a.initDatabase(ctx); err != nil {
		return nil, fmt.Errorf("app: init database: %w", err)
	}
	if err := a.initCache(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init cache: %w", err)
	}
	if err := a.initRecordings(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init recordings: %w", err)
	}
	a.initSynthesis()
	a.initResolver()

	scorer, err := a.newScorer()
	if err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init scorer: %w", err)
	}
	a.scorer = scorer

	a.initHTTP()
	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// needsDatabase reports whether any component is configured to use Postgres.
func (a *App) needsDatabase() bool {
	return (a.cfg.Cache.Backend == config.CachePostgres && a.clips == nil) ||
		(a.cfg.Recordings.Source == config.RecordingsPostgres && a.recSource == nil)
}

func (a *App) initDatabase(ctx context.Context) error {
	if !a.needsDatabase() {
		return nil
	}
	st, err := postgres.NewStore(ctx, a.cfg.Database.PostgresDSN)
	if err != nil {
		return err
	}
	a.store = st
	a.closers = append(a.closers, func() error {
		st.Close()
		return nil
	})
	a.checkers = append(a.checkers, health.PingChecker("database", st))
	slog.Info("database connected")
	return nil
}

// initCache builds a memory layer in front of the configured backing store.
func (a *App) initCache() error {
	if a.clips != nil {
		return nil
	}
	c := a.cfg.Cache
	mem := clipcache.NewMemory(c.MemoryBytes)

	switch c.Backend {
	case config.CacheDisk:
		disk, err := clipcache.NewDisk(c.Dir,
			clipcache.WithCapacity(c.DiskBytes),
			clipcache.WithCompressionLevel(c.CompressionLevel),
		)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, disk.Close)
		a.clips = clipcache.NewLayered(mem, disk)
	case config.CachePostgres:
		a.clips = clipcache.NewLayered(mem, a.store.Clips())
	default:
		a.clips = mem
	}
	slog.Info("clip cache ready", "backend", c.Backend)
	return nil
}

func (a *App) initRecordings() error {
	if a.recSource == nil {
		switch a.cfg.Recordings.Source {
		case config.RecordingsFile:
			src, err := recordings.NewFileSource(a.cfg.Recordings.Path)
			if err != nil {
				return err
			}
			a.recSource = src
		case config.RecordingsPostgres:
			a.recSource = a.store
		}
	}
	if a.recSource != nil {
		a.recordings = recordings.NewCache(a.recSource)
	}
	return nil
}

// initSynthesis wraps the remote synthesizer with its fallbacks and sets up
// the shared availability tracker.
func (a *App) initSynthesis() {
	p := a.providers
	if p.TTS != nil && len(p.TTSFallbacks) > 0 {
		sf := resilience.NewSynthFallback(p.TTS, a.cfg.Providers.TTS.Name, resilience.FallbackConfig{})
		for _, fb := range p.TTSFallbacks {
			sf.AddFallback(fb.Name, fb.Synthesizer)
		}
		a.remote = sf
	} else {
		a.remote = p.TTS
	}

	m := a.metrics
	a.avail = resilience.NewAvailability("synthesis",
		resilience.WithProbeInterval(a.cfg.Voice.AvailabilityProbeInterval),
		resilience.WithStateListener(func(name string, to resilience.AvailabilityState) {
			m.RecordAvailabilityChange(context.Background(), name, to.String())
			slog.Info("remote synthesis availability changed", "name", name, "state", to)
		}),
	)
	a.checkers = append(a.checkers, health.AvailabilityChecker("synthesis", a.avail))
}

func (a *App) initResolver() {
	opts := []voice.Option{
		voice.WithCache(a.clips),
		voice.WithAvailability(a.avail),
		voice.WithSettings(settingsFrom(a.cfg.Voice)),
		voice.WithSynthesisTimeout(a.cfg.Voice.SynthesisTimeout),
		voice.WithPrefetchConcurrency(a.cfg.Voice.PrefetchConcurrency),
		voice.WithMetrics(a.metrics),
	}
	if a.remote != nil {
		opts = append(opts, voice.WithRemote(a.remote))
	}
	if a.providers.LocalTTS != nil {
		opts = append(opts, voice.WithLocal(a.providers.LocalTTS))
	}
	if a.providers.Audio != nil {
		opts = append(opts, voice.WithPlayer(a.providers.Audio))
	}
	a.resolver = voice.New(opts...)
	a.learners = NewLearners(a.resolver, a.recordings, a.metrics)
}

func (a *App) newScorer() (*scoring.Scorer, error) {
	sc := a.cfg.Scoring
	if err := sc.Thresholds.Validate(); err != nil {
		return nil, err
	}
	opts := []scoring.Option{scoring.WithThresholds(sc.Thresholds)}
	if sc.NearMisses != nil && !*sc.NearMisses {
		opts = append(opts, scoring.WithoutNearMisses())
	}
	return scoring.New(opts...), nil
}

func (a *App) initHTTP() {
	mux := http.NewServeMux()

	apiOpts := []api.Option{
		api.WithResolvers(a.learners),
		api.WithAvailability(a.avail),
		api.WithVoices(a.remote, a.providers.LocalTTS),
		api.WithDefaultVoice(a.DefaultVoice),
		api.WithMetrics(a.metrics),
	}
	// Host playback needs somewhere to play.
	if a.providers.Audio != nil || a.providers.LocalTTS != nil {
		apiOpts = append(apiOpts, api.WithListener(a.learners))
	}
	if a.providers.STT != nil {
		apiOpts = append(apiOpts, api.WithTranscriber(a.providers.STT))
	}
	api.New(a.scorer, apiOpts...).Register(mux)
	health.New(a.checkers...).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	a.handler = observe.Middleware(a.metrics)(mux)
}

// settingsFrom converts the voice config section to resolver settings.
// TelemetryConfig describes the deployment in cfg for [observe.InitProvider].
// Unset settings are left out of the resource.
func TelemetryConfig(cfg *config.Config, version string) observe.ProviderConfig {
	attrs := map[string]string{
		"lisible.cache.backend":     string(cfg.Cache.Backend),
		"lisible.recordings.source": string(cfg.Recordings.Source),
		"lisible.tts.provider":      cfg.Providers.TTS.Name,
		"lisible.voice.language":    cfg.Voice.Language,
	}
	for k, v := range attrs {
		if v == "" {
			delete(attrs, k)
		}
	}
	return observe.ProviderConfig{ServiceVersion: version, Attributes: attrs}
}

func settingsFrom(vc config.VoiceConfig) voice.Settings {
	s := voice.Settings{
		Language:        vc.Language,
		CarrierTemplate: vc.CarrierTemplate,
		CarrierMaxRunes: vc.CarrierMaxRunes,
		LocalVoiceHint:  vc.LocalVoice,
		Denylist:        append([]string(nil), vc.VoiceDenylist...),
	}
	if s.Language == "" {
		s.Language = voice.DefaultSettings().Language
	}
	return s
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Handler returns the root HTTP handler: API, health, metrics and middleware.
func (a *App) Handler() http.Handler { return a.handler }

// Resolver returns the shared voice resolver.
func (a *App) Resolver() *voice.Resolver { return a.resolver }

// Learners returns the per-learner playback registry.
func (a *App) Learners() *Learners { return a.learners }

// DefaultVoice returns the remote voice used when a request names none.
func (a *App) DefaultVoice() string { return *a.defaultVoice.Load() }

// Addr returns the address Run is listening on, or nil before Run starts.
func (a *App) Addr() net.Addr {
	a.srvMu.Lock()
	defer a.srvMu.Unlock()
	return a.addr
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves the HTTP API on the configured listen address and blocks until
// ctx is cancelled or the server fails. On cancellation Run returns ctx.Err().
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen %q: %w", a.cfg.Server.ListenAddr, err)
	}
	srv := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
	a.srvMu.Lock()
	a.server = srv
	a.addr = ln.Addr()
	a.srvMu.Unlock()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	slog.Info("http server listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ApplyConfig applies the hot-reloadable differences between old and new.
// Sections that need a restart are logged and otherwise ignored.
func (a *App) ApplyConfig(old, new *config.Config) {
	d := config.Diff(old, new)

	if d.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(d.NewLogLevel.Level())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.VoiceChanged {
		a.resolver.SetSettings(settingsFrom(d.NewVoice))
		slog.Info("voice settings reloaded", "language", d.NewVoice.Language, "carrier", d.NewVoice.CarrierTemplate)
	}
	if d.DefaultVoiceChanged {
		dv := d.NewVoice.DefaultVoice
		a.defaultVoice.Store(&dv)
		slog.Info("default voice changed", "voice_id", dv)
	}
	if d.ProbeIntervalChanged {
		a.avail.SetProbeInterval(d.NewProbeInterval)
		slog.Info("availability probe interval changed", "interval", d.NewProbeInterval)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes need a restart to take effect", "sections", d.RestartRequired)
	}
}

// Shutdown stops the HTTP server, cancels every playback session and closes
// the subsystems. It is idempotent.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		a.srvMu.Lock()
		srv := a.server
		a.srvMu.Unlock()
		if srv != nil {
			if err := srv.Shutdown(ctx); err != nil {
				slog.Warn("http server shutdown error", "err", err)
				shutdownErr = err
			}
		}

		a.learners.StopAll()

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// closeAll runs the closers registered so far after a failed New.
func (a *App) closeAll() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			slog.Warn("closer error", "err", err)
		}
	}
	a.closers = nil
}
