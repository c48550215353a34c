// Package api exposes the voice resolver, the playback orchestrators and the
// answer scorer over HTTP.
//
// All request and response bodies are JSON except audio: /v1/resolve answers
// with the encoded clip and /v1/dictation accepts a multipart upload. Errors
// are JSON objects of the form {"error": "..."}: 400 for malformed input, 502
// when an upstream service failed and 501 when the server was started
// without the component an endpoint needs.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/MrWong99/lisible/internal/observe"
	"github.com/MrWong99/lisible/internal/playback"
	"github.com/MrWong99/lisible/internal/resilience"
	"github.com/MrWong99/lisible/internal/scoring"
	"github.com/MrWong99/lisible/internal/voice"
	"github.com/MrWong99/lisible/pkg/provider/localtts"
	"github.com/MrWong99/lisible/pkg/provider/stt"
	"github.com/MrWong99/lisible/pkg/provider/tts"
)

const (
	maxJSONBytes  = 1 << 20
	maxAudioBytes = 32 << 20
)

// Resolvers hands out the resolver that knows a learner's personal
// recordings. An empty learner ID yields the shared resolver.
type Resolvers interface {
	ResolverFor(ctx context.Context, learnerID string) *voice.Resolver
}

// Listener plays token sequences for learners on the host audio output.
type Listener interface {
	// Listen starts a session, cancelling the learner's previous one.
	Listen(ctx context.Context, learnerID string, tokens []string, voiceID string) *playback.Session

	// Session returns the learner's latest session, or nil.
	Session(learnerID string) *playback.Session

	// Cancel cancels the learner's running session and reports whether
	// there was one.
	Cancel(learnerID string) bool
}

// Option configures a [Handler].
type Option func(*Handler)

// WithResolvers enables /v1/resolve and /v1/prefetch.
func WithResolvers(r Resolvers) Option {
	return func(h *Handler) { h.resolvers = r }
}

// WithListener enables the /v1/listen endpoints.
func WithListener(l Listener) Option {
	return func(h *Handler) { h.listener = l }
}

// WithTranscriber enables /v1/dictation.
func WithTranscriber(t stt.Transcriber) Option {
	return func(h *Handler) { h.transcriber = t }
}

// WithAvailability exposes the remote synthesis state on /v1/availability.
func WithAvailability(a *resilience.Availability) Option {
	return func(h *Handler) { h.avail = a }
}

// WithVoices lets /v1/voices list the remote and local catalogues. Either
// may be nil.
func WithVoices(remote tts.Synthesizer, local localtts.Synthesizer) Option {
	return func(h *Handler) {
		h.remote = remote
		h.local = local
	}
}

// WithDefaultVoice supplies the voice used when a request names none. It is
// called per request so that configuration reloads take effect.
func WithDefaultVoice(fn func() string) Option {
	return func(h *Handler) { h.defaultVoice = fn }
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// Handler serves the lisible HTTP API.
type Handler struct {
	scorer       *scoring.Scorer
	resolvers    Resolvers
	listener     Listener
	transcriber  stt.Transcriber
	avail        *resilience.Availability
	remote       tts.Synthesizer
	local        localtts.Synthesizer
	defaultVoice func() string
	metrics      *observe.Metrics
}

// New returns a Handler grading answers with scorer. A nil scorer uses the
// default thresholds.
func New(scorer *scoring.Scorer, opts ...Option) *Handler {
	if scorer == nil {
		scorer = scoring.New()
	}
	h := &Handler{
		scorer:       scorer,
		defaultVoice: func() string { return "" },
	}
	for _, o := range opts {
		o(h)
	}
	if h.metrics == nil {
		h.metrics = observe.DefaultMetrics()
	}
	return h
}

// Register adds every API route to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/score", h.handleScore)
	mux.HandleFunc("POST /v1/segment", h.handleSegment)
	mux.HandleFunc("POST /v1/dictation", h.handleDictation)
	mux.HandleFunc("POST /v1/resolve", h.handleResolve)
	mux.HandleFunc("POST /v1/prefetch", h.handlePrefetch)
	mux.HandleFunc("POST /v1/listen", h.handleListen)
	mux.HandleFunc("GET /v1/listen/{learner_id}", h.handleListenStatus)
	mux.HandleFunc("DELETE /v1/listen/{learner_id}", h.handleListenCancel)
	mux.HandleFunc("GET /v1/availability", h.handleAvailability)
	mux.HandleFunc("GET /v1/voices", h.handleVoices)
}

// errNotConfigured is reported by endpoints whose backing component is absent.
var errNotConfigured = errors.New("not configured on this server")

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encode response"}`, http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorBody{Error: err.Error()})
}

// decodeJSON reads a single JSON object from the request body into v,
// rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

func (h *Handler) voiceOrDefault(id string) string {
	if id != "" {
		return id
	}
	return h.defaultVoice()
}
