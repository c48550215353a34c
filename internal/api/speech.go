package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/MrWong99/lisible/internal/observe"
	"github.com/MrWong99/lisible/internal/playback"
	"github.com/MrWong99/lisible/internal/textnorm"
	"github.com/MrWong99/lisible/internal/voice"
	"github.com/MrWong99/lisible/pkg/provider/localtts"
	"github.com/MrWong99/lisible/pkg/provider/tts"
)

// Response headers of /v1/resolve.
const (
	HeaderTier   = "X-Lisible-Tier"
	HeaderSilent = "X-Lisible-Silent"
)

type resolveRequest struct {
	Token     string `json:"token"`
	VoiceID   string `json:"voice_id"`
	LearnerID string `json:"learner_id"`
}

// handleResolve answers with the clip for a token. When only the host's
// local engine could speak it, or nothing can, the response is 204 and the
// client is expected to use its own speech engine.
func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	if h.resolvers == nil {
		writeError(w, http.StatusNotImplemented, fmt.Errorf("resolve: voice resolver %w", errNotConfigured))
		return
	}
	var req resolveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if textnorm.Normalize(req.Token) == "" {
		writeError(w, http.StatusBadRequest, errors.New("resolve: token is empty after normalisation"))
		return
	}

	res := h.resolvers.ResolverFor(r.Context(), req.LearnerID).
		Resolve(r.Context(), req.Token, h.voiceOrDefault(req.VoiceID))

	w.Header().Set(HeaderTier, string(res.Tier))
	if res.Silent || res.Tier == voice.TierLocalFallback || len(res.Clip.Data) == 0 {
		w.Header().Set(HeaderSilent, strconv.FormatBool(res.Silent))
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", res.Clip.Format.ContentType())
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Clip.Data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(res.Clip.Data); err != nil {
		observe.Logger(r.Context()).Debug("resolve: write clip", "err", err)
	}
}

type prefetchRequest struct {
	Tokens    []string `json:"tokens"`
	VoiceID   string   `json:"voice_id"`
	LearnerID string   `json:"learner_id"`
}

// handlePrefetch warms the clip cache for an upcoming exercise. It returns
// at once; synthesis continues in the background.
func (h *Handler) handlePrefetch(w http.ResponseWriter, r *http.Request) {
	if h.resolvers == nil {
		writeError(w, http.StatusNotImplemented, fmt.Errorf("prefetch: voice resolver %w", errNotConfigured))
		return
	}
	var req prefetchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ctx := observe.WithLearner(context.WithoutCancel(r.Context()), req.LearnerID)
	res := h.resolvers.ResolverFor(ctx, req.LearnerID)
	voiceID := h.voiceOrDefault(req.VoiceID)
	go func() {
		if err := res.Prefetch(ctx, req.Tokens, voiceID); err != nil {
			observe.Logger(ctx).Warn("prefetch failed", "err", err)
		}
	}()
	w.WriteHeader(http.StatusAccepted)
}

type listenRequest struct {
	LearnerID string   `json:"learner_id"`
	Tokens    []string `json:"tokens"`
	VoiceID   string   `json:"voice_id"`
}

type sessionResponse struct {
	SessionID string           `json:"session_id"`
	Tokens    []string         `json:"tokens,omitempty"`
	Cursor    int              `json:"cursor"`
	Outcome   playback.Outcome `json:"outcome,omitempty"`
	Silent    []int            `json:"silent,omitempty"`
}

func sessionBody(s *playback.Session) sessionResponse {
	return sessionResponse{
		SessionID: s.ID(),
		Tokens:    s.Tokens(),
		Cursor:    s.Cursor(),
		Outcome:   s.Outcome(),
		Silent:    s.Silent(),
	}
}

func (h *Handler) handleListen(w http.ResponseWriter, r *http.Request) {
	if h.listener == nil {
		writeError(w, http.StatusNotImplemented, fmt.Errorf("listen: playback %w", errNotConfigured))
		return
	}
	var req listenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.LearnerID == "" {
		writeError(w, http.StatusBadRequest, errors.New("listen: learner_id is required"))
		return
	}
	// Playback outlives the request.
	s := h.listener.Listen(context.WithoutCancel(r.Context()), req.LearnerID, req.Tokens, h.voiceOrDefault(req.VoiceID))
	writeJSON(w, http.StatusAccepted, sessionBody(s))
}

func (h *Handler) handleListenStatus(w http.ResponseWriter, r *http.Request) {
	if h.listener == nil {
		writeError(w, http.StatusNotImplemented, fmt.Errorf("listen: playback %w", errNotConfigured))
		return
	}
	s := h.listener.Session(r.PathValue("learner_id"))
	if s == nil {
		writeError(w, http.StatusNotFound, errors.New("listen: no session for learner"))
		return
	}
	writeJSON(w, http.StatusOK, sessionBody(s))
}

func (h *Handler) handleListenCancel(w http.ResponseWriter, r *http.Request) {
	if h.listener == nil {
		writeError(w, http.StatusNotImplemented, fmt.Errorf("listen: playback %w", errNotConfigured))
		return
	}
	if !h.listener.Cancel(r.PathValue("learner_id")) {
		writeError(w, http.StatusNotFound, errors.New("listen: no running session for learner"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type availabilityResponse struct {
	Name  string `json:"name"`
	State string `json:"state"`
}

func (h *Handler) handleAvailability(w http.ResponseWriter, _ *http.Request) {
	if h.avail == nil {
		writeError(w, http.StatusNotImplemented, fmt.Errorf("availability: remote synthesis %w", errNotConfigured))
		return
	}
	writeJSON(w, http.StatusOK, availabilityResponse{Name: h.avail.Name(), State: h.avail.State().String()})
}

type voicesResponse struct {
	Remote []tts.Voice      `json:"remote"`
	Local  []localtts.Voice `json:"local"`
}

func (h *Handler) handleVoices(w http.ResponseWriter, r *http.Request) {
	resp := voicesResponse{Remote: []tts.Voice{}, Local: []localtts.Voice{}}
	if h.remote != nil {
		vs, err := h.remote.ListVoices(r.Context())
		if err != nil {
			writeError(w, http.StatusBadGateway, fmt.Errorf("voices: remote: %w", err))
			return
		}
		resp.Remote = append(resp.Remote, vs...)
	}
	if h.local != nil {
		vs, err := h.local.Voices(r.Context())
		if err != nil {
			writeError(w, http.StatusBadGateway, fmt.Errorf("voices: local: %w", err))
			return
		}
		resp.Local = append(resp.Local, vs...)
	}
	writeJSON(w, http.StatusOK, resp)
}
