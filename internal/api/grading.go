package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/lisible/internal/observe"
	"github.com/MrWong99/lisible/internal/scoring"
	"github.com/MrWong99/lisible/pkg/provider/stt"
)

type scoreRequest struct {
	Expected  []string     `json:"expected"`
	Candidate []string     `json:"candidate"`
	Mode      scoring.Mode `json:"mode"`
}

func (h *Handler) handleScore(w http.ResponseWriter, r *http.Request) {
	var req scoreRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Mode == "" {
		req.Mode = scoring.ModeFree
	}
	res, err := h.score(r, req.Expected, req.Candidate, req.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// score grades inside a span and records the outcome.
func (h *Handler) score(r *http.Request, expected, candidate []string, mode scoring.Mode) (scoring.Result, error) {
	ctx, span := observe.StartSpan(r.Context(), "scoring.Score",
		trace.WithAttributes(
			attribute.String("mode", string(mode)),
			attribute.Int("expected", len(expected)),
			attribute.Int("candidate", len(candidate)),
		),
	)
	defer span.End()

	res, err := h.scorer.Score(expected, candidate, mode)
	if err != nil {
		span.RecordError(err)
		return scoring.Result{}, err
	}
	span.SetAttributes(attribute.String("tier", string(res.Tier)))
	h.metrics.RecordScore(ctx, string(mode), string(res.Tier))
	observe.Logger(ctx).Debug("answer scored", "mode", mode, "tier", res.Tier, "score", res.Stats.Score)
	return res, nil
}

type segmentRequest struct {
	ExpectedCuts  []int    `json:"expected_cuts"`
	ExpectedWords []string `json:"expected_words"`
	CandidateCuts []int    `json:"candidate_cuts"`
}

type segmentResponse struct {
	Valid        bool  `json:"valid"`
	ExpectedCuts []int `json:"expected_cuts"`
}

func (h *Handler) handleSegment(w http.ResponseWriter, r *http.Request) {
	var req segmentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	expected := req.ExpectedCuts
	switch {
	case expected != nil && req.ExpectedWords != nil:
		writeError(w, http.StatusBadRequest, errors.New("give either expected_cuts or expected_words, not both"))
		return
	case expected == nil && req.ExpectedWords == nil:
		writeError(w, http.StatusBadRequest, errors.New("expected_cuts or expected_words is required"))
		return
	case expected == nil:
		expected = scoring.CutsFromSegments(req.ExpectedWords)
	}
	if req.CandidateCuts == nil {
		req.CandidateCuts = []int{}
	}
	writeJSON(w, http.StatusOK, segmentResponse{
		Valid:        scoring.Validate(expected, req.CandidateCuts),
		ExpectedCuts: expected,
	})
}

type dictationResponse struct {
	Transcript string         `json:"transcript"`
	Result     scoring.Result `json:"result"`
}

// handleDictation transcribes the uploaded answer and grades it in free mode
// against the expected text. Form fields: audio (file), expected, language.
func (h *Handler) handleDictation(w http.ResponseWriter, r *http.Request) {
	if h.transcriber == nil {
		writeError(w, http.StatusNotImplemented, fmt.Errorf("dictation: transcription %w", errNotConfigured))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxAudioBytes)
	if err := r.ParseMultipartForm(maxAudioBytes); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("dictation: parse form: %w", err))
		return
	}
	expected := strings.Fields(r.FormValue("expected"))
	if len(expected) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("dictation: expected is required"))
		return
	}
	f, _, err := r.FormFile("audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("dictation: audio file: %w", err))
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("dictation: read audio: %w", err))
		return
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, fmt.Errorf("dictation: %w", stt.ErrEmptyAudio))
		return
	}

	ctx, span := observe.StartSpan(r.Context(), "stt.Transcribe")
	start := time.Now()
	text, err := h.transcriber.Transcribe(ctx, data, r.FormValue("language"))
	h.metrics.TranscriptionDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.End()
		status := http.StatusBadGateway
		if errors.Is(err, stt.ErrEmptyAudio) {
			status = http.StatusBadRequest
		}
		writeError(w, status, fmt.Errorf("dictation: transcribe: %w", err))
		return
	}
	span.End()

	res, err := h.score(r, expected, strings.Fields(text), scoring.ModeFree)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, dictationResponse{Transcript: text, Result: res})
}
