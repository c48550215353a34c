package voice

import (
	"context"

	"github.com/MrWong99/lisible/internal/observe"
	"github.com/MrWong99/lisible/pkg/audio"
	"github.com/MrWong99/lisible/pkg/provider/localtts"
)

type clipHandle struct {
	player audio.Player
	clip   audio.Clip
}

func (h *clipHandle) Play(ctx context.Context) error {
	if h.player == nil {
		return ErrNoPlayer
	}
	return h.player.Play(ctx, h.clip)
}

// personalHandle plays a learner recording and, if that fails for any
// reason other than cancellation, resolves the token again without the
// personal tier and plays that instead.
type personalHandle struct {
	r       *Resolver
	clip    audio.Clip
	token   string
	voiceID string
}

func (h *personalHandle) Play(ctx context.Context) error {
	err := ErrNoPlayer
	if h.r.player != nil {
		err = h.r.player.Play(ctx, h.clip)
	}
	if err == nil || ctx.Err() != nil {
		return err
	}
	observe.Logger(ctx).Warn("personal recording failed to play, falling back", "token", h.token, "err", err)
	fb := h.r.sharedTiers(ctx, h.token, h.voiceID)
	h.r.metrics.RecordResolution(ctx, string(fb.Tier))
	return fb.Handle.Play(ctx)
}

// localHandle speaks through the device engine. Engine failures are logged
// and swallowed: the last tier never fails outwardly.
type localHandle struct {
	engine    localtts.Synthesizer
	metrics   *observe.Metrics
	utterance localtts.Utterance
}

func (h *localHandle) Play(ctx context.Context) error {
	u := h.utterance
	u.OnStart = func() {
		h.metrics.RecordLocalSpeechStart(ctx, u.Voice.ID)
		observe.Logger(ctx).Debug("local speech started", "voice", u.Voice.ID, "text", u.Text)
	}
	err := h.engine.Speak(ctx, u)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		observe.Logger(ctx).Warn("local speech failed", "voice", h.utterance.Voice.ID, "err", err)
	}
	return nil
}
