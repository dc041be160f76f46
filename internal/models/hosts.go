package models

import (
	"context"

	"github.com/fennecvideo/fennec/internal/logger"
	"github.com/fennecvideo/fennec/internal/types"
)

// Hosts bundles the per-model clients the pipeline and the query surface
// share.
type Hosts struct {
	Visual VisualModelClient
	Text   TextModelClient
	Speech SpeechClient
	Face   FaceModelClient
}

func NewHosts(log *logger.Logger) (*Hosts, error) {
	speechClient, err := NewSpeechClient(log)
	if err != nil {
		return nil, err
	}
	return &Hosts{
		Visual: NewVisualModelClient(log),
		Text:   NewTextModelClient(log),
		Speech: speechClient,
		Face:   NewFaceModelClient(log),
	}, nil
}

// Readiness probes each enabled host and reports per-model readiness.
// Disabled models report true; they never block anything.
func (h *Hosts) Readiness(ctx context.Context, enabled types.EnabledModels) map[string]bool {
	out := map[string]bool{
		types.ModelClip:       true,
		types.ModelWhisper:    true,
		types.ModelTranscript: true,
		types.ModelArcFace:    true,
	}
	if enabled.Clip {
		out[types.ModelClip] = h.Visual.Ready(ctx) == nil
	}
	if enabled.Whisper {
		out[types.ModelWhisper] = h.Speech.Ready(ctx) == nil
	}
	if enabled.TranscriptEmbed {
		out[types.ModelTranscript] = h.Text.Ready(ctx) == nil
	}
	if enabled.ArcFace {
		out[types.ModelArcFace] = h.Face.Ready(ctx) == nil
	}
	return out
}
