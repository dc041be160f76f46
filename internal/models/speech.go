package models

import (
	"context"
	"encoding/base64"
	"os"
	"strings"

	"github.com/fennecvideo/fennec/internal/logger"
	"github.com/fennecvideo/fennec/internal/utils"
)

// TranscriptSegment is one time-aligned piece of speech.
type TranscriptSegment struct {
	StartSec float64 `json:"start"`
	EndSec   float64 `json:"end"`
	Text     string  `json:"text"`
}

// SpeechClient turns a mono 16 kHz WAV file into time-aligned transcript
// segments. The default backend is the whisper sidecar; SPEECH_PROVIDER=gcp
// switches to Google Cloud Speech-to-Text.
type SpeechClient interface {
	Ready(ctx context.Context) error
	Transcribe(ctx context.Context, wavPath string) ([]TranscriptSegment, error)
}

// NewSpeechClient picks the transcription backend from SPEECH_PROVIDER.
func NewSpeechClient(log *logger.Logger) (SpeechClient, error) {
	provider := strings.ToLower(utils.GetEnv("SPEECH_PROVIDER", "whisper", log))
	if provider == "gcp" {
		return NewGCPSpeechClient(log)
	}
	return NewWhisperClient(log), nil
}

type whisperClient struct {
	*hostClient
}

func NewWhisperClient(log *logger.Logger) SpeechClient {
	return &whisperClient{
		hostClient: newHostClient(log, "WhisperClient", "WHISPER_HOST_URL", "http://localhost:8193"),
	}
}

type transcribeRequest struct {
	AudioB64 string `json:"audio_b64"`
}

type transcribeResponse struct {
	Segments []TranscriptSegment `json:"segments"`
}

func (c *whisperClient) Transcribe(ctx context.Context, wavPath string) ([]TranscriptSegment, error) {
	audio, err := os.ReadFile(wavPath)
	if err != nil {
		return nil, err
	}
	var resp transcribeResponse
	req := transcribeRequest{AudioB64: base64.StdEncoding.EncodeToString(audio)}
	if err := c.postJSON(ctx, "/transcribe", req, &resp); err != nil {
		return nil, err
	}
	return resp.Segments, nil
}
