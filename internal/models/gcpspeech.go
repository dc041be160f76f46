package models

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/fennecvideo/fennec/internal/errdefs"
	"github.com/fennecvideo/fennec/internal/logger"
)

// gcpSpeechClient is the hosted alternative to the whisper sidecar. Audio
// goes up inline, which caps usable clip length; fine for scene-length
// segments, wrong tool for feature films.
type gcpSpeechClient struct {
	log    *logger.Logger
	client *speech.Client
}

func NewGCPSpeechClient(log *logger.Logger) (SpeechClient, error) {
	slog := log.With("client", "GCPSpeechClient")

	creds := strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_JSON"))
	if creds == "" {
		creds = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	ctx := context.Background()
	var c *speech.Client
	var err error
	if creds != "" {
		c, err = speech.NewClient(ctx, option.WithCredentialsFile(creds))
	} else {
		c, err = speech.NewClient(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("speech client: %w", err)
	}
	return &gcpSpeechClient{log: slog, client: c}, nil
}

func (c *gcpSpeechClient) Ready(ctx context.Context) error {
	if c.client == nil {
		return fmt.Errorf("%w: gcp speech client not initialized", errdefs.ErrModelNotReady)
	}
	return nil
}

func (c *gcpSpeechClient) Transcribe(ctx context.Context, wavPath string) ([]TranscriptSegment, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Minute)
	defer cancel()

	audio, err := os.ReadFile(wavPath)
	if err != nil {
		return nil, err
	}
	if len(audio) == 0 {
		return nil, nil
	}

	req := &speechpb.LongRunningRecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   speechpb.RecognitionConfig_LINEAR16,
			SampleRateHertz:            16000,
			AudioChannelCount:          1,
			LanguageCode:               "en-US",
			EnableAutomaticPunctuation: true,
			EnableWordTimeOffsets:      true,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio},
		},
	}

	op, err := c.client.LongRunningRecognize(ctx, req)
	if err != nil {
		return nil, translateGRPCErr(err)
	}
	resp, err := op.Wait(ctx)
	if err != nil {
		return nil, translateGRPCErr(err)
	}

	var out []TranscriptSegment
	for _, result := range resp.Results {
		if len(result.Alternatives) == 0 {
			continue
		}
		alt := result.Alternatives[0]
		text := strings.TrimSpace(alt.Transcript)
		if text == "" {
			continue
		}
		seg := TranscriptSegment{Text: text}
		if n := len(alt.Words); n > 0 {
			seg.StartSec = alt.Words[0].StartTime.AsDuration().Seconds()
			seg.EndSec = alt.Words[n-1].EndTime.AsDuration().Seconds()
		}
		out = append(out, seg)
	}
	return out, nil
}

func translateGRPCErr(err error) error {
	switch status.Code(err) {
	case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded:
		return fmt.Errorf("%w: gcp speech: %v", errdefs.ErrStageTransient, err)
	default:
		return fmt.Errorf("gcp speech: %w", err)
	}
}
