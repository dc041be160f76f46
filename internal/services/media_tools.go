package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/fennecvideo/fennec/internal/errdefs"
	"github.com/fennecvideo/fennec/internal/logger"
	"github.com/fennecvideo/fennec/internal/types"
)

// MediaToolsService wraps the system binaries the pipeline shells out to:
//
// REQUIRED BINARIES in the ingest runtime:
// - ffprobe for container/stream metadata
// - ffmpeg for scene detection, poster frames and audio extraction
//
// Synchronous and deterministic. Called from pipeline stages, never from
// request handlers.
type MediaToolsService interface {
	AssertReady(ctx context.Context) error

	Probe(ctx context.Context, videoPath string) (*ProbeResult, error)

	// DetectScenes runs ffmpeg scene-change detection and returns spans
	// covering [0, duration) with no gaps. A video with no cuts yields one
	// span.
	DetectScenes(ctx context.Context, videoPath string, threshold float64, durationSeconds float64) ([]SceneSpan, error)

	// ExtractPoster grabs a single frame at the given timestamp, scaled to
	// the configured width with aspect preserved.
	ExtractPoster(ctx context.Context, videoPath string, timestampSeconds float64, outPath string, opts types.PosterSettings) error

	// ExtractAudio demuxes the first audio track to mono 16 kHz WAV for
	// transcription.
	ExtractAudio(ctx context.Context, videoPath string, outPath string) (string, error)
}

// ProbeResult is the subset of ffprobe output the files table records.
type ProbeResult struct {
	DurationSeconds float64
	Width           int
	Height          int
	FPS             float64
	Codec           string
	AudioTracks     int
	PixFmt          string
	ColorSpace      string
	ColorTransfer   string
	ColorPrimaries  string
}

// SceneSpan is one detected scene in seconds from start of file.
type SceneSpan struct {
	Start float64
	End   float64
}

type mediaToolsService struct {
	log *logger.Logger

	ffmpegPath  string
	ffprobePath string

	workRoot string

	defaultTimeout time.Duration
}

func NewMediaToolsService(log *logger.Logger) MediaToolsService {
	slog := log.With("service", "MediaToolsService")
	return &mediaToolsService{
		log:            slog,
		ffmpegPath:     "ffmpeg",
		ffprobePath:    "ffprobe",
		workRoot:       "/tmp/fennec-media",
		defaultTimeout: 30 * time.Minute,
	}
}

func (m *mediaToolsService) AssertReady(ctx context.Context) error {
	for _, bin := range []string{m.ffmpegPath, m.ffprobePath} {
		if _, err := exec.LookPath(bin); err != nil {
			return fmt.Errorf("missing required binary %q in PATH: %w", bin, err)
		}
	}
	if err := os.MkdirAll(m.workRoot, 0o755); err != nil {
		return fmt.Errorf("create workRoot: %w", err)
	}
	return nil
}

// ffprobe JSON shapes. Only the fields we read.
type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType      string `json:"codec_type"`
		CodecName      string `json:"codec_name"`
		Width          int    `json:"width"`
		Height         int    `json:"height"`
		RFrameRate     string `json:"r_frame_rate"`
		AvgFrameRate   string `json:"avg_frame_rate"`
		PixFmt         string `json:"pix_fmt"`
		ColorSpace     string `json:"color_space"`
		ColorTransfer  string `json:"color_transfer"`
		ColorPrimaries string `json:"color_primaries"`
	} `json:"streams"`
}

func (m *mediaToolsService) Probe(ctx context.Context, videoPath string) (*ProbeResult, error) {
	ctx = defaultCtx(ctx)
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	cmd := exec.CommandContext(ctx, m.ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		videoPath,
	)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%w: ffprobe failed for %s: %v", errdefs.ErrUnreadableMedia, videoPath, err)
	}

	var probed ffprobeOutput
	if err := json.Unmarshal(out, &probed); err != nil {
		return nil, fmt.Errorf("%w: ffprobe output for %s: %v", errdefs.ErrUnreadableMedia, videoPath, err)
	}

	res := &ProbeResult{}
	res.DurationSeconds, _ = strconv.ParseFloat(probed.Format.Duration, 64)

	foundVideo := false
	for _, s := range probed.Streams {
		switch s.CodecType {
		case "video":
			if foundVideo {
				continue
			}
			foundVideo = true
			res.Width = s.Width
			res.Height = s.Height
			res.Codec = s.CodecName
			res.PixFmt = s.PixFmt
			res.ColorSpace = s.ColorSpace
			res.ColorTransfer = s.ColorTransfer
			res.ColorPrimaries = s.ColorPrimaries
			res.FPS = parseFrameRate(s.RFrameRate)
			if res.FPS == 0 {
				res.FPS = parseFrameRate(s.AvgFrameRate)
			}
		case "audio":
			res.AudioTracks++
		}
	}
	if !foundVideo {
		return nil, fmt.Errorf("%w: no video stream in %s", errdefs.ErrUnreadableMedia, videoPath)
	}
	if res.DurationSeconds <= 0 {
		return nil, fmt.Errorf("%w: zero duration for %s", errdefs.ErrUnreadableMedia, videoPath)
	}
	return res, nil
}

// parseFrameRate turns an ffprobe rational like "30000/1001" into a float.
func parseFrameRate(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" || s == "0/0" {
		return 0
	}
	if num, den, ok := strings.Cut(s, "/"); ok {
		n, err1 := strconv.ParseFloat(num, 64)
		d, err2 := strconv.ParseFloat(den, 64)
		if err1 != nil || err2 != nil || d == 0 {
			return 0
		}
		return n / d
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

var showinfoPtsTime = regexp.MustCompile(`pts_time:([0-9]+(?:\.[0-9]+)?)`)

func (m *mediaToolsService) DetectScenes(ctx context.Context, videoPath string, threshold float64, durationSeconds float64) ([]SceneSpan, error) {
	ctx = defaultCtx(ctx)
	ctx, cancel := context.WithTimeout(ctx, m.defaultTimeout)
	defer cancel()

	if threshold <= 0 {
		threshold = 0.4
	}

	// showinfo writes one line per selected frame to stderr; the select
	// filter keeps only frames that start a new scene.
	vf := fmt.Sprintf("select='gt(scene\\,%0.3f)',showinfo", threshold)
	cmd := exec.CommandContext(ctx, m.ffmpegPath,
		"-i", videoPath,
		"-vf", vf,
		"-f", "null", "-",
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("%w: ffmpeg scene detection failed for %s: %v", errdefs.ErrUnreadableMedia, videoPath, err)
	}

	boundaries := parseSceneBoundaries(string(out), durationSeconds)
	return spansFromBoundaries(boundaries, durationSeconds), nil
}

// parseSceneBoundaries pulls pts_time values out of showinfo stderr output,
// keeping only those strictly inside (0, duration).
func parseSceneBoundaries(ffmpegOutput string, durationSeconds float64) []float64 {
	matches := showinfoPtsTime.FindAllStringSubmatch(ffmpegOutput, -1)
	var out []float64
	for _, match := range matches {
		t, err := strconv.ParseFloat(match[1], 64)
		if err != nil {
			continue
		}
		if t <= 0 || t >= durationSeconds {
			continue
		}
		out = append(out, t)
	}
	return out
}

// spansFromBoundaries converts cut timestamps into contiguous spans covering
// [0, duration). Boundaries are assumed ascending, which is how ffmpeg
// emits them.
func spansFromBoundaries(boundaries []float64, durationSeconds float64) []SceneSpan {
	starts := append([]float64{0}, boundaries...)
	spans := make([]SceneSpan, 0, len(starts))
	for i, start := range starts {
		end := durationSeconds
		if i+1 < len(starts) {
			end = starts[i+1]
		}
		if end <= start {
			continue
		}
		spans = append(spans, SceneSpan{Start: start, End: end})
	}
	return spans
}

func (m *mediaToolsService) ExtractPoster(ctx context.Context, videoPath string, timestampSeconds float64, outPath string, opts types.PosterSettings) error {
	ctx = defaultCtx(ctx)
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("mkdir poster dir: %w", err)
	}

	width := opts.Width
	if width <= 0 {
		width = 1280
	}
	quality := opts.Quality
	if quality <= 0 {
		quality = 80
	}

	// -2 keeps the height even, which some encoders require.
	scale := fmt.Sprintf("scale=%d:-2", width)

	args := []string{
		"-y",
		"-ss", formatSeconds(timestampSeconds),
		"-i", videoPath,
		"-frames:v", "1",
		"-vf", scale,
	}
	switch strings.ToLower(opts.Format) {
	case "", "webp":
		args = append(args, "-c:v", "libwebp", "-quality", strconv.Itoa(quality))
	case "jpg", "jpeg":
		// map 0-100 quality onto ffmpeg's inverted 2-31 scale
		q := 2 + (100-quality)*29/100
		args = append(args, "-q:v", strconv.Itoa(q))
	case "png":
	default:
		return fmt.Errorf("unsupported poster format: %s", opts.Format)
	}
	args = append(args, outPath)

	cmd := exec.CommandContext(ctx, m.ffmpegPath, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: ffmpeg poster failed for %s: %v; out=%s", errdefs.ErrUnreadableMedia, videoPath, err, string(out))
	}
	if _, err := os.Stat(outPath); err != nil {
		return fmt.Errorf("%w: poster output missing at %s", errdefs.ErrUnreadableMedia, outPath)
	}
	return nil
}

func (m *mediaToolsService) ExtractAudio(ctx context.Context, videoPath string, outPath string) (string, error) {
	ctx = defaultCtx(ctx)
	ctx, cancel := context.WithTimeout(ctx, m.defaultTimeout)
	defer cancel()

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", fmt.Errorf("mkdir audio dir: %w", err)
	}

	// ffmpeg -i in.mp4 -vn -ac 1 -ar 16000 -f wav out.wav
	cmd := exec.CommandContext(ctx, m.ffmpegPath,
		"-y",
		"-i", videoPath,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-f", "wav",
		outPath,
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("%w: ffmpeg extract audio failed for %s: %v; out=%s", errdefs.ErrUnreadableMedia, videoPath, err, string(out))
	}
	if _, err := os.Stat(outPath); err != nil {
		return "", fmt.Errorf("%w: audio output missing at %s", errdefs.ErrUnreadableMedia, outPath)
	}
	return outPath, nil
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}

func defaultCtx(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
