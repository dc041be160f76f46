package services

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/fennecvideo/fennec/internal/errdefs"
	"github.com/fennecvideo/fennec/internal/logger"
	"github.com/fennecvideo/fennec/internal/repos"
)

// ExportService renders selected scenes as a CMX 3600 EDL so an NLE can cut
// straight to the source footage.
type ExportService interface {
	BuildEDL(ctx context.Context, title string, sceneIDs []int64) (string, error)
}

type exportService struct {
	scenes repos.SceneRepo
	files  repos.FileRepo
	log    *logger.Logger
}

func NewExportService(scenes repos.SceneRepo, files repos.FileRepo, log *logger.Logger) ExportService {
	return &exportService{scenes: scenes, files: files, log: log.With("service", "ExportService")}
}

const edlDefaultFPS = 25.0

// SecondsToSMPTE renders seconds as non-drop HH:MM:SS:FF at the given
// frame rate. Fractional rates round to the nearest integer frame base, so
// 23.976 material labels as 24; fine for an offline cut reference.
func SecondsToSMPTE(seconds float64, fps float64) string {
	if fps <= 0 {
		fps = edlDefaultFPS
	}
	base := math.Round(fps)
	if base <= 0 {
		base = edlDefaultFPS
	}
	if seconds < 0 {
		seconds = 0
	}
	totalFrames := int64(math.Round(seconds * base))
	framesPerHour := int64(base) * 3600
	framesPerMinute := int64(base) * 60

	hh := totalFrames / framesPerHour
	totalFrames -= hh * framesPerHour
	mm := totalFrames / framesPerMinute
	totalFrames -= mm * framesPerMinute
	ss := totalFrames / int64(base)
	ff := totalFrames - ss*int64(base)
	return fmt.Sprintf("%02d:%02d:%02d:%02d", hh, mm, ss, ff)
}

func (e *exportService) BuildEDL(ctx context.Context, title string, sceneIDs []int64) (string, error) {
	if len(sceneIDs) == 0 {
		return "", errdefs.BadRequest("no scenes selected")
	}
	if strings.TrimSpace(title) == "" {
		title = "FENNEC EXPORT"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "TITLE: %s\n", strings.ToUpper(title))
	b.WriteString("FCM: NON-DROP FRAME\n\n")

	recordCursor := 0.0
	for i, sceneID := range sceneIDs {
		scene, err := e.scenes.GetByID(ctx, nil, sceneID)
		if err != nil {
			return "", err
		}
		if scene == nil {
			return "", errdefs.NotFound(fmt.Sprintf("scene %d", sceneID))
		}
		file, err := e.files.GetByID(ctx, nil, scene.FileID)
		if err != nil {
			return "", err
		}
		if file == nil {
			return "", errdefs.NotFound(fmt.Sprintf("file %d", scene.FileID))
		}

		fps := edlDefaultFPS
		if file.FPS != nil && *file.FPS > 0 {
			fps = *file.FPS
		}
		srcIn := SecondsToSMPTE(scene.StartTC, fps)
		srcOut := SecondsToSMPTE(scene.EndTC, fps)
		recIn := SecondsToSMPTE(recordCursor, fps)
		recordCursor += scene.EndTC - scene.StartTC
		recOut := SecondsToSMPTE(recordCursor, fps)

		// Reel names cap at 8 characters in CMX 3600; the clip name
		// comment carries the real filename.
		fmt.Fprintf(&b, "%03d  AX       V     C        %s %s %s %s\n", i+1, srcIn, srcOut, recIn, recOut)
		fmt.Fprintf(&b, "* FROM CLIP NAME: %s\n", file.Filename)
		fmt.Fprintf(&b, "* SOURCE FILE: %s\n\n", file.Path)
	}
	return b.String(), nil
}
