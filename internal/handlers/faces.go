package handlers

import (
	"image"
	"image/jpeg"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/image/webp"

	"github.com/fennecvideo/fennec/internal/logger"
	"github.com/fennecvideo/fennec/internal/services"
	"github.com/fennecvideo/fennec/internal/types"
)

type FaceHandler struct {
	log    *logger.Logger
	browse services.BrowseService
}

func NewFaceHandler(log *logger.Logger, browse services.BrowseService) *FaceHandler {
	return &FaceHandler{
		log:    log.With("handler", "FaceHandler"),
		browse: browse,
	}
}

// GET /api/faces?limit=
func (h *FaceHandler) ListFaces(c *gin.Context) {
	limit := queryInt(c, "limit", 500)
	faces, err := h.browse.Faces(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"faces": faces, "count": len(faces)})
}

// GET /api/faces/:id/thumb
// Crops the face bbox out of the scene's poster frame and returns JPEG.
func (h *FaceHandler) FaceThumb(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	face, posterPath, err := h.browse.FacePoster(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	f, err := os.Open(posterPath)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "poster frame missing on disk"})
		return
	}
	defer f.Close()

	var img image.Image
	if strings.EqualFold(filepath.Ext(posterPath), ".webp") {
		img, err = webp.Decode(f)
	} else {
		img, _, err = image.Decode(f)
	}
	if err != nil {
		h.log.Error("decode poster frame", "path", posterPath, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "poster frame unreadable"})
		return
	}

	crop := cropRect(face, img.Bounds())
	if crop.Empty() {
		c.JSON(http.StatusNotFound, gin.H{"error": "face bbox outside poster frame"})
		return
	}

	sub, ok2 := img.(interface {
		SubImage(image.Rectangle) image.Image
	})
	if !ok2 {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "poster frame not croppable"})
		return
	}

	c.Header("Content-Type", "image/jpeg")
	c.Status(http.StatusOK)
	if err := jpeg.Encode(c.Writer, sub.SubImage(crop), &jpeg.Options{Quality: 85}); err != nil {
		h.log.Error("encode face thumb", "face_id", id, "error", err)
	}
}

// cropRect clamps the stored bbox to the image bounds. Boxes are stored in
// poster-frame pixel coordinates.
func cropRect(face *types.Face, bounds image.Rectangle) image.Rectangle {
	r := image.Rect(
		int(face.BBoxX),
		int(face.BBoxY),
		int(face.BBoxX+face.BBoxW),
		int(face.BBoxY+face.BBoxH),
	)
	return r.Intersect(bounds)
}
