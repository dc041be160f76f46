package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fennecvideo/fennec/internal/logger"
	"github.com/fennecvideo/fennec/internal/services"
	"github.com/fennecvideo/fennec/internal/types"
)

type SearchHandler struct {
	log    *logger.Logger
	search services.SearchService
}

func NewSearchHandler(log *logger.Logger, search services.SearchService) *SearchHandler {
	return &SearchHandler{
		log:    log.With("handler", "SearchHandler"),
		search: search,
	}
}

// searchBody is the wire shape of a combined search. Every clause is
// optional; thresholds default from config when omitted.
type searchBody struct {
	Query           *string  `json:"query"`
	VisualThreshold *float64 `json:"visual_threshold"`

	MatchSceneID   *int64   `json:"match_scene_id"`
	MatchThreshold *float64 `json:"match_threshold"`

	FaceID        *int64   `json:"face_id"`
	FaceSceneID   *int64   `json:"face_scene_id"`
	FaceIndex     *int     `json:"face_index"`
	FaceThreshold *float64 `json:"face_threshold"`

	DialogKeyword   *string  `json:"dialog_keyword"`
	DialogQuery     *string  `json:"dialog_query"`
	DialogThreshold *float64 `json:"dialog_threshold"`

	Path        *string  `json:"path"`
	Codec       *string  `json:"codec"`
	FPSMin      *float64 `json:"fps_min"`
	FPSMax      *float64 `json:"fps_max"`
	DurationMin *float64 `json:"duration_min"`
	DurationMax *float64 `json:"duration_max"`
	WidthMin    *int     `json:"width_min"`
	HeightMin   *int     `json:"height_min"`
	TCMin       *float64 `json:"tc_min"`
	TCMax       *float64 `json:"tc_max"`

	Limit int `json:"limit"`
}

func (b *searchBody) toRequest() types.SearchRequest {
	req := types.SearchRequest{
		DialogKeyword: b.DialogKeyword,
		Path:          b.Path,
		Codec:         b.Codec,
		FPSMin:        b.FPSMin,
		FPSMax:        b.FPSMax,
		DurationMin:   b.DurationMin,
		DurationMax:   b.DurationMax,
		WidthMin:      b.WidthMin,
		HeightMin:     b.HeightMin,
		TCMin:         b.TCMin,
		TCMax:         b.TCMax,
		Limit:         b.Limit,
	}
	if b.Query != nil && *b.Query != "" {
		req.VisualText = &types.VisualTextClause{Query: *b.Query, Threshold: b.VisualThreshold}
	}
	if b.MatchSceneID != nil {
		req.VisualMatch = &types.VisualMatchClause{SceneID: *b.MatchSceneID, Threshold: b.MatchThreshold}
	}
	if b.FaceID != nil || b.FaceSceneID != nil {
		clause := &types.FaceClause{Threshold: b.FaceThreshold}
		if b.FaceID != nil {
			clause.FaceID = *b.FaceID
		}
		if b.FaceSceneID != nil {
			clause.SceneID = *b.FaceSceneID
		}
		if b.FaceIndex != nil {
			clause.FaceIndex = *b.FaceIndex
		}
		req.Face = clause
	}
	if b.DialogQuery != nil && *b.DialogQuery != "" {
		req.DialogSemantic = &types.DialogSemanticClause{Query: *b.DialogQuery, Threshold: b.DialogThreshold}
	}
	return req
}

// POST /api/search
func (h *SearchHandler) Search(c *gin.Context) {
	var body searchBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid search body: " + err.Error()})
		return
	}
	results, err := h.search.Search(c.Request.Context(), body.toRequest())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"scenes": results, "count": len(results)})
}
