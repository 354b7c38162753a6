package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/valuematch/valuematch-backend/internal/logger"
	"github.com/valuematch/valuematch-backend/internal/repos"
	"github.com/valuematch/valuematch-backend/internal/services"
	"github.com/valuematch/valuematch-backend/internal/types"
)

type RecommendationHandler struct {
	log    *logger.Logger
	recSvc services.RecommendationService
}

func NewRecommendationHandler(log *logger.Logger, recSvc services.RecommendationService) *RecommendationHandler {
	return &RecommendationHandler{
		log:    log.With("handler", "RecommendationHandler"),
		recSvc: recSvc,
	}
}

// streamItem is one NDJSON line on the wire.
type streamItem struct {
	Recommendation *types.Recommendation `json:"recommendation"`
}

// GET /api/recommendations/stream?user_id=<uuid>&locale=<bcp47>&refresh=<bool>
// Emits one JSON line per finished recommendation. Validation errors are
// plain JSON responses; once streaming starts the connection just ends on
// failure.
func (h *RecommendationHandler) StreamRecommendations(c *gin.Context) {
	rawID := c.Query("user_id")
	if rawID == "" {
		RespondError(c, http.StatusBadRequest, "missing_user_id", errors.New("user_id query parameter is required"))
		return
	}
	profileID, err := uuid.Parse(rawID)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_user_id", errors.New("user_id must be a UUID"))
		return
	}

	profile, err := h.recSvc.GetProfile(c.Request.Context(), profileID)
	if err != nil {
		if errors.Is(err, services.ErrProfileNotFound) {
			RespondError(c, http.StatusNotFound, "profile_not_found", err)
			return
		}
		RespondError(c, http.StatusInternalServerError, "profile_lookup_failed", err)
		return
	}

	locale := c.Query("locale")
	refresh := c.Query("refresh") == "true"

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	flusher, _ := c.Writer.(http.Flusher)
	wrote := false
	emit := func(rec *types.Recommendation) error {
		line, err := json.Marshal(streamItem{Recommendation: rec})
		if err != nil {
			// One bad record must not kill the stream.
			h.log.Warn("Could not marshal recommendation line", "recommendation_id", rec.ID, "error", err)
			return nil
		}
		line = append(line, '\n')
		if _, err := c.Writer.Write(line); err != nil {
			return err
		}
		wrote = true
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	}

	if err := h.recSvc.Stream(c.Request.Context(), profile, locale, refresh, emit); err != nil {
		if wrote {
			// Status and items are already on the wire; nothing to send back.
			h.log.Warn("Recommendation stream ended with error after output", "profile_id", profileID, "error", err)
			return
		}
		switch {
		case errors.Is(err, services.ErrTooManyGenerations):
			RespondError(c, http.StatusServiceUnavailable, "too_many_generations", err)
		case errors.Is(err, services.ErrStreamOpen):
			RespondError(c, http.StatusBadGateway, "stream_open_failed", err)
		default:
			RespondError(c, http.StatusInternalServerError, "stream_failed", err)
		}
		return
	}

	c.Status(http.StatusOK)
}

type feedbackRequest struct {
	Feedback string `json:"feedback" binding:"required"`
}

// POST /api/recommendations/:id/feedback
func (h *RecommendationHandler) SetFeedback(c *gin.Context) {
	recID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_recommendation_id", errors.New("id must be a UUID"))
		return
	}

	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}

	if err := h.recSvc.SetFeedback(c.Request.Context(), recID, req.Feedback); err != nil {
		if errors.Is(err, repos.ErrNotFound) {
			RespondError(c, http.StatusNotFound, "recommendation_not_found", err)
			return
		}
		RespondError(c, http.StatusBadRequest, "invalid_feedback", err)
		return
	}
	RespondOK(c, gin.H{"id": recID, "feedback": req.Feedback})
}
