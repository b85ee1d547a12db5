package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Enqueuer puts completion messages on the queue for the worker pool.
type Enqueuer interface {
	PublishCompletion(ctx context.Context, eventID, transcript string) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger     *slog.Logger
	Enqueuer   Enqueuer
	HealthFunc func(ctx context.Context) error
}

// CompletionHandler accepts completion signals and hands them to the queue.
// Processing itself happens in the worker pool; both endpoints only enqueue.
type CompletionHandler struct {
	logger   *slog.Logger
	enqueuer Enqueuer
}

// NewCompletionHandler creates a new CompletionHandler instance
func NewCompletionHandler(deps *Dependencies) *CompletionHandler {
	return &CompletionHandler{
		logger:   deps.Logger,
		enqueuer: deps.Enqueuer,
	}
}

type nudgeRequest struct {
	EventID string `json:"event_id" binding:"required"`
}

type transcriptCallbackRequest struct {
	EventID    string `json:"event_id" binding:"required"`
	Transcript string `json:"transcript"`
}

// Nudge handles POST /internal/v1/completions
//
// The intake service fires this after submitting a transcription job. The
// transcript is usually not ready yet; the worker polls the gateway for it.
func (h *CompletionHandler) Nudge(c *gin.Context) {
	var req nudgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "event_id is required",
		})
		return
	}

	if err := h.enqueuer.PublishCompletion(c.Request.Context(), req.EventID, ""); err != nil {
		h.logger.Error("Failed to enqueue completion nudge",
			slog.String("event_id", req.EventID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to enqueue completion",
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"status":   "queued",
		"event_id": req.EventID,
	})
}

// TranscriptCallback handles POST /api/v1/transcripts/callback
//
// Gateways that push finished transcripts land here; the transcript rides
// along on the queue message so the worker skips the poll.
func (h *CompletionHandler) TranscriptCallback(c *gin.Context) {
	var req transcriptCallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "event_id is required",
		})
		return
	}

	if err := h.enqueuer.PublishCompletion(c.Request.Context(), req.EventID, req.Transcript); err != nil {
		h.logger.Error("Failed to enqueue transcript callback",
			slog.String("event_id", req.EventID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to enqueue completion",
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"status":   "queued",
		"event_id": req.EventID,
	})
}
