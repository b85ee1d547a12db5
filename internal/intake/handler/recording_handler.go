package handler

import (
	"log/slog"
	"net/http"

	"github.com/gigline/voice-intake/internal/intake/dto"
	"github.com/gigline/voice-intake/internal/intake/orchestrator"
	"github.com/gin-gonic/gin"
)

// RecordingCallback handles POST /api/v1/recordings/callback
//
// The telephony provider retries any non-2xx response, so only a malformed
// request earns a 400; every downstream failure is acknowledged with 200 and
// an error body while being reported to operators through the log.
func (h *RecordingHandler) RecordingCallback(c *gin.Context) {
	var req dto.RecordingCallbackRequest
	if err := c.ShouldBind(&req); err != nil {
		h.logger.Error("Invalid recording callback", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, dto.RecordingCallbackResponse{
			Error: "RecordingSid, CallSid and RecordingUrl are required",
		})
		return
	}

	h.logger.Info("Recording callback received",
		slog.String("recording_sid", req.RecordingSid),
		slog.String("call_sid", req.CallSid),
	)

	result, err := h.ingestor.Ingest(c.Request.Context(), orchestrator.Callback{
		RecordingID:  req.RecordingSid,
		CallID:       req.CallSid,
		RecordingURL: req.RecordingUrl,
	})
	if err != nil {
		h.logger.Error("Recording ingestion failed",
			slog.String("recording_sid", req.RecordingSid),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusOK, dto.RecordingCallbackResponse{
			Error: "failed to process recording",
		})
		return
	}

	c.JSON(http.StatusOK, dto.RecordingCallbackResponse{
		Success: true,
		EventID: result.EventID,
	})
}
