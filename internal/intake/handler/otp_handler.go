package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gigline/voice-intake/internal/intake/dto"
	"github.com/gigline/voice-intake/internal/verification"
	"github.com/gin-gonic/gin"
)

// SendCode handles POST /api/v1/otp/send
func (h *OTPHandler) SendCode(c *gin.Context) {
	var req dto.SendCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "phone_number is required",
		})
		return
	}

	status, err := h.verifier.Send(c.Request.Context(), req.PhoneNumber)
	if err != nil {
		h.logger.Error("Failed to send verification code", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to send verification code",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": status,
	})
}

// VerifyCode handles POST /api/v1/otp/verify
func (h *OTPHandler) VerifyCode(c *gin.Context) {
	var req dto.VerifyCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "phone_number and code are required",
		})
		return
	}

	approved, err := h.verifier.Verify(c.Request.Context(), req.PhoneNumber, req.Code)
	if err != nil {
		if errors.Is(err, verification.ErrCodeExpired) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "verification code expired or not found",
			})
			return
		}

		h.logger.Error("Verification check failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "verification check failed",
		})
		return
	}

	if !approved {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid verification code",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": verification.StatusApproved,
	})
}
