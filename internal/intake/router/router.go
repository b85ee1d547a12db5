package router

import (
	"net/http"

	"github.com/gigline/voice-intake/internal/intake/handler"
	"github.com/gigline/voice-intake/shared/middleware"
	"github.com/gin-gonic/gin"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(deps.Logger))
	r.Use(middleware.CORSMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		if deps.HealthFunc != nil {
			if err := deps.HealthFunc(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status":  "unhealthy",
					"service": "voice-intake-service",
				})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "voice-intake-service",
		})
	})

	recordingHandler := handler.NewRecordingHandler(deps)
	otpHandler := handler.NewOTPHandler(deps)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// POST /api/v1/recordings/callback - telephony call-completion webhook
		v1.POST("/recordings/callback", recordingHandler.RecordingCallback)

		otp := v1.Group("/otp")
		{
			// POST /api/v1/otp/send - send a one-time code
			otp.POST("/send", otpHandler.SendCode)

			// POST /api/v1/otp/verify - check a one-time code
			otp.POST("/verify", otpHandler.VerifyCode)
		}
	}

	return r
}
