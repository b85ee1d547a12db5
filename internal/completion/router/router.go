package router

import (
	"net/http"

	"github.com/gigline/voice-intake/internal/completion/handler"
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
					"service": "voice-completion-service",
				})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "voice-completion-service",
		})
	})

	completionHandler := handler.NewCompletionHandler(deps)

	// POST /internal/v1/completions - nudge from the intake service
	internal := r.Group("/internal/v1")
	{
		internal.POST("/completions", completionHandler.Nudge)
	}

	// POST /api/v1/transcripts/callback - push callback from the gateway
	v1 := r.Group("/api/v1")
	{
		v1.POST("/transcripts/callback", completionHandler.TranscriptCallback)
	}

	return r
}
