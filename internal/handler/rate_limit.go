package handler

import (
	"net/http"
	"time"

	"story-canvas/internal/models"

	rateli "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NewRateLimiter ограничивает частоту запросов с одного IP (хранилище в памяти процесса).
func NewRateLimiter(rate time.Duration, limit uint, logger *zap.Logger) gin.HandlerFunc {
	store := rateli.InMemoryStore(&rateli.InMemoryOptions{
		Rate:  rate,
		Limit: limit,
	})
	return rateli.RateLimiter(store, &rateli.Options{
		ErrorHandler: func(c *gin.Context, info rateli.Info) {
			logger.Warn("Rate limit exceeded",
				zap.String("clientIP", c.ClientIP()),
				zap.Time("resetTime", info.ResetTime),
				zap.String("path", c.Request.URL.Path),
			)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, models.ErrorResponse{
				Code:    models.ErrCodeTooManyRequests,
				Message: "Too many requests. Try again in " + time.Until(info.ResetTime).Round(time.Second).String(),
			})
		},
		KeyFunc: func(c *gin.Context) string {
			return c.ClientIP()
		},
	})
}
