package middleware

import (
	"errors"
	"net/http"
	"strings"

	"story-canvas/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

const (
	tokenQueryParam = "token"
	sessionIDKey    = models.SessionIDKey
)

var tokenVerificationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "story_canvas_token_verifications_total",
		Help: "Session token verifications by result.",
	},
	[]string{"result"},
)

// TokenVerifier проверяет токен сессии и возвращает его claims.
type TokenVerifier interface {
	Verify(tokenString string) (*models.SessionClaims, error)
}

// SessionAuth проверяет токен сессии из заголовка Authorization (или параметра ?token=
// для WebSocket) и сверяет его sid с параметром пути :id.
func SessionAuth(verifier TokenVerifier, logger *zap.Logger) gin.HandlerFunc {
	log := logger.Named("SessionAuth")
	return func(c *gin.Context) {
		tokenString, err := extractToken(c)
		if err != nil {
			log.Warn("Session token missing", zap.String("path", c.Request.URL.Path), zap.Error(err))
			tokenVerificationsTotal.WithLabelValues("failure").Inc()
			abortWithTokenError(c, err)
			return
		}

		claims, err := verifier.Verify(tokenString)
		if err != nil {
			tokenVerificationsTotal.WithLabelValues("failure").Inc()
			abortWithTokenError(c, err)
			return
		}

		if pathID := c.Param("id"); pathID != "" && pathID != claims.SessionID {
			log.Warn("Session token does not match path",
				zap.String("tokenSessionID", claims.SessionID),
				zap.String("pathSessionID", pathID),
			)
			tokenVerificationsTotal.WithLabelValues("forbidden").Inc()
			c.AbortWithStatusJSON(http.StatusForbidden, models.ErrorResponse{
				Code:    models.ErrCodeForbidden,
				Message: "Token does not grant access to this session",
			})
			return
		}

		tokenVerificationsTotal.WithLabelValues("success").Inc()
		c.Set(string(sessionIDKey), claims.SessionID)
		c.Next()
	}
}

// SessionID возвращает ID сессии, проверенный SessionAuth.
func SessionID(c *gin.Context) string {
	return c.GetString(string(sessionIDKey))
}

func extractToken(c *gin.Context) (string, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		if token := c.Query(tokenQueryParam); token != "" {
			return token, nil
		}
		return "", models.ErrUnauthorized
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || parts[1] == "" {
		return "", models.ErrTokenMalformed
	}
	return parts[1], nil
}

func abortWithTokenError(c *gin.Context, err error) {
	resp := models.ErrorResponse{Code: models.ErrCodeTokenInvalid, Message: "Token is invalid or malformed"}
	switch {
	case errors.Is(err, models.ErrUnauthorized):
		resp.Message = "Authorization token missing"
	case errors.Is(err, models.ErrTokenExpired):
		resp = models.ErrorResponse{Code: models.ErrCodeTokenExpired, Message: "Token has expired"}
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, resp)
}
