package handler

import (
	"context"
	"errors"
	"net/http"

	"story-canvas/internal/ai"
	"story-canvas/internal/models"
	"story-canvas/internal/orchestrator"
	"story-canvas/internal/tencent"
	"story-canvas/internal/video"
	"story-canvas/pkg/taskmanager"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var errMessageNotFound = errors.New("message not found")

func handleServiceError(c *gin.Context, err error) {
	var statusCode int
	var errResp models.ErrorResponse
	var providerErr *video.ProviderError

	switch {
	case errors.Is(err, models.ErrVideoPrerequisites):
		statusCode = http.StatusBadRequest
		errResp = models.ErrorResponse{Code: models.ErrCodeVideoNotPossible, Message: models.ErrVideoPrerequisites.Error()}
	case errors.Is(err, models.ErrInvalidInput):
		statusCode = http.StatusBadRequest
		errResp = models.ErrorResponse{Code: models.ErrCodeBadRequest, Message: err.Error()}
	case errors.Is(err, models.ErrNotNarratable):
		statusCode = http.StatusBadRequest
		errResp = models.ErrorResponse{Code: models.ErrCodeValidation, Message: err.Error()}
	case errors.Is(err, models.ErrSessionNotFound):
		statusCode = http.StatusNotFound
		errResp = models.ErrorResponse{Code: models.ErrCodeNotFound, Message: "Session not found"}
	case errors.Is(err, models.ErrStoryNotFound):
		statusCode = http.StatusNotFound
		errResp = models.ErrorResponse{Code: models.ErrCodeNotFound, Message: "No story has been generated yet"}
	case errors.Is(err, models.ErrClipNotFound):
		statusCode = http.StatusNotFound
		errResp = models.ErrorResponse{Code: models.ErrCodeNotFound, Message: "Audio clip not found"}
	case errors.Is(err, errMessageNotFound):
		statusCode = http.StatusNotFound
		errResp = models.ErrorResponse{Code: models.ErrCodeNotFound, Message: "Message not found"}
	case errors.Is(err, taskmanager.ErrTooManyTasks):
		statusCode = http.StatusTooManyRequests
		errResp = models.ErrorResponse{Code: models.ErrCodeTooManyRequests, Message: "Too many background tasks for this session"}
	case errors.Is(err, models.ErrNotConfigured):
		statusCode = http.StatusServiceUnavailable
		errResp = models.ErrorResponse{Code: models.ErrCodeNotConfigured, Message: err.Error()}
	case errors.Is(err, models.ErrTokenInvalid), errors.Is(err, models.ErrTokenMalformed):
		statusCode = http.StatusUnauthorized
		errResp = models.ErrorResponse{Code: models.ErrCodeTokenInvalid, Message: "Token is invalid or malformed"}
	case errors.Is(err, models.ErrTokenExpired):
		statusCode = http.StatusUnauthorized
		errResp = models.ErrorResponse{Code: models.ErrCodeTokenExpired, Message: "Token has expired"}
	case errors.Is(err, ai.ErrAIGenerationFailed),
		errors.Is(err, orchestrator.ErrEmptyReply),
		errors.Is(err, tencent.ErrTTSFailed),
		errors.Is(err, tencent.ErrASRFailed),
		errors.As(err, &providerErr):
		statusCode = http.StatusBadGateway
		errResp = models.ErrorResponse{Code: models.ErrCodeUpstream, Message: err.Error()}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		statusCode = http.StatusGatewayTimeout
		errResp = models.ErrorResponse{Code: models.ErrCodeUpstream, Message: "Request was cancelled or timed out"}
	default:
		zap.L().Error("Unhandled internal error in handleServiceError", zap.Error(err))
		statusCode = http.StatusInternalServerError
		errResp = models.ErrorResponse{Code: models.ErrCodeInternal, Message: "An unexpected internal error occurred"}
	}

	if statusCode >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(statusCode, errResp)
}

// handleWorkflowError отвечает на ошибку сценария истории или чата.
// Неклассифицированные ошибки провайдера отдаются как 502, состояние сессии при этом не меняется.
func handleWorkflowError(c *gin.Context, err error) {
	if isUnclassified(err) {
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusBadGateway, models.ErrorResponse{Code: models.ErrCodeUpstream, Message: err.Error()})
		return
	}
	handleServiceError(c, err)
}

func isUnclassified(err error) bool {
	for _, known := range []error{
		models.ErrInvalidInput,
		models.ErrStoryNotFound,
		models.ErrSessionNotFound,
		models.ErrNotConfigured,
		models.ErrVideoPrerequisites,
		taskmanager.ErrTooManyTasks,
	} {
		if errors.Is(err, known) {
			return false
		}
	}
	return true
}

func bindError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, models.ErrorResponse{
		Code:    models.ErrCodeBadRequest,
		Message: "Invalid request data: " + err.Error(),
	})
}
