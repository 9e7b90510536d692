package handler

import (
	"net/http"
	"time"

	"story-canvas/internal/middleware"
	"story-canvas/internal/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func (h *Handler) createSession(c *gin.Context) {
	s, token, err := h.sessions.Create()
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, createSessionResponse{SessionID: s.ID, Token: token})
}

func (h *Handler) endSession(c *gin.Context) {
	if err := h.sessions.End(middleware.SessionID(c)); err != nil {
		handleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) getState(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.Orchestrator.State())
}

func (h *Handler) bindSnapshot(c *gin.Context) (models.DrawingSnapshot, bool) {
	var req drawingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return models.DrawingSnapshot{}, false
	}
	if req.CapturedAt.IsZero() {
		req.CapturedAt = time.Now()
	}
	return models.DrawingSnapshot{Image: req.Image, CapturedAt: req.CapturedAt}, true
}

func (h *Handler) drawingFinished(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	snapshot, ok := h.bindSnapshot(c)
	if !ok {
		return
	}
	if err := s.Orchestrator.OnDrawingFinished(c.Request.Context(), snapshot); err != nil {
		handleWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.Orchestrator.State())
}

func (h *Handler) drawingUpdated(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	snapshot, ok := h.bindSnapshot(c)
	if !ok {
		return
	}
	if err := s.Orchestrator.OnDrawingUpdated(c.Request.Context(), snapshot); err != nil {
		handleWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.Orchestrator.State())
}

func (h *Handler) chat(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	if err := req.validate(); err != nil {
		handleServiceError(c, invalid(err))
		return
	}
	if err := s.Orchestrator.OnChatMessageSent(c.Request.Context(), req.Text); err != nil {
		handleWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.Orchestrator.State())
}

func (h *Handler) editStory(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req storyEditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	if err := req.validate(); err != nil {
		handleServiceError(c, invalid(err))
		return
	}
	if err := s.Orchestrator.OnStoryEdited(req.Content); err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.Orchestrator.State())
}

func (h *Handler) syncStory(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	if err := s.Orchestrator.OnStorySyncFromChat(c.Request.Context()); err != nil {
		handleWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.Orchestrator.State())
}

// requestVideo только ставит задачу: итог приходит событиями video.status, video.ready и alert.
func (h *Handler) requestVideo(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	if _, err := s.Orchestrator.OnVideoRequested(c.Request.Context()); err != nil {
		handleServiceError(c, err)
		return
	}
	h.logger.Info("Video generation accepted", zap.String("session_id", s.ID))
	c.JSON(http.StatusAccepted, s.Orchestrator.State())
}
