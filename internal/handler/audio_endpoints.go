package handler

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"story-canvas/internal/audio"
	"story-canvas/internal/events"
	"story-canvas/internal/models"
	"story-canvas/internal/narration"
	"story-canvas/internal/orchestrator"
	"story-canvas/internal/session"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultVoiceFormat = "mp3"

func (h *Handler) narrate(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req narrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	if err := req.validate(); err != nil {
		handleServiceError(c, invalid(err))
		return
	}

	playback, err := h.startNarration(c, s, req)
	if err != nil {
		if narration.IsUserFacing(err) && !isLookupError(err) {
			h.logger.Warn("Narration failed", zap.String("session_id", s.ID), zap.Error(err))
			h.hub.Publish(s.ID, events.TypeAlert, orchestrator.AlertPayload{Message: narration.PlaybackFailedAlert})
		}
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, playbackResponse{
		PlaybackID: playback.ID(),
		Kind:       string(playback.Kind()),
		Source:     playback.Source(),
		StartedAt:  playback.StartedAt(),
	})
}

func (h *Handler) startNarration(c *gin.Context, s *session.Session, req narrationRequest) (audio.Playback, error) {
	ctx := c.Request.Context()
	switch {
	case req.MessageID != "":
		msg, found := s.Orchestrator.Message(req.MessageID)
		if !found {
			return nil, fmt.Errorf("%w: %s", errMessageNotFound, req.MessageID)
		}
		return s.Narrator.NarrateMessage(ctx, msg)
	case strings.TrimSpace(req.Text) != "":
		return s.Narrator.Narrate(ctx, req.Text)
	default:
		story := s.Orchestrator.State().Story
		if story == nil {
			return nil, models.ErrStoryNotFound
		}
		return s.Narrator.Narrate(ctx, story.Content)
	}
}

// isLookupError - не нашлось, что озвучивать; до синтеза дело не дошло.
func isLookupError(err error) bool {
	return errors.Is(err, errMessageNotFound) || errors.Is(err, models.ErrStoryNotFound)
}

func (h *Handler) stopAudio(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	s.Audio.StopAll()
	c.Status(http.StatusNoContent)
}

func (h *Handler) audioEnded(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req audioEndedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	if err := req.validate(); err != nil {
		handleServiceError(c, invalid(err))
		return
	}
	s.Audio.Ended(req.PlaybackID)
	c.Status(http.StatusNoContent)
}

func (h *Handler) serveClip(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	clip, err := s.Clips.Get(c.Param("clip"))
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.Header("Cache-Control", "private, max-age=300")
	c.Data(http.StatusOK, clip.ContentType, clip.Data)
}

func (h *Handler) recognizeSpeech(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req speechRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	if err := req.validate(); err != nil {
		handleServiceError(c, invalid(err))
		return
	}
	data, err := base64.StdEncoding.DecodeString(req.Audio)
	if err != nil {
		handleServiceError(c, fmt.Errorf("%w: audio is not valid base64", models.ErrInvalidInput))
		return
	}
	format := req.Format
	if format == "" {
		format = defaultVoiceFormat
	}

	text, err := h.speech.SentenceRecognition(c.Request.Context(), data, format)
	if err != nil {
		h.logger.Warn("Speech recognition failed", zap.String("session_id", s.ID), zap.Error(err))
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, speechResponse{Text: text})
}
