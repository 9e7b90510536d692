package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// serveWS переводит соединение в WebSocket и подписывает его на события сессии.
func (h *Handler) serveWS(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade уже ответил клиенту
		h.logger.Warn("Failed to upgrade connection", zap.String("session_id", s.ID), zap.Error(err))
		return
	}
	h.hub.Serve(conn, s.ID)
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.cfg.GetAllowedOrigins() {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	h.logger.Warn("WebSocket origin rejected", zap.String("origin", origin))
	return false
}
