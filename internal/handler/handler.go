package handler

import (
	"context"
	"net/http"

	"story-canvas/internal/config"
	"story-canvas/internal/events"
	"story-canvas/internal/middleware"
	"story-canvas/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Sessions - реестр сессий, с которым работают обработчики.
type Sessions interface {
	Create() (*session.Session, string, error)
	Get(id string) (*session.Session, error)
	End(id string) error
}

// EventStream рассылает события сессии и обслуживает WebSocket соединения.
type EventStream interface {
	Publish(sessionID, eventType string, payload interface{})
	Serve(conn *websocket.Conn, sessionID string) *events.Client
}

// SpeechRecognizer распознает короткую фразу.
type SpeechRecognizer interface {
	SentenceRecognition(ctx context.Context, audio []byte, voiceFormat string) (string, error)
}

// Handler обслуживает HTTP API сессий рисования.
type Handler struct {
	sessions Sessions
	hub      EventStream
	speech   SpeechRecognizer
	cfg      *config.Config
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewHandler создает Handler.
func NewHandler(sessions Sessions, hub EventStream, speech SpeechRecognizer, cfg *config.Config, logger *zap.Logger) *Handler {
	h := &Handler{
		sessions: sessions,
		hub:      hub,
		speech:   speech,
		cfg:      cfg,
		logger:   logger.Named("Handler"),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// RegisterRoutes регистрирует маршруты API.
// auth проверяет токен сессии, videoLimiter ограничивает частоту запросов видео.
func (h *Handler) RegisterRoutes(router *gin.Engine, auth gin.HandlerFunc, videoLimiter gin.HandlerFunc) {
	router.GET("/health", h.health)
	router.HEAD("/health", h.health)

	api := router.Group("/api/v1")
	api.Use(h.limitBody())
	{
		api.GET("/config/status", h.configStatus)
		api.POST("/sessions", h.createSession)
	}

	sessions := api.Group("/sessions/:id")
	sessions.Use(auth)
	{
		sessions.GET("", h.getState)
		sessions.DELETE("", h.endSession)

		sessions.POST("/drawing/finish", h.drawingFinished)
		sessions.POST("/drawing/update", h.drawingUpdated)
		sessions.POST("/chat", h.chat)
		sessions.PUT("/story", h.editStory)
		sessions.POST("/story/sync", h.syncStory)
		sessions.POST("/video", videoLimiter, h.requestVideo)

		sessions.POST("/narration", h.narrate)
		sessions.POST("/audio/stop", h.stopAudio)
		sessions.POST("/audio/ended", h.audioEnded)
		sessions.GET("/audio/:clip", h.serveClip)
		sessions.POST("/speech", h.recognizeSpeech)

		sessions.GET("/ws", h.serveWS)
	}
}

// session возвращает сессию, проверенную SessionAuth. При ошибке ответ уже записан.
func (h *Handler) session(c *gin.Context) (*session.Session, bool) {
	s, err := h.sessions.Get(middleware.SessionID(c))
	if err != nil {
		handleServiceError(c, err)
		return nil, false
	}
	return s, true
}

func (h *Handler) limitBody() gin.HandlerFunc {
	limit := h.cfg.Server.MaxBodyBytes
	return func(c *gin.Context) {
		if limit > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
