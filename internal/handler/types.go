package handler

import "time"

type createSessionResponse struct {
	SessionID string `json:"session_id"`
	Token     string `json:"token"`
}

type drawingRequest struct {
	Image      string    `json:"image" binding:"required"`
	CapturedAt time.Time `json:"captured_at"`
}

type chatRequest struct {
	Text string `json:"text" binding:"required"`
}

type storyEditRequest struct {
	Content string `json:"content" binding:"required"`
}

// narrationRequest - что озвучить: произвольный текст, сообщение чата или (если пусто) текущую историю.
type narrationRequest struct {
	Text      string `json:"text"`
	MessageID string `json:"message_id"`
}

type playbackResponse struct {
	PlaybackID string    `json:"playback_id"`
	Kind       string    `json:"kind"`
	Source     string    `json:"source"`
	StartedAt  time.Time `json:"started_at"`
}

type audioEndedRequest struct {
	PlaybackID string `json:"playback_id" binding:"required"`
}

type speechRequest struct {
	// Audio - base64 содержимое записи
	Audio  string `json:"audio" binding:"required"`
	Format string `json:"format"`
}

type speechResponse struct {
	Text string `json:"text"`
}
