package models

import (
	"strings"
	"time"
)

// Role - роль автора сообщения в ленте разговора.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message - неизменяемая запись ленты разговора.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Story - текущая версия истории. Заменяется целиком при каждом обновлении.
type Story struct {
	Content      string    `json:"content"`
	LastModified time.Time `json:"last_modified"`
}

const pngDataURLPrefix = "data:image/png;base64,"

// DrawingSnapshot - растровый снимок холста в момент времени.
// Image хранит base64 PNG, либо уже готовый data URL.
type DrawingSnapshot struct {
	Image      string    `json:"image"`
	CapturedAt time.Time `json:"captured_at"`
}

// DataURL возвращает снимок в виде data URL, пригодного для image_url частей запроса.
func (s DrawingSnapshot) DataURL() string {
	if strings.HasPrefix(s.Image, "data:") {
		return s.Image
	}
	return pngDataURLPrefix + s.Image
}

// RawBase64 возвращает только base64 содержимое без префикса data URL.
func (s DrawingSnapshot) RawBase64() string {
	if i := strings.Index(s.Image, ";base64,"); i >= 0 && strings.HasPrefix(s.Image, "data:") {
		return s.Image[i+len(";base64,"):]
	}
	return s.Image
}

// IsEmpty сообщает, что снимок не содержит изображения.
func (s DrawingSnapshot) IsEmpty() bool {
	return strings.TrimSpace(s.Image) == ""
}

// VideoStatus - статус задачи генерации видео на стороне провайдера.
type VideoStatus string

const (
	VideoStatusPending   VideoStatus = "pending"
	VideoStatusSucceeded VideoStatus = "succeeded"
	VideoStatusFailed    VideoStatus = "failed"
)

// IsTerminal сообщает, что из статуса больше нет переходов.
func (s VideoStatus) IsTerminal() bool {
	return s == VideoStatusSucceeded || s == VideoStatusFailed
}

// VideoTask - отслеживаемая задача генерации видео. Живет только пока задача не завершена.
type VideoTask struct {
	ID     string      `json:"id"`
	Status VideoStatus `json:"status"`
}
