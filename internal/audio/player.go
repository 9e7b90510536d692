package audio

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrUnsupportedSource - источник нельзя воспроизвести.
var ErrUnsupportedSource = errors.New("unsupported audio source")

// Имена событий совпадают с events.Type*.
const (
	eventAudioPlay    = "audio.play"
	eventAudioStop    = "audio.stop"
	eventSpeechSpeak  = "speech.speak"
	eventSpeechCancel = "speech.cancel"
)

// Player управляет реальным устройством вывода.
type Player interface {
	Start(ctx context.Context, playbackID string, kind Kind, source string) error
	// Stop останавливает воспроизведение и сбрасывает позицию в начало.
	Stop(playbackID string)
	CancelSpeech()
}

// Publisher доставляет события клиентам сессии.
type Publisher interface {
	Publish(sessionID, eventType string, payload interface{})
}

// PlayPayload - данные события audio.play.
type PlayPayload struct {
	PlaybackID string `json:"playback_id"`
	URL        string `json:"url"`
}

// StopPayload - данные события audio.stop.
type StopPayload struct {
	PlaybackID    string `json:"playback_id"`
	ResetPosition bool   `json:"reset_position"`
}

// SpeakPayload - данные события speech.speak.
type SpeakPayload struct {
	PlaybackID string `json:"playback_id"`
	Text       string `json:"text"`
	Lang       string `json:"lang"`
}

// EventPlayer отдает воспроизведение клиентам сессии через события:
// звук играет браузер, сервер только командует.
type EventPlayer struct {
	sessionID string
	publisher Publisher
	lang      string
}

// NewEventPlayer создает EventPlayer для сессии.
func NewEventPlayer(sessionID string, publisher Publisher) *EventPlayer {
	return &EventPlayer{sessionID: sessionID, publisher: publisher, lang: "en-US"}
}

var _ Player = (*EventPlayer)(nil)

func (p *EventPlayer) Start(ctx context.Context, playbackID string, kind Kind, source string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	switch kind {
	case KindURL:
		if err := validateLocator(source); err != nil {
			return err
		}
		p.publisher.Publish(p.sessionID, eventAudioPlay, PlayPayload{PlaybackID: playbackID, URL: source})
	case KindSpeech:
		if strings.TrimSpace(source) == "" {
			return fmt.Errorf("%w: empty speech text", ErrUnsupportedSource)
		}
		p.publisher.Publish(p.sessionID, eventSpeechSpeak, SpeakPayload{PlaybackID: playbackID, Text: source, Lang: p.lang})
	default:
		return fmt.Errorf("%w: kind %q", ErrUnsupportedSource, kind)
	}
	return nil
}

func (p *EventPlayer) Stop(playbackID string) {
	p.publisher.Publish(p.sessionID, eventAudioStop, StopPayload{PlaybackID: playbackID, ResetPosition: true})
}

func (p *EventPlayer) CancelSpeech() {
	p.publisher.Publish(p.sessionID, eventSpeechCancel, nil)
}

// validateLocator принимает http(s) адреса и пути этого сервиса.
func validateLocator(locator string) error {
	if locator == "" {
		return fmt.Errorf("%w: empty locator", ErrUnsupportedSource)
	}
	if strings.HasPrefix(locator, "/") && !strings.HasPrefix(locator, "//") {
		return nil
	}
	u, err := url.Parse(locator)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w: %q", ErrUnsupportedSource, locator)
	}
	return nil
}
