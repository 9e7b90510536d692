package narration

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"story-canvas/internal/audio"
	"story-canvas/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// FallbackLocator - признак того, что текст нужно озвучить синтезом речи на устройстве.
const FallbackLocator = "browser-tts"

// PlaybackFailedAlert - текст, который видит пользователь при сбое озвучки.
const PlaybackFailedAlert = "Audio playback failed. Please check TTS API configuration."

const clipContentType = "audio/mpeg"

var narrationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "story_canvas_narrations_total",
		Help: "Narration requests by outcome (remote, fallback, error).",
	},
	[]string{"outcome"},
)

// Synthesizer превращает текст в mp3.
type Synthesizer interface {
	TextToVoice(ctx context.Context, text string) ([]byte, error)
}

// ClipURLFunc строит адрес, по которому клиент заберет фрагмент.
type ClipURLFunc func(clipID string) string

// Narrator озвучивает текст через Arbiter.
type Narrator struct {
	tts      Synthesizer
	clips    *audio.ClipStore
	arbiter  audio.Arbiter
	clipURL  ClipURLFunc
	fallback bool
	logger   *zap.Logger
}

// NewNarrator создает Narrator. fallback включает озвучку на устройстве при сбое TTS.
func NewNarrator(tts Synthesizer, clips *audio.ClipStore, arbiter audio.Arbiter, clipURL ClipURLFunc, fallback bool, logger *zap.Logger) *Narrator {
	return &Narrator{
		tts:      tts,
		clips:    clips,
		arbiter:  arbiter,
		clipURL:  clipURL,
		fallback: fallback,
		logger:   logger.Named("Narrator"),
	}
}

// Synthesize возвращает адрес аудио для текста или FallbackLocator.
func (n *Narrator) Synthesize(ctx context.Context, text string) (string, error) {
	data, err := n.tts.TextToVoice(ctx, text)
	if err != nil {
		if n.fallback && ctx.Err() == nil {
			n.logger.Warn("TTS failed, falling back to on-device speech", zap.Error(err))
			narrationsTotal.WithLabelValues("fallback").Inc()
			return FallbackLocator, nil
		}
		narrationsTotal.WithLabelValues("error").Inc()
		return "", err
	}
	id := n.clips.Put(data, clipContentType)
	narrationsTotal.WithLabelValues("remote").Inc()
	return n.clipURL(id), nil
}

// Narrate синтезирует текст и запускает воспроизведение, останавливая предыдущее.
func (n *Narrator) Narrate(ctx context.Context, text string) (audio.Playback, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: nothing to narrate", models.ErrInvalidInput)
	}

	locator, err := n.Synthesize(ctx, text)
	if err != nil {
		return nil, err
	}
	if locator == FallbackLocator {
		return n.arbiter.Speak(ctx, text)
	}
	return n.arbiter.PlayFromURL(ctx, locator)
}

// NarrateMessage озвучивает сообщение чата. Озвучить можно только ответ ассистента.
func (n *Narrator) NarrateMessage(ctx context.Context, msg models.Message) (audio.Playback, error) {
	if msg.Role != models.RoleAssistant || msg.Content == "" {
		return nil, models.ErrNotNarratable
	}
	return n.Narrate(ctx, msg.Content)
}

// IsUserFacing сообщает, нужно ли показать пользователю PlaybackFailedAlert.
func IsUserFacing(err error) bool {
	return err != nil &&
		!errors.Is(err, models.ErrInvalidInput) &&
		!errors.Is(err, models.ErrNotNarratable) &&
		!errors.Is(err, context.Canceled)
}
