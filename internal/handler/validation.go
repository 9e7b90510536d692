package handler

import (
	"fmt"

	"story-canvas/internal/models"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

const (
	maxChatRunes      = 2000
	maxStoryRunes     = 20000
	maxNarrationRunes = 20000
	maxIDLength       = 64
)

// Форматы, которые принимает SentenceRecognition.
var voiceFormats = []interface{}{"wav", "pcm", "ogg-opus", "speex", "silk", "mp3", "m4a", "aac", "amr"}

func (r *chatRequest) validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Text, validation.Required, validation.RuneLength(1, maxChatRunes)),
	)
}

func (r *storyEditRequest) validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Content, validation.Required, validation.RuneLength(1, maxStoryRunes)),
	)
}

func (r *narrationRequest) validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Text, validation.RuneLength(0, maxNarrationRunes)),
		validation.Field(&r.MessageID, validation.Length(0, maxIDLength)),
	)
}

func (r *audioEndedRequest) validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.PlaybackID, validation.Required, validation.Length(1, maxIDLength)),
	)
}

func (r *speechRequest) validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Audio, validation.Required),
		validation.Field(&r.Format, validation.In(voiceFormats...)),
	)
}

// invalid оборачивает ошибку валидации в models.ErrInvalidInput.
func invalid(err error) error {
	return fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
}
