package tencent

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	asr "github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/asr/v20190614"
	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common"
	tts "github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/tts/v20190823"
	"go.uber.org/zap"
)

var (
	// ErrTTSFailed - синтез речи не удался
	ErrTTSFailed = errors.New("TTS failed")
	// ErrASRFailed - распознавание речи не удалось
	ErrASRFailed = errors.New("speech recognition failed")
)

const (
	ttsAction = "TextToVoice"
	asrAction = "SentenceRecognition"
)

// Speech - синтез и распознавание речи Tencent Cloud.
type Speech struct {
	client    *Client
	voiceType int
	maxRunes  int
	asrEngine string
	logger    *zap.Logger
}

// NewSpeech создает сервис речи. maxRunes ограничивает длину текста для синтеза.
func NewSpeech(client *Client, voiceType, maxRunes int, asrEngine string, logger *zap.Logger) *Speech {
	if voiceType == 0 {
		voiceType = 1001
	}
	return &Speech{
		client:    client,
		voiceType: voiceType,
		maxRunes:  maxRunes,
		asrEngine: asrEngine,
		logger:    logger.Named("Speech"),
	}
}

// Configured сообщает, заданы ли ключи доступа.
func (s *Speech) Configured() bool {
	return s.client.Configured()
}

// TextToVoice синтезирует mp3 по тексту. Текст длиннее лимита обрезается.
func (s *Speech) TextToVoice(ctx context.Context, text string) ([]byte, error) {
	if s.maxRunes > 0 && utf8.RuneCountInString(text) > s.maxRunes {
		text = string([]rune(text)[:s.maxRunes])
	}

	req := tts.NewTextToVoiceRequest()
	req.Text = common.StringPtr(text)
	req.Codec = common.StringPtr("mp3")
	req.ModelType = common.Int64Ptr(1)
	req.VoiceType = common.Int64Ptr(int64(s.voiceType))
	req.SessionId = common.StringPtr(fmt.Sprintf("s_%d", time.Now().UnixMilli()))

	resp, err := s.client.textToVoice(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTTSFailed, err)
	}
	if resp.Response == nil || resp.Response.Audio == nil || *resp.Response.Audio == "" {
		return nil, fmt.Errorf("%w: empty audio", ErrTTSFailed)
	}

	audio, err := base64.StdEncoding.DecodeString(*resp.Response.Audio)
	if err != nil {
		return nil, fmt.Errorf("%w: decode audio: %v", ErrTTSFailed, err)
	}
	s.logger.Debug("Speech synthesized", zap.Int("textRunes", utf8.RuneCountInString(text)), zap.Int("audioBytes", len(audio)))
	return audio, nil
}

// SentenceRecognition распознает короткую фразу (до минуты) в формате voiceFormat.
func (s *Speech) SentenceRecognition(ctx context.Context, audio []byte, voiceFormat string) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("%w: empty audio", ErrASRFailed)
	}
	if voiceFormat == "" {
		voiceFormat = "mp3"
	}

	req := asr.NewSentenceRecognitionRequest()
	req.EngSerViceType = common.StringPtr(s.asrEngine)
	req.SourceType = common.Uint64Ptr(1)
	req.VoiceFormat = common.StringPtr(voiceFormat)
	req.Data = common.StringPtr(base64.StdEncoding.EncodeToString(audio))
	req.DataLen = common.Int64Ptr(int64(len(audio)))

	resp, err := s.client.sentenceRecognition(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrASRFailed, err)
	}
	if resp.Response == nil || resp.Response.Result == nil {
		return "", nil
	}
	return *resp.Response.Result, nil
}
