package ai

import (
	"sync"
	"unicode/utf8"

	"story-canvas/internal/models"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter считает токены в тексте.
type TokenCounter func(text string) int

// perMessageOverhead - служебные токены, которые модель тратит на роль и разделители реплики.
const perMessageOverhead = 4

var (
	defaultEncodingOnce sync.Once
	defaultEncoding     *tiktoken.Tiktoken
)

// TiktokenCounter возвращает счетчик на кодировке модели, а для неизвестных моделей (Ark endpoint id)
// на cl100k_base. Если кодировку загрузить не удалось, токены оцениваются как руны/4.
func TiktokenCounter(model string) TokenCounter {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		defaultEncodingOnce.Do(func() {
			defaultEncoding, _ = tiktoken.GetEncoding("cl100k_base")
		})
		enc = defaultEncoding
	}
	if enc == nil {
		return EstimateTokens
	}
	return func(text string) int {
		return len(enc.Encode(text, nil, nil))
	}
}

// EstimateTokens грубо оценивает число токенов без словаря.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}

// TrimHistory оставляет самые свежие сообщения, суммарно укладывающиеся в budget токенов.
// Порядок сообщений сохраняется. budget <= 0 отключает обрезку.
func TrimHistory(history []models.Message, budget int, count TokenCounter) []models.Message {
	if budget <= 0 || len(history) == 0 {
		return history
	}
	if count == nil {
		count = EstimateTokens
	}

	used := 0
	start := len(history)
	for i := len(history) - 1; i >= 0; i-- {
		cost := count(history[i].Content) + perMessageOverhead
		if used+cost > budget {
			break
		}
		used += cost
		start = i
	}
	if start > 0 {
		aiHistoryTrimmed.Add(float64(start))
	}
	return history[start:]
}
