package ai

import (
	"context"
	"encoding/json"
	"fmt"

	"story-canvas/internal/models"

	"go.uber.org/zap"
)

// Операции, под которыми запросы видны в метриках.
const (
	OpGenerateStory    = "generate_story"
	OpUpdateFromDraw   = "update_story_from_drawing"
	OpChat             = "chat"
	OpGuidingQuestions = "guiding_questions"
	OpSyncFromChat     = "update_story_from_chat"
)

// Storyteller строит промпты сценария поверх AIClient.
type Storyteller struct {
	client        AIClient
	historyBudget int
	countTokens   TokenCounter
	logger        *zap.Logger
}

// NewStoryteller создает Storyteller. historyBudget ограничивает историю чата в токенах,
// countTokens может быть nil - тогда используется грубая оценка.
func NewStoryteller(client AIClient, historyBudget int, countTokens TokenCounter, logger *zap.Logger) *Storyteller {
	if countTokens == nil {
		countTokens = EstimateTokens
	}
	return &Storyteller{
		client:        client,
		historyBudget: historyBudget,
		countTokens:   countTokens,
		logger:        logger.Named("Storyteller"),
	}
}

// GenerateStory создает историю по рисунку. Если currentStory не пуст, модель продолжает ее.
// history должна быть уже без системных сообщений.
func (s *Storyteller) GenerateStory(ctx context.Context, snapshot models.DrawingSnapshot, currentStory string, history []models.Message) (string, error) {
	messages := []ChatMessage{TextMessage(models.RoleSystem, storySystemPrompt)}
	for _, m := range TrimHistory(history, s.historyBudget, s.countTokens) {
		role := models.RoleUser
		if m.Role == models.RoleAssistant {
			role = models.RoleAssistant
		}
		messages = append(messages, TextMessage(role, m.Content))
	}

	prompt := newStoryPrompt
	if currentStory != "" {
		prompt = continueStoryPrompt(currentStory)
	}
	messages = append(messages, ChatMessage{
		Role:  models.RoleUser,
		Parts: []Part{{Text: prompt}, {ImageURL: snapshot.DataURL()}},
	})

	text, _, err := s.client.Complete(ctx, Request{Operation: OpGenerateStory, Messages: messages})
	if err != nil {
		return "", fmt.Errorf("failed to generate story: %w", err)
	}
	return text, nil
}

// UpdateStoryFromDrawing обновляет историю по разнице двух рисунков.
// Старый рисунок идет первым, новый вторым: модель опирается на этот порядок.
func (s *Storyteller) UpdateStoryFromDrawing(ctx context.Context, previous, current models.DrawingSnapshot, currentStory string) (string, error) {
	messages := []ChatMessage{
		TextMessage(models.RoleSystem, updateSystemPrompt),
		{
			Role: models.RoleUser,
			Parts: []Part{
				{Text: updateFromDrawingPrompt(currentStory)},
				{ImageURL: previous.DataURL()},
				{ImageURL: current.DataURL()},
			},
		},
	}

	text, _, err := s.client.Complete(ctx, Request{Operation: OpUpdateFromDraw, Messages: messages})
	if err != nil {
		return "", fmt.Errorf("failed to update story: %w", err)
	}
	return text, nil
}

// Chat отвечает на сообщение ребенка. drawingCompleted только меняет тон ответа.
func (s *Storyteller) Chat(ctx context.Context, message string, history []models.Message, currentStory string, drawingCompleted bool) (string, error) {
	messages := []ChatMessage{TextMessage(models.RoleSystem, chatSystemPrompt(currentStory, drawingCompleted))}
	for _, m := range TrimHistory(history, s.historyBudget, s.countTokens) {
		messages = append(messages, TextMessage(m.Role, m.Content))
	}
	messages = append(messages, TextMessage(models.RoleUser, message))

	text, _, err := s.client.Complete(ctx, Request{Operation: OpChat, Messages: messages})
	if err != nil {
		return "", fmt.Errorf("chat failed: %w", err)
	}
	return text, nil
}

// GuidingQuestions просит у модели пару вопросов, которые помогут продолжить рисунок.
func (s *Storyteller) GuidingQuestions(ctx context.Context, snapshot models.DrawingSnapshot, story string) (string, error) {
	messages := []ChatMessage{
		TextMessage(models.RoleSystem, guidingSystemPrompt),
		{
			Role:  models.RoleUser,
			Parts: []Part{{Text: fmt.Sprintf(guidingPrompt, story)}, {ImageURL: snapshot.DataURL()}},
		},
	}

	text, _, err := s.client.Complete(ctx, Request{Operation: OpGuidingQuestions, Messages: messages})
	if err != nil {
		return "", fmt.Errorf("failed to get guiding questions: %w", err)
	}
	return text, nil
}

type historyEntry struct {
	Role    models.Role `json:"role"`
	Content string      `json:"content"`
}

// UpdateStoryFromChat переносит в историю идеи из последних сообщений чата.
// snapshot может быть nil.
func (s *Storyteller) UpdateStoryFromChat(ctx context.Context, currentStory string, history []models.Message, snapshot *models.DrawingSnapshot) (string, error) {
	if len(history) > syncHistoryMessages {
		history = history[len(history)-syncHistoryMessages:]
	}
	entries := make([]historyEntry, 0, len(history))
	for _, m := range history {
		entries = append(entries, historyEntry{Role: m.Role, Content: m.Content})
	}
	historyJSON, err := json.Marshal(entries)
	if err != nil {
		return "", fmt.Errorf("failed to sync conversation to story: %w", err)
	}

	user := ChatMessage{Role: models.RoleUser, Parts: []Part{{Text: syncFromChatPrompt(currentStory, string(historyJSON))}}}
	if snapshot != nil && !snapshot.IsEmpty() {
		user.Parts = append(user.Parts, Part{ImageURL: snapshot.DataURL()})
	}
	messages := []ChatMessage{TextMessage(models.RoleSystem, syncSystemPrompt), user}

	text, _, err := s.client.Complete(ctx, Request{Operation: OpSyncFromChat, Messages: messages})
	if err != nil {
		return "", fmt.Errorf("failed to sync conversation to story: %w", err)
	}
	return text, nil
}
