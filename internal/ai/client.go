package ai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"story-canvas/internal/config"
	"story-canvas/internal/models"

	"github.com/ollama/ollama/api"
	"github.com/prometheus/client_golang/prometheus"
	openaigo "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// ErrAIGenerationFailed - ошибка при обращении к языковой модели
var ErrAIGenerationFailed = errors.New("AI generation failed")

// Part - часть содержимого реплики: либо текст, либо картинка в виде data URL.
type Part struct {
	Text     string
	ImageURL string
}

// ChatMessage - реплика, отправляемая модели.
type ChatMessage struct {
	Role  models.Role
	Parts []Part
}

// TextMessage создает реплику из одного текстового фрагмента.
func TextMessage(role models.Role, text string) ChatMessage {
	return ChatMessage{Role: role, Parts: []Part{{Text: text}}}
}

// Text возвращает все текстовые части реплики, склеенные через перевод строки.
func (m ChatMessage) Text() string {
	texts := make([]string, 0, len(m.Parts))
	for _, p := range m.Parts {
		if p.ImageURL == "" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// Images возвращает картинки реплики в исходном порядке.
func (m ChatMessage) Images() []string {
	var images []string
	for _, p := range m.Parts {
		if p.ImageURL != "" {
			images = append(images, p.ImageURL)
		}
	}
	return images
}

// Request - запрос к модели. Operation используется только в метриках и логах.
type Request struct {
	Operation string
	Messages  []ChatMessage
}

// Usage содержит информацию об использовании токенов
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// AIClient интерфейс для взаимодействия с chat/vision API.
// Complete возвращает текст первого варианта ответа или пустую строку, если вариантов нет.
type AIClient interface {
	Complete(ctx context.Context, req Request) (string, Usage, error)
}

// --- OpenAI Client Implementation ---

type openAIClient struct {
	client      *openaigo.Client
	model       string
	apiKey      string
	temperature float32
	logger      *zap.Logger
}

func (c *openAIClient) Complete(ctx context.Context, req Request) (string, Usage, error) {
	usage := Usage{}
	if c.apiKey == "" {
		return "", usage, fmt.Errorf("%w: ARK_API_KEY not configured", models.ErrNotConfigured)
	}
	if c.model == "" {
		return "", usage, fmt.Errorf("%w: ARK_MODEL not configured", models.ErrNotConfigured)
	}

	messages := make([]openaigo.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, toOpenAIMessage(m))
	}

	log := c.logger.With(zap.String("operation", req.Operation), zap.String("model", c.model))
	log.Debug("Sending chat completion request", zap.Int("messages", len(messages)))

	startTime := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openaigo.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
	})
	duration := time.Since(startTime)

	if err != nil {
		log.Error("Chat completion request failed", zap.Duration("duration", duration), zap.Error(err))
		aiRequestsTotal.With(prometheus.Labels{"model": c.model, "operation": req.Operation, "status": "error"}).Inc()
		var apiErr *openaigo.APIError
		if errors.As(err, &apiErr) && apiErr.Message != "" {
			return "", usage, fmt.Errorf("%w: %s", ErrAIGenerationFailed, apiErr.Message)
		}
		return "", usage, fmt.Errorf("%w: %v", ErrAIGenerationFailed, err)
	}

	aiRequestDuration.With(prometheus.Labels{"model": c.model, "operation": req.Operation}).Observe(duration.Seconds())
	if resp.Usage.TotalTokens > 0 {
		usage.PromptTokens = resp.Usage.PromptTokens
		usage.CompletionTokens = resp.Usage.CompletionTokens
		aiPromptTokens.With(prometheus.Labels{"model": c.model}).Observe(float64(usage.PromptTokens))
		aiCompletionTokens.With(prometheus.Labels{"model": c.model}).Observe(float64(usage.CompletionTokens))
	}

	if len(resp.Choices) == 0 {
		log.Warn("Chat completion returned no choices", zap.Duration("duration", duration))
		aiRequestsTotal.With(prometheus.Labels{"model": c.model, "operation": req.Operation, "status": "empty"}).Inc()
		return "", usage, nil
	}

	aiRequestsTotal.With(prometheus.Labels{"model": c.model, "operation": req.Operation, "status": "success"}).Inc()
	text := resp.Choices[0].Message.Content
	log.Info("Chat completion received",
		zap.Duration("duration", duration),
		zap.Int("replyLength", len(text)),
		zap.Int("promptTokens", usage.PromptTokens),
		zap.Int("completionTokens", usage.CompletionTokens),
	)
	return text, usage, nil
}

func toOpenAIMessage(m ChatMessage) openaigo.ChatCompletionMessage {
	if len(m.Images()) == 0 {
		return openaigo.ChatCompletionMessage{Role: string(m.Role), Content: m.Text()}
	}
	parts := make([]openaigo.ChatMessagePart, 0, len(m.Parts))
	for _, p := range m.Parts {
		if p.ImageURL != "" {
			parts = append(parts, openaigo.ChatMessagePart{
				Type:     openaigo.ChatMessagePartTypeImageURL,
				ImageURL: &openaigo.ChatMessageImageURL{URL: p.ImageURL, Detail: openaigo.ImageURLDetailAuto},
			})
			continue
		}
		parts = append(parts, openaigo.ChatMessagePart{Type: openaigo.ChatMessagePartTypeText, Text: p.Text})
	}
	return openaigo.ChatCompletionMessage{Role: string(m.Role), MultiContent: parts}
}

// --- Ollama Client Implementation ---

type ollamaClient struct {
	client  *api.Client
	model   string
	timeout time.Duration
	options map[string]interface{}
	logger  *zap.Logger
}

func newOllamaClient(cfg config.AIConfig, logger *zap.Logger) (AIClient, error) {
	// api.NewClient ожидает URL без суффикса /v1
	ollamaBaseURL := strings.TrimSuffix(cfg.BaseURL, "/v1")
	ollamaBaseURL = strings.TrimSuffix(ollamaBaseURL, "/")

	parsedURL, err := url.Parse(ollamaBaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Ollama base URL '%s': %w", ollamaBaseURL, err)
	}

	client := api.NewClient(parsedURL, &http.Client{Timeout: cfg.Timeout})
	logger.Info("Ollama client created", zap.String("baseURL", ollamaBaseURL), zap.String("model", cfg.Model))

	return &ollamaClient{
		client:  client,
		model:   cfg.Model,
		timeout: cfg.Timeout,
		options: map[string]interface{}{"temperature": cfg.Temperature},
		logger:  logger,
	}, nil
}

func (c *ollamaClient) Complete(ctx context.Context, req Request) (string, Usage, error) {
	usage := Usage{}
	if c.model == "" {
		return "", usage, fmt.Errorf("%w: ARK_MODEL not configured", models.ErrNotConfigured)
	}

	messages := make([]api.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		msg := api.Message{Role: string(m.Role), Content: m.Text()}
		for _, img := range m.Images() {
			raw, err := decodeDataURL(img)
			if err != nil {
				return "", usage, fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
			}
			msg.Images = append(msg.Images, api.ImageData(raw))
		}
		messages = append(messages, msg)
	}

	stream := false
	chatReq := &api.ChatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   &stream,
		Options:  c.options,
	}

	requestCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	log := c.logger.With(zap.String("operation", req.Operation), zap.String("model", c.model))
	startTime := time.Now()

	var resp api.ChatResponse
	err := c.client.Chat(requestCtx, chatReq, func(r api.ChatResponse) error {
		resp = r
		return nil
	})
	duration := time.Since(startTime)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			log.Error("Ollama request timed out", zap.Duration("timeout", c.timeout), zap.Error(err))
		} else {
			log.Error("Ollama request failed", zap.Duration("duration", duration), zap.Error(err))
		}
		aiRequestsTotal.With(prometheus.Labels{"model": c.model, "operation": req.Operation, "status": "error"}).Inc()
		return "", usage, fmt.Errorf("%w: %v", ErrAIGenerationFailed, err)
	}

	aiRequestDuration.With(prometheus.Labels{"model": c.model, "operation": req.Operation}).Observe(duration.Seconds())
	usage.PromptTokens = resp.PromptEvalCount
	usage.CompletionTokens = resp.EvalCount
	if usage.PromptTokens+usage.CompletionTokens > 0 {
		aiPromptTokens.With(prometheus.Labels{"model": c.model}).Observe(float64(usage.PromptTokens))
		aiCompletionTokens.With(prometheus.Labels{"model": c.model}).Observe(float64(usage.CompletionTokens))
	}

	status := "success"
	if resp.Message.Content == "" {
		status = "empty"
		log.Warn("Ollama returned an empty reply", zap.Duration("duration", duration))
	}
	aiRequestsTotal.With(prometheus.Labels{"model": c.model, "operation": req.Operation, "status": status}).Inc()
	return resp.Message.Content, usage, nil
}

func decodeDataURL(u string) ([]byte, error) {
	payload := u
	if strings.HasPrefix(u, "data:") {
		i := strings.Index(u, ";base64,")
		if i < 0 {
			return nil, errors.New("image data URL is not base64 encoded")
		}
		payload = u[i+len(";base64,"):]
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return raw, nil
}

// --- Factory Function ---

// NewAIClient создает клиент языковой модели в зависимости от AI_CLIENT_TYPE
func NewAIClient(cfg config.AIConfig, logger *zap.Logger) (AIClient, error) {
	logger = logger.Named("AIClient")
	switch strings.ToLower(cfg.ClientType) {
	case "openai", "":
		openaiConfig := openaigo.DefaultConfig(cfg.APIKey)
		openaiConfig.BaseURL = cfg.BaseURL
		openaiConfig.HTTPClient = &http.Client{Timeout: cfg.Timeout}
		logger.Info("OpenAI-compatible client created",
			zap.String("baseURL", cfg.BaseURL), zap.String("model", cfg.Model), zap.Duration("timeout", cfg.Timeout))
		return &openAIClient{
			client:      openaigo.NewClientWithConfig(openaiConfig),
			model:       cfg.Model,
			apiKey:      cfg.APIKey,
			temperature: cfg.Temperature,
			logger:      logger,
		}, nil
	case "ollama":
		return newOllamaClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown AI_CLIENT_TYPE: %s", cfg.ClientType)
	}
}
