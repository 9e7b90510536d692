package video

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"story-canvas/internal/models"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const (
	tasksPath       = "/contents/generations/tasks"
	maxErrorBodyLog = 512
)

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageRef `json:"image_url,omitempty"`
}

type imageRef struct {
	URL string `json:"url"`
}

type submitRequest struct {
	Model   string        `json:"model"`
	Content []contentPart `json:"content"`
}

// TaskStatus - разобранный ответ на запрос статуса задачи.
type TaskStatus struct {
	Status models.VideoStatus
	Raw    string // статус как его прислал провайдер
	Body   []byte // тело ответа без обертки data
}

// Client - HTTP клиент API генерации видео (Volcengine Ark content generation).
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	logger     *zap.Logger
}

// NewClient создает клиент API генерации видео.
func NewClient(baseURL, apiKey, model string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		logger:     logger.Named("VideoClient"),
	}
}

// Configured сообщает, задан ли ключ API.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

// Submit отправляет задачу генерации и возвращает ее идентификатор.
// imageURL может быть пустым.
func (c *Client) Submit(ctx context.Context, prompt, imageURL string) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("%w: Video API key not configured", models.ErrNotConfigured)
	}

	content := []contentPart{{Type: "text", Text: prompt}}
	if imageURL != "" {
		content = append(content, contentPart{Type: "image_url", ImageURL: &imageRef{URL: imageURL}})
	}
	payload, err := json.Marshal(submitRequest{Model: c.model, Content: content})
	if err != nil {
		return "", fmt.Errorf("failed to marshal video request: %w", err)
	}

	body, err := c.do(ctx, http.MethodPost, c.baseURL+tasksPath, payload)
	if err != nil {
		return "", err
	}

	taskID := extractTaskID(body)
	if taskID == "" {
		c.logger.Error("Submit response has no task id", zap.String("body", truncate(string(body), maxErrorBodyLog)))
		return "", ErrNoTaskID
	}
	c.logger.Info("Video task submitted", zap.String("taskID", taskID), zap.String("model", c.model))
	return taskID, nil
}

// Status запрашивает текущий статус задачи.
func (c *Client) Status(ctx context.Context, taskID string) (TaskStatus, error) {
	body, err := c.do(ctx, http.MethodGet, c.baseURL+tasksPath+"/"+taskID, nil)
	if err != nil {
		return TaskStatus{}, err
	}

	root := unwrap(body)
	raw := root.Get("status").String()
	return TaskStatus{Status: normalizeStatus(raw), Raw: raw, Body: []byte(root.Raw)}, nil
}

func (c *Client) do(ctx context.Context, method, url string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create video request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("video request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read video response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := extractErrorMessage(gjson.ParseBytes(body))
		if msg == "" {
			msg = truncate(strings.TrimSpace(string(body)), maxErrorBodyLog)
		}
		return nil, &ProviderError{StatusCode: resp.StatusCode, Message: msg}
	}
	return body, nil
}

// normalizeStatus сводит статусы провайдера к pending/succeeded/failed.
func normalizeStatus(raw string) models.VideoStatus {
	switch strings.ToLower(raw) {
	case "succeeded", "success", "completed":
		return models.VideoStatusSucceeded
	case "failed", "cancelled", "canceled", "expired":
		return models.VideoStatusFailed
	default:
		return models.VideoStatusPending
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
