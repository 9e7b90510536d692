package tencent

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"story-canvas/internal/config"
	"story-canvas/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	asr "github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/asr/v20190614"
	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common"
	sdkerrors "github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common/errors"
	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common/profile"
	tts "github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/tts/v20190823"
	"go.uber.org/zap"
)

var tencentRequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "story_canvas_tencent_requests_total",
		Help: "Requests to Tencent Cloud speech APIs by action and status.",
	},
	[]string{"action", "status"},
)

// APIError - ошибка, которую вернул Tencent Cloud или его SDK.
type APIError struct {
	Action    string
	Code      string
	Message   string
	RequestID string
}

func (e *APIError) Error() string {
	switch {
	case e.Message != "" && e.Code != "":
		return fmt.Sprintf("%s: %s (%s)", e.Action, e.Message, e.Code)
	case e.Message != "":
		return e.Action + ": " + e.Message
	case e.Code != "":
		return e.Action + ": " + e.Code
	default:
		return e.Action + ": request failed"
	}
}

// Client вызывает TTS и ASR Tencent Cloud через официальный SDK.
type Client struct {
	tts        *tts.Client
	asr        *asr.Client
	configured bool
	logger     *zap.Logger
}

// NewClient создает клиент по настройкам TENCENT_*. TENCENT_ENDPOINT, если задан,
// заменяет домен сервиса для обоих API.
func NewClient(cfg config.TencentConfig, logger *zap.Logger) (*Client, error) {
	credential := common.NewCredential(cfg.SecretID, cfg.SecretKey)

	cpf := profile.NewClientProfile()
	if secs := int(cfg.Timeout.Seconds()); secs > 0 {
		cpf.HttpProfile.ReqTimeout = secs
	}
	if cfg.Endpoint != "" {
		u, err := url.Parse(cfg.Endpoint)
		if err != nil || u.Host == "" {
			return nil, fmt.Errorf("invalid TENCENT_ENDPOINT %q", cfg.Endpoint)
		}
		cpf.HttpProfile.Endpoint = u.Host
		cpf.HttpProfile.Scheme = strings.ToUpper(u.Scheme)
	}

	ttsClient, err := tts.NewClient(credential, cfg.Region, cpf)
	if err != nil {
		return nil, fmt.Errorf("failed to create Tencent TTS client: %w", err)
	}
	asrClient, err := asr.NewClient(credential, cfg.Region, cpf)
	if err != nil {
		return nil, fmt.Errorf("failed to create Tencent ASR client: %w", err)
	}

	return &Client{
		tts:        ttsClient,
		asr:        asrClient,
		configured: cfg.SecretID != "" && cfg.SecretKey != "",
		logger:     logger.Named("TencentClient"),
	}, nil
}

// Configured сообщает, заданы ли ключи доступа.
func (c *Client) Configured() bool {
	return c.configured
}

func (c *Client) checkConfigured() error {
	if !c.configured {
		return fmt.Errorf("%w: Tencent Cloud credentials not configured", models.ErrNotConfigured)
	}
	return nil
}

func (c *Client) textToVoice(ctx context.Context, req *tts.TextToVoiceRequest) (*tts.TextToVoiceResponse, error) {
	if err := c.checkConfigured(); err != nil {
		return nil, err
	}
	resp, err := c.tts.TextToVoiceWithContext(ctx, req)
	return resp, c.observe(ctx, ttsAction, err)
}

func (c *Client) sentenceRecognition(ctx context.Context, req *asr.SentenceRecognitionRequest) (*asr.SentenceRecognitionResponse, error) {
	if err := c.checkConfigured(); err != nil {
		return nil, err
	}
	resp, err := c.asr.SentenceRecognitionWithContext(ctx, req)
	return resp, c.observe(ctx, asrAction, err)
}

// observe считает запрос в метриках и приводит ошибку SDK к *APIError.
// Отмену ctx SDK прячет в ClientError.NetworkError, поэтому она проверяется первой.
func (c *Client) observe(ctx context.Context, action string, err error) error {
	if err == nil {
		tencentRequestsTotal.WithLabelValues(action, "success").Inc()
		return nil
	}
	tencentRequestsTotal.WithLabelValues(action, "error").Inc()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s request aborted: %w", action, ctxErr)
	}

	var sdkErr *sdkerrors.TencentCloudSDKError
	if !errors.As(err, &sdkErr) {
		return fmt.Errorf("%s request failed: %w", action, err)
	}
	c.logger.Warn("Tencent API returned an error",
		zap.String("action", action),
		zap.String("code", sdkErr.GetCode()),
		zap.String("requestID", sdkErr.GetRequestId()),
	)
	return &APIError{
		Action:    action,
		Code:      sdkErr.GetCode(),
		Message:   sdkErr.GetMessage(),
		RequestID: sdkErr.GetRequestId(),
	}
}
