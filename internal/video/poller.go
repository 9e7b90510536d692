package video

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"story-canvas/internal/config"
	"story-canvas/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

var (
	videoPollsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "story_canvas_video_polls_total",
			Help: "Video task status requests by outcome.",
		},
		[]string{"outcome"}, // pending, succeeded, failed, retryable, fatal
	)
	videoJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "story_canvas_video_jobs_total",
			Help: "Video generation jobs by terminal result.",
		},
		[]string{"result"}, // succeeded, degraded, failed, timeout, error, cancelled
	)
	videoJobDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "story_canvas_video_job_duration_seconds",
			Help:    "Time from submission to a terminal video task state.",
			Buckets: []float64{15, 30, 45, 60, 90, 120, 180, 300, 600},
		},
	)
)

// SleepFunc ждет d или отмены контекста.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Request - исходные данные для ролика.
type Request struct {
	Story    string
	Snapshot *models.DrawingSnapshot
}

// Poller превращает долгую задачу провайдера в один вызов Generate.
type Poller struct {
	client         *Client
	interval       time.Duration
	maxAttempts    int
	promptMaxRunes int
	controls       string
	sleep          SleepFunc
	logger         *zap.Logger
}

// Option настраивает Poller.
type Option func(*Poller)

// WithSleep подменяет ожидание между опросами (в тестах).
func WithSleep(sleep SleepFunc) Option {
	return func(p *Poller) { p.sleep = sleep }
}

// NewPoller создает Poller по настройкам VIDEO_*.
func NewPoller(client *Client, cfg config.VideoConfig, logger *zap.Logger, opts ...Option) *Poller {
	p := &Poller{
		client:         client,
		interval:       cfg.PollInterval,
		maxAttempts:    cfg.MaxAttempts,
		promptMaxRunes: cfg.PromptMaxRunes,
		controls: fmt.Sprintf("--resolution %s --duration %d --camerafixed %t --watermark %t",
			cfg.Resolution, cfg.Duration, cfg.CameraFixed, cfg.Watermark),
		sleep:  sleepContext,
		logger: logger.Named("VideoPoller"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// BuildPrompt обрезает историю до лимита провайдера и добавляет параметры генерации.
func (p *Poller) BuildPrompt(story string) string {
	text := story
	if p.promptMaxRunes > 0 && utf8.RuneCountInString(text) > p.promptMaxRunes {
		text = string([]rune(text)[:p.promptMaxRunes])
	}
	if p.controls == "" {
		return text
	}
	return text + "\n\n" + p.controls
}

// Generate отправляет задачу и ждет ее завершения. Пустая строка без ошибки означает,
// что задача успешна, но ссылку на видео извлечь не удалось.
func (p *Poller) Generate(ctx context.Context, req Request) (string, error) {
	if !p.client.Configured() {
		return "", fmt.Errorf("%w: Video API key not configured", models.ErrNotConfigured)
	}

	image := ""
	if req.Snapshot != nil && !req.Snapshot.IsEmpty() {
		image = req.Snapshot.DataURL()
	}

	started := time.Now()
	taskID, err := p.client.Submit(ctx, p.BuildPrompt(req.Story), image)
	if err != nil {
		videoJobsTotal.WithLabelValues("error").Inc()
		return "", err
	}

	url, err := p.Poll(ctx, taskID)
	videoJobDuration.Observe(time.Since(started).Seconds())
	return url, err
}

// Poll опрашивает статус задачи с фиксированным интервалом, не больше maxAttempts раз.
// После последней попытки ожидания нет.
func (p *Poller) Poll(ctx context.Context, taskID string) (string, error) {
	log := p.logger.With(zap.String("taskID", taskID))
	task := models.VideoTask{ID: taskID, Status: models.VideoStatusPending}

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			videoJobsTotal.WithLabelValues("cancelled").Inc()
			return "", err
		}

		st, err := p.client.Status(ctx, taskID)
		switch {
		case err != nil && isRetryable(ctx, err):
			videoPollsTotal.WithLabelValues("retryable").Inc()
			log.Warn("Video task status not available yet, will retry", zap.Int("attempt", attempt), zap.Error(err))

		case err != nil:
			if ctx.Err() != nil {
				videoJobsTotal.WithLabelValues("cancelled").Inc()
				return "", ctx.Err()
			}
			videoPollsTotal.WithLabelValues("fatal").Inc()
			videoJobsTotal.WithLabelValues("error").Inc()
			log.Error("Video task polling aborted", zap.Int("attempt", attempt), zap.Error(err))
			return "", err

		case st.Status == models.VideoStatusSucceeded:
			task.Status = st.Status
			videoPollsTotal.WithLabelValues("succeeded").Inc()
			url, shape, ok := ExtractVideoURL(st.Body)
			if !ok {
				videoJobsTotal.WithLabelValues("degraded").Inc()
				log.Warn("Video task succeeded but no video url matched a known response shape",
					zap.String("body", truncate(string(st.Body), maxErrorBodyLog)))
				return "", nil
			}
			videoJobsTotal.WithLabelValues("succeeded").Inc()
			log.Info("Video task succeeded", zap.Int("attempt", attempt), zap.String("shape", shape))
			return url, nil

		case st.Status == models.VideoStatusFailed:
			task.Status = st.Status
			videoPollsTotal.WithLabelValues("failed").Inc()
			videoJobsTotal.WithLabelValues("failed").Inc()
			msg := extractErrorMessage(gjson.ParseBytes(st.Body))
			log.Warn("Video task failed", zap.String("status", st.Raw), zap.String("message", msg))
			if msg == "" {
				return "", ErrTaskFailed
			}
			return "", fmt.Errorf("%w: %s", ErrTaskFailed, msg)

		default:
			videoPollsTotal.WithLabelValues("pending").Inc()
			log.Debug("Video task still running", zap.Int("attempt", attempt), zap.String("status", st.Raw))
		}

		if attempt < p.maxAttempts {
			if err := p.sleep(ctx, p.interval); err != nil {
				videoJobsTotal.WithLabelValues("cancelled").Inc()
				return "", err
			}
		}
	}

	videoJobsTotal.WithLabelValues("timeout").Inc()
	log.Warn("Video task did not finish in time", zap.Int("attempts", p.maxAttempts), zap.String("lastStatus", string(task.Status)))
	return "", ErrPollTimeout
}
