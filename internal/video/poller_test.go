package video

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"story-canvas/internal/config"
	"story-canvas/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type scriptedResponse struct {
	status int
	body   string
}

// taskServer отдает заранее заданные ответы на запросы статуса по порядку.
type taskServer struct {
	mu          sync.Mutex
	submitBody  string
	submitReply scriptedResponse
	script      []scriptedResponse
	statusCalls int
	submitted   map[string]interface{}
}

func (s *taskServer) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()

		assert.Equal(t, "Bearer video-key", r.Header.Get("Authorization"))
		switch {
		case r.Method == http.MethodPost && r.URL.Path == tasksPath:
			raw, _ := io.ReadAll(r.Body)
			s.submitBody = string(raw)
			_ = json.Unmarshal(raw, &s.submitted)
			w.WriteHeader(s.submitReply.status)
			_, _ = w.Write([]byte(s.submitReply.body))
		case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, tasksPath+"/"):
			idx := s.statusCalls
			s.statusCalls++
			if idx >= len(s.script) {
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte(`{"status":"running"}`))
				return
			}
			w.WriteHeader(s.script[idx].status)
			_, _ = w.Write([]byte(s.script[idx].body))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}
}

func (s *taskServer) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusCalls
}

type recordedSleeps struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (r *recordedSleeps) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.sleeps = append(r.sleeps, d)
	r.mu.Unlock()
	return ctx.Err()
}

func testVideoConfig() config.VideoConfig {
	return config.VideoConfig{
		Model:          "doubao-seedance-1-0-pro-250528",
		PollInterval:   5 * time.Second,
		MaxAttempts:    120,
		PromptMaxRunes: 500,
		Resolution:     "720p",
		Duration:       12,
		CameraFixed:    false,
		Watermark:      true,
	}
}

func newTestPoller(t *testing.T, srv *taskServer, cfg config.VideoConfig, key string) (*Poller, *recordedSleeps) {
	t.Helper()
	if srv.submitReply.status == 0 {
		srv.submitReply = scriptedResponse{status: http.StatusOK, body: `{"id":"cgt-123"}`}
	}
	ts := httptest.NewServer(srv.handler(t))
	t.Cleanup(ts.Close)

	rec := &recordedSleeps{}
	client := NewClient(ts.URL, key, cfg.Model, 5*time.Second, zap.NewNop())
	return NewPoller(client, cfg, zap.NewNop(), WithSleep(rec.sleep)), rec
}

func TestPoller_NotFoundPendingThenSucceeded(t *testing.T) {
	srv := &taskServer{script: []scriptedResponse{
		{http.StatusNotFound, `{"error":{"message":"task not found"}}`},
		{http.StatusOK, `{"status":"queued"}`},
		{http.StatusOK, `{"status":"running"}`},
		{http.StatusOK, `{"status":"succeeded","content":{"video_url":"https://cdn/video.mp4"}}`},
	}}
	p, rec := newTestPoller(t, srv, testVideoConfig(), "video-key")

	url, err := p.Generate(context.Background(), Request{Story: "A dragon", Snapshot: &models.DrawingSnapshot{Image: "AAAA"}})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/video.mp4", url)
	assert.Equal(t, 4, srv.calls())
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second, 5 * time.Second}, rec.sleeps)

	content := srv.submitted["content"].([]interface{})
	require.Len(t, content, 2)
	assert.Equal(t, "A dragon\n\n--resolution 720p --duration 12 --camerafixed false --watermark true",
		content[0].(map[string]interface{})["text"])
	img := content[1].(map[string]interface{})["image_url"].(map[string]interface{})
	assert.Equal(t, "data:image/png;base64,AAAA", img["url"])
	assert.Equal(t, "doubao-seedance-1-0-pro-250528", srv.submitted["model"])
}

func TestPoller_TimeoutAfterCeiling(t *testing.T) {
	cfg := testVideoConfig()
	cfg.MaxAttempts = 6
	srv := &taskServer{}
	p, rec := newTestPoller(t, srv, cfg, "video-key")

	_, err := p.Generate(context.Background(), Request{Story: "story"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPollTimeout))
	assert.False(t, errors.Is(err, ErrTaskFailed))
	assert.Equal(t, 6, srv.calls())
	assert.Len(t, rec.sleeps, 5)

	// После таймаута запросов больше нет
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 6, srv.calls())
}

func TestPoller_FailedCarriesProviderMessage(t *testing.T) {
	srv := &taskServer{script: []scriptedResponse{
		{http.StatusOK, `{"data":{"status":"failed","error":{"message":"content policy violation"}}}`},
	}}
	p, _ := newTestPoller(t, srv, testVideoConfig(), "video-key")

	_, err := p.Generate(context.Background(), Request{Story: "story"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTaskFailed))
	assert.Contains(t, err.Error(), "content policy violation")
	assert.Equal(t, 1, srv.calls())
}

func TestPoller_FatalErrorStopsPolling(t *testing.T) {
	srv := &taskServer{script: []scriptedResponse{
		{http.StatusOK, `{"status":"running"}`},
		{http.StatusUnauthorized, `{"error":{"message":"invalid api key"}}`},
	}}
	p, _ := newTestPoller(t, srv, testVideoConfig(), "video-key")

	_, err := p.Generate(context.Background(), Request{Story: "story"})
	require.Error(t, err)
	var perr *ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, http.StatusUnauthorized, perr.StatusCode)
	assert.Equal(t, "invalid api key", perr.Message)
	assert.Equal(t, 2, srv.calls())
}

func TestPoller_DegradedSuccess(t *testing.T) {
	srv := &taskServer{script: []scriptedResponse{
		{http.StatusOK, `{"status":"succeeded","content":{"thumbnail":"x"}}`},
	}}
	p, _ := newTestPoller(t, srv, testVideoConfig(), "video-key")

	url, err := p.Generate(context.Background(), Request{Story: "story"})
	require.NoError(t, err)
	assert.Equal(t, "", url)
}

func TestPoller_SubmitWithoutTaskID(t *testing.T) {
	srv := &taskServer{submitReply: scriptedResponse{http.StatusOK, `{"data":{}}`}}
	p, _ := newTestPoller(t, srv, testVideoConfig(), "video-key")

	_, err := p.Generate(context.Background(), Request{Story: "story"})
	assert.True(t, errors.Is(err, ErrNoTaskID))
	assert.Equal(t, 0, srv.calls())
}

func TestPoller_SubmitReadsWrappedTaskID(t *testing.T) {
	srv := &taskServer{
		submitReply: scriptedResponse{http.StatusOK, `{"data":{"id":"wrapped-1"}}`},
		script:      []scriptedResponse{{http.StatusOK, `{"status":"succeeded","video_url":"https://v"}`}},
	}
	p, _ := newTestPoller(t, srv, testVideoConfig(), "video-key")

	url, err := p.Generate(context.Background(), Request{Story: "story"})
	require.NoError(t, err)
	assert.Equal(t, "https://v", url)
}

func TestPoller_MissingKeyMakesNoRequests(t *testing.T) {
	srv := &taskServer{}
	p, _ := newTestPoller(t, srv, testVideoConfig(), "")

	_, err := p.Generate(context.Background(), Request{Story: "story"})
	assert.True(t, errors.Is(err, models.ErrNotConfigured))
	assert.Empty(t, srv.submitBody)
}

func TestPoller_CancelledContextStopsPolling(t *testing.T) {
	srv := &taskServer{}
	p, _ := newTestPoller(t, srv, testVideoConfig(), "video-key")

	ctx, cancel := context.WithCancel(context.Background())
	p.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	_, err := p.Generate(ctx, Request{Story: "story"})
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 1, srv.calls())
}

func TestBuildPrompt_TruncatesByRunes(t *testing.T) {
	cfg := testVideoConfig()
	cfg.PromptMaxRunes = 3
	p := NewPoller(NewClient("http://x", "k", "m", time.Second, zap.NewNop()), cfg, zap.NewNop())

	assert.Equal(t, "小猫咪\n\n--resolution 720p --duration 12 --camerafixed false --watermark true", p.BuildPrompt("小猫咪跳舞"))
}

func TestExtractVideoURL_KnownShapes(t *testing.T) {
	bodies := map[string]string{
		"content.video_url":  `{"content":{"video_url":"https://v.mp4"}}`,
		"output.video_url":   `{"output":{"video_url":"https://v.mp4"}}`,
		"output.video.url":   `{"output":{"video":{"url":"https://v.mp4"}}}`,
		"output.0.url":       `{"output":[{"url":"https://v.mp4"}]}`,
		"output.0.video_url": `{"output":[{"video_url":"https://v.mp4"}]}`,
		"video_url":          `{"video_url":"https://v.mp4"}`,
		"wrapped":            `{"data":{"content":{"video_url":"https://v.mp4"}}}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			url, _, ok := ExtractVideoURL([]byte(body))
			assert.True(t, ok)
			assert.Equal(t, "https://v.mp4", url)
		})
	}

	url, shape, ok := ExtractVideoURL([]byte(`{"status":"succeeded","content":{}}`))
	assert.False(t, ok)
	assert.Empty(t, url)
	assert.Empty(t, shape)
}

func TestIsRetryable(t *testing.T) {
	ctx := context.Background()
	assert.True(t, isRetryable(ctx, &ProviderError{StatusCode: http.StatusNotFound}))
	assert.False(t, isRetryable(ctx, &ProviderError{StatusCode: http.StatusInternalServerError}))
	assert.True(t, isRetryable(ctx, errors.New("read tcp: connection reset by peer")))
	assert.True(t, isRetryable(ctx, io.ErrUnexpectedEOF))
	assert.False(t, isRetryable(ctx, errors.New("boom")))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.False(t, isRetryable(cancelled, &ProviderError{StatusCode: http.StatusNotFound}))
}
