package handler_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"story-canvas/internal/ai"
	"story-canvas/internal/config"
	"story-canvas/internal/events"
	"story-canvas/internal/handler"
	"story-canvas/internal/middleware"
	"story-canvas/internal/mocks"
	"story-canvas/internal/models"
	"story-canvas/internal/narration"
	"story-canvas/internal/orchestrator"
	"story-canvas/internal/session"
	"story-canvas/pkg/taskmanager"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testHub записывает события и отдает их настоящему Hub, чтобы их видели WebSocket клиенты.
type testHub struct {
	mocks.RecordingPublisher
	live *events.Hub
}

func (h *testHub) Publish(sessionID, eventType string, payload interface{}) {
	h.RecordingPublisher.Publish(sessionID, eventType, payload)
	h.live.Publish(sessionID, eventType, payload)
}

func (h *testHub) Serve(conn *websocket.Conn, sessionID string) *events.Client {
	return h.live.Serve(conn, sessionID)
}

func (h *testHub) CloseSession(sessionID string) {
	h.live.CloseSession(sessionID)
}

type fixture struct {
	router   *gin.Engine
	hub      *testHub
	stories  *mocks.MockStoryService
	videos   *mocks.MockVideoGenerator
	tts      *mocks.MockSynthesizer
	speech   *mocks.MockSpeechRecognizer
	sessions *session.Manager
}

func newFixture(t *testing.T, videoLimiter gin.HandlerFunc, opts ...func(*config.Config)) *fixture {
	t.Helper()
	cfg := &config.Config{}
	cfg.Server.MaxBodyBytes = 1 << 20
	cfg.Server.CORSAllowedOrigins = "http://localhost:5173"
	cfg.Session = config.SessionConfig{
		JWTSecret:     "handler-secret",
		TokenTTL:      time.Hour,
		IdleTTL:       time.Hour,
		SweepInterval: time.Minute,
		MaxTasks:      4,
		ClipTTL:       time.Minute,
	}
	cfg.Tencent.SpeechFallback = true
	for _, opt := range opts {
		opt(cfg)
	}

	f := &fixture{
		hub:     &testHub{live: events.NewHub(zap.NewNop())},
		stories: mocks.NewMockStoryService(t),
		videos:  mocks.NewMockVideoGenerator(t),
		tts:     mocks.NewMockSynthesizer(t),
		speech:  mocks.NewMockSpeechRecognizer(t),
	}

	tokens, err := session.NewTokenIssuer(cfg.Session.JWTSecret, cfg.Session.TokenTTL, zap.NewNop())
	require.NoError(t, err)
	tasks := taskmanager.New(taskmanager.Config{MaxTasksPerOwner: cfg.Session.MaxTasks}, zap.NewNop())
	tasks.SetNotifier(f.hub)
	t.Cleanup(func() { _ = tasks.Shutdown(context.Background()) })

	f.sessions = session.NewManager(f.stories, f.videos, f.tts, tasks, f.hub, tokens, cfg, zap.NewNop())
	t.Cleanup(f.sessions.Shutdown)

	if videoLimiter == nil {
		videoLimiter = func(c *gin.Context) { c.Next() }
	}
	f.router = gin.New()
	h := handler.NewHandler(f.sessions, f.hub, f.speech, cfg, zap.NewNop())
	h.RegisterRoutes(f.router, middleware.SessionAuth(tokens, zap.NewNop()), videoLimiter)
	return f
}

func (f *fixture) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) createSession(t *testing.T) (string, string) {
	t.Helper()
	w := f.do(t, http.MethodPost, "/api/v1/sessions", "", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	var resp struct {
		SessionID string `json:"session_id"`
		Token     string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.SessionID)
	require.NotEmpty(t, resp.Token)
	return resp.SessionID, resp.Token
}

// finishDrawing создает историю, чтобы стали доступны правка, синхронизация и видео.
func (f *fixture) finishDrawing(t *testing.T, sid, token string) {
	t.Helper()
	f.stories.On("GenerateStory", mock.Anything, mock.Anything, "", mock.Anything).Return("Once upon a time", nil).Once()
	w := f.do(t, http.MethodPost, "/api/v1/sessions/"+sid+"/drawing/finish", token, map[string]string{"image": "aGVsbG8="})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func decodeState(t *testing.T, w *httptest.ResponseRecorder) orchestrator.State {
	t.Helper()
	var st orchestrator.State
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	return st
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) models.ErrorResponse {
	t.Helper()
	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestHealthAndConfigStatus(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/config/status", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var st config.Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.False(t, st.Valid)
	assert.Contains(t, st.Missing, "TENCENT_SECRET_ID")
	assert.NotContains(t, w.Body.String(), "handler-secret")
}

func TestSessionLifecycle(t *testing.T) {
	f := newFixture(t, nil)
	sid, token := f.createSession(t)

	w := f.do(t, http.MethodGet, "/api/v1/sessions/"+sid, token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	st := decodeState(t, w)
	assert.Equal(t, sid, st.SessionID)
	require.Len(t, st.Messages, 1)
	assert.Equal(t, orchestrator.GreetingMessage, st.Messages[0].Content)

	w = f.do(t, http.MethodGet, "/api/v1/sessions/"+sid, "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	otherID, _ := f.createSession(t)
	w = f.do(t, http.MethodGet, "/api/v1/sessions/"+otherID, token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, http.MethodDelete, "/api/v1/sessions/"+sid, token, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/sessions/"+sid, token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, models.ErrCodeNotFound, decodeError(t, w).Code)
}

func TestDrawingFinished(t *testing.T) {
	f := newFixture(t, nil)
	sid, token := f.createSession(t)

	w := f.do(t, http.MethodPost, "/api/v1/sessions/"+sid+"/drawing/finish", token, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	f.finishDrawing(t, sid, token)

	w = f.do(t, http.MethodGet, "/api/v1/sessions/"+sid, token, nil)
	st := decodeState(t, w)
	require.NotNil(t, st.Story)
	assert.Equal(t, "Once upon a time", st.Story.Content)
	assert.True(t, st.HasDrawing)
	assert.Equal(t, orchestrator.CelebrationMessage, st.Messages[len(st.Messages)-1].Content)
}

func TestDrawingFinished_UpstreamFailureIs502(t *testing.T) {
	f := newFixture(t, nil)
	sid, token := f.createSession(t)

	f.stories.On("GenerateStory", mock.Anything, mock.Anything, "", mock.Anything).
		Return("", errors.New("connection refused")).Once()
	w := f.do(t, http.MethodPost, "/api/v1/sessions/"+sid+"/drawing/finish", token, map[string]string{"image": "aGVsbG8="})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, models.ErrCodeUpstream, decodeError(t, w).Code)

	st := decodeState(t, f.do(t, http.MethodGet, "/api/v1/sessions/"+sid, token, nil))
	assert.Nil(t, st.Story)
	assert.Len(t, st.Messages, 1)
	assert.Empty(t, f.hub.OfType(events.TypeAlert))
}

func TestDrawingUpdated(t *testing.T) {
	f := newFixture(t, nil)
	sid, token := f.createSession(t)
	f.finishDrawing(t, sid, token)

	f.stories.On("UpdateStoryFromDrawing", mock.Anything, mock.Anything, mock.Anything, "Once upon a time").
		Return("Once upon a time, a dragon appeared", nil).Once()
	w := f.do(t, http.MethodPost, "/api/v1/sessions/"+sid+"/drawing/update", token, map[string]string{"image": "d29ybGQ="})
	require.Equal(t, http.StatusOK, w.Code)
	st := decodeState(t, w)
	assert.Equal(t, "Once upon a time, a dragon appeared", st.Story.Content)
	assert.Equal(t, orchestrator.DrawingUpdatedNote, st.Messages[len(st.Messages)-1].Content)
}

func TestChat(t *testing.T) {
	f := newFixture(t, nil)
	sid, token := f.createSession(t)

	f.stories.On("Chat", mock.Anything, "I drew a cat", mock.Anything, "", false).Return("What is the cat's name?", nil).Once()
	w := f.do(t, http.MethodPost, "/api/v1/sessions/"+sid+"/chat", token, map[string]string{"text": "I drew a cat"})
	require.Equal(t, http.StatusOK, w.Code)
	st := decodeState(t, w)
	require.Len(t, st.Messages, 3)
	assert.Equal(t, models.RoleUser, st.Messages[1].Role)
	assert.Equal(t, "What is the cat's name?", st.Messages[2].Content)

	f.stories.On("Chat", mock.Anything, "hello", mock.Anything, "", false).Return("", ai.ErrAIGenerationFailed).Once()
	w = f.do(t, http.MethodPost, "/api/v1/sessions/"+sid+"/chat", token, map[string]string{"text": "hello"})
	assert.Equal(t, http.StatusBadGateway, w.Code)

	w = f.do(t, http.MethodPost, "/api/v1/sessions/"+sid+"/chat", token, map[string]string{"text": "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStoryEditAndSync(t *testing.T) {
	f := newFixture(t, nil)
	sid, token := f.createSession(t)

	w := f.do(t, http.MethodPut, "/api/v1/sessions/"+sid+"/story", token, map[string]string{"content": "Mine"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	f.finishDrawing(t, sid, token)

	w = f.do(t, http.MethodPut, "/api/v1/sessions/"+sid+"/story", token, map[string]string{"content": "My own story"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "My own story", decodeState(t, w).Story.Content)

	f.stories.On("UpdateStoryFromChat", mock.Anything, "My own story", mock.Anything, mock.Anything).
		Return("My own story with a cat", nil).Once()
	w = f.do(t, http.MethodPost, "/api/v1/sessions/"+sid+"/story/sync", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "My own story with a cat", decodeState(t, w).Story.Content)
}

func TestVideo_PrerequisitesAndAccepted(t *testing.T) {
	f := newFixture(t, nil)
	sid, token := f.createSession(t)

	w := f.do(t, http.MethodPost, "/api/v1/sessions/"+sid+"/video", token, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeError(t, w)
	assert.Equal(t, models.ErrCodeVideoNotPossible, resp.Code)
	assert.Equal(t, "Please complete your drawing and generate a story first", resp.Message)

	f.finishDrawing(t, sid, token)
	f.videos.On("Generate", mock.Anything, mock.Anything).Return("https://cdn.example.com/v.mp4", nil).Once()

	w = f.do(t, http.MethodPost, "/api/v1/sessions/"+sid+"/video", token, nil)
	require.Equal(t, http.StatusAccepted, w.Code)

	require.Eventually(t, func() bool {
		return len(f.hub.OfType(events.TypeVideoReady)) == 1
	}, 2*time.Second, 10*time.Millisecond)

	st := decodeState(t, f.do(t, http.MethodGet, "/api/v1/sessions/"+sid, token, nil))
	assert.Equal(t, "https://cdn.example.com/v.mp4", st.VideoURL)
	assert.False(t, st.VideoBusy)
}

func TestVideo_RateLimited(t *testing.T) {
	f := newFixture(t, handler.NewRateLimiter(time.Minute, 1, zap.NewNop()))
	sid, token := f.createSession(t)

	w := f.do(t, http.MethodPost, "/api/v1/sessions/"+sid+"/video", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/api/v1/sessions/"+sid+"/video", token, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, models.ErrCodeTooManyRequests, decodeError(t, w).Code)
}

func TestNarration_RemoteClip(t *testing.T) {
	f := newFixture(t, nil)
	sid, token := f.createSession(t)

	f.tts.On("TextToVoice", mock.Anything, "Read me").Return([]byte("mp3-bytes"), nil).Once()
	w := f.do(t, http.MethodPost, "/api/v1/sessions/"+sid+"/narration", token, map[string]string{"text": "Read me"})
	require.Equal(t, http.StatusOK, w.Code)

	var playback struct {
		PlaybackID string `json:"playback_id"`
		Kind       string `json:"kind"`
		Source     string `json:"source"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &playback))
	assert.Equal(t, "url", playback.Kind)
	require.True(t, strings.HasPrefix(playback.Source, "/api/v1/sessions/"+sid+"/audio/"))

	w = f.do(t, http.MethodGet, playback.Source, token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "mp3-bytes", w.Body.String())

	w = f.do(t, http.MethodGet, "/api/v1/sessions/"+sid+"/audio/unknown", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodPost, "/api/v1/sessions/"+sid+"/audio/ended", token, map[string]string{"playback_id": playback.PlaybackID})
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestNarration_FallbackAndMessages(t *testing.T) {
	f := newFixture(t, nil)
	sid, token := f.createSession(t)

	st := decodeState(t, f.do(t, http.MethodGet, "/api/v1/sessions/"+sid, token, nil))
	greeting := st.Messages[0]

	f.tts.On("TextToVoice", mock.Anything, greeting.Content).Return(nil, models.ErrNotConfigured).Once()
	w := f.do(t, http.MethodPost, "/api/v1/sessions/"+sid+"/narration", token, map[string]string{"message_id": greeting.ID})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"kind":"speech"`)
	speak := f.hub.OfType(events.TypeSpeechSpeak)
	require.Len(t, speak, 1)

	w = f.do(t, http.MethodPost, "/api/v1/sessions/"+sid+"/narration", token, map[string]string{"message_id": "missing"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodPost, "/api/v1/sessions/"+sid+"/narration", token, map[string]string{})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, f.hub.OfType(events.TypeAlert))
}

func TestNarration_FailureWithoutFallbackRaisesAlert(t *testing.T) {
	f := newFixture(t, nil, func(cfg *config.Config) { cfg.Tencent.SpeechFallback = false })
	sid, token := f.createSession(t)

	f.tts.On("TextToVoice", mock.Anything, "Read me").Return(nil, models.ErrNotConfigured).Once()
	w := f.do(t, http.MethodPost, "/api/v1/sessions/"+sid+"/narration", token, map[string]string{"text": "Read me"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	alerts := f.hub.OfType(events.TypeAlert)
	require.Len(t, alerts, 1)
	assert.Equal(t, orchestrator.AlertPayload{Message: narration.PlaybackFailedAlert}, alerts[0].Payload)
	assert.Empty(t, f.hub.OfType(events.TypeAudioPlay))
}

func TestNarration_UserMessageRejected(t *testing.T) {
	f := newFixture(t, nil)
	sid, token := f.createSession(t)

	f.stories.On("Chat", mock.Anything, "hi", mock.Anything, "", false).Return("Hello!", nil).Once()
	st := decodeState(t, f.do(t, http.MethodPost, "/api/v1/sessions/"+sid+"/chat", token, map[string]string{"text": "hi"}))
	userMsg := st.Messages[1]
	require.Equal(t, models.RoleUser, userMsg.Role)

	w := f.do(t, http.MethodPost, "/api/v1/sessions/"+sid+"/narration", token, map[string]string{"message_id": userMsg.ID})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, f.hub.OfType(events.TypeAlert))
}

func TestStopAudio(t *testing.T) {
	f := newFixture(t, nil)
	sid, token := f.createSession(t)

	w := f.do(t, http.MethodPost, "/api/v1/sessions/"+sid+"/audio/stop", token, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = f.do(t, http.MethodPost, "/api/v1/sessions/"+sid+"/audio/stop", token, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Len(t, f.hub.OfType(events.TypeSpeechCancel), 2)
	assert.Empty(t, f.hub.OfType(events.TypeAudioStop))
}

func TestSpeechRecognition(t *testing.T) {
	f := newFixture(t, nil)
	sid, token := f.createSession(t)

	f.speech.On("SentenceRecognition", mock.Anything, []byte("voice"), "mp3").Return("a purple dragon", nil).Once()
	w := f.do(t, http.MethodPost, "/api/v1/sessions/"+sid+"/speech", token, map[string]string{
		"audio": base64.StdEncoding.EncodeToString([]byte("voice")),
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"text":"a purple dragon"}`, w.Body.String())

	w = f.do(t, http.MethodPost, "/api/v1/sessions/"+sid+"/speech", token, map[string]string{"audio": "%%%"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	f.speech.On("SentenceRecognition", mock.Anything, []byte("voice"), "wav").Return("", models.ErrNotConfigured).Once()
	w = f.do(t, http.MethodPost, "/api/v1/sessions/"+sid+"/speech", token, map[string]string{
		"audio":  base64.StdEncoding.EncodeToString([]byte("voice")),
		"format": "wav",
	})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, models.ErrCodeNotConfigured, decodeError(t, w).Code)
}

func TestWebSocketReceivesSessionEvents(t *testing.T) {
	f := newFixture(t, nil)
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	sid, token := f.createSession(t)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/sessions/" + sid + "/ws?token=" + token

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/v1/sessions/"+sid+"/ws", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return f.hub.live.ClientCount(sid) == 1 }, 2*time.Second, 10*time.Millisecond)

	w := f.do(t, http.MethodPost, "/api/v1/sessions/"+sid+"/audio/stop", token, nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var evt events.Event
	require.NoError(t, conn.ReadJSON(&evt))
	assert.Equal(t, events.TypeSpeechCancel, evt.Type)
	assert.Equal(t, sid, evt.SessionID)
}

func TestRequestValidation(t *testing.T) {
	f := newFixture(t, nil)
	sid, token := f.createSession(t)

	w := f.do(t, http.MethodPost, "/api/v1/sessions/"+sid+"/chat", token, map[string]string{"text": strings.Repeat("a", 2001)})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/api/v1/sessions/"+sid+"/speech", token, map[string]string{"audio": "dm9pY2U=", "format": "flac"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decodeError(t, w).Message, "format")

	w = f.do(t, http.MethodPost, "/api/v1/sessions/"+sid+"/audio/ended", token, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
