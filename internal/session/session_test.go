package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"story-canvas/internal/config"
	"story-canvas/internal/mocks"
	"story-canvas/internal/models"
	"story-canvas/internal/video"
	"story-canvas/pkg/taskmanager"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeHub struct {
	mocks.RecordingPublisher
	mu     sync.Mutex
	closed []string
}

func (h *fakeHub) CloseSession(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = append(h.closed, sessionID)
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Session = config.SessionConfig{
		JWTSecret:     "test-secret",
		TokenTTL:      time.Hour,
		IdleTTL:       30 * time.Minute,
		SweepInterval: time.Minute,
		MaxTasks:      2,
		ClipTTL:       time.Minute,
	}
	cfg.Tencent.SpeechFallback = true
	return cfg
}

func newTestManager(t *testing.T) (*Manager, *fakeHub, *taskmanager.TaskManager, *mocks.MockVideoGenerator) {
	t.Helper()
	cfg := testConfig()
	tokens, err := NewTokenIssuer(cfg.Session.JWTSecret, cfg.Session.TokenTTL, zap.NewNop())
	require.NoError(t, err)

	hub := &fakeHub{}
	tasks := taskmanager.New(taskmanager.Config{MaxTasksPerOwner: cfg.Session.MaxTasks}, zap.NewNop())
	t.Cleanup(func() { _ = tasks.Shutdown(context.Background()) })
	videos := mocks.NewMockVideoGenerator(t)

	m := NewManager(mocks.NewMockStoryService(t), videos, mocks.NewMockSynthesizer(t), tasks, hub, tokens, cfg, zap.NewNop())
	return m, hub, tasks, videos
}

func TestTokenIssuer_RoundTrip(t *testing.T) {
	issuer, err := NewTokenIssuer("secret", time.Hour, zap.NewNop())
	require.NoError(t, err)

	token, err := issuer.Issue("session-1")
	require.NoError(t, err)

	claims, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "session-1", claims.SessionID)
}

func TestTokenIssuer_Errors(t *testing.T) {
	_, err := NewTokenIssuer("", time.Hour, zap.NewNop())
	require.Error(t, err)

	issuer, err := NewTokenIssuer("secret", time.Hour, zap.NewNop())
	require.NoError(t, err)
	other, err := NewTokenIssuer("other-secret", time.Hour, zap.NewNop())
	require.NoError(t, err)

	foreign, err := other.Issue("s1")
	require.NoError(t, err)
	_, err = issuer.Verify(foreign)
	assert.ErrorIs(t, err, models.ErrTokenInvalid)

	_, err = issuer.Verify("not-a-jwt")
	assert.ErrorIs(t, err, models.ErrTokenMalformed)

	expired, err := issuer.Issue("s1")
	require.NoError(t, err)
	issuer.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = issuer.Verify(expired)
	assert.ErrorIs(t, err, models.ErrTokenExpired)

	issuer.now = time.Now
	noSid, err := jwt.NewWithClaims(jwt.SigningMethodHS256, models.SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = issuer.Verify(noSid)
	assert.ErrorIs(t, err, models.ErrTokenInvalid)
}

func TestManager_CreateGetEnd(t *testing.T) {
	m, hub, _, _ := newTestManager(t)

	s, token, err := m.Create()
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, 1, m.Count())

	claims, err := m.tokens.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, s.ID, claims.SessionID)

	got, err := m.Get(s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)
	assert.Len(t, got.Orchestrator.State().Messages, 1)

	require.NoError(t, m.End(s.ID))
	assert.Equal(t, 0, m.Count())
	assert.Equal(t, []string{s.ID}, hub.closed)

	_, err = m.Get(s.ID)
	assert.True(t, errors.Is(err, models.ErrSessionNotFound))
	assert.ErrorIs(t, m.End(s.ID), models.ErrSessionNotFound)
}

func TestManager_SweepEvictsIdleAndCancelsTasks(t *testing.T) {
	m, hub, tasks, videos := newTestManager(t)
	now := time.Now()
	m.now = func() time.Time { return now }

	idle, _, err := m.Create()
	require.NoError(t, err)
	busy, _, err := m.Create()
	require.NoError(t, err)

	started := make(chan struct{})
	cancelled := make(chan struct{})
	videos.On("Generate", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		close(started)
		<-args.Get(0).(context.Context).Done()
		close(cancelled)
	}).Return("", context.Canceled).Once()
	_, err = tasks.SubmitTaskWithOwner(context.Background(), "video", func(ctx context.Context, _ interface{}) (interface{}, error) {
		return m.videos.Generate(ctx, video.Request{Story: "Story"})
	}, nil, idle.ID)
	require.NoError(t, err)
	<-started

	now = now.Add(20 * time.Minute)
	_, err = m.Get(busy.ID)
	require.NoError(t, err)

	now = now.Add(15 * time.Minute)
	assert.Equal(t, 1, m.Sweep())

	<-cancelled
	assert.Equal(t, 1, m.Count())
	_, err = m.Get(idle.ID)
	assert.ErrorIs(t, err, models.ErrSessionNotFound)
	_, err = m.Get(busy.ID)
	assert.NoError(t, err)
	assert.Equal(t, []string{idle.ID}, hub.closed)
}

func TestManager_ShutdownEndsAll(t *testing.T) {
	m, hub, _, _ := newTestManager(t)
	for i := 0; i < 3; i++ {
		_, _, err := m.Create()
		require.NoError(t, err)
	}
	m.Shutdown()
	assert.Equal(t, 0, m.Count())
	assert.Len(t, hub.closed, 3)
}

func TestClipPath(t *testing.T) {
	assert.Equal(t, "/api/v1/sessions/s1/audio/c1", ClipPath("s1", "c1"))
}
