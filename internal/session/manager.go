package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"story-canvas/internal/audio"
	"story-canvas/internal/config"
	"story-canvas/internal/models"
	"story-canvas/internal/narration"
	"story-canvas/internal/orchestrator"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	sessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "story_canvas_sessions_active",
		Help: "Drawing sessions held in memory.",
	})
	sessionsEvicted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "story_canvas_sessions_evicted_total",
		Help: "Sessions removed after being idle.",
	})
)

// Hub - рассылка событий, которую использует сессия.
type Hub interface {
	Publish(sessionID, eventType string, payload interface{})
	CloseSession(sessionID string)
}

// Tasks - фоновые задачи, которыми владеют сессии.
type Tasks interface {
	orchestrator.TaskRunner
	CancelOwnerTasks(ownerID string) int
	CleanupTasks(age time.Duration) int
}

// ClipPath возвращает путь, по которому клиент сессии забирает аудиофрагмент.
func ClipPath(sessionID, clipID string) string {
	return "/api/v1/sessions/" + sessionID + "/audio/" + clipID
}

// Session - все, что принадлежит одному ребенку за одним холстом.
type Session struct {
	ID           string
	CreatedAt    time.Time
	Orchestrator *orchestrator.Orchestrator
	Audio        audio.Arbiter
	Clips        *audio.ClipStore
	Narrator     *narration.Narrator

	mu       sync.Mutex
	lastSeen time.Time
}

// Touch отмечает активность сессии.
func (s *Session) Touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

// LastSeen - время последней активности.
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Manager хранит сессии в памяти процесса и удаляет простаивающие.
type Manager struct {
	stories orchestrator.StoryService
	videos  orchestrator.VideoGenerator
	tts     narration.Synthesizer
	tasks   Tasks
	hub     Hub
	tokens  *TokenIssuer

	cfg      config.SessionConfig
	guiding  bool
	fallback bool
	now      func() time.Time
	logger   *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager создает Manager.
func NewManager(
	stories orchestrator.StoryService,
	videos orchestrator.VideoGenerator,
	tts narration.Synthesizer,
	tasks Tasks,
	hub Hub,
	tokens *TokenIssuer,
	cfg *config.Config,
	logger *zap.Logger,
) *Manager {
	return &Manager{
		stories:  stories,
		videos:   videos,
		tts:      tts,
		tasks:    tasks,
		hub:      hub,
		tokens:   tokens,
		cfg:      cfg.Session,
		guiding:  cfg.Story.GuidingQuestions,
		fallback: cfg.Tencent.SpeechFallback,
		now:      time.Now,
		logger:   logger.Named("SessionManager"),
		sessions: make(map[string]*Session),
	}
}

// Create создает сессию и выпускает для нее токен.
func (m *Manager) Create() (*Session, string, error) {
	id := uuid.NewString()
	token, err := m.tokens.Issue(id)
	if err != nil {
		return nil, "", err
	}

	clips := audio.NewClipStore(m.cfg.ClipTTL)
	arbiter := audio.NewManager(audio.NewEventPlayer(id, m.hub), m.logger)
	s := &Session{
		ID:        id,
		CreatedAt: m.now(),
		Orchestrator: orchestrator.NewOrchestrator(id, m.stories, m.videos, m.tasks, m.hub,
			orchestrator.Options{GuidingQuestions: m.guiding}, m.logger),
		Audio: arbiter,
		Clips: clips,
		Narrator: narration.NewNarrator(m.tts, clips, arbiter,
			func(clipID string) string { return ClipPath(id, clipID) }, m.fallback, m.logger),
		lastSeen: m.now(),
	}

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()
	sessionsActive.Inc()

	m.logger.Info("Session created", zap.String("session_id", id))
	return s, token, nil
}

// Get возвращает сессию и отмечает ее активность.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrSessionNotFound, id)
	}
	s.Touch(m.now())
	return s, nil
}

// End завершает сессию: отменяет ее задачи, глушит звук и закрывает соединения.
func (m *Manager) End(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", models.ErrSessionNotFound, id)
	}
	m.release(s)
	m.logger.Info("Session ended", zap.String("session_id", id))
	return nil
}

func (m *Manager) release(s *Session) {
	sessionsActive.Dec()
	cancelled := m.tasks.CancelOwnerTasks(s.ID)
	s.Audio.StopAll()
	m.hub.CloseSession(s.ID)
	if cancelled > 0 {
		m.logger.Info("Cancelled session tasks", zap.String("session_id", s.ID), zap.Int("tasks", cancelled))
	}
}

// Count - число активных сессий.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep удаляет простаивающие сессии, устаревшие аудиофрагменты и завершенные задачи.
func (m *Manager) Sweep() int {
	now := m.now()

	var idle []*Session
	m.mu.Lock()
	for id, s := range m.sessions {
		if m.cfg.IdleTTL > 0 && now.Sub(s.LastSeen()) > m.cfg.IdleTTL {
			idle = append(idle, s)
			delete(m.sessions, id)
		}
	}
	live := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		live = append(live, s)
	}
	m.mu.Unlock()

	for _, s := range idle {
		m.release(s)
		sessionsEvicted.Inc()
		m.logger.Info("Idle session evicted", zap.String("session_id", s.ID), zap.Time("lastSeen", s.LastSeen()))
	}

	clips := 0
	for _, s := range live {
		clips += s.Clips.Sweep()
	}
	tasks := m.tasks.CleanupTasks(m.cfg.SweepInterval)

	if len(idle) > 0 || clips > 0 || tasks > 0 {
		m.logger.Debug("Sweep finished", zap.Int("sessions", len(idle)), zap.Int("clips", clips), zap.Int("tasks", tasks))
	}
	return len(idle)
}

// Run периодически вызывает Sweep, пока не отменен ctx.
func (m *Manager) Run(ctx context.Context) {
	interval := m.cfg.SweepInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// Shutdown завершает все сессии.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for id, s := range m.sessions {
		all = append(all, s)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, s := range all {
		m.release(s)
	}
}
