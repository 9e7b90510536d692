package audio

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	playbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "story_canvas_audio_playbacks_total",
			Help: "Playbacks started, by kind and result.",
		},
		[]string{"kind", "result"},
	)
	playbacksPreempted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "story_canvas_audio_playbacks_preempted_total",
		Help: "Playbacks stopped because another playback started.",
	})
)

// Kind - источник звука.
type Kind string

const (
	KindURL    Kind = "url"    // аудиофайл по адресу
	KindSpeech Kind = "speech" // синтез речи на устройстве
)

// State - состояние воспроизведения.
type State string

const (
	StatePlaying State = "playing"
	StateStopped State = "stopped"
	StateEnded   State = "ended"
)

// Playback - дескриптор одного воспроизведения. Done закрывается,
// когда воспроизведение остановлено или закончилось само.
type Playback interface {
	ID() string
	Kind() Kind
	Source() string
	State() State
	StartedAt() time.Time
	Done() <-chan struct{}
}

// Arbiter гарантирует, что одновременно звучит не больше одного воспроизведения.
type Arbiter interface {
	// StopAll останавливает текущее воспроизведение и отменяет синтез речи. Идемпотентен.
	StopAll()
	// PlayFromURL сначала вызывает StopAll, затем запускает новый источник.
	// Ошибка запуска возвращается вызывающему.
	PlayFromURL(ctx context.Context, locator string) (Playback, error)
	// Speak - то же для синтеза речи на устройстве.
	Speak(ctx context.Context, text string) (Playback, error)
	// Current возвращает активное воспроизведение или nil.
	Current() Playback
	// Ended сообщает, что воспроизведение закончилось само.
	Ended(playbackID string)
}

type handle struct {
	id        string
	kind      Kind
	source    string
	startedAt time.Time

	mu    sync.Mutex
	state State
	done  chan struct{}
}

func (h *handle) ID() string            { return h.id }
func (h *handle) Kind() Kind            { return h.kind }
func (h *handle) Source() string        { return h.source }
func (h *handle) StartedAt() time.Time  { return h.startedAt }
func (h *handle) Done() <-chan struct{} { return h.done }

func (h *handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *handle) finish(state State) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != StatePlaying {
		return false
	}
	h.state = state
	close(h.done)
	return true
}

// Manager - реализация Arbiter поверх Player. Один Manager на сессию.
type Manager struct {
	mu      sync.Mutex
	player  Player
	current *handle
	logger  *zap.Logger
}

// NewManager создает Manager.
func NewManager(player Player, logger *zap.Logger) *Manager {
	return &Manager{
		player: player,
		logger: logger.Named("AudioManager"),
	}
}

var _ Arbiter = (*Manager)(nil)

func (m *Manager) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
}

// stopLocked вызывается под m.mu.
func (m *Manager) stopLocked() {
	if cur := m.current; cur != nil {
		m.current = nil
		if cur.finish(StateStopped) {
			m.player.Stop(cur.id)
			m.logger.Debug("Playback stopped", zap.String("playbackID", cur.id))
		}
	}
	m.player.CancelSpeech()
}

func (m *Manager) PlayFromURL(ctx context.Context, locator string) (Playback, error) {
	return m.start(ctx, KindURL, locator)
}

func (m *Manager) Speak(ctx context.Context, text string) (Playback, error) {
	return m.start(ctx, KindSpeech, text)
}

func (m *Manager) start(ctx context.Context, kind Kind, source string) (Playback, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		playbacksPreempted.Inc()
	}
	m.stopLocked()

	h := &handle{
		id:        uuid.NewString(),
		kind:      kind,
		source:    source,
		startedAt: time.Now(),
		state:     StatePlaying,
		done:      make(chan struct{}),
	}
	if err := m.player.Start(ctx, h.id, kind, source); err != nil {
		playbacksTotal.WithLabelValues(string(kind), "error").Inc()
		m.logger.Warn("Failed to start playback", zap.String("kind", string(kind)), zap.Error(err))
		return nil, err
	}
	m.current = h
	playbacksTotal.WithLabelValues(string(kind), "started").Inc()
	m.logger.Debug("Playback started", zap.String("playbackID", h.id), zap.String("kind", string(kind)))
	return h, nil
}

func (m *Manager) Current() Playback {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil
	}
	return m.current
}

func (m *Manager) Ended(playbackID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil || m.current.id != playbackID {
		return
	}
	m.current.finish(StateEnded)
	m.current = nil
}
