package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"story-canvas/internal/models"
	"story-canvas/internal/video"
	"story-canvas/pkg/taskmanager"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Тексты, которые видит ребенок.
const (
	GreetingMessage        = "Hello! I'm StoryBuddy. Draw something to start our adventure!"
	CelebrationMessage     = "Wow! Your drawing is beautiful! Let me create a story for you!"
	DrawingFinishedMessage = "I finished my drawing!"
	DrawingUpdatedNote     = "Drawing updated, and the story has evolved!"
	ChatSyncedNote         = "The story now includes ideas from our chat!"
	VideoReadyNote         = "Magic video generated! Go check it out."

	VideoStatusStarting  = "Starting AI video engine..."
	VideoStatusRendering = "Rendering video, this may take 30-60 seconds..."
	VideoStatusDone      = "Generation successful!"

	videoFailedPrefix = "Failed to generate video: "
)

// Имена фоновых задач.
const (
	taskVideo            = "video"
	taskGuidingQuestions = "guiding_questions"
)

// ErrEmptyReply - модель вернула пустой ответ.
var ErrEmptyReply = errors.New("AI returned an empty reply")

// StoryService - истории и чат поверх модели.
type StoryService interface {
	GenerateStory(ctx context.Context, snapshot models.DrawingSnapshot, currentStory string, history []models.Message) (string, error)
	UpdateStoryFromDrawing(ctx context.Context, previous, current models.DrawingSnapshot, currentStory string) (string, error)
	Chat(ctx context.Context, message string, history []models.Message, currentStory string, drawingCompleted bool) (string, error)
	GuidingQuestions(ctx context.Context, snapshot models.DrawingSnapshot, story string) (string, error)
	UpdateStoryFromChat(ctx context.Context, currentStory string, history []models.Message, snapshot *models.DrawingSnapshot) (string, error)
}

// VideoGenerator отправляет задачу генерации и ждет результат.
type VideoGenerator interface {
	Generate(ctx context.Context, req video.Request) (string, error)
}

// TaskRunner запускает фоновые задачи сессии.
type TaskRunner interface {
	SubmitTaskWithOwner(ctx context.Context, name string, taskFunc taskmanager.TaskFunc, params interface{}, ownerID string) (uuid.UUID, error)
	CancelTask(taskID uuid.UUID) error
}

// Publisher доставляет события клиентам сессии.
type Publisher interface {
	Publish(sessionID, eventType string, payload interface{})
}

// Flags - флаги занятости и краткое состояние для события state.changed.
type Flags struct {
	StoryBusy   bool   `json:"story_busy"`
	ChatBusy    bool   `json:"chat_busy"`
	VideoBusy   bool   `json:"video_busy"`
	HasStory    bool   `json:"has_story"`
	HasDrawing  bool   `json:"has_drawing"`
	VideoStatus string `json:"video_status"`
}

// State - неизменяемый снимок состояния сессии.
type State struct {
	SessionID string           `json:"session_id"`
	Story     *models.Story    `json:"story,omitempty"`
	Messages  []models.Message `json:"messages"`
	VideoURL  string           `json:"video_url,omitempty"`
	Flags
}

// Options - настройки Orchestrator.
type Options struct {
	// GuidingQuestions включает расширенный сценарий завершения рисунка
	GuidingQuestions bool
	// Now - источник времени, для тестов
	Now func() time.Time
}

// Orchestrator выполняет пользовательские сценарии и сводит их результаты в общее состояние.
// Сетевые вызовы никогда не выполняются под мьютексом.
type Orchestrator struct {
	sessionID string
	stories   StoryService
	videos    VideoGenerator
	tasks     TaskRunner
	events    Publisher
	guiding   bool
	now       func() time.Time
	logger    *zap.Logger

	mu       sync.Mutex
	story    *models.Story
	messages []models.Message
	lastAt   time.Time

	// current - последний принятый снимок, при обновлении он становится прошлым
	current *models.DrawingSnapshot

	storyCalls int
	chatCalls  int

	videoBusy   bool
	videoURL    string
	videoStatus string
	videoSeq    uint64
	videoTaskID uuid.UUID
}

// NewOrchestrator создает Orchestrator сессии и кладет в ленту приветствие.
func NewOrchestrator(sessionID string, stories StoryService, videos VideoGenerator, tasks TaskRunner, events Publisher, opts Options, logger *zap.Logger) *Orchestrator {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	o := &Orchestrator{
		sessionID: sessionID,
		stories:   stories,
		videos:    videos,
		tasks:     tasks,
		events:    events,
		guiding:   opts.GuidingQuestions,
		now:       now,
		logger:    logger.Named("Orchestrator").With(zap.String("session_id", sessionID)),
	}
	o.mu.Lock()
	o.appendLocked(models.RoleAssistant, GreetingMessage)
	o.mu.Unlock()
	return o
}

// SessionID возвращает id сессии.
func (o *Orchestrator) SessionID() string {
	return o.sessionID
}

// State возвращает копию текущего состояния.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()

	st := State{
		SessionID: o.sessionID,
		Messages:  append([]models.Message(nil), o.messages...),
		VideoURL:  o.videoURL,
		Flags:     o.flagsLocked(),
	}
	if o.story != nil {
		story := *o.story
		st.Story = &story
	}
	return st
}

// Message ищет сообщение ленты по id.
func (o *Orchestrator) Message(id string) (models.Message, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, m := range o.messages {
		if m.ID == id {
			return m, true
		}
	}
	return models.Message{}, false
}

func (o *Orchestrator) flagsLocked() Flags {
	return Flags{
		StoryBusy:   o.storyCalls > 0,
		ChatBusy:    o.chatCalls > 0,
		VideoBusy:   o.videoBusy,
		HasStory:    o.story != nil,
		HasDrawing:  o.current != nil,
		VideoStatus: o.videoStatus,
	}
}

// appendLocked добавляет сообщение в ленту. Время сообщений строго возрастает.
func (o *Orchestrator) appendLocked(role models.Role, content string) models.Message {
	at := o.now()
	if !at.After(o.lastAt) {
		at = o.lastAt.Add(time.Microsecond)
	}
	o.lastAt = at

	msg := models.Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: at,
	}
	o.messages = append(o.messages, msg)
	o.publishLocked(eventMessageAppended, msg)
	return msg
}

func (o *Orchestrator) replaceStoryLocked(content string) {
	o.story = &models.Story{Content: content, LastModified: o.now()}
	o.publishLocked(eventStoryReplaced, *o.story)
}

// publishLocked публикует событие под мьютексом, чтобы порядок событий совпадал с порядком изменений.
func (o *Orchestrator) publishLocked(eventType string, payload interface{}) {
	if o.events != nil {
		o.events.Publish(o.sessionID, eventType, payload)
	}
}

func (o *Orchestrator) publishStateLocked() {
	o.publishLocked(eventStateChanged, o.flagsLocked())
}

// historyLocked копирует ленту. withSystem=false исключает системные заметки.
func (o *Orchestrator) historyLocked(withSystem bool) []models.Message {
	out := make([]models.Message, 0, len(o.messages))
	for _, m := range o.messages {
		if !withSystem && m.Role == models.RoleSystem {
			continue
		}
		out = append(out, m)
	}
	return out
}

// Имена событий совпадают с events.Type*.
const (
	eventStateChanged    = "state.changed"
	eventMessageAppended = "message.appended"
	eventStoryReplaced   = "story.replaced"
	eventVideoStatus     = "video.status"
	eventVideoReady      = "video.ready"
	eventAlert           = "alert"
)
