package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"story-canvas/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	workflowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "story_canvas_workflows_total",
			Help: "User-triggered workflows by name and result.",
		},
		[]string{"workflow", "result"},
	)
	bestEffortFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "story_canvas_best_effort_failures_total",
			Help: "Failures of best-effort side tasks that never affect the primary workflow.",
		},
		[]string{"task"},
	)
)

func observe(workflow string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	workflowsTotal.WithLabelValues(workflow, result).Inc()
}

// reply проверяет ответ модели: пустой ответ считается ошибкой.
func reply(text string, err error) (string, error) {
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyReply
	}
	return text, nil
}

func (o *Orchestrator) beginStory() {
	o.mu.Lock()
	o.storyCalls++
	o.publishStateLocked()
	o.mu.Unlock()
}

func (o *Orchestrator) endStory() {
	o.mu.Lock()
	o.storyCalls--
	o.publishStateLocked()
	o.mu.Unlock()
}

// OnDrawingFinished создает историю по рисунку. При ошибке состояние не меняется.
func (o *Orchestrator) OnDrawingFinished(ctx context.Context, snapshot models.DrawingSnapshot) (err error) {
	if snapshot.IsEmpty() {
		return fmt.Errorf("%w: empty drawing", models.ErrInvalidInput)
	}
	defer func() { observe("drawing_finished", err) }()

	o.mu.Lock()
	currentStory := ""
	if o.story != nil {
		currentStory = o.story.Content
	}
	history := o.historyLocked(false)
	o.mu.Unlock()

	o.beginStory()
	defer o.endStory()

	content, err := reply(o.stories.GenerateStory(ctx, snapshot, currentStory, history))
	if err != nil {
		o.logger.Error("Failed to generate story", zap.Error(err))
		return err
	}

	o.mu.Lock()
	snap := snapshot
	o.current = &snap
	o.replaceStoryLocked(content)
	if o.guiding {
		o.appendLocked(models.RoleUser, DrawingFinishedMessage)
	}
	o.appendLocked(models.RoleAssistant, CelebrationMessage)
	o.mu.Unlock()

	o.logger.Info("Story generated", zap.Int("storyRunes", len([]rune(content))))

	if o.guiding {
		o.askGuidingQuestions(ctx, snapshot, content)
	}
	return nil
}

// askGuidingQuestions запускает необязательный дополнительный запрос. Его ошибка
// попадает только в лог, метрики и task.update, но не в результат основного сценария.
func (o *Orchestrator) askGuidingQuestions(ctx context.Context, snapshot models.DrawingSnapshot, story string) {
	_, err := o.tasks.SubmitTaskWithOwner(ctx, taskGuidingQuestions, func(taskCtx context.Context, _ interface{}) (interface{}, error) {
		questions, err := reply(o.stories.GuidingQuestions(taskCtx, snapshot, story))
		if err != nil {
			bestEffortFailures.WithLabelValues(taskGuidingQuestions).Inc()
			o.logger.Warn("Guiding questions failed", zap.Error(err))
			return nil, err
		}
		o.mu.Lock()
		o.appendLocked(models.RoleAssistant, questions)
		o.mu.Unlock()
		return nil, nil
	}, nil, o.sessionID)
	if err != nil {
		bestEffortFailures.WithLabelValues(taskGuidingQuestions).Inc()
		o.logger.Warn("Failed to schedule guiding questions", zap.Error(err))
	}
}

// OnDrawingUpdated обновляет историю по разнице между прошлым и новым рисунком.
// Без прошлого рисунка или истории работает как OnDrawingFinished.
func (o *Orchestrator) OnDrawingUpdated(ctx context.Context, snapshot models.DrawingSnapshot) (err error) {
	if snapshot.IsEmpty() {
		return fmt.Errorf("%w: empty drawing", models.ErrInvalidInput)
	}

	o.mu.Lock()
	previous := o.current
	story := o.story
	o.mu.Unlock()

	if previous == nil || story == nil {
		return o.OnDrawingFinished(ctx, snapshot)
	}
	defer func() { observe("drawing_updated", err) }()

	o.beginStory()
	defer o.endStory()

	content, err := reply(o.stories.UpdateStoryFromDrawing(ctx, *previous, snapshot, story.Content))
	if err != nil {
		o.logger.Error("Failed to update story from drawing", zap.Error(err))
		return err
	}

	o.mu.Lock()
	snap := snapshot
	o.current = &snap
	o.replaceStoryLocked(content)
	o.appendLocked(models.RoleSystem, DrawingUpdatedNote)
	o.mu.Unlock()
	return nil
}

// OnChatMessageSent сразу кладет сообщение ребенка в ленту, затем спрашивает модель.
// Ответ добавляется только при успехе.
func (o *Orchestrator) OnChatMessageSent(ctx context.Context, text string) (err error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("%w: empty message", models.ErrInvalidInput)
	}
	defer func() { observe("chat", err) }()

	completed := IsDrawingCompleted(text)

	o.mu.Lock()
	history := o.historyLocked(true)
	currentStory := ""
	if o.story != nil {
		currentStory = o.story.Content
	}
	o.appendLocked(models.RoleUser, text)
	o.chatCalls++
	o.publishStateLocked()
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.chatCalls--
		o.publishStateLocked()
		o.mu.Unlock()
	}()

	answer, err := reply(o.stories.Chat(ctx, text, history, currentStory, completed))
	if err != nil {
		o.logger.Error("Chat failed", zap.Error(err))
		return err
	}

	o.mu.Lock()
	o.appendLocked(models.RoleAssistant, answer)
	o.mu.Unlock()
	return nil
}

// OnStoryEdited заменяет текст истории правкой ребенка. Сеть не используется.
// Правка тем же текстом ничего не меняет.
func (o *Orchestrator) OnStoryEdited(text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: empty story", models.ErrInvalidInput)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.story == nil {
		return models.ErrStoryNotFound
	}
	if o.story.Content == text {
		return nil
	}
	o.replaceStoryLocked(text)
	return nil
}

// OnStorySyncFromChat переносит в историю идеи из последних сообщений чата.
func (o *Orchestrator) OnStorySyncFromChat(ctx context.Context) (err error) {
	o.mu.Lock()
	if o.story == nil {
		o.mu.Unlock()
		return models.ErrStoryNotFound
	}
	currentStory := o.story.Content
	history := o.historyLocked(true)
	var snapshot *models.DrawingSnapshot
	if o.current != nil {
		snap := *o.current
		snapshot = &snap
	}
	o.mu.Unlock()

	defer func() { observe("story_sync", err) }()

	o.beginStory()
	defer o.endStory()

	content, err := reply(o.stories.UpdateStoryFromChat(ctx, currentStory, history, snapshot))
	if err != nil {
		o.logger.Error("Failed to update story from chat", zap.Error(err))
		return err
	}

	o.mu.Lock()
	o.replaceStoryLocked(content)
	o.appendLocked(models.RoleSystem, ChatSyncedNote)
	o.mu.Unlock()
	return nil
}
