package taskmanager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	// ErrTooManyTasks - у владельца уже максимум активных задач
	ErrTooManyTasks = errors.New("too many active tasks")
	// ErrTaskNotFound - задача не найдена
	ErrTaskNotFound = errors.New("task not found")
	// ErrTaskNotActive - задача уже завершена
	ErrTaskNotActive = errors.New("task is not active")
	// ErrManagerClosed - менеджер остановлен и не принимает задачи
	ErrManagerClosed = errors.New("task manager is closed")
)

// EventTaskUpdate - тип уведомления об изменении статуса задачи.
const EventTaskUpdate = "task.update"

var (
	tasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "story_canvas_tasks_total",
			Help: "Background tasks by name and terminal status.",
		},
		[]string{"name", "status"},
	)
	tasksActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "story_canvas_tasks_active",
		Help: "Background tasks pending or running.",
	})
)

// ITaskManager определяет интерфейс для управления задачами
type ITaskManager interface {
	SubmitTaskWithOwner(ctx context.Context, name string, taskFunc TaskFunc, params interface{}, ownerID string) (uuid.UUID, error)
	GetTask(taskID uuid.UUID) (Task, error)
	CancelTask(taskID uuid.UUID) error
	CancelOwnerTasks(ownerID string) int
	RegisterCallback(taskID uuid.UUID, callback TaskCallback) error
	UnregisterCallbacks(taskID uuid.UUID)
	CleanupTasks(age time.Duration) int
	SetNotifier(notifier Notifier)
	Shutdown(ctx context.Context) error
}

// Notifier доставляет уведомления владельцу задачи (сессии).
type Notifier interface {
	Publish(ownerID, eventType string, payload interface{})
}

// Task представляет асинхронную задачу
type Task struct {
	ID        uuid.UUID
	Name      string
	OwnerID   string
	Status    TaskStatus
	Progress  int
	Message   string
	Result    interface{}
	Err       error
	CreatedAt time.Time
	UpdatedAt time.Time

	cancel context.CancelFunc
}

// TaskStatus представляет статус задачи
type TaskStatus string

// Возможные статусы задач
const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// IsActive - задача еще не в терминальном статусе.
func (s TaskStatus) IsActive() bool {
	return s == TaskStatusPending || s == TaskStatusRunning
}

// TaskFunc представляет функцию, выполняемую в задаче
type TaskFunc func(ctx context.Context, params interface{}) (interface{}, error)

// TaskCallback вызывается при изменении статуса задачи. Получает копию задачи.
type TaskCallback func(task Task)

// TaskUpdate - полезная нагрузка уведомления task.update.
type TaskUpdate struct {
	TaskID    uuid.UUID   `json:"task_id"`
	Name      string      `json:"name"`
	Status    TaskStatus  `json:"status"`
	Progress  int         `json:"progress"`
	Message   string      `json:"message"`
	Result    interface{} `json:"result,omitempty"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Config содержит конфигурацию для TaskManager
type Config struct {
	// MaxTasksPerOwner - лимит активных задач одного владельца
	MaxTasksPerOwner int
}

// TaskManager управляет асинхронными задачами
type TaskManager struct {
	tasks     map[uuid.UUID]*Task
	mu        sync.RWMutex
	maxTasks  int
	callbacks map[uuid.UUID][]TaskCallback
	closing   chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
	notifier  Notifier
	logger    *zap.Logger
}

// New создает новый экземпляр TaskManager
func New(cfg Config, logger *zap.Logger) *TaskManager {
	maxTasks := cfg.MaxTasksPerOwner
	if maxTasks <= 0 {
		maxTasks = 4
	}

	return &TaskManager{
		tasks:     make(map[uuid.UUID]*Task),
		maxTasks:  maxTasks,
		callbacks: make(map[uuid.UUID][]TaskCallback),
		closing:   make(chan struct{}),
		logger:    logger.Named("TaskManager"),
	}
}

// SetNotifier устанавливает получателя уведомлений task.update
func (tm *TaskManager) SetNotifier(notifier Notifier) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.notifier = notifier
}

// SubmitTaskWithOwner создает и запускает новую задачу владельца.
// Контекст задачи наследует значения ctx, но не его отмену.
func (tm *TaskManager) SubmitTaskWithOwner(ctx context.Context, name string, taskFunc TaskFunc, params interface{}, ownerID string) (uuid.UUID, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	select {
	case <-tm.closing:
		return uuid.UUID{}, ErrManagerClosed
	default:
	}

	activeTasks := 0
	for _, task := range tm.tasks {
		if task.OwnerID == ownerID && task.Status.IsActive() {
			activeTasks++
		}
	}
	if activeTasks >= tm.maxTasks {
		return uuid.UUID{}, fmt.Errorf("%w: owner %s has %d", ErrTooManyTasks, ownerID, activeTasks)
	}

	taskID := uuid.New()
	taskCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	now := time.Now()
	task := &Task{
		ID:        taskID,
		Name:      name,
		OwnerID:   ownerID,
		Status:    TaskStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
		cancel:    cancel,
	}
	tm.tasks[taskID] = task
	tasksActive.Inc()

	taskCtx = context.WithValue(taskCtx, reporterKey{}, &reporter{tm: tm, task: task})

	tm.wg.Add(1)
	go func() {
		defer tm.wg.Done()
		defer cancel()

		tm.runTask(taskCtx, task, taskFunc, params)
	}()

	return taskID, nil
}

// runTask выполняет задачу и обновляет ее статус
func (tm *TaskManager) runTask(ctx context.Context, task *Task, taskFunc TaskFunc, params interface{}) {
	log := tm.logger.With(zap.String("taskID", task.ID.String()), zap.String("task", task.Name), zap.String("ownerID", task.OwnerID))
	tm.updateTaskStatus(task, TaskStatusRunning, 0, "Task started", nil, nil)

	result, err := taskFunc(ctx, params)

	if ctx.Err() != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			log.Info("Task context was cancelled")
			tm.updateTaskStatus(task, TaskStatusCancelled, 100, "Task cancelled", nil, ctx.Err())
		} else {
			log.Error("Task context error", zap.Error(ctx.Err()))
			tm.updateTaskStatus(task, TaskStatusFailed, 100, fmt.Sprintf("Context error: %v", ctx.Err()), nil, ctx.Err())
		}
		return
	}

	if err != nil {
		log.Error("Task failed", zap.Error(err))
		tm.updateTaskStatus(task, TaskStatusFailed, 100, fmt.Sprintf("Error: %v", err), nil, err)
	} else {
		log.Info("Task completed")
		tm.updateTaskStatus(task, TaskStatusCompleted, 100, "Task completed", result, nil)
	}
}

// updateTaskStatus обновляет статус задачи и отправляет уведомления.
// Терминальный статус не перезаписывается.
func (tm *TaskManager) updateTaskStatus(task *Task, status TaskStatus, progress int, message string, result interface{}, taskErr error) {
	tm.mu.Lock()
	if !task.Status.IsActive() {
		tm.mu.Unlock()
		return
	}

	task.Status = status
	task.Progress = progress
	task.Message = message
	task.UpdatedAt = time.Now()
	if result != nil {
		task.Result = result
	}
	if taskErr != nil {
		task.Err = taskErr
	}
	if !status.IsActive() {
		tasksActive.Dec()
		tasksTotal.WithLabelValues(task.Name, string(status)).Inc()
	}

	snapshot := *task
	callbacks := append([]TaskCallback(nil), tm.callbacks[task.ID]...)
	notifier := tm.notifier
	tm.mu.Unlock()

	for _, callback := range callbacks {
		go callback(snapshot)
	}

	if notifier != nil && snapshot.OwnerID != "" {
		update := TaskUpdate{
			TaskID:    snapshot.ID,
			Name:      snapshot.Name,
			Status:    snapshot.Status,
			Progress:  snapshot.Progress,
			Message:   snapshot.Message,
			UpdatedAt: snapshot.UpdatedAt,
		}
		if snapshot.Status == TaskStatusCompleted {
			update.Result = snapshot.Result
		}
		notifier.Publish(snapshot.OwnerID, EventTaskUpdate, update)
	}

	tm.logger.Debug("Task status updated",
		zap.String("taskID", snapshot.ID.String()),
		zap.String("newStatus", string(snapshot.Status)),
		zap.Int("progress", snapshot.Progress),
		zap.String("message", snapshot.Message),
	)
}

// GetTask возвращает копию задачи по ID
func (tm *TaskManager) GetTask(taskID uuid.UUID) (Task, error) {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	task, ok := tm.tasks[taskID]
	if !ok {
		return Task{}, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	return *task, nil
}

// CancelTask отменяет выполнение задачи. Статус cancelled выставит runTask.
func (tm *TaskManager) CancelTask(taskID uuid.UUID) error {
	tm.mu.RLock()
	task, ok := tm.tasks[taskID]
	if !ok {
		tm.mu.RUnlock()
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	status, cancel := task.Status, task.cancel
	tm.mu.RUnlock()

	if !status.IsActive() {
		return fmt.Errorf("%w: status %s", ErrTaskNotActive, status)
	}
	cancel()
	return nil
}

// CancelOwnerTasks отменяет все активные задачи владельца и возвращает их число.
func (tm *TaskManager) CancelOwnerTasks(ownerID string) int {
	tm.mu.RLock()
	var cancels []context.CancelFunc
	for _, task := range tm.tasks {
		if task.OwnerID == ownerID && task.Status.IsActive() {
			cancels = append(cancels, task.cancel)
		}
	}
	tm.mu.RUnlock()

	for _, cancel := range cancels {
		cancel()
	}
	return len(cancels)
}

// RegisterCallback регистрирует функцию обратного вызова для задачи
func (tm *TaskManager) RegisterCallback(taskID uuid.UUID, callback TaskCallback) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if _, ok := tm.tasks[taskID]; !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	tm.callbacks[taskID] = append(tm.callbacks[taskID], callback)
	return nil
}

// UnregisterCallbacks удаляет все коллбэки для задачи
func (tm *TaskManager) UnregisterCallbacks(taskID uuid.UUID) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	delete(tm.callbacks, taskID)
}

// CleanupTasks удаляет завершенные задачи, которые старше указанного времени
func (tm *TaskManager) CleanupTasks(age time.Duration) int {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	now := time.Now()
	removed := 0
	for id, task := range tm.tasks {
		if !task.Status.IsActive() && now.Sub(task.UpdatedAt) > age {
			delete(tm.tasks, id)
			delete(tm.callbacks, id)
			removed++
		}
	}
	return removed
}

// Shutdown перестает принимать задачи, отменяет активные и ждет их завершения
func (tm *TaskManager) Shutdown(ctx context.Context) error {
	tm.closeOnce.Do(func() { close(tm.closing) })

	tm.mu.RLock()
	for _, task := range tm.tasks {
		if task.Status.IsActive() {
			task.cancel()
		}
	}
	tm.mu.RUnlock()

	done := make(chan struct{})
	go func() {
		tm.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("timed out waiting for tasks to finish: %w", ctx.Err())
	}
}

type reporterKey struct{}

type reporter struct {
	tm   *TaskManager
	task *Task
}

// ReportProgress обновляет прогресс текущей задачи из ее TaskFunc.
// Вне задачи ничего не делает.
func ReportProgress(ctx context.Context, progress int, message string) {
	r, ok := ctx.Value(reporterKey{}).(*reporter)
	if !ok {
		return
	}
	r.tm.updateTaskStatus(r.task, TaskStatusRunning, progress, message, nil, nil)
}
