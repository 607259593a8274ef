package taskmanager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrTooManyTasks = errors.New("превышено максимальное количество активных задач")
	ErrTaskNotFound = errors.New("задача не найдена")
	ErrClosed       = errors.New("менеджер задач остановлен")
)

// Notifier отправляет владельцу задачи обновления статуса (WebSocket хаб).
type Notifier interface {
	SendToUser(userID, messageType, topic string, payload interface{})
}

// Task - снимок состояния асинхронной задачи.
type Task struct {
	ID        uuid.UUID   `json:"taskId"`
	OwnerID   string      `json:"ownerId,omitempty"`
	Status    TaskStatus  `json:"status"`
	Message   string      `json:"message,omitempty"`
	Result    interface{} `json:"result,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// TaskStatus представляет статус задачи
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// IsActive сообщает, что задача еще не завершена.
func (s TaskStatus) IsActive() bool {
	return s == TaskStatusPending || s == TaskStatusRunning
}

// TaskFunc - функция, выполняемая в задаче.
type TaskFunc func(ctx context.Context) (interface{}, error)

type entry struct {
	task   Task
	cancel context.CancelFunc
}

// TaskManager выполняет действия сессий в фоне и рассылает их статусы владельцам.
type TaskManager struct {
	mu       sync.RWMutex
	tasks    map[uuid.UUID]*entry
	maxTasks int
	timeout  time.Duration
	notifier Notifier
	closing  chan struct{}
	closed   bool
	wg       sync.WaitGroup
	logger   *zap.Logger
}

// Config содержит конфигурацию для TaskManager
type Config struct {
	MaxTasks int
	// Timeout ограничивает время выполнения одной задачи. 0 - без ограничения.
	Timeout time.Duration
}

// New создает новый экземпляр TaskManager
func New(cfg Config, notifier Notifier, logger *zap.Logger) *TaskManager {
	maxTasks := cfg.MaxTasks
	if maxTasks <= 0 {
		maxTasks = 10
	}
	return &TaskManager{
		tasks:    make(map[uuid.UUID]*entry),
		maxTasks: maxTasks,
		timeout:  cfg.Timeout,
		notifier: notifier,
		closing:  make(chan struct{}),
		logger:   logger.Named("TaskManager"),
	}
}

// Submit создает и запускает задачу от имени ownerID.
// Контекст задачи не зависит от контекста запроса.
func (tm *TaskManager) Submit(ownerID string, fn TaskFunc) (uuid.UUID, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if tm.closed {
		return uuid.Nil, ErrClosed
	}
	active := 0
	for _, e := range tm.tasks {
		if e.task.Status.IsActive() {
			active++
		}
	}
	if active >= tm.maxTasks {
		return uuid.Nil, ErrTooManyTasks
	}

	ctx, cancel := context.WithCancel(context.Background())
	if tm.timeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), tm.timeout)
	}
	now := time.Now()
	e := &entry{
		task: Task{
			ID:        uuid.New(),
			OwnerID:   ownerID,
			Status:    TaskStatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		},
		cancel: cancel,
	}
	tm.tasks[e.task.ID] = e

	tm.wg.Add(1)
	go func() {
		defer tm.wg.Done()
		defer cancel()
		tm.run(ctx, e.task.ID, fn)
	}()

	return e.task.ID, nil
}

func (tm *TaskManager) run(ctx context.Context, id uuid.UUID, fn TaskFunc) {
	log := tm.logger.With(zap.String("taskID", id.String()))
	tm.update(id, TaskStatusRunning, "Задача запущена", nil)

	result, err := fn(ctx)

	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		log.Info("Контекст задачи был отменен")
		tm.update(id, TaskStatusCancelled, "Задача отменена", nil)
	case ctx.Err() != nil:
		log.Error("Ошибка контекста задачи", zap.Error(ctx.Err()))
		tm.update(id, TaskStatusFailed, fmt.Sprintf("Ошибка контекста: %v", ctx.Err()), nil)
	case err != nil:
		log.Warn("Задача завершилась с ошибкой", zap.Error(err))
		tm.update(id, TaskStatusFailed, err.Error(), nil)
	default:
		log.Info("Задача успешно выполнена")
		tm.update(id, TaskStatusCompleted, "Задача успешно выполнена", result)
	}
}

// update меняет статус задачи и уведомляет владельца. Завершенные статусы не перезаписываются.
func (tm *TaskManager) update(id uuid.UUID, status TaskStatus, message string, result interface{}) {
	tm.mu.Lock()
	e, ok := tm.tasks[id]
	if !ok || !e.task.Status.IsActive() {
		tm.mu.Unlock()
		return
	}
	e.task.Status = status
	e.task.Message = message
	e.task.Result = result
	e.task.UpdatedAt = time.Now()
	snapshot := e.task
	tm.mu.Unlock()

	tm.notify(snapshot)
}

func (tm *TaskManager) notify(task Task) {
	if tm.notifier == nil || task.OwnerID == "" {
		return
	}
	tm.notifier.SendToUser(task.OwnerID, "task_update", "tasks", task)
}

// GetTask возвращает копию состояния задачи.
func (tm *TaskManager) GetTask(id uuid.UUID) (Task, error) {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	e, ok := tm.tasks[id]
	if !ok {
		return Task{}, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return e.task, nil
}

// CancelTask отменяет выполнение задачи
func (tm *TaskManager) CancelTask(id uuid.UUID) error {
	tm.mu.Lock()
	e, ok := tm.tasks[id]
	if !ok {
		tm.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if !e.task.Status.IsActive() {
		status := e.task.Status
		tm.mu.Unlock()
		return fmt.Errorf("невозможно отменить задачу в статусе %s", status)
	}
	e.cancel()
	e.task.Status = TaskStatusCancelled
	e.task.Message = "Задача отменена пользователем"
	e.task.UpdatedAt = time.Now()
	snapshot := e.task
	tm.mu.Unlock()

	tm.notify(snapshot)
	return nil
}

// CleanupTasks удаляет завершенные задачи, которые старше указанного времени
func (tm *TaskManager) CleanupTasks(age time.Duration) int {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	removed := 0
	now := time.Now()
	for id, e := range tm.tasks {
		if !e.task.Status.IsActive() && now.Sub(e.task.UpdatedAt) > age {
			delete(tm.tasks, id)
			removed++
		}
	}
	return removed
}

// RunCleanup периодически удаляет старые завершенные задачи до отмены ctx.
func (tm *TaskManager) RunCleanup(ctx context.Context, interval, age time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tm.closing:
			return
		case <-ticker.C:
			if n := tm.CleanupTasks(age); n > 0 {
				tm.logger.Debug("Старые задачи удалены", zap.Int("count", n))
			}
		}
	}
}

// Shutdown запрещает новые задачи и ожидает завершения текущих.
// По истечении ctx оставшиеся задачи отменяются.
func (tm *TaskManager) Shutdown(ctx context.Context) error {
	tm.mu.Lock()
	if !tm.closed {
		tm.closed = true
		close(tm.closing)
	}
	tm.mu.Unlock()

	done := make(chan struct{})
	go func() {
		tm.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		tm.mu.Lock()
		for _, e := range tm.tasks {
			if e.task.Status.IsActive() {
				e.cancel()
			}
		}
		tm.mu.Unlock()
		return errors.New("таймаут при ожидании завершения задач")
	}
}
