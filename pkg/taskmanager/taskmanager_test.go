package taskmanager

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingNotifier struct {
	mu       sync.Mutex
	statuses []TaskStatus
	owners   []string
}

func (n *recordingNotifier) SendToUser(userID, messageType, topic string, payload interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.owners = append(n.owners, userID)
	if task, ok := payload.(Task); ok {
		n.statuses = append(n.statuses, task.Status)
	}
}

func (n *recordingNotifier) snapshot() ([]TaskStatus, []string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]TaskStatus{}, n.statuses...), append([]string{}, n.owners...)
}

func waitStatus(t *testing.T, tm *TaskManager, id uuid.UUID, want TaskStatus) Task {
	t.Helper()
	var task Task
	require.Eventually(t, func() bool {
		for _, e := range tm.snapshotAll() {
			if e.ID == id {
				task = e
				return e.Status == want
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
	return task
}

func (tm *TaskManager) snapshotAll() []Task {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	out := make([]Task, 0, len(tm.tasks))
	for _, e := range tm.tasks {
		out = append(out, e.task)
	}
	return out
}

func TestSubmit_CompletesAndNotifiesOwner(t *testing.T) {
	notifier := &recordingNotifier{}
	tm := New(Config{MaxTasks: 2}, notifier, zap.NewNop())

	id, err := tm.Submit("session-1", func(ctx context.Context) (interface{}, error) {
		return "done", nil
	})
	require.NoError(t, err)

	task := waitStatus(t, tm, id, TaskStatusCompleted)
	assert.Equal(t, "done", task.Result)
	assert.Equal(t, "session-1", task.OwnerID)

	require.NoError(t, tm.Shutdown(context.Background()))
	statuses, owners := notifier.snapshot()
	assert.Equal(t, []TaskStatus{TaskStatusRunning, TaskStatusCompleted}, statuses)
	for _, owner := range owners {
		assert.Equal(t, "session-1", owner)
	}
}

func TestSubmit_Failure(t *testing.T) {
	tm := New(Config{}, nil, zap.NewNop())

	id, err := tm.Submit("s", func(ctx context.Context) (interface{}, error) {
		return nil, errors.New("boom")
	})
	require.NoError(t, err)

	task := waitStatus(t, tm, id, TaskStatusFailed)
	assert.Equal(t, "boom", task.Message)
	assert.Nil(t, task.Result)
}

func TestSubmit_MaxActiveTasks(t *testing.T) {
	tm := New(Config{MaxTasks: 1}, nil, zap.NewNop())
	release := make(chan struct{})

	_, err := tm.Submit("s", func(ctx context.Context) (interface{}, error) {
		<-release
		return nil, nil
	})
	require.NoError(t, err)

	_, err = tm.Submit("s", func(ctx context.Context) (interface{}, error) { return nil, nil })
	assert.ErrorIs(t, err, ErrTooManyTasks)

	close(release)
	require.NoError(t, tm.Shutdown(context.Background()))
}

func TestCancelTask(t *testing.T) {
	tm := New(Config{}, nil, zap.NewNop())

	id, err := tm.Submit("s", func(ctx context.Context) (interface{}, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	require.NoError(t, err)

	require.NoError(t, tm.CancelTask(id))
	require.NoError(t, tm.Shutdown(context.Background()))

	task, err := tm.GetTask(id)
	require.NoError(t, err)
	assert.Equal(t, TaskStatusCancelled, task.Status)
	assert.Error(t, tm.CancelTask(id))
}

func TestTimeoutFailsTask(t *testing.T) {
	tm := New(Config{Timeout: 20 * time.Millisecond}, nil, zap.NewNop())

	id, err := tm.Submit("s", func(ctx context.Context) (interface{}, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	require.NoError(t, err)

	waitStatus(t, tm, id, TaskStatusFailed)
}

func TestGetTask_NotFoundAndCleanup(t *testing.T) {
	tm := New(Config{}, nil, zap.NewNop())

	_, err := tm.GetTask(uuid.New())
	assert.ErrorIs(t, err, ErrTaskNotFound)

	id, err := tm.Submit("s", func(ctx context.Context) (interface{}, error) { return 1, nil })
	require.NoError(t, err)
	waitStatus(t, tm, id, TaskStatusCompleted)

	assert.Equal(t, 0, tm.CleanupTasks(time.Hour))
	assert.Equal(t, 1, tm.CleanupTasks(0))
	_, err = tm.GetTask(id)
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestSubmitAfterShutdown(t *testing.T) {
	tm := New(Config{}, nil, zap.NewNop())
	require.NoError(t, tm.Shutdown(context.Background()))

	_, err := tm.Submit("s", func(ctx context.Context) (interface{}, error) { return nil, nil })
	assert.ErrorIs(t, err, ErrClosed)
}
