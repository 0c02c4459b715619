package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"stream-archiver/internal/controller"
	"stream-archiver/internal/database"
	"stream-archiver/pkg/models"
)

// runnerFunc adapts a function to the Runner interface.
type runnerFunc func(ctx context.Context, taskID int64) controller.Outcome

func (f runnerFunc) Run(ctx context.Context, taskID int64) controller.Outcome {
	return f(ctx, taskID)
}

// recordingRunner remembers the order tasks were run in.
type recordingRunner struct {
	mu      sync.Mutex
	ran     []int64
	outcome controller.Outcome
}

func (r *recordingRunner) Run(ctx context.Context, taskID int64) controller.Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ran = append(r.ran, taskID)
	return r.outcome
}

func (r *recordingRunner) runs() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.ran...)
}

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func createTask(t *testing.T, db *database.DB, status models.TaskStatus) *models.Task {
	t.Helper()
	task := &models.Task{
		Mode:      models.ModeStatic,
		SourceURL: "http://example.com/file",
		Status:    status,
	}
	require.NoError(t, db.CreateTask(task))
	return task
}

func TestQueueAndProcess(t *testing.T) {
	db := newTestDB(t)
	task := createTask(t, db, models.StatusPending)

	runner := &recordingRunner{outcome: controller.Success}
	s := New(db, runner)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Start(ctx)

	s.Queue(task.ID)

	require.Eventually(t, func() bool {
		return len(runner.runs()) == 1
	}, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, []int64{task.ID}, runner.runs())
}

func TestQueueFullDropsTask(t *testing.T) {
	db := newTestDB(t)
	s := New(db, runnerFunc(func(context.Context, int64) controller.Outcome {
		return controller.Success
	}))

	// Without a running Start loop the buffer fills and further tasks
	// are dropped instead of blocking the caller.
	for i := 0; i < 200; i++ {
		s.Queue(int64(i))
	}
}

func TestRestoreResetsOrphansAndQueuesPending(t *testing.T) {
	db := newTestDB(t)

	orphan := createTask(t, db, models.StatusDownloading)
	older := createTask(t, db, models.StatusPending)
	waiting := createTask(t, db, models.StatusWaitingForStream)
	createTask(t, db, models.StatusDownloaded)

	runner := &recordingRunner{outcome: controller.Success}
	s := New(db, runner)
	require.NoError(t, s.Restore())

	got, err := db.GetTask(orphan.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusPending, got.Status)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Start(ctx)

	require.Eventually(t, func() bool {
		return len(runner.runs()) == 3
	}, 2*time.Second, 5*time.Millisecond)

	// Oldest first; the completed task is not re-queued.
	require.Equal(t, []int64{orphan.ID, older.ID, waiting.ID}, runner.runs())
}

func TestRetryableOutcomeBumpsRetryCount(t *testing.T) {
	db := newTestDB(t)
	task := createTask(t, db, models.StatusPending)

	var attempts int
	s := New(db, runnerFunc(func(ctx context.Context, taskID int64) controller.Outcome {
		attempts++
		if attempts < 2 {
			return controller.Retryable
		}
		return controller.Success
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Start(ctx)
	s.Queue(task.ID)

	require.Eventually(t, func() bool {
		return attempts == 2
	}, 10*time.Second, 10*time.Millisecond)

	got, err := db.GetTask(task.ID)
	require.NoError(t, err)
	require.Equal(t, 1, got.RetryCount)
}

func TestFailureOutcomeDoesNotRetry(t *testing.T) {
	db := newTestDB(t)
	task := createTask(t, db, models.StatusPending)

	runner := &recordingRunner{outcome: controller.Failure}
	s := New(db, runner)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Start(ctx)
	s.Queue(task.ID)

	require.Eventually(t, func() bool {
		return len(runner.runs()) == 1
	}, 2*time.Second, 5*time.Millisecond)

	// No retry follows a permanent failure.
	time.Sleep(50 * time.Millisecond)
	require.Len(t, runner.runs(), 1)
}

func TestCancelTaskStopsCurrentRun(t *testing.T) {
	db := newTestDB(t)
	task := createTask(t, db, models.StatusPending)

	started := make(chan struct{})
	s := New(db, nil)
	s.runner = runnerFunc(func(ctx context.Context, taskID int64) controller.Outcome {
		close(started)
		<-ctx.Done()
		return controller.Success
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Start(ctx)
	s.Queue(task.ID)

	<-started
	require.Equal(t, task.ID, s.CurrentTaskID())
	require.NoError(t, s.CancelTask(task.ID))

	require.Eventually(t, func() bool {
		return s.CurrentTaskID() == 0
	}, 2*time.Second, 5*time.Millisecond)

	_, err := db.GetTask(task.ID)
	require.ErrorIs(t, err, database.ErrNotFound)
}

func TestCancelTaskNotCurrent(t *testing.T) {
	db := newTestDB(t)
	task := createTask(t, db, models.StatusPending)

	s := New(db, &recordingRunner{outcome: controller.Success})
	require.NoError(t, s.CancelTask(task.ID))

	_, err := db.GetTask(task.ID)
	require.ErrorIs(t, err, database.ErrNotFound)

	// Deleting an already-gone task is not an error.
	require.NoError(t, s.CancelTask(task.ID))
}
