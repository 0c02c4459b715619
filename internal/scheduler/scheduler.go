// Package scheduler owns the task queue: it processes tasks one at a
// time, retries runs that report a retryable failure, and restores the
// queue from the database after a restart.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"stream-archiver/internal/controller"
	"stream-archiver/internal/database"
	"stream-archiver/pkg/models"
)

const maxRetries = 5

// Runner executes one task to completion or failure.
type Runner interface {
	Run(ctx context.Context, taskID int64) controller.Outcome
}

// Scheduler feeds queued task IDs to the runner sequentially.
type Scheduler struct {
	db     *database.DB
	runner Runner
	logger *slog.Logger
	queue  chan int64
	mu     sync.RWMutex

	// Current run state.
	currentID int64
	cancel    context.CancelFunc
}

// New creates a scheduler.
func New(db *database.DB, runner Runner) *Scheduler {
	return &Scheduler{
		db:     db,
		runner: runner,
		logger: slog.Default(),
		queue:  make(chan int64, 100), // Buffer for up to 100 queued tasks
	}
}

// Start processes the queue until the context is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Starting task scheduler")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Task scheduler shutting down")
			return
		case taskID := <-s.queue:
			s.processTask(ctx, taskID)
		}
	}
}

// Queue adds a task to the processing queue.
func (s *Scheduler) Queue(taskID int64) {
	select {
	case s.queue <- taskID:
		s.logger.Info("Task queued", "task_id", taskID)
	default:
		s.logger.Error("Task queue is full", "task_id", taskID)
	}
}

// CurrentTaskID returns the ID of the task being processed, or zero.
func (s *Scheduler) CurrentTaskID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentID
}

// CancelTask deletes a task, stopping its run first when it is the one
// currently processing.
func (s *Scheduler) CancelTask(taskID int64) error {
	s.mu.Lock()
	if s.currentID == taskID && s.cancel != nil {
		s.logger.Info("Canceling current task", "task_id", taskID)
		s.cancel()
	}
	s.mu.Unlock()

	if err := s.db.DeleteTask(taskID); err != nil && !errors.Is(err, database.ErrNotFound) {
		return err
	}
	return nil
}

// Restore re-queues work found in the database at startup: tasks left
// in downloading by a crash go back to pending first, then every
// resumable task enters the queue oldest first.
func (s *Scheduler) Restore() error {
	orphaned, err := s.db.GetOrphanedTasks()
	if err != nil {
		return err
	}
	for _, task := range orphaned {
		task.Status = models.StatusPending
		task.UpdatedAt = time.Now()
		if err := s.db.UpdateTask(task); err != nil {
			s.logger.Error("Failed to reset orphaned task", "task_id", task.ID, "error", err)
			continue
		}
		s.logger.Info("Reset orphaned task to pending", "task_id", task.ID)
	}

	pending, err := s.db.GetPendingTasksOldestFirst()
	if err != nil {
		return err
	}
	for _, task := range pending {
		s.Queue(task.ID)
	}
	return nil
}

// processTask runs one task with retry and exponential backoff.
func (s *Scheduler) processTask(ctx context.Context, taskID int64) {
	s.mu.Lock()
	s.currentID = taskID
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.currentID = 0
		s.cancel = nil
		s.mu.Unlock()
	}()

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff: 2^attempt seconds
			backoff := time.Duration(1<<uint(attempt)) * time.Second
			s.logger.Info("Retrying task after backoff",
				"task_id", taskID,
				"attempt", attempt,
				"backoff", backoff)

			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}

			// The task may have been cancelled during the backoff.
			if _, err := s.db.GetTask(taskID); err != nil {
				s.logger.Info("Task gone during retry backoff", "task_id", taskID)
				return
			}
		}

		runCtx, cancel := context.WithCancel(ctx)
		s.mu.Lock()
		s.cancel = cancel
		s.mu.Unlock()

		outcome := s.runner.Run(runCtx, taskID)
		cancel()

		switch outcome {
		case controller.Success:
			s.logger.Info("Task completed successfully", "task_id", taskID)
			return
		case controller.Failure:
			s.logger.Error("Task failed permanently", "task_id", taskID)
			return
		}

		if ctx.Err() != nil {
			// Shutdown: the task stays pending and Restore re-queues it.
			return
		}

		s.bumpRetryCount(taskID, attempt+1)

		if attempt >= maxRetries {
			s.logger.Error("Task gave up after all retries", "task_id", taskID)
			s.markBlocked(taskID)
			return
		}
		s.logger.Warn("Task attempt failed, will retry", "task_id", taskID, "attempt", attempt+1)
	}
}

func (s *Scheduler) bumpRetryCount(taskID int64, count int) {
	task, err := s.db.GetTask(taskID)
	if err != nil {
		return
	}
	task.RetryCount = count
	task.UpdatedAt = time.Now()
	if err := s.db.UpdateTask(task); err != nil {
		s.logger.Error("Failed to update retry count", "task_id", taskID, "error", err)
	}
}

// markBlocked parks a task that keeps failing so it stops consuming the
// queue; Restore picks blocked tasks up again on the next start.
func (s *Scheduler) markBlocked(taskID int64) {
	task, err := s.db.GetTask(taskID)
	if err != nil {
		return
	}
	task.Status = models.StatusBlocked
	task.UpdatedAt = time.Now()
	if err := s.db.UpdateTask(task); err != nil {
		s.logger.Error("Failed to mark task blocked", "task_id", taskID, "error", err)
	}
}
