// Package controller executes download tasks: static files, VOD
// segment ranges, and live broadcast tailing. One controller instance
// owns one task for the duration of a run; the scheduler provides the
// cancellation context and retries runs that report Retryable.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"stream-archiver/internal/database"
	"stream-archiver/internal/fetch"
	"stream-archiver/internal/transcript"
	"stream-archiver/pkg/models"
)

// Outcome is the run result consumed by the scheduler.
type Outcome int

const (
	Success Outcome = iota
	Retryable
	Failure
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Retryable:
		return "retryable"
	case Failure:
		return "failure"
	}
	return "unknown"
}

// TaskStore is the persistence surface the controllers use.
type TaskStore interface {
	GetTask(id int64) (*models.Task, error)
	UpdateTask(task *models.Task) error
	CreateTask(task *models.Task) error
}

// errPermanent wraps errors that retrying cannot fix.
type errPermanent struct {
	err error
}

func (e *errPermanent) Error() string { return e.err.Error() }
func (e *errPermanent) Unwrap() error { return e.err }

func permanent(err error) error {
	return &errPermanent{err: err}
}

// Options configures a Runner.
type Options struct {
	// Concurrency bounds parallel segment fetches per task.
	Concurrency int
	// PollInterval is the live playlist polling cadence.
	PollInterval time.Duration
	// EndWait is how long a finished live recording waits for the
	// stream to resume before the job completes.
	EndWait time.Duration
}

// Runner dispatches tasks to the mode-specific controllers.
type Runner struct {
	store   TaskStore
	fetcher *fetch.Fetcher
	lookups transcript.Lookups
	opts    Options
	logger  *slog.Logger
}

// NewRunner creates a Runner.
func NewRunner(store TaskStore, fetcher *fetch.Fetcher, lookups transcript.Lookups, opts Options) *Runner {
	if opts.Concurrency < 1 {
		opts.Concurrency = 10
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	return &Runner{
		store:   store,
		fetcher: fetcher,
		lookups: lookups,
		opts:    opts,
		logger:  slog.Default(),
	}
}

// Run executes the task to completion, or as far as the context and the
// network allow. It is idempotent: re-running a completed task does
// nothing, and an interrupted task resumes from its persisted pointers.
func (r *Runner) Run(ctx context.Context, taskID int64) Outcome {
	task, err := r.store.GetTask(taskID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			// The task was deleted while queued; treat as cancellation.
			r.logger.Info("Task gone before run, skipping", "task_id", taskID)
			return Success
		}
		r.logger.Error("Failed to load task", "task_id", taskID, "error", err)
		return Retryable
	}

	if task.Done() {
		return Success
	}

	ts := &taskState{store: r.store, task: task}

	switch task.Mode {
	case models.ModeStatic:
		err = r.runStatic(ctx, ts)
	case models.ModeVod:
		err = r.runVod(ctx, ts)
	case models.ModeLive:
		err = r.runLive(ctx, ts)
	default:
		err = permanent(fmt.Errorf("unknown task mode %q", task.Mode))
	}

	// Safety net: no code path may leave the task stuck in downloading.
	ts.update(func(t *models.Task) {
		if t.Status == models.StatusDownloading {
			t.Status = models.StatusPending
		}
		if err != nil && ctx.Err() == nil {
			t.ErrorMessage = err.Error()
		}
	})

	switch {
	case err == nil:
		return Success
	case errors.As(err, new(*errPermanent)):
		r.logger.Error("Task failed permanently", "task_id", taskID, "error", err)
		return Failure
	default:
		r.logger.Warn("Task run incomplete", "task_id", taskID, "error", err)
		return Retryable
	}
}

// taskState serializes all mutations and persistence calls for one
// task, since the video and chat sides of a run update it concurrently.
type taskState struct {
	mu    sync.Mutex
	store TaskStore
	task  *models.Task
}

// update applies mutate and persists the task under the lock.
func (s *taskState) update(mutate func(t *models.Task)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	mutate(s.task)
	s.task.UpdatedAt = time.Now()
	return s.store.UpdateTask(s.task)
}

// snapshot returns a copy of the task for lock-free reads.
func (s *taskState) snapshot() models.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.task
}

// markDownloading records the run start.
func (s *taskState) markDownloading() error {
	return s.update(func(t *models.Task) {
		t.Status = models.StatusDownloading
		t.ErrorMessage = ""
		if t.StartedAt == nil {
			now := time.Now()
			t.StartedAt = &now
		}
	})
}

// markPending leaves the task resumable.
func (s *taskState) markPending() {
	s.update(func(t *models.Task) {
		t.Status = models.StatusPending
	})
}

// markDownloaded records completion.
func (s *taskState) markDownloaded() error {
	return s.update(func(t *models.Task) {
		t.Status = models.StatusDownloaded
		now := time.Now()
		t.CompletedAt = &now
	})
}

// openOutput opens the task's output sink for appending, truncating any
// bytes past the last committed position from a crashed run.
func openOutput(path string, committed int64) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open output file: %w", err)
	}
	if err := file.Truncate(committed); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to truncate output file: %w", err)
	}
	if _, err := file.Seek(committed, 0); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to seek output file: %w", err)
	}
	return file, nil
}

// chatPath is the transcript file that accompanies an output file.
func chatPath(outputPath string) string {
	return outputPath + ".chat.json"
}
