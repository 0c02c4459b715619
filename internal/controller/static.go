package controller

import (
	"context"
	"fmt"

	"stream-archiver/pkg/models"
)

// runStatic downloads a single remote file with byte-range resume. A
// chat transcript, when configured, is archived concurrently.
func (r *Runner) runStatic(ctx context.Context, ts *taskState) error {
	if err := ts.markDownloading(); err != nil {
		return fmt.Errorf("failed to mark task downloading: %w", err)
	}

	task := ts.snapshot()

	chatDone := make(chan error, 1)
	if task.WantsChat() {
		go func() {
			chatDone <- r.runHistoricalChat(ctx, ts)
		}()
	} else {
		chatDone <- nil
	}

	videoErr := r.fetchStatic(ctx, ts, &task)
	chatErr := <-chatDone

	if videoErr != nil {
		ts.markPending()
		return videoErr
	}
	if chatErr != nil {
		ts.markPending()
		return chatErr
	}
	return ts.markDownloaded()
}

func (r *Runner) fetchStatic(ctx context.Context, ts *taskState, task *models.Task) error {
	if task.MaxProgress > 0 && task.Progress >= task.MaxProgress {
		// Video already fetched on a previous run; only chat was pending.
		return nil
	}

	file, err := openOutput(task.OutputPath, task.Bytes)
	if err != nil {
		return permanent(err)
	}
	defer file.Close()

	if err := ts.update(func(t *models.Task) { t.MaxProgress = 1 }); err != nil {
		return fmt.Errorf("failed to persist task: %w", err)
	}

	n, err := r.fetcher.FetchTo(ctx, task.SourceURL, file, task.Bytes)
	if n != task.Bytes {
		ts.update(func(t *models.Task) { t.Bytes = n })
	}
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", task.SourceURL, err)
	}

	return ts.update(func(t *models.Task) { t.Progress = 1 })
}
