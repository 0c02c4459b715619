package controller

import (
	"context"
	"fmt"
	"time"

	"stream-archiver/internal/chat"
	"stream-archiver/internal/transcript"
	"stream-archiver/pkg/models"
)

// runHistoricalChat pages a recorded chat history into the task's
// transcript archive. Pagination resumes from the persisted offset, and
// the archive's own resume protocol deduplicates the overlap.
func (r *Runner) runHistoricalChat(ctx context.Context, ts *taskState) error {
	task := ts.snapshot()

	if task.MaxChatProgress > 0 && task.ChatProgress >= task.MaxChatProgress {
		return nil
	}

	archive, err := r.openArchive(&task, task.CreatedAt)
	if err != nil {
		return err
	}
	defer archive.Close()

	history := chat.NewHistory(r.fetcher.Client(), task.ChatURL, r.fetcher.Headers())

	offset := task.FromSeconds
	if task.ChatOffsetSeconds > 0 {
		offset = task.ChatOffsetSeconds
	}

	cursor := ""
	for {
		page, err := history.NextPage(ctx, cursor, offset)
		if err != nil {
			return fmt.Errorf("failed to fetch chat page: %w", err)
		}

		lastOffset := offset
		done := false
		for _, msg := range page.Comments {
			if msg.OffsetSeconds < task.FromSeconds {
				continue
			}
			if task.ToSeconds > 0 && msg.OffsetSeconds > task.ToSeconds {
				done = true
				break
			}
			if err := archive.WriteMessage(ctx, msg); err != nil {
				return fmt.Errorf("failed to archive chat message: %w", err)
			}
			lastOffset = msg.OffsetSeconds
		}

		if err := ts.update(func(t *models.Task) {
			t.ChatBytes = archive.Position()
			t.ChatOffsetSeconds = lastOffset
			t.ChatProgress++
		}); err != nil {
			return fmt.Errorf("failed to persist chat progress: %w", err)
		}

		if done || page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
		offset = lastOffset
	}

	if err := archive.Finalize(); err != nil {
		return fmt.Errorf("failed to finalize chat archive: %w", err)
	}
	return ts.update(func(t *models.Task) {
		t.MaxChatProgress = t.ChatProgress
	})
}

// openArchive resumes the task's transcript when prior bytes were
// committed, otherwise starts a fresh one.
func (r *Runner) openArchive(task *models.Task, startTime time.Time) (*transcript.Archive, error) {
	header := transcript.Header{
		Channel:         task.Channel,
		DurationSeconds: task.DurationSeconds,
	}
	path := chatPath(task.OutputPath)

	if task.ChatBytes > 0 {
		archive, err := transcript.Resume(path, task.ChatBytes, header, startTime, r.lookups)
		if err != nil {
			return nil, fmt.Errorf("failed to resume chat archive: %w", err)
		}
		return archive, nil
	}

	archive, err := transcript.Create(path, header, startTime, r.lookups)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat archive: %w", err)
	}
	return archive, nil
}
