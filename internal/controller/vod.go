package controller

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"stream-archiver/internal/hls"
	"stream-archiver/internal/ordered"
	"stream-archiver/pkg/models"
)

// endGuard trims the requested window so the final cut never reaches
// past the last full segment.
const endGuard = time.Second

// runVod downloads the requested time window of a finished recording:
// it fetches the media playlist once, maps the window to a segment
// range, and appends segments to the output file in playlist order with
// parallel fetches. A chat transcript, when configured, is paged
// concurrently from the historical chat endpoint.
func (r *Runner) runVod(ctx context.Context, ts *taskState) error {
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

	videoErr := r.fetchVodSegments(ctx, ts, &task)
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

func (r *Runner) fetchVodSegments(ctx context.Context, ts *taskState, task *models.Task) error {
	if task.MaxProgress > 0 && task.Progress >= task.MaxProgress {
		// All segments committed on a previous run.
		return nil
	}

	body, err := r.fetcher.Fetch(ctx, task.SourceURL)
	if err != nil {
		return fmt.Errorf("failed to fetch playlist: %w", err)
	}
	playlist, err := hls.ParseMedia(body)
	if err != nil {
		return permanent(fmt.Errorf("failed to parse playlist: %w", err))
	}
	base, err := url.Parse(task.SourceURL)
	if err != nil {
		return permanent(fmt.Errorf("invalid playlist URL: %w", err))
	}

	from := secondsDuration(task.FromSeconds)
	to := secondsDuration(task.ToSeconds)
	if task.ToSeconds <= 0 {
		to = playlist.Duration()
	}
	fromIdx, toIdx := playlist.SegmentRange(from, to)
	if toIdx < fromIdx {
		return permanent(fmt.Errorf("requested window matches no segments"))
	}
	window := playlist.Slice(fromIdx, toIdx)

	if task.MaxProgress == 0 {
		// Persist the plan before the first segment byte so an
		// interrupted run resumes against the same segment range.
		sourceStart := segmentStart(playlist, fromIdx)
		duration := window.Duration() - endGuard
		if duration < 0 {
			duration = 0
		}
		err := ts.update(func(t *models.Task) {
			t.MaxProgress = int64(len(window.Segments))
			t.SourceStartSeconds = sourceStart.Seconds()
			t.DurationSeconds = duration.Seconds()
		})
		if err != nil {
			return fmt.Errorf("failed to persist segment plan: %w", err)
		}
		*task = ts.snapshot()
	}

	if task.OutputDir != "" {
		path := filepath.Join(task.OutputDir, "index.m3u8")
		if err := os.WriteFile(path, window.Encode(), 0o644); err != nil {
			return fmt.Errorf("failed to write trimmed playlist: %w", err)
		}
	}

	// Skip segments committed by earlier runs.
	if task.Progress >= int64(len(window.Segments)) {
		return nil
	}
	remaining := window.Segments[task.Progress:]

	file, err := openOutput(task.OutputPath, task.Bytes)
	if err != nil {
		return permanent(err)
	}
	defer file.Close()

	fetchSeg := func(ctx context.Context, i int) ([]byte, error) {
		uri := recordingURI(remaining[i].URI)
		return r.fetcher.Fetch(ctx, hls.ResolveURL(base, uri))
	}
	_, err = ordered.Run(ctx, len(remaining), fetchSeg, file, ordered.Options{
		Concurrency: r.opts.Concurrency,
		FailFast:    true,
		OnCommit: func(i int, size int64) error {
			return ts.update(func(t *models.Task) {
				t.Progress++
				t.Bytes += size
			})
		},
	})
	if err != nil {
		return fmt.Errorf("failed to fetch segments: %w", err)
	}
	return nil
}

// recordingURI rewrites segment names that recordings of muted audio
// publish under a different suffix than the playlist advertises.
func recordingURI(uri string) string {
	return strings.Replace(uri, "-unmuted", "-muted", 1)
}

// segmentStart is the cumulative start time of segment i.
func segmentStart(p *hls.MediaPlaylist, i int) time.Duration {
	var start time.Duration
	for j := 0; j < i && j < len(p.Segments); j++ {
		start += p.Segments[j].Duration
	}
	return start
}

func secondsDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
