package controller

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"stream-archiver/internal/chat"
	"stream-archiver/internal/hls"
	"stream-archiver/internal/ordered"
	"stream-archiver/pkg/models"
)

// errStreamEnded signals the tail loop observed the broadcast end.
var errStreamEnded = errors.New("stream ended")

// runLive records a channel's broadcasts: it waits for the stream to
// start, tails the live media playlist until the broadcast ends, marks
// the recording downloaded, and then waits for the stream to resume.
// Each resumed broadcast is recorded by a continuation task linked to
// the same chain. With no end-wait budget the loop terminates after the
// first completed recording.
func (r *Runner) runLive(ctx context.Context, ts *taskState) error {
	// Zero for the first broadcast: wait for the stream indefinitely.
	var deadline time.Time

	for {
		mediaURL, err := r.waitForStream(ctx, ts, deadline)
		if err != nil {
			if errors.Is(err, errEndWaitExpired) {
				// The stream never resumed; the empty continuation task
				// completes and the chain ends.
				return ts.markDownloaded()
			}
			return err
		}

		if err := r.tailStream(ctx, ts, mediaURL); err != nil {
			ts.markPending()
			return err
		}
		if err := ts.markDownloaded(); err != nil {
			return err
		}

		if r.opts.EndWait <= 0 {
			return nil
		}

		cont, err := r.createContinuation(ts)
		if err != nil {
			return err
		}
		ts = cont
		deadline = time.Now().Add(r.opts.EndWait)
	}
}

var errEndWaitExpired = errors.New("end wait expired")

// waitForStream polls the channel's master playlist until it lists
// variants, then resolves the media playlist URL for the task's
// requested quality. A zero deadline waits forever.
func (r *Runner) waitForStream(ctx context.Context, ts *taskState, deadline time.Time) (string, error) {
	task := ts.snapshot()

	if task.Status != models.StatusDownloading {
		err := ts.update(func(t *models.Task) {
			t.Status = models.StatusWaitingForStream
		})
		if err != nil {
			return "", fmt.Errorf("failed to persist task: %w", err)
		}
	}

	for {
		cycleStart := time.Now()

		if !deadline.IsZero() && cycleStart.After(deadline) {
			return "", errEndWaitExpired
		}

		mediaURL, ok := r.probeStream(ctx, &task)
		if ok {
			if err := ts.markDownloading(); err != nil {
				return "", fmt.Errorf("failed to mark task downloading: %w", err)
			}
			return mediaURL, nil
		}

		wait := r.opts.PollInterval - time.Since(cycleStart)
		if wait < 0 {
			wait = 0
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(wait):
		}
	}
}

// probeStream fetches the master playlist once. Errors and empty
// responses mean the stream is offline; both retry on the next cycle.
func (r *Runner) probeStream(ctx context.Context, task *models.Task) (string, bool) {
	body, err := r.fetcher.Fetch(ctx, task.SourceURL)
	if err != nil {
		r.logger.Debug("Stream offline", "channel", task.Channel, "error", err)
		return "", false
	}
	variants, err := hls.ParseMaster(body)
	if err != nil || len(variants) == 0 {
		return "", false
	}

	variant, ok := hls.SelectVariant(variants, task.Quality)
	if !ok {
		return "", false
	}
	base, err := url.Parse(task.SourceURL)
	if err != nil {
		return "", false
	}
	return hls.ResolveURL(base, variant.URL), true
}

// tailStream appends newly published segments until the stream ends.
// The high-water mark is the last committed segment URI; each poll
// commits only the playlist suffix past it, so overlapping manifests
// never duplicate bytes.
func (r *Runner) tailStream(ctx context.Context, ts *taskState, mediaURL string) error {
	task := ts.snapshot()

	base, err := url.Parse(mediaURL)
	if err != nil {
		return permanent(fmt.Errorf("invalid media playlist URL: %w", err))
	}

	file, err := openOutput(task.OutputPath, task.Bytes)
	if err != nil {
		return permanent(err)
	}
	defer file.Close()

	// chatStop disconnects the socket; finalize is true only when the
	// broadcast ended cleanly, otherwise the transcript stays resumable.
	var chatStop func(finalize bool)
	ended := false
	defer func() {
		if chatStop != nil {
			chatStop(ended)
		}
	}()

	for {
		cycleStart := time.Now()

		playlist, err := r.pollPlaylist(ctx, mediaURL)
		if errors.Is(err, errStreamEnded) {
			ended = true
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// Unparseable manifest; skip this cycle.
			r.logger.Warn("Bad live manifest", "url", mediaURL, "error", err)
		} else {
			fresh := newSegments(playlist, ts.snapshot().LastSegmentURI)

			if chatStop == nil && task.WantsChat() && len(fresh) > 0 {
				chatStop, err = r.startLiveChat(ctx, ts, streamStart(fresh[0]))
				if err != nil {
					return err
				}
			}

			if err := r.commitSegments(ctx, ts, file, base, fresh); err != nil {
				return err
			}
			if playlist.Ended {
				ended = true
				return nil
			}
		}

		wait := r.opts.PollInterval - time.Since(cycleStart)
		if wait < 0 {
			wait = 0
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// pollPlaylist fetches and parses the live media playlist. A fetch
// failure or an empty playlist means the broadcast ended.
func (r *Runner) pollPlaylist(ctx context.Context, mediaURL string) (*hls.MediaPlaylist, error) {
	body, err := r.fetcher.Fetch(ctx, mediaURL)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errStreamEnded
	}
	playlist, err := hls.ParseMedia(body)
	if err != nil {
		return nil, err
	}
	if len(playlist.Segments) == 0 {
		return nil, errStreamEnded
	}
	return playlist, nil
}

// newSegments returns the playlist suffix after the last committed URI.
// When the mark is absent the playlist window rolled past it and every
// listed segment is new.
func newSegments(p *hls.MediaPlaylist, lastURI string) []hls.Segment {
	if lastURI == "" {
		return p.Segments
	}
	for i := len(p.Segments) - 1; i >= 0; i-- {
		if p.Segments[i].URI == lastURI {
			return p.Segments[i+1:]
		}
	}
	return p.Segments
}

func (r *Runner) commitSegments(ctx context.Context, ts *taskState, file *os.File, base *url.URL, segs []hls.Segment) error {
	if len(segs) == 0 {
		return nil
	}
	fetchSeg := func(ctx context.Context, i int) ([]byte, error) {
		return r.fetcher.Fetch(ctx, hls.ResolveURL(base, segs[i].URI))
	}
	_, err := ordered.Run(ctx, len(segs), fetchSeg, file, ordered.Options{
		Concurrency: r.opts.Concurrency,
		OnCommit: func(i int, size int64) error {
			return ts.update(func(t *models.Task) {
				t.Progress++
				t.MaxProgress++
				t.Bytes += size
				t.LastSegmentURI = segs[i].URI
			})
		},
	})
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		// A lost segment is a gap in the recording, not a fatal error;
		// the next poll moves past it.
		r.logger.Warn("Segment fetch failed while tailing", "error", err)
	}
	return nil
}

// startLiveChat connects the chat socket and archives messages with
// offsets measured from the recording start. The returned stop function
// disconnects and, when the broadcast ended, finalizes the transcript.
func (r *Runner) startLiveChat(ctx context.Context, ts *taskState, startTime time.Time) (func(finalize bool), error) {
	task := ts.snapshot()

	archive, err := r.openArchive(&task, startTime)
	if err != nil {
		return nil, err
	}

	socket := chat.NewLiveSocket(task.ChatURL, task.Channel)
	chatCtx, cancel := context.WithCancel(ctx)

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		if err := socket.Run(chatCtx); err != nil && chatCtx.Err() == nil {
			r.logger.Warn("Chat socket stopped", "channel", task.Channel, "error", err)
		}
	}()

	consumeDone := make(chan struct{})
	go func() {
		defer close(consumeDone)
		for msg := range socket.Messages() {
			if msg.OffsetSeconds == 0 {
				msg.OffsetSeconds = time.Since(startTime).Seconds()
			}
			if err := archive.WriteMessage(chatCtx, msg); err != nil {
				if chatCtx.Err() != nil {
					return
				}
				r.logger.Warn("Failed to archive chat message", "error", err)
				continue
			}
			ts.update(func(t *models.Task) {
				t.ChatBytes = archive.Position()
				t.ChatProgress++
			})
		}
	}()

	stop := func(finalize bool) {
		cancel()
		<-runDone
		<-consumeDone
		// Persist the pre-brace position; it stays the resume point even
		// after the closing brace is appended.
		ts.update(func(t *models.Task) {
			t.ChatBytes = archive.Position()
			if finalize {
				t.MaxChatProgress = t.ChatProgress
			}
		})
		if finalize {
			if err := archive.Finalize(); err != nil {
				r.logger.Warn("Failed to finalize chat archive", "error", err)
			}
		}
		archive.Close()
	}
	return stop, nil
}

// streamStart anchors the transcript timeline to the first recorded
// segment's wall-clock timestamp when the playlist carries one.
func streamStart(seg hls.Segment) time.Time {
	if !seg.ProgramDateTime.IsZero() {
		return seg.ProgramDateTime
	}
	return time.Now()
}

// createContinuation inserts the follow-up task that records the next
// broadcast of the same chain.
func (r *Runner) createContinuation(ts *taskState) (*taskState, error) {
	prev := ts.snapshot()

	chainID := prev.ChainID
	if chainID == "" {
		chainID = uuid.New().String()
		if err := ts.update(func(t *models.Task) { t.ChainID = chainID }); err != nil {
			return nil, fmt.Errorf("failed to persist chain id: %w", err)
		}
	}

	now := time.Now()
	name := fmt.Sprintf("%s_%s.ts", prev.Channel, now.Format("20060102_150405"))
	outputDir := prev.OutputDir
	if outputDir == "" {
		outputDir = filepath.Dir(prev.OutputPath)
	}

	cont := &models.Task{
		Mode:       models.ModeLive,
		SourceURL:  prev.SourceURL,
		Status:     models.StatusWaitingForStream,
		ChatURL:    prev.ChatURL,
		OutputPath: filepath.Join(outputDir, name),
		OutputDir:  outputDir,
		Quality:    prev.Quality,
		Channel:    prev.Channel,
		ChainID:    chainID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := r.store.CreateTask(cont); err != nil {
		return nil, fmt.Errorf("failed to create continuation task: %w", err)
	}
	r.logger.Info("Created continuation task",
		"task_id", cont.ID, "channel", cont.Channel, "chain_id", chainID)

	return &taskState{store: r.store, task: cont}, nil
}
