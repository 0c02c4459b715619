// Package models defines the data structures used throughout the application
package models

import (
	"time"
)

// TaskStatus represents the current status of a download task
type TaskStatus string

const (
	StatusBlocked          TaskStatus = "blocked"
	StatusWaitingForStream TaskStatus = "waiting_for_stream"
	StatusDownloading      TaskStatus = "downloading"
	StatusPending          TaskStatus = "pending"
	StatusDownloaded       TaskStatus = "downloaded"
)

// TaskMode selects which controller executes a task
type TaskMode string

const (
	ModeStatic TaskMode = "static"
	ModeVod    TaskMode = "vod"
	ModeLive   TaskMode = "live"
)

// Task represents one download job: a static file, a VOD segment range,
// or a live broadcast being tailed. It is owned exclusively by the
// controller executing it and read by the scheduler and UI.
type Task struct {
	ID        int64      `json:"id" db:"id"`
	Mode      TaskMode   `json:"mode" db:"mode"`
	SourceURL string     `json:"source_url" db:"source_url"`
	Status    TaskStatus `json:"status" db:"status"`

	// Progress counters. Progress counts completed segments (or 1 for a
	// static file); MaxProgress is the expected total and may be zero
	// until the first manifest fetch. Bytes is the cumulative length of
	// the output file, used to truncate on resume.
	Progress    int64 `json:"progress" db:"progress"`
	MaxProgress int64 `json:"max_progress" db:"max_progress"`
	Bytes       int64 `json:"bytes" db:"bytes"`

	// Resumability pointers.
	LastSegmentURI     string  `json:"last_segment_uri" db:"last_segment_uri"`
	SourceStartSeconds float64 `json:"source_start_seconds" db:"source_start_seconds"`
	DurationSeconds    float64 `json:"duration_seconds" db:"duration_seconds"`
	FromSeconds        float64 `json:"from_seconds" db:"from_seconds"`
	ToSeconds          float64 `json:"to_seconds" db:"to_seconds"`

	// Chat linkage. ChatBytes is the transcript archive's last committed
	// byte position; the VOD pagination cursor state lives in
	// ChatOffsetSeconds/ChatProgress.
	ChatURL           string  `json:"chat_url" db:"chat_url"`
	ChatBytes         int64   `json:"chat_bytes" db:"chat_bytes"`
	ChatOffsetSeconds float64 `json:"chat_offset_seconds" db:"chat_offset_seconds"`
	ChatProgress      int64   `json:"chat_progress" db:"chat_progress"`
	MaxChatProgress   int64   `json:"max_chat_progress" db:"max_chat_progress"`

	// Output linkage.
	OutputPath string `json:"output_path" db:"output_path"`
	OutputDir  string `json:"output_dir" db:"output_dir"`

	// Live tailing: requested quality label, channel name, and the chain
	// id linking continuation tasks created when a stream resumes.
	Quality string `json:"quality" db:"quality"`
	Channel string `json:"channel" db:"channel"`
	ChainID string `json:"chain_id" db:"chain_id"`

	ErrorMessage string     `json:"error_message" db:"error_message"`
	RetryCount   int        `json:"retry_count" db:"retry_count"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
	StartedAt    *time.Time `json:"started_at" db:"started_at"`
	CompletedAt  *time.Time `json:"completed_at" db:"completed_at"`
}

// WantsChat reports whether the task requests a chat transcript.
func (t *Task) WantsChat() bool {
	return t.ChatURL != ""
}

// Done reports whether the task reached a terminal status.
func (t *Task) Done() bool {
	return t.Status == StatusDownloaded
}
