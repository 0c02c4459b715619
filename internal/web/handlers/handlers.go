// Package handlers provides the JSON HTTP handlers for the task API
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"time"

	"stream-archiver/internal/database"
	"stream-archiver/pkg/models"
)

// TaskQueue is the scheduler surface the API needs.
type TaskQueue interface {
	Queue(taskID int64)
	CancelTask(taskID int64) error
}

// Handlers contains all HTTP handlers and their dependencies
type Handlers struct {
	db            *database.DB
	queue         TaskQueue
	downloadsPath string
	logger        *slog.Logger
}

// New creates a new handlers instance
func New(db *database.DB, queue TaskQueue, downloadsPath string) *Handlers {
	return &Handlers{
		db:            db,
		queue:         queue,
		downloadsPath: downloadsPath,
		logger:        slog.Default(),
	}
}

// createTaskRequest is the submission payload.
type createTaskRequest struct {
	Mode        string  `json:"mode"`
	SourceURL   string  `json:"sourceUrl"`
	ChatURL     string  `json:"chatUrl"`
	FromSeconds float64 `json:"fromSeconds"`
	ToSeconds   float64 `json:"toSeconds"`
	Quality     string  `json:"quality"`
	Channel     string  `json:"channel"`
	OutputPath  string  `json:"outputPath"`
}

// CreateTask validates a submission, stores the task, and queues it.
func (h *Handlers) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	task, err := h.buildTask(&req)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.db.CreateTask(task); err != nil {
		h.logger.Error("Failed to create task", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to create task")
		return
	}

	h.queue.Queue(task.ID)
	h.logger.Info("Task submitted", "task_id", task.ID, "mode", task.Mode)
	h.writeJSON(w, http.StatusCreated, task)
}

func (h *Handlers) buildTask(req *createTaskRequest) (*models.Task, error) {
	mode := models.TaskMode(req.Mode)
	switch mode {
	case models.ModeStatic, models.ModeVod, models.ModeLive:
	default:
		return nil, fmt.Errorf("invalid mode %q", req.Mode)
	}

	parsed, err := url.Parse(req.SourceURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, errors.New("sourceUrl must be an http(s) URL")
	}
	if req.ToSeconds != 0 && req.ToSeconds < req.FromSeconds {
		return nil, errors.New("toSeconds must not precede fromSeconds")
	}
	if mode == models.ModeLive && req.Channel == "" {
		return nil, errors.New("live tasks need a channel")
	}

	outputPath := req.OutputPath
	if outputPath == "" {
		name := filepath.Base(parsed.Path)
		if name == "" || name == "/" || name == "." {
			name = "download"
		}
		stamp := time.Now().Format("20060102_150405")
		outputPath = filepath.Join(h.downloadsPath, fmt.Sprintf("%s_%s.ts", stamp, name))
	}

	status := models.StatusPending
	if mode == models.ModeLive {
		status = models.StatusWaitingForStream
	}

	now := time.Now()
	return &models.Task{
		Mode:        mode,
		SourceURL:   req.SourceURL,
		Status:      status,
		CreatedAt:   now,
		UpdatedAt:   now,
		FromSeconds: req.FromSeconds,
		ToSeconds:   req.ToSeconds,
		ChatURL:     req.ChatURL,
		OutputPath:  outputPath,
		OutputDir:   filepath.Dir(outputPath),
		Quality:     req.Quality,
		Channel:     req.Channel,
	}, nil
}

// ListTasks returns recent tasks, newest first.
func (h *Handlers) ListTasks(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	tasks, err := h.db.ListTasks(limit, offset)
	if err != nil {
		h.logger.Error("Failed to list tasks", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list tasks")
		return
	}
	h.writeJSON(w, http.StatusOK, tasks)
}

// GetTask returns one task by ID.
func (h *Handlers) GetTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid task id")
		return
	}

	task, err := h.db.GetTask(id)
	if errors.Is(err, database.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "task not found")
		return
	}
	if err != nil {
		h.logger.Error("Failed to get task", "task_id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to get task")
		return
	}
	h.writeJSON(w, http.StatusOK, task)
}

// DeleteTask cancels and removes a task.
func (h *Handlers) DeleteTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid task id")
		return
	}

	if err := h.queue.CancelTask(id); err != nil {
		h.logger.Error("Failed to cancel task", "task_id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to cancel task")
		return
	}
	h.logger.Info("Task deleted", "task_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// RetryTask requeues a blocked or pending task.
func (h *Handlers) RetryTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid task id")
		return
	}

	task, err := h.db.GetTask(id)
	if errors.Is(err, database.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "task not found")
		return
	}
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to get task")
		return
	}
	if task.Status == models.StatusDownloading || task.Status == models.StatusDownloaded {
		h.writeError(w, http.StatusConflict, fmt.Sprintf("task is %s", task.Status))
		return
	}

	task.Status = models.StatusPending
	task.RetryCount = 0
	task.ErrorMessage = ""
	task.UpdatedAt = time.Now()
	if err := h.db.UpdateTask(task); err != nil {
		h.logger.Error("Failed to reset task for retry", "task_id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to update task")
		return
	}

	h.queue.Queue(id)
	h.logger.Info("Task requeued", "task_id", id)
	h.writeJSON(w, http.StatusOK, task)
}

// GetChain returns every task of a live recording chain, oldest first.
func (h *Handlers) GetChain(w http.ResponseWriter, r *http.Request) {
	chainID := r.PathValue("id")
	if chainID == "" {
		h.writeError(w, http.StatusBadRequest, "invalid chain id")
		return
	}

	tasks, err := h.db.GetTasksByChain(chainID)
	if err != nil {
		h.logger.Error("Failed to get chain", "chain_id", chainID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to get chain")
		return
	}
	h.writeJSON(w, http.StatusOK, tasks)
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to encode response", "error", err)
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("id"), 10, 64)
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}
