// Package database provides SQLite persistence for download tasks
package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"stream-archiver/pkg/models"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a task id has no row, typically because
// the user deleted the task while it was queued or running.
var ErrNotFound = errors.New("task not found")

// DB wraps the SQLite database connection
type DB struct {
	conn *sql.DB
}

// New creates a new database connection and initializes the schema
func New(dbPath string) (*DB, error) {
	// Add connection parameters to help with concurrent access
	connString := dbPath
	if dbPath != ":memory:" {
		connString = dbPath + "?_busy_timeout=30000&_journal_mode=WAL&_synchronous=NORMAL"
	}

	conn, err := sql.Open("sqlite", connString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite doesn't handle concurrent writes well
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	db := &DB{conn: conn}

	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// initSchema creates the necessary tables
func (db *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		mode TEXT NOT NULL,
		source_url TEXT NOT NULL,
		status TEXT NOT NULL,
		progress INTEGER DEFAULT 0,
		max_progress INTEGER DEFAULT 0,
		bytes INTEGER DEFAULT 0,
		last_segment_uri TEXT DEFAULT '',
		source_start_seconds REAL DEFAULT 0,
		duration_seconds REAL DEFAULT 0,
		from_seconds REAL DEFAULT 0,
		to_seconds REAL DEFAULT 0,
		chat_url TEXT DEFAULT '',
		chat_bytes INTEGER DEFAULT 0,
		chat_offset_seconds REAL DEFAULT 0,
		chat_progress INTEGER DEFAULT 0,
		max_chat_progress INTEGER DEFAULT 0,
		output_path TEXT DEFAULT '',
		output_dir TEXT DEFAULT '',
		quality TEXT DEFAULT '',
		channel TEXT DEFAULT '',
		chain_id TEXT DEFAULT '',
		error_message TEXT DEFAULT '',
		retry_count INTEGER DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		started_at DATETIME,
		completed_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
	CREATE INDEX IF NOT EXISTS idx_tasks_created_at ON tasks(created_at);
	CREATE INDEX IF NOT EXISTS idx_tasks_chain_id ON tasks(chain_id);
	`

	_, err := db.conn.Exec(schema)
	return err
}

const taskColumns = `id, mode, source_url, status, progress, max_progress, bytes,
	last_segment_uri, source_start_seconds, duration_seconds, from_seconds, to_seconds,
	chat_url, chat_bytes, chat_offset_seconds, chat_progress, max_chat_progress,
	output_path, output_dir, quality, channel, chain_id,
	error_message, retry_count, created_at, updated_at, started_at, completed_at`

func scanTask(row interface{ Scan(...any) error }) (*models.Task, error) {
	var t models.Task
	err := row.Scan(
		&t.ID, &t.Mode, &t.SourceURL, &t.Status, &t.Progress, &t.MaxProgress, &t.Bytes,
		&t.LastSegmentURI, &t.SourceStartSeconds, &t.DurationSeconds, &t.FromSeconds, &t.ToSeconds,
		&t.ChatURL, &t.ChatBytes, &t.ChatOffsetSeconds, &t.ChatProgress, &t.MaxChatProgress,
		&t.OutputPath, &t.OutputDir, &t.Quality, &t.Channel, &t.ChainID,
		&t.ErrorMessage, &t.RetryCount, &t.CreatedAt, &t.UpdatedAt, &t.StartedAt, &t.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateTask creates a new task record
func (db *DB) CreateTask(task *models.Task) error {
	query := `
	INSERT INTO tasks (
		mode, source_url, status, progress, max_progress, bytes,
		last_segment_uri, source_start_seconds, duration_seconds, from_seconds, to_seconds,
		chat_url, chat_bytes, chat_offset_seconds, chat_progress, max_chat_progress,
		output_path, output_dir, quality, channel, chain_id,
		error_message, retry_count, created_at, updated_at, started_at, completed_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := db.conn.Exec(query,
		task.Mode, task.SourceURL, task.Status, task.Progress, task.MaxProgress, task.Bytes,
		task.LastSegmentURI, task.SourceStartSeconds, task.DurationSeconds, task.FromSeconds, task.ToSeconds,
		task.ChatURL, task.ChatBytes, task.ChatOffsetSeconds, task.ChatProgress, task.MaxChatProgress,
		task.OutputPath, task.OutputDir, task.Quality, task.Channel, task.ChainID,
		task.ErrorMessage, task.RetryCount, task.CreatedAt, task.UpdatedAt, task.StartedAt, task.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	task.ID = id
	return nil
}

// GetTask retrieves a task by ID
func (db *DB) GetTask(id int64) (*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = ?`

	task, err := scanTask(db.conn.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	return task, nil
}

// UpdateTask updates an existing task record
func (db *DB) UpdateTask(task *models.Task) error {
	query := `
	UPDATE tasks SET
		mode = ?, source_url = ?, status = ?, progress = ?, max_progress = ?, bytes = ?,
		last_segment_uri = ?, source_start_seconds = ?, duration_seconds = ?,
		from_seconds = ?, to_seconds = ?,
		chat_url = ?, chat_bytes = ?, chat_offset_seconds = ?, chat_progress = ?,
		max_chat_progress = ?,
		output_path = ?, output_dir = ?, quality = ?, channel = ?, chain_id = ?,
		error_message = ?, retry_count = ?, updated_at = ?, started_at = ?, completed_at = ?
	WHERE id = ?
	`

	_, err := db.conn.Exec(query,
		task.Mode, task.SourceURL, task.Status, task.Progress, task.MaxProgress, task.Bytes,
		task.LastSegmentURI, task.SourceStartSeconds, task.DurationSeconds,
		task.FromSeconds, task.ToSeconds,
		task.ChatURL, task.ChatBytes, task.ChatOffsetSeconds, task.ChatProgress,
		task.MaxChatProgress,
		task.OutputPath, task.OutputDir, task.Quality, task.Channel, task.ChainID,
		task.ErrorMessage, task.RetryCount, task.UpdatedAt, task.StartedAt, task.CompletedAt,
		task.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}

	return nil
}

// DeleteTask removes a task record
func (db *DB) DeleteTask(id int64) error {
	_, err := db.conn.Exec(`DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	return nil
}

// ListTasks retrieves tasks with pagination
func (db *DB) ListTasks(limit, offset int) ([]*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks ORDER BY created_at DESC, id ASC LIMIT ? OFFSET ?`
	return db.queryTasks(query, limit, offset)
}

// GetPendingTasksOldestFirst retrieves all resumable tasks ordered by creation time (oldest first)
func (db *DB) GetPendingTasksOldestFirst() ([]*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks
		WHERE status IN (?, ?, ?)
		ORDER BY created_at ASC, id ASC`
	return db.queryTasks(query, models.StatusPending, models.StatusBlocked, models.StatusWaitingForStream)
}

// GetOrphanedTasks retrieves tasks stuck in downloading state (orphaned by process death)
func (db *DB) GetOrphanedTasks() ([]*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE status = ? ORDER BY created_at ASC`
	return db.queryTasks(query, models.StatusDownloading)
}

// GetTasksByChain retrieves the continuation chain of a live recording
func (db *DB) GetTasksByChain(chainID string) ([]*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE chain_id = ? ORDER BY created_at ASC, id ASC`
	return db.queryTasks(query, chainID)
}

// DeleteOldTasks removes completed tasks older than the retention period
func (db *DB) DeleteOldTasks(retention time.Duration) error {
	cutoff := time.Now().Add(-retention)
	_, err := db.conn.Exec(
		`DELETE FROM tasks WHERE status = ? AND completed_at IS NOT NULL AND completed_at < ?`,
		models.StatusDownloaded, cutoff,
	)
	if err != nil {
		return fmt.Errorf("failed to delete old tasks: %w", err)
	}
	return nil
}

func (db *DB) queryTasks(query string, args ...any) ([]*models.Task, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}

	return tasks, rows.Err()
}
