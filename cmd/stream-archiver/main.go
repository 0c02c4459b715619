package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stream-archiver/internal/config"
	"stream-archiver/internal/controller"
	"stream-archiver/internal/database"
	"stream-archiver/internal/fetch"
	"stream-archiver/internal/scheduler"
	"stream-archiver/internal/transcript"
	"stream-archiver/internal/web"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Setup structured logging
	setupLogging(cfg.LogLevel)

	slog.Info("Starting Stream Archiver", "version", "1.0.0")

	// Initialize database
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			slog.Error("Failed to close database", "error", err)
		}
	}()

	fetcher := fetch.New(nil, cfg.HTTPTimeout(), nil)

	runner := controller.NewRunner(db, fetcher, transcript.Lookups{}, controller.Options{
		Concurrency:  cfg.SegmentConcurrency,
		PollInterval: cfg.LivePollInterval(),
		EndWait:      cfg.LiveEndWait(),
	})

	sched := scheduler.New(db, runner)

	// Initialize HTTP API with the scheduler as the task queue
	server := web.NewServer(db, cfg, sched)

	return runServer(server, sched, db)
}

func runServer(server *web.Server, sched *scheduler.Scheduler, db *database.DB) error {
	// Create main context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start scheduler in goroutine
	go sched.Start(ctx)

	// Re-queue work left over from the previous session
	if err := sched.Restore(); err != nil {
		slog.Error("Failed to restore queued tasks", "error", err)
	}

	// Start history cleanup routine (runs daily)
	go startHistoryCleanup(ctx, db)

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return fmt.Errorf("server failed to start: %w", err)
	case sig := <-sigChan:
		slog.Info("Received shutdown signal", "signal", sig.String())
	}

	// Cancel context to stop the scheduler; interrupted tasks stay
	// pending and resume on the next start.
	cancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server gracefully: %w", err)
	}

	slog.Info("Shutdown complete")
	return nil
}

// setupLogging configures structured logging based on the log level
func setupLogging(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	handler := slog.NewTextHandler(os.Stdout, opts)
	logger := slog.New(handler)
	slog.SetDefault(logger)
}

// startHistoryCleanup runs a goroutine that cleans up old tasks periodically
func startHistoryCleanup(ctx context.Context, db *database.DB) {
	ticker := time.NewTicker(24 * time.Hour) // Run daily
	defer ticker.Stop()

	// Run cleanup immediately on startup
	cleanupOldTasks(db)

	for {
		select {
		case <-ctx.Done():
			slog.Info("History cleanup routine shutting down")
			return
		case <-ticker.C:
			cleanupOldTasks(db)
		}
	}
}

// cleanupOldTasks removes completed tasks older than 60 days
func cleanupOldTasks(db *database.DB) {
	retention := 60 * 24 * time.Hour

	slog.Info("Running history cleanup", "retention_days", 60)

	if err := db.DeleteOldTasks(retention); err != nil {
		slog.Error("Failed to cleanup old tasks", "error", err)
		return
	}

	slog.Info("History cleanup completed")
}
