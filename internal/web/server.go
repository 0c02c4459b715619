// Package web provides the HTTP API for submitting and inspecting
// download tasks.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"stream-archiver/internal/config"
	"stream-archiver/internal/database"
	"stream-archiver/internal/web/handlers"
)

// Server represents the HTTP server
type Server struct {
	server   *http.Server
	handlers *handlers.Handlers
	logger   *slog.Logger
}

// NewServer creates a new HTTP server
func NewServer(db *database.DB, cfg *config.Config, queue handlers.TaskQueue) *Server {
	handlers := handlers.New(db, queue, cfg.DownloadsPath)

	mux := http.NewServeMux()

	// Routes
	mux.HandleFunc("POST /api/tasks", handlers.CreateTask)
	mux.HandleFunc("GET /api/tasks", handlers.ListTasks)
	mux.HandleFunc("GET /api/tasks/{id}", handlers.GetTask)
	mux.HandleFunc("DELETE /api/tasks/{id}", handlers.DeleteTask)
	mux.HandleFunc("POST /api/tasks/{id}/retry", handlers.RetryTask)
	mux.HandleFunc("GET /api/chains/{id}", handlers.GetChain)

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		server:   server,
		handlers: handlers,
		logger:   slog.Default(),
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}
