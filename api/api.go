package api

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/soulprintco/imprint/pkg/pipeline"
	"github.com/soulprintco/imprint/pkg/store"
)

// JobQueue accepts jobs for background processing. *pipeline.Runner is the
// production implementation.
type JobQueue interface {
	Enqueue(ctx context.Context, userID, storagePath string) (*pipeline.Handle, error)
	Retry(ctx context.Context, jobID string) (*pipeline.Handle, error)
}

// ErrorResponse is the JSON body for error replies.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Server is the API server for submitting jobs and reading memories.
type Server struct {
	config Config
	queue  JobQueue
	storer store.Store
	logger *zap.Logger
	app    *fiber.App
}

// NewServer creates a new API server. The store is injected so it can be
// shared with the pipeline workers.
func NewServer(config Config, queue JobQueue, storer store.Store, logger *zap.Logger) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config: config,
		queue:  queue,
		storer: storer,
		logger: logger,
		app:    app,
	}

	app.Get("/ping", s.handlePing)
	app.Post("/jobs", s.handleCreateJob)
	app.Get("/jobs", s.handleListJobs)
	app.Get("/jobs/:id", s.handleGetJob)
	app.Post("/jobs/:id/retry", s.handleRetryJob)
	app.Get("/memory/:user_id", s.handleGetMemory)

	return s
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server",
		zap.String("listen", s.config.ListenAddr),
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
