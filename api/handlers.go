package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/soulprintco/imprint/pkg/pipeline"
	"github.com/soulprintco/imprint/pkg/store"
)

// CreateJobRequest is the body for submitting a new archive job.
type CreateJobRequest struct {
	UserID      string `json:"user_id"`
	StoragePath string `json:"storage_path"`
}

// CreateJobResponse returns the id and status of the queued job.
type CreateJobResponse struct {
	JobID  string       `json:"job_id"`
	Status store.Status `json:"status"`
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleCreateJob queues a new archive-to-memory job.
func (s *Server) handleCreateJob(c *fiber.Ctx) error {
	var req CreateJobRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}
	if req.UserID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "user_id is required"})
	}
	if req.StoragePath == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "storage_path is required"})
	}

	handle, err := s.queue.Enqueue(c.Context(), req.UserID, req.StoragePath)
	if err != nil {
		if errors.Is(err, pipeline.ErrQueueFull) {
			return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{Error: "job queue is full"})
		}
		s.logger.Error("enqueueing job", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to queue job"})
	}

	return c.Status(fiber.StatusAccepted).JSON(CreateJobResponse{JobID: handle.JobID, Status: store.StatusPending})
}

// handleListJobs returns the jobs for a user, newest first.
func (s *Server) handleListJobs(c *fiber.Ctx) error {
	userID := c.Query("user_id")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "user_id query parameter required"})
	}

	jobs, err := s.storer.ListJobs(c.Context(), userID)
	if err != nil {
		s.logger.Error("listing jobs", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to list jobs"})
	}

	return c.JSON(map[string]any{
		"count": len(jobs),
		"jobs":  jobs,
	})
}

// handleGetJob returns a single job by id.
func (s *Server) handleGetJob(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "id parameter required"})
	}

	job, err := s.storer.GetJob(c.Context(), id)
	if err != nil {
		if store.IsNotFound(err) {
			return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "job not found"})
		}
		s.logger.Error("getting job", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to get job"})
	}

	return c.JSON(job)
}

// handleRetryJob re-queues a failed job. The run resumes from its last
// completed checkpoint.
func (s *Server) handleRetryJob(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "id parameter required"})
	}

	handle, err := s.queue.Retry(c.Context(), id)
	if err != nil {
		switch {
		case store.IsNotFound(err):
			return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "job not found"})
		case errors.Is(err, pipeline.ErrQueueFull):
			return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{Error: "job queue is full"})
		default:
			return c.Status(fiber.StatusConflict).JSON(ErrorResponse{Error: err.Error()})
		}
	}

	return c.Status(fiber.StatusAccepted).JSON(CreateJobResponse{JobID: handle.JobID, Status: store.StatusPending})
}

// handleGetMemory returns the newest valid memory document for a user.
// With ?format=markdown the rendered document is returned instead of JSON.
func (s *Server) handleGetMemory(c *fiber.Ctx) error {
	userID := c.Params("user_id")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "user_id parameter required"})
	}

	doc, err := s.storer.GetLatestMemory(c.Context(), userID)
	if err != nil {
		if store.IsNotFound(err) {
			return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "no memory document for user"})
		}
		s.logger.Error("getting memory", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to get memory"})
	}

	if c.Query("format") == "markdown" {
		c.Set(fiber.HeaderContentType, "text/markdown; charset=utf-8")
		return c.SendString(doc.Markdown())
	}
	return c.JSON(doc)
}
