package handler

import (
	"errors"
	"log"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/reelsaver/api/internal/model"
	"github.com/reelsaver/api/internal/service"
	"github.com/reelsaver/api/internal/store"
	"github.com/reelsaver/api/pkg/response"
)

// WorkerHandler exposes the bulk worker to trusted internal callers
type WorkerHandler struct {
	processor service.JobProcessor
	store     store.JobStore
	validator *validator.Validate
}

func NewWorkerHandler(processor service.JobProcessor, jobStore store.JobStore, v *validator.Validate) *WorkerHandler {
	return &WorkerHandler{
		processor: processor,
		store:     jobStore,
		validator: v,
	}
}

// Invoke handles POST /internal/worker/bulk. It runs the job synchronously
// and reports where it ended up.
// @Summary      Run a bulk job
// @Tags         Internal
// @Accept       json
// @Produce      json
// @Param        request body model.WorkerInvokeRequest true "Job to run"
// @Success      200 {object} model.WorkerInvokeResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Security     WorkerSecret
// @Router       /internal/worker/bulk [post]
func (h *WorkerHandler) Invoke(c *fiber.Ctx) error {
	var req model.WorkerInvokeRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	if err := h.processor.Process(c.Context(), req.JobID); err != nil {
		if errors.Is(err, store.ErrJobNotFound) {
			return response.NotFound(c, "Job not found")
		}
		log.Printf("[Worker API] job %s: %v", req.JobID, err)
	}

	job, err := h.store.Get(c.Context(), req.JobID)
	if err != nil {
		if errors.Is(err, store.ErrJobNotFound) {
			return response.NotFound(c, "Job not found")
		}
		return response.ServiceError(c, "Failed to load job")
	}

	return response.OK(c, model.WorkerInvokeResponse{JobID: job.ID, Status: job.Status})
}
