package handler

import (
	"context"
	"errors"
	"log"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/reelsaver/api/internal/ledger"
	"github.com/reelsaver/api/internal/middleware"
	"github.com/reelsaver/api/internal/model"
	"github.com/reelsaver/api/internal/resolver"
	"github.com/reelsaver/api/internal/service"
	"github.com/reelsaver/api/internal/store"
	"github.com/reelsaver/api/pkg/response"
)

// MediaResolver resolves a single source URL
type MediaResolver interface {
	Resolve(ctx context.Context, sourceURL string, opts resolver.Options) (*model.ResolvedMedia, error)
}

type BulkHandler struct {
	service   *service.BulkService
	resolver  MediaResolver
	validator *validator.Validate
}

func NewBulkHandler(svc *service.BulkService, res MediaResolver, v *validator.Validate) *BulkHandler {
	return &BulkHandler{
		service:   svc,
		resolver:  res,
		validator: v,
	}
}

// Create handles POST /api/bulk
// @Summary      Start a bulk download
// @Description  Charges ceil(len(urls)/2) credits and queues a job that downloads every URL into one ZIP archive
// @Tags         Bulk
// @Accept       json
// @Produce      json
// @Param        request body model.BulkCreateRequest true "Bulk request"
// @Success      200 {object} model.BulkCreateResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      402 {object} response.InsufficientCreditsResponse
// @Failure      403 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/bulk [post]
func (h *BulkHandler) Create(c *fiber.Ctx) error {
	var req model.BulkCreateRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	authUser := middleware.GetUserID(c)
	if req.UserID == "" {
		req.UserID = authUser
	} else if authUser != "" && req.UserID != authUser {
		return response.Forbidden(c, "userId does not match the authenticated user")
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.CreateJob(c.Context(), &req)
	if err != nil {
		var insufficient *ledger.InsufficientCreditsError
		switch {
		case errors.As(err, &insufficient):
			return response.InsufficientCredits(c, insufficient.Required, insufficient.Available)
		case errors.Is(err, service.ErrInvalidRequest):
			return response.ValidationError(c, err.Error(), nil)
		case errors.Is(err, ledger.ErrUserNotFound):
			return response.NotFound(c, "User not found")
		}
		log.Printf("[Bulk] ✗ create failed for user %s: %v", req.UserID, err)
		return response.ServiceError(c, "Failed to start bulk download")
	}

	return response.OK(c, result)
}

// Status handles GET /api/bulk/jobs/:jobId
// @Summary      Get bulk job status
// @Description  Progress, counts and, once completed, the signed archive link
// @Tags         Bulk
// @Produce      json
// @Param        jobId path string true "Job ID"
// @Success      200 {object} model.BulkStatusResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/bulk/jobs/{jobId} [get]
func (h *BulkHandler) Status(c *fiber.Ctx) error {
	result, err := h.service.GetStatus(c.Context(), c.Params("jobId"), middleware.GetUserID(c))
	if err != nil {
		if errors.Is(err, store.ErrJobNotFound) {
			return response.NotFound(c, "Job not found")
		}
		return response.ServiceError(c, "Failed to load job")
	}
	return response.OK(c, result)
}

// List handles GET /api/bulk/jobs
// @Summary      List recent bulk jobs
// @Tags         Bulk
// @Produce      json
// @Param        limit query int false "Max jobs (default 20)"
// @Success      200 {object} model.BulkJobListResponse
// @Failure      401 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/bulk/jobs [get]
func (h *BulkHandler) List(c *fiber.Ctx) error {
	result, err := h.service.ListJobs(c.Context(), middleware.GetUserID(c), c.QueryInt("limit", 0))
	if err != nil {
		return response.ServiceError(c, "Failed to list jobs")
	}
	return response.OK(c, result)
}

// Credits handles GET /api/credits
// @Summary      Get credit balance
// @Tags         Credits
// @Produce      json
// @Success      200 {object} model.CreditsResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/credits [get]
func (h *BulkHandler) Credits(c *fiber.Ctx) error {
	result, err := h.service.Balance(c.Context(), middleware.GetUserID(c))
	if err != nil {
		if errors.Is(err, ledger.ErrUserNotFound) {
			return response.NotFound(c, "User not found")
		}
		return response.ServiceError(c, "Failed to load balance")
	}
	return response.OK(c, result)
}

// Resolve handles POST /api/resolve
// @Summary      Resolve one URL
// @Description  Looks up the direct media URL and filename for a single source URL
// @Tags         Resolve
// @Accept       json
// @Produce      json
// @Param        request body model.ResolveRequest true "Resolve request"
// @Success      200 {object} model.ResolvedMedia
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Failure      502 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/resolve [post]
func (h *BulkHandler) Resolve(c *fiber.Ctx) error {
	var req model.ResolveRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	media, err := h.resolver.Resolve(c.Context(), req.URL, resolver.Options{
		Platform: req.Platform,
		Quality:  req.Quality,
		Format:   req.Format,
	})
	if err != nil {
		if errors.Is(err, resolver.ErrNoMedia) {
			return response.OK(c, resolver.Failed(err))
		}
		return response.UpstreamError(c, resolver.Failed(err).ErrorReason)
	}

	return response.OK(c, media)
}
