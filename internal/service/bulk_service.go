package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/reelsaver/api/internal/ledger"
	"github.com/reelsaver/api/internal/model"
	"github.com/reelsaver/api/internal/store"
)

var (
	ErrInvalidRequest = errors.New("invalid bulk request")
	ErrDispatchFailed = errors.New("job created but could not be dispatched")
)

const defaultListLimit = 20

// BulkService accepts bulk download requests: it charges credits, records
// the job and hands it off for asynchronous processing.
type BulkService struct {
	store      store.JobStore
	ledger     ledger.Ledger
	dispatcher JobDispatcher
	maxURLs    int
	now        func() time.Time
}

func NewBulkService(jobStore store.JobStore, credits ledger.Ledger, dispatcher JobDispatcher, maxURLs int) *BulkService {
	return &BulkService{
		store:      jobStore,
		ledger:     credits,
		dispatcher: dispatcher,
		maxURLs:    maxURLs,
		now:        time.Now,
	}
}

// CreateJob debits ceil(len(urls)/2) credits, creates a queued job and
// dispatches it. Ledger errors are returned unwrapped so callers can match
// ledger.ErrUserNotFound and *ledger.InsufficientCreditsError.
func (s *BulkService) CreateJob(ctx context.Context, req *model.BulkCreateRequest) (*model.BulkCreateResponse, error) {
	if len(req.URLs) == 0 {
		return nil, fmt.Errorf("%w: urls must not be empty", ErrInvalidRequest)
	}
	if s.maxURLs > 0 && len(req.URLs) > s.maxURLs {
		return nil, fmt.Errorf("%w: at most %d urls per job", ErrInvalidRequest, s.maxURLs)
	}
	if req.UserID == "" {
		return nil, fmt.Errorf("%w: userId is required", ErrInvalidRequest)
	}

	cost := ledger.CreditsRequired(len(req.URLs))
	remaining, err := s.ledger.Debit(ctx, req.UserID, cost)
	if err != nil {
		return nil, err
	}

	job := &model.BulkJob{
		UserID:         req.UserID,
		URLs:           append([]string(nil), req.URLs...),
		Quality:        withDefault(req.Quality, model.QualityBest),
		Format:         withDefault(req.Format, model.FormatMP4),
		Platform:       withDefault(req.Platform, model.PlatformAuto),
		CreditsCharged: cost,
		CreatedAt:      s.now().UTC(),
	}

	jobID, err := s.store.Create(ctx, job)
	if err != nil {
		log.Printf("[Bulk] ✗ user %s charged %d credits but job was not created: %v", req.UserID, cost, err)
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	if err := s.dispatcher.Dispatch(ctx, jobID); err != nil {
		log.Printf("[Bulk] ✗ job %s left queued, dispatch failed: %v", jobID, err)
		return nil, fmt.Errorf("%w: %v", ErrDispatchFailed, err)
	}

	log.Printf("[Bulk] job %s queued: user=%s urls=%d credits=%d", jobID, req.UserID, len(req.URLs), cost)

	return &model.BulkCreateResponse{
		Success:          true,
		JobID:            jobID,
		CreditsDeducted:  cost,
		RemainingCredits: remaining,
		Message:          fmt.Sprintf("Bulk download started for %d URLs", len(req.URLs)),
	}, nil
}

// GetStatus returns the job if it belongs to userID. An empty userID skips
// the ownership check.
func (s *BulkService) GetStatus(ctx context.Context, jobID, userID string) (*model.BulkStatusResponse, error) {
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if userID != "" && job.UserID != userID {
		return nil, store.ErrJobNotFound
	}
	return model.NewBulkStatusResponse(job), nil
}

// ListJobs returns the user's most recent jobs, newest first
func (s *BulkService) ListJobs(ctx context.Context, userID string, limit int) (*model.BulkJobListResponse, error) {
	if limit <= 0 || limit > 100 {
		limit = defaultListLimit
	}
	jobs, err := s.store.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	resp := &model.BulkJobListResponse{Jobs: make([]*model.BulkStatusResponse, 0, len(jobs))}
	for _, job := range jobs {
		resp.Jobs = append(resp.Jobs, model.NewBulkStatusResponse(job))
	}
	return resp, nil
}

// Balance returns the user's credit balance
func (s *BulkService) Balance(ctx context.Context, userID string) (*model.CreditsResponse, error) {
	balance, err := s.ledger.Balance(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &model.CreditsResponse{UserID: userID, Balance: balance}, nil
}

func withDefault[T ~string](v, def T) T {
	if v == "" {
		return def
	}
	return v
}
