package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/reelsaver/api/internal/model"
)

// MemoryJobStore keeps jobs in process memory. It is bounded: when full it
// evicts the oldest finished job, and refuses new jobs if none has finished.
type MemoryJobStore struct {
	mu            sync.RWMutex
	jobs          map[string]*memoryEntry
	order         []string
	capacity      int
	queuedTimeout time.Duration
}

type memoryEntry struct {
	job            *model.BulkJob
	queuedDeadline time.Time
}

func NewMemoryJobStore(opts Options) *MemoryJobStore {
	return &MemoryJobStore{
		jobs:          make(map[string]*memoryEntry),
		capacity:      opts.Capacity,
		queuedTimeout: opts.QueuedTimeout,
	}
}

func (s *MemoryJobStore) Create(ctx context.Context, job *model.BulkJob) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := cloneJob(job)
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	if _, exists := s.jobs[stored.ID]; exists {
		return "", fmt.Errorf("job %s already exists", stored.ID)
	}
	if s.capacity > 0 && len(s.jobs) >= s.capacity && !s.evictOldestTerminal() {
		return "", ErrStoreFull
	}

	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	stored.Status = model.JobStatusQueued
	stored.Progress = 0

	entry := &memoryEntry{job: stored}
	if s.queuedTimeout > 0 {
		entry.queuedDeadline = stored.CreatedAt.Add(s.queuedTimeout)
	}
	s.jobs[stored.ID] = entry
	s.order = append(s.order, stored.ID)
	return stored.ID, nil
}

func (s *MemoryJobStore) Get(ctx context.Context, jobID string) (*model.BulkJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	return cloneJob(entry.job), nil
}

func (s *MemoryJobStore) ListByUser(ctx context.Context, userID string, limit int) ([]*model.BulkJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]*model.BulkJob, 0)
	for i := len(s.order) - 1; i >= 0; i-- {
		entry := s.jobs[s.order[i]]
		if entry.job.UserID != userID {
			continue
		}
		jobs = append(jobs, cloneJob(entry.job))
		if limit > 0 && len(jobs) == limit {
			break
		}
	}
	return jobs, nil
}

func (s *MemoryJobStore) Claim(ctx context.Context, jobID, owner string, lease time.Duration) (*model.BulkJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	if entry.job.Status != model.JobStatusQueued {
		return nil, ErrJobNotClaimable
	}

	now := time.Now()
	leaseUntil := now.Add(lease)
	entry.job.Status = model.JobStatusProcessing
	entry.job.Owner = owner
	entry.job.StartedAt = &now
	entry.job.LeaseUntil = &leaseUntil
	return cloneJob(entry.job), nil
}

func (s *MemoryJobStore) Heartbeat(ctx context.Context, jobID, owner string, lease time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := s.leased(jobID, owner)
	if err != nil {
		return err
	}
	leaseUntil := time.Now().Add(lease)
	entry.job.LeaseUntil = &leaseUntil
	return nil
}

func (s *MemoryJobStore) UpdateProgress(ctx context.Context, jobID string, update model.ProgressUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := s.leased(jobID, update.Owner)
	if err != nil {
		return err
	}
	job := entry.job
	if update.CompletedCount+update.FailedCount > job.Total() {
		return fmt.Errorf("progress counts %d+%d exceed %d items", update.CompletedCount, update.FailedCount, job.Total())
	}

	progress := clampProgress(update.Progress)
	if progress < job.Progress {
		return nil
	}
	job.Progress = progress
	job.CompletedFiles = update.CompletedCount
	job.FailedFiles = update.FailedCount
	job.CurrentIndex = update.CurrentIndex
	return nil
}

func (s *MemoryJobStore) Complete(ctx context.Context, jobID string, c model.Completion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := s.leased(jobID, c.Owner)
	if err != nil {
		return err
	}
	job := entry.job
	if c.CompletedCount+c.FailedCount > job.Total() {
		return fmt.Errorf("completion counts %d+%d exceed %d items", c.CompletedCount, c.FailedCount, job.Total())
	}

	now := time.Now()
	expiresAt := c.ExpiresAt
	job.Status = model.JobStatusCompleted
	job.Progress = 100
	job.CompletedFiles = c.CompletedCount
	job.FailedFiles = c.FailedCount
	job.FailedURLs = append([]string(nil), c.FailedURLs...)
	job.Results = append([]model.ItemResult(nil), c.Results...)
	job.StoragePath = c.StoragePath
	job.ZipURL = c.SignedURL
	job.SizeBytes = c.SizeBytes
	job.ExpiresAt = &expiresAt
	job.CompletedAt = &now
	job.LeaseUntil = nil
	return nil
}

func (s *MemoryJobStore) Fail(ctx context.Context, jobID string, f model.Failure) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	if entry.job.Status.IsTerminal() {
		return ErrJobNotActive
	}
	if f.Owner != "" && (entry.job.Status != model.JobStatusProcessing || entry.job.Owner != f.Owner) {
		return ErrLeaseLost
	}
	markFailed(entry.job, f.Message, time.Now())
	return nil
}

func (s *MemoryJobStore) ExpireStale(ctx context.Context, now time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []string
	for _, id := range s.order {
		entry := s.jobs[id]
		job := entry.job
		switch {
		case job.Status == model.JobStatusQueued && !entry.queuedDeadline.IsZero() && !now.Before(entry.queuedDeadline):
			markFailed(job, staleQueuedMessage, now)
		case job.Status == model.JobStatusProcessing && job.LeaseUntil != nil && !now.Before(*job.LeaseUntil):
			markFailed(job, staleProcessingMessage, now)
		default:
			continue
		}
		expired = append(expired, id)
	}
	return expired, nil
}

// Len returns the number of stored jobs.
func (s *MemoryJobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

// leased returns the entry if owner still holds the job. The lock must be held.
func (s *MemoryJobStore) leased(jobID, owner string) (*memoryEntry, error) {
	entry, ok := s.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	if entry.job.Status != model.JobStatusProcessing {
		if entry.job.Status.IsTerminal() {
			return nil, ErrLeaseLost
		}
		return nil, ErrJobNotActive
	}
	if owner != "" && entry.job.Owner != owner {
		return nil, ErrLeaseLost
	}
	return entry, nil
}

func (s *MemoryJobStore) evictOldestTerminal() bool {
	for i, id := range s.order {
		if s.jobs[id].job.Status.IsTerminal() {
			delete(s.jobs, id)
			s.order = append(s.order[:i], s.order[i+1:]...)
			return true
		}
	}
	return false
}

func markFailed(job *model.BulkJob, message string, at time.Time) {
	msg := message
	job.Status = model.JobStatusFailed
	job.Error = &msg
	job.CompletedAt = &at
	job.LeaseUntil = nil
}

func cloneJob(job *model.BulkJob) *model.BulkJob {
	c := *job
	c.URLs = append([]string(nil), job.URLs...)
	c.FailedURLs = append([]string(nil), job.FailedURLs...)
	c.Results = append([]model.ItemResult(nil), job.Results...)
	c.LeaseUntil = cloneTime(job.LeaseUntil)
	c.ExpiresAt = cloneTime(job.ExpiresAt)
	c.StartedAt = cloneTime(job.StartedAt)
	c.CompletedAt = cloneTime(job.CompletedAt)
	if job.Error != nil {
		msg := *job.Error
		c.Error = &msg
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
