// Package store persists bulk jobs and enforces the single-writer lease.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/reelsaver/api/internal/model"
)

var (
	ErrJobNotFound     = errors.New("job not found")
	ErrJobNotClaimable = errors.New("job is not queued")
	ErrLeaseLost       = errors.New("job lease lost")
	ErrJobNotActive    = errors.New("job already finished")
	ErrStoreFull       = errors.New("job store is full")
)

// JobStore is the read/write contract shared by the dispatcher, the worker,
// the reconciler and status readers.
type JobStore interface {
	// Create stores job in the queued state and returns its id.
	Create(ctx context.Context, job *model.BulkJob) (string, error)
	Get(ctx context.Context, jobID string) (*model.BulkJob, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*model.BulkJob, error)

	// Claim moves a queued job to processing under owner. Only one caller
	// can win; the rest get ErrJobNotClaimable.
	Claim(ctx context.Context, jobID, owner string, lease time.Duration) (*model.BulkJob, error)
	Heartbeat(ctx context.Context, jobID, owner string, lease time.Duration) error

	// UpdateProgress is a partial update. A progress value lower than the
	// stored one is ignored.
	UpdateProgress(ctx context.Context, jobID string, update model.ProgressUpdate) error
	Complete(ctx context.Context, jobID string, completion model.Completion) error
	Fail(ctx context.Context, jobID string, failure model.Failure) error

	// ExpireStale fails every queued job past its dispatch deadline and
	// every processing job whose lease has run out. It returns their ids.
	ExpireStale(ctx context.Context, now time.Time) ([]string, error)
}

// Options tune both implementations.
type Options struct {
	// QueuedTimeout bounds how long a job may wait for a worker.
	QueuedTimeout time.Duration
	// Capacity bounds the memory store.
	Capacity int
}

const (
	staleQueuedMessage     = "job was never picked up by a worker"
	staleProcessingMessage = "worker stopped reporting progress"
)

const (
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// New builds the store named by backend.
func New(backend string, rdb redis.UniversalClient, opts Options) (JobStore, error) {
	switch backend {
	case BackendRedis:
		if rdb == nil {
			return nil, fmt.Errorf("redis job store requires a redis client")
		}
		return NewRedisJobStore(rdb, opts), nil
	case BackendMemory:
		return NewMemoryJobStore(opts), nil
	default:
		return nil, fmt.Errorf("unknown job store backend %q", backend)
	}
}

func clampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
