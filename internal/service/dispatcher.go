package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/hibiken/asynq"

	"github.com/reelsaver/api/internal/model"
)

const (
	TaskTypeBulk = "bulk:process"
	QueueBulk    = "bulk"
)

const (
	DispatchModeQueue  = "queue"
	DispatchModeInline = "inline"
)

// JobDispatcher hands a created job to asynchronous execution. Dispatch
// must return without waiting for the job to run.
type JobDispatcher interface {
	Dispatch(ctx context.Context, jobID string) error
}

// TaskEnqueuer is the subset of *asynq.Client used for dispatch
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// JobProcessor runs one job to completion
type JobProcessor interface {
	Process(ctx context.Context, jobID string) error
}

// QueueDispatcher enqueues a durable asynq task per job. The task id is the
// job id, so a repeated dispatch of the same job is a no-op.
type QueueDispatcher struct {
	client    TaskEnqueuer
	retention time.Duration
}

func NewQueueDispatcher(client TaskEnqueuer, retention time.Duration) *QueueDispatcher {
	return &QueueDispatcher{client: client, retention: retention}
}

func (d *QueueDispatcher) Dispatch(ctx context.Context, jobID string) error {
	task, err := NewBulkTask(jobID)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	opts := []asynq.Option{
		asynq.Queue(QueueBulk),
		asynq.TaskID(jobID),
		// Jobs are terminal on failure; redelivery is handled by the claim.
		asynq.MaxRetry(0),
	}
	if d.retention > 0 {
		opts = append(opts, asynq.Retention(d.retention))
	}

	if _, err := d.client.EnqueueContext(ctx, task, opts...); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return nil
		}
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}

// NewBulkTask builds the asynq task referencing jobID
func NewBulkTask(jobID string) (*asynq.Task, error) {
	data, err := json.Marshal(model.BulkTaskPayload{JobID: jobID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeBulk, data), nil
}

// InlineDispatcher runs the job on a goroutine in this process, detached
// from the request context and bounded by timeout.
type InlineDispatcher struct {
	processor JobProcessor
	timeout   time.Duration
	wg        sync.WaitGroup
}

func NewInlineDispatcher(processor JobProcessor, timeout time.Duration) *InlineDispatcher {
	return &InlineDispatcher{processor: processor, timeout: timeout}
}

func (d *InlineDispatcher) Dispatch(ctx context.Context, jobID string) error {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		runCtx := context.Background()
		if d.timeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(runCtx, d.timeout)
			defer cancel()
		}
		if err := d.processor.Process(runCtx, jobID); err != nil {
			log.Printf("[Dispatcher] inline job %s ended with error: %v", jobID, err)
		}
	}()
	return nil
}

// Wait blocks until every inline job started so far has returned
func (d *InlineDispatcher) Wait() {
	d.wg.Wait()
}
