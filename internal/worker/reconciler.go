package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/reelsaver/api/internal/store"
)

// Reconciler fails jobs that were never picked up or whose worker stopped
// renewing its lease.
type Reconciler struct {
	store    store.JobStore
	notifier ProgressNotifier
	now      func() time.Time
}

func NewReconciler(jobStore store.JobStore, notifier ProgressNotifier) *Reconciler {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &Reconciler{store: jobStore, notifier: notifier, now: time.Now}
}

// Sweep expires stale jobs once and returns their ids
func (r *Reconciler) Sweep(ctx context.Context) ([]string, error) {
	expired, err := r.store.ExpireStale(ctx, r.now())
	if err != nil {
		return nil, fmt.Errorf("failed to expire stale jobs: %w", err)
	}
	for _, jobID := range expired {
		message := "job expired"
		if job, err := r.store.Get(ctx, jobID); err == nil && job.Error != nil {
			message = *job.Error
		}
		log.Printf("[Reconciler] job %s failed: %s", jobID, message)
		r.notifier.BroadcastError(jobID, "JOB_FAILED", message)
	}
	return expired, nil
}

// Schedule registers Sweep on c using a seconds-precision cron spec
func (r *Reconciler) Schedule(c *cron.Cron, spec string) (cron.EntryID, error) {
	return c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := r.Sweep(ctx); err != nil {
			log.Printf("[Reconciler] ✗ sweep failed: %v", err)
		}
	})
}
