package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/klauspost/compress/flate"
	"golang.org/x/sync/semaphore"

	"github.com/reelsaver/api/internal/archive"
	"github.com/reelsaver/api/internal/client"
	"github.com/reelsaver/api/internal/model"
	"github.com/reelsaver/api/internal/resolver"
	"github.com/reelsaver/api/internal/store"
)

const deadlineExceededMessage = "processing deadline exceeded"

// ErrLinkExpired means the job finished after its download link would have
// expired. The uploaded archive is removed and the job fails.
var ErrLinkExpired = errors.New("download link expired before completion")

// ProgressNotifier receives live job events. *websocket.Hub implements it.
type ProgressNotifier interface {
	BroadcastProgress(jobID string, status model.JobStatus, update model.ProgressUpdate, total int)
	BroadcastComplete(jobID string, result interface{})
	BroadcastError(jobID string, code, message string)
}

// MediaResolver maps a source URL to a direct media URL
type MediaResolver interface {
	Resolve(ctx context.Context, sourceURL string, opts resolver.Options) (*model.ResolvedMedia, error)
}

// Config tunes a BulkWorker
type Config struct {
	LeaseTTL         time.Duration
	ItemTimeout      time.Duration
	ExecutionTimeout time.Duration
	LinkTTL          time.Duration
	FetchConcurrency int
	SpoolDir         string
}

// BulkWorker processes bulk download jobs: it resolves and downloads every
// URL in order, streams the files into one ZIP, uploads it and records a
// signed link.
type BulkWorker struct {
	store    store.JobStore
	resolver MediaResolver
	source   client.MediaSource
	storage  client.StorageClient
	notifier ProgressNotifier
	cfg      Config
	now      func() time.Time
}

// NewBulkWorker creates a new bulk worker. notifier may be nil.
func NewBulkWorker(jobStore store.JobStore, res MediaResolver, source client.MediaSource, storage client.StorageClient, notifier ProgressNotifier, cfg Config) *BulkWorker {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = 90 * time.Second
	}
	if cfg.LinkTTL <= 0 {
		cfg.LinkTTL = 24 * time.Hour
	}
	if cfg.FetchConcurrency < 1 {
		cfg.FetchConcurrency = 1
	}
	if cfg.SpoolDir == "" {
		cfg.SpoolDir = os.TempDir()
	}
	return &BulkWorker{
		store:    jobStore,
		resolver: res,
		source:   source,
		storage:  storage,
		notifier: notifier,
		cfg:      cfg,
		now:      time.Now,
	}
}

// ProcessTask handles bulk task processing
func (w *BulkWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload model.BulkTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.JobID == "" {
		return fmt.Errorf("invalid bulk task payload: %w", asynq.SkipRetry)
	}

	err := w.Process(ctx, payload.JobID)
	if errors.Is(err, store.ErrJobNotFound) {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	return err
}

// Process claims and runs one job. A job that another worker already
// claimed, or that finished, is skipped without error.
func (w *BulkWorker) Process(ctx context.Context, jobID string) error {
	owner := uuid.New().String()

	job, err := w.store.Claim(ctx, jobID, owner, w.cfg.LeaseTTL)
	if err != nil {
		if errors.Is(err, store.ErrJobNotClaimable) {
			log.Printf("[Bulk Worker] job %s already claimed or finished, skipping delivery", jobID)
			return nil
		}
		if errors.Is(err, store.ErrJobNotFound) {
			log.Printf("[Bulk Worker] ✗ job %s not found", jobID)
			return fmt.Errorf("job %s: %w", jobID, err)
		}
		return fmt.Errorf("failed to claim job: %w", err)
	}

	log.Printf("[Bulk Worker] starting job %s: %d urls, owner %s", jobID, job.Total(), owner)

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	if w.cfg.ExecutionTimeout > 0 {
		var cancelTimeout context.CancelFunc
		runCtx, cancelTimeout = context.WithTimeout(runCtx, w.cfg.ExecutionTimeout)
		defer cancelTimeout()
	}

	stopHeartbeat := w.startHeartbeat(runCtx, cancel, jobID, owner)
	err = w.run(runCtx, job, owner)
	stopHeartbeat()

	if err == nil {
		return nil
	}
	if errors.Is(err, store.ErrLeaseLost) || errors.Is(context.Cause(runCtx), store.ErrLeaseLost) {
		log.Printf("[Bulk Worker] lease on job %s lost, abandoning", jobID)
		return nil
	}

	message := err.Error()
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		message = deadlineExceededMessage
	}
	w.failJob(ctx, jobID, owner, message)
	return fmt.Errorf("job %s failed: %w", jobID, err)
}

// startHeartbeat renews the lease every LeaseTTL/3 until the returned stop
// func is called. Losing the lease cancels ctx with store.ErrLeaseLost.
func (w *BulkWorker) startHeartbeat(ctx context.Context, cancel context.CancelCauseFunc, jobID, owner string) func() {
	interval := w.cfg.LeaseTTL / 3
	done := make(chan struct{})
	stopped := make(chan struct{})

	go func() {
		defer close(stopped)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				err := w.store.Heartbeat(ctx, jobID, owner, w.cfg.LeaseTTL)
				if errors.Is(err, store.ErrLeaseLost) || errors.Is(err, store.ErrJobNotFound) {
					cancel(store.ErrLeaseLost)
					return
				}
				if err != nil && ctx.Err() == nil {
					log.Printf("[Bulk Worker] ✗ heartbeat for job %s failed: %v", jobID, err)
				}
			}
		}
	}()

	return func() {
		close(done)
		<-stopped
	}
}

// fetchedItem is one downloaded item waiting to be appended
type fetchedItem struct {
	sourceURL string
	directURL string
	path      string
	filename  string
	title     string
	err       error
}

func (f *fetchedItem) cleanup() {
	if f.path != "" {
		os.Remove(f.path)
	}
}

func (w *BulkWorker) run(ctx context.Context, job *model.BulkJob, owner string) error {
	archiveFile, err := os.CreateTemp(w.cfg.SpoolDir, "bulk-"+job.ID+"-*.zip")
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	defer func() {
		archiveFile.Close()
		os.Remove(archiveFile.Name())
	}()

	builder := archive.NewBuilder(archiveFile, archive.WithLevel(flate.BestSpeed))

	total := job.Total()
	step := (total + 4) / 5
	var (
		completed  int
		failed     int
		failedURLs []string
		results    []model.ItemResult
	)

	fetchCtx, stopFetch := context.WithCancel(ctx)
	defer stopFetch()
	items := w.fetchAll(fetchCtx, job)
	abort := func(from int) {
		stopFetch()
		w.drain(items[from:])
	}

	for i := 0; i < total; i++ {
		item := <-items[i].result

		if err := ctx.Err(); err != nil {
			item.cleanup()
			items[i].release()
			abort(i + 1)
			return err
		}

		if item.err != nil {
			log.Printf("[Bulk Worker] ✗ job %s item %d (%s): %v", job.ID, i, item.sourceURL, item.err)
			failed++
			failedURLs = append(failedURLs, item.sourceURL)
		} else {
			name, err := w.appendItem(ctx, builder, item)
			if err != nil {
				items[i].release()
				abort(i + 1)
				return fmt.Errorf("failed to write archive: %w", err)
			}
			completed++
			results = append(results, model.ItemResult{
				SourceURL:   item.sourceURL,
				Title:       item.title,
				Filename:    name,
				DownloadURL: item.directURL,
			})
		}
		items[i].release()

		update := model.ProgressUpdate{
			Owner:          owner,
			Progress:       progressPercent(i+1, total),
			CompletedCount: completed,
			FailedCount:    failed,
			CurrentIndex:   i,
		}
		if (i+1)%step == 0 || i == total-1 {
			if err := w.store.UpdateProgress(ctx, job.ID, update); err != nil {
				if errors.Is(err, store.ErrLeaseLost) {
					abort(i + 1)
					return err
				}
				log.Printf("[Bulk Worker] ✗ failed to persist progress for job %s: %v", job.ID, err)
			}
		}
		w.notifier.BroadcastProgress(job.ID, model.JobStatusProcessing, update, total)
	}

	size, err := builder.Finalize()
	if err != nil {
		return fmt.Errorf("failed to finalize archive: %w", err)
	}
	if err := archiveFile.Sync(); err != nil {
		return fmt.Errorf("failed to finalize archive: %w", err)
	}
	if _, err := archiveFile.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to rewind archive: %w", err)
	}

	key := fmt.Sprintf("%s/bulk_%s_%d.zip", job.UserID, job.ID, w.now().UnixMilli())
	if err := w.storage.Upload(ctx, key, archiveFile, "application/zip"); err != nil {
		return fmt.Errorf("failed to upload archive: %w", err)
	}

	expiresAt := job.LinkExpiry(w.cfg.LinkTTL)
	ttl := expiresAt.Sub(w.now())
	if ttl < time.Second {
		w.discardUpload(ctx, key)
		return ErrLinkExpired
	}
	signedURL, err := w.storage.GetSignedURL(ctx, key, ttl)
	if err != nil {
		w.discardUpload(ctx, key)
		return fmt.Errorf("failed to sign archive URL: %w", err)
	}

	if err := w.store.Complete(ctx, job.ID, model.Completion{
		Owner:          owner,
		CompletedCount: completed,
		FailedCount:    failed,
		FailedURLs:     failedURLs,
		Results:        results,
		StoragePath:    key,
		SignedURL:      signedURL,
		SizeBytes:      size,
		ExpiresAt:      expiresAt,
	}); err != nil {
		w.discardUpload(ctx, key)
		if errors.Is(err, store.ErrLeaseLost) {
			return err
		}
		return fmt.Errorf("failed to record completion: %w", err)
	}

	log.Printf("[Bulk Worker] job %s completed: %d ok, %d failed, %d bytes", job.ID, completed, failed, size)

	if final, err := w.store.Get(ctx, job.ID); err == nil {
		w.notifier.BroadcastComplete(job.ID, model.NewBulkStatusResponse(final))
	}
	return nil
}

// pendingItem is the future for one input URL
type pendingItem struct {
	result  chan *fetchedItem
	release func()
}

// fetchAll starts downloading items in input order with at most
// FetchConcurrency items fetched or waiting to be appended at once.
func (w *BulkWorker) fetchAll(ctx context.Context, job *model.BulkJob) []pendingItem {
	sem := semaphore.NewWeighted(int64(w.cfg.FetchConcurrency))
	items := make([]pendingItem, job.Total())
	for i := range items {
		items[i] = pendingItem{
			result:  make(chan *fetchedItem, 1),
			release: func() { sem.Release(1) },
		}
	}

	go func() {
		for i, sourceURL := range job.URLs {
			if err := sem.Acquire(ctx, 1); err != nil {
				for j := i; j < len(items); j++ {
					items[j].release = func() {}
					items[j].result <- &fetchedItem{sourceURL: job.URLs[j], err: err}
				}
				return
			}
			go func(i int, sourceURL string) {
				items[i].result <- w.fetchItem(ctx, job, sourceURL)
			}(i, sourceURL)
		}
	}()

	return items
}

// drain waits for items that will never be appended and discards them
func (w *BulkWorker) drain(items []pendingItem) {
	for i := range items {
		item := <-items[i].result
		item.cleanup()
		items[i].release()
	}
}

// fetchItem resolves sourceURL and spools the media to a temp file. The
// whole item is bounded by ItemTimeout.
func (w *BulkWorker) fetchItem(ctx context.Context, job *model.BulkJob, sourceURL string) *fetchedItem {
	item := &fetchedItem{sourceURL: sourceURL}

	itemCtx := ctx
	if w.cfg.ItemTimeout > 0 {
		var cancel context.CancelFunc
		itemCtx, cancel = context.WithTimeout(ctx, w.cfg.ItemTimeout)
		defer cancel()
	}

	media, err := w.resolver.Resolve(itemCtx, sourceURL, resolver.Options{
		Platform: job.Platform,
		Quality:  job.Quality,
		Format:   job.Format,
	})
	if err != nil {
		item.err = fmt.Errorf("resolve: %w", err)
		return item
	}
	item.filename = media.Filename
	item.title = media.Title
	item.directURL = media.DirectURL

	body, err := w.source.Open(itemCtx, media.DirectURL)
	if err != nil {
		item.err = fmt.Errorf("open media: %w", err)
		return item
	}
	defer body.Close()

	spool, err := os.CreateTemp(w.cfg.SpoolDir, "bulk-item-*")
	if err != nil {
		item.err = fmt.Errorf("create spool file: %w", err)
		return item
	}
	item.path = spool.Name()

	_, copyErr := io.Copy(spool, body)
	closeErr := spool.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		item.cleanup()
		item.path = ""
		item.err = fmt.Errorf("download: %w", copyErr)
	}
	return item
}

func (w *BulkWorker) appendItem(ctx context.Context, builder *archive.Builder, item *fetchedItem) (string, error) {
	defer item.cleanup()

	f, err := os.Open(item.path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	return builder.Append(ctx, item.filename, f)
}

// discardUpload removes an archive no job will ever link to
func (w *BulkWorker) discardUpload(ctx context.Context, key string) {
	delCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := w.storage.Delete(delCtx, key); err != nil {
		log.Printf("[Bulk Worker] ✗ failed to delete orphaned archive %s: %v", key, err)
	}
}

func (w *BulkWorker) failJob(ctx context.Context, jobID, owner, message string) {
	// The run context may already be done; the failure must still land.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := w.store.Fail(writeCtx, jobID, model.Failure{Owner: owner, Message: message}); err != nil {
		log.Printf("[Bulk Worker] ✗ failed to mark job %s failed: %v", jobID, err)
		return
	}
	log.Printf("[Bulk Worker] job %s failed: %s", jobID, message)
	w.notifier.BroadcastError(jobID, "JOB_FAILED", message)
}

// progressPercent returns round(100*done/total)
func progressPercent(done, total int) int {
	if total <= 0 {
		return 100
	}
	return (200*done + total) / (2 * total)
}

type noopNotifier struct{}

func (noopNotifier) BroadcastProgress(string, model.JobStatus, model.ProgressUpdate, int) {}
func (noopNotifier) BroadcastComplete(string, interface{})                                {}
func (noopNotifier) BroadcastError(string, string, string)                                {}
