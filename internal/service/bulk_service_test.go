package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"

	"github.com/reelsaver/api/internal/ledger"
	"github.com/reelsaver/api/internal/model"
	"github.com/reelsaver/api/internal/store"
)

type recordingDispatcher struct {
	mu   sync.Mutex
	jobs []string
	err  error
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, jobID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.jobs = append(d.jobs, jobID)
	return nil
}

func newTestService(t *testing.T, balance int) (*BulkService, store.JobStore, *ledger.MemoryLedger, *recordingDispatcher) {
	t.Helper()
	jobs := store.NewMemoryJobStore(store.Options{Capacity: 100})
	credits := ledger.NewMemoryLedger()
	credits.Set("user-1", balance)
	d := &recordingDispatcher{}
	return NewBulkService(jobs, credits, d, 10), jobs, credits, d
}

func TestCreateJob_DebitsAndQueues(t *testing.T) {
	svc, jobs, credits, d := newTestService(t, 5)

	resp, err := svc.CreateJob(context.Background(), &model.BulkCreateRequest{
		URLs:   []string{"https://tiktok.com/v/1", "https://tiktok.com/v/2"},
		UserID: "user-1",
	})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if !resp.Success || resp.CreditsDeducted != 1 || resp.RemainingCredits != 4 {
		t.Errorf("unexpected response: %+v", resp)
	}

	job, err := jobs.Get(context.Background(), resp.JobID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if job.Status != model.JobStatusQueued || job.CreditsCharged != 1 || job.Total() != 2 {
		t.Errorf("unexpected job: %+v", job)
	}
	if job.Quality != model.QualityBest || job.Format != model.FormatMP4 || job.Platform != model.PlatformAuto {
		t.Errorf("defaults not applied: %s %s %s", job.Quality, job.Format, job.Platform)
	}
	if len(d.jobs) != 1 || d.jobs[0] != resp.JobID {
		t.Errorf("dispatched %v", d.jobs)
	}
	if bal, _ := credits.Balance(context.Background(), "user-1"); bal != 4 {
		t.Errorf("balance = %d, want 4", bal)
	}
}

func TestCreateJob_InvalidInputHasNoSideEffects(t *testing.T) {
	svc, _, credits, d := newTestService(t, 5)

	tests := []struct {
		name string
		req  *model.BulkCreateRequest
	}{
		{"empty urls", &model.BulkCreateRequest{UserID: "user-1"}},
		{"missing user", &model.BulkCreateRequest{URLs: []string{"https://x.com/1"}}},
		{"too many urls", &model.BulkCreateRequest{UserID: "user-1", URLs: make([]string, 11)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.CreateJob(context.Background(), tt.req); !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("expected ErrInvalidRequest, got %v", err)
			}
		})
	}
	if bal, _ := credits.Balance(context.Background(), "user-1"); bal != 5 {
		t.Errorf("balance changed to %d", bal)
	}
	if len(d.jobs) != 0 {
		t.Errorf("dispatched %v", d.jobs)
	}
}

func TestCreateJob_InsufficientCredits(t *testing.T) {
	svc, _, _, d := newTestService(t, 0)

	_, err := svc.CreateJob(context.Background(), &model.BulkCreateRequest{
		URLs:   []string{"https://a/1", "https://a/2", "https://a/3", "https://a/4"},
		UserID: "user-1",
	})

	var insufficient *ledger.InsufficientCreditsError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientCreditsError, got %v", err)
	}
	if insufficient.Required != 2 || insufficient.Available != 0 {
		t.Errorf("required=%d available=%d", insufficient.Required, insufficient.Available)
	}
	if len(d.jobs) != 0 {
		t.Error("job dispatched without credits")
	}
}

func TestCreateJob_UnknownUser(t *testing.T) {
	svc, _, _, _ := newTestService(t, 5)
	_, err := svc.CreateJob(context.Background(), &model.BulkCreateRequest{URLs: []string{"https://a/1"}, UserID: "ghost"})
	if !errors.Is(err, ledger.ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}

func TestCreateJob_DispatchFailureLeavesJobQueued(t *testing.T) {
	svc, jobs, credits, d := newTestService(t, 5)
	d.err = errors.New("redis down")

	_, err := svc.CreateJob(context.Background(), &model.BulkCreateRequest{URLs: []string{"https://a/1"}, UserID: "user-1"})
	if !errors.Is(err, ErrDispatchFailed) {
		t.Fatalf("expected ErrDispatchFailed, got %v", err)
	}

	list, _ := jobs.ListByUser(context.Background(), "user-1", 10)
	if len(list) != 1 || list[0].Status != model.JobStatusQueued {
		t.Errorf("expected one queued job, got %+v", list)
	}
	if bal, _ := credits.Balance(context.Background(), "user-1"); bal != 4 {
		t.Errorf("credits are not refunded; balance = %d, want 4", bal)
	}
}

func TestCreateJob_ConcurrentSubmissionsNeverOverspend(t *testing.T) {
	svc, _, credits, _ := newTestService(t, 3)

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CreateJob(context.Background(), &model.BulkCreateRequest{
				URLs:   []string{"https://a/1", "https://a/2"},
				UserID: "user-1",
			})
			if err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if accepted != 3 {
		t.Errorf("accepted %d jobs, want 3", accepted)
	}
	if bal, _ := credits.Balance(context.Background(), "user-1"); bal != 0 {
		t.Errorf("balance = %d, want 0", bal)
	}
}

func TestGetStatus_OwnerScoped(t *testing.T) {
	svc, _, _, _ := newTestService(t, 5)
	resp, err := svc.CreateJob(context.Background(), &model.BulkCreateRequest{URLs: []string{"https://a/1"}, UserID: "user-1"})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	status, err := svc.GetStatus(context.Background(), resp.JobID, "user-1")
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if status.Status != model.JobStatusQueued || status.Total != 1 || status.FailedURLs == nil {
		t.Errorf("unexpected status: %+v", status)
	}

	if _, err := svc.GetStatus(context.Background(), resp.JobID, "user-2"); !errors.Is(err, store.ErrJobNotFound) {
		t.Errorf("other user saw the job: %v", err)
	}
}

func TestListJobs(t *testing.T) {
	svc, _, _, _ := newTestService(t, 10)
	for i := 0; i < 3; i++ {
		svc.CreateJob(context.Background(), &model.BulkCreateRequest{URLs: []string{"https://a/1"}, UserID: "user-1"})
	}

	list, err := svc.ListJobs(context.Background(), "user-1", 0)
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(list.Jobs) != 3 {
		t.Errorf("got %d jobs", len(list.Jobs))
	}
}

type fakeEnqueuer struct {
	tasks []*asynq.Task
	opts  [][]asynq.Option
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	f.opts = append(f.opts, opts)
	return &asynq.TaskInfo{ID: "t"}, nil
}

func TestQueueDispatcher(t *testing.T) {
	enq := &fakeEnqueuer{}
	d := NewQueueDispatcher(enq, time.Hour)

	if err := d.Dispatch(context.Background(), "job-1"); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(enq.tasks) != 1 || enq.tasks[0].Type() != TaskTypeBulk {
		t.Fatalf("unexpected tasks: %v", enq.tasks)
	}
	if string(enq.tasks[0].Payload()) != `{"jobId":"job-1"}` {
		t.Errorf("payload = %s", enq.tasks[0].Payload())
	}

	found := map[asynq.OptionType]interface{}{}
	for _, o := range enq.opts[0] {
		found[o.Type()] = o.Value()
	}
	if found[asynq.QueueOpt] != QueueBulk || found[asynq.TaskIDOpt] != "job-1" || found[asynq.MaxRetryOpt] != 0 {
		t.Errorf("unexpected options: %v", found)
	}
}

func TestQueueDispatcher_DuplicateIsNoop(t *testing.T) {
	d := NewQueueDispatcher(&fakeEnqueuer{err: asynq.ErrTaskIDConflict}, 0)
	if err := d.Dispatch(context.Background(), "job-1"); err != nil {
		t.Errorf("duplicate dispatch should succeed, got %v", err)
	}

	d = NewQueueDispatcher(&fakeEnqueuer{err: errors.New("connection refused")}, 0)
	if err := d.Dispatch(context.Background(), "job-1"); err == nil {
		t.Error("expected enqueue error")
	}
}

type blockingProcessor struct {
	release chan struct{}
	done    chan string
}

func (p *blockingProcessor) Process(ctx context.Context, jobID string) error {
	<-p.release
	p.done <- jobID
	return nil
}

func TestInlineDispatcher_ReturnsBeforeJobRuns(t *testing.T) {
	p := &blockingProcessor{release: make(chan struct{}), done: make(chan string, 1)}
	d := NewInlineDispatcher(p, time.Minute)

	if err := d.Dispatch(context.Background(), "job-1"); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	select {
	case <-p.done:
		t.Fatal("job ran before Dispatch returned control")
	default:
	}

	close(p.release)
	d.Wait()
	if got := <-p.done; got != "job-1" {
		t.Errorf("processed %q", got)
	}
}
