package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/reelsaver/api/internal/model"
)

const (
	jobKeyPrefix      = "bulkjob:"
	deadlinesKey      = "bulkjobs:deadlines"
	userJobsKeyPrefix = "bulkjobs:user:"
)

// Shared preamble for writes that require the caller to hold the lease.
// ARGV[1] is the owner; an empty owner skips the owner comparison.
const leaseGuard = `
if redis.call('EXISTS', KEYS[1]) == 0 then return -1 end
local status = redis.call('HGET', KEYS[1], 'status')
if status == 'completed' or status == 'failed' then return -2 end
if status ~= 'processing' then return -3 end
if ARGV[1] ~= '' and redis.call('HGET', KEYS[1], 'owner') ~= ARGV[1] then return -2 end
`

const countsGuard = `
local total = tonumber(redis.call('HGET', KEYS[1], 'total') or '0')
if tonumber(ARGV[%d]) + tonumber(ARGV[%d]) > total then return -4 end
`

var createScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then return 0 end
for i = 4, #ARGV, 2 do
  redis.call('HSET', KEYS[1], ARGV[i], ARGV[i + 1])
end
if tonumber(ARGV[2]) > 0 then redis.call('ZADD', KEYS[2], ARGV[2], ARGV[1]) end
redis.call('ZADD', KEYS[3], ARGV[3], ARGV[1])
return 1
`)

var claimScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return -1 end
if redis.call('HGET', KEYS[1], 'status') ~= 'queued' then return 0 end
redis.call('HSET', KEYS[1], 'status', 'processing', 'owner', ARGV[1], 'lease_until', ARGV[2], 'started_at', ARGV[4])
redis.call('ZADD', KEYS[2], ARGV[2], ARGV[3])
return 1
`)

var heartbeatScript = redis.NewScript(leaseGuard + `
redis.call('HSET', KEYS[1], 'lease_until', ARGV[2])
redis.call('ZADD', KEYS[2], ARGV[2], ARGV[3])
return 1
`)

var progressScript = redis.NewScript(leaseGuard + fmt.Sprintf(countsGuard, 3, 4) + `
local current = tonumber(redis.call('HGET', KEYS[1], 'progress') or '0')
if tonumber(ARGV[2]) < current then return 0 end
redis.call('HSET', KEYS[1], 'progress', ARGV[2], 'completed', ARGV[3], 'failed', ARGV[4], 'current_index', ARGV[5])
return 1
`)

var completeScript = redis.NewScript(leaseGuard + fmt.Sprintf(countsGuard, 3, 4) + `
for i = 5, #ARGV, 2 do
  redis.call('HSET', KEYS[1], ARGV[i], ARGV[i + 1])
end
redis.call('HDEL', KEYS[1], 'lease_until')
redis.call('ZREM', KEYS[2], ARGV[2])
return 1
`)

var failScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return -1 end
local status = redis.call('HGET', KEYS[1], 'status')
if status == 'completed' or status == 'failed' then return -3 end
if ARGV[1] ~= '' and (status ~= 'processing' or redis.call('HGET', KEYS[1], 'owner') ~= ARGV[1]) then return -2 end
redis.call('HSET', KEYS[1], 'status', 'failed', 'error', ARGV[3], 'completed_at', ARGV[4])
redis.call('HDEL', KEYS[1], 'lease_until')
redis.call('ZREM', KEYS[2], ARGV[2])
return 1
`)

var expireScript = redis.NewScript(`
local status = redis.call('HGET', KEYS[1], 'status')
local deadline
local message
if status == 'queued' then
  deadline = redis.call('HGET', KEYS[1], 'queued_deadline')
  message = ARGV[3]
elseif status == 'processing' then
  deadline = redis.call('HGET', KEYS[1], 'lease_until')
  message = ARGV[4]
else
  redis.call('ZREM', KEYS[2], ARGV[2])
  return 0
end
if not deadline or tonumber(deadline) > tonumber(ARGV[1]) then return 0 end
redis.call('HSET', KEYS[1], 'status', 'failed', 'error', message, 'completed_at', ARGV[5])
redis.call('HDEL', KEYS[1], 'lease_until')
redis.call('ZREM', KEYS[2], ARGV[2])
return 1
`)

// RedisJobStore keeps each job in a hash and tracks active deadlines in a
// sorted set so the reconciler can find stale jobs without scanning.
type RedisJobStore struct {
	rdb           redis.UniversalClient
	queuedTimeout time.Duration
}

func NewRedisJobStore(rdb redis.UniversalClient, opts Options) *RedisJobStore {
	return &RedisJobStore{
		rdb:           rdb,
		queuedTimeout: opts.QueuedTimeout,
	}
}

func jobKey(jobID string) string {
	return jobKeyPrefix + jobID
}

func userJobsKey(userID string) string {
	return userJobsKeyPrefix + userID
}

func (s *RedisJobStore) Create(ctx context.Context, job *model.BulkJob) (string, error) {
	stored := cloneJob(job)
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	stored.Status = model.JobStatusQueued
	stored.Progress = 0

	urls, err := json.Marshal(stored.URLs)
	if err != nil {
		return "", fmt.Errorf("failed to marshal urls: %w", err)
	}

	var queuedDeadline int64
	if s.queuedTimeout > 0 {
		queuedDeadline = stored.CreatedAt.Add(s.queuedTimeout).UnixMilli()
	}

	args := []interface{}{
		stored.ID, queuedDeadline, stored.CreatedAt.UnixMilli(),
		"id", stored.ID,
		"user_id", stored.UserID,
		"urls", string(urls),
		"total", len(stored.URLs),
		"quality", string(stored.Quality),
		"format", string(stored.Format),
		"platform", string(stored.Platform),
		"credits", stored.CreditsCharged,
		"status", string(stored.Status),
		"progress", 0,
		"current_index", 0,
		"completed", 0,
		"failed", 0,
		"created_at", formatTime(stored.CreatedAt),
		"queued_deadline", queuedDeadline,
	}

	keys := []string{jobKey(stored.ID), deadlinesKey, userJobsKey(stored.UserID)}
	created, err := createScript.Run(ctx, s.rdb, keys, args...).Int()
	if err != nil {
		return "", fmt.Errorf("failed to save job: %w", err)
	}
	if created == 0 {
		return "", fmt.Errorf("job %s already exists", stored.ID)
	}
	return stored.ID, nil
}

func (s *RedisJobStore) Get(ctx context.Context, jobID string) (*model.BulkJob, error) {
	fields, err := s.rdb.HGetAll(ctx, jobKey(jobID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load job: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrJobNotFound
	}
	return decodeJob(fields)
}

func (s *RedisJobStore) ListByUser(ctx context.Context, userID string, limit int) ([]*model.BulkJob, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	ids, err := s.rdb.ZRevRange(ctx, userJobsKey(userID), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	jobs := make([]*model.BulkJob, 0, len(ids))
	for _, id := range ids {
		job, err := s.Get(ctx, id)
		if errors.Is(err, ErrJobNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (s *RedisJobStore) Claim(ctx context.Context, jobID, owner string, lease time.Duration) (*model.BulkJob, error) {
	now := time.Now()
	keys := []string{jobKey(jobID), deadlinesKey}
	res, err := claimScript.Run(ctx, s.rdb, keys, owner, now.Add(lease).UnixMilli(), jobID, formatTime(now)).Int()
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}
	switch res {
	case -1:
		return nil, ErrJobNotFound
	case 0:
		return nil, ErrJobNotClaimable
	}
	return s.Get(ctx, jobID)
}

func (s *RedisJobStore) Heartbeat(ctx context.Context, jobID, owner string, lease time.Duration) error {
	keys := []string{jobKey(jobID), deadlinesKey}
	res, err := heartbeatScript.Run(ctx, s.rdb, keys, owner, time.Now().Add(lease).UnixMilli(), jobID).Int()
	if err != nil {
		return fmt.Errorf("failed to renew lease: %w", err)
	}
	return guardError(res)
}

func (s *RedisJobStore) UpdateProgress(ctx context.Context, jobID string, u model.ProgressUpdate) error {
	keys := []string{jobKey(jobID)}
	res, err := progressScript.Run(ctx, s.rdb, keys,
		u.Owner, clampProgress(u.Progress), u.CompletedCount, u.FailedCount, u.CurrentIndex,
	).Int()
	if err != nil {
		return fmt.Errorf("failed to update progress: %w", err)
	}
	if res == -4 {
		return fmt.Errorf("progress counts %d+%d exceed job size", u.CompletedCount, u.FailedCount)
	}
	return guardError(res)
}

func (s *RedisJobStore) Complete(ctx context.Context, jobID string, c model.Completion) error {
	failedURLs, err := json.Marshal(nonNil(c.FailedURLs))
	if err != nil {
		return fmt.Errorf("failed to marshal failed urls: %w", err)
	}
	results, err := json.Marshal(c.Results)
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}

	keys := []string{jobKey(jobID), deadlinesKey}
	res, err := completeScript.Run(ctx, s.rdb, keys,
		c.Owner, jobID, c.CompletedCount, c.FailedCount,
		"status", string(model.JobStatusCompleted),
		"progress", 100,
		"completed", c.CompletedCount,
		"failed", c.FailedCount,
		"failed_urls", string(failedURLs),
		"results", string(results),
		"storage_path", c.StoragePath,
		"zip_url", c.SignedURL,
		"size_bytes", c.SizeBytes,
		"expires_at", formatTime(c.ExpiresAt),
		"completed_at", formatTime(time.Now()),
	).Int()
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	if res == -4 {
		return fmt.Errorf("completion counts %d+%d exceed job size", c.CompletedCount, c.FailedCount)
	}
	return guardError(res)
}

func (s *RedisJobStore) Fail(ctx context.Context, jobID string, f model.Failure) error {
	keys := []string{jobKey(jobID), deadlinesKey}
	res, err := failScript.Run(ctx, s.rdb, keys, f.Owner, jobID, f.Message, formatTime(time.Now())).Int()
	if err != nil {
		return fmt.Errorf("failed to fail job: %w", err)
	}
	switch res {
	case -1:
		return ErrJobNotFound
	case -2:
		return ErrLeaseLost
	case -3:
		return ErrJobNotActive
	}
	return nil
}

func (s *RedisJobStore) ExpireStale(ctx context.Context, now time.Time) ([]string, error) {
	ids, err := s.rdb.ZRangeByScore(ctx, deadlinesKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to scan deadlines: %w", err)
	}

	var expired []string
	for _, id := range ids {
		keys := []string{jobKey(id), deadlinesKey}
		res, err := expireScript.Run(ctx, s.rdb, keys,
			now.UnixMilli(), id, staleQueuedMessage, staleProcessingMessage, formatTime(now),
		).Int()
		if err != nil {
			return expired, fmt.Errorf("failed to expire job %s: %w", id, err)
		}
		if res == 1 {
			expired = append(expired, id)
		}
	}
	return expired, nil
}

func guardError(res int) error {
	switch res {
	case -1:
		return ErrJobNotFound
	case -2:
		return ErrLeaseLost
	case -3:
		return ErrJobNotActive
	}
	return nil
}

func decodeJob(f map[string]string) (*model.BulkJob, error) {
	job := &model.BulkJob{
		ID:             f["id"],
		UserID:         f["user_id"],
		Quality:        model.Quality(f["quality"]),
		Format:         model.Format(f["format"]),
		Platform:       model.Platform(f["platform"]),
		CreditsCharged: atoi(f["credits"]),
		Status:         model.JobStatus(f["status"]),
		Progress:       atoi(f["progress"]),
		CurrentIndex:   atoi(f["current_index"]),
		CompletedFiles: atoi(f["completed"]),
		FailedFiles:    atoi(f["failed"]),
		Owner:          f["owner"],
		StoragePath:    f["storage_path"],
		ZipURL:         f["zip_url"],
		CreatedAt:      parseTime(f["created_at"]),
	}
	if v := f["size_bytes"]; v != "" {
		job.SizeBytes, _ = strconv.ParseInt(v, 10, 64)
	}

	if err := json.Unmarshal([]byte(f["urls"]), &job.URLs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal urls: %w", err)
	}
	if v := f["failed_urls"]; v != "" {
		if err := json.Unmarshal([]byte(v), &job.FailedURLs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal failed urls: %w", err)
		}
	}
	if v := f["results"]; v != "" && v != "null" {
		if err := json.Unmarshal([]byte(v), &job.Results); err != nil {
			return nil, fmt.Errorf("failed to unmarshal results: %w", err)
		}
	}

	if v, ok := f["error"]; ok {
		msg := v
		job.Error = &msg
	}
	if v := f["lease_until"]; v != "" {
		ms, _ := strconv.ParseInt(v, 10, 64)
		t := time.UnixMilli(ms)
		job.LeaseUntil = &t
	}
	job.StartedAt = parseTimePtr(f["started_at"])
	job.CompletedAt = parseTimePtr(f["completed_at"])
	job.ExpiresAt = parseTimePtr(f["expires_at"])
	return job, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(v string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, v)
	return t
}

func parseTimePtr(v string) *time.Time {
	if v == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return nil
	}
	return &t
}

func atoi(v string) int {
	n, _ := strconv.Atoi(v)
	return n
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
