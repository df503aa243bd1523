package model

import "time"

// BulkJob is one bulk-download request and its progress.
type BulkJob struct {
	ID             string       `json:"id"`
	UserID         string       `json:"userId"`
	URLs           []string     `json:"urls"`
	Quality        Quality      `json:"quality,omitempty"`
	Format         Format       `json:"format,omitempty"`
	Platform       Platform     `json:"platform,omitempty"`
	CreditsCharged int          `json:"creditsCharged"`
	Status         JobStatus    `json:"status"`
	Progress       int          `json:"progress"`
	CurrentIndex   int          `json:"currentIndex"`
	CompletedFiles int          `json:"completedFiles"`
	FailedFiles    int          `json:"failedFiles"`
	FailedURLs     []string     `json:"failedUrls,omitempty"`
	Results        []ItemResult `json:"results,omitempty"`
	Owner          string       `json:"-"`
	LeaseUntil     *time.Time   `json:"-"`
	StoragePath    string       `json:"storagePath,omitempty"`
	ZipURL         string       `json:"zipUrl,omitempty"`
	SizeBytes      int64        `json:"sizeBytes,omitempty"`
	ExpiresAt      *time.Time   `json:"expiresAt,omitempty"`
	Error          *string      `json:"error,omitempty"`
	CreatedAt      time.Time    `json:"createdAt"`
	StartedAt      *time.Time   `json:"startedAt,omitempty"`
	CompletedAt    *time.Time   `json:"completedAt,omitempty"`
}

// Total returns the number of source URLs in the job.
func (j *BulkJob) Total() int {
	return len(j.URLs)
}

// LinkExpiry is the instant the signed archive link stops working.
func (j *BulkJob) LinkExpiry(ttl time.Duration) time.Time {
	return j.CreatedAt.Add(ttl)
}

// ItemResult describes one archived item. DownloadURL is the resolved
// direct media URL the item was fetched from.
type ItemResult struct {
	SourceURL   string `json:"sourceUrl"`
	Title       string `json:"title"`
	Filename    string `json:"filename"`
	DownloadURL string `json:"download_url,omitempty"`
}

// ProgressUpdate is a partial write issued while a job is processing.
// A non-empty Owner must match the job's current lease holder.
type ProgressUpdate struct {
	Owner          string
	Progress       int
	CompletedCount int
	FailedCount    int
	CurrentIndex   int
}

// Completion carries the terminal fields of a successful job.
type Completion struct {
	Owner          string
	CompletedCount int
	FailedCount    int
	FailedURLs     []string
	Results        []ItemResult
	StoragePath    string
	SignedURL      string
	SizeBytes      int64
	ExpiresAt      time.Time
}

// Failure carries the terminal error of a failed job. An empty Owner
// skips the lease check.
type Failure struct {
	Owner   string
	Message string
}

// BulkTaskPayload is the queue message body for a bulk job.
type BulkTaskPayload struct {
	JobID string `json:"jobId"`
}
