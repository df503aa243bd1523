package model

import "time"

// BulkCreateRequest is the request to start a bulk download
type BulkCreateRequest struct {
	URLs     []string `json:"urls" validate:"required,min=1,dive,required,max=2048"`
	UserID   string   `json:"userId" validate:"required"`
	Quality  Quality  `json:"quality_preference,omitempty" validate:"omitempty,oneof=best 1080p 720p 480p 360p 320k 192k 128k"`
	Format   Format   `json:"format_preference,omitempty" validate:"omitempty,oneof=mp4 webm mp3 m4a"`
	Platform Platform `json:"platform,omitempty" validate:"omitempty,oneof=auto youtube tiktok instagram facebook twitter"`
}

// BulkCreateResponse is returned once a job has been accepted
type BulkCreateResponse struct {
	Success          bool   `json:"success"`
	JobID            string `json:"jobId"`
	CreditsDeducted  int    `json:"creditsDeducted"`
	RemainingCredits int    `json:"remainingCredits"`
	Message          string `json:"message"`
}

// BulkStatusResponse is the polling view of a job
type BulkStatusResponse struct {
	JobID          string       `json:"jobId"`
	Status         JobStatus    `json:"status"`
	Progress       int          `json:"progress"`
	Total          int          `json:"total"`
	Completed      int          `json:"completed"`
	Failed         int          `json:"failed"`
	CurrentIndex   int          `json:"currentIndex"`
	FailedURLs     []string     `json:"failedUrls"`
	Results        []ItemResult `json:"results,omitempty"`
	ZipURL         string       `json:"zipUrl,omitempty"`
	SizeBytes      int64        `json:"sizeBytes,omitempty"`
	ExpiresAt      *time.Time   `json:"expiresAt,omitempty"`
	Error          *string      `json:"error,omitempty"`
	CreditsCharged int          `json:"creditsCharged"`
	CreatedAt      time.Time    `json:"createdAt"`
	StartedAt      *time.Time   `json:"startedAt,omitempty"`
	CompletedAt    *time.Time   `json:"completedAt,omitempty"`
}

// NewBulkStatusResponse builds the polling view of job.
func NewBulkStatusResponse(job *BulkJob) *BulkStatusResponse {
	failed := job.FailedURLs
	if failed == nil {
		failed = []string{}
	}
	return &BulkStatusResponse{
		JobID:          job.ID,
		Status:         job.Status,
		Progress:       job.Progress,
		Total:          job.Total(),
		Completed:      job.CompletedFiles,
		Failed:         job.FailedFiles,
		CurrentIndex:   job.CurrentIndex,
		FailedURLs:     failed,
		Results:        job.Results,
		ZipURL:         job.ZipURL,
		SizeBytes:      job.SizeBytes,
		ExpiresAt:      job.ExpiresAt,
		Error:          job.Error,
		CreditsCharged: job.CreditsCharged,
		CreatedAt:      job.CreatedAt,
		StartedAt:      job.StartedAt,
		CompletedAt:    job.CompletedAt,
	}
}

// BulkJobListResponse lists a user's recent jobs
type BulkJobListResponse struct {
	Jobs []*BulkStatusResponse `json:"jobs"`
}

// CreditsResponse reports a user's balance
type CreditsResponse struct {
	UserID  string `json:"userId"`
	Balance int    `json:"balance"`
}

// ResolveRequest asks for the direct media URL of a single source
type ResolveRequest struct {
	URL      string   `json:"url" validate:"required,http_url"`
	Platform Platform `json:"platform,omitempty" validate:"omitempty,oneof=auto youtube tiktok instagram facebook twitter"`
	Quality  Quality  `json:"quality_preference,omitempty" validate:"omitempty,oneof=best 1080p 720p 480p 360p 320k 192k 128k"`
	Format   Format   `json:"format_preference,omitempty" validate:"omitempty,oneof=mp4 webm mp3 m4a"`
}

// WorkerInvokeRequest is the body of the internal worker endpoint
type WorkerInvokeRequest struct {
	JobID string `json:"jobId" validate:"required"`
}

// WorkerInvokeResponse reports the job state after a worker run
type WorkerInvokeResponse struct {
	JobID  string    `json:"jobId"`
	Status JobStatus `json:"status"`
}
