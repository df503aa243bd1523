package main

import (
	"fmt"
	"time"

	"github.com/reelsaver/api/internal/model"
)

const pollInterval = 1500 * time.Millisecond

// observation is what changed between two status snapshots.
type observation struct {
	Events []string
	Done   bool
	Failed bool
}

// observe compares successive snapshots of a job. prev is nil for the first
// poll.
func observe(prev, next *model.BulkStatusResponse) observation {
	var obs observation
	if next == nil {
		return obs
	}

	if prev == nil || prev.Status != next.Status {
		obs.Events = append(obs.Events, fmt.Sprintf("status %s", next.Status))
	}

	prevDone, prevFailed := 0, 0
	seen := map[string]bool{}
	if prev != nil {
		prevDone, prevFailed = prev.Completed, prev.Failed
		for _, u := range prev.FailedURLs {
			seen[u] = true
		}
	}
	if next.Completed+next.Failed > prevDone+prevFailed {
		obs.Events = append(obs.Events, fmt.Sprintf("%d/%d processed (%d ok, %d failed)",
			next.Completed+next.Failed, next.Total, next.Completed, next.Failed))
	}
	for _, u := range next.FailedURLs {
		if !seen[u] {
			obs.Events = append(obs.Events, "✗ "+u)
		}
	}

	switch next.Status {
	case model.JobStatusCompleted:
		obs.Done = true
		obs.Events = append(obs.Events, "✓ archive ready: "+next.ZipURL)
	case model.JobStatusFailed:
		obs.Done = true
		obs.Failed = true
		reason := "unknown error"
		if next.Error != nil {
			reason = *next.Error
		}
		obs.Events = append(obs.Events, "job failed: "+reason)
	}
	return obs
}

// percent prefers the server's value but never moves backwards.
func percent(prev float64, status *model.BulkStatusResponse) float64 {
	p := float64(status.Progress) / 100
	if status.Status == model.JobStatusCompleted {
		p = 1
	}
	if p < prev {
		return prev
	}
	return p
}
