package main

import (
	"strings"
	"testing"

	"github.com/reelsaver/api/internal/model"
)

func snapshot(status model.JobStatus, progress, completed, failed int, failedURLs ...string) *model.BulkStatusResponse {
	return &model.BulkStatusResponse{
		JobID:      "job-1",
		Status:     status,
		Progress:   progress,
		Total:      3,
		Completed:  completed,
		Failed:     failed,
		FailedURLs: failedURLs,
	}
}

func TestObserve_FirstSnapshot(t *testing.T) {
	obs := observe(nil, snapshot(model.JobStatusQueued, 0, 0, 0))
	if obs.Done {
		t.Error("queued job is not done")
	}
	if len(obs.Events) != 1 || obs.Events[0] != "status queued" {
		t.Errorf("unexpected events: %v", obs.Events)
	}
}

func TestObserve_NoChange(t *testing.T) {
	s := snapshot(model.JobStatusProcessing, 33, 1, 0)
	if obs := observe(s, s); len(obs.Events) != 0 {
		t.Errorf("expected no events, got %v", obs.Events)
	}
}

func TestObserve_ProgressAndFailures(t *testing.T) {
	prev := snapshot(model.JobStatusProcessing, 33, 1, 0)
	next := snapshot(model.JobStatusProcessing, 67, 1, 1, "https://b")

	obs := observe(prev, next)
	want := []string{"2/3 processed (1 ok, 1 failed)", "✗ https://b"}
	if strings.Join(obs.Events, "|") != strings.Join(want, "|") {
		t.Errorf("events = %v, want %v", obs.Events, want)
	}

	// A failed URL is reported once.
	again := observe(next, snapshot(model.JobStatusProcessing, 67, 1, 1, "https://b"))
	if len(again.Events) != 0 {
		t.Errorf("expected no repeated events, got %v", again.Events)
	}
}

func TestObserve_Completed(t *testing.T) {
	prev := snapshot(model.JobStatusProcessing, 67, 1, 1, "https://b")
	next := snapshot(model.JobStatusCompleted, 100, 2, 1, "https://b")
	next.ZipURL = "https://files/bulk.zip"

	obs := observe(prev, next)
	if !obs.Done || obs.Failed {
		t.Fatalf("expected done without failure, got %+v", obs)
	}
	last := obs.Events[len(obs.Events)-1]
	if last != "✓ archive ready: https://files/bulk.zip" {
		t.Errorf("unexpected final event %q", last)
	}
}

func TestObserve_Failed(t *testing.T) {
	reason := "processing deadline exceeded"
	next := snapshot(model.JobStatusFailed, 33, 1, 0)
	next.Error = &reason

	obs := observe(snapshot(model.JobStatusProcessing, 33, 1, 0), next)
	if !obs.Done || !obs.Failed {
		t.Fatalf("expected failed terminal observation, got %+v", obs)
	}
	if obs.Events[len(obs.Events)-1] != "job failed: "+reason {
		t.Errorf("unexpected events: %v", obs.Events)
	}
}

func TestPercent_NeverMovesBackwards(t *testing.T) {
	tests := []struct {
		name   string
		prev   float64
		status *model.BulkStatusResponse
		want   float64
	}{
		{"advances", 0.2, snapshot(model.JobStatusProcessing, 50, 1, 0), 0.5},
		{"holds", 0.6, snapshot(model.JobStatusProcessing, 50, 1, 0), 0.6},
		{"completed fills", 0.6, snapshot(model.JobStatusCompleted, 90, 2, 1), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := percent(tt.prev, tt.status); got != tt.want {
				t.Errorf("percent() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDecodeAPIError(t *testing.T) {
	err := decodeAPIError(402, []byte(`{"error":"Insufficient credits","required":2,"available":0}`))
	if err == nil || err.Error() != "Insufficient credits: need 2, have 0" {
		t.Errorf("unexpected 402 error: %v", err)
	}

	err = decodeAPIError(404, []byte(`{"error":{"code":"NOT_FOUND","message":"Job not found"}}`))
	if err == nil || err.Error() != "NOT_FOUND (404): Job not found" {
		t.Errorf("unexpected envelope error: %v", err)
	}

	err = decodeAPIError(502, []byte(`bad gateway`))
	if err == nil || err.Error() != "API returned status 502" {
		t.Errorf("unexpected fallback error: %v", err)
	}
}
