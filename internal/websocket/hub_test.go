package websocket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/reelsaver/api/internal/model"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_BroadcastProgress(t *testing.T) {
	h := NewHub()
	go h.Run()
	defer h.Stop()

	watcher := &Client{JobID: "job-1", Send: make(chan []byte, 4)}
	other := &Client{JobID: "job-2", Send: make(chan []byte, 4)}
	h.Register(watcher)
	h.Register(other)
	waitFor(t, func() bool { return h.Subscribers("job-1") == 1 && h.Subscribers("job-2") == 1 })

	h.BroadcastProgress("job-1", model.JobStatusProcessing, model.ProgressUpdate{Progress: 40, CompletedCount: 2}, 5)

	select {
	case data := <-watcher.Send:
		var msg model.WSProgressMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if msg.Type != model.WSMessageTypeProgress || msg.Progress != 40 || msg.Completed != 2 || msg.Total != 5 {
			t.Errorf("unexpected message: %+v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no message delivered")
	}

	select {
	case data := <-other.Send:
		t.Errorf("job-2 received job-1 event: %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_DropsSlowClient(t *testing.T) {
	h := NewHub()
	go h.Run()
	defer h.Stop()

	slow := &Client{JobID: "job-1", Send: make(chan []byte)}
	h.Register(slow)
	waitFor(t, func() bool { return h.Subscribers("job-1") == 1 })

	h.BroadcastError("job-1", "JOB_FAILED", "boom")
	waitFor(t, func() bool { return h.Subscribers("job-1") == 0 })

	if _, ok := <-slow.Send; ok {
		t.Error("expected closed channel")
	}
	// Unregistering an already dropped client must not panic.
	h.Unregister(slow)
}

func TestHub_PublishNeverBlocks(t *testing.T) {
	h := NewHub()
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			h.BroadcastComplete("job-1", map[string]int{"i": i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast blocked without a running hub")
	}
}
