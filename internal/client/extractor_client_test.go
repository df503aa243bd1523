package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/reelsaver/api/internal/config"
	"github.com/reelsaver/api/internal/model"
)

func newTestExtractor(t *testing.T, handler http.HandlerFunc) *ExtractorClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewExtractorClient(&config.ExtractorConfig{BaseURL: srv.URL, APIKey: "test-key", Timeout: 5})
}

func TestExtract_Success(t *testing.T) {
	var gotReq ExtractRequest
	c := newTestExtractor(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/extract" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(ExtractResult{
			Status: "ok",
			Title:  "Cat video",
			Variants: []model.MediaVariant{
				{URL: "https://cdn.example/720.mp4", Height: 720},
			},
		})
	})

	res, err := c.Extract(context.Background(), "https://tiktok.com/@a/video/1", model.PlatformTikTok)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if res.Title != "Cat video" || len(res.Variants) != 1 {
		t.Errorf("unexpected result: %+v", res)
	}
	if gotReq.URL != "https://tiktok.com/@a/video/1" || gotReq.Platform != "tiktok" {
		t.Errorf("unexpected request body: %+v", gotReq)
	}
}

func TestExtract_AutoPlatformOmitted(t *testing.T) {
	var raw map[string]interface{}
	c := newTestExtractor(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&raw)
		w.Write([]byte(`{"status":"ok","variants":[{"url":"https://cdn.example/a.mp4"}]}`))
	})

	if _, err := c.Extract(context.Background(), "https://youtu.be/x", model.PlatformAuto); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if _, ok := raw["platform"]; ok {
		t.Errorf("platform should be omitted for auto, got %v", raw)
	}
}

func TestExtract_NoMedia(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"not found", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}},
		{"no_media status", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"status":"no_media","variants":[]}`))
		}},
		{"empty variants", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"status":"ok"}`))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestExtractor(t, tt.handler)
			_, err := c.Extract(context.Background(), "https://x.com/a/status/1", model.PlatformTwitter)
			if !errors.Is(err, ErrNoMedia) {
				t.Errorf("expected ErrNoMedia, got %v", err)
			}
		})
	}
}

func TestExtract_UpstreamError(t *testing.T) {
	c := newTestExtractor(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream down"))
	})

	_, err := c.Extract(context.Background(), "https://instagram.com/p/1", model.PlatformInstagram)
	if err == nil {
		t.Fatal("expected an error")
	}
	if errors.Is(err, ErrNoMedia) {
		t.Errorf("a 502 must not be reported as no media: %v", err)
	}
}
