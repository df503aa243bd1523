package client

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMediaFetcher_Open(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") == "" {
			t.Error("missing User-Agent")
		}
		if !strings.HasPrefix(r.Header.Get("Referer"), "http://") {
			t.Errorf("unexpected Referer %q", r.Header.Get("Referer"))
		}
		w.Write([]byte("media-bytes"))
	}))
	defer srv.Close()

	body, err := NewMediaFetcher(nil).Open(context.Background(), srv.URL+"/v.mp4")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer body.Close()

	data, _ := io.ReadAll(body)
	if string(data) != "media-bytes" {
		t.Errorf("got %q", data)
	}
}

func TestMediaFetcher_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	if _, err := NewMediaFetcher(nil).Open(context.Background(), srv.URL); err == nil {
		t.Fatal("expected error for 403")
	}
}
