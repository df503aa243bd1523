package client

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
)

const fetcherUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// MediaSource opens a byte stream for a resolved direct media URL
type MediaSource interface {
	Open(ctx context.Context, directURL string) (io.ReadCloser, error)
}

// MediaFetcher implements MediaSource over plain HTTP GET
type MediaFetcher struct {
	httpClient *http.Client
}

// NewMediaFetcher creates a fetcher. The client must not set an overall
// timeout; callers bound each download through ctx.
func NewMediaFetcher(httpClient *http.Client) *MediaFetcher {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &MediaFetcher{httpClient: httpClient}
}

// Open starts the download and returns the response body. Any non-2xx
// status is an error.
func (f *MediaFetcher) Open(ctx context.Context, directURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, directURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", fetcherUserAgent)
	if u, err := url.Parse(directURL); err == nil && u.Host != "" {
		req.Header.Set("Referer", u.Scheme+"://"+u.Host+"/")
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		log.Printf("[Media Fetcher] ✗ GET %s — request failed: %v", req.URL.Host, err)
		return nil, fmt.Errorf("failed to fetch media: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		log.Printf("[Media Fetcher] ✗ GET %s — status %d", req.URL.Host, resp.StatusCode)
		return nil, fmt.Errorf("media fetch failed (status %d)", resp.StatusCode)
	}
	return resp.Body, nil
}
