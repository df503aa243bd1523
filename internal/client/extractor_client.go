package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/reelsaver/api/internal/config"
	"github.com/reelsaver/api/internal/model"
)

// ErrNoMedia is returned when the extractor found nothing downloadable at the URL.
var ErrNoMedia = errors.New("no media found")

// MediaExtractor defines the interface for media lookup operations
type MediaExtractor interface {
	Extract(ctx context.Context, sourceURL string, platform model.Platform) (*ExtractResult, error)
}

// ExtractorClient implements MediaExtractor over the extraction service HTTP API
type ExtractorClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// ExtractRequest represents the request body for /v1/extract
type ExtractRequest struct {
	URL      string `json:"url"`
	Platform string `json:"platform,omitempty"`
}

// ExtractResult represents the extractor's reply for one source URL
type ExtractResult struct {
	Status   string               `json:"status"`
	Title    string               `json:"title,omitempty"`
	Platform string               `json:"platform,omitempty"`
	Variants []model.MediaVariant `json:"variants"`
}

// statusError carries a non-2xx extractor response
type statusError struct {
	StatusCode int
	Body       string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("extractor API error (status %d): %s", e.StatusCode, e.Body)
}

// NewExtractorClient creates a new extractor API client
func NewExtractorClient(cfg *config.ExtractorConfig) *ExtractorClient {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ExtractorClient{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
	}
}

// Extract asks the extractor for the downloadable variants behind sourceURL
func (c *ExtractorClient) Extract(ctx context.Context, sourceURL string, platform model.Platform) (*ExtractResult, error) {
	req := &ExtractRequest{URL: sourceURL}
	if platform != "" && platform != model.PlatformAuto {
		req.Platform = string(platform)
	}

	var result ExtractResult
	if err := c.post(ctx, "/v1/extract", req, &result); err != nil {
		var se *statusError
		if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", ErrNoMedia, sourceURL)
		}
		return nil, err
	}

	if result.Status == "no_media" || len(result.Variants) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoMedia, sourceURL)
	}
	return &result, nil
}

// post sends a POST request with JSON body
func (c *ExtractorClient) post(ctx context.Context, endpoint string, body interface{}, result interface{}) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	return c.doRequest(req, result)
}

// doRequest executes an HTTP request and parses the response
func (c *ExtractorClient) doRequest(req *http.Request, result interface{}) error {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	log.Printf("[Extractor API] → %s %s", req.Method, req.URL.String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("[Extractor API] ✗ %s %s — request failed: %v", req.Method, req.URL.String(), err)
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		log.Printf("[Extractor API] ✗ %s %s — failed to read response: %v", req.Method, req.URL.String(), err)
		return fmt.Errorf("failed to read response: %w", err)
	}

	log.Printf("[Extractor API] ← %d %s %s", resp.StatusCode, req.Method, req.URL.String())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &statusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		log.Printf("[Extractor API] ✗ unmarshal error for %s %s: %v", req.Method, req.URL.String(), err)
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return nil
}
