package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/reelsaver/api/internal/model"
)

type submitRequest struct {
	URLs     []string `json:"urls"`
	Quality  string   `json:"quality_preference,omitempty"`
	Format   string   `json:"format_preference,omitempty"`
	Platform string   `json:"platform,omitempty"`
}

type apiClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func newAPIClient(s settings) *apiClient {
	return &apiClient{
		baseURL: s.APIURL,
		token:   s.Token,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (c *apiClient) Submit(ctx context.Context, req submitRequest) (*model.BulkCreateResponse, error) {
	var resp model.BulkCreateResponse
	if err := c.do(ctx, http.MethodPost, "/api/bulk", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *apiClient) Status(ctx context.Context, jobID string) (*model.BulkStatusResponse, error) {
	var resp model.BulkStatusResponse
	if err := c.do(ctx, http.MethodGet, "/api/bulk/jobs/"+jobID, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return decodeAPIError(resp.StatusCode, respBody)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// decodeAPIError understands both the standard error envelope and the flat
// 402 body.
func decodeAPIError(status int, body []byte) error {
	var envelope struct {
		Error     json.RawMessage `json:"error"`
		Required  int             `json:"required"`
		Available int             `json:"available"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Error) == 0 {
		return fmt.Errorf("API returned status %d", status)
	}

	var detail struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if json.Unmarshal(envelope.Error, &detail) == nil && detail.Message != "" {
		return fmt.Errorf("%s (%d): %s", detail.Code, status, detail.Message)
	}

	var message string
	if json.Unmarshal(envelope.Error, &message) == nil && message != "" {
		if status == http.StatusPaymentRequired {
			return fmt.Errorf("%s: need %d, have %d", message, envelope.Required, envelope.Available)
		}
		return fmt.Errorf("%s (%d)", message, status)
	}
	return fmt.Errorf("API returned status %d", status)
}
