package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/brojonat/trc20watch/service/ingest"
)

// ErrNotReady is returned by Status while the watcher has not finished startup.
var ErrNotReady = errors.New("watcher has not finished startup")

// Client is the HTTP client for the trc20watch status API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new status API client.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

// Health checks that the watcher process is serving.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.get(ctx, "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse(resp)
	}
	return nil
}

// Status fetches the ingestion loop snapshot. When the watcher is still
// starting up, the snapshot is returned together with ErrNotReady.
func (c *Client) Status(ctx context.Context) (*ingest.Status, error) {
	resp, err := c.get(ctx, "/api/v1/status")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusServiceUnavailable:
	default:
		resp.Body = io.NopCloser(bytes.NewReader(body))
		return nil, c.parseErrorResponse(resp)
	}

	var status ingest.Status
	if err := json.Unmarshal(body, &status); err != nil {
		if resp.StatusCode == http.StatusServiceUnavailable {
			resp.Body = io.NopCloser(bytes.NewReader(body))
			return nil, c.parseErrorResponse(resp)
		}
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	c.logger.Debug("status fetched", "watch_address", status.WatchAddress, "cycles_run", status.CyclesRun)
	if !status.Ready {
		return &status, ErrNotReady
	}
	return &status, nil
}

func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

// parseErrorResponse attempts to parse an error response from the server.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return fmt.Errorf("request failed: %s", errResp.Error)
}
