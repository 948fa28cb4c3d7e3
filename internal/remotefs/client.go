// Package remotefs is the bearer-credential HTTP client used by the save
// operation to publish generated artifacts to a remote workspace. It is
// deliberately outside the core pipeline: nothing in generation or
// validation touches it.
package remotefs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"driverforge/internal/logging"
)

// Client talks to the remote filesystem API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a remote filesystem client. Both the base URL and the
// bearer token are required.
func NewClient(baseURL, token string) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("remote filesystem base URL is required")
	}
	if token == "" {
		return nil, fmt.Errorf("remote filesystem token is required")
	}
	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// DirExists checks whether a remote directory exists.
func (c *Client) DirExists(ctx context.Context, path string) (bool, error) {
	resp, err := c.do(ctx, http.MethodGet, "/dirs/"+url.PathEscape(path), nil, "")
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, c.statusError("stat directory", path, resp)
	}
}

// MkdirAll creates a remote directory, including parents. Creating an
// existing directory is not an error.
func (c *Client) MkdirAll(ctx context.Context, path string) error {
	body, _ := json.Marshal(map[string]string{"path": path})
	resp, err := c.do(ctx, http.MethodPost, "/dirs", bytes.NewReader(body), "application/json")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated &&
		resp.StatusCode != http.StatusConflict {
		return c.statusError("create directory", path, resp)
	}
	logging.Get(logging.CategoryRemoteFS).Debug("Created remote directory %s", path)
	return nil
}

// WriteFile writes content to a remote path, overwriting any existing file.
func (c *Client) WriteFile(ctx context.Context, path, content string) error {
	resp, err := c.do(ctx, http.MethodPut, "/files/"+url.PathEscape(path), bytes.NewReader([]byte(content)), "application/octet-stream")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return c.statusError("write file", path, resp)
	}
	logging.Get(logging.CategoryRemoteFS).Info("Wrote remote file %s (%d bytes)", path, len(content))
	return nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remote filesystem request failed: %w", err)
	}
	return resp, nil
}

func (c *Client) statusError(op, path string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return fmt.Errorf("failed to %s %q: status %d: %s", op, path, resp.StatusCode, string(body))
}
