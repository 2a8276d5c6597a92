// Package backend is the client for the traffic backend HTTP API: route
// computation, route reports, incidents, traffic conditions and
// recommendations.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"trafficview.org/internal/config"
	"trafficview.org/internal/models"
)

// StatusError is a non-2xx answer from the backend. Body is truncated.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: backend returned status %d", e.Method, e.Path, e.Code)
	}
	return fmt.Sprintf("%s %s: backend returned status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// Client talks to one backend base URL.
type Client struct {
	baseURL    string
	client     *http.Client
	maxRetries int
	logger     *slog.Logger
}

func NewClient(baseURL string, client *http.Client, maxRetries int, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		client:     client,
		maxRetries: maxRetries,
		logger:     logger,
	}
}

func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s body: %w", path, err)
		}
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// do sends req, retrying transient failures when retry is set and a retry
// budget is configured, and turns non-2xx answers into *StatusError.
func (c *Client) do(ctx context.Context, req *http.Request, retry bool) (*http.Response, error) {
	var resp *http.Response
	var err error
	if retry && c.maxRetries > 0 {
		resp, err = config.DoWithBackoff(ctx, c.client, req, c.maxRetries)
	} else {
		resp, err = c.client.Do(req)
	}
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		resp.Body.Close()
		return nil, &StatusError{
			Method: req.Method,
			Path:   req.URL.Path,
			Code:   resp.StatusCode,
			Body:   strings.TrimSpace(string(b)),
		}
	}
	return resp, nil
}

// getJSON performs an idempotent GET and decodes the body into out.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return c.sendJSON(ctx, req, true, out)
}

// decodeIncidents decodes an incident list element by element so one
// malformed incident cannot fail the response it arrived in.
func (c *Client) decodeIncidents(path string, raws []json.RawMessage) []models.Incident {
	incidents, errs := models.DecodeIncidents(raws)
	for _, err := range errs {
		c.logger.Warn("skipping malformed incident data", "path", path, "error", err)
	}
	return incidents
}

func (c *Client) sendJSON(ctx context.Context, req *http.Request, retry bool, out any) error {
	resp, err := c.do(ctx, req, retry)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return nil
}
