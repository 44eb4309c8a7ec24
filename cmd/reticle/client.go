package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"syscall"
	"time"
)

// apiClient talks to a running daemon over its HTTP API.
type apiClient struct {
	base   string
	token  string
	client *http.Client
}

// apiError carries the daemon's error body and status code.
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("daemon returned %d", e.Status)
	}
	return fmt.Sprintf("daemon returned %d: %s", e.Status, e.Message)
}

func newAPIClient(base, token string) *apiClient {
	return &apiClient{
		base:   base,
		token:  token,
		client: &http.Client{Timeout: 35 * time.Second},
	}
}

func (c *apiClient) get(ctx context.Context, path string, query url.Values, out any) error {
	target := c.base + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	return c.do(ctx, http.MethodGet, target, out)
}

func (c *apiClient) post(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodPost, c.base+path, out)
}

func (c *apiClient) do(ctx context.Context, method, target string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return wrapDialError(err, c.base)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var payload struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(body, &payload)
		return &apiError{Status: resp.StatusCode, Message: payload.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func wrapDialError(err error, base string) error {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return fmt.Errorf("connect to daemon: %s refused the connection; start the daemon with `reticle run`", base)
	}
	return fmt.Errorf("connect to daemon: %w", err)
}
