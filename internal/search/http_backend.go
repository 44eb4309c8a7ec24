package search

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"reticle/internal/detection"
)

// HTTPBackend queries a product search endpoint with the confirmed entity.
type HTTPBackend struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

type lookupRequest struct {
	Image    string         `json:"image,omitempty"`
	Format   string         `json:"format,omitempty"`
	Width    int            `json:"width,omitempty"`
	Height   int            `json:"height,omitempty"`
	Rotation int            `json:"rotation"`
	Box      detection.Rect `json:"box"`
	Value    string         `json:"value,omitempty"`
	Category string         `json:"category,omitempty"`
	Label    string         `json:"label,omitempty"`
}

type lookupResponse struct {
	Products []Product `json:"products"`
}

// NewHTTPBackend constructs a backend for endpoint. A nil client gets a
// default with timeout.
func NewHTTPBackend(endpoint, apiKey string, client *http.Client, timeout time.Duration) *HTTPBackend {
	if client == nil {
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &HTTPBackend{
		endpoint:   strings.TrimSpace(endpoint),
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: client,
	}
}

// Lookup posts the entity and its source frame to the endpoint.
func (b *HTTPBackend) Lookup(ctx context.Context, entity detection.Candidate) ([]Product, error) {
	payload := lookupRequest{
		Box:      entity.Item.Box,
		Value:    entity.Item.Value,
		Category: string(entity.Item.Category),
		Label:    entity.Item.Label,
	}
	if frame := entity.Frame; frame != nil {
		payload.Format = frame.Format
		payload.Width = frame.Width
		payload.Height = frame.Height
		payload.Rotation = int(frame.Rotation)
		if len(frame.Data) > 0 {
			payload.Image = base64.StdEncoding.EncodeToString(frame.Data)
		}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if b.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("search endpoint returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var decoded lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return decoded.Products, nil
}
