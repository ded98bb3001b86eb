// Package market implements the mandi price capability backed by the
// data.gov.in daily commodity price resource.
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	// DefaultEndpoint is the data.gov.in resource for current daily prices.
	DefaultEndpoint = "https://api.data.gov.in/resource/9ef84268-d588-465a-a308-a864a43d0070"
	// DefaultLimit is the page size requested from the provider.
	DefaultLimit = 50
)

// Doer sends HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// HTTPError is a non-2xx provider response.
type HTTPError struct {
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP Error: %d", e.StatusCode)
}

// Client queries the price resource.
type Client struct {
	APIKey   string
	Endpoint string
	Limit    int
	Doer     Doer
}

// NewClient creates a client with its own timeout.
func NewClient(apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		APIKey:   apiKey,
		Endpoint: DefaultEndpoint,
		Limit:    DefaultLimit,
		Doer:     &http.Client{Timeout: timeout},
	}
}

// Records fetches raw records matching filters. Only commodity, state and
// district are forwarded as provider filters.
func (c *Client) Records(ctx context.Context, filters map[string]string) ([]map[string]any, error) {
	endpoint := c.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	limit := c.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	doer := c.Doer
	if doer == nil {
		doer = &http.Client{Timeout: 15 * time.Second}
	}

	q := url.Values{}
	q.Set("format", "json")
	q.Set("api-key", c.APIKey)
	q.Set("limit", strconv.Itoa(limit))
	for _, field := range filterFields {
		if v, ok := filters[field]; ok {
			q.Set("filters["+field+"]", v)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := doer.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read market response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{StatusCode: resp.StatusCode}
	}

	var raw struct {
		Records []map[string]any `json:"records"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode market response: %w", err)
	}
	return raw.Records, nil
}
