// Package metadata calls the external article extractor. The extractor
// fetches a page and returns its title, publication, summary, images,
// reading time and suggested tags; this package only speaks its HTTP
// contract.
package metadata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/alexjbarnes/marginalio/internal/errors"
	"github.com/tidwall/gjson"
)

// DefaultTimeout bounds one extraction.
const DefaultTimeout = 15 * time.Second

const maxResponseBytes = 1024 * 1024

// Metadata is what the extractor found for a URL.
type Metadata struct {
	Title         string   `json:"title"`
	Publication   string   `json:"publication"`
	Summary       string   `json:"summary"`
	ImageURL      string   `json:"imageUrl"`
	FaviconURL    string   `json:"faviconUrl"`
	ReadingTime   int      `json:"readingTime"`
	SuggestedTags []string `json:"suggestedTags"`
}

// Client posts URLs to the extractor endpoint.
type Client struct {
	httpClient *http.Client
	endpoint   string
	timeout    time.Duration
}

// NewClient creates a client for endpoint. A non-positive timeout uses
// DefaultTimeout.
func NewClient(endpoint string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		httpClient: &http.Client{},
		endpoint:   endpoint,
		timeout:    timeout,
	}
}

// Extract returns the metadata for rawURL. Every failure, including the
// timeout, wraps ErrExtractFailed.
func (c *Client) Extract(ctx context.Context, rawURL string) (*Metadata, error) {
	if !IsValidURL(rawURL) {
		return nil, fmt.Errorf("extracting %q: %w", rawURL, apperrors.ErrInvalidURL)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload, err := json.Marshal(map[string]string{"url": rawURL})
	if err != nil {
		return nil, fmt.Errorf("marshalling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("extracting %s: %w: %w", rawURL, apperrors.ErrExtractFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading extractor response: %w: %w", apperrors.ErrExtractFailed, err)
	}

	if resp.StatusCode != http.StatusOK || !gjson.GetBytes(body, "success").Bool() {
		msg := gjson.GetBytes(body, "error").String()
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}

		return nil, fmt.Errorf("extracting %s: %w: %s", rawURL, apperrors.ErrExtractFailed, msg)
	}

	var envelope struct {
		Data Metadata `json:"data"`
	}

	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decoding extractor response: %w: %w", apperrors.ErrExtractFailed, err)
	}

	return &envelope.Data, nil
}

// IsValidURL reports whether s is an absolute http or https URL.
func IsValidURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}

	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Domain returns the host of rawURL without a leading "www.". An
// unparsable URL is returned unchanged.
func Domain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return rawURL
	}

	return strings.TrimPrefix(u.Hostname(), "www.")
}
