// Package remote is the client for the hosted backend: PostgREST
// tables under /rest/v1, password auth under /auth/v1 and the Phoenix
// realtime socket under /realtime/v1. Calls never touch the local
// store; a failed call leaves remote state as it was.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	apperrors "github.com/alexjbarnes/marginalio/internal/errors"
	"github.com/tidwall/gjson"
)

// TransientError wraps an error that is likely temporary and safe to retry.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err (or any error in its chain) is a
// TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

const (
	// maxRedirects is the maximum number of HTTP redirects to follow,
	// matching the default net/http limit.
	maxRedirects = 10

	// httpClientTimeout is the timeout for the default HTTP client.
	httpClientTimeout = 30 * time.Second

	// maxResponseBytes caps response body reads. Full table snapshots
	// are the largest responses.
	maxResponseBytes = 32 * 1024 * 1024

	// preferUpsert asks PostgREST to merge on the on_conflict columns
	// and return the written rows.
	preferUpsert = "resolution=merge-duplicates,return=representation"

	// preferRepresentation makes deletes return the removed rows.
	preferRepresentation = "return=representation"
)

// Client talks to the backend REST and auth endpoints. It is safe for
// concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	now        func() time.Time

	mu    sync.RWMutex
	token string
}

// sameHostRedirectPolicy follows redirects only when the target host
// matches the original request host so the bearer token never leaves
// the backend.
func sameHostRedirectPolicy(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return errors.New("stopped after 10 redirects")
	}

	if len(via) > 0 {
		origHost := via[0].URL.Host
		if req.URL.Host != origHost {
			return fmt.Errorf("redirect to different host blocked: %s -> %s", origHost, req.URL.Host)
		}
	}

	return nil
}

// NewClient creates a client for the project at baseURL using the
// public anon key. If httpClient is nil, a client with a 30-second
// timeout and same-host redirect policy is created.
func NewClient(baseURL, apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:       httpClientTimeout,
			CheckRedirect: sameHostRedirectPolicy,
		}
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		now:        time.Now,
	}
}

// UseToken sets the access token sent with every request.
func (c *Client) UseToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Token returns the current access token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.token
}

type apiRequest struct {
	method string
	path   string
	query  url.Values
	prefer string
	body   any
}

// sanitizeResponseBody truncates and sanitizes a response body for
// inclusion in error messages.
func sanitizeResponseBody(body []byte) string {
	const maxLen = 256
	if len(body) > maxLen {
		body = body[:maxLen]
	}

	var clean []byte

	for len(body) > 0 {
		r, size := utf8.DecodeRune(body)
		if r == utf8.RuneError && size <= 1 {
			clean = append(clean, '?')
			body = body[1:]

			continue
		}

		if r < 0x20 && r != '\n' && r != '\r' && r != '\t' {
			clean = append(clean, '?')
		} else {
			clean = append(clean, body[:size]...)
		}

		body = body[size:]
	}

	return string(clean)
}

// errorMessage pulls the human readable message out of a PostgREST or
// GoTrue error body.
func errorMessage(body []byte) string {
	if !gjson.ValidBytes(body) {
		return ""
	}

	for _, path := range []string{"message", "error_description", "msg", "error"} {
		if v := gjson.GetBytes(body, path); v.Type == gjson.String && v.String() != "" {
			return v.String()
		}
	}

	return ""
}

// do sends the request and decodes a 2xx JSON response into result.
func (c *Client) do(ctx context.Context, r apiRequest, result any) error {
	endpoint := c.baseURL + r.path
	if len(r.query) > 0 {
		endpoint += "?" + r.query.Encode()
	}

	var body io.Reader
	if r.body != nil {
		payload, err := json.Marshal(r.body)
		if err != nil {
			return fmt.Errorf("marshalling request body: %w", err)
		}

		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, endpoint, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Accept", "application/json")

	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	} else {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if r.prefer != "" {
		req.Header.Set("Prefer", r.prefer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransientError{Err: fmt.Errorf("%s %s: %w: %w", r.method, r.path, apperrors.ErrRemoteRequest, err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("reading response from %s: %w: %w", r.path, apperrors.ErrRemoteRequest, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(r, resp.StatusCode, respBody)
	}

	if result == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("decoding response from %s: %w: %w", r.path, apperrors.ErrRemoteResponse, err)
	}

	return nil
}

func statusError(r apiRequest, code int, body []byte) error {
	msg := errorMessage(body)
	if msg == "" {
		msg = sanitizeResponseBody(body)
	}

	sentinel := apperrors.ErrRemoteResponse
	if code == http.StatusUnauthorized || code == http.StatusForbidden {
		sentinel = apperrors.ErrUnauthorized
	}

	err := fmt.Errorf("%s %s (%d): %s: %w", r.method, r.path, code, msg, sentinel)
	if isTransientStatus(code) {
		return &TransientError{Err: err}
	}

	return err
}

// isTransientStatus returns true for HTTP status codes that indicate a
// temporary server-side problem worth retrying.
func isTransientStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}

	return false
}
