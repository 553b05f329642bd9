// Package backend talks to the refinement backend and the identity service
// that sits behind it. Every call carries the shared X-API-Key header.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"
)

var (
	ErrNotConfigured = errors.New("backend not configured")
	ErrUnavailable   = errors.New("backend unavailable")
)

const (
	APIKeyHeader = "X-API-Key"
	UserIDHeader = "X-User-ID"

	// maxResponseSize bounds how much of an upstream body is read into memory
	maxResponseSize = 1 << 20
)

type Client struct {
	baseURL *url.URL
	apiKey  string
	http    *http.Client
}

// New returns a client for baseURL. An empty baseURL or apiKey yields a client
// whose calls all fail with ErrNotConfigured.
func New(baseURL, apiKey string, timeout time.Duration) *Client {
	c := &Client{
		apiKey: apiKey,
		http:   &http.Client{Timeout: timeout},
	}
	if baseURL != "" {
		u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
		if err != nil {
			slog.Error("invalid backend url, backend disabled", "url", baseURL, "error", err)
		} else {
			c.baseURL = u
		}
	}
	return c
}

func (c *Client) Configured() bool {
	return c != nil && c.baseURL != nil && c.apiKey != ""
}

// Response is an upstream reply; non-2xx statuses are not errors.
type Response struct {
	StatusCode int
	Body       []byte
}

func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

func (r *Response) Decode(v any) error {
	if len(r.Body) == 0 {
		return nil
	}
	return json.Unmarshal(r.Body, v)
}

// PostJSON sends body as JSON to path and returns whatever status the backend answered with.
// Transport failures, including the client timeout, map to ErrUnavailable.
func (c *Client) PostJSON(ctx context.Context, path string, body any) (*Response, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req)
}

func (c *Client) Get(ctx context.Context, path string) (*Response, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(path), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	return c.do(req)
}

func (c *Client) do(req *http.Request) (*Response, error) {
	req.Header.Set(APIKeyHeader, c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}

	return &Response{StatusCode: resp.StatusCode, Body: data}, nil
}

// Health checks GET /health within the client timeout.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.Get(ctx, "/health")
	if err != nil {
		return err
	}
	if !resp.OK() {
		return fmt.Errorf("%w: health returned %d", ErrUnavailable, resp.StatusCode)
	}
	return nil
}

// ReverseProxy forwards requests to the backend unchanged apart from credentials:
// browser cookies and Authorization are dropped and the API key is attached.
// userID, when set, is taken from the request context by the caller.
func (c *Client) ReverseProxy(userID func(*http.Request) string) http.Handler {
	if !c.Configured() {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeProxyError(w, http.StatusServiceUnavailable, "Backend is not configured")
		})
	}

	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(c.baseURL)
			pr.SetXForwarded()
			pr.Out.Header.Del("Cookie")
			pr.Out.Header.Del("Authorization")
			pr.Out.Header.Del(UserIDHeader)
			pr.Out.Header.Set(APIKeyHeader, c.apiKey)
			if userID != nil {
				if id := userID(pr.In); id != "" {
					pr.Out.Header.Set(UserIDHeader, id)
				}
			}
		},
		Transport: c.http.Transport,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			slog.Error("backend proxy failed", "path", r.URL.Path, "error", err)
			writeProxyError(w, http.StatusBadGateway, "Backend request failed")
		},
	}
}

func (c *Client) endpoint(path string) string {
	return c.baseURL.String() + "/" + strings.TrimPrefix(path, "/")
}

func writeProxyError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": message})
}
