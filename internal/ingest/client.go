// Package ingest talks to the external vision collaborator: an HTTP API for
// health checks and frame polling, and a websocket stream for live frames.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/chesslens/chesslens/pkg/visiondto"
)

type Client struct {
	baseURL string
	http    *fasthttp.Client

	defaultTimeout time.Duration
	retryMax       int
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.defaultTimeout = d }
}

func WithRetry(max int) Option {
	return func(c *Client) { c.retryMax = max }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 8},
		defaultTimeout: 10 * time.Second,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Health queries the vision service's readiness endpoint.
func (c *Client) Health(ctx context.Context) (*visiondto.Health, error) {
	var h visiondto.Health
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/health", &h, true); err != nil {
		return nil, err
	}
	return &h, nil
}

// NextFrame polls the vision service for the next sampled frame. A 204
// response means no frame is ready yet and returns (nil, nil).
func (c *Client) NextFrame(ctx context.Context) (*visiondto.Frame, error) {
	var f visiondto.Frame
	ok, err := c.doJSONMaybe(ctx, fasthttp.MethodGet, "/frame", &f)
	if err != nil || !ok {
		return nil, err
	}
	return &f, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, out any, retry bool) error {
	_, err := c.do(ctx, method, path, out, retry)
	return err
}

// doJSONMaybe is doJSON but treats 204 as "no content" rather than an error.
func (c *Client) doJSONMaybe(ctx context.Context, method, path string, out any) (bool, error) {
	return c.do(ctx, method, path, out, false)
}

func (c *Client) do(ctx context.Context, method, path string, out any, retry bool) (bool, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(method)
	req.SetRequestURI(c.baseURL + path)
	req.Header.SetContentType("application/json")

	attempts := 1
	if retry && c.retryMax > 1 {
		attempts = c.retryMax
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := c.http.DoDeadline(req, resp, c.computeDeadline(ctx)); err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			if attempt == attempts {
				return false, lastErr
			}
			if err := sleepWithContext(ctx, backoffDuration(attempt)); err != nil {
				return false, lastErr
			}
			continue
		}

		status := resp.StatusCode()
		if status == fasthttp.StatusNoContent {
			return false, nil
		}
		if status < 200 || status >= 300 {
			lastErr = fmt.Errorf("vision api error: status=%d body=%s", status, truncate(string(resp.Body()), 512))
			if attempt == attempts || !shouldRetryStatus(status) {
				return false, lastErr
			}
			if err := sleepWithContext(ctx, backoffDuration(attempt)); err != nil {
				return false, lastErr
			}
			continue
		}

		if out != nil {
			if err := json.Unmarshal(resp.Body(), out); err != nil {
				return false, fmt.Errorf("decode response: %w", err)
			}
		}
		return true, nil
	}
	return false, lastErr
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(c.defaultTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	return time.Duration(1<<uint(attempt-1)) * 100 * time.Millisecond
}

func shouldRetryStatus(code int) bool {
	switch code {
	case fasthttp.StatusInternalServerError, fasthttp.StatusBadGateway,
		fasthttp.StatusServiceUnavailable, fasthttp.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
