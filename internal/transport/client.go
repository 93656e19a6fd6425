package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// Client is a paced JSON-over-HTTP client shared by the CRM and partner
// integrations. Authentication is carried either by Header or by the
// RoundTripper of HTTP.
type Client struct {
	HTTP    *http.Client
	BaseURL string
	Header  http.Header
	Limiter *AdaptiveLimiter
	Policy  RetryPolicy
	Logger  *slog.Logger
}

type Request struct {
	Method   string
	Endpoint string
	RawQuery string
	Body     any
}

// Do runs req under the retry policy and returns the raw response body of a
// 2xx response.
func (c *Client) Do(ctx context.Context, req Request) ([]byte, error) {
	return Do(ctx, c.Policy, c.Limiter, c.logger(), func(ctx context.Context) ([]byte, error) {
		return c.once(ctx, req)
	})
}

// DoJSON is Do followed by decoding into out. A body that does not decode is
// reported as an APIError carrying the response status.
func (c *Client) DoJSON(ctx context.Context, req Request, out any) error {
	body, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &APIError{Status: http.StatusOK, Method: req.Method, Endpoint: req.Endpoint, Body: "malformed response: " + err.Error()}
	}
	return nil
}

func (c *Client) once(ctx context.Context, req Request) ([]byte, error) {
	target := strings.TrimRight(c.BaseURL, "/") + "/" + strings.TrimLeft(req.Endpoint, "/")
	if req.RawQuery != "" {
		target += "?" + req.RawQuery
	}

	var payload io.Reader
	if req.Body != nil {
		blob, err := json.Marshal(req.Body)
		if err != nil {
			return nil, err
		}
		payload = bytes.NewReader(blob)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, payload)
	if err != nil {
		return nil, err
	}
	for key, values := range c.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient().Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.Endpoint, err)
	}
	body, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, fmt.Errorf("%s %s: read body: %w", req.Method, req.Endpoint, readErr)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{
			Status:     resp.StatusCode,
			Method:     req.Method,
			Endpoint:   req.Endpoint,
			Body:       string(body),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}
	c.logger().Debug("api request", "method", req.Method, "endpoint", req.Endpoint, "status", resp.StatusCode)
	return body, nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP == nil {
		return http.DefaultClient
	}
	return c.HTTP
}

func (c *Client) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}
