package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// Client talks JSON to the storefront backend. Session handling lives in the
// http.Client's transport, not here.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	logger  *zap.Logger
}

func NewClient(baseURL string, httpClient *http.Client, logger *zap.Logger) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("backend url %q must be absolute", baseURL)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: u, http: httpClient, logger: logger}, nil
}

// URL resolves a backend path such as "/Cart" against the base URL.
func (c *Client) URL(path string, query url.Values) *url.URL {
	u := *c.baseURL
	u.Path = c.baseURL.Path + "/" + strings.TrimLeft(path, "/")
	u.RawQuery = query.Encode()
	return &u
}

// Do sends in (when non-nil) as JSON and decodes the response into out (when
// non-nil). Non-2xx responses become *StatusError.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.URL(path, query).String(), body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("backend request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		se := NormalizeError(req, resp)
		c.logger.Debug("backend error response",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", se.Status),
			zap.String("message", se.Message),
		)
		return se
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response body: %w", err)
	}
	return nil
}

// Forward relays a body-less read (GET or HEAD) as-is and hands back the raw
// response; the caller closes the body.
func (c *Client) Forward(ctx context.Context, method, path, rawQuery string, header http.Header) (*http.Request, *http.Response, error) {
	if method != http.MethodGet && method != http.MethodHead {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnsupportedMethod, method)
	}
	u := c.URL(path, nil)
	u.RawQuery = rawQuery
	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return nil, nil, err
	}
	for _, h := range []string{"Accept", "Content-Type", "Accept-Language"} {
		if v := header.Get(h); v != "" {
			req.Header.Set(h, v)
		}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return req, nil, err
	}
	return req, resp, nil
}
