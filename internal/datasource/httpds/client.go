// Package httpds implements an HTTP(S) data source.
package httpds

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"time"

	"csvschema/internal/datasource"
)

// Config controls the HTTP client.
type Config struct {
	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool

	// Timeout bounds the response header wait. Zero means 30s. The body is
	// not bounded; cancel the context to abandon a slow download.
	Timeout time.Duration
}

// Client fetches remote files.
type Client struct {
	hc *http.Client
}

// NewClient builds a Client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.ResponseHeaderTimeout = timeout
	if cfg.InsecureSkipVerify {
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in
	}
	return &Client{hc: &http.Client{Transport: tr}}
}

// Open issues a GET and returns the response body. Non-2xx is an error.
func (c *Client) Open(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("GET %s: unexpected status %s", url, resp.Status)
	}
	return resp.Body, nil
}

// FetchFirstBytes returns at most n bytes from the start of url.
func (c *Client) FetchFirstBytes(ctx context.Context, url string, n int) ([]byte, error) {
	if n <= 0 {
		return nil, fmt.Errorf("fetch first bytes: n must be > 0")
	}
	body, err := c.Open(ctx, url)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(body, int64(n))); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Source adapts a URL to datasource.Source.
type Source struct {
	Client *Client
	URL    string
}

var _ datasource.Source = Source{}

// Open implements datasource.Source.
func (s Source) Open(ctx context.Context) (io.ReadCloser, error) {
	c := s.Client
	if c == nil {
		c = NewClient(Config{})
	}
	return c.Open(ctx, s.URL)
}
