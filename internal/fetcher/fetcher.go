// Package fetcher issues upstream API requests with a bounded timeout, status
// classification and structured error logging.
package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/malegislature-crawler/internal/metrics"
)

const (
	defaultTimeout = 30 * time.Second
	maxBodyBytes   = 64 << 20
	acceptJSON     = "application/json"
)

// Limiter delays a request until the target host allows it.
type Limiter interface {
	Wait(ctx context.Context, url string) error
}

// Config controls the HTTP client.
type Config struct {
	Timeout   time.Duration
	UserAgent string
}

// Request describes one upstream GET and the entity it serves.
type Request struct {
	URL      string
	Kind     string
	Identity string
	// Quiet lists statuses the call site tolerates; they are not logged.
	Quiet []int
	// Silent suppresses logging for every status, for attempts that have a
	// fallback.
	Silent bool
}

// Client is the shared upstream client. It is safe for concurrent use.
type Client struct {
	http      *http.Client
	userAgent string
	limiter   Limiter
	errors    *ErrorLog
	logger    *zap.Logger
}

// New builds a Client. transport, limiter and errLog may be nil.
func New(cfg Config, transport http.RoundTripper, limiter Limiter, errLog *ErrorLog, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if transport == nil {
		transport = NewTransport()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		http:      &http.Client{Timeout: timeout, Transport: transport},
		userAgent: cfg.UserAgent,
		limiter:   limiter,
		errors:    errLog,
		logger:    logger,
	}
}

// ErrorLog returns the log upstream failures are written to.
func (c *Client) ErrorLog() *ErrorLog {
	return c.errors
}

// Get fetches req.URL and returns the body of a 2xx response. Other statuses
// return a *StatusError.
func (c *Client) Get(ctx context.Context, req Request) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, req.URL); err != nil {
			return nil, err
		}
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Accept", acceptJSON)
	if c.userAgent != "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		metrics.ObserveUpstreamRequest(req.Kind, req.URL, 0, time.Since(start))
		return nil, fmt.Errorf("GET %s: %w", req.URL, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	metrics.ObserveUpstreamRequest(req.Kind, req.URL, resp.StatusCode, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", req.URL, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := &StatusError{Status: resp.StatusCode, URL: req.URL, Body: string(body)}
		c.Report(req, statusErr)
		return nil, statusErr
	}
	c.logger.Debug("fetched",
		zap.String("kind", req.Kind),
		zap.String("url", req.URL),
		zap.Int("bytes", len(body)),
	)
	return body, nil
}

// GetJSON fetches req.URL and decodes the body into v.
func (c *Client) GetJSON(ctx context.Context, req Request, v any) error {
	body, err := c.Get(ctx, req)
	if err != nil {
		return err
	}
	if err := Decode(body, v); err != nil {
		return fmt.Errorf("GET %s: %w", req.URL, err)
	}
	return nil
}

// Report writes a status failure to the error log unless req tolerates it.
func (c *Client) Report(req Request, err *StatusError) {
	if req.Silent || slices.Contains(req.Quiet, err.Status) {
		return
	}
	c.logger.Debug("upstream status",
		zap.String("kind", req.Kind),
		zap.String("url", req.URL),
		zap.Int("status", err.Status),
	)
	c.errors.Record(Entry{
		Kind:     req.Kind,
		Identity: req.Identity,
		URL:      req.URL,
		Status:   err.Status,
		Message:  err.Body,
	})
}

// Decode unmarshals data into v, wrapping failures in ErrMalformedPayload.
func Decode(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	return nil
}

// NewTransport returns the pooled transport shared by the JSON client and the
// HTML page scraper.
func NewTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
	}
}
