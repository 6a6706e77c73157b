// Package httpclient wraps net/http for the price sources: bounded bodies,
// per-request timeouts, optional retries for transient failures, debug logging.
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"go.uber.org/zap"

	"caseplanner/internal"
)

// MaxResponseSize bounds how much of a response body is read (10MB).
const MaxResponseSize = 10 * 1024 * 1024

const userAgent = "caseplanner/1.0 (+price planner)"

type Options struct {
	Source   string
	Timeout  time.Duration
	Attempts int
}

type Client struct {
	source   string
	http     *http.Client
	attempts int
	log      *zap.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

func New(opts Options, log *zap.Logger) *Client {
	if opts.Attempts <= 0 {
		opts.Attempts = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		source:   opts.Source,
		http:     &http.Client{Timeout: opts.Timeout},
		attempts: opts.Attempts,
		log:      log,
		sleep:    sleepContext,
	}
}

// WithHTTPClient swaps the underlying transport, mostly for tests.
func (c *Client) WithHTTPClient(h *http.Client) *Client {
	c.http = h
	return c
}

// Get fetches rawURL and returns the body of a 2xx response. Non-2xx responses
// come back as *internal.StatusError. Network errors and retryable statuses are
// retried with backoff while attempts remain.
func (c *Client) Get(ctx context.Context, rawURL, accept string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		body, err := c.do(ctx, rawURL, accept)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if ctx.Err() != nil || attempt == c.attempts || !retryable(err) {
			break
		}

		backoff := time.Duration(250*(1<<(attempt-1))+rand.Intn(100)) * time.Millisecond
		c.log.Debug("retrying request",
			zap.String("source", c.source),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err))
		if err := c.sleep(ctx, backoff); err != nil {
			return nil, err
		}
	}

	if lastErr == nil {
		lastErr = errors.New("request failed")
	}
	return nil, lastErr
}

func (c *Client) do(ctx context.Context, rawURL, accept string) ([]byte, error) {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", c.source, err)
	}
	req.Header.Set("User-Agent", userAgent)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: request failed: %w", c.source, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("%s: read body: %w", c.source, err)
	}
	if len(body) > MaxResponseSize {
		return nil, fmt.Errorf("%s: response body too large (max %d bytes)", c.source, MaxResponseSize)
	}

	c.log.Debug("http get",
		zap.String("source", c.source),
		zap.String("url", rawURL),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &internal.StatusError{Source: c.source, Status: resp.StatusCode, Body: truncate(string(body), 200)}
	}
	return body, nil
}

func retryable(err error) bool {
	var statusErr *internal.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Retryable()
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
