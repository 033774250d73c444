// Package httputil implements the small HTTP client the tlint CLI uses
// to talk to a running daemon. Requests retry briefly on transient
// failures, which mainly covers the window where a freshly spawned
// daemon has not started listening yet.
package httputil

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"
)

const (
	defaultAttempts = 3
	defaultMinDelay = 100 * time.Millisecond
	defaultMaxDelay = 2 * time.Second
	requestTimeout  = 5 * time.Second
)

// DaemonClient issues requests against one daemon's HTTP API.
type DaemonClient struct {
	base     string
	hc       *http.Client
	attempts int
	minDelay time.Duration
	maxDelay time.Duration
}

// Option configures a DaemonClient.
type Option func(*DaemonClient)

// WithAttempts sets the total number of attempts per request. Values
// below 1 are treated as 1.
func WithAttempts(n int) Option {
	return func(c *DaemonClient) {
		if n < 1 {
			n = 1
		}
		c.attempts = n
	}
}

// WithDelayBounds sets the backoff window between attempts.
func WithDelayBounds(min, max time.Duration) Option {
	return func(c *DaemonClient) {
		c.minDelay = min
		c.maxDelay = max
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *DaemonClient) { c.hc.Timeout = d }
}

// NewDaemonClient returns a client for the daemon listening at addr
// (host:port, no scheme).
func NewDaemonClient(addr string, opts ...Option) *DaemonClient {
	c := &DaemonClient{
		base:     "http://" + strings.TrimSuffix(addr, "/"),
		hc:       &http.Client{Timeout: requestTimeout},
		attempts: defaultAttempts,
		minDelay: defaultMinDelay,
		maxDelay: defaultMaxDelay,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// GetJSON issues a GET against path and decodes the JSON response into v.
func (c *DaemonClient) GetJSON(ctx context.Context, path string, v interface{}) error {
	body, err := c.roundTrip(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, v)
}

// PostJSON issues a POST against path with the given JSON body (nil for
// none) and decodes the response into v when v is non-nil.
func (c *DaemonClient) PostJSON(ctx context.Context, path string, payload, v interface{}) error {
	var reqBody []byte
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		reqBody = raw
	}
	body, err := c.roundTrip(ctx, http.MethodPost, path, reqBody)
	if err != nil {
		return err
	}
	if v == nil {
		return nil
	}
	return json.Unmarshal(body, v)
}

// roundTrip performs the request with retries and returns the response
// body of the first 2xx attempt. Connection errors and 429/5xx statuses
// retry; other statuses fail immediately with the server's message.
func (c *DaemonClient) roundTrip(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < c.attempts; attempt++ {
		if attempt > 0 {
			if err := c.wait(ctx, attempt); err != nil {
				return nil, err
			}
		}

		var reader io.Reader
		if body != nil {
			reader = strings.NewReader(string(body))
		}
		req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
		if err != nil {
			return nil, err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.hc.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		raw, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			if readErr != nil {
				return nil, readErr
			}
			return raw, nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			lastErr = fmt.Errorf("HTTP %d from daemon", resp.StatusCode)
		default:
			msg := strings.TrimSpace(string(raw))
			if msg == "" {
				msg = resp.Status
			}
			return nil, fmt.Errorf("daemon rejected request: %s", msg)
		}
	}
	return nil, fmt.Errorf("%w (gave up after %d attempts)", lastErr, c.attempts)
}

// wait sleeps for the backoff delay of the given attempt (1-indexed),
// doubling minDelay per attempt with full jitter, capped at maxDelay.
func (c *DaemonClient) wait(ctx context.Context, attempt int) error {
	d := c.minDelay << (attempt - 1)
	if d > c.maxDelay || d <= 0 {
		d = c.maxDelay
	}
	d = time.Duration(rand.Int64N(int64(d) + 1))
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
