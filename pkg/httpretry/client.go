// Package httpretry wraps go-retryablehttp with a retry budget, exponential
// backoff that starts with an immediate first retry, and a forcelist of
// response statuses worth retrying.
//
// The MAX_RETRIES_ON_CONN_ERROR environment variable overrides the retry
// budget process-wide.
package httpretry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// EnvMaxRetries overrides Config.MaxRetries when set.
const EnvMaxRetries = "MAX_RETRIES_ON_CONN_ERROR"

// Config configures retry behavior.
type Config struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// BackoffFactor scales the exponential wait: the n-th consecutive
	// failure waits BackoffFactor * 2^(n-1), except the first which does
	// not wait.
	BackoffFactor time.Duration

	// MaxBackoff caps any single wait.
	MaxBackoff time.Duration

	// StatusForcelist lists response statuses that trigger a retry.
	StatusForcelist []int

	// Methods restricts status retries to these methods. Empty allows all.
	Methods []string

	// Timeout bounds each attempt. Zero means no timeout.
	Timeout time.Duration
}

// DefaultConfig returns the default retry configuration.
func DefaultConfig() Config {
	return Config{
		MaxRetries:      10,
		BackoffFactor:   5 * time.Second,
		MaxBackoff:      120 * time.Second,
		StatusForcelist: []int{http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout},
		Timeout:         30 * time.Second,
	}
}

// RetryError reports a request that was still failing when retries ran out
// or that failed with an error not worth retrying.
type RetryError struct {
	Method string
	URL    string

	// StatusCode is the last response status, or 0 if no response arrived.
	StatusCode int

	// Attempts is the number of requests sent.
	Attempts int

	// Err is the last transport error, if any.
	Err error
}

func (e *RetryError) Error() string {
	msg := fmt.Sprintf("%s %s: giving up after %d attempt(s)", e.Method, e.URL, e.Attempts)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(": last status %d", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RetryError) Unwrap() error {
	return e.Err
}

// Client sends requests with retries. Safe for concurrent use.
type Client struct {
	rc      *retryablehttp.Client
	config  Config
	methods map[string]struct{}
	logger  *zap.Logger
}

// New creates a client. A nil logger discards output.
//
// An unparsable MAX_RETRIES_ON_CONN_ERROR value is an error.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if v, ok := os.LookupEnv(EnvMaxRetries); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%s: invalid retry count %q", EnvMaxRetries, v)
		}
		cfg.MaxRetries = n
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	c := &Client{config: cfg, logger: logger}
	if len(cfg.Methods) > 0 {
		c.methods = make(map[string]struct{}, len(cfg.Methods))
		for _, m := range cfg.Methods {
			c.methods[strings.ToUpper(m)] = struct{}{}
		}
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.MaxRetries
	rc.RetryWaitMin = cfg.BackoffFactor
	rc.RetryWaitMax = cfg.MaxBackoff
	rc.HTTPClient.Timeout = cfg.Timeout
	rc.Logger = &leveledLogger{s: logger.Sugar()}
	rc.RequestLogHook = c.logAttempt
	rc.CheckRetry = c.checkRetry
	rc.Backoff = c.backoff
	rc.ErrorHandler = giveUp
	c.rc = rc

	return c, nil
}

// Config returns the effective configuration, after any env override.
func (c *Client) Config() Config {
	return c.config
}

// Do sends req, retrying per the client policy. The request body, if
// any, is buffered so it can be replayed.
//
// On success the caller owns the response body. On failure the last
// response body has already been drained and closed, and the error is a
// *RetryError unless the context ended first.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	rreq, err := retryablehttp.FromRequest(req)
	if err != nil {
		return nil, err
	}
	return c.do(rreq)
}

// Get fetches url.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	rreq, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return c.do(rreq)
}

// StandardClient returns an *http.Client whose transport applies the
// retry policy, for libraries that take a plain client.
func (c *Client) StandardClient() *http.Client {
	return c.rc.StandardClient()
}

func (c *Client) do(req *retryablehttp.Request) (*http.Response, error) {
	resp, err := c.rc.Do(req)
	if err == nil {
		return resp, nil
	}

	var retryErr *RetryError
	if errors.As(err, &retryErr) {
		retryErr.Method = req.Method
		retryErr.URL = req.URL.Redacted()
		c.logger.Warn("HTTP request failed",
			zap.String("method", retryErr.Method),
			zap.String("url", retryErr.URL),
			zap.Int("attempts", retryErr.Attempts),
			zap.Int("status", retryErr.StatusCode),
			zap.Error(retryErr.Err))
	}
	return nil, err
}

func (c *Client) logAttempt(_ retryablehttp.Logger, req *http.Request, retry int) {
	c.logger.Debug("Sending HTTP request",
		zap.String("method", req.Method),
		zap.String("url", req.URL.Redacted()),
		zap.Int("attempt", retry+1))
}

func (c *Client) checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return false, ctxErr
	}
	if err != nil {
		// Connection-level failures: the default policy declines
		// redirect loops, bad schemes and TLS verification failures.
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}
	if !c.methodAllowed(resp.Request.Method) {
		return false, nil
	}
	return slices.Contains(c.config.StatusForcelist, resp.StatusCode), nil
}

func (c *Client) methodAllowed(method string) bool {
	if c.methods == nil {
		return true
	}
	_, ok := c.methods[strings.ToUpper(method)]
	return ok
}

// backoff receives the zero-based retry number.
func (c *Client) backoff(_, maxWait time.Duration, retry int, resp *http.Response) time.Duration {
	if d, ok := retryAfter(resp); ok {
		return min(d, maxWait)
	}
	return Backoff(c.config.BackoffFactor, maxWait, retry+1)
}

// Backoff returns the wait before retrying after n consecutive failures:
// zero for n <= 1, otherwise factor * 2^(n-1), capped at maxWait.
func Backoff(factor, maxWait time.Duration, n int) time.Duration {
	if n <= 1 || factor <= 0 {
		return 0
	}
	wait := float64(factor) * math.Pow(2, float64(n-1))
	if maxWait > 0 && wait >= float64(maxWait) {
		return maxWait
	}
	return time.Duration(wait)
}

// retryAfter honors a delta-seconds Retry-After on 429 and 503 responses.
func retryAfter(resp *http.Response) (time.Duration, bool) {
	if resp == nil {
		return 0, false
	}
	if resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode != http.StatusServiceUnavailable {
		return 0, false
	}
	secs, err := strconv.Atoi(strings.TrimSpace(resp.Header.Get("Retry-After")))
	if err != nil || secs < 0 {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}

// giveUp is the retryablehttp ErrorHandler. Method and URL are filled in
// by Client.do, which still has the request.
func giveUp(resp *http.Response, err error, attempts int) (*http.Response, error) {
	if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		if resp != nil {
			drain(resp.Body)
		}
		return nil, err
	}

	retryErr := &RetryError{Attempts: attempts, Err: err}
	if resp != nil {
		retryErr.StatusCode = resp.StatusCode
		drain(resp.Body)
	}
	return nil, retryErr
}

func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 4096))
	_ = body.Close()
}
