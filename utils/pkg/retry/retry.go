package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"net/http"
	"strings"
	"time"
)

// Config controls how many times an operation is attempted and how long to wait between attempts.
type Config struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseBackoff: 500 * time.Millisecond,
		MaxBackoff:  5 * time.Second,
	}
}

// Do calls fn until it succeeds, returns a non-retryable error, or MaxAttempts is reached.
// A non-retryable error is returned as is; exhausting attempts wraps the last error.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			wait := calculateBackoff(cfg.BaseBackoff, cfg.MaxBackoff, attempt-1)
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !IsRetryable(lastErr) {
			return lastErr
		}
	}

	return fmt.Errorf("failed after %d attempts: %w", cfg.MaxAttempts, lastErr)
}

// DoValue is Do for operations that produce a value.
func DoValue[T any](ctx context.Context, cfg Config, fn func() (T, error)) (T, error) {
	var out T
	err := Do(ctx, cfg, func() error {
		v, err := fn()
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying regardless of its message.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// Retryable marks err as transient regardless of its message.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &retryableError{err: err}
}

var retryablePatterns = []string{
	"connection closed",
	"connection refused",
	"connection reset",
	"eof",
	"client is closing",
	"broken pipe",
	"timeout",
	"temporary failure",
	"service unavailable",
	"slow down",
	"rate limit",
	"too many requests",
}

// IsRetryable reports whether err looks transient: network timeouts, throttling and 5xx
// responses from HTTP services such as S3, and dropped connections.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var perm *permanentError
	if errors.As(err, &perm) {
		return false
	}
	var transient *retryableError
	if errors.As(err, &transient) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if code, ok := statusCode(err); ok {
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

	msg := strings.ToLower(err.Error())
	for _, pattern := range retryablePatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// statusCode extracts an HTTP status from err. AWS SDK response errors expose
// HTTPStatusCode; other clients commonly expose StatusCode.
func statusCode(err error) (int, bool) {
	var awsErr interface{ HTTPStatusCode() int }
	if errors.As(err, &awsErr) && awsErr.HTTPStatusCode() != 0 {
		return awsErr.HTTPStatusCode(), true
	}
	var httpErr interface{ StatusCode() int }
	if errors.As(err, &httpErr) && httpErr.StatusCode() != 0 {
		return httpErr.StatusCode(), true
	}
	return 0, false
}

// calculateBackoff returns base*2^attempt capped at max, scaled by a random factor in [0.5, 1.0].
func calculateBackoff(base, max time.Duration, attempt int) time.Duration {
	backoff := base * time.Duration(1<<uint(attempt))
	if backoff > max || backoff <= 0 {
		backoff = max
	}
	jitter := 0.5 + rand.Float64()*0.5
	return time.Duration(float64(backoff) * jitter)
}
