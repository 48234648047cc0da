package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fastConfig(attempts int) Config {
	return Config{
		MaxAttempts: attempts,
		BaseBackoff: 5 * time.Millisecond,
		MaxBackoff:  20 * time.Millisecond,
	}
}

func TestETL_Retry_DefaultConfig(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	require.Equal(t, 3, cfg.MaxAttempts)
	require.Equal(t, 500*time.Millisecond, cfg.BaseBackoff)
	require.Equal(t, 5*time.Second, cfg.MaxBackoff)
}

func TestETL_Retry_Do(t *testing.T) {
	t.Parallel()

	t.Run("success_on_first_attempt", func(t *testing.T) {
		t.Parallel()
		attempts := 0
		err := Do(t.Context(), fastConfig(3), func() error {
			attempts++
			return nil
		})
		require.NoError(t, err)
		require.Equal(t, 1, attempts)
	})

	t.Run("success_after_transient_failures", func(t *testing.T) {
		t.Parallel()
		attempts := 0
		err := Do(t.Context(), fastConfig(3), func() error {
			attempts++
			if attempts < 3 {
				return errors.New("connection reset by peer")
			}
			return nil
		})
		require.NoError(t, err)
		require.Equal(t, 3, attempts)
	})

	t.Run("exhausts_attempts", func(t *testing.T) {
		t.Parallel()
		attempts := 0
		transient := errors.New("service unavailable")
		err := Do(t.Context(), fastConfig(3), func() error {
			attempts++
			return transient
		})
		require.ErrorIs(t, err, transient)
		require.Contains(t, err.Error(), "failed after 3 attempts")
		require.Equal(t, 3, attempts)
	})

	t.Run("non_retryable_returned_as_is", func(t *testing.T) {
		t.Parallel()
		attempts := 0
		invalid := errors.New("invalid column type")
		err := Do(t.Context(), fastConfig(3), func() error {
			attempts++
			return invalid
		})
		require.Same(t, invalid, err)
		require.Equal(t, 1, attempts)
	})

	t.Run("permanent_stops_retrying", func(t *testing.T) {
		t.Parallel()
		attempts := 0
		cause := errors.New("timeout while parsing header")
		err := Do(t.Context(), fastConfig(3), func() error {
			attempts++
			return Permanent(cause)
		})
		require.ErrorIs(t, err, cause)
		require.Equal(t, 1, attempts)
	})

	t.Run("zero_attempts_runs_once", func(t *testing.T) {
		t.Parallel()
		attempts := 0
		_ = Do(t.Context(), Config{}, func() error {
			attempts++
			return errors.New("eof")
		})
		require.Equal(t, 1, attempts)
	})

	t.Run("context_cancelled_between_attempts", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(t.Context())
		cfg := Config{MaxAttempts: 5, BaseBackoff: 100 * time.Millisecond, MaxBackoff: time.Second}
		attempts := 0
		err := Do(ctx, cfg, func() error {
			attempts++
			if attempts == 2 {
				cancel()
			}
			return errors.New("connection reset")
		})
		require.ErrorIs(t, err, context.Canceled)
		require.Equal(t, 2, attempts)
	})
}

func TestETL_Retry_DoValue(t *testing.T) {
	t.Parallel()
	attempts := 0
	got, err := DoValue(t.Context(), fastConfig(3), func() (string, error) {
		attempts++
		if attempts == 1 {
			return "", errors.New("broken pipe")
		}
		return "fact_aea", nil
	})
	require.NoError(t, err)
	require.Equal(t, "fact_aea", got)
	require.Equal(t, 2, attempts)

	_, err = DoValue(t.Context(), fastConfig(2), func() (int, error) {
		return 0, errors.New("bad request")
	})
	require.Error(t, err)
}

type statusError struct {
	code int
}

func (e *statusError) Error() string   { return http.StatusText(e.code) }
func (e *statusError) StatusCode() int { return e.code }

type awsResponseError struct {
	code int
}

func (e *awsResponseError) Error() string       { return fmt.Sprintf("https response error StatusCode: %d", e.code) }
func (e *awsResponseError) HTTPStatusCode() int { return e.code }

func TestETL_Retry_IsRetryable(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), false},
		{"net_timeout", &net.DNSError{Err: "lookup", IsTimeout: true}, true},
		{"connection_reset", errors.New("read: connection reset by peer"), true},
		{"eof", errors.New("unexpected EOF"), true},
		{"client_closing", errors.New("clickhouse: client is closing"), true},
		{"slow_down", errors.New("SlowDown: please reduce your request rate"), true},
		{"plain_error", errors.New("syntax error"), false},
		{"http_429", &statusError{code: http.StatusTooManyRequests}, true},
		{"http_503", &statusError{code: http.StatusServiceUnavailable}, true},
		{"http_404", &statusError{code: http.StatusNotFound}, false},
		{"aws_500", fmt.Errorf("operation error S3: PutObject: %w", &awsResponseError{code: 500}), true},
		{"aws_403", &awsResponseError{code: http.StatusForbidden}, false},
		{"permanent", Permanent(errors.New("connection reset")), false},
		{"retryable", Retryable(errors.New("container not ready")), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestETL_Retry_CalculateBackoff(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		base     time.Duration
		max      time.Duration
		attempt  int
		min, top time.Duration
	}{
		{"first", 100 * time.Millisecond, 5 * time.Second, 1, 100 * time.Millisecond, 200 * time.Millisecond},
		{"second", 100 * time.Millisecond, 5 * time.Second, 2, 200 * time.Millisecond, 400 * time.Millisecond},
		{"capped", 100 * time.Millisecond, 300 * time.Millisecond, 5, 150 * time.Millisecond, 300 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			for range 20 {
				got := calculateBackoff(tt.base, tt.max, tt.attempt)
				require.GreaterOrEqual(t, got, tt.min)
				require.LessOrEqual(t, got, tt.top)
			}
		})
	}
}

func TestETL_Retry_Markers_Nil(t *testing.T) {
	t.Parallel()
	require.NoError(t, Permanent(nil))
	require.NoError(t, Retryable(nil))
}
