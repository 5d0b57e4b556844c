package domain

import (
	"errors"
	"fmt"
	"time"
)

// ClientError is a permanent 4xx (other than 429). Never retried.
type ClientError struct {
	Status int
	Body   string
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("client error %d: %s", e.Status, e.Body)
}

// ServerError is a 5xx. Retried with backoff.
type ServerError struct {
	Status int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error %d", e.Status)
}

// RateLimitedError is a 429. RetryAfter is zero when the venue sent no hint.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited (retry after %s)", e.RetryAfter)
}

// TimeoutError wraps a request that exceeded its deadline.
type TimeoutError struct {
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout: %v", e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// IsClientError reports whether err is a permanent client error.
func IsClientError(err error) bool {
	var ce *ClientError
	return errors.As(err, &ce)
}

// RetryAfter devuelve el hint de un 429, ok=false si err no es rate limit.
func RetryAfter(err error) (time.Duration, bool) {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl.RetryAfter, true
	}
	return 0, false
}
