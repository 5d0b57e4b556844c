package retry_test

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/airhao3/jmm-trade/internal/domain"
	"github.com/airhao3/jmm-trade/internal/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts:       3,
		BaseDelay:         time.Millisecond,
		DefaultRetryAfter: time.Millisecond,
		MaxRateLimitWaits: 5,
	}
}

type countingLimiter struct{ n int }

func (c *countingLimiter) Acquire(_ context.Context, n int) error {
	c.n += n
	return nil
}

func TestDo_SuccessFirstTry(t *testing.T) {
	calls := 0
	v, err := retry.Do(context.Background(), fastPolicy(), nil, "op", func(context.Context) (int, error) {
		calls++
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 1, calls)
}

func TestDo_ClientErrorIsEmptyResult(t *testing.T) {
	calls := 0
	v, err := retry.Do(context.Background(), fastPolicy(), nil, "op", func(context.Context) (string, error) {
		calls++
		return "ignored", &domain.ClientError{Status: 404}
	})
	require.NoError(t, err)
	assert.Equal(t, "", v)
	assert.Equal(t, 1, calls, "4xx no se reintenta")
}

func TestDo_ServerErrorRetriesThenSucceeds(t *testing.T) {
	calls := 0
	v, err := retry.Do(context.Background(), fastPolicy(), nil, "op", func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, &domain.ServerError{Status: 503}
		}
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	calls := 0
	_, err := retry.Do(context.Background(), fastPolicy(), nil, "op", func(context.Context) (int, error) {
		calls++
		return 0, &domain.TimeoutError{Err: errors.New("i/o timeout")}
	})
	require.ErrorIs(t, err, retry.ErrExhausted)
	assert.Equal(t, 3, calls)

	var te *domain.TimeoutError
	assert.ErrorAs(t, err, &te)
}

func TestDo_UnknownTransportErrorIsRetried(t *testing.T) {
	calls := 0
	_, err := retry.Do(context.Background(), fastPolicy(), nil, "op", func(context.Context) (int, error) {
		calls++
		return 0, &net.OpError{Op: "dial", Err: errors.New("connection refused")}
	})
	require.ErrorIs(t, err, retry.ErrExhausted)
	assert.Equal(t, 3, calls)
}

func TestDo_RateLimitDoesNotConsumeAttempts(t *testing.T) {
	calls := 0
	v, err := retry.Do(context.Background(), fastPolicy(), nil, "op", func(context.Context) (int, error) {
		calls++
		switch {
		case calls <= 4:
			return 0, &domain.RateLimitedError{RetryAfter: time.Millisecond}
		case calls <= 6:
			return 0, &domain.ServerError{Status: 500}
		}
		return 1, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.Equal(t, 7, calls)
}

func TestDo_RateLimitSafetyCap(t *testing.T) {
	calls := 0
	_, err := retry.Do(context.Background(), fastPolicy(), nil, "op", func(context.Context) (int, error) {
		calls++
		return 0, &domain.RateLimitedError{}
	})
	require.ErrorIs(t, err, retry.ErrExhausted)
	assert.Equal(t, 6, calls)
}

func TestDo_CancelledDuringBackoff(t *testing.T) {
	p := fastPolicy()
	p.BaseDelay = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := retry.Do(ctx, p, nil, "op", func(context.Context) (int, error) {
		return 0, &domain.ServerError{Status: 502}
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDo_AcquiresBudgetPerAttempt(t *testing.T) {
	lim := &countingLimiter{}
	calls := 0
	_, _ = retry.Do(context.Background(), fastPolicy(), lim, "op", func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, &domain.ServerError{Status: 500}
		}
		return 1, nil
	})
	assert.Equal(t, 2, lim.n)
}

func TestPolicy_BackoffIsJittered(t *testing.T) {
	p := retry.Policy{BaseDelay: 100 * time.Millisecond}

	seen := map[time.Duration]bool{}
	for i := 0; i < 50; i++ {
		d := p.Backoff(3)
		assert.GreaterOrEqual(t, d, 400*time.Millisecond)
		assert.LessOrEqual(t, d, 600*time.Millisecond)
		seen[d] = true
	}
	assert.Greater(t, len(seen), 1, "dos fallos simultáneos no deben esperar lo mismo")

	first := p.Backoff(1)
	assert.GreaterOrEqual(t, first, 100*time.Millisecond)
	assert.LessOrEqual(t, first, 150*time.Millisecond)
}
