// Package retry applies the venue error policy to a single logical call.
//
//   - ClientError (4xx except 429): permanent, returned as an empty result.
//   - ServerError, TimeoutError and unclassified transport errors: retried with
//     jittered exponential backoff up to MaxAttempts.
//   - RateLimitedError: waits Retry-After and retries without consuming an
//     attempt, bounded by MaxRateLimitWaits.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/airhao3/jmm-trade/internal/domain"
)

// ErrExhausted is wrapped when every attempt failed.
var ErrExhausted = errors.New("retries exhausted")

// Policy controla los reintentos.
type Policy struct {
	MaxAttempts       int
	BaseDelay         time.Duration // backoff = BaseDelay · 2^(attempt-1)
	DefaultRetryAfter time.Duration // si el 429 no trae Retry-After
	MaxRateLimitWaits int
}

// DefaultPolicy: 3 intentos, 500ms base, 2s por defecto en 429, máx 10 esperas por 429.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:       3,
		BaseDelay:         500 * time.Millisecond,
		DefaultRetryAfter: 2 * time.Second,
		MaxRateLimitWaits: 10,
	}
}

func (p Policy) withDefaults() Policy {
	def := DefaultPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = def.BaseDelay
	}
	if p.DefaultRetryAfter <= 0 {
		p.DefaultRetryAfter = def.DefaultRetryAfter
	}
	if p.MaxRateLimitWaits <= 0 {
		p.MaxRateLimitWaits = def.MaxRateLimitWaits
	}
	return p
}

// Backoff devuelve la espera tras el intento n (1-based): BaseDelay·2^(n-1)
// más un jitter aleatorio de hasta la mitad, para que fallos simultáneos no
// reintenten a la vez.
func (p Policy) Backoff(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	wait := p.BaseDelay << (n - 1)
	if half := int64(wait / 2); half > 0 {
		wait += time.Duration(rand.Int64N(half + 1))
	}
	return wait
}

// Acquirer debits rate budget before each attempt.
type Acquirer interface {
	Acquire(ctx context.Context, n int) error
}

// Do runs fn under the policy. lim may be nil.
// A ClientError yields the zero value and a nil error.
func Do[T any](ctx context.Context, p Policy, lim Acquirer, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	p = p.withDefaults()

	attempts, waits := 0, 0
	for {
		if lim != nil {
			if err := lim.Acquire(ctx, 1); err != nil {
				return zero, err
			}
		}

		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}

		if domain.IsClientError(err) {
			slog.Debug("client error, not retrying", "op", op, "err", err)
			return zero, nil
		}

		if ra, ok := domain.RetryAfter(err); ok {
			waits++
			if waits > p.MaxRateLimitWaits {
				return zero, fmt.Errorf("%s: %w: rate limited %d times: %w", op, ErrExhausted, p.MaxRateLimitWaits, err)
			}
			if ra <= 0 {
				ra = p.DefaultRetryAfter
			}
			slog.Warn("rate limited by API", "op", op, "retry_after", ra, "waits", waits)
			if err := sleep(ctx, ra); err != nil {
				return zero, err
			}
			continue
		}

		attempts++
		if attempts >= p.MaxAttempts {
			return zero, fmt.Errorf("%s: %w after %d attempts: %w", op, ErrExhausted, attempts, err)
		}
		wait := p.Backoff(attempts)
		slog.Warn("request failed, retrying",
			"op", op,
			"attempt", attempts,
			"max", p.MaxAttempts,
			"wait", wait,
			"err", err,
		)
		if err := sleep(ctx, wait); err != nil {
			return zero, err
		}
	}
}

// sleep espera d respetando el contexto.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
