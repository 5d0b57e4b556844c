// Package ratelimit bounds the outbound call rate shared by every component
// that talks to the venue.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// Config describe el token bucket: MaxRequests por Window, con ráfaga Burst.
type Config struct {
	MaxRequests int
	Window      time.Duration
	Burst       int
}

// DefaultConfig: 100 requests / 60s, ráfaga de 10.
func DefaultConfig() Config {
	return Config{MaxRequests: 100, Window: 60 * time.Second, Burst: 10}
}

// Bucket is a token bucket refilled lazily at MaxRequests/Window tokens per
// second and capped at Burst. It never rejects: Acquire waits.
type Bucket struct {
	lim   *rate.Limiter
	burst int
	every float64 // tokens per second
}

// New crea un Bucket lleno.
func New(cfg Config) *Bucket {
	def := DefaultConfig()
	if cfg.MaxRequests <= 0 {
		cfg.MaxRequests = def.MaxRequests
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	perSec := float64(cfg.MaxRequests) / cfg.Window.Seconds()
	return &Bucket{
		lim:   rate.NewLimiter(rate.Limit(perSec), cfg.Burst),
		burst: cfg.Burst,
		every: perSec,
	}
}

// Acquire blocks until n tokens have been debited or ctx is done.
// Requests larger than the burst are reserved in burst-sized chunks, so they
// wait at least (n-burst)/rate. On cancellation the reserved tokens are
// returned to the bucket and ctx.Err() is returned.
func (b *Bucket) Acquire(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	now := time.Now()
	reservations := make([]*rate.Reservation, 0, (n+b.burst-1)/b.burst)
	var wait time.Duration
	for remaining := n; remaining > 0; {
		chunk := min(remaining, b.burst)
		r := b.lim.ReserveN(now, chunk)
		if !r.OK() {
			cancelAll(reservations, now)
			return fmt.Errorf("ratelimit.Acquire: cannot reserve %d tokens", chunk)
		}
		reservations = append(reservations, r)
		if d := r.DelayFrom(now); d > wait {
			wait = d
		}
		remaining -= chunk
	}

	if wait <= 0 {
		return nil
	}
	slog.Debug("rate limit wait", "tokens", n, "wait", wait)

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		cancelAll(reservations, time.Now())
		return ctx.Err()
	}
}

// Available devuelve los tokens disponibles ahora (puede ser negativo si hay esperas en curso).
func (b *Bucket) Available() float64 {
	return b.lim.TokensAt(time.Now())
}

// Rate devuelve el refill en tokens por segundo.
func (b *Bucket) Rate() float64 { return b.every }

// Burst devuelve la capacidad del bucket.
func (b *Bucket) Burst() int { return b.burst }

func cancelAll(rs []*rate.Reservation, at time.Time) {
	// en orden inverso: cada cancel devuelve lo que ya no reservan los posteriores
	for i := len(rs) - 1; i >= 0; i-- {
		rs[i].CancelAt(at)
	}
}
