// Package ratelimit paces outbound traffic to search engines.
//
// Pacer enforces a fixed pause between units of work (one company) and
// Limiter caps the raw request rate across every HTTP request the fetcher
// makes, robots.txt lookups included.
package ratelimit

import (
	"context"
	"math/rand/v2"
	"time"

	"golang.org/x/time/rate"
)

// Pacer sleeps a fixed delay, optionally randomized by a jitter factor.
type Pacer struct {
	delay  time.Duration
	jitter float64 // 0.0 to 1.0
}

// NewPacer creates a Pacer. A delay <= 0 never blocks. jitter is clamped to
// [0,1]; with jitter j each pause lasts delay * (1 ± j).
func NewPacer(delay time.Duration, jitter float64) *Pacer {
	if jitter < 0 {
		jitter = 0
	} else if jitter > 1 {
		jitter = 1
	}
	return &Pacer{delay: delay, jitter: jitter}
}

// Delay reports the configured base delay.
func (p *Pacer) Delay() time.Duration { return p.delay }

// Next returns the duration of the next pause.
func (p *Pacer) Next() time.Duration {
	if p.delay <= 0 {
		return 0
	}
	if p.jitter == 0 {
		return p.delay
	}
	factor := 1 + p.jitter*(rand.Float64()*2-1) // 1-j .. 1+j
	return time.Duration(float64(p.delay) * factor)
}

// Pause blocks for the next pause duration or until ctx is done.
func (p *Pacer) Pause(ctx context.Context) error {
	d := p.Next()
	if d <= 0 {
		return ctx.Err()
	}
	return sleepCtx(ctx, d)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Limiter caps requests per second. It is safe for concurrent use.
type Limiter struct {
	lim *rate.Limiter
}

// NewLimiter creates a limiter allowing rps requests per second with the
// given burst. rps <= 0 disables limiting.
func NewLimiter(rps float64, burst int) *Limiter {
	if rps <= 0 {
		return &Limiter{}
	}
	if burst < 1 {
		burst = 1
	}
	return &Limiter{lim: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Wait blocks until a request may proceed or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil || l.lim == nil {
		return ctx.Err()
	}
	return l.lim.Wait(ctx)
}
