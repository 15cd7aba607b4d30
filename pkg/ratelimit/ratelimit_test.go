package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestPacer_ZeroDelayDoesNotBlock(t *testing.T) {
	p := NewPacer(0, 0.5)

	start := time.Now()
	if err := p.Pause(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if time.Since(start) > 10*time.Millisecond {
		t.Errorf("pacer with zero delay should not block")
	}
}

func TestPacer_Pause(t *testing.T) {
	p := NewPacer(100*time.Millisecond, 0)

	start := time.Now()
	if err := p.Pause(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	duration := time.Since(start)
	if duration < 90*time.Millisecond || duration > 250*time.Millisecond {
		t.Errorf("expected pause around 100ms, took %v", duration)
	}
}

func TestPacer_ContextCancellation(t *testing.T) {
	p := NewPacer(time.Minute, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := p.Pause(ctx); err == nil {
		t.Fatalf("expected context canceled error")
	}
}

func TestPacer_JitterBounds(t *testing.T) {
	p := NewPacer(100*time.Millisecond, 0.5)
	for i := 0; i < 200; i++ {
		d := p.Next()
		if d < 50*time.Millisecond || d > 150*time.Millisecond {
			t.Fatalf("jittered delay %v outside [50ms,150ms]", d)
		}
	}
}

func TestPacer_JitterClamped(t *testing.T) {
	p := NewPacer(100*time.Millisecond, 5)
	for i := 0; i < 200; i++ {
		if d := p.Next(); d < 0 || d > 200*time.Millisecond {
			t.Fatalf("clamped jitter produced %v", d)
		}
	}
}

func TestLimiter_NoBlockWhenZeroRPS(t *testing.T) {
	l := NewLimiter(0, 0)

	start := time.Now()
	for i := 0; i < 100; i++ {
		if err := l.Wait(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if time.Since(start) > 10*time.Millisecond {
		t.Errorf("limiter with 0 RPS should not block")
	}
}

func TestLimiter_Wait(t *testing.T) {
	l := NewLimiter(10, 1) // 100ms interval
	ctx := context.Background()

	// The first token is available immediately.
	_ = l.Wait(ctx)

	start := time.Now()
	if err := l.Wait(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	duration := time.Since(start)
	if duration < 50*time.Millisecond || duration > 200*time.Millisecond {
		t.Errorf("expected wait around 100ms, took %v", duration)
	}
}

func TestLimiter_ContextCancellation(t *testing.T) {
	l := NewLimiter(0.001, 1)
	ctx := context.Background()
	_ = l.Wait(ctx)

	ctx, cancel := context.WithCancel(ctx)
	cancel()
	if err := l.Wait(ctx); err == nil {
		t.Fatalf("expected context canceled error")
	}
}

func TestLimiter_NilSafe(t *testing.T) {
	var l *Limiter
	if err := l.Wait(context.Background()); err != nil {
		t.Errorf("nil limiter should not block or fail, got %v", err)
	}
}
