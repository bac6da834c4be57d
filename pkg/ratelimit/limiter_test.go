package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestLimiter_UnlimitedDoesNotBlock(t *testing.T) {
	l := NewLimiter(0, 0, zerolog.Nop())

	start := time.Now()
	for i := 0; i < 100; i++ {
		if err := l.Wait(context.Background()); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("unlimited limiter took %v for 100 requests", elapsed)
	}
}

func TestLimiter_BackoffDelaysCallers(t *testing.T) {
	l := NewLimiter(0, 1, zerolog.Nop())
	l.Backoff(150 * time.Millisecond)

	if !l.State().IsBlocked() {
		t.Fatal("State().IsBlocked() = false after Backoff")
	}

	start := time.Now()
	if err := l.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Errorf("Wait() returned after %v, expected to honor the pause", elapsed)
	}
}

func TestLimiter_ShorterBackoffDoesNotShrink(t *testing.T) {
	l := NewLimiter(0, 1, zerolog.Nop())
	l.Backoff(time.Minute)
	first := l.State().BlockedUntil

	l.Backoff(time.Second)
	if got := l.State().BlockedUntil; !got.Equal(first) {
		t.Errorf("BlockedUntil moved from %v to %v", first, got)
	}
}

func TestLimiter_WaitHonorsContext(t *testing.T) {
	l := NewLimiter(0, 1, zerolog.Nop())
	l.Backoff(time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := l.Wait(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() error = %v, want deadline exceeded", err)
	}
}

func TestLimiter_ConcurrentUse(t *testing.T) {
	l := NewLimiter(1000, 10, zerolog.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Wait(context.Background()); err != nil {
				t.Errorf("Wait() error = %v", err)
			}
			l.Backoff(time.Millisecond)
		}()
	}
	wg.Wait()

	if s := l.State(); s.Burst != 10 {
		t.Errorf("Burst = %d, want 10", s.Burst)
	}
}
