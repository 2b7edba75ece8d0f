package confluence

import (
	"context"
	"testing"
	"time"
)

func TestRateLimiterHonorsBackoffHint(t *testing.T) {
	rl := NewRateLimiter(1000, 1000)
	rl.RecordRateLimit(50 * time.Millisecond)

	start := time.Now()
	if err := rl.Wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Fatalf("wait returned after %v, expected to honor the backoff hint", elapsed)
	}
}

func TestRateLimiterWaitRespectsContext(t *testing.T) {
	rl := NewRateLimiter(1000, 1000)
	rl.RecordRateLimit(time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := rl.Wait(ctx); err == nil {
		t.Fatalf("expected context error while backing off")
	}
}

func TestRateLimiterDefaults(t *testing.T) {
	rl := NewRateLimiter(0, 0)
	if err := rl.Wait(context.Background()); err != nil {
		t.Fatalf("wait with defaults: %v", err)
	}
}
