package fetch

import (
	"context"
	"testing"
	"time"
)

func TestDomainLimiterEnforcesDelay(t *testing.T) {
	limiter := NewDomainLimiter(50*time.Millisecond, RateLimiterSettings{})

	start := time.Now()
	if err := limiter.Wait(context.Background(), "example.com"); err != nil {
		t.Fatalf("first wait: %v", err)
	}
	if err := limiter.Wait(context.Background(), "example.com"); err != nil {
		t.Fatalf("second wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Fatalf("expected second wait to be delayed, elapsed=%v", elapsed)
	}
}

func TestDomainLimiterPerHostIndependence(t *testing.T) {
	limiter := NewDomainLimiter(200*time.Millisecond, RateLimiterSettings{})

	if err := limiter.Wait(context.Background(), "a.com"); err != nil {
		t.Fatalf("wait a.com: %v", err)
	}

	start := time.Now()
	if err := limiter.Wait(context.Background(), "b.com"); err != nil {
		t.Fatalf("wait b.com: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Fatalf("expected b.com wait to be immediate, elapsed=%v", elapsed)
	}
}

func TestDomainLimiterNoopWhenUnconfigured(t *testing.T) {
	limiter := NewDomainLimiter(0, RateLimiterSettings{})
	start := time.Now()
	if err := limiter.Wait(context.Background(), "example.com"); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 20*time.Millisecond {
		t.Fatalf("expected immediate return, elapsed=%v", elapsed)
	}
}

func TestDomainLimiterRespectsContextCancellation(t *testing.T) {
	limiter := NewDomainLimiter(time.Second, RateLimiterSettings{})
	if err := limiter.Wait(context.Background(), "example.com"); err != nil {
		t.Fatalf("first wait: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := limiter.Wait(ctx, "example.com"); err == nil {
		t.Fatal("expected context deadline to cancel the wait")
	}
}
