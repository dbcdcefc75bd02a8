package fetch

import (
	"context"
	"testing"
	"time"
)

func TestPoolAcquireReleaseRoundTrips(t *testing.T) {
	pool, err := NewPool(2, PoolOptions{UserAgent: "test"})
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	defer pool.Close()

	c, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	pool.Release(c)

	c2, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	pool.Release(c2)
}

func TestPoolAcquireBlocksWhenSaturated(t *testing.T) {
	pool, err := NewPool(1, PoolOptions{})
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	defer pool.Close()

	c, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := pool.Acquire(ctx); err == nil {
		t.Fatal("expected Acquire to block/fail while pool is saturated")
	}

	pool.Release(c)
}

func TestPoolAcquireAfterCloseFails(t *testing.T) {
	pool, err := NewPool(1, PoolOptions{})
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	pool.Close()

	if _, err := pool.Acquire(context.Background()); err == nil {
		t.Fatal("expected Acquire to fail after Close")
	}
}

func TestPoolClearCookies(t *testing.T) {
	pool, err := NewPool(1, PoolOptions{})
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	defer pool.Close()

	pool.AddCookie("session", "abc", "example.com")
	if ok := pool.ClearCookies(); !ok {
		t.Fatal("expected ClearCookies to return true")
	}
}

func TestRejectsNonPositiveSize(t *testing.T) {
	if _, err := NewPool(0, PoolOptions{}); err == nil {
		t.Fatal("expected error for zero-sized pool")
	}
}
