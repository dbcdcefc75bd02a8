package crawler

import (
	"context"
	"testing"
	"time"
)

func TestCompletionPoolSubmitAndPoll(t *testing.T) {
	pool, err := newCompletionPool[int](context.Background(), 2, 4)
	if err != nil {
		t.Fatalf("newCompletionPool: %v", err)
	}
	defer pool.Close()

	if err := pool.Submit(func(ctx context.Context) int { return 42 }); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	got, ok := pool.PollCompleted(time.Second)
	if !ok || got != 42 {
		t.Fatalf("PollCompleted() = (%d, %v), want (42, true)", got, ok)
	}
}

func TestCompletionPoolPollTimesOut(t *testing.T) {
	pool, err := newCompletionPool[int](context.Background(), 1, 1)
	if err != nil {
		t.Fatalf("newCompletionPool: %v", err)
	}
	defer pool.Close()

	_, ok := pool.PollCompleted(50 * time.Millisecond)
	if ok {
		t.Fatal("expected PollCompleted to time out on an idle pool")
	}
}

func TestCompletionPoolSubmitAfterCloseFails(t *testing.T) {
	pool, err := newCompletionPool[int](context.Background(), 1, 1)
	if err != nil {
		t.Fatalf("newCompletionPool: %v", err)
	}
	pool.Close()

	if err := pool.Submit(func(ctx context.Context) int { return 1 }); err != ErrPoolClosed {
		t.Fatalf("Submit after Close = %v, want ErrPoolClosed", err)
	}
}

func TestCompletionPoolRejectsBadConfig(t *testing.T) {
	if _, err := newCompletionPool[int](context.Background(), 0, 1); err == nil {
		t.Error("expected error for non-positive concurrency")
	}
	if _, err := newCompletionPool[int](context.Background(), 1, 0); err == nil {
		t.Error("expected error for non-positive completion buffer size")
	}
}

// TestCompletionPoolSubmitNeverBlocksPastDoneBuffer submits many more jobs
// than either the worker count or the completion-channel buffer, with every
// worker parked on an unblockable job. Submit must still return immediately
// for all of them: the job queue is unbounded, so it never applies its own
// backpressure on top of whatever the caller already decided.
func TestCompletionPoolSubmitNeverBlocksPastDoneBuffer(t *testing.T) {
	block := make(chan struct{})

	pool, err := newCompletionPool[int](context.Background(), 2, 2)
	if err != nil {
		t.Fatalf("newCompletionPool: %v", err)
	}
	defer pool.Close()
	defer close(block)

	const jobCount = 50
	done := make(chan error, 1)
	go func() {
		for i := 0; i < jobCount; i++ {
			if err := pool.Submit(func(ctx context.Context) int {
				<-block
				return 0
			}); err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Submit blocked: queue depth should never throttle submission")
	}
}
