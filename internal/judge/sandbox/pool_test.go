package sandbox

import (
	"context"
	"testing"
	"time"

	appErr "codejudge/pkg/errors"
)

func TestSlotPoolFailsClosed(t *testing.T) {
	pool := NewSlotPool(1, 20*time.Millisecond)
	release, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if pool.InUse() != 1 || pool.Capacity() != 1 {
		t.Fatalf("unexpected pool state: %d/%d", pool.InUse(), pool.Capacity())
	}

	start := time.Now()
	_, err = pool.Acquire(context.Background())
	if appErr.GetCode(err) != appErr.JudgeQueueFull {
		t.Fatalf("expected JudgeQueueFull, got %v", err)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Fatalf("rejected before acquire timeout")
	}

	release()
	release()
	if pool.InUse() != 0 {
		t.Fatalf("double release must not free extra slots: %d", pool.InUse())
	}
	release2, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire after release failed: %v", err)
	}
	release2()
}

func TestSlotPoolWaitsForRelease(t *testing.T) {
	pool := NewSlotPool(1, time.Second)
	release, _ := pool.Acquire(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		release()
	}()
	release2, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("expected slot after release, got %v", err)
	}
	release2()
}

func TestSlotPoolContextCancelled(t *testing.T) {
	pool := NewSlotPool(1, time.Second)
	release, _ := pool.Acquire(context.Background())
	defer release()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := pool.Acquire(ctx); err == nil {
		t.Fatalf("expected error for cancelled context")
	}
}
