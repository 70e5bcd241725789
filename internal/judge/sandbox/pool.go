package sandbox

import (
	"context"
	"sync"
	"time"

	appErr "codejudge/pkg/errors"
)

const defaultAcquireTimeout = 2 * time.Second

// SlotPool bounds how many submissions execute at once.
// It fails closed: a caller that cannot get a slot in time is rejected.
type SlotPool struct {
	sem            chan struct{}
	acquireTimeout time.Duration
}

// NewSlotPool creates a pool with size slots.
func NewSlotPool(size int, acquireTimeout time.Duration) *SlotPool {
	if size <= 0 {
		size = 1
	}
	if acquireTimeout <= 0 {
		acquireTimeout = defaultAcquireTimeout
	}
	return &SlotPool{
		sem:            make(chan struct{}, size),
		acquireTimeout: acquireTimeout,
	}
}

// Acquire takes a slot and returns a release func that is safe to call more than once.
func (p *SlotPool) Acquire(ctx context.Context) (func(), error) {
	select {
	case p.sem <- struct{}{}:
		return p.releaseFunc(), nil
	default:
	}

	timer := time.NewTimer(p.acquireTimeout)
	defer timer.Stop()
	select {
	case p.sem <- struct{}{}:
		return p.releaseFunc(), nil
	case <-ctx.Done():
		return nil, appErr.Wrapf(ctx.Err(), appErr.Timeout, "waiting for judge slot")
	case <-timer.C:
		return nil, appErr.New(appErr.JudgeQueueFull).WithMessage("worker pool is full")
	}
}

func (p *SlotPool) releaseFunc() func() {
	var once sync.Once
	return func() {
		once.Do(func() { <-p.sem })
	}
}

// InUse reports the number of occupied slots.
func (p *SlotPool) InUse() int {
	return len(p.sem)
}

// Capacity reports the pool size.
func (p *SlotPool) Capacity() int {
	return cap(p.sem)
}
