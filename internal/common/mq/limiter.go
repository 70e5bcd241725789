package mq

import "context"

// inflightLimiter caps how many messages of one subscription are handled at once.
type inflightLimiter struct {
	slots chan struct{}
}

func newInflightLimiter(size int) *inflightLimiter {
	if size <= 0 {
		size = 1
	}
	return &inflightLimiter{slots: make(chan struct{}, size)}
}

// acquire blocks until a slot is free or ctx is canceled.
func (l *inflightLimiter) acquire(ctx context.Context) error {
	select {
	case l.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// release frees a slot. Extra releases are ignored.
func (l *inflightLimiter) release() {
	select {
	case <-l.slots:
	default:
	}
}

func (l *inflightLimiter) inFlight() int {
	return len(l.slots)
}
