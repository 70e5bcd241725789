package mq

import (
	"context"
	"time"
)

type deliveryResult int

const (
	deliveryAcked deliveryResult = iota
	deliveryDeadLetter
	deliveryAborted
)

// deliver runs handler until it succeeds, gives up, or ctx ends.
func deliver(ctx context.Context, handler HandlerFunc, m *Message, opts SubscribeOptions) (deliveryResult, error) {
	if m.MaxRetries == 0 {
		m.MaxRetries = opts.MaxRetries
	}
	for {
		err := handler(ctx, m)
		if err == nil {
			return deliveryAcked, nil
		}
		if ctx.Err() != nil {
			return deliveryAborted, err
		}
		if opts.Retryable != nil && !opts.Retryable(err) {
			return deliveryDeadLetter, err
		}
		m.RetryCount++
		if m.RetryCount > m.MaxRetries {
			return deliveryDeadLetter, err
		}
		timer := time.NewTimer(opts.RetryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return deliveryAborted, err
		case <-timer.C:
		}
	}
}
