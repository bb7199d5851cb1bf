package gateway

import "context"

const defaultMaxConcurrentFetches = 16

// fetchLimiter bounds the number of outbound fetches in flight.
type fetchLimiter struct {
	slots chan struct{}
}

func newFetchLimiter(maxConcurrent int) *fetchLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrentFetches
	}
	return &fetchLimiter{slots: make(chan struct{}, maxConcurrent)}
}

func (l *fetchLimiter) acquire(ctx context.Context) error {
	select {
	case l.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *fetchLimiter) release() {
	select {
	case <-l.slots:
	default:
	}
}

func (l *fetchLimiter) inFlight() int {
	return len(l.slots)
}
