package transport

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// throttleGrowthEvery is how many rate-limit responses are tolerated before
// the pacing interval doubles.
const throttleGrowthEvery = 2

// AdaptiveLimiter enforces a minimum spacing between requests. The spacing
// only ever grows within the lifetime of the limiter.
type AdaptiveLimiter struct {
	mu          sync.Mutex
	limiter     *rate.Limiter
	interval    time.Duration
	maxInterval time.Duration
	throttled   int
}

func NewAdaptiveLimiter(minInterval, maxInterval time.Duration) *AdaptiveLimiter {
	if minInterval < 0 {
		minInterval = 0
	}
	if maxInterval < minInterval {
		maxInterval = minInterval
	}
	return &AdaptiveLimiter{
		limiter:     rate.NewLimiter(every(minInterval), 1),
		interval:    minInterval,
		maxInterval: maxInterval,
	}
}

func (l *AdaptiveLimiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// Throttled records a rate-limit response and widens the interval every
// throttleGrowthEvery occurrences.
func (l *AdaptiveLimiter) Throttled() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.throttled++
	if l.throttled%throttleGrowthEvery != 0 {
		return
	}
	next := l.interval * 2
	if next == 0 {
		next = 100 * time.Millisecond
	}
	if next > l.maxInterval {
		next = l.maxInterval
	}
	if next <= l.interval {
		return
	}
	l.interval = next
	l.limiter.SetLimit(every(next))
}

func (l *AdaptiveLimiter) Interval() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.interval
}

func every(d time.Duration) rate.Limit {
	if d <= 0 {
		return rate.Inf
	}
	return rate.Every(d)
}
