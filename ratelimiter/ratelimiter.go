// Package ratelimiter paces outbound model requests with a channel-backed token bucket.
package ratelimiter

import (
	"context"
	"errors"
	"sync"
	"time"
)

const (
	DefaultBucketSize = 10
	DefaultRefillRate = time.Second
)

var ErrRateLimiterStopped = errors.New("rate limiter stopped")

// TokenBucket hands out at most BucketSize tokens in a burst and adds one
// token every RefillRate.
type TokenBucket struct {
	bucketSize int
	refillRate time.Duration
	tokens     chan struct{}
	ticker     *time.Ticker
	stopCh     chan struct{}
	mu         sync.RWMutex
	stopped    bool
}

func NewTokenBucket(bucketSize int, refillRate time.Duration) *TokenBucket {
	if bucketSize <= 0 {
		bucketSize = DefaultBucketSize
	}
	if refillRate <= 0 {
		refillRate = DefaultRefillRate
	}

	tb := &TokenBucket{
		bucketSize: bucketSize,
		refillRate: refillRate,
		tokens:     make(chan struct{}, bucketSize),
		ticker:     time.NewTicker(refillRate),
		stopCh:     make(chan struct{}),
	}

	for i := 0; i < bucketSize; i++ {
		tb.tokens <- struct{}{}
	}

	go tb.refillTokens()

	return tb
}

// NewPerMinute returns a bucket allowing requestsPerMinute requests per
// minute with a burst of at most one request per second of budget.
func NewPerMinute(requestsPerMinute int) *TokenBucket {
	if requestsPerMinute <= 0 {
		return NewTokenBucket(0, 0)
	}
	burst := requestsPerMinute / 60
	if burst < 1 {
		burst = 1
	}
	return NewTokenBucket(burst, time.Minute/time.Duration(requestsPerMinute))
}

func (tb *TokenBucket) refillTokens() {
	for {
		select {
		case <-tb.ticker.C:
			select {
			case tb.tokens <- struct{}{}:
			default:
			}
		case <-tb.stopCh:
			return
		}
	}
}

func (tb *TokenBucket) Allow() bool {
	if tb.isStopped() {
		return false
	}

	select {
	case <-tb.tokens:
		return true
	default:
		return false
	}
}

// Wait blocks until a token is available, the context is done or the bucket is stopped.
func (tb *TokenBucket) Wait(ctx context.Context) error {
	if tb.isStopped() {
		return ErrRateLimiterStopped
	}

	select {
	case <-tb.tokens:
		return nil
	case <-tb.stopCh:
		return ErrRateLimiterStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (tb *TokenBucket) Stop() {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	if tb.stopped {
		return
	}

	tb.stopped = true
	tb.ticker.Stop()
	close(tb.stopCh)
}

func (tb *TokenBucket) isStopped() bool {
	tb.mu.RLock()
	defer tb.mu.RUnlock()
	return tb.stopped
}

func (tb *TokenBucket) AvailableTokens() int {
	return len(tb.tokens)
}

func (tb *TokenBucket) BucketSize() int {
	return tb.bucketSize
}

func (tb *TokenBucket) RefillRate() time.Duration {
	return tb.refillRate
}
