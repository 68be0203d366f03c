// Package ratelimit implements the token bucket that throttles calls to
// upstream providers.
package ratelimit

import (
	"fmt"
	"math"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultCapacity        = 10
	DefaultRefillPerMinute = 30
)

// RateLimitError is returned when the bucket is empty. RetryAfter is an
// approximation: the time needed for a single token to accrue.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e RateLimitError) Error() string {
	seconds := int(math.Ceil(e.RetryAfter.Seconds()))
	return fmt.Sprintf("Rate limit exceeded. Retry after %ds.", seconds)
}

func (e RateLimitError) Status() (int, string) {
	return http.StatusTooManyRequests, http.StatusText(http.StatusTooManyRequests)
}

// Limiter is a token bucket holding at most capacity tokens, refilled
// continuously at refillPerMinute tokens per minute. It starts full and is
// safe for concurrent use.
type Limiter struct {
	bucket          *rate.Limiter
	capacity        int
	refillPerMinute float64
	now             func() time.Time
}

type Option func(*Limiter)

// WithClock overrides the time source used for refills.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

func New(capacity int, refillPerMinute float64, opts ...Option) (*Limiter, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("rate limit capacity must be at least 1, got %d", capacity)
	}
	if !(refillPerMinute > 0) || math.IsInf(refillPerMinute, 0) {
		return nil, fmt.Errorf("rate limit refill must be a positive number of tokens per minute, got %v", refillPerMinute)
	}

	l := &Limiter{
		capacity:        capacity,
		refillPerMinute: refillPerMinute,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}

	l.bucket = rate.NewLimiter(rate.Limit(refillPerMinute/60), capacity)

	initMetrics()

	return l, nil
}

// Consume takes one token, or returns a RateLimitError without changing the
// bucket when none is available.
func (l *Limiter) Consume() error {
	if !l.bucket.AllowN(l.now(), 1) {
		recordDecision("denied")
		return RateLimitError{RetryAfter: l.retryAfter()}
	}

	recordDecision("allowed")
	return nil
}

// CanConsume reports whether a token is available without taking it.
func (l *Limiter) CanConsume() bool {
	return l.bucket.TokensAt(l.now()) >= 1
}

// AvailableTokens is the number of whole tokens currently in the bucket.
func (l *Limiter) AvailableTokens() int {
	return int(math.Floor(l.bucket.TokensAt(l.now())))
}

func (l *Limiter) Capacity() int {
	return l.capacity
}

func (l *Limiter) RefillPerMinute() float64 {
	return l.refillPerMinute
}

// retryAfter is the time for one token to accrue, rounded up to the
// millisecond. It does not account for the fractional token already held.
func (l *Limiter) retryAfter() time.Duration {
	ms := math.Ceil(60_000 / l.refillPerMinute)
	return time.Duration(ms) * time.Millisecond
}
