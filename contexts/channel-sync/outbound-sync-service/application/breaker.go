package application

import (
	"sync"
	"time"
)

const (
	DefaultBreakerThreshold = 5
	DefaultBreakerWindow    = 10 * time.Minute
)

// AuthBreaker suspends auto-dispatch for a property once its authentication
// failures exceed a threshold within a rolling window. An operator resets it
// after rotating credentials.
type AuthBreaker struct {
	Threshold int
	Window    time.Duration
	NowFunc   func() time.Time

	mu        sync.Mutex
	failures  map[string][]time.Time
	suspended map[string]bool
}

func NewAuthBreaker(threshold int, window time.Duration) *AuthBreaker {
	if threshold <= 0 {
		threshold = DefaultBreakerThreshold
	}
	if window <= 0 {
		window = DefaultBreakerWindow
	}
	return &AuthBreaker{
		Threshold: threshold,
		Window:    window,
		failures:  make(map[string][]time.Time),
		suspended: make(map[string]bool),
	}
}

func (b *AuthBreaker) now() time.Time {
	if b.NowFunc != nil {
		return b.NowFunc()
	}
	return time.Now()
}

// Allow reports whether dispatch for the property may proceed.
func (b *AuthBreaker) Allow(propertyID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.suspended[propertyID]
}

// RecordFailure notes one authentication failure and trips the breaker once
// the rolling-window count reaches the threshold.
func (b *AuthBreaker) RecordFailure(propertyID string) {
	now := b.now()
	cutoff := now.Add(-b.Window)

	b.mu.Lock()
	defer b.mu.Unlock()
	recent := b.failures[propertyID][:0]
	for _, at := range b.failures[propertyID] {
		if at.After(cutoff) {
			recent = append(recent, at)
		}
	}
	recent = append(recent, now)
	b.failures[propertyID] = recent
	if len(recent) >= b.Threshold {
		b.suspended[propertyID] = true
	}
}

// Reset clears the property's failure history and reopens dispatch.
func (b *AuthBreaker) Reset(propertyID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.failures, propertyID)
	delete(b.suspended, propertyID)
}
