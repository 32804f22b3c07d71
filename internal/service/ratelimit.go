package service

import (
	"context"
	"fmt"
	"time"
)

// RateLimiter caps the number of mutating operations per wallet inside a
// trailing window. The decision is based on persisted transaction
// timestamps, so the limit survives process restarts. Callers must hold
// the wallet's lock so the count cannot race a concurrent append.
type RateLimiter struct {
	txStore TransactionStore
	max     int
	window  time.Duration
}

// NewRateLimiter creates a limiter allowing at most max transactions per window.
func NewRateLimiter(txStore TransactionStore, max int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		txStore: txStore,
		max:     max,
		window:  window,
	}
}

// Allow reports whether the wallet may perform another mutating operation
// at instant now.
func (l *RateLimiter) Allow(ctx context.Context, userID string, now time.Time) (bool, error) {
	count, err := l.txStore.CountSince(ctx, userID, now.Add(-l.window))
	if err != nil {
		return false, fmt.Errorf("failed to count recent transactions: %w", err)
	}
	return count < l.max, nil
}

// check converts a denied decision into ErrRateLimited.
func (l *RateLimiter) check(ctx context.Context, userID string, now time.Time) error {
	allowed, err := l.Allow(ctx, userID, now)
	if err != nil {
		return err
	}
	if !allowed {
		return ErrRateLimited
	}
	return nil
}
