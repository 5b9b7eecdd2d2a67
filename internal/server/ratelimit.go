package server

import (
	"sync"
	"time"
)

// RateLimiter counts FAILED ingest authentication attempts per address.
//
// Successful authentications are not counted and reset the failure
// counter of the address.
//
// Flow:
//  1. Check IsBlocked() - if true, refuse immediately
//  2. Compare the bearer token
//  3. If it does not match: call RecordFailure()
//  4. If it matches: call Reset()
type RateLimiter struct {
	mu       sync.Mutex
	failures map[string]*rateLimitEntry
	limit    int           // max failures before blocking
	window   time.Duration // time window for counting failures
	now      func() time.Time
}

type rateLimitEntry struct {
	count     int       // number of failed attempts
	resetTime time.Time // when this entry expires
}

// NewRateLimiter creates a limiter blocking an address after limit
// failures within window.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		failures: make(map[string]*rateLimitEntry),
		limit:    limit,
		window:   window,
		now:      time.Now,
	}
}

// IsBlocked returns true if addr has exceeded the failure limit.
func (rl *RateLimiter) IsBlocked(addr string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, ok := rl.failures[addr]
	if !ok || rl.now().After(entry.resetTime) {
		return false
	}
	return entry.count >= rl.limit
}

// RecordFailure records a failed attempt.
func (rl *RateLimiter) RecordFailure(addr string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	entry, ok := rl.failures[addr]
	if !ok || now.After(entry.resetTime) {
		// New entry or window expired - start fresh
		rl.failures[addr] = &rateLimitEntry{count: 1, resetTime: now.Add(rl.window)}
		return
	}
	entry.count++
}

// Reset clears the failure count of addr.
func (rl *RateLimiter) Reset(addr string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.failures, addr)
}

// FailureCount returns the current failure count of addr.
func (rl *RateLimiter) FailureCount(addr string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, ok := rl.failures[addr]
	if !ok || rl.now().After(entry.resetTime) {
		return 0
	}
	return entry.count
}

// Cleanup forgets expired entries and returns how many remain.
func (rl *RateLimiter) Cleanup() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for addr, entry := range rl.failures {
		if now.After(entry.resetTime) {
			delete(rl.failures, addr)
		}
	}
	return len(rl.failures)
}
