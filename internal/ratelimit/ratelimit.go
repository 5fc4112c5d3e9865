// Package ratelimit caps outbound AI and search calls per provider so a
// runaway job cannot burn through API budgets.
package ratelimit

import (
	"fmt"
	"log"
	"sync"
	"time"
)

type Limiter struct {
	mu        sync.Mutex
	counts    map[string]int
	limits    map[string]int // 0 means unlimited
	resetTime time.Time
}

// New creates a limiter with per-provider daily limits.
func New(limits map[string]int) *Limiter {
	l := &Limiter{
		counts:    make(map[string]int),
		limits:    make(map[string]int, len(limits)),
		resetTime: time.Now().Add(24 * time.Hour),
	}
	for provider, max := range limits {
		l.limits[provider] = max
	}
	return l
}

// Use records one call for the provider, or returns an error when the
// provider's budget is exhausted.
func (l *Limiter) Use(provider string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.checkReset()

	max := l.limits[provider]
	if max > 0 && l.counts[provider] >= max {
		return fmt.Errorf("%s rate limit exceeded (%d/%d)", provider, l.counts[provider], max)
	}

	l.counts[provider]++
	return nil
}

// Remaining reports how many calls are left for the provider; -1 means
// unlimited.
func (l *Limiter) Remaining(provider string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.checkReset()

	max := l.limits[provider]
	if max <= 0 {
		return -1
	}
	left := max - l.counts[provider]
	if left < 0 {
		left = 0
	}
	return left
}

// Stats returns current usage per provider.
func (l *Limiter) Stats() map[string]interface{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	stats := make(map[string]interface{}, len(l.counts)+1)
	for provider, count := range l.counts {
		stats[provider+"_used"] = count
		stats[provider+"_limit"] = l.limits[provider]
	}
	stats["reset_time"] = l.resetTime
	return stats
}

func (l *Limiter) checkReset() {
	if time.Now().After(l.resetTime) {
		log.Printf("Resetting AI rate limiter counters")
		l.counts = make(map[string]int)
		l.resetTime = time.Now().Add(24 * time.Hour)
	}
}
