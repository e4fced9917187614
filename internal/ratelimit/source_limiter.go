package ratelimit

import (
	"sync"
	"time"
)

// SourceLimiter enforces a per-source request budget (typically keyed by
// client IP). Each source gets its own TokenBucket; entries idle for longer
// than the sweep threshold are reclaimed by SweepIdle, which the caller is
// expected to drive on its own cadence.
type SourceLimiter struct {
	clock Clock

	capacityTokens int64
	ratePerMinute  int64

	mu      sync.Mutex
	sources map[string]*sourceEntry
}

type sourceEntry struct {
	bucket   *TokenBucket
	lastSeen time.Time
}

// NewSourceLimiter returns a limiter allowing ratePerMinute requests per
// source with bursts up to capacityTokens. A ratePerMinute <= 0 disables
// limiting: Allow always succeeds and no state is kept.
func NewSourceLimiter(clock Clock, capacityTokens, ratePerMinute int64) *SourceLimiter {
	if clock == nil {
		clock = RealClock{}
	}
	return &SourceLimiter{
		clock:          clock,
		capacityTokens: capacityTokens,
		ratePerMinute:  ratePerMinute,
		sources:        make(map[string]*sourceEntry),
	}
}

func (l *SourceLimiter) Allow(source string) bool {
	if l.ratePerMinute <= 0 {
		return true
	}

	now := l.clock.Now()

	l.mu.Lock()
	entry, ok := l.sources[source]
	if !ok {
		entry = &sourceEntry{
			bucket: NewTokenBucket(l.clock, l.capacityTokens, l.ratePerMinute),
		}
		l.sources[source] = entry
	}
	entry.lastSeen = now
	l.mu.Unlock()

	return entry.bucket.Allow(1)
}

// SweepIdle drops per-source state that has not been touched for idleFor.
// Returns the number of entries removed.
func (l *SourceLimiter) SweepIdle(now time.Time, idleFor time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for source, entry := range l.sources {
		if now.Sub(entry.lastSeen) > idleFor {
			delete(l.sources, source)
			removed++
		}
	}
	return removed
}

// Len reports the number of tracked sources. Intended for tests.
func (l *SourceLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.sources)
}
