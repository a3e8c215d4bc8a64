package engine

import (
	"sync"
	"time"
)

// RateBudget tracks the shared external-provider call budget: a token bucket
// refilled at the per-minute limit plus a hard per-day ceiling. The state is
// process-local and never persisted; a restart resets to a full bucket,
// which keeps the engine conservative relative to the provider's quota.
type RateBudget struct {
	mu             sync.Mutex
	perMinuteLimit int
	tokens         int
	lastRefill     time.Time
	dailyLimit     int
	dailyCount     int
	day            string
	now            func() time.Time
}

// NewRateBudget constructs a budget with a full token bucket.
func NewRateBudget(perMinuteLimit, dailyLimit int) *RateBudget {
	if perMinuteLimit < 1 {
		perMinuteLimit = 1
	}
	if dailyLimit < 1 {
		dailyLimit = 1
	}
	b := &RateBudget{
		perMinuteLimit: perMinuteLimit,
		tokens:         perMinuteLimit,
		dailyLimit:     dailyLimit,
		now:            time.Now,
	}
	b.lastRefill = b.now()
	b.day = dayKey(b.lastRefill)
	return b
}

// Refill adds the tokens earned since the last refill, capped at the
// per-minute limit. lastRefill advances only by whole token intervals so
// fractional elapsed time is never lost.
func (b *RateBudget) Refill() {
	b.mu.Lock()
	defer b.mu.Unlock()

	interval := time.Minute / time.Duration(b.perMinuteLimit)
	elapsed := b.now().Sub(b.lastRefill)
	added := int(elapsed / interval)
	if added <= 0 {
		return
	}
	b.tokens += added
	if b.tokens > b.perMinuteLimit {
		b.tokens = b.perMinuteLimit
	}
	b.lastRefill = b.lastRefill.Add(time.Duration(added) * interval)
}

// TryConsume takes one token iff one is available and the daily ceiling has
// not been reached. It is the single admission gate before any provider call.
func (b *RateBudget) TryConsume() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rolloverLocked()
	if b.tokens <= 0 || b.dailyCount >= b.dailyLimit {
		return false
	}
	b.tokens--
	return true
}

// RecordDailyUsage counts calls that actually reached the provider. Work that
// was short-circuited because results already existed must record zero.
func (b *RateBudget) RecordDailyUsage(n int) {
	if n <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rolloverLocked()
	b.dailyCount += n
}

// Tokens reports the currently available token count.
func (b *RateBudget) Tokens() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tokens
}

// DailyCount reports provider calls recorded for the current UTC day.
func (b *RateBudget) DailyCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rolloverLocked()
	return b.dailyCount
}

// rolloverLocked lazily resets the daily counter when the UTC day changes.
func (b *RateBudget) rolloverLocked() {
	day := dayKey(b.now())
	if day != b.day {
		b.day = day
		b.dailyCount = 0
	}
}

func dayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
