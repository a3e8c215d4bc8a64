package engine

import (
	"testing"
	"time"
)

func TestRefillAddsFlooredTokens(t *testing.T) {
	// 15 tokens/min means one token every 4 seconds.
	clock := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	b := NewRateBudget(15, 1000)
	b.now = func() time.Time { return clock }
	b.lastRefill = clock

	// Drain the bucket.
	for i := 0; i < 15; i++ {
		if !b.TryConsume() {
			t.Fatalf("consume %d failed with full bucket", i)
		}
	}
	if b.TryConsume() {
		t.Fatalf("consume succeeded on empty bucket")
	}

	tests := []struct {
		name    string
		advance time.Duration
		want    int
	}{
		{name: "below one interval", advance: 3 * time.Second, want: 0},
		{name: "exactly one interval", advance: 1 * time.Second, want: 1},
		{name: "two and a half intervals", advance: 10 * time.Second, want: 3},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			clock = clock.Add(tc.advance)
			b.Refill()
			if got := b.Tokens(); got != tc.want {
				t.Fatalf("tokens = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestRefillNeverExceedsPerMinuteLimit(t *testing.T) {
	clock := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	b := NewRateBudget(15, 1000)
	b.now = func() time.Time { return clock }
	b.lastRefill = clock

	clock = clock.Add(10 * time.Minute)
	b.Refill()
	if got := b.Tokens(); got != 15 {
		t.Fatalf("tokens = %d, want cap of 15", got)
	}
}

func TestRefillDoesNotDriftOnFractionalElapsed(t *testing.T) {
	clock := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	b := NewRateBudget(15, 1000)
	b.now = func() time.Time { return clock }
	b.lastRefill = clock
	b.tokens = 0

	// Two refills of 3.5 intervals each must yield 7 tokens total, not 6.
	clock = clock.Add(14 * time.Second)
	b.Refill()
	clock = clock.Add(14 * time.Second)
	b.Refill()
	if got := b.Tokens(); got != 7 {
		t.Fatalf("tokens = %d, want 7", got)
	}
}

func TestDailyCeilingBlocksConsumption(t *testing.T) {
	clock := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	b := NewRateBudget(15, 5)
	b.now = func() time.Time { return clock }
	b.lastRefill = clock

	b.RecordDailyUsage(5)
	if b.TryConsume() {
		t.Fatalf("consume succeeded past daily ceiling")
	}
	if got := b.Tokens(); got != 15 {
		t.Fatalf("tokens = %d, blocked consume must not spend a token", got)
	}
}

func TestDailyCeilingResetsOnUTCDayRollover(t *testing.T) {
	clock := time.Date(2025, 6, 1, 23, 59, 0, 0, time.UTC)
	b := NewRateBudget(15, 5)
	b.now = func() time.Time { return clock }
	b.lastRefill = clock

	b.RecordDailyUsage(5)
	if b.TryConsume() {
		t.Fatalf("consume succeeded past daily ceiling")
	}

	clock = clock.Add(2 * time.Minute)
	if !b.TryConsume() {
		t.Fatalf("consume failed after day rollover")
	}
	if got := b.DailyCount(); got != 0 {
		t.Fatalf("daily count = %d, want 0 after rollover", got)
	}
}

func TestRecordDailyUsageZeroIsNoop(t *testing.T) {
	b := NewRateBudget(15, 100)
	b.RecordDailyUsage(0)
	if got := b.DailyCount(); got != 0 {
		t.Fatalf("daily count = %d, want 0", got)
	}
}
