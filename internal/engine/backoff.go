package engine

import (
	"sync"
	"time"
)

const (
	initialBackoff = 5 * time.Second
	maxBackoff     = 5 * time.Minute
)

// retryDelays are the fixed delays applied per attempt number for ordinary
// processor failures. Attempts past the table reuse the last entry.
var retryDelays = []time.Duration{30 * time.Second, 2 * time.Minute, 10 * time.Minute}

// retryDelay returns the requeue delay after the given (already incremented)
// attempt count.
func retryDelay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	if attempts > len(retryDelays) {
		attempts = len(retryDelays)
	}
	return retryDelays[attempts-1]
}

// BackoffTracker holds per-subject exponential backoff state for provider
// rate-limit deferrals. Entries double on each consecutive throttle, cap at
// maxBackoff, and are cleared on the first success for the subject. The
// state is transient; it only exists to keep throttled subjects from being
// re-leased before their deferral elapses.
type BackoffTracker struct {
	mu      sync.Mutex
	entries map[string]backoffEntry
	now     func() time.Time
}

type backoffEntry struct {
	delay       time.Duration
	nextRetryAt time.Time
}

// NewBackoffTracker constructs an empty tracker.
func NewBackoffTracker() *BackoffTracker {
	return &BackoffTracker{
		entries: make(map[string]backoffEntry),
		now:     time.Now,
	}
}

// Next records one more rate-limit hit for the subject and returns the new
// deferral delay: the initial backoff on first hit, doubled per consecutive
// hit, capped at maxBackoff.
func (t *BackoffTracker) Next(subject string) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	delay := initialBackoff
	if prev, ok := t.entries[subject]; ok {
		delay = prev.delay * 2
		if delay > maxBackoff {
			delay = maxBackoff
		}
	}
	t.entries[subject] = backoffEntry{
		delay:       delay,
		nextRetryAt: t.now().Add(delay),
	}
	return delay
}

// Deferred reports whether the subject is still inside a backoff window and,
// if so, when it may next be attempted.
func (t *BackoffTracker) Deferred(subject string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.entries[subject]
	if !ok || !entry.nextRetryAt.After(t.now()) {
		return time.Time{}, false
	}
	return entry.nextRetryAt, true
}

// Clear removes the subject's backoff state after a successful attempt.
func (t *BackoffTracker) Clear(subject string) {
	t.mu.Lock()
	delete(t.entries, subject)
	t.mu.Unlock()
}
