package taskgen

import (
	"sync"
	"time"
)

// rateLimiter is a sliding-window, count-bounded limiter: at most maxPerWindow
// events may be recorded in any rolling window duration. It mirrors the
// original VecDeque<Instant> approach directly rather than a generic
// multi-window library, so that callers can drive it with an explicit,
// injectable "now" for deterministic tests (see DESIGN.md for why
// github.com/joeycumines/go-utilpkg/catrate was not used here).
type rateLimiter struct {
	mu           sync.Mutex
	maxPerWindow int
	window       time.Duration
	timestamps   []time.Time
}

func newRateLimiter(maxPerWindow int, window time.Duration) *rateLimiter {
	return &rateLimiter{maxPerWindow: maxPerWindow, window: window}
}

// checkAndRecord evicts timestamps older than the window, then records now
// and returns true if the window was not already full; otherwise it leaves
// state unchanged and returns false.
func (r *rateLimiter) checkAndRecord(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.evictLocked(now)

	if len(r.timestamps) >= r.maxPerWindow {
		return false
	}
	r.timestamps = append(r.timestamps, now)
	return true
}

// currentCount returns the number of recorded events still within the
// window as of now.
func (r *rateLimiter) currentCount(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evictLocked(now)
	return len(r.timestamps)
}

// evictLocked drops timestamps older than window. Callers must hold r.mu.
func (r *rateLimiter) evictLocked(now time.Time) {
	cutoff := now.Add(-r.window)
	i := 0
	for i < len(r.timestamps) && !r.timestamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		r.timestamps = append(r.timestamps[:0], r.timestamps[i:]...)
	}
}
