package aggregator

import (
	"sync"
	"time"

	"github.com/mrzor/cellwatch/internal/identity"
)

// ActivityFeed keeps the most recent non-paging events, dropping an event identical to the
// one just before it. Timestamps are ignored when comparing.
type ActivityFeed struct {
	mu      sync.RWMutex
	size    int
	entries []identity.Event
}

// NewActivityFeed creates a feed holding at most size entries.
func NewActivityFeed(size int) *ActivityFeed {
	if size <= 0 {
		size = 1
	}
	return &ActivityFeed{size: size}
}

// Add appends ev and reports whether it was kept.
func (f *ActivityFeed) Add(ev identity.Event) bool {
	if ev.IsPaging() {
		return false
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if n := len(f.entries); n > 0 && sameActivity(f.entries[n-1], ev) {
		return false
	}
	f.entries = append(f.entries, ev)
	if over := len(f.entries) - f.size; over > 0 {
		f.entries = append(f.entries[:0:0], f.entries[over:]...)
	}
	return true
}

// Entries returns the feed, oldest first.
func (f *ActivityFeed) Entries() []identity.Event {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]identity.Event, len(f.entries))
	copy(out, f.entries)
	return out
}

// Len returns the number of entries.
func (f *ActivityFeed) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.entries)
}

func sameActivity(a, b identity.Event) bool {
	a.ObservedAt, b.ObservedAt = time.Time{}, time.Time{}
	return a == b
}
