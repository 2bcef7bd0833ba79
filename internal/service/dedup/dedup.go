// Package dedup suppresses re-emission of identical (speaker, text) pairs
// within a short trailing window.
package dedup

import (
	"sync"
	"time"
)

const (
	// DefaultWindow is how long an identical pair is suppressed after
	// being emitted.
	DefaultWindow = 2 * time.Second

	// retention is how long entries are kept before the sweep may discard
	// them; long enough that the suppression window is never cut short.
	retention = 120 * time.Second

	// maxEntries triggers a sweep of stale entries on insert. A simple
	// size bound, not a precise LRU.
	maxEntries = 5000
)

// Gate records recently emitted (speaker, text) pairs and drops repeats
// inside the suppression window. Thread-safe; memory is bounded by the
// periodic sweep.
type Gate struct {
	mu     sync.Mutex
	window time.Duration
	seen   map[string]time.Time
}

// NewGate creates a gate with the given suppression window. A zero or
// negative window falls back to the default.
func NewGate(window time.Duration) *Gate {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Gate{
		window: window,
		seen:   make(map[string]time.Time),
	}
}

// Allow reports whether the pair may be emitted and, when it may, records it.
// A suppressed repeat does not refresh the recorded timestamp, so a pair
// re-observed continuously still gets through once per window.
func (g *Gate) Allow(speaker, text string, now time.Time) bool {
	key := speaker + "|" + text

	g.mu.Lock()
	defer g.mu.Unlock()

	if last, ok := g.seen[key]; ok && now.Sub(last) < g.window {
		return false
	}
	g.seen[key] = now

	// Keep memory bounded on very long meetings.
	if len(g.seen) > maxEntries {
		cutoff := now.Add(-retention)
		for k, v := range g.seen {
			if v.Before(cutoff) {
				delete(g.seen, k)
			}
		}
	}
	return true
}

// Len returns the number of recorded entries.
func (g *Gate) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.seen)
}
