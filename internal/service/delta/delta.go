// Package delta implements the streaming emission strategy: on a periodic
// tick, emit only the unseen suffix of each speaker's caption snapshot.
// Optimized for immediacy rather than clean sentence boundaries.
package delta

import (
	"strings"
	"sync"
	"time"
	"unicode"
)

// MinDeltaChars is the minimum trimmed length of a delta worth emitting.
// Shorter deltas are suppressed, but bookkeeping still advances so a later,
// longer delta is computed against the latest text rather than stale text.
const MinDeltaChars = 2

// Delta is the new suffix of a speaker's caption since the last emission.
type Delta struct {
	Speaker   string
	Text      string
	Timestamp time.Time
}

type snapshot struct {
	text       string
	observedAt time.Time
}

// Emitter tracks, per speaker, the latest observed caption snapshot and the
// last text actually emitted downstream. Thread-safe.
type Emitter struct {
	mu        sync.Mutex
	snapshots map[string]snapshot
	emitted   map[string]string
}

// NewEmitter creates an empty delta emitter.
func NewEmitter() *Emitter {
	return &Emitter{
		snapshots: make(map[string]snapshot),
		emitted:   make(map[string]string),
	}
}

// Observe records the latest snapshot text for a speaker. Empty text is
// ignored.
func (e *Emitter) Observe(speaker, text string, ts time.Time) {
	if text == "" {
		return
	}
	e.mu.Lock()
	e.snapshots[speaker] = snapshot{text: text, observedAt: ts}
	e.mu.Unlock()
}

// Collect computes the delta for every speaker with an observed snapshot and
// returns the ones long enough to emit. Called on the emission tick.
func (e *Emitter) Collect(now time.Time) []Delta {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []Delta
	for speaker, snap := range e.snapshots {
		prev := e.emitted[speaker]

		var d string
		if prev != "" {
			d = strings.TrimSpace(unseenSuffix(prev, snap.text))
		} else {
			d = strings.TrimSpace(snap.text)
		}

		if len(d) >= MinDeltaChars {
			out = append(out, Delta{Speaker: speaker, Text: d, Timestamp: now})
			e.emitted[speaker] = snap.text
		} else if prev == "" {
			// Nothing emitted yet and nothing worth emitting; remember the
			// snapshot so we never re-surface this sub-threshold prefix.
			e.emitted[speaker] = snap.text
		}
	}
	return out
}

// Speakers returns the number of speakers with an observed snapshot.
func (e *Emitter) Speakers() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.snapshots)
}

// unseenSuffix returns the part of curr after its longest common prefix with
// prev. The comparison is case-insensitive and collapses whitespace runs, so
// a re-rendered caption that only changed spacing or casing yields no delta.
func unseenSuffix(prev, curr string) string {
	a := []rune(prev)
	b := []rune(curr)
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if unicode.IsSpace(a[i]) && unicode.IsSpace(b[j]) {
			for i < len(a) && unicode.IsSpace(a[i]) {
				i++
			}
			for j < len(b) && unicode.IsSpace(b[j]) {
				j++
			}
			continue
		}
		if unicode.ToLower(a[i]) != unicode.ToLower(b[j]) {
			break
		}
		i++
		j++
	}
	return string(b[j:])
}
