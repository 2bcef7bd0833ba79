// Package segment turns the noisy, rapidly-revised stream of partial caption
// text per speaker into stable, de-duplicated, ordered utterances.
package segment

import (
	"strings"
	"sync"
	"time"
)

// Mode selects how the tracker treats a new fragment that arrives without a
// long pause.
type Mode int

const (
	// ModeIncremental keeps only the latest draft fragment per speaker and
	// leaves emission timing entirely to the idle-flush policy.
	ModeIncremental Mode = iota

	// ModeGrouped folds consecutive stable fragments from the same speaker
	// into one line until a short pause exceeds the merge gap.
	ModeGrouped
)

// String returns the string representation of the mode.
func (m Mode) String() string {
	switch m {
	case ModeIncremental:
		return "incremental"
	case ModeGrouped:
		return "grouped"
	default:
		return "unknown"
	}
}

// Policy holds the timing thresholds driving merge/split decisions.
type Policy struct {
	// Idle is how long a draft must go without updates before it is
	// considered final.
	Idle time.Duration

	// MergeGap is the longest pause, in grouped mode, that still combines
	// consecutive fragments into one line.
	MergeGap time.Duration

	// RevisionWindow is the longest gap still eligible for similarity-based
	// merging of an updated fragment.
	RevisionWindow time.Duration

	// ForceSplitGap is the gap beyond which a new draft is always started,
	// regardless of textual similarity.
	ForceSplitGap time.Duration

	// MaxSegment is the hard cap on a single utterance's duration.
	MaxSegment time.Duration

	Mode Mode

	// SimilarityThreshold and TailWindow override the judge defaults when
	// non-zero.
	SimilarityThreshold float64
	TailWindow          int
}

// DefaultPolicy returns the tuned defaults for Meet-style caption streams.
// Meet updates captions every ~1-3s while someone is speaking; splitting more
// aggressively than this emits partial drafts repeatedly.
func DefaultPolicy() Policy {
	return Policy{
		Idle:           2 * time.Second,
		MergeGap:       1 * time.Second,
		RevisionWindow: 8 * time.Second,
		ForceSplitGap:  30 * time.Second,
		MaxSegment:     20 * time.Second,
		Mode:           ModeIncremental,
	}
}

// FlushReason records why a segment left the tracker.
type FlushReason string

const (
	ReasonIdle        FlushReason = "idle"
	ReasonMaxSegment  FlushReason = "max_segment"
	ReasonForceSplit  FlushReason = "force_split"
	ReasonNewFragment FlushReason = "new_fragment"
	ReasonShutdown    FlushReason = "shutdown"
)

// Segment is a flushed draft, ready to become an emitted utterance.
type Segment struct {
	Speaker   string
	Text      string
	Timestamp time.Time
	Reason    FlushReason
}

// draft is the per-speaker in-progress state.
type draft struct {
	committed string // prior fragments folded into the same utterance (grouped mode)
	fragment  string // latest raw text for the in-progress fragment
	startedAt time.Time
	updatedAt time.Time
}

// text materializes the draft: committed and fragment joined with a single
// space when both are non-empty, else whichever is non-empty.
func (d *draft) text() string {
	committed := strings.TrimSpace(d.committed)
	frag := strings.TrimSpace(d.fragment)
	switch {
	case committed != "" && frag != "":
		return committed + " " + frag
	case committed != "":
		return committed
	default:
		return frag
	}
}

// completed is a finalized fragment waiting out the idle window before it is
// handed to the emitter. Completed segments are never re-opened; the wait
// only delays emission so a premature split costs latency, not duplicates.
type completed struct {
	speaker     string
	text        string
	finalizedAt time.Time
	reason      FlushReason
}

// Tracker holds one draft per active speaker and applies the merge/split
// policy to each incoming caption event. Thread-safe; every operation takes
// a single exclusive lock and no lock is held across I/O or ticks.
type Tracker struct {
	mu     sync.Mutex
	policy Policy
	judge  *Judge
	drafts map[string]*draft
	queue  []completed
}

// NewTracker creates a tracker with the given policy and a default judge.
func NewTracker(policy Policy) *Tracker {
	judge := NewJudge()
	if policy.SimilarityThreshold > 0 {
		judge.SimilarityThreshold = policy.SimilarityThreshold
	}
	if policy.TailWindow > 0 {
		judge.TailWindow = policy.TailWindow
	}
	return &Tracker{
		policy: policy,
		judge:  judge,
		drafts: make(map[string]*draft),
	}
}

// Update applies one caption event to the speaker's draft. Events with empty
// text are ignored. Update never emits directly; emission happens only via
// FlushReady once a draft has been stable long enough.
func (t *Tracker) Update(speaker, text string, ts time.Time) {
	if text == "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	d, ok := t.drafts[speaker]
	if !ok {
		t.drafts[speaker] = &draft{fragment: text, startedAt: ts, updatedAt: ts}
		return
	}

	gap := ts.Sub(d.updatedAt)

	// Long silence: the caption engine likely started an unrelated sentence
	// even if the new text superficially overlaps the old one.
	if gap > t.policy.ForceSplitGap {
		t.retire(speaker, d, ReasonForceSplit)
		t.drafts[speaker] = &draft{fragment: text, startedAt: ts, updatedAt: ts}
		return
	}

	merge := t.judge.ShouldMerge(d.fragment, text)

	if gap <= t.policy.RevisionWindow && merge {
		d.fragment = text
		d.updatedAt = ts
		return
	}

	// Outside the revision window and not a revision: split.
	if gap > t.policy.RevisionWindow && !merge {
		t.retire(speaker, d, ReasonNewFragment)
		t.drafts[speaker] = &draft{fragment: text, startedAt: ts, updatedAt: ts}
		return
	}

	// New fragment without a long gap.
	if t.policy.Mode == ModeGrouped {
		if gap > t.policy.MergeGap {
			t.retire(speaker, d, ReasonNewFragment)
			t.drafts[speaker] = &draft{fragment: text, startedAt: ts, updatedAt: ts}
			return
		}
		// Fold the finished fragment into the combined line and rotate the
		// fragment buffer; the draft itself stays open.
		if frag := strings.TrimSpace(d.fragment); frag != "" {
			if committed := strings.TrimSpace(d.committed); committed != "" {
				d.committed = committed + " " + frag
			} else {
				d.committed = frag
			}
		}
		d.fragment = text
		d.updatedAt = ts
		return
	}

	// Incremental mode: keep only the latest draft; the idle flush decides
	// when it is emitted.
	d.fragment = text
	d.updatedAt = ts
}

// retire queues the draft's materialized text for delayed flush. Caller must
// hold the lock and replace or delete the live draft afterwards.
func (t *Tracker) retire(speaker string, d *draft, reason FlushReason) {
	if text := d.text(); text != "" {
		t.queue = append(t.queue, completed{
			speaker:     speaker,
			text:        text,
			finalizedAt: d.updatedAt,
			reason:      reason,
		})
	}
}

// FlushReady returns every segment that has been stable long enough to emit:
// queued completed fragments once their idle window has passed, and live
// drafts that are idle or have exceeded the max segment duration. Flushed
// drafts are retired from the live map.
func (t *Tracker) FlushReady(now time.Time) []Segment {
	t.mu.Lock()
	defer t.mu.Unlock()

	var ready []Segment

	if len(t.queue) > 0 {
		remaining := t.queue[:0]
		for _, c := range t.queue {
			if now.Sub(c.finalizedAt) >= t.policy.Idle {
				ready = append(ready, Segment{
					Speaker:   c.speaker,
					Text:      c.text,
					Timestamp: c.finalizedAt,
					Reason:    c.reason,
				})
			} else {
				remaining = append(remaining, c)
			}
		}
		t.queue = remaining
	}

	for speaker, d := range t.drafts {
		stable := now.Sub(d.updatedAt) >= t.policy.Idle
		tooLong := now.Sub(d.startedAt) >= t.policy.MaxSegment
		if !stable && !tooLong {
			continue
		}
		reason := ReasonIdle
		if !stable {
			reason = ReasonMaxSegment
		}
		if text := d.text(); text != "" {
			ready = append(ready, Segment{
				Speaker:   speaker,
				Text:      text,
				Timestamp: d.updatedAt,
				Reason:    reason,
			})
		}
		delete(t.drafts, speaker)
	}

	return ready
}

// Drain flushes everything immediately, queued and live, regardless of idle
// windows. Used on session shutdown so no captured text is lost.
func (t *Tracker) Drain() []Segment {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []Segment
	for _, c := range t.queue {
		out = append(out, Segment{
			Speaker:   c.speaker,
			Text:      c.text,
			Timestamp: c.finalizedAt,
			Reason:    c.reason,
		})
	}
	t.queue = nil

	for speaker, d := range t.drafts {
		if text := d.text(); text != "" {
			out = append(out, Segment{
				Speaker:   speaker,
				Text:      text,
				Timestamp: d.updatedAt,
				Reason:    ReasonShutdown,
			})
		}
		delete(t.drafts, speaker)
	}

	return out
}

// ActiveDrafts returns the number of speakers with a live draft.
func (t *Tracker) ActiveDrafts() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.drafts)
}

// PendingFlush returns the number of completed segments waiting out the idle
// window.
func (t *Tracker) PendingFlush() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.queue)
}
