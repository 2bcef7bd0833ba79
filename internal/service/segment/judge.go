package segment

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Heuristic constants tuned against Google Meet's caption engine. A different
// upstream caption source may need retuning.
const (
	// DefaultSimilarityThreshold is the minimum character-level similarity
	// ratio between two normalized fragments for them to count as the same
	// in-progress fragment.
	DefaultSimilarityThreshold = 0.80

	// DefaultTailWindow is how many trailing characters of the previous
	// normalized fragment are searched for inside the new one. Catches
	// caption engines that insert corrections mid-sentence.
	DefaultTailWindow = 24
)

// Judge decides whether a new caption fragment is a revision of the previous
// fragment (same utterance, updated text) or the start of a new fragment.
//
// Captioning engines frequently re-send the full sentence-so-far on every
// update; naive equality or prefix-only checks under- or over-split. The
// layered heuristic trades precision for robustness across engine quirks.
type Judge struct {
	SimilarityThreshold float64
	TailWindow          int

	dmp *diffmatchpatch.DiffMatchPatch
}

// NewJudge returns a Judge with the default threshold and tail window.
func NewJudge() *Judge {
	return &Judge{
		SimilarityThreshold: DefaultSimilarityThreshold,
		TailWindow:          DefaultTailWindow,
		dmp:                 diffmatchpatch.New(),
	}
}

// ShouldMerge reports whether curr is a revision of prev rather than a new
// fragment. First match wins:
//
//  1. empty prev        -> merge (first snapshot, nothing to compare)
//  2. empty curr        -> no merge (no information)
//  3. raw prefix either way            -> merge (growing caption)
//  4. either normalized form empty     -> merge (degenerate, be permissive)
//  5. normalized prefix or containment -> merge
//  6. tail of prev found inside curr   -> merge (mid-sentence correction)
//  7. similarity ratio >= threshold    -> merge
//  8. otherwise new fragment
func (j *Judge) ShouldMerge(prev, curr string) bool {
	if prev == "" {
		return true
	}
	if curr == "" {
		return false
	}

	if strings.HasPrefix(curr, prev) || strings.HasPrefix(prev, curr) {
		return true
	}

	p := Normalize(prev)
	c := Normalize(curr)
	if p == "" || c == "" {
		return true
	}
	if strings.HasPrefix(c, p) || strings.HasPrefix(p, c) {
		return true
	}
	if strings.Contains(c, p) || strings.Contains(p, c) {
		return true
	}

	if tail := tailOf(p, j.TailWindow); tail != "" && strings.Contains(c, tail) {
		return true
	}

	return j.ratio(p, c) >= j.SimilarityThreshold
}

// tailOf returns the last n runes of s.
func tailOf(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}

// ratio computes a difflib-style similarity between two strings: 2*M/T where
// M is the number of matched characters and T the combined length.
func (j *Judge) ratio(a, b string) float64 {
	total := len(a) + len(b)
	if total == 0 {
		return 1.0
	}
	matched := 0
	for _, d := range j.dmp.DiffMain(a, b, false) {
		if d.Type == diffmatchpatch.DiffEqual {
			matched += len(d.Text)
		}
	}
	return 2.0 * float64(matched) / float64(total)
}
