package menu

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"
)

// Split divides the text of a slot that lists n alternative dishes.
//
// The text is cut on the locale's conjunctions (" & ", " of "). When that
// yields exactly n parts they are returned as they are. When it yields
// more, a dish name itself contained a conjunction, and the n-1 cuts are
// chosen whose prefix lengths come closest to an even division of the
// text, preferring the earliest cut on ties. Separators inside a merged
// part are kept. This is a best-effort heuristic; when fewer than n parts
// exist ErrSplitAmbiguous is returned instead of padding.
func (l *Locale) Split(raw string, n int) ([]string, error) {
	text := CleanText(raw)
	if n <= 1 {
		return []string{text}, nil
	}

	seps := l.conjRe.FindAllStringIndex(text, -1)
	if len(seps)+1 < n {
		return nil, fmt.Errorf("%w: %d dishes expected, found %d in %q", ErrSplitAmbiguous, n, len(seps)+1, text)
	}

	total := float64(utf8.RuneCountInString(text))
	cuts := make([]int, 0, n-1)
	next := 0
	for j := 1; j < n; j++ {
		target := total * float64(j) / float64(n)
		best, bestDiff := -1, math.Inf(1)
		// Leave enough separators for the remaining cuts.
		for i := next; i <= len(seps)-(n-j); i++ {
			left := float64(utf8.RuneCountInString(text[:seps[i][0]]))
			if d := math.Abs(left - target); d < bestDiff {
				best, bestDiff = i, d
			}
		}
		cuts = append(cuts, best)
		next = best + 1
	}

	items := make([]string, 0, n)
	start := 0
	for _, c := range cuts {
		items = append(items, strings.TrimSpace(text[start:seps[c][0]]))
		start = seps[c][1]
	}
	items = append(items, strings.TrimSpace(text[start:]))

	for _, it := range items {
		if it == "" {
			return nil, fmt.Errorf("%w: empty dish after splitting %q", ErrSplitAmbiguous, text)
		}
	}
	return items, nil
}
