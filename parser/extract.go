package parser

import (
	"sort"
	"strings"

	"github.com/komidabot/komida/layout"
)

// lineTolerance is how far apart (in points) the tops of two fragments may
// be while still counting as the same line.
const lineTolerance = 2.0

// Extract returns the text of every fragment lying entirely within r,
// concatenated top-to-bottom and then left-to-right. Fragments that only
// overlap r are left out so neighbouring cells do not bleed in. An empty
// result means the slot is blank.
func Extract(p *Page, r layout.Rect) string {
	if p == nil {
		return ""
	}
	var hits []Fragment
	for _, f := range p.Fragments {
		if r.Contains(f.Rect) {
			hits = append(hits, f)
		}
	}
	if len(hits) == 0 {
		return ""
	}

	sortReadingOrder(hits)

	var b strings.Builder
	for _, f := range hits {
		b.WriteString(f.Text)
	}
	return b.String()
}

// Text is shorthand for Extract(p, r).
func (p *Page) Text(r layout.Rect) string {
	return Extract(p, r)
}

// sortReadingOrder orders fragments by line (highest first) and within a
// line by their left edge.
func sortReadingOrder(fs []Fragment) {
	sort.SliceStable(fs, func(i, j int) bool { return fs[i].Rect.Top > fs[j].Rect.Top })

	line := make([]int, len(fs))
	lineTop := fs[0].Rect.Top
	for i := 1; i < len(fs); i++ {
		line[i] = line[i-1]
		if lineTop-fs[i].Rect.Top > lineTolerance {
			line[i]++
			lineTop = fs[i].Rect.Top
		}
	}

	idx := make([]int, len(fs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ia, ib := idx[a], idx[b]
		if line[ia] != line[ib] {
			return line[ia] < line[ib]
		}
		return fs[ia].Rect.Left < fs[ib].Rect.Left
	})

	ordered := make([]Fragment, len(fs))
	for i, k := range idx {
		ordered[i] = fs[k]
	}
	copy(fs, ordered)
}
