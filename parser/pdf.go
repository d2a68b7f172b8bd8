package parser

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/komidabot/komida/layout"
)

// PDFOptions tunes how glyphs are grouped into line fragments.
type PDFOptions struct {
	// RowTolerance is the largest baseline difference (points) between
	// glyphs of one line.
	RowTolerance float64
	// WordGap is the horizontal gap, as a fraction of the font size, above
	// which a space is inserted between two glyphs.
	WordGap float64
	// CellGap is the horizontal gap, as a fraction of the font size, above
	// which a line is cut into separate fragments (table cells).
	CellGap float64
	// Descent is the part of the font size drawn below the baseline.
	Descent float64
}

// DefaultPDFOptions returns the grouping used for the week menu template.
func DefaultPDFOptions() PDFOptions {
	return PDFOptions{
		RowTolerance: 2.0,
		WordGap:      0.15,
		CellGap:      1.5,
		Descent:      0.25,
	}
}

// PDFLoader reads positioned glyphs from page 1 of a PDF and groups them
// into line fragments, each terminated by a newline.
type PDFLoader struct {
	Options PDFOptions
}

func (l *PDFLoader) SupportedFormats() []string { return []string{"pdf"} }

func (l *PDFLoader) Load(ctx context.Context, data []byte) (page *Page, err error) {
	if len(data) == 0 {
		return nil, ErrEmptyDocument
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// ledongthuc/pdf panics on some malformed content streams.
	defer func() {
		if r := recover(); r != nil {
			page, err = nil, fmt.Errorf("reading PDF content: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	if reader.NumPage() < 1 {
		return nil, ErrNoPages
	}

	p := reader.Page(1)
	if p.V.IsNull() {
		return nil, ErrNoPages
	}

	opts := l.Options
	if opts == (PDFOptions{}) {
		opts = DefaultPDFOptions()
	}

	page = &Page{Number: 1, Fragments: groupGlyphs(p.Content().Text, opts)}
	if box := p.V.Key("MediaBox"); box.Len() == 4 {
		page.Width = box.Index(2).Float64() - box.Index(0).Float64()
		page.Height = box.Index(3).Float64() - box.Index(1).Float64()
	}
	return page, nil
}

type glyphRow struct {
	baseline float64
	glyphs   []pdf.Text
}

// groupGlyphs clusters glyphs into rows by baseline, then cuts each row
// into fragments wherever the horizontal gap looks like a cell boundary.
func groupGlyphs(glyphs []pdf.Text, opts PDFOptions) []Fragment {
	var rows []glyphRow
	for _, g := range glyphs {
		if g.S == "" {
			continue
		}
		placed := false
		for i := range rows {
			if math.Abs(rows[i].baseline-g.Y) < opts.RowTolerance {
				rows[i].glyphs = append(rows[i].glyphs, g)
				placed = true
				break
			}
		}
		if !placed {
			rows = append(rows, glyphRow{baseline: g.Y, glyphs: []pdf.Text{g}})
		}
	}

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].baseline > rows[j].baseline })

	var frags []Fragment
	for _, row := range rows {
		sort.SliceStable(row.glyphs, func(i, j int) bool { return row.glyphs[i].X < row.glyphs[j].X })
		frags = append(frags, splitRow(row.glyphs, opts)...)
	}
	return frags
}

func splitRow(glyphs []pdf.Text, opts PDFOptions) []Fragment {
	var (
		frags []Fragment
		text  strings.Builder
		rect  layout.Rect
		size  float64
		prev  *pdf.Text
	)

	flush := func() {
		s := strings.TrimRight(text.String(), " ")
		if strings.TrimSpace(s) != "" {
			frags = append(frags, Fragment{Text: s + "\n", Rect: rect, FontSize: size})
		}
		text.Reset()
		prev = nil
	}

	for i := range glyphs {
		g := glyphs[i]
		gr := glyphRect(g, opts)

		if prev != nil {
			gap := g.X - (prev.X + prev.W)
			fs := math.Max(g.FontSize, prev.FontSize)
			if gap > opts.CellGap*fs {
				flush()
			} else if gap > opts.WordGap*fs && !strings.HasSuffix(text.String(), " ") && !strings.HasPrefix(g.S, " ") {
				text.WriteByte(' ')
			}
		}

		if prev == nil {
			if strings.TrimSpace(g.S) == "" {
				continue
			}
			rect = gr
			size = g.FontSize
		} else {
			rect = rect.Union(gr)
			size = math.Max(size, g.FontSize)
		}
		text.WriteString(g.S)
		prev = &glyphs[i]
	}
	flush()
	return frags
}

func glyphRect(g pdf.Text, opts PDFOptions) layout.Rect {
	bottom := g.Y - opts.Descent*g.FontSize
	return layout.Rect{
		Left:   g.X,
		Bottom: bottom,
		Right:  g.X + g.W,
		Top:    bottom + g.FontSize,
	}
}
