package parser

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ledongthuc/pdf"

	"github.com/komidabot/komida/layout"
)

// ---------------------------------------------------------------------------
// Registry tests
// ---------------------------------------------------------------------------

func TestRegistryBuiltInLoaders(t *testing.T) {
	reg := NewRegistry()

	formats := []string{"pdf", "PDF", "json"}
	for _, format := range formats {
		t.Run(format, func(t *testing.T) {
			l, err := reg.Get(format)
			if err != nil {
				t.Fatalf("Get(%q) returned error: %v", format, err)
			}
			if l == nil {
				t.Fatalf("Get(%q) returned nil loader", format)
			}
		})
	}
}

func TestRegistryUnknown(t *testing.T) {
	reg := NewRegistry()
	for _, format := range []string{"docx", "html", ""} {
		t.Run("format_"+format, func(t *testing.T) {
			if l, err := reg.Get(format); err == nil {
				t.Errorf("Get(%q) expected error, got loader %T", format, l)
			}
		})
	}
}

func TestRegistryLoadFileJSON(t *testing.T) {
	page := &Page{Fragments: []Fragment{
		{Text: "Tomatensoep\n", Rect: layout.Rect{Left: 95, Bottom: 660, Right: 180, Top: 670}},
	}}
	var buf bytes.Buffer
	if err := WriteJSON(&buf, page); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	path := filepath.Join(t.TempDir(), "page.json")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := NewRegistry().LoadFile(context.Background(), path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if got.Number != 1 {
		t.Errorf("page number: got %d, want 1", got.Number)
	}
	if len(got.Fragments) != 1 || got.Fragments[0].Rect != page.Fragments[0].Rect {
		t.Errorf("fragments not preserved: %+v", got.Fragments)
	}
}

func TestPDFLoaderRejectsBadInput(t *testing.T) {
	l := &PDFLoader{}
	if _, err := l.Load(context.Background(), nil); !errors.Is(err, ErrEmptyDocument) {
		t.Errorf("expected ErrEmptyDocument, got %v", err)
	}
	if _, err := l.Load(context.Background(), []byte("not a pdf at all")); err == nil {
		t.Error("expected error for garbage input")
	}
}

// ---------------------------------------------------------------------------
// Extraction
// ---------------------------------------------------------------------------

func frag(text string, l, b, r, t float64) Fragment {
	return Fragment{Text: text, Rect: layout.Rect{Left: l, Bottom: b, Right: r, Top: t}}
}

func TestExtractContainment(t *testing.T) {
	f := frag("Lasagna\n", 100, 650, 200, 660)
	page := &Page{Fragments: []Fragment{f}}

	tests := []struct {
		name string
		r    layout.Rect
		want string
	}{
		{"strictly containing", layout.Rect{Left: 90, Bottom: 640, Right: 235, Top: 700}, "Lasagna\n"},
		{"touching edges", f.Rect, "Lasagna\n"},
		{"disjoint", layout.Rect{Left: 300, Bottom: 100, Right: 400, Top: 200}, ""},
		{"partial overlap", layout.Rect{Left: 150, Bottom: 640, Right: 300, Top: 700}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Extract(page, tt.r); got != tt.want {
				t.Errorf("Extract = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractReadingOrder(t *testing.T) {
	page := &Page{Fragments: []Fragment{
		frag("curry\n", 100, 630, 140, 640),
		frag("Chicken ", 100, 645, 150, 655),
		frag("met rijst\n", 151, 644, 200, 654), // same line, slightly lower top
		frag("Lasagna & ", 100, 660, 160, 670),
		frag("€ 5,40", 240, 660, 280, 670), // outside the item rect
	}}
	r := layout.Rect{Left: 90, Bottom: 600, Right: 235, Top: 700}

	got := Extract(page, r)
	want := "Lasagna & Chicken met rijst\ncurry\n"
	if got != want {
		t.Errorf("Extract = %q, want %q", got, want)
	}
	if page.Text(r) != got {
		t.Error("Page.Text should match Extract")
	}
}

func TestExtractEmpty(t *testing.T) {
	if got := Extract(nil, layout.Rect{Left: 0, Bottom: 0, Right: 1, Top: 1}); got != "" {
		t.Errorf("nil page: got %q", got)
	}
	if got := Extract(&Page{}, layout.Rect{Left: 0, Bottom: 0, Right: 1, Top: 1}); got != "" {
		t.Errorf("empty page: got %q", got)
	}
}

// ---------------------------------------------------------------------------
// Glyph grouping
// ---------------------------------------------------------------------------

func glyphs(s string, x, y, size, width float64) []pdf.Text {
	var out []pdf.Text
	for _, r := range s {
		out = append(out, pdf.Text{FontSize: size, X: x, Y: y, W: width, S: string(r)})
		x += width
	}
	return out
}

func TestGroupGlyphsSplitsCells(t *testing.T) {
	var in []pdf.Text
	// Item cell and price cell share a baseline but are far apart.
	in = append(in, glyphs("Soep", 95, 660, 10, 5)...)
	in = append(in, glyphs("1,80", 240, 660, 10, 5)...)
	// Second line of the item cell, slightly off baseline.
	in = append(in, glyphs("van de dag", 95, 648.5, 10, 5)...)

	frags := groupGlyphs(in, DefaultPDFOptions())
	if len(frags) != 3 {
		t.Fatalf("expected 3 fragments, got %d: %+v", len(frags), frags)
	}
	if frags[0].Text != "Soep\n" || frags[1].Text != "1,80\n" {
		t.Errorf("first row: got %q and %q", frags[0].Text, frags[1].Text)
	}
	if frags[2].Text != "van de dag\n" {
		t.Errorf("second row: got %q", frags[2].Text)
	}

	cell := frags[0].Rect
	if cell.Left != 95 || cell.Right != 115 {
		t.Errorf("cell extent: got %s", cell)
	}
	if cell.Bottom >= 660 || cell.Top <= 660 {
		t.Errorf("cell should straddle the baseline: got %s", cell)
	}
}

func TestGroupGlyphsInsertsWordSpaces(t *testing.T) {
	var in []pdf.Text
	in = append(in, glyphs("Pasta", 95, 400, 10, 5)...)
	in = append(in, glyphs("pesto", 95+25+3, 400, 10, 5)...) // 3pt gap

	frags := groupGlyphs(in, DefaultPDFOptions())
	if len(frags) != 1 {
		t.Fatalf("expected one fragment, got %d", len(frags))
	}
	if frags[0].Text != "Pasta pesto\n" {
		t.Errorf("got %q", frags[0].Text)
	}
}
