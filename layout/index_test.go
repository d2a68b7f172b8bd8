package layout

import (
	"errors"
	"testing"
)

const overrideTable = `
version: "test-1"
date: [400, 750, 700, 775]
alternatives: [pasta]
regions:
  - {day: mon, category: soup, item: [90, 640, 235, 700], price: [230, 640, 285, 700]}
  - {day: weekly, category: pasta, item: [350, 130, 485, 205], price: [480, 130, 555, 205]}
variants:
  cde:
    date: [410, 740, 710, 770]
    regions:
      - {day: mon, category: soup, item: [92, 642, 237, 702], price: [232, 642, 287, 702]}
  cst:
    alternatives: [pasta, grill]
    regions:
      - {day: weekly, category: grill, item: [350, 185, 485, 245], price: [480, 185, 555, 245]}
`

func TestDefaultIndex(t *testing.T) {
	ix, err := DefaultIndex()
	if err != nil {
		t.Fatalf("DefaultIndex: %v", err)
	}
	tbl, err := ix.Latest()
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if tbl.Version != "2017-09" {
		t.Errorf("latest version: got %q", tbl.Version)
	}

	keys := tbl.Keys("cmi")
	if len(keys) != 17 {
		t.Fatalf("expected 17 regions, got %d", len(keys))
	}
	// Weekdays sort before the weekly slots.
	if keys[0] != (RegionKey{Day: 0, Category: Soup}) {
		t.Errorf("first key: got %s", keys[0])
	}
	if !keys[len(keys)-1].Recurring() {
		t.Errorf("last key should be weekly, got %s", keys[len(keys)-1])
	}

	item, price, err := tbl.Lookup("cmi", RegionKey{Day: 3, Category: Meat})
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if item != (Rect{350, 335, 485, 395}) || price != (Rect{480, 335, 555, 395}) {
		t.Errorf("thu/meat: got %s %s", item, price)
	}

	if !tbl.Alternatives("cst", Grill) {
		t.Error("cst should allow grill alternatives")
	}
	if tbl.Alternatives("cmi", Grill) {
		t.Error("cmi should not allow grill alternatives")
	}
	if !tbl.Alternatives("cmi", Pasta) {
		t.Error("pasta alternatives are allowed everywhere")
	}
}

func TestVariantOverrides(t *testing.T) {
	ix := NewIndex()
	tbl, err := ix.Add([]byte(overrideTable))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	soup := RegionKey{Day: 0, Category: Soup}

	item, _, err := tbl.Lookup("cmi", soup)
	if err != nil {
		t.Fatalf("default lookup: %v", err)
	}
	if item.Left != 90 {
		t.Errorf("default soup left: got %g", item.Left)
	}

	item, price, err := tbl.Lookup("cde", soup)
	if err != nil {
		t.Fatalf("override lookup: %v", err)
	}
	if item.Left != 92 || price.Right != 287 {
		t.Errorf("cde override not applied: %s %s", item, price)
	}

	// cde does not override pasta, so it falls back to the default table.
	if _, _, err := tbl.Lookup("cde", RegionKey{Day: Weekly, Category: Pasta}); err != nil {
		t.Errorf("fallback lookup: %v", err)
	}

	if got := tbl.DateRect("cde"); got.Bottom != 740 {
		t.Errorf("cde date rect: got %s", got)
	}
	if got := tbl.DateRect("cmi"); got.Bottom != 750 {
		t.Errorf("default date rect: got %s", got)
	}

	if n := len(tbl.Keys("cst")); n != 3 {
		t.Errorf("cst keys: got %d, want 3", n)
	}
	if n := len(tbl.Keys("cmi")); n != 2 {
		t.Errorf("cmi keys: got %d, want 2", n)
	}
}

func TestLookupUnknownRegion(t *testing.T) {
	ix := NewIndex()
	tbl, err := ix.Add([]byte(overrideTable))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	_, _, err = tbl.Lookup("cmi", RegionKey{Day: Weekly, Category: Grill})
	if !errors.Is(err, ErrUnknownRegion) {
		t.Fatalf("expected ErrUnknownRegion, got %v", err)
	}
}

func TestParseTableRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing version", `date: [1, 1, 2, 2]`},
		{"inverted rect", `
version: x
date: [1, 1, 2, 2]
regions:
  - {day: mon, category: soup, item: [235, 640, 90, 700], price: [230, 640, 285, 700]}
`},
		{"three coordinates", `
version: x
date: [1, 1, 2]
`},
		{"unknown category", `
version: x
date: [1, 1, 2, 2]
regions:
  - {day: mon, category: dessert, item: [1, 1, 2, 2], price: [1, 1, 2, 2]}
`},
		{"unknown day", `
version: x
date: [1, 1, 2, 2]
regions:
  - {day: sat, category: soup, item: [1, 1, 2, 2], price: [1, 1, 2, 2]}
`},
		{"duplicate region", `
version: x
date: [1, 1, 2, 2]
regions:
  - {day: mon, category: soup, item: [1, 1, 2, 2], price: [1, 1, 2, 2]}
  - {day: mon, category: soup, item: [1, 1, 2, 2], price: [1, 1, 2, 2]}
`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseTable([]byte(tt.yaml)); !errors.Is(err, ErrInvalidTable) {
				t.Errorf("expected ErrInvalidTable, got %v", err)
			}
		})
	}
}

func TestUnknownVersion(t *testing.T) {
	ix := NewIndex()
	if _, err := ix.Table("1999"); !errors.Is(err, ErrUnknownVersion) {
		t.Errorf("expected ErrUnknownVersion, got %v", err)
	}
	if _, err := ix.Latest(); !errors.Is(err, ErrUnknownVersion) {
		t.Errorf("expected ErrUnknownVersion for empty index, got %v", err)
	}
}

func TestRectContains(t *testing.T) {
	outer := Rect{90, 640, 235, 700}
	tests := []struct {
		name string
		r    Rect
		want bool
	}{
		{"inside", Rect{95, 650, 200, 660}, true},
		{"same edges", outer, true},
		{"overlapping", Rect{200, 650, 260, 660}, false},
		{"disjoint", Rect{300, 100, 320, 110}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := outer.Contains(tt.r); got != tt.want {
				t.Errorf("Contains(%s) = %v, want %v", tt.r, got, tt.want)
			}
		})
	}
	if !outer.Intersects(Rect{200, 650, 260, 660}) {
		t.Error("overlapping rect should intersect")
	}
}
