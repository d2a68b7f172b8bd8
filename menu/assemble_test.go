package menu

import (
	"testing"
	"time"

	"github.com/komidabot/komida/layout"
)

func TestAssembleWeeklyReplication(t *testing.T) {
	week := Week{End: day(2021, time.May, 7)}
	slots := []Slot{{
		Key:    layout.RegionKey{Day: layout.Weekly, Category: layout.Grill},
		Items:  []string{"Steak met frietjes"},
		Prices: []float64{6.40, 8.20},
	}}

	m := Assemble(week, "cde", slots)
	if len(m) != 5 {
		t.Fatalf("got %d entries, want 5", len(m))
	}
	for i, d := range week.Days() {
		key := EntryKey{Date: d.Format(time.DateOnly), Campus: "cde", Label: "grill"}
		it, ok := m[key]
		if !ok {
			t.Fatalf("day %d: missing %+v", i, key)
		}
		if it.Name != "Steak met frietjes" || it.PriceStudent != 6.40 || it.PriceStaff != 8.20 {
			t.Errorf("day %d: got %+v", i, it)
		}
	}
}

func TestAssembleLabels(t *testing.T) {
	week := Week{End: day(2021, time.May, 7)}
	slots := []Slot{
		{
			Key:    layout.RegionKey{Day: 2, Category: layout.Soup},
			Items:  []string{"Tomatensoep"},
			Prices: []float64{1.10, 1.50},
		},
		{
			Key:    layout.RegionKey{Day: layout.Weekly, Category: layout.Pasta},
			Items:  []string{"Spaghetti", "Lasagne"},
			Prices: []float64{4.20, 5.60, 4.50, 5.90},
		},
	}

	m := Assemble(week, "cst", slots)
	if len(m) != 11 {
		t.Fatalf("got %d entries, want 11", len(m))
	}

	soup, ok := m[EntryKey{Date: "2021-05-05", Campus: "cst", Label: "soup"}]
	if !ok || soup.Name != "Tomatensoep" {
		t.Errorf("wednesday soup: got %+v", soup)
	}
	if _, ok := m[EntryKey{Date: "2021-05-04", Campus: "cst", Label: "soup"}]; ok {
		t.Error("soup filed on tuesday")
	}

	p2 := m[EntryKey{Date: "2021-05-03", Campus: "cst", Label: "pasta2"}]
	if p2.Name != "Lasagne" || p2.PriceStudent != 4.50 || p2.PriceStaff != 5.90 {
		t.Errorf("pasta2: got %+v", p2)
	}
	if _, ok := m[EntryKey{Date: "2021-05-03", Campus: "cst", Label: "pasta"}]; ok {
		t.Error("bare pasta label next to indexed labels")
	}
}

func TestMenuEntriesOrder(t *testing.T) {
	week := Week{End: day(2021, time.May, 7)}
	m := Assemble(week, "cmi", []Slot{
		{Key: layout.RegionKey{Day: 0, Category: layout.Meat}, Items: []string{"Stoofvlees"}, Prices: []float64{5, 6}},
		{Key: layout.RegionKey{Day: 0, Category: layout.Soup}, Items: []string{"Preisoep"}, Prices: []float64{1, 2}},
		{Key: layout.RegionKey{Day: layout.Weekly, Category: layout.Pasta}, Items: []string{"A", "B"}, Prices: []float64{3, 4, 3, 4}},
	})

	es := m.Entries()
	var monday []string
	for _, e := range es {
		if e.Date.Equal(day(2021, time.May, 3)) {
			monday = append(monday, e.Label)
		}
	}
	want := []string{"soup", "meat", "pasta1", "pasta2"}
	if len(monday) != len(want) {
		t.Fatalf("monday labels: got %v, want %v", monday, want)
	}
	for i := range want {
		if monday[i] != want[i] {
			t.Errorf("monday labels: got %v, want %v", monday, want)
			break
		}
	}
	if got := es[len(es)-1].Date; !got.Equal(day(2021, time.May, 7)) {
		t.Errorf("last entry date: got %s", got)
	}
	if c := es[0].Category(); c != layout.Soup {
		t.Errorf("first category: got %q", c)
	}
}
