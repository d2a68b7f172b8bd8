// Package menu turns the regions of a week menu page into dated menu
// entries: it resolves the week, parses price pairs, splits slots holding
// several dishes and assembles the entries keyed by date, campus and
// category label.
package menu

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/komidabot/komida/layout"
)

var (
	// ErrStaleDocument is wrapped by StaleDocumentError.
	ErrStaleDocument = errors.New("menu: stale document")

	// ErrUnparsableDate is returned when the week line holds no date.
	ErrUnparsableDate = errors.New("menu: cannot parse week date")

	// ErrMalformedPrice is reported for a slot without a usable price pair.
	ErrMalformedPrice = errors.New("menu: malformed price")

	// ErrSplitAmbiguous is reported when a slot cannot be split into as
	// many dishes as it has price pairs.
	ErrSplitAmbiguous = errors.New("menu: ambiguous multi-item split")
)

// EntryKey is the identity of a menu entry and the primary key it is
// stored under.
type EntryKey struct {
	Date   string // YYYY-MM-DD
	Campus string
	Label  string // category, suffixed with 1, 2, ... for alternatives
}

// Item is the payload of a menu entry.
type Item struct {
	Name         string
	PriceStudent float64
	PriceStaff   float64
}

// Entry is one dish served on one day at one campus.
type Entry struct {
	Date         time.Time `json:"date"`
	Campus       string    `json:"campus"`
	Label        string    `json:"type"`
	Item         string    `json:"item"`
	PriceStudent float64   `json:"price_student"`
	PriceStaff   float64   `json:"price_staff"`
}

// Key returns the identity of e.
func (e Entry) Key() EntryKey {
	return EntryKey{Date: e.Date.Format(time.DateOnly), Campus: e.Campus, Label: e.Label}
}

// Category returns the category part of the label ("pasta2" → pasta).
func (e Entry) Category() layout.Category {
	return LabelCategory(e.Label)
}

// LabelCategory strips the alternative index from a category label.
func LabelCategory(label string) layout.Category {
	return layout.Category(strings.TrimRight(label, "0123456789"))
}

// Label returns the category-instance label of dish i out of n.
func Label(c layout.Category, i, n int) string {
	if n <= 1 {
		return string(c)
	}
	return string(c) + strconv.Itoa(i+1)
}

// Menu maps entry identities to their payload. A Menu is built once per
// parsed document and not modified afterwards.
type Menu map[EntryKey]Item

// Entries returns the menu as entries ordered by date, campus, category
// and label.
func (m Menu) Entries() []Entry {
	out := make([]Entry, 0, len(m))
	for k, it := range m {
		d, err := time.Parse(time.DateOnly, k.Date)
		if err != nil {
			continue
		}
		out = append(out, Entry{
			Date:         d,
			Campus:       k.Campus,
			Label:        k.Label,
			Item:         it.Name,
			PriceStudent: it.PriceStudent,
			PriceStaff:   it.PriceStaff,
		})
	}
	SortEntries(out)
	return out
}

// SortEntries orders entries by date, campus, category display order and
// label.
func SortEntries(es []Entry) {
	sort.Slice(es, func(i, j int) bool {
		a, b := es[i], es[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.Campus != b.Campus {
			return a.Campus < b.Campus
		}
		if ca, cb := a.Category().Order(), b.Category().Order(); ca != cb {
			return ca < cb
		}
		return a.Label < b.Label
	})
}

// Slot is the parsed content of one region: its dishes and the flat list
// of their price pairs (student, staff, student, staff, ...).
type Slot struct {
	Key    layout.RegionKey
	Items  []string
	Prices []float64
}

// Assemble builds the menu of one campus for a resolved week. Weekday
// slots produce entries on their own day; weekly slots are repeated on
// every day of the week. It performs no I/O.
func Assemble(week Week, campus string, slots []Slot) Menu {
	m := make(Menu)
	for _, s := range slots {
		var dates []time.Time
		if s.Key.Recurring() {
			dates = week.Days()
		} else {
			dates = []time.Time{week.Day(s.Key.Day)}
		}

		for i, name := range s.Items {
			if 2*i+1 >= len(s.Prices) {
				break
			}
			item := Item{Name: name, PriceStudent: s.Prices[2*i], PriceStaff: s.Prices[2*i+1]}
			label := Label(s.Key.Category, i, len(s.Items))
			for _, d := range dates {
				m[EntryKey{Date: d.Format(time.DateOnly), Campus: campus, Label: label}] = item
			}
		}
	}
	return m
}

// Warning is a slot that was skipped while the rest of the document was
// parsed.
type Warning struct {
	Key layout.RegionKey
	Err error
}

func (w Warning) Error() string {
	return fmt.Sprintf("%s: %v", w.Key, w.Err)
}

func (w Warning) Unwrap() error { return w.Err }
