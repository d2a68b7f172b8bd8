package komida

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/komidabot/komida/layout"
	"github.com/komidabot/komida/menu"
)

// Query is a parsed menu request.
type Query struct {
	Campuses []string
	Dates    []time.Time
}

// relative day words, as an offset from today (-1..1) or a weekday of the
// current week (weekday set).
var dayWords = []struct {
	word    string
	offset  int
	weekday bool
}{
	{"today", 0, false}, {"vandaag", 0, false},
	{"tomorrow", 1, false}, {"morgen", 1, false},
	{"yesterday", -1, false}, {"gisteren", -1, false},
	{"monday", 0, true}, {"maandag", 0, true},
	{"tuesday", 1, true}, {"dinsdag", 1, true},
	{"wednesday", 2, true}, {"woensdag", 2, true},
	{"thursday", 3, true}, {"donderdag", 3, true},
	{"friday", 4, true}, {"vrijdag", 4, true},
	{"saturday", 5, true}, {"zaterdag", 5, true},
	{"sunday", 6, true}, {"zondag", 6, true},
}

// ParseQuery reads campuses and days from a free-text request. A campus
// matches on its code, its heading or one of its aliases, as whole words;
// with none named, the default campus is used. Day words are resolved
// against now; with none named, today is used.
func ParseQuery(text string, now time.Time, cfg *Config) Query {
	tokens := words(text)
	var q Query

	for _, c := range cfg.Campuses {
		names := append([]string{c.Code, c.Heading}, c.Aliases...)
		for _, n := range names {
			if hasPhrase(tokens, words(n)) {
				q.Campuses = append(q.Campuses, c.Code)
				break
			}
		}
	}
	sort.Strings(q.Campuses)
	if len(q.Campuses) == 0 {
		def := cfg.DefaultCampus
		if def == "" && len(cfg.Campuses) > 0 {
			def = cfg.Campuses[0].Code
		}
		q.Campuses = []string{def}
	}

	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	weekday := (int(today.Weekday()) + 6) % 7

	seen := make(map[time.Time]bool)
	for _, dw := range dayWords {
		if !hasPhrase(tokens, []string{dw.word}) {
			continue
		}
		offset := dw.offset
		if dw.weekday {
			offset -= weekday
		}
		date := today.AddDate(0, 0, offset)
		if !seen[date] {
			seen[date] = true
			q.Dates = append(q.Dates, date)
		}
	}
	sort.Slice(q.Dates, func(i, j int) bool { return q.Dates[i].Before(q.Dates[j]) })
	if len(q.Dates) == 0 {
		q.Dates = []time.Time{today}
	}
	return q
}

// words splits s into lower-cased letter and digit runs.
func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// hasPhrase reports whether phrase occurs as consecutive tokens.
func hasPhrase(tokens, phrase []string) bool {
	if len(phrase) == 0 {
		return false
	}
	for i := 0; i+len(phrase) <= len(tokens); i++ {
		match := true
		for j, w := range phrase {
			if tokens[i+j] != w {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// FormatMenu renders the entries of one day and campus, one dish per line:
// soup, vegetarian and meat first, then every grill and pasta dish, each
// followed by its student and staff price.
func FormatMenu(entries []menu.Entry) string {
	sorted := make([]menu.Entry, len(entries))
	copy(sorted, entries)
	menu.SortEntries(sorted)

	var lines []string
	for _, c := range layout.Categories {
		for _, e := range sorted {
			if e.Category() != c {
				continue
			}
			lines = append(lines, fmt.Sprintf("%s: %s (€%.2f / €%.2f)", c, e.Item, e.PriceStudent, e.PriceStaff))
		}
	}
	return strings.Join(lines, "\n")
}

// Title is the heading of a day menu, e.g. "Menu komida CMI on Monday 03 May".
func (d DayMenu) Title() string {
	return fmt.Sprintf("Menu komida %s on %s", strings.ToUpper(d.Campus), d.Date.Format("Monday 02 January"))
}
