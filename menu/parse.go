package menu

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/komidabot/komida/layout"
	"github.com/komidabot/komida/parser"
)

// Options configures one parse pass.
type Options struct {
	// Campus is the campus code entries are filed under. It also selects
	// the layout variant.
	Campus string

	// Locale supplies month names, separators and conjunctions.
	Locale *Locale

	// Reference is "today" for the staleness check.
	Reference time.Time

	// Window is the staleness window in days. Zero means DefaultWindow.
	Window int
}

// Result is the outcome of parsing one document.
type Result struct {
	Week     Week
	Menu     Menu
	Slots    []Slot
	Warnings []Warning
}

// Parse reads one campus's week menu from a loaded page. Unknown regions
// and a stale or unreadable week line fail the whole document; a slot with
// malformed prices or an ambiguous split is skipped and reported as a
// warning. Empty slots are skipped silently.
func Parse(page *parser.Page, table *layout.Table, opts Options) (*Result, error) {
	if page == nil {
		return nil, parser.ErrNoPages
	}
	if table == nil {
		return nil, fmt.Errorf("%w: no table", layout.ErrUnknownVersion)
	}
	if opts.Locale == nil {
		return nil, errors.New("menu: no locale")
	}
	window := opts.Window
	if window <= 0 {
		window = DefaultWindow
	}

	rawDate := page.Text(table.DateRect(opts.Campus))
	week, err := ResolveWeek(rawDate, opts.Reference, opts.Locale, window)
	if err != nil {
		return nil, err
	}

	res := &Result{Week: week}
	for _, key := range table.Keys(opts.Campus) {
		itemRect, priceRect, err := table.Lookup(opts.Campus, key)
		if err != nil {
			return nil, err
		}

		slot, err := readSlot(page, key, itemRect, priceRect, table.Alternatives(opts.Campus, key.Category), opts.Locale)
		if err != nil {
			slog.Warn("menu: skipping slot", "campus", opts.Campus, "slot", key.String(), "error", err)
			res.Warnings = append(res.Warnings, Warning{Key: key, Err: err})
			continue
		}
		if slot == nil {
			slog.Debug("menu: empty slot", "campus", opts.Campus, "slot", key.String())
			continue
		}
		res.Slots = append(res.Slots, *slot)
	}

	res.Menu = Assemble(week, opts.Campus, res.Slots)
	slog.Info("menu: parsed document",
		"campus", opts.Campus,
		"layout", table.Version,
		"week_end", week.End.Format(time.DateOnly),
		"entries", len(res.Menu),
		"warnings", len(res.Warnings))
	return res, nil
}

// readSlot returns nil without error for a slot with no dish text.
func readSlot(page *parser.Page, key layout.RegionKey, itemRect, priceRect layout.Rect, alternatives bool, loc *Locale) (*Slot, error) {
	text := CleanText(page.Text(itemRect))
	if text == "" {
		return nil, nil
	}

	prices, err := loc.ParsePrices(page.Text(priceRect))
	if err != nil {
		return nil, err
	}

	pairs := len(prices) / 2
	if pairs == 1 || !alternatives {
		return &Slot{Key: key, Items: []string{text}, Prices: prices[:2]}, nil
	}

	items, err := loc.Split(text, pairs)
	if err != nil {
		return nil, err
	}
	return &Slot{Key: key, Items: items, Prices: prices[:2*pairs]}, nil
}
