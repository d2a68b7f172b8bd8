package menu

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/komidabot/komida/layout"
)

// DefaultWindow is the number of days the last day of a menu week may lie
// after the reference date.
const DefaultWindow = 4

// Week is the week a menu document covers, anchored on its last day.
type Week struct {
	End time.Time // last printed day, midnight UTC
	Raw string    // the printed week line
}

// Day returns the date of weekday i (0 is Monday) of the week.
func (w Week) Day(i int) time.Time {
	return w.End.AddDate(0, 0, i-weekdayIndex(w.End))
}

// Days returns Monday to Friday of the week.
func (w Week) Days() []time.Time {
	days := make([]time.Time, layout.DaysPerWeek)
	for i := range days {
		days[i] = w.Day(i)
	}
	return days
}

// StaleDocumentError reports a document whose week does not match the
// reference date.
type StaleDocumentError struct {
	Raw       string
	End       time.Time
	Reference time.Time
}

func (e *StaleDocumentError) Error() string {
	return fmt.Sprintf("menu: stale document: week ending %s does not cover %s (date line %q)",
		e.End.Format(time.DateOnly), e.Reference.Format(time.DateOnly), e.Raw)
}

func (e *StaleDocumentError) Unwrap() error { return ErrStaleDocument }

// ResolveWeek reads the last day of the week from the printed date line
// and checks it against the reference date. The line has the form
// "<start> <separator> <end>"; only the part after the first separator is
// parsed. A week is current when the reference date falls before its
// exclusive boundary (end + 1 day) and that boundary lies at most window
// days after the reference date.
func ResolveWeek(raw string, reference time.Time, loc *Locale, window int) (Week, error) {
	end, err := loc.ParseWeekEnd(raw, reference)
	if err != nil {
		return Week{}, err
	}

	ref := dateOf(reference)
	boundary := end.AddDate(0, 0, 1)
	if !boundary.After(ref) || boundary.Sub(ref) > time.Duration(window)*24*time.Hour {
		return Week{}, &StaleDocumentError{Raw: raw, End: end, Reference: ref}
	}
	return Week{End: end, Raw: raw}, nil
}

// ParseWeekEnd extracts the end date from a week line such as
// "maandag 3 tot vrijdag 7 mei". When the year is not printed, the year
// placing the date closest to reference is used.
func (l *Locale) ParseWeekEnd(raw string, reference time.Time) (time.Time, error) {
	text := l.fold(CleanText(raw))
	parts := l.sepRe.Split(text, -1)
	if len(parts) < 2 {
		return time.Time{}, fmt.Errorf("%w: no week separator in %q", ErrUnparsableDate, raw)
	}
	t, err := l.parseDate(parts[1], dateOf(reference))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q: %v", ErrUnparsableDate, raw, err)
	}
	return t, nil
}

// parseDate understands "vrijdag 7 mei", "7 mei 2021" and "7/5/2021".
func (l *Locale) parseDate(s string, ref time.Time) (time.Time, error) {
	tokens := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '.'
	})

	var (
		nums  []int
		month time.Month
		year  int
	)
	for _, tok := range tokens {
		tok = strings.Trim(tok, ".")
		if tok == "" {
			continue
		}
		if n, err := strconv.Atoi(tok); err == nil {
			if len(tok) == 4 {
				year = n
			} else {
				nums = append(nums, n)
			}
			continue
		}
		if month == 0 {
			if m, ok := l.month(tok); ok {
				month = m
			}
		}
		// Numeric dates written with dots ("7.5.2021") arrive as one token.
		if strings.Contains(tok, ".") {
			for _, p := range strings.Split(tok, ".") {
				if n, err := strconv.Atoi(p); err == nil {
					if len(p) == 4 {
						year = n
					} else {
						nums = append(nums, n)
					}
				}
			}
		}
	}

	var day int
	switch {
	case month != 0 && len(nums) >= 1:
		day = nums[0]
	case month == 0 && len(nums) >= 2:
		day = nums[0]
		if nums[1] < 1 || nums[1] > 12 {
			return time.Time{}, fmt.Errorf("month %d out of range", nums[1])
		}
		month = time.Month(nums[1])
	default:
		return time.Time{}, fmt.Errorf("no day and month in %q", s)
	}

	if year != 0 {
		return civilDate(year, month, day)
	}

	var (
		best     time.Time
		bestDist time.Duration = -1
	)
	for _, y := range []int{ref.Year() - 1, ref.Year(), ref.Year() + 1} {
		t, err := civilDate(y, month, day)
		if err != nil {
			continue
		}
		d := t.Sub(ref)
		if d < 0 {
			d = -d
		}
		if bestDist < 0 || d < bestDist {
			best, bestDist = t, d
		}
	}
	if bestDist < 0 {
		return time.Time{}, fmt.Errorf("day %d does not exist in month %s", day, month)
	}
	return best, nil
}

// civilDate builds a UTC date and rejects values time.Date would normalize
// (such as 31 April).
func civilDate(year int, month time.Month, day int) (time.Time, error) {
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || t.Month() != month {
		return time.Time{}, fmt.Errorf("invalid date %d-%02d-%02d", year, month, day)
	}
	return t, nil
}

// dateOf drops the clock part of t, keeping its calendar day.
func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// weekdayIndex maps Monday to 0 and Sunday to 6.
func weekdayIndex(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}
