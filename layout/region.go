package layout

import (
	"fmt"
	"strings"
)

// Category is a meal category printed on the menu.
type Category string

const (
	Soup       Category = "soup"
	Vegetarian Category = "vegetarian"
	Meat       Category = "meat"
	Grill      Category = "grill"
	Pasta      Category = "pasta"
)

// Categories lists the known categories in display order.
var Categories = []Category{Soup, Vegetarian, Meat, Grill, Pasta}

// ParseCategory validates a category name.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Categories {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", s)
}

// Order is the position of c in Categories; unknown categories sort last.
func (c Category) Order() int {
	for i, known := range Categories {
		if c == known {
			return i
		}
	}
	return len(Categories)
}

// Weekly marks a region that is not tied to a weekday. Its content is
// served on every day of the week.
const Weekly = -1

// DaysPerWeek is the number of serving days (Monday to Friday).
const DaysPerWeek = 5

var dayNames = []string{"mon", "tue", "wed", "thu", "fri"}

// RegionKey identifies one data slot on the page.
type RegionKey struct {
	Day      int // 0 (Monday) to 4 (Friday), or Weekly
	Category Category
}

// Recurring reports whether the slot applies to the whole week.
func (k RegionKey) Recurring() bool { return k.Day == Weekly }

func (k RegionKey) String() string {
	return DayName(k.Day) + "/" + string(k.Category)
}

// DayName returns the short name used in layout tables for a day index.
func DayName(day int) string {
	if day == Weekly {
		return "weekly"
	}
	if day >= 0 && day < len(dayNames) {
		return dayNames[day]
	}
	return fmt.Sprintf("day%d", day)
}

// ParseDay converts a layout table day name into a day index.
func ParseDay(s string) (int, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "weekly" || s == "all" {
		return Weekly, nil
	}
	for i, name := range dayNames {
		if s == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown day %q", s)
}

// Region pairs the item rectangle of a slot with its price rectangle.
type Region struct {
	Key   RegionKey
	Item  Rect
	Price Rect
}

func lessKey(a, b RegionKey) bool {
	// Weekly slots sort after the weekdays.
	da, db := a.Day, b.Day
	if da == Weekly {
		da = DaysPerWeek
	}
	if db == Weekly {
		db = DaysPerWeek
	}
	if da != db {
		return da < db
	}
	return a.Category.Order() < b.Category.Order()
}
