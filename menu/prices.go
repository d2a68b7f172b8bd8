package menu

import (
	"fmt"
	"strconv"
	"strings"
)

// ParsePrices scans raw for numeric tokens and returns them as dot-decimal
// values. Both ',' and '.' are accepted as the decimal separator. Fewer
// than two values is reported as ErrMalformedPrice; callers read the
// values as (student, staff) pairs and ignore a trailing unpaired one.
func (l *Locale) ParsePrices(raw string) ([]float64, error) {
	tokens := l.numberRe.FindAllString(raw, -1)
	prices := make([]float64, 0, len(tokens))
	for _, tok := range tokens {
		tok = strings.ReplaceAll(tok, l.DecimalSeparator, ".")
		tok = strings.ReplaceAll(tok, ",", ".")
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrMalformedPrice, raw, err)
		}
		prices = append(prices, v)
	}

	if len(prices) < 2 {
		return nil, fmt.Errorf("%w: want a student and a staff price, found %d in %q", ErrMalformedPrice, len(prices), CleanText(raw))
	}
	return prices, nil
}
