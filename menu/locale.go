package menu

import (
	"embed"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

//go:embed locales/*.yaml
var builtinLocales embed.FS

// Locale holds the language-specific tables the parser needs: month
// names, the keywords separating the first and last day of the week, the
// words joining alternative dishes and the decimal separator of prices.
type Locale struct {
	Name             string         `yaml:"name"`
	Language         string         `yaml:"language"`
	DecimalSeparator string         `yaml:"decimal_separator"`
	Separators       []string       `yaml:"separators"`
	Conjunctions     []string       `yaml:"conjunctions"`
	Months           map[string]int `yaml:"months"`

	tag      language.Tag
	months   map[string]time.Month
	sepRe    *regexp.Regexp
	conjRe   *regexp.Regexp
	numberRe *regexp.Regexp
}

// LoadLocale returns one of the built-in locales ("nl", "en").
func LoadLocale(name string) (*Locale, error) {
	data, err := builtinLocales.ReadFile("locales/" + name + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("unknown locale %q", name)
	}
	return ParseLocale(data)
}

// LoadLocaleFile reads a locale table from disk.
func LoadLocaleFile(path string) (*Locale, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading locale: %w", err)
	}
	return ParseLocale(data)
}

// ParseLocale decodes and compiles a YAML locale table.
func ParseLocale(data []byte) (*Locale, error) {
	var l Locale
	if err := yaml.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("decoding locale: %w", err)
	}
	if err := l.compile(); err != nil {
		return nil, fmt.Errorf("locale %s: %w", l.Name, err)
	}
	return &l, nil
}

func (l *Locale) compile() error {
	if len(l.Separators) == 0 {
		return fmt.Errorf("no week separators")
	}
	if len(l.Conjunctions) == 0 {
		return fmt.Errorf("no conjunctions")
	}
	if len(l.Months) == 0 {
		return fmt.Errorf("no month names")
	}
	if l.DecimalSeparator == "" {
		l.DecimalSeparator = ","
	}

	tag, err := language.Parse(l.Language)
	if err != nil {
		return fmt.Errorf("language %q: %w", l.Language, err)
	}
	l.tag = tag

	l.months = make(map[string]time.Month, len(l.Months))
	for name, m := range l.Months {
		if m < 1 || m > 12 {
			return fmt.Errorf("month %q: %d is not in 1..12", name, m)
		}
		l.months[l.fold(name)] = time.Month(m)
	}

	seps := make([]string, 0, len(l.Separators))
	for _, s := range l.Separators {
		q := regexp.QuoteMeta(l.fold(s))
		if isWord(s) {
			q = `\b` + q + `\b`
		}
		seps = append(seps, q)
	}
	l.sepRe = regexp.MustCompile(strings.Join(seps, "|"))

	conj := make([]string, 0, len(l.Conjunctions))
	for _, c := range l.Conjunctions {
		conj = append(conj, regexp.QuoteMeta(c))
	}
	l.conjRe = regexp.MustCompile(`(?i)(?:` + strings.Join(conj, "|") + `)`)

	l.numberRe = regexp.MustCompile(`\d+(?:[.,]\d+)?`)
	return nil
}

// fold lowercases s with the locale's case rules and normalizes it to NFC.
// A Caser is not safe for concurrent use, so one is built per call.
func (l *Locale) fold(s string) string {
	return cases.Lower(l.tag).String(norm.NFC.String(s))
}

func (l *Locale) month(token string) (time.Month, bool) {
	m, ok := l.months[strings.TrimSuffix(l.fold(token), ".")]
	return m, ok
}

func isWord(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return s != ""
}

// CleanText normalizes extracted text: NFC, line breaks folded into
// spaces, runs of whitespace collapsed.
func CleanText(s string) string {
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}
