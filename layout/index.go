// Package layout holds the page-region tables of the menu document.
//
// A table maps each (weekday, category) slot to the rectangle holding the
// dish description and the rectangle holding its price pair. Tables are
// versioned alongside the document template and shipped as YAML; campus
// variants override single slots of the default table when their copy of
// the template has drifted.
package layout

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"

	"gopkg.in/yaml.v3"
)

var (
	// ErrUnknownRegion is returned when a table has no rectangle for a key.
	ErrUnknownRegion = errors.New("layout: unknown region")

	// ErrUnknownVersion is returned for a layout version that was never loaded.
	ErrUnknownVersion = errors.New("layout: unknown layout version")

	// ErrInvalidTable is returned when a table file fails validation.
	ErrInvalidTable = errors.New("layout: invalid table")
)

//go:embed tables/*.yaml
var builtin embed.FS

type tableFile struct {
	Version      string                 `yaml:"version"`
	Date         Rect                   `yaml:"date"`
	Alternatives []string               `yaml:"alternatives"`
	Regions      []regionFile           `yaml:"regions"`
	Variants     map[string]variantFile `yaml:"variants"`
}

type regionFile struct {
	Day      string `yaml:"day"`
	Category string `yaml:"category"`
	Item     Rect   `yaml:"item"`
	Price    Rect   `yaml:"price"`
}

type variantFile struct {
	Date         *Rect        `yaml:"date"`
	Alternatives []string     `yaml:"alternatives"`
	Regions      []regionFile `yaml:"regions"`
}

type variant struct {
	date         *Rect
	alternatives map[Category]bool // nil means inherit
	regions      map[RegionKey]Region
}

// Table is the region table of one document layout version.
type Table struct {
	Version      string
	date         Rect
	alternatives map[Category]bool
	regions      map[RegionKey]Region
	variants     map[string]variant
}

// Lookup returns the item and price rectangles of key for a campus
// variant. Variant overrides win over the default table.
func (t *Table) Lookup(variantName string, key RegionKey) (item, price Rect, err error) {
	if v, ok := t.variants[variantName]; ok {
		if r, ok := v.regions[key]; ok {
			return r.Item, r.Price, nil
		}
	}
	r, ok := t.regions[key]
	if !ok {
		return Rect{}, Rect{}, fmt.Errorf("%w: %s (layout %s, variant %q)", ErrUnknownRegion, key, t.Version, variantName)
	}
	return r.Item, r.Price, nil
}

// DateRect returns the rectangle holding the printed week line.
func (t *Table) DateRect(variantName string) Rect {
	if v, ok := t.variants[variantName]; ok && v.date != nil {
		return *v.date
	}
	return t.date
}

// Keys returns every slot defined for a variant, weekdays first, in a
// stable order.
func (t *Table) Keys(variantName string) []RegionKey {
	seen := make(map[RegionKey]bool, len(t.regions))
	keys := make([]RegionKey, 0, len(t.regions))
	for k := range t.regions {
		seen[k] = true
		keys = append(keys, k)
	}
	if v, ok := t.variants[variantName]; ok {
		for k := range v.regions {
			if !seen[k] {
				keys = append(keys, k)
			}
		}
	}
	sort.Slice(keys, func(i, j int) bool { return lessKey(keys[i], keys[j]) })
	return keys
}

// Alternatives reports whether a category may list several dishes in one
// slot for the given variant.
func (t *Table) Alternatives(variantName string, c Category) bool {
	if v, ok := t.variants[variantName]; ok && v.alternatives != nil {
		return v.alternatives[c]
	}
	return t.alternatives[c]
}

// Variants returns the names of the campus variants with overrides.
func (t *Table) Variants() []string {
	names := make([]string, 0, len(t.variants))
	for name := range t.variants {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParseTable decodes and validates one YAML table document.
func ParseTable(data []byte) (*Table, error) {
	var f tableFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTable, err)
	}
	if f.Version == "" {
		return nil, fmt.Errorf("%w: missing version", ErrInvalidTable)
	}
	if err := f.Date.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s date: %v", ErrInvalidTable, f.Version, err)
	}

	t := &Table{
		Version:  f.Version,
		date:     f.Date,
		variants: make(map[string]variant, len(f.Variants)),
	}

	var err error
	if t.alternatives, err = categorySet(f.Alternatives); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTable, f.Version, err)
	}
	if t.regions, err = regionMap(f.Regions); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTable, f.Version, err)
	}

	for name, vf := range f.Variants {
		v := variant{date: vf.Date}
		if v.date != nil {
			if err := v.date.Validate(); err != nil {
				return nil, fmt.Errorf("%w: %s variant %s date: %v", ErrInvalidTable, f.Version, name, err)
			}
		}
		if vf.Alternatives != nil {
			if v.alternatives, err = categorySet(vf.Alternatives); err != nil {
				return nil, fmt.Errorf("%w: %s variant %s: %v", ErrInvalidTable, f.Version, name, err)
			}
		}
		if v.regions, err = regionMap(vf.Regions); err != nil {
			return nil, fmt.Errorf("%w: %s variant %s: %v", ErrInvalidTable, f.Version, name, err)
		}
		t.variants[name] = v
	}
	return t, nil
}

func categorySet(names []string) (map[Category]bool, error) {
	set := make(map[Category]bool, len(names))
	for _, n := range names {
		c, err := ParseCategory(n)
		if err != nil {
			return nil, err
		}
		set[c] = true
	}
	return set, nil
}

func regionMap(rs []regionFile) (map[RegionKey]Region, error) {
	m := make(map[RegionKey]Region, len(rs))
	for _, rf := range rs {
		day, err := ParseDay(rf.Day)
		if err != nil {
			return nil, err
		}
		c, err := ParseCategory(rf.Category)
		if err != nil {
			return nil, err
		}
		key := RegionKey{Day: day, Category: c}
		if _, dup := m[key]; dup {
			return nil, fmt.Errorf("duplicate region %s", key)
		}
		if err := rf.Item.Validate(); err != nil {
			return nil, fmt.Errorf("%s item: %v", key, err)
		}
		if err := rf.Price.Validate(); err != nil {
			return nil, fmt.Errorf("%s price: %v", key, err)
		}
		m[key] = Region{Key: key, Item: rf.Item, Price: rf.Price}
	}
	return m, nil
}

// Index holds every loaded layout version.
type Index struct {
	tables map[string]*Table
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{tables: make(map[string]*Table)}
}

// DefaultIndex returns an index with the tables shipped in the binary.
func DefaultIndex() (*Index, error) {
	ix := NewIndex()
	if err := ix.LoadFS(builtin, "tables"); err != nil {
		return nil, err
	}
	return ix, nil
}

// LoadFS adds every *.yaml table found in dir of fsys.
func (ix *Index) LoadFS(fsys fs.FS, dir string) error {
	matches, err := fs.Glob(fsys, path.Join(dir, "*.yaml"))
	if err != nil {
		return err
	}
	for _, name := range matches {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading %s: %w", name, err)
		}
		if _, err := ix.Add(data); err != nil {
			return fmt.Errorf("loading %s: %w", name, err)
		}
	}
	return nil
}

// LoadFile adds the table stored at path. A table with the same version
// replaces the previous one.
func (ix *Index) LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading layout table: %w", err)
	}
	return ix.Add(data)
}

// Add parses a YAML table and registers it under its version.
func (ix *Index) Add(data []byte) (*Table, error) {
	t, err := ParseTable(data)
	if err != nil {
		return nil, err
	}
	ix.tables[t.Version] = t
	return t, nil
}

// Table returns the table registered for version.
func (ix *Index) Table(version string) (*Table, error) {
	t, ok := ix.tables[version]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVersion, version)
	}
	return t, nil
}

// Versions returns the loaded versions in ascending order.
func (ix *Index) Versions() []string {
	vs := make([]string, 0, len(ix.tables))
	for v := range ix.tables {
		vs = append(vs, v)
	}
	sort.Strings(vs)
	return vs
}

// Latest returns the table with the highest version string.
func (ix *Index) Latest() (*Table, error) {
	vs := ix.Versions()
	if len(vs) == 0 {
		return nil, fmt.Errorf("%w: no tables loaded", ErrUnknownVersion)
	}
	return ix.tables[vs[len(vs)-1]], nil
}
