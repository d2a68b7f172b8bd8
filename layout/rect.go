package layout

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Rect is an axis-aligned rectangle in PDF page units. The origin is the
// bottom-left corner of the page, so Top is greater than Bottom.
type Rect struct {
	Left   float64
	Bottom float64
	Right  float64
	Top    float64
}

// Validate reports whether the rectangle has a positive width and height.
func (r Rect) Validate() error {
	if r.Left >= r.Right {
		return fmt.Errorf("rect %s: left must be smaller than right", r)
	}
	if r.Bottom >= r.Top {
		return fmt.Errorf("rect %s: bottom must be smaller than top", r)
	}
	return nil
}

// Contains reports whether o lies entirely within r. Shared edges count as
// inside.
func (r Rect) Contains(o Rect) bool {
	return o.Left >= r.Left && o.Right <= r.Right &&
		o.Bottom >= r.Bottom && o.Top <= r.Top
}

// Intersects reports whether r and o overlap.
func (r Rect) Intersects(o Rect) bool {
	return !(r.Right < o.Left || r.Left > o.Right || r.Top < o.Bottom || r.Bottom > o.Top)
}

// Union returns the smallest rectangle covering both r and o.
func (r Rect) Union(o Rect) Rect {
	return Rect{
		Left:   min(r.Left, o.Left),
		Bottom: min(r.Bottom, o.Bottom),
		Right:  max(r.Right, o.Right),
		Top:    max(r.Top, o.Top),
	}
}

func (r Rect) String() string {
	return fmt.Sprintf("(%g,%g,%g,%g)", r.Left, r.Bottom, r.Right, r.Top)
}

func (r Rect) coords() []float64 {
	return []float64{r.Left, r.Bottom, r.Right, r.Top}
}

func rectFromCoords(c []float64) (Rect, error) {
	if len(c) != 4 {
		return Rect{}, fmt.Errorf("rect needs 4 coordinates (left, bottom, right, top), got %d", len(c))
	}
	return Rect{Left: c[0], Bottom: c[1], Right: c[2], Top: c[3]}, nil
}

// UnmarshalYAML decodes a rectangle written as [left, bottom, right, top].
func (r *Rect) UnmarshalYAML(value *yaml.Node) error {
	var c []float64
	if err := value.Decode(&c); err != nil {
		return err
	}
	rect, err := rectFromCoords(c)
	if err != nil {
		return err
	}
	*r = rect
	return nil
}

// MarshalJSON encodes the rectangle as [left, bottom, right, top].
func (r Rect) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.coords())
}

// UnmarshalJSON decodes a rectangle written as [left, bottom, right, top].
func (r *Rect) UnmarshalJSON(data []byte) error {
	var c []float64
	if err := json.Unmarshal(data, &c); err != nil {
		return err
	}
	rect, err := rectFromCoords(c)
	if err != nil {
		return err
	}
	*r = rect
	return nil
}
