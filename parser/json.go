package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
)

// JSONLoader reads a page previously written with WriteJSON. It is used
// for fixtures and for re-running the parser on a dumped page.
type JSONLoader struct{}

func (l *JSONLoader) SupportedFormats() []string { return []string{"json"} }

func (l *JSONLoader) Load(ctx context.Context, data []byte) (*Page, error) {
	if len(data) == 0 {
		return nil, ErrEmptyDocument
	}
	var p Page
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decoding page: %w", err)
	}
	if p.Number == 0 {
		p.Number = 1
	}
	return &p, nil
}

// WriteJSON writes the page in the format JSONLoader reads.
func WriteJSON(w io.Writer, p *Page) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(p)
}
