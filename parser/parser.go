// Package parser turns a menu document into positioned text fragments and
// reads text back out of page regions.
package parser

import (
	"context"
	"errors"

	"github.com/komidabot/komida/layout"
)

var (
	// ErrEmptyDocument is returned when a loader receives no bytes.
	ErrEmptyDocument = errors.New("parser: empty document")

	// ErrNoPages is returned when the document has no readable first page.
	ErrNoPages = errors.New("parser: document has no pages")

	// ErrUnsupportedFormat is returned when no loader handles a format.
	ErrUnsupportedFormat = errors.New("parser: unsupported format")
)

// Fragment is a span of text and the rectangle it occupies on the page.
type Fragment struct {
	Text     string      `json:"text"`
	Rect     layout.Rect `json:"rect"`
	FontSize float64     `json:"font_size,omitempty"`
}

// Page is the first page of a document as a flat list of fragments.
type Page struct {
	Number    int        `json:"number"`
	Width     float64    `json:"width,omitempty"`
	Height    float64    `json:"height,omitempty"`
	Fragments []Fragment `json:"fragments"`
}

// Loader reads page 1 of a document. Only single-page layouts are
// supported; later pages are ignored.
type Loader interface {
	Load(ctx context.Context, data []byte) (*Page, error)
	SupportedFormats() []string
}
