package parser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Registry maps document formats to loaders.
type Registry struct {
	loaders map[string]Loader
}

// NewRegistry returns a registry with the PDF and JSON loaders.
func NewRegistry() *Registry {
	r := &Registry{loaders: make(map[string]Loader)}
	// Register built-in loaders
	for _, l := range []Loader{&PDFLoader{Options: DefaultPDFOptions()}, &JSONLoader{}} {
		for _, f := range l.SupportedFormats() {
			r.loaders[f] = l
		}
	}
	return r
}

func (r *Registry) Get(format string) (Loader, error) {
	l, ok := r.loaders[strings.ToLower(format)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	return l, nil
}

func (r *Registry) Register(format string, l Loader) {
	r.loaders[strings.ToLower(format)] = l
}

// LoadFile picks a loader from the file extension and loads the page.
func (r *Registry) LoadFile(ctx context.Context, path string) (*Page, error) {
	format := strings.TrimPrefix(filepath.Ext(path), ".")
	l, err := r.Get(format)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading document: %w", err)
	}
	return l.Load(ctx, data)
}
