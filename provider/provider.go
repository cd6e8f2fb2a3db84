// Package provider implements the raw-document provider contract: the
// pipeline asks for a document's text by reference and never touches
// bytes itself. Built-in providers cover plain text, PDF, and XLSX
// matrix workbooks, behind a format registry.
package provider

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrUnsupportedFormat is returned for references no provider handles.
var ErrUnsupportedFormat = errors.New("provider: unsupported document format")

// Document is the extracted raw-document content.
type Document struct {
	Text      string
	MIME      string
	SizeBytes int64
}

// Provider reads one document format.
type Provider interface {
	Read(ctx context.Context, ref string) (*Document, error)
	SupportedFormats() []string
}

// Registry routes references to providers by file extension.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry registers the built-in providers.
func NewRegistry() *Registry {
	r := &Registry{providers: make(map[string]Provider)}
	for _, p := range []Provider{&Text{}, &PDF{}, &XLSX{}} {
		for _, f := range p.SupportedFormats() {
			r.providers[f] = p
		}
	}
	return r
}

// Register adds or overrides a provider for a format.
func (r *Registry) Register(format string, p Provider) {
	r.providers[format] = p
}

// Read resolves the provider for ref's extension and reads it.
func (r *Registry) Read(ctx context.Context, ref string) (*Document, error) {
	format := strings.ToLower(strings.TrimPrefix(filepath.Ext(ref), "."))
	p, ok := r.providers[format]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	return p.Read(ctx, ref)
}
