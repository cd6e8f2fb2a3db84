package provider

import (
	"context"
	"fmt"
	"os"
)

// Text handles plain text and markdown files.
type Text struct{}

func (p *Text) SupportedFormats() []string { return []string{"txt", "md", "text"} }

func (p *Text) Read(ctx context.Context, ref string) (*Document, error) {
	data, err := os.ReadFile(ref)
	if err != nil {
		return nil, fmt.Errorf("reading text file: %w", err)
	}
	return &Document{
		Text:      string(data),
		MIME:      "text/plain",
		SizeBytes: int64(len(data)),
	}, nil
}
