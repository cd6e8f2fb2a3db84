package provider

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDF extracts page text in document order.
type PDF struct{}

func (p *PDF) SupportedFormats() []string { return []string{"pdf"} }

func (p *PDF) Read(ctx context.Context, ref string) (*Document, error) {
	info, err := os.Stat(ref)
	if err != nil {
		return nil, fmt.Errorf("stat PDF: %w", err)
	}

	f, reader, err := pdf.Open(ref)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer f.Close()

	var b strings.Builder
	totalPages := reader.NumPage()
	for i := 1; i <= totalPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// Skip pages that fail to extract.
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		b.WriteString(text)
		b.WriteString("\n\n")
	}

	return &Document{
		Text:      b.String(),
		MIME:      "application/pdf",
		SizeBytes: info.Size(),
	}, nil
}
