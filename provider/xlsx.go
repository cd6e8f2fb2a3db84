package provider

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/xuri/excelize/v2"
)

// XLSX flattens matrix workbooks into pipe tables, one section per
// sheet, so the chunker's tabular detection sees them as matrices.
type XLSX struct{}

func (p *XLSX) SupportedFormats() []string { return []string{"xlsx", "xlsm"} }

func (p *XLSX) Read(ctx context.Context, ref string) (*Document, error) {
	info, err := os.Stat(ref)
	if err != nil {
		return nil, fmt.Errorf("stat XLSX: %w", err)
	}

	f, err := excelize.OpenFile(ref)
	if err != nil {
		return nil, fmt.Errorf("opening XLSX: %w", err)
	}
	defer f.Close()

	var b strings.Builder
	for _, sheet := range f.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows, err := f.GetRows(sheet)
		if err != nil || len(rows) == 0 {
			continue
		}
		b.WriteString(sheet)
		b.WriteString("\n\n")
		for _, row := range rows {
			b.WriteString("| " + strings.Join(row, " | ") + " |\n")
		}
		b.WriteString("\n")
	}

	if b.Len() == 0 {
		return nil, fmt.Errorf("no data found in workbook")
	}

	return &Document{
		Text:      b.String(),
		MIME:      "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		SizeBytes: info.Size(),
	}, nil
}
