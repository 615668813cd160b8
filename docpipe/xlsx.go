package docpipe

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// xlsxExtractor renders each sheet like a CSV file: one line per row, cells
// joined by ", ". Workbooks with several sheets get a "[name]" line before
// each sheet.
type xlsxExtractor struct{}

func (xlsxExtractor) Extract(ctx context.Context, data []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	var sb strings.Builder
	for _, sheet := range sheets {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("read sheet %q: %w", sheet, err)
		}
		if len(sheets) > 1 {
			if sb.Len() > 0 {
				sb.WriteByte('\n')
			}
			fmt.Fprintf(&sb, "[%s]\n", sheet)
		}
		for _, row := range rows {
			sb.WriteString(strings.Join(row, ", "))
			sb.WriteByte('\n')
		}
	}
	return sb.String(), nil
}
