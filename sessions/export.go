package sessions

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
)

// WriteXLSX renders a session as a workbook with a "Summary" sheet and a
// "Transcript" sheet holding one row per message.
func WriteXLSX(w io.Writer, s *Session) error {
	f := excelize.NewFile()
	defer f.Close()

	const summary, transcript = "Summary", "Transcript"
	if err := f.SetSheetName("Sheet1", summary); err != nil {
		return fmt.Errorf("sessions: xlsx: %w", err)
	}
	if _, err := f.NewSheet(transcript); err != nil {
		return fmt.Errorf("sessions: xlsx: %w", err)
	}

	for i, kv := range [][2]string{
		{"Title", s.Title},
		{"Created", s.CreatedAt.Format(time.RFC3339)},
		{"Summary", s.Summary},
	} {
		_ = f.SetCellValue(summary, fmt.Sprintf("A%d", i+1), kv[0])
		_ = f.SetCellValue(summary, fmt.Sprintf("B%d", i+1), kv[1])
	}
	_ = f.SetColWidth(summary, "A", "A", 12)
	_ = f.SetColWidth(summary, "B", "B", 100)

	for i, h := range []string{"Time", "Role", "Content"} {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(transcript, cell, h)
	}
	for r, m := range s.Messages {
		for c, v := range []string{m.CreatedAt.Format(time.RFC3339), m.Role, m.Content} {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			_ = f.SetCellValue(transcript, cell, v)
		}
	}
	_ = f.SetColWidth(transcript, "A", "A", 22)
	_ = f.SetColWidth(transcript, "B", "B", 10)
	_ = f.SetColWidth(transcript, "C", "C", 100)

	f.SetActiveSheet(0)
	if err := f.Write(w); err != nil {
		return fmt.Errorf("sessions: xlsx write: %w", err)
	}
	return nil
}
