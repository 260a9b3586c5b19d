package journal

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
)

var exportColumns = []string{"ID", "Bus", "Event", "Payload", "Recorded at"}

// Export writes the entries matching f as an XLSX workbook to w, one sheet
// named "journal" with a bold header row.
func (j *Journal) Export(ctx context.Context, f Filter, w io.Writer) error {
	entries, err := j.List(ctx, f)
	if err != nil {
		return fmt.Errorf("list entries: %w", err)
	}

	file := excelize.NewFile()
	defer file.Close()

	const sheet = "journal"
	if err := file.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}

	if err := writeRow(file, sheet, 1, toCells(exportColumns)); err != nil {
		return err
	}
	style, err := file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		endCell, _ := excelize.CoordinatesToCellName(len(exportColumns), 1)
		_ = file.SetCellStyle(sheet, "A1", endCell, style)
	}

	for i, e := range entries {
		row := []any{e.ID, e.BusID, e.EventType, e.Payload, e.RecordedAt.Format(time.RFC3339Nano)}
		if err := writeRow(file, sheet, i+2, row); err != nil {
			return err
		}
	}

	j.logger.Info().Int("entries", len(entries)).Msg("Journal exported")
	return file.Write(w)
}

func writeRow(file *excelize.File, sheet string, row int, values []any) error {
	for i, val := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, row)
		if err != nil {
			return err
		}
		if err := file.SetCellValue(sheet, cell, val); err != nil {
			return err
		}
	}
	return nil
}

func toCells(columns []string) []any {
	out := make([]any, len(columns))
	for i, c := range columns {
		out[i] = c
	}
	return out
}
