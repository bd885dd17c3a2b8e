// =============================================================================
// talktime - XLSX Writer Module
// =============================================================================
//
// This module renders a summary (normally the final ledger) as an Excel
// workbook for readers who open reports in a spreadsheet.
//
// WORKBOOK STRUCTURE:
//   One sheet, "Talk Time" by default:
//
//   | Caller ID | Total Calls | Total Talking Time | First Call Time | Last Call Time |
//   |-----------|-------------|--------------------|-----------------|----------------|
//   | AGENT     | 5           | 00:15:00           | 2024-05-23 ...  | 2024-05-23 ... |
//
//   The header row is bold and frozen. Total Calls is written as a number,
//   every other cell as text so HH:MM:SS totals above 24h survive intact.
//
// =============================================================================

package xlsxwriter

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/asayoyaasa/4PSA-FreePBX-CDR-Generator/internal/types"
)

// DefaultSheet is the sheet name used when Options.Sheet is empty.
const DefaultSheet = "Talk Time"

// Options contains options for workbook generation.
type Options struct {
	// Sheet is the worksheet name.
	Sheet string

	// Layout selects and orders the columns.
	Layout types.SummaryLayout
}

// DefaultOptions returns the ledger workbook options.
func DefaultOptions() Options {
	return Options{Sheet: DefaultSheet, Layout: types.LedgerLayout}
}

// =============================================================================
// WORKBOOK GENERATION
// =============================================================================

// Write saves summaries to an .xlsx workbook at path.
//
// PARAMETERS:
//   - path: Destination file. Parent directories are created.
//   - summaries: Rows in the order they should appear.
//   - opts: Sheet name and layout.
//
// RETURNS:
//   - An error if the workbook cannot be built or saved.
func Write(path string, summaries []types.CallerSummary, opts Options) error {
	if opts.Sheet == "" {
		opts.Sheet = DefaultSheet
	}
	if len(opts.Layout.Columns) == 0 {
		opts.Layout = types.LedgerLayout
	}

	x := excelize.NewFile()
	defer x.Close()

	if err := x.SetSheetName("Sheet1", opts.Sheet); err != nil {
		return fmt.Errorf("xlsx: rename sheet: %w", err)
	}

	bold, err := x.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("xlsx: header style: %w", err)
	}

	headers := opts.Layout.Headers()
	for c, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(c+1, 1)
		if err := x.SetCellStr(opts.Sheet, cell, h); err != nil {
			return fmt.Errorf("xlsx: header %s: %w", cell, err)
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(headers), 1)
	if err := x.SetCellStyle(opts.Sheet, "A1", last, bold); err != nil {
		return fmt.Errorf("xlsx: header style: %w", err)
	}

	for r, s := range summaries {
		row := opts.Layout.Format(s)
		for c, col := range opts.Layout.Columns {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			if col.Field == types.FieldCalls {
				err = x.SetCellValue(opts.Sheet, cell, s.TotalCalls)
			} else {
				err = x.SetCellStr(opts.Sheet, cell, row[c])
			}
			if err != nil {
				return fmt.Errorf("xlsx: cell %s: %w", cell, err)
			}
		}
	}

	lastCol, _ := excelize.ColumnNumberToName(len(headers))
	if err := x.SetColWidth(opts.Sheet, "A", lastCol, 22); err != nil {
		return fmt.Errorf("xlsx: column width: %w", err)
	}
	if err := x.SetPanes(opts.Sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("xlsx: freeze header: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("xlsx: %w", err)
	}
	if err := x.SaveAs(path); err != nil {
		return fmt.Errorf("xlsx: save %s: %w", path, err)
	}
	return nil
}
