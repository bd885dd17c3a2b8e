// =============================================================================
// talktime - XLSX Mapping Workbook Parser
// =============================================================================
//
// Agent rosters are usually maintained in a spreadsheet. This module reads a
// caller identity mapping table out of an XLSX workbook so the roster does
// not have to be copied into the YAML configuration by hand.
//
// WORKBOOK STRUCTURE (defaults):
//
//   | Column A        | Column B      |
//   |-----------------|---------------|
//   | Code            | Name          |   <- header row, skipped
//   | CNAME           | AGENT NAME    |
//   | 6281234567890   | AGENT NAME    |
//
// Column positions, the header row and the sheet are configurable via the
// MappingColumns struct.
//
// =============================================================================

package xlsxparser

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// =============================================================================
// COLUMN CONFIGURATION
// =============================================================================

// MappingColumns defines where the mapping lives inside the workbook.
// Column and row indices are 0-based (A=0, B=1, ...).
type MappingColumns struct {
	// Sheet is the worksheet name. Empty selects the first sheet.
	Sheet string

	// CodeColumn holds the raw identity code. Default: 0 (Column A)
	CodeColumn int

	// NameColumn holds the display name. Default: 1 (Column B)
	NameColumn int

	// DataStartRow is the first row holding a mapping. Default: 1 (Row 2)
	DataStartRow int
}

// DefaultMappingColumns returns the default column configuration.
func DefaultMappingColumns() MappingColumns {
	return MappingColumns{
		CodeColumn:   0, // Column A
		NameColumn:   1, // Column B
		DataStartRow: 1, // Row 2
	}
}

// =============================================================================
// PARSER FUNCTIONS
// =============================================================================

// ParseMapping reads a mapping workbook using the default layout.
func ParseMapping(path string) (map[string]string, error) {
	return ParseMappingWithConfig(path, DefaultMappingColumns())
}

// ParseMappingWithConfig reads a mapping workbook using a custom layout.
//
// RETURNS:
//   - code -> display name. Rows with an empty code or name are skipped.
//   - An error if the workbook or sheet cannot be read, or a code maps to
//     two different names.
func ParseMappingWithConfig(path string, columns MappingColumns) (map[string]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheet := columns.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("%s: workbook has no sheets", path)
		}
		sheet = sheets[0]
	}

	// Raw values keep long phone numbers from being rendered in scientific
	// notation.
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}

	mapping := make(map[string]string)
	for r := columns.DataStartRow; r < len(rows); r++ {
		code := getCellValue(rows[r], columns.CodeColumn)
		name := getCellValue(rows[r], columns.NameColumn)
		if code == "" || name == "" {
			continue
		}
		if prev, ok := mapping[code]; ok && prev != name {
			return nil, fmt.Errorf("%s row %d: code %q maps to both %q and %q", path, r+1, code, prev, name)
		}
		mapping[code] = name
	}

	return mapping, nil
}

// getCellValue safely gets a trimmed cell value from a row.
func getCellValue(row []string, index int) string {
	if index < 0 || index >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[index])
}
