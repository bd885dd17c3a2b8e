// =============================================================================
// talktime - CSV Parser Module
// =============================================================================
//
// This module reads and writes the comma-separated files that flow between
// pipeline stages. It handles:
//   - Different delimiters (comma, semicolon, pipe, tab)
//   - Files with a header row and headerless files named by position
//   - Ragged rows (short rows read as empty trailing cells)
//   - A UTF-8 byte order mark on the first header cell
//
// Every file is fully materialized; CDR exports are small batch files.
// Writes go through a temporary file and a rename so a half-written output
// never satisfies a later existence check.
//
// =============================================================================

package csvparser

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/asayoyaasa/4PSA-FreePBX-CDR-Generator/internal/config"
	"github.com/asayoyaasa/4PSA-FreePBX-CDR-Generator/internal/types"
)

// =============================================================================
// CSV DATA STRUCTURE
// =============================================================================

// CSVData represents a parsed CSV file.
type CSVData struct {
	// Headers contains the column names, either read from the file or taken
	// from the positional column settings.
	Headers []string

	// Rows contains the data rows. Empty rows are dropped.
	Rows [][]string

	// LineNumbers holds the 1-indexed source line of each row in Rows.
	LineNumbers []int

	// SourceFile is the path to the source CSV file.
	SourceFile string

	// RowCount is the number of data rows.
	RowCount int

	// ColumnCount is the number of named columns.
	ColumnCount int
}

// =============================================================================
// PARSER FUNCTIONS
// =============================================================================

// Parse reads a CSV file and returns the parsed data.
//
// PARAMETERS:
//   - filePath: The path to the CSV file.
//   - settings: Delimiter and header settings for the source.
//
// RETURNS:
//   - The parsed data. A file with only a header yields zero rows.
//   - An error if the file cannot be read or has no header.
func Parse(filePath string, settings config.CSVSettings) (*CSVData, error) {
	allRows, err := ReadAll(filePath, settings.Delimiter)
	if err != nil {
		return nil, err
	}

	data := &CSVData{SourceFile: filePath}

	firstData := 0
	if settings.HasHeader() {
		if len(allRows) == 0 {
			return nil, fmt.Errorf("%s: CSV file is empty", filePath)
		}
		data.Headers = cleanHeaders(allRows[0])
		firstData = 1
	} else {
		if len(settings.Columns) == 0 {
			return nil, fmt.Errorf("%s: headerless file needs positional column names", filePath)
		}
		data.Headers = cleanHeaders(settings.Columns)
	}

	for i := firstData; i < len(allRows); i++ {
		if isRowEmpty(allRows[i]) {
			continue
		}
		data.Rows = append(data.Rows, allRows[i])
		data.LineNumbers = append(data.LineNumbers, i+1)
	}

	data.RowCount = len(data.Rows)
	data.ColumnCount = len(data.Headers)
	return data, nil
}

// ReadAll reads every record of a file without interpreting a header.
func ReadAll(filePath string, delimiter string) ([][]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(bufio.NewReader(file))
	configureReader(reader, delimiter)

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV %s: %w", filePath, err)
	}
	if len(rows) > 0 && len(rows[0]) > 0 {
		rows[0][0] = strings.TrimPrefix(rows[0][0], "\ufeff")
	}
	return rows, nil
}

// configureReader configures the CSV reader for the given delimiter.
func configureReader(reader *csv.Reader, delimiter string) {
	reader.Comma = Delimiter(delimiter)

	// Exports are not always rectangular.
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
}

// Delimiter converts a configured delimiter name to its rune.
func Delimiter(name string) rune {
	switch name {
	case "\\t", "\t", "tab", "TAB":
		return '\t'
	case "|", "pipe", "PIPE":
		return '|'
	case ";", "semicolon":
		return ';'
	default:
		if len(name) > 0 {
			return rune(name[0])
		}
		return ','
	}
}

// cleanHeaders trims header values and names empty headers by position.
func cleanHeaders(headers []string) []string {
	cleaned := make([]string, len(headers))
	for i, header := range headers {
		header = strings.TrimSpace(header)
		if header == "" {
			header = fmt.Sprintf("Column_%d", i+1)
		}
		cleaned[i] = header
	}
	return cleaned
}

// isRowEmpty checks if a row contains only empty values.
func isRowEmpty(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// =============================================================================
// COLUMN LOOKUP
// =============================================================================

var spaceRE = regexp.MustCompile(`\s+`)

func norm(s string) string {
	return spaceRE.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), " ")
}

// ColumnIndex returns the position of the named column. An exact match wins;
// otherwise the comparison ignores case and repeated whitespace.
func (d *CSVData) ColumnIndex(name string) (int, error) {
	for i, h := range d.Headers {
		if h == name {
			return i, nil
		}
	}
	want := norm(name)
	for i, h := range d.Headers {
		if norm(h) == want {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%s: %w: %q", filepath.Base(d.SourceFile), types.ErrMissingColumn, name)
}

// Cell returns the trimmed value at index, or "" for a short row.
func Cell(row []string, index int) string {
	if index < 0 || index >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[index])
}

// =============================================================================
// WRITER
// =============================================================================

// Write writes rows to filePath, preceded by header unless header is nil.
// The file is replaced atomically.
func Write(filePath string, header []string, rows [][]string, delimiter string) error {
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(filePath)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	bw := bufio.NewWriter(tmp)
	w := csv.NewWriter(bw)
	w.Comma = Delimiter(delimiter)

	if header != nil {
		if err := w.Write(header); err != nil {
			tmp.Close()
			return fmt.Errorf("failed to write header: %w", err)
		}
	}
	if err := w.WriteAll(rows); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write rows: %w", err)
	}
	if err := bw.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to flush %s: %w", filePath, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), filePath)
}
