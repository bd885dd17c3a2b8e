// =============================================================================
// talktime - Raw Combiner Module
// =============================================================================
//
// This module merges the two raw provider exports into one call log.
// The first export has no header row, the second has one. The merged log:
//   - keeps every data row of both exports
//   - drops rows whose timestamp is a zero-date sentinel
//   - is ordered newest first by the raw timestamp text
//
// The result is written without a header.
//
// =============================================================================

package combiner

import (
	"fmt"
	"slices"
	"strings"

	"github.com/asayoyaasa/4PSA-FreePBX-CDR-Generator/internal/csvparser"
)

// Options configures a combine run.
type Options struct {
	// First is the headerless export, Second the export with a header row.
	First  string
	Second string

	// Output is the merged, headerless call log.
	Output string

	// TimestampIndex is the zero-based timestamp column.
	TimestampIndex int

	// Sentinels are timestamp values marking invalid rows.
	Sentinels []string

	Delimiter string
}

// Result reports what a combine run wrote.
type Result struct {
	Rows     int
	Dropped  int
	FromEach [2]int
}

// Combine merges opts.First and opts.Second into opts.Output.
func Combine(opts Options) (Result, error) {
	var res Result

	first, err := csvparser.ReadAll(opts.First, opts.Delimiter)
	if err != nil {
		return res, err
	}
	second, err := csvparser.ReadAll(opts.Second, opts.Delimiter)
	if err != nil {
		return res, err
	}
	if len(second) > 0 {
		second = second[1:]
	}

	sentinel := make(map[string]bool, len(opts.Sentinels))
	for _, s := range opts.Sentinels {
		sentinel[strings.TrimSpace(s)] = true
	}

	var rows [][]string
	for i, part := range [][][]string{first, second} {
		for n, row := range part {
			if isBlank(row) {
				continue
			}
			if opts.TimestampIndex >= len(row) {
				// Line numbers are 1-indexed; the second file's header is line 1.
				line := n + 1 + i
				return res, fmt.Errorf("%s line %d: row has %d columns, timestamp column is %d",
					[]string{opts.First, opts.Second}[i], line, len(row), opts.TimestampIndex)
			}
			if sentinel[strings.TrimSpace(row[opts.TimestampIndex])] {
				res.Dropped++
				continue
			}
			rows = append(rows, row)
			res.FromEach[i]++
		}
	}

	ts := opts.TimestampIndex
	slices.SortStableFunc(rows, func(a, b []string) int {
		return strings.Compare(strings.TrimSpace(b[ts]), strings.TrimSpace(a[ts]))
	})

	if err := csvparser.Write(opts.Output, nil, rows, opts.Delimiter); err != nil {
		return res, fmt.Errorf("failed to write combined log: %w", err)
	}
	res.Rows = len(rows)
	return res, nil
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
