// =============================================================================
// talktime - Aggregator
// =============================================================================
//
// One algorithm serves both the PBX export and the combined provider export.
// A Source names the four columns that matter, the summary layout to write
// and the identity mapping table; everything else is shared.
//
// AGGREGATION STEPS:
//   1. Parse every timestamp and duration (one bad cell aborts the run)
//   2. Map caller codes to display names per the unknown-caller policy
//   3. Keep calls inside the inclusive window
//   4. Keep calls to all-digit destinations of a valid length
//   5. Group by caller: count, total duration, first and last call
//   6. Write one row per caller, sorted by caller
//
// =============================================================================

package aggregator

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/asayoyaasa/4PSA-FreePBX-CDR-Generator/internal/config"
	"github.com/asayoyaasa/4PSA-FreePBX-CDR-Generator/internal/csvparser"
	"github.com/asayoyaasa/4PSA-FreePBX-CDR-Generator/internal/mapping"
	"github.com/asayoyaasa/4PSA-FreePBX-CDR-Generator/internal/types"
)

// =============================================================================
// SOURCE DEFINITION
// =============================================================================

// Source parameterizes the aggregation for one CDR export.
type Source struct {
	// Name is used in logs and errors ("pbx", "provider").
	Name string

	Input  string
	Output string

	CallerColumn      string
	DestinationColumn string
	TimestampColumn   string
	DurationColumn    string

	CSV     config.CSVSettings
	Layout  types.SummaryLayout
	Mapping *mapping.Table
}

// NewSource builds a Source from its configuration section. Paths are
// resolved against the config base directory.
func NewSource(name string, cfg *config.MainConfig, sc config.SourceConfig, layout types.SummaryLayout, table *mapping.Table) Source {
	return Source{
		Name:              name,
		Input:             cfg.Path(sc.Input),
		Output:            cfg.Path(sc.Output),
		CallerColumn:      sc.CallerColumn,
		DestinationColumn: sc.DestinationColumn,
		TimestampColumn:   sc.TimestampColumn,
		DurationColumn:    sc.DurationColumn,
		CSV:               sc.CSVSettings,
		Layout:            layout,
		Mapping:           table,
	}
}

// Filter holds the row predicates shared by every source.
type Filter struct {
	Window       types.Window
	ValidLengths []int
}

// ValidDestination reports whether dst is all decimal digits and its length
// is one of lengths. Shorter numbers are internal extensions.
func ValidDestination(dst string, lengths []int) bool {
	dst = strings.TrimSpace(dst)
	if dst == "" {
		return false
	}
	for _, r := range dst {
		if r < '0' || r > '9' {
			return false
		}
	}
	return slices.Contains(lengths, len(dst))
}

// =============================================================================
// STATISTICS
// =============================================================================

// Stats counts what happened to the rows of one source.
type Stats struct {
	RowsRead           int
	Unmapped           int
	DroppedUnmapped    int
	OutsideWindow      int
	InvalidDestination int
	Counted            int
	Callers            int
}

// Result is the outcome of Run.
type Result struct {
	Source  string
	Output  string
	Skipped bool
	Stats   Stats
}

// =============================================================================
// PROCESSING
// =============================================================================

// ReadRecords parses the source export into call records with mapped caller
// identities. Rows dropped by the unknown-caller policy are not returned.
func ReadRecords(src Source) ([]types.CallRecord, Stats, error) {
	var stats Stats

	data, err := csvparser.Parse(src.Input, src.CSV)
	if err != nil {
		return nil, stats, fmt.Errorf("%s: %w", src.Name, err)
	}

	idx := make(map[string]int, 4)
	for _, col := range []string{src.CallerColumn, src.DestinationColumn, src.TimestampColumn, src.DurationColumn} {
		i, err := data.ColumnIndex(col)
		if err != nil {
			return nil, stats, fmt.Errorf("%s: %w", src.Name, err)
		}
		idx[col] = i
	}

	records := make([]types.CallRecord, 0, data.RowCount)
	for n, row := range data.Rows {
		line := data.LineNumbers[n]
		stats.RowsRead++

		ts, err := types.ParseTimestamp(csvparser.Cell(row, idx[src.TimestampColumn]))
		if err != nil {
			return nil, stats, fmt.Errorf("%s line %d column %q: %w", src.Name, line, src.TimestampColumn, err)
		}
		dur, err := types.ParseSeconds(csvparser.Cell(row, idx[src.DurationColumn]))
		if err != nil {
			return nil, stats, fmt.Errorf("%s line %d column %q: %w", src.Name, line, src.DurationColumn, err)
		}

		code := csvparser.Cell(row, idx[src.CallerColumn])
		if _, mapped := src.Mapping.Lookup(code); !mapped {
			stats.Unmapped++
		}
		name, ok := src.Mapping.Resolve(code)
		if !ok {
			stats.DroppedUnmapped++
			continue
		}

		records = append(records, types.CallRecord{
			CallerID:    name,
			Destination: csvparser.Cell(row, idx[src.DestinationColumn]),
			Timestamp:   ts,
			Duration:    dur,
			RowNumber:   line,
		})
	}

	return records, stats, nil
}

// Aggregate filters records and groups them by caller. The result is sorted
// by caller identity and holds exactly one summary per caller.
func Aggregate(records []types.CallRecord, f Filter) ([]types.CallerSummary, Stats) {
	var stats Stats
	groups := make(map[string]*types.CallerSummary)

	for _, rec := range records {
		if !f.Window.Contains(rec.Timestamp) {
			stats.OutsideWindow++
			continue
		}
		if !ValidDestination(rec.Destination, f.ValidLengths) {
			stats.InvalidDestination++
			continue
		}
		stats.Counted++

		g, ok := groups[rec.CallerID]
		if !ok {
			groups[rec.CallerID] = &types.CallerSummary{
				CallerID:      rec.CallerID,
				TotalCalls:    1,
				TotalDuration: rec.Duration,
				FirstCall:     rec.Timestamp,
				LastCall:      rec.Timestamp,
			}
			continue
		}
		g.Merge(types.CallerSummary{TotalCalls: 1, TotalDuration: rec.Duration, FirstCall: rec.Timestamp, LastCall: rec.Timestamp})
	}

	summaries := make([]types.CallerSummary, 0, len(groups))
	for _, g := range groups {
		summaries = append(summaries, *g)
	}
	slices.SortFunc(summaries, func(a, b types.CallerSummary) int {
		return strings.Compare(a.CallerID, b.CallerID)
	})
	stats.Callers = len(summaries)
	return summaries, stats
}

// WriteSummary writes summaries to path using layout. An empty slice
// produces a header-only file.
func WriteSummary(path string, layout types.SummaryLayout, summaries []types.CallerSummary) error {
	rows := make([][]string, len(summaries))
	for i, s := range summaries {
		rows[i] = layout.Format(s)
	}
	return csvparser.Write(path, layout.Headers(), rows, ",")
}

// Run aggregates one source end to end. A missing input is not an error:
// the source is skipped and Result.Skipped is set.
func Run(src Source, f Filter) (Result, error) {
	res := Result{Source: src.Name, Output: src.Output}

	if _, err := os.Stat(src.Input); errors.Is(err, os.ErrNotExist) {
		res.Skipped = true
		return res, nil
	}

	records, readStats, err := ReadRecords(src)
	if err != nil {
		return res, err
	}
	summaries, aggStats := Aggregate(records, f)

	if err := WriteSummary(src.Output, src.Layout, summaries); err != nil {
		return res, fmt.Errorf("%s: failed to write summary: %w", src.Name, err)
	}

	res.Stats = readStats
	res.Stats.OutsideWindow = aggStats.OutsideWindow
	res.Stats.InvalidDestination = aggStats.InvalidDestination
	res.Stats.Counted = aggStats.Counted
	res.Stats.Callers = aggStats.Callers
	return res, nil
}
