// =============================================================================
// talktime - Shared Types
// =============================================================================
//
// This package contains the record types shared by the combiner, the
// aggregators, the reconciler and the pipeline. Keeping them here avoids
// import cycles between the stage packages.
//
// RECORD FLOW:
//   CallRecord      - one parsed CDR row, already normalized per source
//   CallerSummary   - one aggregated row per caller identity
//   SummaryLayout   - the declared column layout of a summary file
//
// =============================================================================

package types

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// CALL RECORDS
// =============================================================================

// CallRecord is a single call after source-specific column names have been
// resolved and the caller identity has been mapped to a display name.
type CallRecord struct {
	// CallerID is the mapped caller identity (agent name or number).
	CallerID string

	// Destination is the dialled number exactly as exported.
	Destination string

	// Timestamp is when the call was placed.
	Timestamp time.Time

	// Duration is the connected (billable) time of the call.
	Duration time.Duration

	// RowNumber is the 1-indexed line of the source file, for error reports.
	RowNumber int
}

// CallerSummary is the aggregate for one caller identity over the reporting
// window. PBX summaries, provider summaries and the final ledger all share
// this shape so they can be unioned.
type CallerSummary struct {
	CallerID      string
	TotalCalls    int
	TotalDuration time.Duration
	FirstCall     time.Time
	LastCall      time.Time
}

// Merge folds other into s: counts and durations add, the first call is the
// earlier of the two and the last call the later.
func (s *CallerSummary) Merge(other CallerSummary) {
	s.TotalCalls += other.TotalCalls
	s.TotalDuration += other.TotalDuration
	if other.FirstCall.Before(s.FirstCall) {
		s.FirstCall = other.FirstCall
	}
	if other.LastCall.After(s.LastCall) {
		s.LastCall = other.LastCall
	}
}

// =============================================================================
// SUMMARY LAYOUTS
// =============================================================================

// SummaryField identifies one field of a CallerSummary in a file layout.
type SummaryField int

const (
	FieldCaller SummaryField = iota
	FieldCalls
	FieldDuration
	FieldFirstCall
	FieldLastCall
)

func (f SummaryField) String() string {
	switch f {
	case FieldCaller:
		return "caller"
	case FieldCalls:
		return "calls"
	case FieldDuration:
		return "duration"
	case FieldFirstCall:
		return "first_call"
	case FieldLastCall:
		return "last_call"
	default:
		return fmt.Sprintf("field(%d)", int(f))
	}
}

// SummaryColumn pairs a field with the header text it is written under.
type SummaryColumn struct {
	Field  SummaryField
	Header string
}

// SummaryLayout is the ordered column layout of a summary file. Each file
// kind declares its own layout; readers bind by header text so a renamed or
// missing column is reported instead of silently misread.
type SummaryLayout struct {
	Name    string
	Columns []SummaryColumn
}

// PBXSummaryLayout is the layout written by the PBX aggregator.
var PBXSummaryLayout = SummaryLayout{
	Name: "pbx summary",
	Columns: []SummaryColumn{
		{FieldCaller, "Caller Name"},
		{FieldCalls, "Total Calls"},
		{FieldDuration, "Total Billsec (HH:MM:SS)"},
		{FieldFirstCall, "First Call Timestamp"},
		{FieldLastCall, "Last Call Timestamp"},
	},
}

// ProviderSummaryLayout is the layout written by the provider aggregator.
var ProviderSummaryLayout = SummaryLayout{
	Name: "provider summary",
	Columns: []SummaryColumn{
		{FieldCaller, "From Number"},
		{FieldCalls, "Total Calls"},
		{FieldFirstCall, "First Call Timestamp"},
		{FieldLastCall, "Last Call Timestamp"},
		{FieldDuration, "Total Call Duration (HH:MM:SS)"},
	},
}

// LedgerLayout is the layout of the reconciled talk time ledger.
var LedgerLayout = SummaryLayout{
	Name: "ledger",
	Columns: []SummaryColumn{
		{FieldCaller, "Caller ID"},
		{FieldCalls, "Total Calls"},
		{FieldDuration, "Total Talking Time"},
		{FieldFirstCall, "First Call Time"},
		{FieldLastCall, "Last Call Time"},
	},
}

// Headers returns the header row of the layout.
func (l SummaryLayout) Headers() []string {
	headers := make([]string, len(l.Columns))
	for i, col := range l.Columns {
		headers[i] = col.Header
	}
	return headers
}

// Format renders a summary as a row in layout order.
func (l SummaryLayout) Format(s CallerSummary) []string {
	row := make([]string, len(l.Columns))
	for i, col := range l.Columns {
		switch col.Field {
		case FieldCaller:
			row[i] = s.CallerID
		case FieldCalls:
			row[i] = strconv.Itoa(s.TotalCalls)
		case FieldDuration:
			row[i] = FormatClock(s.TotalDuration)
		case FieldFirstCall:
			row[i] = FormatTimestamp(s.FirstCall)
		case FieldLastCall:
			row[i] = FormatTimestamp(s.LastCall)
		}
	}
	return row
}

// Binding maps the fields of a layout onto column positions of a concrete
// header row.
type Binding struct {
	layout  SummaryLayout
	headers []string
	index   map[SummaryField]int
}

// Bind locates every column of the layout in headers. Header matching ignores
// surrounding whitespace and a UTF-8 byte order mark.
func (l SummaryLayout) Bind(headers []string) (*Binding, error) {
	positions := make(map[string]int, len(headers))
	for i, h := range headers {
		positions[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}

	b := &Binding{layout: l, headers: headers, index: make(map[SummaryField]int, len(l.Columns))}
	for _, col := range l.Columns {
		i, ok := positions[col.Header]
		if !ok {
			return nil, fmt.Errorf("%s: %w: %q", l.Name, ErrMissingColumn, col.Header)
		}
		b.index[col.Field] = i
	}
	return b, nil
}

// Decode parses one data row into a summary. rowNumber is only used in error
// messages.
func (b *Binding) Decode(row []string, rowNumber int) (CallerSummary, error) {
	cell := func(f SummaryField) string {
		i := b.index[f]
		if i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var s CallerSummary
	var err error

	s.CallerID = cell(FieldCaller)

	calls := cell(FieldCalls)
	if s.TotalCalls, err = strconv.Atoi(calls); err != nil || s.TotalCalls < 0 {
		return s, fmt.Errorf("%s row %d: %w: total calls %q", b.layout.Name, rowNumber, ErrMalformedNumber, calls)
	}

	if s.TotalDuration, err = ParseClock(cell(FieldDuration)); err != nil {
		return s, fmt.Errorf("%s row %d: %w", b.layout.Name, rowNumber, err)
	}
	if s.FirstCall, err = ParseTimestamp(cell(FieldFirstCall)); err != nil {
		return s, fmt.Errorf("%s row %d: %w", b.layout.Name, rowNumber, err)
	}
	if s.LastCall, err = ParseTimestamp(cell(FieldLastCall)); err != nil {
		return s, fmt.Errorf("%s row %d: %w", b.layout.Name, rowNumber, err)
	}
	return s, nil
}
