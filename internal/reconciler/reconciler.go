// =============================================================================
// talktime - Ledger Reconciler
// =============================================================================
//
// The reconciler unions the PBX summary and the provider summary into the
// final talk-time ledger. Both inputs are read through their declared
// layouts, so the physical column order of either file does not matter.
//
// RECONCILIATION RULES:
//   - Rows with the same Caller ID collapse into one
//   - Calls and talk time add, first call is the minimum, last call the maximum
//   - Output is sorted ascending by Caller ID
//   - The order in which sources are given does not change the result
//
// =============================================================================

package reconciler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/asayoyaasa/4PSA-FreePBX-CDR-Generator/internal/csvparser"
	"github.com/asayoyaasa/4PSA-FreePBX-CDR-Generator/internal/types"
)

// Input is one summary file together with the layout it was written in.
type Input struct {
	Path   string
	Layout types.SummaryLayout
}

// Result is the outcome of Reconcile.
type Result struct {
	Output string
	Rows   []types.CallerSummary
}

// ReadSummary decodes a summary file written in layout.
//
// RETURNS:
//   - The summaries in file order.
//   - An error if the file is missing, a layout column is absent or a cell
//     cannot be decoded.
func ReadSummary(in Input) ([]types.CallerSummary, error) {
	rows, err := csvparser.ReadAll(in.Path, ",")
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s: %w: empty file, no header", in.Path, types.ErrMissingColumn)
	}

	binding, err := in.Layout.Bind(rows[0])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", in.Path, err)
	}

	summaries := make([]types.CallerSummary, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if blank(row) {
			continue
		}
		s, err := binding.Decode(row, i+2)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", in.Path, err)
		}
		summaries = append(summaries, s)
	}
	return summaries, nil
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// Merge collapses summaries by caller identity and sorts the result.
func Merge(sets ...[]types.CallerSummary) []types.CallerSummary {
	byCaller := make(map[string]*types.CallerSummary)
	for _, set := range sets {
		for _, s := range set {
			if cur, ok := byCaller[s.CallerID]; ok {
				cur.Merge(s)
				continue
			}
			c := s
			byCaller[s.CallerID] = &c
		}
	}

	out := make([]types.CallerSummary, 0, len(byCaller))
	for _, s := range byCaller {
		out = append(out, *s)
	}
	slices.SortFunc(out, func(a, b types.CallerSummary) int {
		return strings.Compare(a.CallerID, b.CallerID)
	})
	return out
}

// Reconcile reads every input, merges them and writes the ledger to output.
// A missing input is fatal.
func Reconcile(output string, inputs ...Input) (Result, error) {
	sets := make([][]types.CallerSummary, 0, len(inputs))
	for _, in := range inputs {
		s, err := ReadSummary(in)
		if err != nil {
			return Result{}, fmt.Errorf("reconcile: %w", err)
		}
		sets = append(sets, s)
	}

	ledger := Merge(sets...)
	rows := make([][]string, len(ledger))
	for i, s := range ledger {
		rows[i] = types.LedgerLayout.Format(s)
	}
	if err := csvparser.Write(output, types.LedgerLayout.Headers(), rows, ","); err != nil {
		return Result{}, fmt.Errorf("reconcile: failed to write ledger: %w", err)
	}

	return Result{Output: output, Rows: ledger}, nil
}
