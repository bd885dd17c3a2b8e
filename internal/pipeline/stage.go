// =============================================================================
// talktime - Pipeline Stages
// =============================================================================
//
// A Stage is one file-to-file step of the report. Stages declare the files
// they read and the file they write; Resolve derives the execution order
// from those declarations instead of relying on the order they were listed.
//
// ORDERING RULES:
//   - The producer of a file runs before every stage reading it
//   - Two stages may not write the same file
//   - A dependency cycle is an error
//   - Otherwise stages keep their declared order
//
// =============================================================================

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors.
var (
	// ErrMissingInput means a stage that requires its inputs found one absent.
	ErrMissingInput = errors.New("missing input")

	ErrDuplicateProducer = errors.New("duplicate producer")
	ErrCycle             = errors.New("dependency cycle")
)

// Stage names used by the report pipeline.
const (
	StageCombine   = "combine"
	StagePBX       = "pbx"
	StageProvider  = "provider"
	StageReconcile = "reconcile"
	StageXLSX      = "xlsx"
)

// Stage is one step of the pipeline.
type Stage struct {
	Name string

	// Inputs are the files the stage reads.
	Inputs []string

	// Output is the file the stage writes.
	Output string

	// SkipIfMissing turns an absent input into a skip instead of
	// ErrMissingInput.
	SkipIfMissing bool

	// Cacheable stages may be skipped by the cache policy.
	Cacheable bool

	// Run performs the stage and returns the number of rows written.
	Run func(ctx context.Context) (int, error)
}

// Resolve orders stages so every output's producer precedes its consumers.
//
// RETURNS:
//   - The stages in execution order.
//   - ErrDuplicateProducer when two stages write the same file.
//   - ErrCycle when the declarations form a loop.
func Resolve(stages []Stage) ([]Stage, error) {
	producer := make(map[string]int, len(stages))
	names := make(map[string]bool, len(stages))
	for i, s := range stages {
		if names[s.Name] {
			return nil, fmt.Errorf("stage %q declared twice", s.Name)
		}
		names[s.Name] = true
		if s.Output == "" {
			continue
		}
		if j, ok := producer[s.Output]; ok {
			return nil, fmt.Errorf("%w: %s is written by %q and %q", ErrDuplicateProducer, s.Output, stages[j].Name, s.Name)
		}
		producer[s.Output] = i
	}

	// deps[i] holds the stages i waits for.
	deps := make([]map[int]bool, len(stages))
	for i, s := range stages {
		deps[i] = make(map[int]bool)
		for _, in := range s.Inputs {
			if j, ok := producer[in]; ok {
				deps[i][j] = true
			}
		}
	}

	order := make([]Stage, 0, len(stages))
	done := make([]bool, len(stages))
	for len(order) < len(stages) {
		progressed := false
		for i := range stages {
			if done[i] || !ready(deps[i], done) {
				continue
			}
			done[i] = true
			order = append(order, stages[i])
			progressed = true
			// Restart so earlier-declared stages that just became ready
			// keep their precedence.
			break
		}
		if !progressed {
			var stuck []string
			for i, s := range stages {
				if !done[i] {
					stuck = append(stuck, s.Name)
				}
			}
			return nil, fmt.Errorf("%w between stages %s", ErrCycle, strings.Join(stuck, ", "))
		}
	}
	return order, nil
}

func ready(deps map[int]bool, done []bool) bool {
	for j := range deps {
		if !done[j] {
			return false
		}
	}
	return true
}

// Select keeps the named stages, preserving order. Unknown names are an
// error.
func Select(stages []Stage, names ...string) ([]Stage, error) {
	if len(names) == 0 {
		return stages, nil
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	var out []Stage
	for _, s := range stages {
		if want[s.Name] {
			out = append(out, s)
			delete(want, s.Name)
		}
	}
	for n := range want {
		return nil, fmt.Errorf("unknown stage %q", n)
	}
	return out, nil
}
