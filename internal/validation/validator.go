// =============================================================================
// talktime - Validation Engine
// =============================================================================
//
// This module checks a configuration, and the input files it points at,
// before anything is written. It backs the `validate` command and the
// pre-flight check of `run`.
//
// VALIDATION STRATEGY:
//   1. Config-level: enumerations, window bounds, column declarations
//   2. Input-level: every present input exposes the columns its stage reads
//
// ERROR HANDLING:
//   - Problems are collected, not returned one at a time
//   - "error" entries make the configuration unusable
//   - "warning" entries describe something that will be skipped or ignored
//
// =============================================================================

package validation

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/asayoyaasa/4PSA-FreePBX-CDR-Generator/internal/config"
	"github.com/asayoyaasa/4PSA-FreePBX-CDR-Generator/internal/csvparser"
	"github.com/asayoyaasa/4PSA-FreePBX-CDR-Generator/internal/logging"
	"github.com/asayoyaasa/4PSA-FreePBX-CDR-Generator/internal/mapping"
	"github.com/asayoyaasa/4PSA-FreePBX-CDR-Generator/pkg/utils"
)

// Severities.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// =============================================================================
// VALIDATION ERROR TYPES
// =============================================================================

// ValidationError represents a single validation problem.
type ValidationError struct {
	// Severity is SeverityError or SeverityWarning.
	Severity string

	// Field is the configuration key or file the problem was found in.
	Field string

	// Value is the offending value.
	Value string

	// Rule is a short identifier of the violated rule.
	Rule string

	// Message is a human-readable description.
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("[%s] %s: %s", strings.ToUpper(e.Severity), e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s (value: '%s')", strings.ToUpper(e.Severity), e.Field, e.Message, e.Value)
}

// =============================================================================
// VALIDATION RESULT
// =============================================================================

// ValidationResult contains the results of validation.
type ValidationResult struct {
	// IsValid is true if there are no fatal errors.
	IsValid bool

	// Errors contains all entries, warnings included.
	Errors []*ValidationError

	ErrorCount   int
	WarningCount int
}

func newResult() *ValidationResult {
	return &ValidationResult{IsValid: true}
}

func (r *ValidationResult) add(severity, field, value, rule, format string, args ...any) {
	r.Errors = append(r.Errors, &ValidationError{
		Severity: severity,
		Field:    field,
		Value:    value,
		Rule:     rule,
		Message:  fmt.Sprintf(format, args...),
	})
	if severity == SeverityError {
		r.ErrorCount++
		r.IsValid = false
	} else {
		r.WarningCount++
	}
}

// Merge appends other's entries to r.
func (r *ValidationResult) Merge(other *ValidationResult) {
	r.Errors = append(r.Errors, other.Errors...)
	r.ErrorCount += other.ErrorCount
	r.WarningCount += other.WarningCount
	r.IsValid = r.IsValid && other.IsValid
}

// Err returns nil when valid, otherwise an error listing the fatal entries.
func (r *ValidationResult) Err() error {
	if r.IsValid {
		return nil
	}
	var errs []error
	for _, e := range r.Errors {
		if e.Severity == SeverityError {
			errs = append(errs, e)
		}
	}
	return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
}

// =============================================================================
// CONFIG VALIDATION
// =============================================================================

// ValidateConfig checks cfg without touching the file system.
func ValidateConfig(cfg *config.MainConfig) *ValidationResult {
	r := newResult()

	if _, err := cfg.Window.Parse(); err != nil {
		r.add(SeverityError, "window", cfg.Window.Start+" .. "+cfg.Window.End, "window", "%v", err)
	}

	switch cfg.CachePolicy {
	case config.CacheExists, config.CacheFingerprint, config.CacheAlways:
	default:
		r.add(SeverityError, "cache_policy", cfg.CachePolicy, "enum", "must be exists, fingerprint or always")
	}
	if cfg.CachePolicy == config.CacheFingerprint && cfg.HistoryPath() == "" {
		r.add(SeverityWarning, "cache_policy", cfg.CachePolicy, "history",
			"fingerprint caching needs history_db; every run will regenerate")
	}

	switch cfg.UnknownCaller.Policy {
	case config.UnknownBucket, config.UnknownPassthrough, config.UnknownDrop:
	default:
		r.add(SeverityError, "unknown_caller.policy", cfg.UnknownCaller.Policy, "enum", "must be bucket, passthrough or drop")
	}

	if _, err := logging.ParseLevel(cfg.LogLevel); err != nil {
		r.add(SeverityError, "log_level", cfg.LogLevel, "enum", "must be debug, info, warn or error")
	}

	for _, n := range cfg.ValidDestinationLengths {
		if n <= 0 {
			r.add(SeverityError, "valid_destination_lengths", fmt.Sprint(n), "positive", "lengths must be positive")
		}
	}

	if strings.ContainsAny(cfg.LedgerPrefix, `/\`) {
		r.add(SeverityError, "ledger_prefix", cfg.LedgerPrefix, "filename", "must not contain path separators")
	}

	if cfg.Watch.Debounce < 0 {
		r.add(SeverityError, "watch.debounce", cfg.Watch.Debounce.String(), "positive", "must not be negative")
	}

	validateCombiner(r, cfg)
	validateSource(r, "pbx", cfg.PBX)
	validateSource(r, "provider", cfg.Provider)

	return r
}

func validateCombiner(r *ValidationResult, cfg *config.MainConfig) {
	c := cfg.Combiner
	if len(c.Inputs) != 2 {
		r.add(SeverityError, "combiner.inputs", strings.Join(c.Inputs, ", "), "count", "exactly two raw exports are combined")
	}
	idx := c.TimestampColumn()
	if idx < 0 {
		r.add(SeverityError, "combiner.timestamp_index", fmt.Sprint(idx), "positive", "must not be negative")
		return
	}

	// The combined file is read by the provider stage; when it is addressed
	// positionally the combiner's timestamp column should be the one the
	// provider filters on.
	p := cfg.Provider.CSVSettings
	if !p.HasHeader() && idx < len(p.Columns) && p.Columns[idx] != cfg.Provider.TimestampColumn {
		r.add(SeverityWarning, "combiner.timestamp_index", fmt.Sprint(idx), "consistency",
			"points at provider column %q, but the provider timestamp column is %q", p.Columns[idx], cfg.Provider.TimestampColumn)
	}
}

func validateSource(r *ValidationResult, name string, sc config.SourceConfig) {
	if sc.Input == "" {
		r.add(SeverityError, name+".input", "", "required", "input file is required")
	}
	if sc.Output == "" {
		r.add(SeverityError, name+".output", "", "required", "output file is required")
	}

	cols := map[string]string{
		"caller_column":      sc.CallerColumn,
		"destination_column": sc.DestinationColumn,
		"timestamp_column":   sc.TimestampColumn,
		"duration_column":    sc.DurationColumn,
	}
	keys := make([]string, 0, len(cols))
	for k := range cols {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if cols[k] == "" {
			r.add(SeverityError, name+"."+k, "", "required", "column name is required")
			continue
		}
		if !sc.CSVSettings.HasHeader() && !slices.Contains(sc.CSVSettings.Columns, cols[k]) {
			r.add(SeverityError, name+"."+k, cols[k], "columns", "not among the positional columns of the headerless input")
		}
	}

	if !sc.CSVSettings.HasHeader() && len(sc.CSVSettings.Columns) == 0 {
		r.add(SeverityError, name+".csv_settings.columns", "", "required", "a headerless input needs positional column names")
	}
}

// =============================================================================
// INPUT VALIDATION
// =============================================================================

// ValidateInputs checks the files cfg points at: raw exports exist, present
// sources expose their declared columns, and mapping files load.
func ValidateInputs(cfg *config.MainConfig) *ValidationResult {
	r := newResult()

	combined := cfg.Path(cfg.Provider.Input)
	for i, in := range cfg.Combiner.Inputs {
		path := cfg.Path(in)
		rows, err := csvparser.ReadAll(path, cfg.Combiner.Delimiter)
		if errors.Is(err, os.ErrNotExist) {
			if utils.FileExists(combined) {
				r.add(SeverityWarning, "combiner.inputs", path, "exists", "missing; the existing combined export will be reused")
			} else {
				r.add(SeverityError, "combiner.inputs", path, "exists", "raw export not found")
			}
			continue
		}
		if err != nil {
			r.add(SeverityError, "combiner.inputs", path, "readable", "%v", err)
			continue
		}
		// The second export carries a header row.
		if i == 1 && len(rows) > 0 {
			rows = rows[1:]
		}
		if len(rows) > 0 && len(rows[0]) <= cfg.Combiner.TimestampColumn() {
			r.add(SeverityError, "combiner.inputs", path, "columns",
				"first row has %d columns, timestamp column is %d", len(rows[0]), cfg.Combiner.TimestampColumn())
		}
	}

	validateSourceInput(r, cfg, "pbx", cfg.PBX)
	// Otherwise the combined export is produced during the run.
	if utils.FileExists(combined) {
		validateSourceInput(r, cfg, "provider", cfg.Provider)
	}

	for _, src := range []struct {
		name string
		file string
	}{{"pbx", cfg.PBX.MappingFile}, {"provider", cfg.Provider.MappingFile}} {
		if src.file == "" {
			continue
		}
		if _, err := mapping.ReadFile(cfg.Path(src.file)); err != nil {
			r.add(SeverityError, src.name+".mapping_file", src.file, "readable", "%v", err)
		}
	}

	return r
}

func validateSourceInput(r *ValidationResult, cfg *config.MainConfig, name string, sc config.SourceConfig) {
	path := cfg.Path(sc.Input)
	if !utils.FileExists(path) {
		r.add(SeverityWarning, name+".input", path, "exists", "not found; the %s summary will be skipped", name)
		return
	}

	data, err := csvparser.Parse(path, sc.CSVSettings)
	if err != nil {
		r.add(SeverityError, name+".input", path, "readable", "%v", err)
		return
	}
	for _, col := range []string{sc.CallerColumn, sc.DestinationColumn, sc.TimestampColumn, sc.DurationColumn} {
		if _, err := data.ColumnIndex(col); err != nil {
			r.add(SeverityError, name+".input", path, "columns", "%v", err)
		}
	}
}

// =============================================================================
// OUTPUT
// =============================================================================

// FormatErrors formats validation errors for display or logging.
//
// PARAMETERS:
//   - errors: The validation errors to format.
//
// RETURNS:
//   - A formatted string containing all errors.
func FormatErrors(errors []*ValidationError) string {
	if len(errors) == 0 {
		return "No validation errors."
	}

	var builder strings.Builder

	builder.WriteString(fmt.Sprintf("Validation completed with %d problem(s):\n\n", len(errors)))

	for i, err := range errors {
		builder.WriteString(fmt.Sprintf("%d. %s\n", i+1, err.Error()))
	}

	return builder.String()
}
