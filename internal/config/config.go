// =============================================================================
// talktime - Configuration Module
// =============================================================================
//
// This module loads the run configuration from a YAML file. Every setting has
// a default, and the defaults reproduce the original report constants, so an
// absent config file still yields a runnable pipeline.
//
// CONFIGURATION SECTIONS:
//   window    : inclusive reporting interval
//   combiner  : the two raw provider exports and the sentinel filter
//   pbx       : PBX export columns, output path and caller name mapping
//   provider  : combined provider export columns, output and number mapping
//   (root)    : ledger naming, cache policy, history DB, logging
//
// =============================================================================

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/asayoyaasa/4PSA-FreePBX-CDR-Generator/internal/types"
)

// =============================================================================
// ENUMERATED SETTINGS
// =============================================================================

// Cache policies decide whether a cacheable stage may be skipped.
const (
	CacheExists      = "exists"
	CacheFingerprint = "fingerprint"
	CacheAlways      = "always"
)

// Unknown-caller policies decide what happens to identities missing from the
// mapping table.
const (
	UnknownBucket      = "bucket"
	UnknownPassthrough = "passthrough"
	UnknownDrop        = "drop"
)

// HistoryOff as history_db disables the run history store.
const HistoryOff = "off"

// =============================================================================
// MAIN CONFIGURATION STRUCTURE
// =============================================================================

// MainConfig holds the whole run configuration.
type MainConfig struct {
	// BaseDir anchors every relative path below. Default: "."
	BaseDir string `yaml:"base_dir"`

	// Window is the inclusive reporting interval.
	Window WindowConfig `yaml:"window"`

	// LedgerPrefix is the first part of the ledger file name:
	// <prefix>_tanggal_<DD> <HH_MM_SS>.csv. Default: "talktime"
	LedgerPrefix string `yaml:"ledger_prefix"`

	// OutputDir is where the ledger is written. Default: "."
	OutputDir string `yaml:"output_dir"`

	// ArchiveDir receives a dated copy of every ledger when set.
	ArchiveDir string `yaml:"archive_dir"`

	// XLSXExport also writes the ledger as an .xlsx workbook.
	XLSXExport bool `yaml:"xlsx_export"`

	// CachePolicy is one of "exists", "fingerprint" or "always".
	// Default: "exists"
	CachePolicy string `yaml:"cache_policy"`

	// HistoryDB is the SQLite file recording runs and stage fingerprints.
	// "off" disables history. Default: "talktime.db"
	HistoryDB string `yaml:"history_db"`

	// LogFile additionally receives log output when set.
	LogFile string `yaml:"log_file"`

	// LogLevel is one of "debug", "info", "warn", "error". Default: "info"
	LogLevel string `yaml:"log_level"`

	// ValidDestinationLengths lists accepted digit counts of a dialled
	// number. Default: [11, 12]
	ValidDestinationLengths []int `yaml:"valid_destination_lengths"`

	// UnknownCaller controls identities absent from the mapping tables.
	UnknownCaller UnknownCallerConfig `yaml:"unknown_caller"`

	Combiner CombinerConfig `yaml:"combiner"`
	PBX      SourceConfig   `yaml:"pbx"`
	Provider SourceConfig   `yaml:"provider"`

	Watch WatchConfig `yaml:"watch"`
}

// WindowConfig holds the reporting interval as written in the file.
type WindowConfig struct {
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

// Parse converts the configured bounds to a types.Window.
func (w WindowConfig) Parse() (types.Window, error) {
	start, err := types.ParseTimestamp(w.Start)
	if err != nil {
		return types.Window{}, fmt.Errorf("window start: %w", err)
	}
	end, err := types.ParseTimestamp(w.End)
	if err != nil {
		return types.Window{}, fmt.Errorf("window end: %w", err)
	}
	if end.Before(start) {
		return types.Window{}, fmt.Errorf("window end %s is before start %s", w.End, w.Start)
	}
	return types.Window{Start: start, End: end}, nil
}

// UnknownCallerConfig configures the unmapped identity policy.
type UnknownCallerConfig struct {
	// Policy is "bucket", "passthrough" or "drop". Default: "bucket"
	Policy string `yaml:"policy"`

	// Label names the bucket under the "bucket" policy. Default: "UNKNOWN"
	Label string `yaml:"label"`
}

// CombinerConfig configures the raw provider combiner.
type CombinerConfig struct {
	// Inputs are the two raw exports. The first has no header row, the
	// second has one. Default: ["vapro.csv", "mapro.csv"]
	Inputs []string `yaml:"inputs"`

	// TimestampIndex is the zero-based column holding the call timestamp.
	// Default: 2
	TimestampIndex *int `yaml:"timestamp_index"`

	// Sentinels are timestamp values marking an invalid row.
	// Default: ["0000-00-00 00:00:00", "0000-00-00"]
	Sentinels []string `yaml:"sentinels"`

	// Delimiter of the raw exports. Default: ","
	Delimiter string `yaml:"delimiter"`
}

// TimestampColumn returns the configured timestamp index.
func (c CombinerConfig) TimestampColumn() int {
	if c.TimestampIndex == nil {
		return 2
	}
	return *c.TimestampIndex
}

// SourceConfig describes one CDR source feeding an aggregator.
type SourceConfig struct {
	// Input is the export to aggregate. A missing input skips the source.
	Input string `yaml:"input"`

	// Output is the per-caller summary file.
	Output string `yaml:"output"`

	CallerColumn      string `yaml:"caller_column"`
	DestinationColumn string `yaml:"destination_column"`
	TimestampColumn   string `yaml:"timestamp_column"`
	DurationColumn    string `yaml:"duration_column"`

	// NameMapping translates raw identity codes to display names.
	NameMapping map[string]string `yaml:"name_mapping"`

	// MappingFile loads additional mappings from an .xlsx or .csv file
	// (column A code, column B name, first row header). Inline entries in
	// NameMapping win over the file.
	MappingFile string `yaml:"mapping_file"`

	CSVSettings CSVSettings `yaml:"csv_settings"`
}

// CSVSettings contains settings for parsing a CDR export.
type CSVSettings struct {
	// Delimiter separates fields. Accepts ",", ";", "|", "tab". Default: ","
	Delimiter string `yaml:"delimiter"`

	// Headerless marks files without a header row. Columns then names the
	// fields by position. Unset means the file has a header, except for the
	// provider export which the combiner always writes headerless.
	Headerless *bool `yaml:"headerless"`

	// Columns are positional names used when the file is headerless.
	Columns []string `yaml:"columns"`
}

// HasHeader reports whether the first row of the file is a header.
func (s CSVSettings) HasHeader() bool {
	return s.Headerless == nil || !*s.Headerless
}

// WatchConfig configures the watch command.
type WatchConfig struct {
	// Debounce is the quiet period after the last change before a run.
	// Default: 2s
	Debounce time.Duration `yaml:"debounce"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns the configuration of the original report: the
// 2024-05-23 window, the pbx.csv / vapro.csv / mapro.csv inputs and the
// placeholder agent mappings.
func Default() *MainConfig {
	cfg := &MainConfig{
		Window: WindowConfig{
			Start: "2024-05-23 11:00:00",
			End:   "2024-05-23 23:59:00",
		},
	}
	cfg.PBX.NameMapping = map[string]string{"CNAME": "AGENT NAME"}
	cfg.Provider.NameMapping = map[string]string{"EXT NUM": "AGENT NAME"}
	applyMainConfigDefaults(cfg)
	return cfg
}

// applyMainConfigDefaults sets default values for any unset option.
func applyMainConfigDefaults(config *MainConfig) {
	if config.BaseDir == "" {
		config.BaseDir = "."
	}
	if config.LedgerPrefix == "" {
		config.LedgerPrefix = "talktime"
	}
	if config.OutputDir == "" {
		config.OutputDir = "."
	}
	if config.CachePolicy == "" {
		config.CachePolicy = CacheExists
	}
	if config.HistoryDB == "" {
		config.HistoryDB = "talktime.db"
	}
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
	if len(config.ValidDestinationLengths) == 0 {
		config.ValidDestinationLengths = []int{11, 12}
	}
	if config.UnknownCaller.Policy == "" {
		config.UnknownCaller.Policy = UnknownBucket
	}
	if config.UnknownCaller.Label == "" {
		config.UnknownCaller.Label = "UNKNOWN"
	}
	if config.Watch.Debounce == 0 {
		config.Watch.Debounce = 2 * time.Second
	}

	// Combiner.
	if len(config.Combiner.Inputs) == 0 {
		config.Combiner.Inputs = []string{"vapro.csv", "mapro.csv"}
	}
	if len(config.Combiner.Sentinels) == 0 {
		config.Combiner.Sentinels = []string{"0000-00-00 00:00:00", "0000-00-00"}
	}
	if config.Combiner.Delimiter == "" {
		config.Combiner.Delimiter = ","
	}

	// PBX export.
	pbx := &config.PBX
	setDefault(&pbx.Input, "pbx.csv")
	setDefault(&pbx.Output, "xau.csv")
	setDefault(&pbx.CallerColumn, "cnam")
	setDefault(&pbx.DestinationColumn, "dst")
	setDefault(&pbx.TimestampColumn, "calldate")
	setDefault(&pbx.DurationColumn, "billsec")
	setDefault(&pbx.CSVSettings.Delimiter, ",")

	// Combined provider export. The combiner writes it without a header,
	// so its columns are named by position.
	prov := &config.Provider
	setDefault(&prov.Input, "combined.csv")
	setDefault(&prov.Output, "xvapro.csv")
	setDefault(&prov.CallerColumn, "From number")
	setDefault(&prov.DestinationColumn, "To number")
	setDefault(&prov.TimestampColumn, "Call initiated")
	setDefault(&prov.DurationColumn, "Call duration")
	setDefault(&prov.CSVSettings.Delimiter, ",")
	if prov.CSVSettings.Headerless == nil {
		headerless := true
		prov.CSVSettings.Headerless = &headerless
	}
	if !prov.CSVSettings.HasHeader() && len(prov.CSVSettings.Columns) == 0 {
		prov.CSVSettings.Columns = []string{"From number", "To number", "Call initiated", "Call duration"}
	}
}

func setDefault(field *string, value string) {
	if *field == "" {
		*field = value
	}
}

// =============================================================================
// CONFIGURATION LOADING
// =============================================================================

// LoadMainConfig loads the configuration from a YAML file, applies defaults
// and checks that the window parses.
func LoadMainConfig(configPath string) (*MainConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config MainConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// A relative base_dir is taken relative to the config file itself.
	if config.BaseDir != "" && !filepath.IsAbs(config.BaseDir) {
		config.BaseDir = filepath.Join(filepath.Dir(configPath), config.BaseDir)
	}
	if config.BaseDir == "" {
		config.BaseDir = filepath.Dir(configPath)
	}
	if config.Window.Start == "" && config.Window.End == "" {
		config.Window = Default().Window
	}

	applyMainConfigDefaults(&config)

	if _, err := config.Window.Parse(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// HistoryPath returns the resolved history database path, or "" when history
// is switched off.
func (c *MainConfig) HistoryPath() string {
	if c.HistoryDB == HistoryOff {
		return ""
	}
	return c.Path(c.HistoryDB)
}

// OutputPath places a file name in the output directory.
func (c *MainConfig) OutputPath(name string) string {
	return c.Path(filepath.Join(c.OutputDir, name))
}

// Path resolves p against BaseDir.
func (c *MainConfig) Path(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.BaseDir, p)
}
