// =============================================================================
// talktime - Caller Mapping Module
// =============================================================================
//
// This module translates raw caller identity codes (PBX caller names and
// provider extension numbers) into the display names reports are keyed by.
// Tables come from inline YAML, an XLSX workbook or a two-column CSV file.
//
// =============================================================================

package mapping

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/asayoyaasa/4PSA-FreePBX-CDR-Generator/internal/config"
	"github.com/asayoyaasa/4PSA-FreePBX-CDR-Generator/internal/csvparser"
	"github.com/asayoyaasa/4PSA-FreePBX-CDR-Generator/internal/xlsxparser"
)

// Table is a read-only code to name mapping plus the policy applied to codes
// it does not contain.
type Table struct {
	names  map[string]string
	policy string
	label  string
}

// New builds a table from names. policy is one of the config.Unknown*
// constants; label names the bucket for config.UnknownBucket.
func New(names map[string]string, policy, label string) (*Table, error) {
	switch policy {
	case config.UnknownBucket, config.UnknownPassthrough, config.UnknownDrop:
	default:
		return nil, fmt.Errorf("unknown caller policy %q", policy)
	}
	if policy == config.UnknownBucket && label == "" {
		return nil, fmt.Errorf("unknown caller bucket needs a label")
	}

	t := &Table{names: make(map[string]string, len(names)), policy: policy, label: label}
	for code, name := range names {
		t.names[strings.TrimSpace(code)] = strings.TrimSpace(name)
	}
	return t, nil
}

// Load builds the table for a source: entries from the source's mapping file
// first, then its inline entries on top.
func Load(cfg *config.MainConfig, src config.SourceConfig) (*Table, error) {
	names := make(map[string]string)

	if src.MappingFile != "" {
		fromFile, err := ReadFile(cfg.Path(src.MappingFile))
		if err != nil {
			return nil, err
		}
		for k, v := range fromFile {
			names[k] = v
		}
	}
	for k, v := range src.NameMapping {
		names[k] = v
	}

	return New(names, cfg.UnknownCaller.Policy, cfg.UnknownCaller.Label)
}

// ReadFile reads a two-column mapping from an .xlsx workbook or a .csv file.
// The first row is a header.
func ReadFile(path string) (map[string]string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		m, err := xlsxparser.ParseMapping(path)
		if err != nil {
			return nil, fmt.Errorf("mapping file %s: %w", path, err)
		}
		return m, nil
	case ".csv":
		rows, err := csvparser.ReadAll(path, ",")
		if err != nil {
			return nil, fmt.Errorf("mapping file %s: %w", path, err)
		}
		m := make(map[string]string)
		for i, row := range rows {
			if i == 0 {
				continue
			}
			code, name := csvparser.Cell(row, 0), csvparser.Cell(row, 1)
			if code != "" && name != "" {
				m[code] = name
			}
		}
		return m, nil
	default:
		return nil, fmt.Errorf("mapping file %s: unsupported extension", path)
	}
}

// Lookup returns the mapped name of code without applying the policy.
func (t *Table) Lookup(code string) (string, bool) {
	name, ok := t.names[strings.TrimSpace(code)]
	return name, ok
}

// Resolve maps code to a display name. ok is false when the row should be
// dropped under the drop policy.
func (t *Table) Resolve(code string) (name string, ok bool) {
	code = strings.TrimSpace(code)
	if name, found := t.Lookup(code); found {
		return name, true
	}
	switch t.policy {
	case config.UnknownPassthrough:
		return code, true
	case config.UnknownDrop:
		return "", false
	default:
		return t.label, true
	}
}

// Len returns the number of mapped codes.
func (t *Table) Len() int { return len(t.names) }
