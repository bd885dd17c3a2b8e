package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultMatchesOriginalReport(t *testing.T) {
	cfg := Default()

	w, err := cfg.Window.Parse()
	if err != nil {
		t.Fatal(err)
	}
	if got := w.String(); got != "2024-05-23 11:00:00 .. 2024-05-23 23:59:00" {
		t.Fatalf("window = %s", got)
	}
	if cfg.PBX.Input != "pbx.csv" || cfg.PBX.Output != "xau.csv" {
		t.Fatalf("unexpected pbx paths: %+v", cfg.PBX)
	}
	if cfg.Provider.Input != "combined.csv" || cfg.Provider.Output != "xvapro.csv" {
		t.Fatalf("unexpected provider paths: %+v", cfg.Provider)
	}
	if cfg.PBX.NameMapping["CNAME"] != "AGENT NAME" || cfg.Provider.NameMapping["EXT NUM"] != "AGENT NAME" {
		t.Fatalf("unexpected default mappings")
	}
	if cfg.Combiner.TimestampColumn() != 2 {
		t.Fatalf("timestamp index = %d", cfg.Combiner.TimestampColumn())
	}
	if cfg.Provider.CSVSettings.HasHeader() {
		t.Fatalf("combined provider export must default to headerless")
	}
	if !cfg.PBX.CSVSettings.HasHeader() {
		t.Fatalf("pbx export must default to having a header")
	}
	if cfg.Provider.CSVSettings.Columns[cfg.Combiner.TimestampColumn()] != cfg.Provider.TimestampColumn {
		t.Fatalf("combiner timestamp index does not point at the provider timestamp column")
	}
}

func TestLoadMainConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlDoc := strings.Join([]string{
		"window:",
		"  start: \"2024-06-01 08:00:00\"",
		"  end: \"2024-06-01 17:00:00\"",
		"cache_policy: fingerprint",
		"combiner:",
		"  timestamp_index: 0",
		"pbx:",
		"  name_mapping:",
		"    \"101\": \"Alice\"",
		"unknown_caller:",
		"  policy: drop",
		"watch:",
		"  debounce: 500ms",
	}, "\n")
	if err := os.WriteFile(path, []byte(yamlDoc), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadMainConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.BaseDir != dir {
		t.Fatalf("base dir = %q, want %q", cfg.BaseDir, dir)
	}
	if cfg.CachePolicy != CacheFingerprint {
		t.Fatalf("cache policy = %q", cfg.CachePolicy)
	}
	if cfg.Combiner.TimestampColumn() != 0 {
		t.Fatalf("explicit zero timestamp index lost")
	}
	if cfg.PBX.NameMapping["101"] != "Alice" || len(cfg.PBX.NameMapping) != 1 {
		t.Fatalf("mapping = %v", cfg.PBX.NameMapping)
	}
	if cfg.UnknownCaller.Policy != UnknownDrop || cfg.UnknownCaller.Label != "UNKNOWN" {
		t.Fatalf("unknown caller = %+v", cfg.UnknownCaller)
	}
	if cfg.Watch.Debounce != 500*time.Millisecond {
		t.Fatalf("debounce = %v", cfg.Watch.Debounce)
	}
	if got := cfg.Path("pbx.csv"); got != filepath.Join(dir, "pbx.csv") {
		t.Fatalf("Path = %q", got)
	}
	if got := cfg.Path("/abs/file.csv"); got != "/abs/file.csv" {
		t.Fatalf("absolute path rewritten: %q", got)
	}
}

func TestLoadMainConfigRejectsInvertedWindow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	doc := "window:\n  start: \"2024-06-02 00:00:00\"\n  end: \"2024-06-01 00:00:00\"\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadMainConfig(path); err == nil {
		t.Fatal("expected error for end before start")
	}
}

func TestLoadMainConfigMissingFile(t *testing.T) {
	if _, err := LoadMainConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error")
	}
}

func TestHistoryPath(t *testing.T) {
	cfg := Default()
	cfg.BaseDir = "/data"
	if got := cfg.HistoryPath(); got != filepath.Join("/data", "talktime.db") {
		t.Fatalf("history path = %q", got)
	}
	cfg.HistoryDB = HistoryOff
	if got := cfg.HistoryPath(); got != "" {
		t.Fatalf("history should be disabled, got %q", got)
	}

	cfg.OutputDir = "reports"
	if got := cfg.OutputPath("ledger.csv"); got != filepath.Join("/data", "reports", "ledger.csv") {
		t.Fatalf("output path = %q", got)
	}
}
