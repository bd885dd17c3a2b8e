package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/asayoyaasa/4PSA-FreePBX-CDR-Generator/internal/types"
)

func writeFixture(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestRunHistoryValidate(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "config.yaml", `
window:
  start: "2024-05-23 11:00:00"
  end: "2024-05-23 23:59:00"
log_level: error
pbx:
  name_mapping:
    CNAME: AGENT NAME
provider:
  name_mapping:
    EXT NUM: AGENT NAME
`)
	writeFixture(t, dir, "vapro.csv", "EXT NUM,081234567890,2024-05-23 12:00:00,100\n")
	writeFixture(t, dir, "mapro.csv", "From number,To number,Call initiated,Call duration\nEXT NUM,08123456789,2024-05-23 13:00:00,200\n")
	writeFixture(t, dir, "pbx.csv", "calldate,cnam,dst,billsec\n2024-05-23 12:00:00,CNAME,081234567890,125\n")
	cfgPath := filepath.Join(dir, "config.yaml")

	out, err := execute(t, "validate", "--config", cfgPath)
	if err != nil {
		t.Fatalf("validate: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Configuration is valid") {
		t.Fatalf("validate output:\n%s", out)
	}

	out, err = execute(t, "run", "--config", cfgPath)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	ledger := filepath.Join(dir, "talktime_tanggal_23 11_00_00.csv")
	if !strings.Contains(out, "AGENT NAME") || !strings.Contains(out, "00:07:05") || !strings.Contains(out, ledger) {
		t.Fatalf("run output:\n%s", out)
	}
	if _, err := os.Stat(ledger); err != nil {
		t.Fatal(err)
	}

	out, err = execute(t, "history", "--config", cfgPath)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out, "succeeded") {
		t.Fatalf("history output:\n%s", out)
	}
}

func TestRunRejectsBadCachePolicy(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "config.yaml", "cache_policy: sometimes\nhistory_db: \"off\"\n")

	if _, err := execute(t, "run", "--config", filepath.Join(dir, "config.yaml")); err == nil || !strings.Contains(err.Error(), "cache_policy") {
		t.Fatalf("expected cache_policy error, got %v", err)
	}
}

func TestPrintLedger(t *testing.T) {
	at := time.Date(2024, 5, 23, 12, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	printLedger(&buf, []types.CallerSummary{
		{CallerID: "AGENT NAME", TotalCalls: 5, TotalDuration: 15 * time.Minute, FirstCall: at, LastCall: at},
	})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %q", lines)
	}
	if !strings.HasPrefix(lines[0], "Caller ID") || !strings.Contains(lines[1], "00:15:00") {
		t.Fatalf("table = %q", buf.String())
	}
	// Columns are aligned: the second column starts at the same offset.
	if strings.Index(lines[0], "Total Calls") != strings.Index(lines[1], "5") {
		t.Fatalf("columns not aligned:\n%s", buf.String())
	}
}
