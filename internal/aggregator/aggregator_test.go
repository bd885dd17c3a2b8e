package aggregator

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/asayoyaasa/4PSA-FreePBX-CDR-Generator/internal/config"
	"github.com/asayoyaasa/4PSA-FreePBX-CDR-Generator/internal/csvparser"
	"github.com/asayoyaasa/4PSA-FreePBX-CDR-Generator/internal/mapping"
	"github.com/asayoyaasa/4PSA-FreePBX-CDR-Generator/internal/types"
)

func testFilter(t *testing.T) Filter {
	t.Helper()
	w, err := config.Default().Window.Parse()
	if err != nil {
		t.Fatal(err)
	}
	return Filter{Window: w, ValidLengths: []int{11, 12}}
}

func pbxSource(t *testing.T, content string, policy string) Source {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.BaseDir = dir
	if content != "" {
		if err := os.WriteFile(cfg.Path(cfg.PBX.Input), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	table, err := mapping.New(cfg.PBX.NameMapping, policy, "UNKNOWN")
	if err != nil {
		t.Fatal(err)
	}
	return NewSource("pbx", cfg, cfg.PBX, types.PBXSummaryLayout, table)
}

func readOutput(t *testing.T, path string) [][]string {
	t.Helper()
	rows, err := csvparser.ReadAll(path, ",")
	if err != nil {
		t.Fatal(err)
	}
	return rows
}

func TestRunPBXExample(t *testing.T) {
	src := pbxSource(t, "calldate,cnam,dst,billsec\n2024-05-23 12:00:00,CNAME,081234567890,125\n", config.UnknownBucket)

	res, err := Run(src, testFilter(t))
	if err != nil {
		t.Fatal(err)
	}
	if res.Skipped || res.Stats.Counted != 1 || res.Stats.Callers != 1 {
		t.Fatalf("result = %+v", res)
	}

	want := [][]string{
		{"Caller Name", "Total Calls", "Total Billsec (HH:MM:SS)", "First Call Timestamp", "Last Call Timestamp"},
		{"AGENT NAME", "1", "00:02:05", "2024-05-23 12:00:00", "2024-05-23 12:00:00"},
	}
	if got := readOutput(t, src.Output); !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestRunFiltersWindowAndDestination(t *testing.T) {
	lines := []string{
		"calldate,cnam,dst,billsec",
		"2024-05-23 11:00:00,CNAME,08123456789,10",   // window start, 11 digits
		"2024-05-23 23:59:00,CNAME,081234567890,20",  // window end, 12 digits
		"2024-05-23 10:59:59,CNAME,081234567890,40",  // before window
		"2024-05-24 00:00:00,CNAME,081234567890,80",  // after window
		"2024-05-23 12:00:00,CNAME,0812345678,160",   // 10 digits
		"2024-05-23 12:00:00,CNAME,0812345678901,320", // 13 digits
		"2024-05-23 12:00:00,CNAME,0812-3456789,640",  // not all digits
		"2024-05-23 12:00:00,CNAME,201,1280",          // extension
	}
	src := pbxSource(t, strings.Join(lines, "\n")+"\n", config.UnknownBucket)

	res, err := Run(src, testFilter(t))
	if err != nil {
		t.Fatal(err)
	}
	if res.Stats.Counted != 2 || res.Stats.OutsideWindow != 2 || res.Stats.InvalidDestination != 4 {
		t.Fatalf("stats = %+v", res.Stats)
	}

	rows := readOutput(t, src.Output)
	if len(rows) != 2 {
		t.Fatalf("rows = %v", rows)
	}
	if got := rows[1]; got[1] != "2" || got[2] != "00:00:30" || got[3] != "2024-05-23 11:00:00" || got[4] != "2024-05-23 23:59:00" {
		t.Fatalf("row = %v", got)
	}
}

func TestAggregateGroupInvariant(t *testing.T) {
	f := testFilter(t)
	at := func(s string) time.Time {
		ts, err := types.ParseTimestamp(s)
		if err != nil {
			t.Fatal(err)
		}
		return ts
	}
	records := []types.CallRecord{
		{CallerID: "B", Destination: "081234567890", Timestamp: at("2024-05-23 12:00:00"), Duration: time.Minute},
		{CallerID: "A", Destination: "081234567890", Timestamp: at("2024-05-23 13:00:00"), Duration: time.Minute},
		{CallerID: "B", Destination: "08123456789", Timestamp: at("2024-05-23 14:00:00"), Duration: 2 * time.Minute},
		{CallerID: "A", Destination: "0812", Timestamp: at("2024-05-23 15:00:00"), Duration: time.Hour},
		{CallerID: "B", Destination: "081234567890", Timestamp: at("2024-05-23 11:30:00"), Duration: 30 * time.Second},
	}

	summaries, stats := Aggregate(records, f)
	if stats.Counted != 4 || stats.InvalidDestination != 1 {
		t.Fatalf("stats = %+v", stats)
	}

	seen := map[string]bool{}
	for _, s := range summaries {
		if seen[s.CallerID] {
			t.Fatalf("caller %s appears twice", s.CallerID)
		}
		seen[s.CallerID] = true
	}
	if len(summaries) != 2 || summaries[0].CallerID != "A" || summaries[1].CallerID != "B" {
		t.Fatalf("summaries = %+v", summaries)
	}
	b := summaries[1]
	if b.TotalCalls != 3 || b.TotalDuration != 3*time.Minute+30*time.Second {
		t.Fatalf("B = %+v", b)
	}
	if types.FormatTimestamp(b.FirstCall) != "2024-05-23 11:30:00" || types.FormatTimestamp(b.LastCall) != "2024-05-23 14:00:00" {
		t.Fatalf("B bounds = %+v", b)
	}
}

func TestRunEmptyResultWritesHeaderOnly(t *testing.T) {
	src := pbxSource(t, "calldate,cnam,dst,billsec\n2024-01-01 12:00:00,CNAME,081234567890,125\n", config.UnknownBucket)
	if _, err := Run(src, testFilter(t)); err != nil {
		t.Fatal(err)
	}
	rows := readOutput(t, src.Output)
	if len(rows) != 1 || !reflect.DeepEqual(rows[0], types.PBXSummaryLayout.Headers()) {
		t.Fatalf("rows = %v", rows)
	}
}

func TestRunMissingInputIsSkipped(t *testing.T) {
	src := pbxSource(t, "", config.UnknownBucket)
	res, err := Run(src, testFilter(t))
	if err != nil {
		t.Fatal(err)
	}
	if !res.Skipped {
		t.Fatal("expected skip")
	}
	if _, err := os.Stat(src.Output); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("output should not exist, stat err = %v", err)
	}
}

func TestRunMalformedTimestampAborts(t *testing.T) {
	src := pbxSource(t, "calldate,cnam,dst,billsec\nyesterday,CNAME,081234567890,125\n", config.UnknownBucket)
	if _, err := Run(src, testFilter(t)); !errors.Is(err, types.ErrMalformedTimestamp) {
		t.Fatalf("expected ErrMalformedTimestamp, got %v", err)
	}
}

func TestRunMalformedDurationAborts(t *testing.T) {
	src := pbxSource(t, "calldate,cnam,dst,billsec\n2024-05-23 12:00:00,CNAME,081234567890,abc\n", config.UnknownBucket)
	if _, err := Run(src, testFilter(t)); !errors.Is(err, types.ErrMalformedNumber) {
		t.Fatalf("expected ErrMalformedNumber, got %v", err)
	}
}

func TestRunMissingColumn(t *testing.T) {
	src := pbxSource(t, "calldate,cnam,billsec\n2024-05-23 12:00:00,CNAME,1\n", config.UnknownBucket)
	if _, err := Run(src, testFilter(t)); !errors.Is(err, types.ErrMissingColumn) {
		t.Fatalf("expected ErrMissingColumn, got %v", err)
	}
}

func TestUnknownCallerPolicies(t *testing.T) {
	content := "calldate,cnam,dst,billsec\n2024-05-23 12:00:00,CNAME,081234567890,60\n2024-05-23 12:05:00,GHOST,081234567890,60\n"

	cases := map[string][]string{
		config.UnknownBucket:      {"AGENT NAME", "UNKNOWN"},
		config.UnknownPassthrough: {"AGENT NAME", "GHOST"},
		config.UnknownDrop:        {"AGENT NAME"},
	}
	for policy, want := range cases {
		src := pbxSource(t, content, policy)
		res, err := Run(src, testFilter(t))
		if err != nil {
			t.Fatal(err)
		}
		if res.Stats.Unmapped != 1 {
			t.Errorf("%s: unmapped = %d", policy, res.Stats.Unmapped)
		}
		var got []string
		for _, row := range readOutput(t, src.Output)[1:] {
			got = append(got, row[0])
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("%s: callers = %v, want %v", policy, got, want)
		}
	}
}

func TestRunProviderHeaderless(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.BaseDir = dir
	content := "EXT NUM,081234567890,2024-05-23 12:00:00,100\nEXT NUM,08123456789,2024-05-23 13:00:00,200\n"
	if err := os.WriteFile(filepath.Join(dir, "combined.csv"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	table, err := mapping.New(cfg.Provider.NameMapping, config.UnknownBucket, "UNKNOWN")
	if err != nil {
		t.Fatal(err)
	}
	src := NewSource("provider", cfg, cfg.Provider, types.ProviderSummaryLayout, table)

	if _, err := Run(src, testFilter(t)); err != nil {
		t.Fatal(err)
	}
	want := [][]string{
		types.ProviderSummaryLayout.Headers(),
		{"AGENT NAME", "2", "2024-05-23 12:00:00", "2024-05-23 13:00:00", "00:05:00"},
	}
	if got := readOutput(t, src.Output); !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestValidDestination(t *testing.T) {
	lengths := []int{11, 12}
	cases := map[string]bool{
		"08123456789":   true,
		"081234567890":  true,
		"0812345678":    false,
		"0812345678901": false,
		"+6281234567":   false,
		"":              false,
		" 08123456789 ": true,
	}
	for in, want := range cases {
		if got := ValidDestination(in, lengths); got != want {
			t.Errorf("ValidDestination(%q) = %v, want %v", in, got, want)
		}
	}
}
