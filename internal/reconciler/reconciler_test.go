package reconciler

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/asayoyaasa/4PSA-FreePBX-CDR-Generator/internal/csvparser"
	"github.com/asayoyaasa/4PSA-FreePBX-CDR-Generator/internal/types"
)

func writeCSV(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func fixtures(t *testing.T) (pbx, provider Input) {
	t.Helper()
	dir := t.TempDir()
	pbxPath := writeCSV(t, dir, "xau.csv",
		"Caller Name,Total Calls,Total Billsec (HH:MM:SS),First Call Timestamp,Last Call Timestamp",
		"ZED,1,00:00:30,2024-05-23 15:00:00,2024-05-23 15:00:00",
		"X,2,00:10:00,2024-05-23 12:00:00,2024-05-23 14:00:00",
	)
	providerPath := writeCSV(t, dir, "xvapro.csv",
		"From Number,Total Calls,First Call Timestamp,Last Call Timestamp,Total Call Duration (HH:MM:SS)",
		"X,3,2024-05-23 11:30:00,2024-05-23 13:00:00,00:05:00",
		"ALPHA,1,2024-05-23 20:00:00,2024-05-23 20:00:00,01:00:00",
	)
	return Input{Path: pbxPath, Layout: types.PBXSummaryLayout},
		Input{Path: providerPath, Layout: types.ProviderSummaryLayout}
}

func TestReconcileCollapsesDuplicates(t *testing.T) {
	pbx, provider := fixtures(t)
	out := filepath.Join(t.TempDir(), "ledger.csv")

	if _, err := Reconcile(out, pbx, provider); err != nil {
		t.Fatal(err)
	}

	rows, err := csvparser.ReadAll(out, ",")
	if err != nil {
		t.Fatal(err)
	}
	want := [][]string{
		{"Caller ID", "Total Calls", "Total Talking Time", "First Call Time", "Last Call Time"},
		{"ALPHA", "1", "01:00:00", "2024-05-23 20:00:00", "2024-05-23 20:00:00"},
		{"X", "5", "00:15:00", "2024-05-23 11:30:00", "2024-05-23 14:00:00"},
		{"ZED", "1", "00:00:30", "2024-05-23 15:00:00", "2024-05-23 15:00:00"},
	}
	if !reflect.DeepEqual(rows, want) {
		t.Fatalf("got %v\nwant %v", rows, want)
	}
}

func TestReconcileIsCommutative(t *testing.T) {
	pbx, provider := fixtures(t)
	dir := t.TempDir()

	a, err := Reconcile(filepath.Join(dir, "a.csv"), pbx, provider)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Reconcile(filepath.Join(dir, "b.csv"), provider, pbx)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a.Rows, b.Rows) {
		t.Fatalf("order dependent result:\n%v\n%v", a.Rows, b.Rows)
	}

	da, _ := os.ReadFile(filepath.Join(dir, "a.csv"))
	db, _ := os.ReadFile(filepath.Join(dir, "b.csv"))
	if string(da) != string(db) {
		t.Fatal("ledger files differ")
	}
}

func TestReconcileEmptyInputs(t *testing.T) {
	dir := t.TempDir()
	pbx := writeCSV(t, dir, "xau.csv", strings.Join(types.PBXSummaryLayout.Headers(), ","))
	provider := writeCSV(t, dir, "xvapro.csv", strings.Join(types.ProviderSummaryLayout.Headers(), ","))
	out := filepath.Join(dir, "ledger.csv")

	res, err := Reconcile(out,
		Input{Path: pbx, Layout: types.PBXSummaryLayout},
		Input{Path: provider, Layout: types.ProviderSummaryLayout})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Rows) != 0 {
		t.Fatalf("rows = %v", res.Rows)
	}
	rows, _ := csvparser.ReadAll(out, ",")
	if len(rows) != 1 {
		t.Fatalf("expected header only, got %v", rows)
	}
}

func TestReconcileMissingInput(t *testing.T) {
	pbx, _ := fixtures(t)
	missing := Input{Path: filepath.Join(t.TempDir(), "nope.csv"), Layout: types.ProviderSummaryLayout}

	_, err := Reconcile(filepath.Join(t.TempDir(), "ledger.csv"), pbx, missing)
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestReadSummaryWrongLayout(t *testing.T) {
	pbx, _ := fixtures(t)
	pbx.Layout = types.ProviderSummaryLayout
	if _, err := ReadSummary(pbx); !errors.Is(err, types.ErrMissingColumn) {
		t.Fatalf("expected ErrMissingColumn, got %v", err)
	}
}

func TestReadSummaryMalformedDuration(t *testing.T) {
	dir := t.TempDir()
	path := writeCSV(t, dir, "xau.csv",
		strings.Join(types.PBXSummaryLayout.Headers(), ","),
		"X,1,ten minutes,2024-05-23 12:00:00,2024-05-23 12:00:00",
	)
	if _, err := ReadSummary(Input{Path: path, Layout: types.PBXSummaryLayout}); !errors.Is(err, types.ErrMalformedNumber) {
		t.Fatalf("expected ErrMalformedNumber, got %v", err)
	}
}
