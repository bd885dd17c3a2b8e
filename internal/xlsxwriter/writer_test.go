package xlsxwriter

import (
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/asayoyaasa/4PSA-FreePBX-CDR-Generator/internal/types"
)

func TestWriteLedgerWorkbook(t *testing.T) {
	at := time.Date(2024, 5, 23, 12, 0, 0, 0, time.UTC)
	summaries := []types.CallerSummary{
		{CallerID: "AGENT NAME", TotalCalls: 5, TotalDuration: 15 * time.Minute, FirstCall: at, LastCall: at.Add(time.Hour)},
		{CallerID: "LONG", TotalCalls: 40, TotalDuration: 26 * time.Hour, FirstCall: at, LastCall: at},
	}
	path := filepath.Join(t.TempDir(), "out", "ledger.xlsx")

	if err := Write(path, summaries, DefaultOptions()); err != nil {
		t.Fatal(err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	if got := f.GetSheetList(); !reflect.DeepEqual(got, []string{DefaultSheet}) {
		t.Fatalf("sheets = %v", got)
	}
	rows, err := f.GetRows(DefaultSheet)
	if err != nil {
		t.Fatal(err)
	}
	want := [][]string{
		types.LedgerLayout.Headers(),
		{"AGENT NAME", "5", "00:15:00", "2024-05-23 12:00:00", "2024-05-23 13:00:00"},
		{"LONG", "40", "26:00:00", "2024-05-23 12:00:00", "2024-05-23 12:00:00"},
	}
	if !reflect.DeepEqual(rows, want) {
		t.Fatalf("got %v\nwant %v", rows, want)
	}
}

func TestWriteEmptyAndCustomSheet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pbx.xlsx")
	if err := Write(path, nil, Options{Sheet: "PBX", Layout: types.PBXSummaryLayout}); err != nil {
		t.Fatal(err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	rows, err := f.GetRows("PBX")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || !reflect.DeepEqual(rows[0], types.PBXSummaryLayout.Headers()) {
		t.Fatalf("rows = %v", rows)
	}
}
