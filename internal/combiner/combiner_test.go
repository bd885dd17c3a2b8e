package combiner

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/asayoyaasa/4PSA-FreePBX-CDR-Generator/internal/csvparser"
)

func setup(t *testing.T, first, second string) Options {
	t.Helper()
	dir := t.TempDir()
	opts := Options{
		First:          filepath.Join(dir, "vapro.csv"),
		Second:         filepath.Join(dir, "mapro.csv"),
		Output:         filepath.Join(dir, "combined.csv"),
		TimestampIndex: 2,
		Sentinels:      []string{"0000-00-00 00:00:00", "0000-00-00"},
		Delimiter:      ",",
	}
	if err := os.WriteFile(opts.First, []byte(first), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(opts.Second, []byte(second), 0o644); err != nil {
		t.Fatal(err)
	}
	return opts
}

func TestCombineDropsSentinelRow(t *testing.T) {
	opts := setup(t,
		"100,081234567890,0000-00-00 00:00:00,10\n100,081234567890,2024-05-23 12:00:00,20\n",
		"From number,To number,Call initiated,Call duration\n",
	)

	res, err := Combine(opts)
	if err != nil {
		t.Fatal(err)
	}
	if res.Rows != 1 || res.Dropped != 1 {
		t.Fatalf("result = %+v", res)
	}

	got, err := csvparser.ReadAll(opts.Output, ",")
	if err != nil {
		t.Fatal(err)
	}
	want := [][]string{{"100", "081234567890", "2024-05-23 12:00:00", "20"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestCombineMergesAndSortsDescending(t *testing.T) {
	opts := setup(t,
		"a,0811111111111,2024-05-23 11:00:00,1\nb,0811111111111,2024-05-23 15:00:00,2\n",
		"From number,To number,Call initiated,Call duration\nc,0811111111111,2024-05-23 13:00:00,3\nd,0811111111111,0000-00-00,4\n",
	)

	res, err := Combine(opts)
	if err != nil {
		t.Fatal(err)
	}
	if res.FromEach != [2]int{2, 1} {
		t.Fatalf("from each = %v", res.FromEach)
	}

	got, err := csvparser.ReadAll(opts.Output, ",")
	if err != nil {
		t.Fatal(err)
	}
	var order []string
	for _, row := range got {
		order = append(order, row[0])
	}
	if !reflect.DeepEqual(order, []string{"b", "c", "a"}) {
		t.Fatalf("order = %v", order)
	}
	for _, row := range got {
		if row[0] == "From number" {
			t.Fatal("header of the second export leaked into the output")
		}
	}
}

func TestCombineMissingInput(t *testing.T) {
	opts := setup(t, "", "")
	opts.First = filepath.Join(t.TempDir(), "absent.csv")
	if _, err := Combine(opts); err == nil {
		t.Fatal("expected error for missing input")
	}
}

func TestCombineShortRow(t *testing.T) {
	opts := setup(t, "a,b\n", "h1,h2,h3\n")
	if _, err := Combine(opts); err == nil {
		t.Fatal("expected error for a row without a timestamp column")
	}
}

func TestCombineEmptyInputs(t *testing.T) {
	opts := setup(t, "", "From number,To number,Call initiated,Call duration\n")
	res, err := Combine(opts)
	if err != nil {
		t.Fatal(err)
	}
	if res.Rows != 0 {
		t.Fatalf("rows = %d", res.Rows)
	}
	b, err := os.ReadFile(opts.Output)
	if err != nil {
		t.Fatal(err)
	}
	if len(b) != 0 {
		t.Fatalf("expected empty output, got %q", b)
	}
}
