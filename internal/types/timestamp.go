package types

import (
	"fmt"
	"strings"
	"time"
)

// TimestampLayout is the layout every output file uses for timestamps.
const TimestampLayout = "2006-01-02 15:04:05"

// timestampLayouts are tried in order when reading CDR exports. The exports
// carry no zone, so everything is read as UTC and compared naively.
var timestampLayouts = []string{
	TimestampLayout,
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04",
	"2006/01/02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses a CDR timestamp cell.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrMalformedTimestamp, s)
}

// FormatTimestamp renders t with TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

// Window is the inclusive reporting interval.
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t lies in [Start, End].
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

func (w Window) String() string {
	return FormatTimestamp(w.Start) + " .. " + FormatTimestamp(w.End)
}
