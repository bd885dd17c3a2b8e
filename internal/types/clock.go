package types

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// FormatClock renders d as zero-padded HH:MM:SS where HH counts total hours,
// so a day and a half is "36:00:00". Fractional seconds are truncated.
func FormatClock(d time.Duration) string {
	secs := int64(d / time.Second)
	if secs < 0 {
		secs = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, (secs/60)%60, secs%60)
}

// ParseClock is the inverse of FormatClock. It also accepts an optional
// "N days " prefix as written by spreadsheet and dataframe exports.
func ParseClock(s string) (time.Duration, error) {
	raw := s
	s = strings.TrimSpace(s)

	var days int64
	if fields := strings.Fields(s); len(fields) == 3 && strings.HasPrefix(fields[1], "day") {
		n, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("%w: duration %q", ErrMalformedNumber, raw)
		}
		days = n
		s = fields[2]
	}

	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("%w: duration %q", ErrMalformedNumber, raw)
	}
	h, errH := strconv.ParseInt(parts[0], 10, 64)
	m, errM := strconv.ParseInt(parts[1], 10, 64)
	sec, errS := strconv.ParseInt(parts[2], 10, 64)
	if errH != nil || errM != nil || errS != nil || h < 0 || m < 0 || m > 59 || sec < 0 || sec > 59 {
		return 0, fmt.Errorf("%w: duration %q", ErrMalformedNumber, raw)
	}

	if days > maxSeconds/86400 || h > maxSeconds/3600 {
		return 0, fmt.Errorf("%w: duration %q out of range", ErrMalformedNumber, raw)
	}
	total := days*86400 + h*3600 + m*60 + sec
	if total < 0 || total > maxSeconds {
		return 0, fmt.Errorf("%w: duration %q out of range", ErrMalformedNumber, raw)
	}
	return time.Duration(total) * time.Second, nil
}

// maxSeconds is the largest whole-second count a time.Duration can hold.
const maxSeconds = math.MaxInt64 / int64(time.Second)

// ParseSeconds parses a raw CDR duration column. Whole and decimal seconds are
// accepted; an empty cell counts as zero. Negative values are rejected.
func ParseSeconds(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("%w: negative duration %q", ErrMalformedNumber, s)
		}
		if n > maxSeconds {
			return 0, fmt.Errorf("%w: duration %q out of range", ErrMalformedNumber, s)
		}
		return time.Duration(n) * time.Second, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: duration %q", ErrMalformedNumber, s)
	}
	if f >= float64(math.MaxInt64)/float64(time.Second) {
		return 0, fmt.Errorf("%w: duration %q out of range", ErrMalformedNumber, s)
	}
	return time.Duration(f * float64(time.Second)), nil
}
