package types

import "errors"

var (
	// ErrMalformedTimestamp is returned when a timestamp cell matches none of
	// the accepted layouts.
	ErrMalformedTimestamp = errors.New("malformed timestamp")

	// ErrMalformedNumber is returned for durations and counts that are not
	// non-negative numbers.
	ErrMalformedNumber = errors.New("malformed number")

	// ErrMissingColumn is returned when a file lacks a column its layout or
	// source configuration requires.
	ErrMissingColumn = errors.New("missing column")
)
