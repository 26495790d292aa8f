package http

import (
	"errors"
	nethttp "net/http"
	"strings"
	"time"
)

// legacyDateFormat is the layout older clients of the server send in
// If-Modified-Since.
const legacyDateFormat = "Mon Jan 02 2006 15:04:05 MST"

// ErrInvalidDate is returned by ParseHTTPDate for unrecognized input.
var ErrInvalidDate = errors.New("invalid HTTP date")

// zoneOffsets resolves the zone abbreviations accepted in the legacy layout
// when the local zone does not define them. Other abbreviations are read as
// UTC.
var zoneOffsets = map[string]int{
	"GMT": 0, "UTC": 0, "UT": 0, "Z": 0,
	"EST": -5, "EDT": -4,
	"CST": -6, "CDT": -5,
	"MST": -7, "MDT": -6,
	"PST": -8, "PDT": -7,
	"AKST": -9, "AKDT": -8,
	"HST": -10,
}

// FormatHTTPDate formats t in the RFC 1123 GMT form used in headers.
func FormatHTTPDate(t time.Time) string {
	return t.UTC().Format(nethttp.TimeFormat)
}

// ParseHTTPDate parses an HTTP date in RFC 1123, RFC 850 or ANSI C form, or
// in the legacy layout.
func ParseHTTPDate(s string) (time.Time, error) {
	if t, err := nethttp.ParseTime(s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(legacyDateFormat, s); err == nil {
		return resolveZone(t), nil
	}
	return time.Time{}, ErrInvalidDate
}

// resolveZone applies the offset of a zone abbreviation that time.Parse
// could only record with a zero offset.
func resolveZone(t time.Time) time.Time {
	name, offset := t.Zone()
	if offset != 0 {
		return t
	}
	hours, ok := zoneOffsets[strings.ToUpper(name)]
	if !ok || hours == 0 {
		return t
	}
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(),
		time.FixedZone(name, hours*60*60))
}
