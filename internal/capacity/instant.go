package capacity

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// layouts accepted for textual instants, tried in order.  Values without
// a zone are read as UTC.
var layouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseInstant normalises a request time value.  Clients send either a
// millisecond epoch ("1688169600000") or a date-time string; both end up
// as a UTC time.Time.
func ParseInstant(raw string) (time.Time, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return time.Time{}, fmt.Errorf("%w: empty value", ErrInvalidInstant)
	}
	if isNumeric(v) {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidInstant, raw)
		}
		return FromMillis(ms), nil
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, v, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidInstant, raw)
}

// ParseWindow parses both ends of a query window and checks from <= to.
func ParseWindow(fromRaw, toRaw string) (time.Time, time.Time, error) {
	from, err := ParseInstant(fromRaw)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := ParseInstant(toRaw)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if from.After(to) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %s is after %s", ErrInvalidRange, from.Format(time.RFC3339), to.Format(time.RFC3339))
	}
	return from, to, nil
}

// FromMillis converts a millisecond epoch to UTC.
func FromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

// Millis is the inverse of FromMillis.
func Millis(t time.Time) int64 { return t.UnixMilli() }

func isNumeric(s string) bool {
	if s[0] == '-' {
		s = s[1:]
	}
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
