package core

import (
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// NormalizeDate truncates `t` to midnight in its location.
// Attendance dates are always compared at day granularity.
func NormalizeDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// ParseDate parses a YYYY-MM-DD value and normalizes it to local midnight.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(dateLayout, CleanString(s), time.Local)
	if err != nil {
		return time.Time{}, err
	}
	return NormalizeDate(t), nil
}

// FormatDate renders `t` as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(dateLayout)
}

// EndOfDay returns the last instant of the day `t` falls in.
func EndOfDay(t time.Time) time.Time {
	return NormalizeDate(t).Add(24*time.Hour - time.Nanosecond)
}
