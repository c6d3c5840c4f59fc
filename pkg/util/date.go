package util

import (
    "strconv"
    "strings"
    "time"
)

var dateLayouts = []string{"2006-01-02", "01/02/2006", "1/2/2006", "2006/01/02", "Jan 2, 2006"}

// ParseTime tries RFC3339, RFC3339Nano, and unix seconds. Returns (t, true) if any worked.
func ParseTime(s string) (time.Time, bool) {
    if s == "" {
        return time.Time{}, false
    }
    if t, err := time.Parse(time.RFC3339, s); err == nil {
        return t, true
    }
    if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
        return t, true
    }
    if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
        return time.Unix(ts, 0), true
    }
    return time.Time{}, false
}

// ParseTimeDefault parses time or returns default if empty/invalid.
func ParseTimeDefault(s string, def time.Time) time.Time {
    if t, ok := ParseTime(s); ok {
        return t
    }
    return def
}

// ParseDate accepts the date spellings used by disclosure feeds and any
// ParseTime format. The result is midnight UTC.
func ParseDate(s string) (time.Time, bool) {
    s = strings.TrimSpace(s)
    if s == "" {
        return time.Time{}, false
    }
    for _, layout := range dateLayouts {
        if t, err := time.Parse(layout, s); err == nil {
            return TruncateDay(t), true
        }
    }
    if t, ok := ParseTime(s); ok {
        return TruncateDay(t), true
    }
    return time.Time{}, false
}

// TruncateDay drops the clock part of t in UTC.
func TruncateDay(t time.Time) time.Time {
    y, m, d := t.UTC().Date()
    return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween counts whole calendar days from a to b. Negative when b is before a.
func DaysBetween(a, b time.Time) int {
    return int(TruncateDay(b).Sub(TruncateDay(a)).Hours() / 24)
}
