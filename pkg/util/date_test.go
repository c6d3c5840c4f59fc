package util

import (
    "strconv"
    "testing"
    "time"
)

func TestParseTimeRFC3339(t *testing.T) {
    s := "2024-10-10T10:10:10Z"
    got, ok := ParseTime(s)
    if !ok {
        t.Fatalf("expected ok")
    }
    if got.UTC().Format(time.RFC3339) != s {
        t.Fatalf("unexpected time %v", got)
    }
}

func TestParseTimeUnix(t *testing.T) {
    ts := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC).Unix()
    got, ok := ParseTime(strconv.FormatInt(ts, 10))
    if !ok {
        t.Fatalf("expected ok")
    }
    if got.Unix() != ts {
        t.Fatalf("unexpected unix %v", got.Unix())
    }
}

func TestParseTimeDefault(t *testing.T) {
    def := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC)
    got := ParseTimeDefault("", def)
    if !got.Equal(def) {
        t.Fatalf("expected default")
    }
}

func TestParseDateLayouts(t *testing.T) {
    want := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
    for _, s := range []string{"2024-03-05", "03/05/2024", "3/5/2024", "2024-03-05T18:30:00Z"} {
        got, ok := ParseDate(s)
        if !ok {
            t.Fatalf("%q: expected ok", s)
        }
        if !got.Equal(want) {
            t.Fatalf("%q: got %v want %v", s, got, want)
        }
    }
    if _, ok := ParseDate("yesterday"); ok {
        t.Fatalf("expected failure for free text")
    }
}

func TestDaysBetween(t *testing.T) {
    a := time.Date(2024, 3, 1, 23, 0, 0, 0, time.UTC)
    b := time.Date(2024, 3, 8, 1, 0, 0, 0, time.UTC)
    if got := DaysBetween(a, b); got != 7 {
        t.Fatalf("days=%d want=7", got)
    }
    if got := DaysBetween(b, a); got != -7 {
        t.Fatalf("days=%d want=-7", got)
    }
}
