package util

import (
	"testing"
	"time"
)

func TestParseTimeFormats(t *testing.T) {
	if _, ok := ParseTime(""); ok {
		t.Fatalf("empty string should not parse")
	}
	if tm, ok := ParseTime("2026-08-30T12:00:00Z"); !ok || tm.Hour() != 12 {
		t.Fatalf("rfc3339 parse failed: %v %v", tm, ok)
	}
	if tm, ok := ParseTime("2026-08-30T12:00:00.123456789Z"); !ok || tm.Nanosecond() == 0 {
		t.Fatalf("rfc3339nano parse failed: %v %v", tm, ok)
	}
	if tm, ok := ParseTime("1700000000"); !ok || tm.Unix() != 1700000000 {
		t.Fatalf("unix seconds parse failed: %v %v", tm, ok)
	}
	if _, ok := ParseTime("not-a-time"); ok {
		t.Fatalf("garbage should not parse")
	}
}

func TestParseTimeDefault(t *testing.T) {
	def := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if got := ParseTimeDefault("bogus", def); !got.Equal(def) {
		t.Fatalf("expected default, got %v", got)
	}
	if got := ParseTimeDefault("2026-08-30T00:00:00Z", def); got.Equal(def) {
		t.Fatalf("valid input should not return default")
	}
}

func TestParseIntDefault(t *testing.T) {
	if got := ParseIntDefault("", 7); got != 7 {
		t.Fatalf("expected 7, got %d", got)
	}
	if got := ParseIntDefault("42", 7); got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
	if got := ParseIntDefault("x", 7); got != 7 {
		t.Fatalf("expected 7, got %d", got)
	}
}
