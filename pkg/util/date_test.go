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

func TestParseDay(t *testing.T) {
	want := time.Date(2024, 10, 10, 0, 0, 0, 0, time.UTC)
	for _, s := range []string{"2024-10-10", "2024-10-10T22:10:10Z", strconv.FormatInt(want.Add(5*time.Hour).Unix(), 10)} {
		got, ok := ParseDay(s)
		if !ok || !got.Equal(want) {
			t.Fatalf("%q: got %v ok=%v", s, got, ok)
		}
	}
	if _, ok := ParseDay("10/10/2024"); ok {
		t.Fatalf("expected failure")
	}
}

func TestParseDayDefault(t *testing.T) {
	def := time.Date(2024, 10, 10, 0, 0, 0, 0, time.UTC)
	if got := ParseDayDefault("", def); !got.Equal(def) {
		t.Fatalf("expected default")
	}
}
