package models

import (
	"sort"
	"time"
)

// DailyBar is one trading day. Bars are ordered ascending by date with no duplicates.
type DailyBar struct {
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// TruncateDay drops the clock part of t, keeping its calendar date in UTC.
func TruncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ValidateBars checks that bars define a usable trading calendar.
func ValidateBars(bars []DailyBar) error {
	if len(bars) == 0 {
		return ShapeErrorf("no bars")
	}
	for i := 1; i < len(bars); i++ {
		if !bars[i].Date.After(bars[i-1].Date) {
			return ShapeErrorf("bar dates not strictly ascending at row %d (%s after %s)",
				i, bars[i].Date.Format("2006-01-02"), bars[i-1].Date.Format("2006-01-02"))
		}
	}
	return nil
}

// Calendar returns the bar dates.
func Calendar(bars []DailyBar) []time.Time {
	out := make([]time.Time, len(bars))
	for i, b := range bars {
		out[i] = b.Date
	}
	return out
}

// Closes returns the close column.
func Closes(bars []DailyBar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// IndexAtOrBefore returns the index of the latest calendar date <= t, or -1 if t precedes the
// calendar. The calendar must be ascending.
func IndexAtOrBefore(calendar []time.Time, t time.Time) int {
	// first index strictly after t
	i := sort.Search(len(calendar), func(i int) bool { return calendar[i].After(t) })
	return i - 1
}

// ValidateCalendar checks a bare date axis is strictly ascending.
func ValidateCalendar(calendar []time.Time) error {
	for i := 1; i < len(calendar); i++ {
		if !calendar[i].After(calendar[i-1]) {
			return ShapeErrorf("calendar not strictly ascending at row %d", i)
		}
	}
	return nil
}

// SortBars orders bars by date in place, keeping input order on ties.
func SortBars(bars []DailyBar) {
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
}
