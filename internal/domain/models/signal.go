package models

import "time"

// SignalDecision is one decided trading direction for a signal event, as delivered by the
// signal layer or produced by an entry rule.
type SignalDecision struct {
	SignalDate time.Time
	Direction  float64 // in [-1,1]
	Strength   float64
	Confidence float64
	Context    *EntryContext
}

// SignalObservation is a raw upstream reading before any direction is decided.
type SignalObservation struct {
	Date        time.Time
	Column      string
	Value       float64
	Strength    float64
	Correlation float64
	Confidence  float64
	RegimeShift bool
	Momentum    map[string]float64
}

// Entry is a registered entry after calendar resolution.
type Entry struct {
	SignalID   int64
	SignalDate time.Time
	EntryDate  time.Time
	Index      int
}

// Resolution is the output of entry resolution.
type Resolution struct {
	Series  PositionSeries
	Entries []Entry
}

// EntryDates returns the entry dates in order.
func (r Resolution) EntryDates() []time.Time {
	out := make([]time.Time, len(r.Entries))
	for i, e := range r.Entries {
		out[i] = e.EntryDate
	}
	return out
}
