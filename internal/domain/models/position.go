package models

import (
	"math"
	"time"
)

// FlatEpsilon is the magnitude at or below which a position counts as flat.
const FlatEpsilon = 1e-9

// IsFlat reports whether p carries no exposure.
func IsFlat(p float64) bool { return math.IsNaN(p) || math.Abs(p) <= FlatEpsilon }

// Direction returns +1, -1 or 0 for flat.
func Direction(p float64) int {
	switch {
	case IsFlat(p):
		return 0
	case p > 0:
		return 1
	default:
		return -1
	}
}

// ExitReason tags why a position was closed.
type ExitReason string

const (
	ExitNone         ExitReason = ""
	ExitSignal       ExitReason = "signal"
	ExitReversal     ExitReason = "reversal"
	ExitEndOfData    ExitReason = "end_of_data"
	ExitStopLoss     ExitReason = "stop_loss"
	ExitTakeProfit   ExitReason = "take_profit"
	ExitTrailingStop ExitReason = "trailing_stop"
	ExitMaxHolding   ExitReason = "max_holding"
	ExitNextEarnings ExitReason = "next_earnings"
	ExitEntryCap     ExitReason = "entry_cap"
)

// EntryContext is the provenance of a trading decision. It is created once by the entry rule
// and shared by pointer through the forward fill; nothing writes to it afterwards.
type EntryContext struct {
	EntryType          string
	SignalColumn       string
	SignalValue        float64
	SignalDate         time.Time
	RawDirection       int
	FinalDirection     int
	CorrelationFlipped bool
	CorrelationUsed    float64
	ConfidenceUsed     float64
	RegimeShift        bool
	Momentum           map[string]float64
}

// PositionSeries is a columnar daily table aligned to the bar calendar.
type PositionSeries struct {
	Dates      []time.Time
	Position   []float64
	Strength   []float64
	Confidence []float64
	SignalID   []int64
	Context    []*EntryContext

	// ExitPrice is populated by price-triggered exit rules; nil otherwise.
	ExitPrice []float64
	// ExitReason marks rows an exit rule or the cap guard forced flat; nil when unused.
	ExitReason []ExitReason
}

// NewFlatSeries returns an all-flat series over calendar.
func NewFlatSeries(calendar []time.Time) PositionSeries {
	n := len(calendar)
	dates := make([]time.Time, n)
	copy(dates, calendar)
	return PositionSeries{
		Dates:      dates,
		Position:   make([]float64, n),
		Strength:   make([]float64, n),
		Confidence: make([]float64, n),
		SignalID:   make([]int64, n),
		Context:    make([]*EntryContext, n),
	}
}

// Len returns the number of rows.
func (s PositionSeries) Len() int { return len(s.Dates) }

// Clone copies every column. Contexts are shared, they are immutable.
func (s PositionSeries) Clone() PositionSeries {
	out := PositionSeries{
		Dates:      append([]time.Time(nil), s.Dates...),
		Position:   append([]float64(nil), s.Position...),
		Strength:   append([]float64(nil), s.Strength...),
		Confidence: append([]float64(nil), s.Confidence...),
		SignalID:   append([]int64(nil), s.SignalID...),
		Context:    append([]*EntryContext(nil), s.Context...),
	}
	if s.ExitPrice != nil {
		out.ExitPrice = append([]float64(nil), s.ExitPrice...)
	}
	if s.ExitReason != nil {
		out.ExitReason = append([]ExitReason(nil), s.ExitReason...)
	}
	return out
}

// Validate checks that every column is aligned with bars.
func (s PositionSeries) Validate(bars []DailyBar) error {
	n := len(bars)
	cols := []struct {
		name string
		len  int
	}{
		{"dates", len(s.Dates)},
		{"position", len(s.Position)},
		{"strength", len(s.Strength)},
		{"confidence", len(s.Confidence)},
		{"signal_id", len(s.SignalID)},
		{"context", len(s.Context)},
	}
	for _, c := range cols {
		if c.len != n {
			return ShapeErrorf("column %s has %d rows, bars have %d", c.name, c.len, n)
		}
	}
	if s.ExitPrice != nil && len(s.ExitPrice) != n {
		return ShapeErrorf("column exit_price has %d rows, bars have %d", len(s.ExitPrice), n)
	}
	if s.ExitReason != nil && len(s.ExitReason) != n {
		return ShapeErrorf("column exit_reason has %d rows, bars have %d", len(s.ExitReason), n)
	}
	for i := range bars {
		if !s.Dates[i].Equal(bars[i].Date) {
			return ShapeErrorf("row %d date %s does not match bar date %s",
				i, s.Dates[i].Format("2006-01-02"), bars[i].Date.Format("2006-01-02"))
		}
		if s.Position[i] < -1-FlatEpsilon || s.Position[i] > 1+FlatEpsilon {
			return ShapeErrorf("row %d position %v outside [-1,1]", i, s.Position[i])
		}
		if i > 0 && s.SignalID[i] < s.SignalID[i-1] {
			return ShapeErrorf("signal_id decreases at row %d", i)
		}
	}
	return nil
}

// WithExitColumns clones s and makes sure the exit columns exist, defaulting prices to close.
func (s PositionSeries) WithExitColumns(bars []DailyBar) PositionSeries {
	out := s.Clone()
	if out.ExitPrice == nil {
		out.ExitPrice = Closes(bars)
	}
	if out.ExitReason == nil {
		out.ExitReason = make([]ExitReason, len(bars))
	}
	return out
}
