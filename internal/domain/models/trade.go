package models

import "time"

// Trade is one closed round trip.
type Trade struct {
	EntryDate      time.Time
	ExitDate       time.Time
	Direction      int
	EntryPrice     float64
	ExitPrice      float64
	HoldingDays    int
	Return         float64
	SignalStrength float64
	Confidence     float64
	SignalID       int64
	ExitReason     ExitReason
	Context        *EntryContext
}

// TradeLog is the ordered trade list produced from one position series.
type TradeLog struct {
	Trades  []Trade
	Skipped int // degenerate round trips dropped (non-positive price, zero duration)
}

// Summary aggregates a trade list.
type Summary struct {
	Trades              int
	Wins                int
	Losses              int
	Longs               int
	Shorts              int
	TotalReturn         float64
	WinRate             float64
	MeanReturn          float64
	MeanHoldingDays     float64
	ProfitFactor        float64 // +Inf when there are gains and no losses
	LongestLosingStreak int
	LongestWinStreak    int
	AvgWin              float64
	AvgLoss             float64
	BestReturn          float64
	WorstReturn         float64
	Exposure            float64 // share of calendar rows inside a trade
}
