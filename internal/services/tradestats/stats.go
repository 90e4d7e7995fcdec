// Package tradestats aggregates a trade list.
package tradestats

import (
	"math"

	"TradeLab/internal/domain/models"
)

// Summarize computes the summary of trades over a calendar of rows days. An empty list gives a
// zero summary.
func Summarize(trades []models.Trade, rows int) models.Summary {
	var s models.Summary
	if len(trades) == 0 {
		return s
	}
	var (
		compounded = 1.0
		sum        float64
		holding    int
		gains      float64
		losses     float64
		winStreak  int
		lossStreak int
	)
	s.BestReturn = math.Inf(-1)
	s.WorstReturn = math.Inf(1)
	for _, t := range trades {
		r := t.Return
		compounded *= 1 + r
		sum += r
		holding += t.HoldingDays
		s.BestReturn = math.Max(s.BestReturn, r)
		s.WorstReturn = math.Min(s.WorstReturn, r)
		if t.Direction > 0 {
			s.Longs++
		} else {
			s.Shorts++
		}
		switch {
		case r > 0:
			s.Wins++
			gains += r
			winStreak++
			lossStreak = 0
		case r < 0:
			s.Losses++
			losses += -r
			lossStreak++
			winStreak = 0
		default:
			// flat trades break both streaks
			winStreak, lossStreak = 0, 0
		}
		s.LongestWinStreak = max(s.LongestWinStreak, winStreak)
		s.LongestLosingStreak = max(s.LongestLosingStreak, lossStreak)
	}
	n := float64(len(trades))
	s.Trades = len(trades)
	s.TotalReturn = compounded - 1
	s.WinRate = float64(s.Wins) / n
	s.MeanReturn = sum / n
	s.MeanHoldingDays = float64(holding) / n
	s.ProfitFactor = ProfitFactor(gains, losses)
	if s.Wins > 0 {
		s.AvgWin = gains / float64(s.Wins)
	}
	if s.Losses > 0 {
		s.AvgLoss = -losses / float64(s.Losses)
	}
	if rows > 0 {
		s.Exposure = math.Min(1, float64(holding)/float64(rows))
	}
	return s
}

// ProfitFactor is gross gains over gross losses, +Inf with gains and no losses, 0 otherwise.
func ProfitFactor(gains, losses float64) float64 {
	switch {
	case losses > 0:
		return gains / losses
	case gains > 0:
		return math.Inf(1)
	}
	return 0
}
