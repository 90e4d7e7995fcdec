// Package tradelog turns a daily position series into round-trip trades.
package tradelog

import (
	"math"

	"TradeLab/internal/domain/models"
)

type openTrade struct {
	idx   int
	dir   int
	price float64
}

func usable(p float64) bool { return p > 0 && !math.IsNaN(p) && !math.IsInf(p, 0) }

// Build scans positions once. Trades open at the close of the first active row and close on
// the first flat or reversed row, at that row's exit price when one is set, else its close.
// A trade still open on the final row is closed there.
func Build(bars []models.DailyBar, s models.PositionSeries) (models.TradeLog, error) {
	if err := models.ValidateBars(bars); err != nil {
		return models.TradeLog{}, err
	}
	if err := s.Validate(bars); err != nil {
		return models.TradeLog{}, err
	}
	var (
		log models.TradeLog
		cur *openTrade
	)
	exitPrice := func(i int) float64 {
		if s.ExitPrice != nil && usable(s.ExitPrice[i]) {
			return s.ExitPrice[i]
		}
		return bars[i].Close
	}
	closeAt := func(i int, price float64, reason models.ExitReason) {
		t := cur
		cur = nil
		if !usable(t.price) || !usable(price) {
			log.Skipped++
			return
		}
		holding := i - t.idx
		if holding < 1 {
			holding = 1
		}
		// strength, confidence and context come from the opening row
		log.Trades = append(log.Trades, models.Trade{
			EntryDate:      bars[t.idx].Date,
			ExitDate:       bars[i].Date,
			Direction:      t.dir,
			EntryPrice:     t.price,
			ExitPrice:      price,
			HoldingDays:    holding,
			Return:         (price/t.price - 1) * float64(t.dir),
			SignalStrength: s.Strength[t.idx],
			Confidence:     s.Confidence[t.idx],
			SignalID:       s.SignalID[t.idx],
			ExitReason:     reason,
			Context:        s.Context[t.idx],
		})
	}

	for i := range bars {
		dir := models.Direction(s.Position[i])
		if cur != nil && dir != cur.dir {
			if dir == 0 {
				reason := models.ExitSignal
				if s.ExitReason != nil && s.ExitReason[i] != models.ExitNone {
					reason = s.ExitReason[i]
				}
				closeAt(i, exitPrice(i), reason)
			} else {
				// reversal: close and reopen on this bar at the same price
				closeAt(i, bars[i].Close, models.ExitReversal)
			}
		}
		if cur == nil && dir != 0 {
			cur = &openTrade{idx: i, dir: dir, price: bars[i].Close}
		}
	}
	if cur != nil {
		last := len(bars) - 1
		if cur.idx == last {
			// opened on the final row, nothing to measure
			log.Skipped++
		} else {
			closeAt(last, bars[last].Close, models.ExitEndOfData)
		}
	}
	return log, nil
}
