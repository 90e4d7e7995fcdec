// Package exit holds the exit rules. Every rule is one left-to-right pass over the daily series
// driven by a small explicit state struct; row t never reads bars after t.
package exit

import (
	"math"

	"TradeLab/internal/domain/models"
)

// checkInput validates the series against bars. Price rules also need usable high/low/close.
func checkInput(bars []models.DailyBar, in models.PositionSeries, prices bool) error {
	if err := models.ValidateBars(bars); err != nil {
		return err
	}
	if err := in.Validate(bars); err != nil {
		return err
	}
	if !prices {
		return nil
	}
	for i, b := range bars {
		for _, p := range [...]struct {
			name string
			v    float64
		}{{"high", b.High}, {"low", b.Low}, {"close", b.Close}} {
			if math.IsNaN(p.v) || math.IsInf(p.v, 0) || p.v <= 0 {
				return models.ShapeErrorf("bar %d (%s) has invalid %s %v", i, b.Date.Format(models.DateLayout), p.name, p.v)
			}
		}
	}
	return nil
}

// withReasons clones in and makes sure the exit reason column exists.
func withReasons(in models.PositionSeries) models.PositionSeries {
	out := in.Clone()
	if out.ExitReason == nil {
		out.ExitReason = make([]models.ExitReason, out.Len())
	}
	return out
}

// forceFlat zeroes row i and tags it.
func forceFlat(s *models.PositionSeries, i int, reason models.ExitReason) {
	s.Position[i] = 0
	s.ExitReason[i] = reason
}

func changed(a, b float64) bool { return math.Abs(a-b) > models.FlatEpsilon }
