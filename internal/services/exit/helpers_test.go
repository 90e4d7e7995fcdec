package exit

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"TradeLab/internal/domain/models"
)

var day0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

// closeBars uses the close as high and low.
func closeBars(closes ...float64) []models.DailyBar {
	out := make([]models.DailyBar, len(closes))
	for i, c := range closes {
		out[i] = models.DailyBar{Date: day0.AddDate(0, 0, i), Open: c, High: c, Low: c, Close: c}
	}
	return out
}

func series(bars []models.DailyBar, pos ...float64) models.PositionSeries {
	s := models.NewFlatSeries(models.Calendar(bars))
	var id int64
	for i, p := range pos {
		if i == 0 || p != pos[i-1] {
			id++
		}
		s.Position[i] = p
		s.SignalID[i] = id
	}
	return s
}

func constant(bars []models.DailyBar, p float64) models.PositionSeries {
	pos := make([]float64, len(bars))
	for i := range pos {
		pos[i] = p
	}
	return series(bars, pos...)
}

// randomWalk builds n bars with an intraday range around each close.
func randomWalk(rng *rand.Rand, n int) []models.DailyBar {
	out := make([]models.DailyBar, n)
	c := 100.0
	for i := range out {
		c *= 1 + (rng.Float64()-0.5)*0.06
		hi := c * (1 + rng.Float64()*0.03)
		lo := c * (1 - rng.Float64()*0.03)
		out[i] = models.DailyBar{Date: day0.AddDate(0, 0, i), Open: c, High: hi, Low: lo, Close: c}
	}
	return out
}

// randomPositions switches between long, short and flat at random.
func randomPositions(rng *rand.Rand, bars []models.DailyBar) models.PositionSeries {
	choices := []float64{-1, 0, 1}
	pos := make([]float64, len(bars))
	cur := 1.0
	for i := range pos {
		if rng.Float64() < 0.15 {
			cur = choices[rng.Intn(len(choices))]
		}
		pos[i] = cur
	}
	return series(bars, pos...)
}

// freshSignals starts a new signal id on some rows without changing the position.
func freshSignals(rng *rand.Rand, s *models.PositionSeries) {
	var bump int64
	for i := range s.SignalID {
		if i > 0 && !models.IsFlat(s.Position[i]) && rng.Float64() < 0.1 {
			bump++
		}
		s.SignalID[i] += bump
	}
}

func almostEqual(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func assertPositions(t *testing.T, got models.PositionSeries, want ...float64) {
	t.Helper()
	if len(got.Position) != len(want) {
		t.Fatalf("got %d rows, want %d", len(got.Position), len(want))
	}
	for i := range want {
		if !almostEqual(got.Position[i], want[i]) {
			t.Fatalf("positions %v, want %v", got.Position, want)
		}
	}
}
