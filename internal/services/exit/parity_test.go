package exit

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"TradeLab/internal/domain/models"
)

// Naive references: each row rescans the open trade from its entry row.

func naiveStopTake(bars []models.DailyBar, pos []float64, ids []int64, stopPct, takePct float64) ([]float64, []float64) {
	out := append([]float64(nil), pos...)
	prices := models.Closes(bars)
	entry := -1
	for i := range bars {
		dir := models.Direction(pos[i])
		if entry < 0 {
			if dir != 0 {
				entry = i
			}
			continue
		}
		d := float64(models.Direction(pos[entry]))
		if ids[i] != ids[i-1] && float64(dir) == d {
			entry = i
			continue
		}
		stop := bars[entry].Close * (1 + stopPct*d)
		target := bars[entry].Close * (1 + takePct*d)
		stopHit := (d > 0 && bars[i].Low <= stop) || (d < 0 && bars[i].High >= stop)
		targetHit := (d > 0 && bars[i].High >= target) || (d < 0 && bars[i].Low <= target)
		switch {
		case stopHit:
			out[i], prices[i], entry = 0, stop, -1
		case targetHit:
			out[i], prices[i], entry = 0, target, -1
		case dir == 0:
			entry = -1
		case float64(dir) != d:
			entry = i
		}
	}
	return out, prices
}

func naiveTrailing(bars []models.DailyBar, pos []float64, ids []int64, trail float64) ([]float64, []float64) {
	out := append([]float64(nil), pos...)
	prices := models.Closes(bars)
	entry := -1
	for i := range bars {
		dir := models.Direction(pos[i])
		if entry < 0 {
			if dir != 0 {
				entry = i
			}
			continue
		}
		d := models.Direction(pos[entry])
		if ids[i] != ids[i-1] && dir == d {
			entry = i
			continue
		}
		var stop float64
		var hit bool
		if d > 0 {
			peak := bars[entry].High
			for k := entry + 1; k <= i; k++ {
				peak = math.Max(peak, bars[k].High)
			}
			stop = peak * (1 - trail)
			hit = bars[i].Low <= stop
		} else {
			trough := bars[entry].Low
			for k := entry + 1; k <= i; k++ {
				trough = math.Min(trough, bars[k].Low)
			}
			stop = trough * (1 + trail)
			hit = bars[i].High >= stop
		}
		switch {
		case hit:
			out[i], prices[i], entry = 0, stop, -1
		case dir == 0:
			entry = -1
		case dir != d:
			entry = i
		}
	}
	return out, prices
}

func naiveFixedHolding(bars []models.DailyBar, pos []float64, maxDays int, signals map[time.Time]bool) []float64 {
	out := append([]float64(nil), pos...)
	start := -1 // row the holding count restarted on
	exited := false
	for i := range bars {
		switch {
		case models.IsFlat(pos[i]):
			start, exited = -1, false
		case start < 0, pos[i] != pos[i-1], signals[bars[i].Date]:
			start, exited = i, false
		case exited:
			out[i] = 0
		case i-start >= maxDays:
			out[i], exited = 0, true
		}
	}
	return out
}

func TestParityWithNaiveReferences(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for run := 0; run < 100; run++ {
		bars := randomWalk(rng, 80)
		in := randomPositions(rng, bars)
		freshSignals(rng, &in)

		st, _ := NewStopTake(-0.04, 0.05)
		got, err := st.Apply(bars, in)
		if err != nil {
			t.Fatalf("stop: %v", err)
		}
		wantPos, wantPx := naiveStopTake(bars, in.Position, in.SignalID, -0.04, 0.05)
		comparePriced(t, "stop_take", run, got, wantPos, wantPx)

		tr, _ := NewTrailing(0.035)
		got, err = tr.Apply(bars, in)
		if err != nil {
			t.Fatalf("trail: %v", err)
		}
		wantPos, wantPx = naiveTrailing(bars, in.Position, in.SignalID, 0.035)
		comparePriced(t, "trailing", run, got, wantPos, wantPx)

		signals := map[time.Time]bool{}
		var dates []time.Time
		for i := range bars {
			if rng.Float64() < 0.1 {
				signals[bars[i].Date] = true
				dates = append(dates, bars[i].Date)
			}
		}
		fh, _ := NewFixedHolding(4, dates)
		got, err = fh.Apply(bars, in)
		if err != nil {
			t.Fatalf("fixed: %v", err)
		}
		want := naiveFixedHolding(bars, in.Position, 4, signals)
		for i := range want {
			if got.Position[i] != want[i] {
				t.Fatalf("fixed_holding run %d row %d: got %v want %v", run, i, got.Position[i], want[i])
			}
		}
	}
}

func comparePriced(t *testing.T, name string, run int, got models.PositionSeries, pos, px []float64) {
	t.Helper()
	for i := range pos {
		if got.Position[i] != pos[i] {
			t.Fatalf("%s run %d row %d: position %v want %v", name, run, i, got.Position[i], pos[i])
		}
		if !almostEqual(got.ExitPrice[i], px[i]) {
			t.Fatalf("%s run %d row %d: exit price %v want %v", name, run, i, got.ExitPrice[i], px[i])
		}
	}
}
