package capguard

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"TradeLab/internal/domain/models"
)

func fixture(pos []float64, ids []int64) ([]models.DailyBar, models.PositionSeries) {
	start := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	bars := make([]models.DailyBar, len(pos))
	for i := range bars {
		bars[i] = models.DailyBar{Date: start.AddDate(0, 0, i), High: 10, Low: 10, Close: 10}
	}
	s := models.NewFlatSeries(models.Calendar(bars))
	copy(s.Position, pos)
	copy(s.SignalID, ids)
	return bars, s
}

func TestGuardCapsEntriesPerSignal(t *testing.T) {
	tests := []struct {
		name string
		max  int
		pos  []float64
		ids  []int64
		want []float64
	}{
		{"stop then re-entry suppressed", 1, []float64{1, 1, 0, 1, 1}, []int64{1, 1, 1, 1, 1}, []float64{1, 1, 0, 0, 0}},
		{"second entry allowed", 2, []float64{1, 0, 1, 0, 1}, []int64{1, 1, 1, 1, 1}, []float64{1, 0, 1, 0, 0}},
		{"new signal resets", 1, []float64{1, 0, 1, 0, 1}, []int64{1, 1, 1, 2, 2}, []float64{1, 0, 0, 0, 1}},
		{"reversal counts as entry", 1, []float64{1, 1, -1, -1}, []int64{1, 1, 1, 1}, []float64{1, 1, 0, 0}},
		{"flat period untouched", 1, []float64{0, 0, 0}, []int64{0, 0, 0}, []float64{0, 0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := New(tt.max)
			if err != nil {
				t.Fatalf("new: %v", err)
			}
			bars, in := fixture(tt.pos, tt.ids)
			out, err := g.Apply(bars, in)
			if err != nil {
				t.Fatalf("apply: %v", err)
			}
			for i := range tt.want {
				if out.Position[i] != tt.want[i] {
					t.Fatalf("positions %v want %v", out.Position, tt.want)
				}
				if tt.pos[i] != 0 && tt.want[i] == 0 && out.ExitReason[i] != models.ExitEntryCap {
					t.Fatalf("row %d: expected entry_cap reason, got %q", i, out.ExitReason[i])
				}
			}
		})
	}
}

func TestGuardIdempotent(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	g, _ := New(2)
	for run := 0; run < 50; run++ {
		bars, in := fixture(randomInput(rng, 60))
		once, err := g.Apply(bars, in)
		if err != nil {
			t.Fatalf("apply: %v", err)
		}
		twice, err := g.Apply(bars, once)
		if err != nil {
			t.Fatalf("apply: %v", err)
		}
		for i := range once.Position {
			if once.Position[i] != twice.Position[i] || once.ExitReason[i] != twice.ExitReason[i] {
				t.Fatalf("run %d row %d: second pass changed output", run, i)
			}
		}
	}
}

func randomInput(rng *rand.Rand, n int) ([]float64, []int64) {
	pos := make([]float64, n)
	ids := make([]int64, n)
	var id int64
	for i := range pos {
		pos[i] = float64(rng.Intn(3) - 1)
		if rng.Float64() < 0.1 {
			id++
		}
		ids[i] = id
	}
	return pos, ids
}

// Rows up to a cut are fixed by the rows before them.
func TestGuardNoLookAhead(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	for _, limit := range []int{1, 2, 3} {
		g, _ := New(limit)
		for run := 0; run < 50; run++ {
			pos, ids := randomInput(rng, 60)
			bars, in := fixture(pos, ids)
			base, err := g.Apply(bars, in)
			if err != nil {
				t.Fatalf("apply: %v", err)
			}
			cut := rng.Intn(len(pos) - 1)
			tailPos, tailIDs := randomInput(rng, len(pos))
			// ids stay non-decreasing; jump starts a new signal on the row after the cut
			jump := int64(rng.Intn(2))
			mutPos := append([]float64(nil), pos...)
			mutIDs := append([]int64(nil), ids...)
			for i := cut + 1; i < len(pos); i++ {
				mutPos[i] = tailPos[i]
				mutIDs[i] = ids[cut] + jump + tailIDs[i]
			}
			_, mut := fixture(mutPos, mutIDs)
			got, err := g.Apply(bars, mut)
			if err != nil {
				t.Fatalf("apply: %v", err)
			}
			for i := 0; i <= cut; i++ {
				if got.Position[i] != base.Position[i] || got.ExitReason[i] != base.ExitReason[i] {
					t.Fatalf("max %d run %d row %d: output changed by rows after %d", limit, run, i, cut)
				}
			}
		}
	}
}

func TestGuardRejects(t *testing.T) {
	if _, err := New(0); !errors.Is(err, models.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	g, _ := New(1)
	bars, in := fixture([]float64{1, 1}, []int64{1, 1})
	if _, err := g.Apply(bars[:1], in); !errors.Is(err, models.ErrInputShape) {
		t.Fatalf("expected shape error, got %v", err)
	}
}
