package exit

import (
	"math"

	"TradeLab/internal/domain/models"
	"TradeLab/internal/domain/service"
)

const TrailingName = "trailing_stop"

type TrailingParams struct {
	TrailPct float64 `yaml:"trail_pct" default:"0.05" validate:"gt=0,lt=1"`
}

type trailState struct {
	active  bool
	dir     int
	extreme float64 // peak for longs, trough for shorts
}

// Trailing follows the best price since entry and exits when the bar breaches it by TrailPct.
type Trailing struct {
	trailPct float64
}

var _ service.ExitRule = (*Trailing)(nil)

func NewTrailing(trailPct float64) (*Trailing, error) {
	if !(trailPct > 0 && trailPct < 1) {
		return nil, models.ConfigErrorf("trail_pct must be in (0,1), got %v", trailPct)
	}
	return &Trailing{trailPct: trailPct}, nil
}

func (r *Trailing) Name() string { return TrailingName }

func (r *Trailing) Params() map[string]any { return map[string]any{"trail_pct": r.trailPct} }

func (r *Trailing) enter(b models.DailyBar, dir int) trailState {
	st := trailState{active: true, dir: dir, extreme: b.High}
	if dir < 0 {
		st.extreme = b.Low
	}
	return st
}

// stopLevel is the current stop for st.
func (r *Trailing) stopLevel(st trailState) float64 {
	if st.dir > 0 {
		return st.extreme * (1 - r.trailPct)
	}
	return st.extreme * (1 + r.trailPct)
}

func (r *Trailing) Apply(bars []models.DailyBar, in models.PositionSeries) (models.PositionSeries, error) {
	if err := checkInput(bars, in, true); err != nil {
		return models.PositionSeries{}, err
	}
	out := in.WithExitColumns(bars)
	var st trailState
	for i, b := range bars {
		dir := models.Direction(in.Position[i])
		if !st.active {
			if dir != 0 {
				st = r.enter(b, dir)
			}
			continue
		}
		if in.SignalID[i] != in.SignalID[i-1] && dir == st.dir {
			st = r.enter(b, dir)
			continue
		}
		var hit bool
		if st.dir > 0 {
			st.extreme = math.Max(st.extreme, b.High)
			hit = b.Low <= r.stopLevel(st)
		} else {
			st.extreme = math.Min(st.extreme, b.Low)
			hit = b.High >= r.stopLevel(st)
		}
		switch {
		case hit:
			forceFlat(&out, i, models.ExitTrailingStop)
			out.ExitPrice[i] = r.stopLevel(st)
			st = trailState{}
		case dir == 0:
			st = trailState{}
		case dir != st.dir:
			st = r.enter(b, dir)
		}
	}
	return out, nil
}
