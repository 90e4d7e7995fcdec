package exit

import (
	"TradeLab/internal/domain/models"
	"TradeLab/internal/domain/service"
)

const StopTakeName = "stop_loss_take_profit"

type StopTakeParams struct {
	StopPct float64 `yaml:"stop_pct" default:"-0.05" validate:"lt=0,gt=-1"`
	TakePct float64 `yaml:"take_pct" default:"0.1" validate:"gt=0"`
}

type stopState struct {
	active bool
	entry  float64
	dir    int
}

// StopTake exits intraday when the bar range crosses the stop or the target, checked in that
// order. Levels are anchored at the close of the row a signal opens on, and that row itself is
// never tested.
type StopTake struct {
	stopPct float64
	takePct float64
}

var _ service.ExitRule = (*StopTake)(nil)

func NewStopTake(stopPct, takePct float64) (*StopTake, error) {
	if !(stopPct < 0 && stopPct > -1) {
		return nil, models.ConfigErrorf("stop_pct must be in (-1,0), got %v", stopPct)
	}
	if !(takePct > 0) {
		return nil, models.ConfigErrorf("take_pct must be > 0, got %v", takePct)
	}
	return &StopTake{stopPct: stopPct, takePct: takePct}, nil
}

func (r *StopTake) Name() string { return StopTakeName }

func (r *StopTake) Params() map[string]any {
	return map[string]any{"stop_pct": r.stopPct, "take_pct": r.takePct}
}

func (r *StopTake) levels(st stopState) (stop, target float64) {
	d := float64(st.dir)
	return st.entry * (1 + r.stopPct*d), st.entry * (1 + r.takePct*d)
}

func (r *StopTake) Apply(bars []models.DailyBar, in models.PositionSeries) (models.PositionSeries, error) {
	if err := checkInput(bars, in, true); err != nil {
		return models.PositionSeries{}, err
	}
	out := in.WithExitColumns(bars)
	var st stopState
	for i, b := range bars {
		dir := models.Direction(in.Position[i])
		if !st.active {
			if dir != 0 {
				st = stopState{active: true, entry: b.Close, dir: dir}
			}
			continue
		}
		if in.SignalID[i] != in.SignalID[i-1] && dir == st.dir {
			// a fresh signal in the same direction opens a new trade at this close
			st = stopState{active: true, entry: b.Close, dir: dir}
			continue
		}
		stop, target := r.levels(st)
		var stopHit, targetHit bool
		if st.dir > 0 {
			stopHit, targetHit = b.Low <= stop, b.High >= target
		} else {
			stopHit, targetHit = b.High >= stop, b.Low <= target
		}
		switch {
		case stopHit:
			forceFlat(&out, i, models.ExitStopLoss)
			out.ExitPrice[i] = stop
			st = stopState{}
		case targetHit:
			forceFlat(&out, i, models.ExitTakeProfit)
			out.ExitPrice[i] = target
			st = stopState{}
		case dir == 0:
			st = stopState{}
		case dir != st.dir:
			// reversal closes at close and reopens there
			st = stopState{active: true, entry: b.Close, dir: dir}
		}
	}
	return out, nil
}
