package exit

import (
	"time"

	"TradeLab/internal/domain/models"
	"TradeLab/internal/domain/service"
)

const FixedHoldingName = "fixed_holding"

type FixedHoldingParams struct {
	MaxDays int `yaml:"max_days" default:"5" validate:"gte=1"`
}

type holdingMode int

const (
	holdingFlat holdingMode = iota
	holdingActive
	holdingExited // forced flat, waiting for a new position or signal
)

type holdingState struct {
	mode holdingMode
	days int
	prev float64
}

// FixedHolding closes a position once it has been held for MaxDays rows. A signal date on a held
// row restarts the count.
type FixedHolding struct {
	maxDays     int
	signalDates map[time.Time]struct{}
}

var _ service.ExitRule = (*FixedHolding)(nil)

func NewFixedHolding(maxDays int, signalDates []time.Time) (*FixedHolding, error) {
	if maxDays < 1 {
		return nil, models.ConfigErrorf("max_days must be >= 1, got %d", maxDays)
	}
	set := make(map[time.Time]struct{}, len(signalDates))
	for _, d := range signalDates {
		set[models.TruncateDay(d)] = struct{}{}
	}
	return &FixedHolding{maxDays: maxDays, signalDates: set}, nil
}

func (r *FixedHolding) Name() string { return FixedHoldingName }

func (r *FixedHolding) Params() map[string]any {
	return map[string]any{"max_days": r.maxDays}
}

func (r *FixedHolding) Apply(bars []models.DailyBar, in models.PositionSeries) (models.PositionSeries, error) {
	if err := checkInput(bars, in, false); err != nil {
		return models.PositionSeries{}, err
	}
	out := withReasons(in)
	var st holdingState
	for i := range bars {
		up := in.Position[i]
		_, isSignal := r.signalDates[models.TruncateDay(bars[i].Date)]
		switch {
		case models.IsFlat(up):
			st.mode = holdingFlat
		case st.mode == holdingFlat:
			st.mode, st.days = holdingActive, 1
		case changed(up, st.prev) || isSignal:
			// new position or fresh signal: count again from this row
			st.mode, st.days = holdingActive, 1
		case st.mode == holdingExited:
			forceFlat(&out, i, models.ExitMaxHolding)
		case st.days >= r.maxDays:
			st.mode = holdingExited
			forceFlat(&out, i, models.ExitMaxHolding)
		default:
			st.days++
		}
		st.prev = up
	}
	return out, nil
}
