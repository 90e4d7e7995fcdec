// Package capguard limits how many round trips one signal period may open.
package capguard

import (
	"TradeLab/internal/domain/models"
	"TradeLab/internal/domain/service"
)

const Name = "entry_cap"

type periodState struct {
	id         int64
	entries    int
	inTrade    bool
	dir        int
	suppressed bool
}

// Guard flattens every row of a signal period after its MaxEntries-th entry. It runs after the
// exit rule so re-entries after a stop count against the period.
type Guard struct {
	maxEntries int
}

var _ service.ExitRule = (*Guard)(nil)

func New(maxEntries int) (*Guard, error) {
	if maxEntries < 1 {
		return nil, models.ConfigErrorf("max_entries_per_signal must be >= 1, got %d", maxEntries)
	}
	return &Guard{maxEntries: maxEntries}, nil
}

func (g *Guard) Name() string { return Name }

func (g *Guard) Params() map[string]any {
	return map[string]any{"max_entries_per_signal": g.maxEntries}
}

// Apply is idempotent: rows it flattens stay flat and do not count as entries on a second pass.
func (g *Guard) Apply(bars []models.DailyBar, in models.PositionSeries) (models.PositionSeries, error) {
	if err := in.Validate(bars); err != nil {
		return models.PositionSeries{}, err
	}
	out := in.Clone()
	if out.ExitReason == nil {
		out.ExitReason = make([]models.ExitReason, out.Len())
	}
	var st periodState
	for i := range out.Position {
		if i == 0 || in.SignalID[i] != st.id {
			st = periodState{id: in.SignalID[i]}
		}
		dir := models.Direction(in.Position[i])
		if st.suppressed {
			if dir != 0 {
				out.Position[i] = 0
				out.ExitReason[i] = models.ExitEntryCap
			}
			continue
		}
		switch {
		case dir == 0:
			st.inTrade, st.dir = false, 0
		case !st.inTrade || dir != st.dir:
			// flat to active, or a reversal: both open a new trade
			st.entries++
			if st.entries > g.maxEntries {
				st.suppressed = true
				out.Position[i] = 0
				out.ExitReason[i] = models.ExitEntryCap
				continue
			}
			st.inTrade, st.dir = true, dir
		}
	}
	return out, nil
}
